package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultsToHelp(t *testing.T) {
	parsed, err := Parse(nil)
	require.NoError(t, err)
	require.True(t, parsed.ShowHelp)
	require.Equal(t, CommandHelp, parsed.Command)
}

func TestParseCommandWithConfig(t *testing.T) {
	parsed, err := Parse([]string{"--config", "/tmp/colloquy.jsonc", "doctor"})
	require.NoError(t, err)
	require.Equal(t, CommandDoctor, parsed.Command)
	require.Equal(t, "/tmp/colloquy.jsonc", parsed.ConfigPath)
	require.False(t, parsed.ShowHelp)
}

func TestParseAskJoinsQuestionWords(t *testing.T) {
	parsed, err := Parse([]string{"ask", "Who", "is", "Sherlock", "Holmes?", "-d", "sherlock"})
	require.NoError(t, err)
	require.Equal(t, CommandAsk, parsed.Command)
	require.Equal(t, "Who is Sherlock Holmes?", parsed.Question)
	require.Equal(t, "sherlock", parsed.Dataset)
}

func TestParseArgMatrix(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
		want    Parsed
	}{
		{
			name: "help short flag",
			args: []string{"-h"},
			want: Parsed{Command: CommandHelp, ShowHelp: true},
		},
		{
			name: "help wins over command",
			args: []string{"status", "--help"},
			want: Parsed{Command: CommandHelp, ShowHelp: true},
		},
		{
			name: "version flag",
			args: []string{"--version"},
			want: Parsed{Command: CommandVersion},
		},
		{
			name: "config after command",
			args: []string{"status", "--config", "/tmp/cfg"},
			want: Parsed{Command: CommandStatus, ConfigPath: "/tmp/cfg"},
		},
		{
			name: "clear with yes and env",
			args: []string{"-y", "--env", ".env", "clear"},
			want: Parsed{Command: CommandClear, Yes: true, EnvPath: ".env"},
		},
		{
			name: "chat verbose",
			args: []string{"chat", "-v"},
			want: Parsed{Command: CommandChat, Verbose: true},
		},
		{
			name:    "missing config path",
			args:    []string{"--config"},
			wantErr: "flag needs an argument",
		},
		{
			name:    "empty config path",
			args:    []string{"--config", "", "status"},
			wantErr: "--config requires a path",
		},
		{
			name:    "empty dataset",
			args:    []string{"--dataset=", "chat"},
			wantErr: "--dataset requires a name",
		},
		{
			name:    "unknown flag",
			args:    []string{"--bogus"},
			wantErr: "unknown flag",
		},
		{
			name:    "unknown command",
			args:    []string{"bogus"},
			wantErr: "unknown command",
		},
		{
			name:    "extra args after command",
			args:    []string{"doctor", "extra"},
			wantErr: "unexpected arguments",
		},
		{
			name:    "ask without question",
			args:    []string{"ask", "  "},
			wantErr: "ask requires a question",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Parse(tc.args)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.want, parsed)
		})
	}
}

func TestHelpTextIncludesCoreCommands(t *testing.T) {
	text := HelpText("colloquy")
	for _, want := range []string{"chat", "ask QUESTION", "mic", "speaker", "clear", "transcript", "voices", "doctor", "--config PATH", "--yes"} {
		require.Contains(t, text, want)
	}
}
