// Package cli parses colloquy's command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
)

type Command string

const (
	CommandChat       Command = "chat"
	CommandAsk        Command = "ask"
	CommandMic        Command = "mic"
	CommandSpeaker    Command = "speaker"
	CommandClear      Command = "clear"
	CommandStatus     Command = "status"
	CommandTranscript Command = "transcript"
	CommandVoices     Command = "voices"
	CommandDevices    Command = "devices"
	CommandDoctor     Command = "doctor"
	CommandVersion    Command = "version"
	CommandHelp       Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandChat:       {},
	CommandAsk:        {},
	CommandMic:        {},
	CommandSpeaker:    {},
	CommandClear:      {},
	CommandStatus:     {},
	CommandTranscript: {},
	CommandVoices:     {},
	CommandDevices:    {},
	CommandDoctor:     {},
	CommandVersion:    {},
	CommandHelp:       {},
}

// Parsed is the resolved invocation. Question is set only for ask.
type Parsed struct {
	Command    Command
	Question   string
	ConfigPath string
	EnvPath    string
	Dataset    string
	Yes        bool
	Verbose    bool
	ShowHelp   bool
}

// Parse accepts flags anywhere on the line. No command means help.
func Parse(args []string) (Parsed, error) {
	var (
		parsed      Parsed
		showHelp    bool
		showVersion bool
	)

	fs := pflag.NewFlagSet("colloquy", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	fs.StringVar(&parsed.ConfigPath, "config", "", "config file path")
	fs.StringVarP(&parsed.EnvPath, "env", "e", "", "env file with API keys")
	fs.StringVarP(&parsed.Dataset, "dataset", "d", "", "dataset override")
	fs.BoolVarP(&parsed.Yes, "yes", "y", false, "skip the clear confirmation")
	fs.BoolVarP(&parsed.Verbose, "verbose", "v", false, "mirror logs to stderr")
	fs.BoolVarP(&showHelp, "help", "h", false, "show help")
	fs.BoolVar(&showVersion, "version", false, "show version")

	if err := fs.Parse(args); err != nil {
		return Parsed{}, err
	}
	if fs.Changed("config") && strings.TrimSpace(parsed.ConfigPath) == "" {
		return Parsed{}, errors.New("--config requires a path")
	}
	if fs.Changed("dataset") && strings.TrimSpace(parsed.Dataset) == "" {
		return Parsed{}, errors.New("--dataset requires a name")
	}

	switch {
	case showHelp:
		parsed.Command, parsed.ShowHelp = CommandHelp, true
		return parsed, nil
	case showVersion:
		parsed.Command = CommandVersion
		return parsed, nil
	}

	rest := fs.Args()
	if len(rest) == 0 {
		parsed.Command, parsed.ShowHelp = CommandHelp, true
		return parsed, nil
	}

	cmd := Command(rest[0])
	if _, ok := validCommands[cmd]; !ok {
		return Parsed{}, fmt.Errorf("unknown command: %s", rest[0])
	}
	parsed.Command = cmd
	parsed.ShowHelp = cmd == CommandHelp

	operands := rest[1:]
	if cmd == CommandAsk {
		parsed.Question = strings.TrimSpace(strings.Join(operands, " "))
		if parsed.Question == "" {
			return Parsed{}, errors.New("ask requires a question")
		}
		return parsed, nil
	}
	if len(operands) > 0 {
		return Parsed{}, fmt.Errorf("unexpected arguments after command %q", rest[0])
	}
	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [flags] <command> [args]

Commands:
  chat          Start a session: initialize the dataset and chat in this terminal
  ask QUESTION  Ask a question (forwarded to a running session when present)
  mic           Toggle speech input in the running session
  speaker       Toggle speech output in the running session
  clear         Clear the running session's transcript
  status        Print the running session's state
  transcript    Print the running session's transcript
  voices        List speech output voices
  devices       List available input devices
  doctor        Run configuration and environment checks
  version       Print version information
  help          Show this help

Flags:
  --config PATH       Config file path (default: $XDG_CONFIG_HOME/colloquy/config.jsonc)
  -e, --env PATH      Load API keys from an env file
  -d, --dataset NAME  Override api.dataset
  -y, --yes           Clear without asking for confirmation
  -v, --verbose       Mirror logs to stderr
  -h, --help          Show help
  --version           Show version
`, binaryName)
}
