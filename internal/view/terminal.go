// Package view renders the chat session to a terminal.
package view

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/charmbracelet/lipgloss"

	"github.com/rbright/colloquy/internal/qa"
	"github.com/rbright/colloquy/internal/transcript"
)

const (
	userIcon      = "👤"
	assistantIcon = "💬"
	welcomeTitle  = "Welcome!!"
	promptMarker  = "> "
)

// Options controls labels and the welcome placeholder.
type Options struct {
	UserLabel      string
	AssistantLabel string
	Welcome        string
	Examples       []string
}

type theme struct {
	title     lipgloss.Style
	panel     lipgloss.Style
	statKey   lipgloss.Style
	statValue lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	timestamp lipgloss.Style
	muted     lipgloss.Style
	notice    lipgloss.Style
	fatal     lipgloss.Style
	prompt    lipgloss.Style
}

func newTheme(r *lipgloss.Renderer) theme {
	accent := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	muted := lipgloss.Color("#9ca3d8")
	warn := lipgloss.Color("#ffb86c")
	danger := lipgloss.Color("#ff5555")

	return theme{
		title:     r.NewStyle().Foreground(accent).Bold(true),
		panel:     r.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(accent).Padding(0, 1),
		statKey:   r.NewStyle().Foreground(muted),
		statValue: r.NewStyle().Bold(true),
		user:      r.NewStyle().Foreground(accent).Bold(true),
		assistant: r.NewStyle().Foreground(mint).Bold(true),
		timestamp: r.NewStyle().Foreground(muted).Faint(true),
		muted:     r.NewStyle().Foreground(muted).Italic(true),
		notice:    r.NewStyle().Foreground(warn),
		fatal:     r.NewStyle().Foreground(danger).Bold(true),
		prompt:    r.NewStyle().Foreground(accent),
	}
}

// Terminal is a line-oriented View. Colors are dropped when out is not a TTY.
type Terminal struct {
	mu    sync.Mutex
	out   io.Writer
	opts  Options
	theme theme

	inputEnabled bool
	pending      bool
}

// NewTerminal builds a terminal view writing to out.
func NewTerminal(out io.Writer, opts Options) *Terminal {
	if strings.TrimSpace(opts.UserLabel) == "" {
		opts.UserLabel = "You"
	}
	if strings.TrimSpace(opts.AssistantLabel) == "" {
		opts.AssistantLabel = "Assistant"
	}
	return &Terminal{
		out:   out,
		opts:  opts,
		theme: newTheme(lipgloss.NewRenderer(out)),
	}
}

func (t *Terminal) ShowLoading(dataset string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.println(t.theme.muted.Render(fmt.Sprintf("Initializing %s…", sanitize(dataset))))
}

// ShowDashboard prints the dataset name and its stats in key order.
func (t *Terminal) ShowDashboard(dataset string, stats qa.Stats) {
	t.mu.Lock()
	defer t.mu.Unlock()

	lines := []string{t.theme.title.Render(sanitize(dataset))}
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("%s %s",
			t.theme.statKey.Render(sanitize(key)+":"),
			t.theme.statValue.Render(sanitize(formatStat(stats[key]))),
		))
	}
	t.println(t.theme.panel.Render(strings.Join(lines, "\n")))
}

func (t *Terminal) ShowFatal(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.println(t.theme.fatal.Render("Error"))
	t.println(sanitize(message))
}

// ShowWelcome prints the empty-transcript placeholder and numbered examples.
func (t *Terminal) ShowWelcome() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.println(t.theme.title.Render(welcomeTitle))
	if welcome := strings.TrimSpace(t.opts.Welcome); welcome != "" {
		t.println(sanitize(welcome))
	}
	for i, example := range t.opts.Examples {
		t.println(t.theme.muted.Render(fmt.Sprintf("  %d. %s", i+1, sanitize(example))))
	}
}

// AppendMessage prints "[time] icon label: content".
func (t *Terminal) AppendMessage(msg transcript.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	icon, label, style := userIcon, t.opts.UserLabel, t.theme.user
	if msg.Role == transcript.RoleAssistant {
		icon, label, style = assistantIcon, t.opts.AssistantLabel, t.theme.assistant
	}
	t.println(fmt.Sprintf("%s %s %s %s",
		t.theme.timestamp.Render("["+msg.Timestamp+"]"),
		icon,
		style.Render(label+":"),
		sanitize(msg.Content),
	))
}

// ShowPending prints a thinking line once per pending request.
func (t *Terminal) ShowPending(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if on && !t.pending {
		t.println(t.theme.muted.Render(fmt.Sprintf("%s %s is thinking…", assistantIcon, t.opts.AssistantLabel)))
	}
	t.pending = on
}

// SetInput echoes text placed into the input by speech recognition.
func (t *Terminal) SetInput(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if text == "" {
		return
	}
	t.println(t.theme.prompt.Render(promptMarker) + sanitize(text))
}

// SetInputEnabled shows the prompt when input becomes available.
func (t *Terminal) SetInputEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if enabled && !t.inputEnabled {
		_, _ = io.WriteString(t.out, t.theme.prompt.Render(promptMarker))
	}
	t.inputEnabled = enabled
}

func (t *Terminal) SetListening(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if on {
		t.println(t.theme.notice.Render("🎤 Listening… (/mic to stop)"))
		return
	}
	t.println(t.theme.muted.Render("🎤 Microphone off"))
}

func (t *Terminal) SetSpeaker(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state := "off"
	if on {
		state = "on"
	}
	t.println(t.theme.muted.Render("🔊 Speech output: " + state))
}

func (t *Terminal) Notice(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.println(t.theme.notice.Render(sanitize(text)))
}

func (t *Terminal) println(line string) {
	_, _ = fmt.Fprintln(t.out, line)
}

func formatStat(value any) string {
	switch v := value.(type) {
	case nil:
		return "-"
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprint(v)
	}
}

// sanitize drops control characters other than newline and tab so service
// text cannot move the cursor or recolor the terminal.
func sanitize(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
}
