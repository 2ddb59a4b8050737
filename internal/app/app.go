// Package app dispatches parsed commands: it owns chat sessions and forwards
// control commands to a running owner over the runtime socket.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rbright/colloquy/internal/audio"
	"github.com/rbright/colloquy/internal/cli"
	"github.com/rbright/colloquy/internal/config"
	"github.com/rbright/colloquy/internal/doctor"
	"github.com/rbright/colloquy/internal/ipc"
	"github.com/rbright/colloquy/internal/logging"
	"github.com/rbright/colloquy/internal/session"
	"github.com/rbright/colloquy/internal/speak"
	"github.com/rbright/colloquy/internal/version"
)

const (
	binaryName     = "colloquy"
	forwardTimeout = 220 * time.Millisecond
	// askSlack covers the owner's own bookkeeping on top of the service timeout.
	askSlack = 5 * time.Second
)

type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	r := Runner{Stdin: stdin, Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(binaryName))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(binaryName))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	if err := loadEnv(parsed.EnvPath); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	cfgLoaded, err := config.LoadWithOverrides(parsed.ConfigPath, config.Overrides{Dataset: parsed.Dataset})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	cfg := cfgLoaded.Config

	logOpts := logging.Options{Level: cfg.Log.Level}
	if parsed.Verbose || cfg.Log.Console {
		logOpts.Console = r.Stderr
		logOpts.NoColor = !isTerminal(r.Stderr)
	}
	logRuntime, err := logging.New(logOpts)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"dataset", cfg.API.Dataset,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandChat:
		return r.commandChat(ctx, cfg, logger)
	case cli.CommandAsk:
		return r.commandAsk(ctx, cfg, logger, parsed.Question)
	case cli.CommandMic:
		return r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandMic})
	case cli.CommandSpeaker:
		return r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandSpeaker})
	case cli.CommandClear:
		return r.commandClear(ctx, parsed.Yes)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandTranscript:
		return r.commandTranscript(ctx)
	case cli.CommandVoices:
		return r.commandVoices(ctx, cfg, logger)
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

// loadEnv reads API keys from path, or from ./.env when present. Variables
// already set in the environment win.
func loadEnv(path string) error {
	if strings.TrimSpace(path) != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %q: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			yesNo(device.Available),
			yesNo(device.Muted),
		)
	}
	return 0
}

// commandVoices lists the engine's voices and marks the one the configured
// policy would pick.
func (r Runner) commandVoices(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	engine, err := newVoiceEngine(cfg.Speak)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if engine == nil {
		fmt.Fprintln(r.Stderr, "error: speech output backend is none")
		return 1
	}

	speaker := newSpeaker(cfg.Speak, engine, logger)
	voices, err := speaker.Voices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	chosen := speakPolicy(cfg.Speak).Select(voices)
	for _, v := range voices {
		mark := " "
		if v.Name == chosen {
			mark = "*"
		}
		fmt.Fprintf(r.Stdout, "%s %-24s %s\n", mark, v.Name, v.Lang)
	}
	if chosen == "" {
		fmt.Fprintln(r.Stdout, "(no voice matches speak.locale/speak.preferred_voices; the engine default is used)")
	}
	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: ipc.CommandStatus}, forwardTimeout)
	if !handled {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.State == "" {
		resp.State = "idle"
	}
	fmt.Fprintln(r.Stdout, resp.State)
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func (r Runner) commandTranscript(ctx context.Context) int {
	resp, code, ok := r.forward(ctx, ipc.Request{Command: ipc.CommandTranscript}, forwardTimeout)
	if !ok {
		return code
	}
	for _, msg := range resp.Transcript {
		fmt.Fprintf(r.Stdout, "[%s] %s: %s\n", msg.Timestamp, msg.Role, msg.Content)
	}
	return 0
}

// commandClear confirms on this terminal unless --yes was given, then
// forwards an already-confirmed clear.
func (r Runner) commandClear(ctx context.Context, yes bool) int {
	if !yes {
		confirmed, err := newLineInput(ctx, r.Stdin).confirmer(r.Stdout).Confirm(ctx, session.ClearPrompt)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if !confirmed {
			fmt.Fprintln(r.Stdout, "clear cancelled")
			return 0
		}
	}
	return r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandClear, Confirmed: true})
}

func (r Runner) forwardOrFail(ctx context.Context, req ipc.Request) int {
	resp, code, ok := r.forward(ctx, req, forwardTimeout)
	if !ok {
		return code
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// forward sends req to the running owner. ok is false when the caller should
// return code immediately.
func (r Runner) forward(ctx context.Context, req ipc.Request, timeout time.Duration) (ipc.Response, int, bool) {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return ipc.Response{}, 1, false
	}

	resp, handled, err := tryForward(ctx, socketPath, req, timeout)
	if !handled {
		fmt.Fprintln(r.Stderr, "error: no active colloquy session")
		return ipc.Response{}, 1, false
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return resp, 1, false
	}
	return resp, 0, true
}

// tryForward reports handled=false only when nobody owns the socket.
func tryForward(ctx context.Context, socketPath string, req ipc.Request, timeout time.Duration) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, req, timeout)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if isSocketMissing(err) || isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}
	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", req.Command, err)
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func speakPolicy(cfg config.SpeakConfig) speak.VoicePolicy {
	return speak.VoicePolicy{Locale: cfg.Locale, Preferred: cfg.PreferredVoices}
}
