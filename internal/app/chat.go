package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rbright/colloquy/internal/config"
	"github.com/rbright/colloquy/internal/ipc"
	"github.com/rbright/colloquy/internal/session"
	"github.com/rbright/colloquy/internal/view"
)

const chatHelp = `Type a question and press Enter.
  /mic          toggle speech input
  /speaker      toggle speech output
  /clear        clear the chat history
  /examples     list example questions
  /example N    ask example N
  /quit         leave the session`

// commandChat owns the session: it holds the runtime socket, runs the
// controller, and reads questions from stdin until EOF, /quit, or a signal.
func (r Runner) commandChat(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintf(r.Stderr, "error: %v (use %q to talk to it)\n", err, binaryName+" ask")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	in := newLineInput(ctx, r.Stdin)
	term := view.NewTerminal(r.Stdout, view.Options{
		UserLabel:      cfg.Chat.UserLabel,
		AssistantLabel: cfg.Chat.AssistantLabel,
		Welcome:        cfg.Chat.Welcome,
		Examples:       cfg.Chat.Examples,
	})

	parts, err := buildSession(cfg, logger, term, in.confirmer(r.Stdout), r.Stderr)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	ctrl := parts.controller

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- ctrl.Run(runCtx)
	}()
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(runCtx, listener, ctrl)
	}()

	code := r.chatLoop(runCtx, ctrl, term, in, cfg.Chat.Examples)

	cancel()
	if err := <-runErrCh; err != nil {
		logger.Error("session loop failed", "error", err.Error())
		code = 1
	}
	parts.wait()
	if err := <-serverErrCh; err != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", err)
		return 1
	}

	logger.Info("chat session ended", "exit_code", code)
	return code
}

// chatLoop waits for initialization, then feeds stdin lines to the
// controller. An initialization failure exits 1 once the fatal view shows.
func (r Runner) chatLoop(ctx context.Context, ctrl *session.Controller, term *view.Terminal, in *lineInput, examples []string) int {
	select {
	case <-ctrl.Initialized():
	case <-ctx.Done():
		return 0
	}

	snap, err := ctrl.Snapshot(ctx)
	if err != nil {
		return 0
	}
	if snap.Failure != "" {
		return 1
	}

	for {
		line, ok := in.next(ctx)
		if !ok {
			return 0
		}
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "/"):
			if quit := r.slashCommand(ctx, ctrl, term, line, examples); quit {
				return 0
			}
		default:
			submit(ctx, ctrl, term, line)
		}
	}
}

func (r Runner) slashCommand(ctx context.Context, ctrl *session.Controller, term *view.Terminal, line string, examples []string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		term.Notice(chatHelp)
	case "/mic":
		// Failures already surface through the view and indicator.
		_, _ = ctrl.ToggleMic(ctx)
	case "/speaker":
		_, _ = ctrl.ToggleSpeaker(ctx)
	case "/clear":
		switch err := ctrl.ClearTranscript(ctx); {
		case errors.Is(err, session.ErrDeclined):
			term.Notice("Clear cancelled.")
		case err != nil:
			term.Notice(err.Error())
		}
	case "/examples":
		if len(examples) == 0 {
			term.Notice("No example questions configured.")
			break
		}
		for i, example := range examples {
			term.Notice(fmt.Sprintf("%d. %s", i+1, example))
		}
	case "/example":
		question, err := pickExample(fields[1:], examples)
		if err != nil {
			term.Notice(err.Error())
			break
		}
		submit(ctx, ctrl, term, question)
	default:
		term.Notice(fmt.Sprintf("Unknown command %s (try /help).", fields[0]))
	}
	return false
}

func pickExample(args []string, examples []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("usage: /example N")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(examples) {
		return "", fmt.Errorf("no example %q; /examples lists %d", args[0], len(examples))
	}
	return examples[n-1], nil
}

func submit(ctx context.Context, ctrl *session.Controller, term *view.Terminal, question string) {
	_, err := ctrl.Submit(ctx, question)
	switch {
	case err == nil, errors.Is(err, session.ErrEmptyQuestion):
	case errors.Is(err, session.ErrNotReady):
		term.Notice(session.NoticeBusy)
	default:
		term.Notice(err.Error())
	}
}

// commandAsk forwards to a running owner, or runs a headless one-shot
// session when none exists.
func (r Runner) commandAsk(ctx context.Context, cfg config.Config, logger *slog.Logger, question string) int {
	if socketPath, err := ipc.RuntimeSocketPath(); err == nil {
		timeout := time.Duration(cfg.API.AskTimeoutMS)*time.Millisecond + askSlack
		resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: ipc.CommandAsk, Text: question}, timeout)
		if handled {
			if err != nil {
				fmt.Fprintf(r.Stderr, "error: %v\n", err)
				return 1
			}
			fmt.Fprintln(r.Stdout, resp.Message)
			return 0
		}
	}
	return r.askOneShot(ctx, cfg, logger, question)
}

func (r Runner) askOneShot(ctx context.Context, cfg config.Config, logger *slog.Logger, question string) int {
	asker, err := newAsker(cfg.API)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	ctrl := session.NewController(session.Deps{Logger: logger, Asker: asker})

	runCtx, cancel := context.WithCancel(ctx)
	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- ctrl.Run(runCtx)
	}()
	defer func() {
		cancel()
		<-runErrCh
	}()

	select {
	case <-ctrl.Initialized():
	case <-ctx.Done():
		fmt.Fprintf(r.Stderr, "error: %v\n", ctx.Err())
		return 1
	}

	snap, err := ctrl.Snapshot(runCtx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if snap.Failure != "" {
		fmt.Fprintf(r.Stderr, "error: %s\n", snap.Failure)
		return 1
	}

	content, ok, err := ctrl.Ask(runCtx, question)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if !ok {
		fmt.Fprintln(r.Stderr, content)
		return 1
	}
	fmt.Fprintln(r.Stdout, content)
	return 0
}

// lineInput delivers stdin lines to whichever goroutine is waiting: the chat
// loop or a clear confirmation.
type lineInput struct {
	lines <-chan string
}

func newLineInput(ctx context.Context, r io.Reader) *lineInput {
	lines := make(chan string)
	go func() {
		defer close(lines)
		if r == nil {
			return
		}
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return &lineInput{lines: lines}
}

// next returns false on EOF or cancellation.
func (in *lineInput) next(ctx context.Context) (string, bool) {
	select {
	case line, ok := <-in.lines:
		return line, ok
	case <-ctx.Done():
		return "", false
	}
}

// confirmer asks on out and treats anything but y/yes (or EOF) as no.
func (in *lineInput) confirmer(out io.Writer) session.ConfirmFunc {
	return func(ctx context.Context, prompt string) (bool, error) {
		fmt.Fprintf(out, "%s [y/N] ", prompt)
		line, ok := in.next(ctx)
		if !ok {
			return false, ctx.Err()
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}
