// Package indicator surfaces speech input state outside the terminal:
// desktop or Hyprland notifications plus short audio cues.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/colloquy/internal/audio"
	"github.com/rbright/colloquy/internal/config"
	"github.com/rbright/colloquy/internal/hypr"
)

const (
	listeningColor   = "rgb(89b4fa)"
	errorColor       = "rgb(f38ba8)"
	listeningTimeout = 300000
	defaultErrorMS   = 1200
	dispatchTimeout  = 400 * time.Millisecond
	cueTimeout       = 4 * time.Second
)

// backend shows and dismisses one notification at a time.
type backend interface {
	notify(ctx context.Context, icon int, timeoutMS int, color string, text string) error
	dismiss(ctx context.Context) error
}

type hyprBackend struct{}

func (hyprBackend) notify(ctx context.Context, icon int, timeoutMS int, color string, text string) error {
	return hypr.Notify(ctx, icon, timeoutMS, color, text)
}

func (hyprBackend) dismiss(ctx context.Context) error {
	return hypr.DismissNotify(ctx)
}

// Notifier routes listening/error notices to the configured backend and
// plays start/stop/error cues.
type Notifier struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages
	backend  backend

	play     func(context.Context, audio.Clip) error
	loadFile func(path string) (audio.Clip, error)

	cueMu sync.Mutex
	cues  map[cueKind]audio.Clip

	soundMu sync.Mutex
	wg      sync.WaitGroup
}

// New builds a notifier from config. The backend is "hypr" or "desktop".
func New(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	var b backend = hyprBackend{}
	if strings.EqualFold(strings.TrimSpace(cfg.Backend), "desktop") {
		b = newDesktopBackend(cfg.DesktopAppName)
	}
	return &Notifier{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv().withOverrides(cfg.TextListening, cfg.TextError),
		backend:  b,
		play: func(ctx context.Context, clip audio.Clip) error {
			return audio.Play(ctx, clip, "colloquy indicator cue")
		},
		loadFile: decodeCueFile,
		cues:     make(map[cueKind]audio.Clip),
	}
}

// ShowListening shows the persistent listening notice.
func (n *Notifier) ShowListening(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.backend.notify(ctx, 1, listeningTimeout, listeningColor, n.messages.listening)
	})
}

// ShowError replaces any notice with a short-lived error. Empty text uses
// the configured default.
func (n *Notifier) ShowError(ctx context.Context, text string) {
	if !n.cfg.Enable {
		return
	}
	if strings.TrimSpace(text) == "" {
		text = n.messages.errorText
	}
	timeout := n.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = defaultErrorMS
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.backend.notify(ctx, 3, timeout, errorColor, text)
	})
}

func (n *Notifier) CueStart(context.Context) { n.playCue(cueStart) }
func (n *Notifier) CueStop(context.Context)  { n.playCue(cueStop) }
func (n *Notifier) CueError(context.Context) { n.playCue(cueError) }

// Hide dismisses the active notice.
func (n *Notifier) Hide(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, n.backend.dismiss)
}

// Wait blocks until queued cues have finished playing.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// run executes a backend call with a bounded timeout. Failures are logged
// and never reach the session.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback off the caller's goroutine.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.soundMu.Lock()
		defer n.soundMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), cueTimeout)
		defer cancel()
		if err := n.play(ctx, n.cue(kind)); err != nil {
			n.log("indicator audio cue failed", err, "cue", kind.String())
		}
	}()
}

// cue resolves a configured file once, falling back to the built-in tone.
func (n *Notifier) cue(kind cueKind) audio.Clip {
	n.cueMu.Lock()
	defer n.cueMu.Unlock()
	if clip, ok := n.cues[kind]; ok {
		return clip
	}

	clip := synthCue(kind)
	if path := cuePath(kind, n.cfg); path != "" {
		loaded, err := n.loadFile(path)
		if err != nil {
			n.log("indicator cue file unusable; using built-in tone", err, "cue", kind.String(), "path", path)
		} else {
			clip = loaded
		}
	}
	n.cues[kind] = clip
	return clip
}

func (n *Notifier) log(message string, err error, attrs ...any) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, append([]any{"error", err.Error()}, attrs...)...)
}
