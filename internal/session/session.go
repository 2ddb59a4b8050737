// Package session coordinates the question/answer conversation: readiness,
// the single pending request, speech input signals, and speech output.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/colloquy/internal/fsm"
	"github.com/rbright/colloquy/internal/listen"
	"github.com/rbright/colloquy/internal/qa"
	"github.com/rbright/colloquy/internal/transcript"
)

const (
	// ClearPrompt is the confirmation question shown before wiping history.
	ClearPrompt = "Are you sure you want to clear the chat history?"
	// NoticeBusy is shown when a question arrives while another is pending.
	NoticeBusy = "Please wait for the current answer."
)

var (
	// ErrEmptyQuestion reports a blank submission; nothing changes.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrNotReady reports a submission while loading, pending, or failed.
	ErrNotReady = errors.New("session is not ready for a question")
	// ErrStopped reports a request made after Run returned.
	ErrStopped = errors.New("session stopped")
	// ErrDeclined reports a clear the user did not confirm.
	ErrDeclined = errors.New("clear not confirmed")
)

// View is the rendering surface the controller drives.
type View interface {
	ShowLoading(dataset string)
	ShowDashboard(dataset string, stats qa.Stats)
	ShowFatal(message string)
	ShowWelcome()
	AppendMessage(msg transcript.Message)
	ShowPending(on bool)
	SetInput(text string)
	SetInputEnabled(enabled bool)
	SetListening(on bool)
	SetSpeaker(on bool)
	Notice(text string)
}

// Indicator is the session-facing subset of indicator behavior.
type Indicator interface {
	ShowListening(context.Context)
	ShowError(context.Context, string)
	CueStart(context.Context)
	CueStop(context.Context)
	CueError(context.Context)
	Hide(context.Context)
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Asker is the remote answering service.
type Asker interface {
	Dataset() string
	Initialize(ctx context.Context) (qa.Stats, error)
	Ask(ctx context.Context, question string) (string, error)
}

// Listener is the speech input adapter.
type Listener interface {
	Supported() bool
	Listening() bool
	Start(ctx context.Context) error
	Stop() error
}

// Speaker is the speech output adapter.
type Speaker interface {
	Enabled() bool
	SetEnabled(on bool)
	Speak(text string)
}

// Snapshot is a read-only copy of session state.
type Snapshot struct {
	State        fsm.State
	Dataset      string
	Stats        qa.Stats
	InputEnabled bool
	Pending      bool
	Listening    bool
	Speaker      bool
	Failure      string
	Messages     []transcript.Message
}

// Deps wires the controller's collaborators. Nil members fall back to no-ops
// except Asker, which is required.
type Deps struct {
	Logger    *slog.Logger
	Asker     Asker
	Store     *transcript.Store
	View      View
	Indicator Indicator
	Confirmer Confirmer
	Listener  Listener
	Speaker   Speaker
	Now       func() time.Time
}

type noopView struct{}

func (noopView) ShowLoading(string)               {}
func (noopView) ShowDashboard(string, qa.Stats)   {}
func (noopView) ShowFatal(string)                 {}
func (noopView) ShowWelcome()                     {}
func (noopView) AppendMessage(transcript.Message) {}
func (noopView) ShowPending(bool)                 {}
func (noopView) SetInput(string)                  {}
func (noopView) SetInputEnabled(bool)             {}
func (noopView) SetListening(bool)                {}
func (noopView) SetSpeaker(bool)                  {}
func (noopView) Notice(string)                    {}

type noopIndicator struct{}

func (noopIndicator) ShowListening(context.Context)     {}
func (noopIndicator) ShowError(context.Context, string) {}
func (noopIndicator) CueStart(context.Context)          {}
func (noopIndicator) CueStop(context.Context)           {}
func (noopIndicator) CueError(context.Context)          {}
func (noopIndicator) Hide(context.Context)              {}

type noopListener struct{}

func (noopListener) Supported() bool             { return false }
func (noopListener) Listening() bool             { return false }
func (noopListener) Start(context.Context) error { return listen.ErrUnsupported }
func (noopListener) Stop() error                 { return listen.ErrUnsupported }

type noopSpeaker struct{}

func (noopSpeaker) Enabled() bool   { return false }
func (noopSpeaker) SetEnabled(bool) {}
func (noopSpeaker) Speak(string)    {}

// Controller owns all session state. Every mutation happens on the Run
// goroutine; other goroutines only post events to it.
type Controller struct {
	logger    *slog.Logger
	asker     Asker
	store     *transcript.Store
	view      View
	indicator Indicator
	confirmer Confirmer
	listener  Listener
	speaker   Speaker
	now       func() time.Time

	requests chan request

	inboxMu sync.Mutex
	inbox   []event
	wake    chan struct{}

	initialized chan struct{}
	done        chan struct{}
	runOnce     sync.Once

	// Loop-owned state.
	state        fsm.State
	stats        qa.Stats
	failure      string
	inputEnabled bool
	pendingID    string
	listening    bool
	waiters      map[string]chan askOutcome
}

// NewController constructs a controller with safe default fallbacks.
func NewController(deps Deps) *Controller {
	c := &Controller{
		logger:      deps.Logger,
		asker:       deps.Asker,
		store:       deps.Store,
		view:        deps.View,
		indicator:   deps.Indicator,
		confirmer:   deps.Confirmer,
		listener:    deps.Listener,
		speaker:     deps.Speaker,
		now:         deps.Now,
		requests:    make(chan request),
		wake:        make(chan struct{}, 1),
		initialized: make(chan struct{}),
		done:        make(chan struct{}),
		state:       fsm.StateLoading,
		waiters:     make(map[string]chan askOutcome),
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.store == nil {
		c.store = transcript.NewStore()
	}
	if c.view == nil {
		c.view = noopView{}
	}
	if c.indicator == nil {
		c.indicator = noopIndicator{}
	}
	if c.confirmer == nil {
		c.confirmer = ConfirmFunc(func(context.Context, string) (bool, error) { return false, nil })
	}
	if c.listener == nil {
		c.listener = noopListener{}
	}
	if c.speaker == nil {
		c.speaker = noopSpeaker{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// AttachListener sets the speech input adapter. It must be called before Run;
// the adapter is usually built with OnSpeech as its sink.
func (c *Controller) AttachListener(l Listener) {
	if l != nil {
		c.listener = l
	}
}

// Initialized is closed once the startup initialize call has settled.
func (c *Controller) Initialized() <-chan struct{} {
	return c.initialized
}

// Done is closed when Run returns.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}
