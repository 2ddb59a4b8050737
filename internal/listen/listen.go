// Package listen turns recognizer lifecycle events into single-utterance
// speech input signals for the session controller.
package listen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/rbright/colloquy/internal/fsm"
)

var (
	// ErrUnsupported reports that no recognizer capability is available.
	ErrUnsupported = errors.New("speech recognition not available")
	// ErrBusy reports a Start while a session is already in progress.
	ErrBusy = errors.New("speech recognition already active")
)

// Recognizer error codes.
const (
	CodeNoSpeech     = "no-speech"
	CodeNotAllowed   = "not-allowed"
	CodeAudioCapture = "audio-capture"
	CodeNetwork      = "network"
	// CodeServiceNotAllowed means the recognition service refused the credentials.
	CodeServiceNotAllowed = "service-not-allowed"
)

// Notices shown for recognizer failures.
const (
	NoticeNoSpeech    = "No speech detected. Please try again."
	NoticeNotAllowed  = "Microphone access denied."
	NoticeUnsupported = "Speech recognition not available."
	NoticeStartFailed = "Could not start speech recognition."
)

// EventKind is a recognizer lifecycle step.
type EventKind int

const (
	EventStart EventKind = iota + 1
	EventResult
	EventError
	EventEnd
)

// Event is one lifecycle callback from a Recognizer.
type Event struct {
	Kind       EventKind
	Transcript string
	Code       string
}

// Emit delivers recognizer events for one session.
type Emit func(Event)

// Recognizer is the platform speech capability. Start begins one listening
// session and must eventually emit EventEnd exactly once unless it returns an
// error. Stop asks the active session to finish.
type Recognizer interface {
	Start(ctx context.Context, emit Emit) error
	Stop() error
}

// SignalKind is what the controller hears from the adapter.
type SignalKind int

const (
	SignalStarted SignalKind = iota + 1
	SignalTranscript
	SignalFailure
	SignalEnded
)

// Signal is one adapter notification.
type Signal struct {
	Kind   SignalKind
	Text   string
	Code   string
	Notice string
}

// Sink receives adapter signals. It is called without internal locks held.
type Sink func(Signal)

// Adapter owns the speech input state machine.
type Adapter struct {
	logger *slog.Logger
	rec    Recognizer
	sink   Sink

	mu        sync.Mutex
	state     fsm.MicState
	session   uint64
	delivered bool
}

// New wraps rec. A nil rec yields an adapter that reports ErrUnsupported.
func New(rec Recognizer, sink Sink, logger *slog.Logger) *Adapter {
	if sink == nil {
		sink = func(Signal) {}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{logger: logger, rec: rec, sink: sink, state: fsm.MicIdle}
}

// Supported reports whether a recognizer is wired.
func (a *Adapter) Supported() bool {
	return a.rec != nil
}

// State returns the current speech input phase.
func (a *Adapter) State() fsm.MicState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Listening reports whether the recognizer confirmed it is capturing.
func (a *Adapter) Listening() bool {
	return a.State() == fsm.MicListening
}

// Start requests a new listening session. Listening begins only after the
// recognizer reports its start event.
func (a *Adapter) Start(ctx context.Context) error {
	if a.rec == nil {
		return ErrUnsupported
	}

	a.mu.Lock()
	next, err := fsm.TransitionMic(a.state, fsm.MicEventRequest)
	if err != nil {
		a.mu.Unlock()
		return ErrBusy
	}
	a.state = next
	a.session++
	a.delivered = false
	id := a.session
	a.mu.Unlock()

	if err := a.rec.Start(ctx, func(ev Event) { a.handle(id, ev) }); err != nil {
		a.logger.Error("speech recognition start failed", "error", err)
		a.handle(id, Event{Kind: EventError, Code: "start"})
		a.handle(id, Event{Kind: EventEnd})
		return fmt.Errorf("start recognizer: %w", err)
	}
	return nil
}

// Stop ends the active session. The reset to idle happens on the end event.
func (a *Adapter) Stop() error {
	if a.rec == nil {
		return ErrUnsupported
	}
	if a.State() == fsm.MicIdle {
		return nil
	}
	return a.rec.Stop()
}

func (a *Adapter) handle(id uint64, ev Event) {
	a.mu.Lock()
	if id != a.session {
		a.mu.Unlock()
		return
	}

	var signal *Signal
	switch ev.Kind {
	case EventStart:
		if a.advance(fsm.MicEventStart) {
			signal = &Signal{Kind: SignalStarted}
		}
	case EventResult:
		text := strings.TrimSpace(ev.Transcript)
		if a.state == fsm.MicListening && !a.delivered && text != "" && a.advance(fsm.MicEventResult) {
			a.delivered = true
			signal = &Signal{Kind: SignalTranscript, Text: text}
		}
	case EventError:
		if a.advance(fsm.MicEventError) {
			signal = &Signal{Kind: SignalFailure, Code: ev.Code, Notice: noticeFor(ev.Code)}
		}
	case EventEnd:
		a.advance(fsm.MicEventEnd)
		a.session++
		signal = &Signal{Kind: SignalEnded}
	}
	a.mu.Unlock()

	if signal != nil {
		a.sink(*signal)
	}
}

// advance applies event under a.mu and reports whether it was valid.
func (a *Adapter) advance(event fsm.MicEvent) bool {
	next, err := fsm.TransitionMic(a.state, event)
	if err != nil {
		a.logger.Debug("ignored speech event", "state", a.state, "event", event)
		return false
	}
	a.state = next
	return true
}

func noticeFor(code string) string {
	switch code {
	case CodeNoSpeech:
		return NoticeNoSpeech
	case CodeNotAllowed:
		return NoticeNotAllowed
	case "start":
		return NoticeStartFailed
	default:
		return "Speech recognition error: " + code
	}
}
