package listen

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/colloquy/internal/fsm"
)

type fakeRecognizer struct {
	mu       sync.Mutex
	emit     Emit
	startErr error
	stops    int
}

func (f *fakeRecognizer) Start(_ context.Context, emit Emit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.emit = emit
	return nil
}

func (f *fakeRecognizer) Stop() error {
	f.mu.Lock()
	f.stops++
	emit := f.emit
	f.mu.Unlock()
	if emit != nil {
		emit(Event{Kind: EventEnd})
	}
	return nil
}

func (f *fakeRecognizer) send(ev Event) {
	f.mu.Lock()
	emit := f.emit
	f.mu.Unlock()
	emit(ev)
}

type recordedSignals struct {
	mu      sync.Mutex
	signals []Signal
}

func (r *recordedSignals) sink(s Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
}

func (r *recordedSignals) kinds() []SignalKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SignalKind, 0, len(r.signals))
	for _, s := range r.signals {
		out = append(out, s.Kind)
	}
	return out
}

func TestStartWithoutRecognizerIsUnsupported(t *testing.T) {
	a := New(nil, nil, nil)
	require.False(t, a.Supported())
	require.ErrorIs(t, a.Start(context.Background()), ErrUnsupported)
	require.ErrorIs(t, a.Stop(), ErrUnsupported)
}

func TestListeningBeginsOnlyAfterStartEvent(t *testing.T) {
	rec := &fakeRecognizer{}
	var got recordedSignals
	a := New(rec, got.sink, nil)

	require.NoError(t, a.Start(context.Background()))
	require.Equal(t, fsm.MicStarting, a.State())
	require.False(t, a.Listening())

	rec.send(Event{Kind: EventStart})
	require.True(t, a.Listening())
	require.Equal(t, []SignalKind{SignalStarted}, got.kinds())
}

func TestStartWhileActiveIsBusy(t *testing.T) {
	rec := &fakeRecognizer{}
	a := New(rec, nil, nil)

	require.NoError(t, a.Start(context.Background()))
	require.ErrorIs(t, a.Start(context.Background()), ErrBusy)
}

func TestOnlyFirstResultIsDelivered(t *testing.T) {
	rec := &fakeRecognizer{}
	var got recordedSignals
	a := New(rec, got.sink, nil)

	require.NoError(t, a.Start(context.Background()))
	rec.send(Event{Kind: EventStart})
	rec.send(Event{Kind: EventResult, Transcript: "  who is watson  "})
	rec.send(Event{Kind: EventResult, Transcript: "second"})
	rec.send(Event{Kind: EventEnd})

	require.Equal(t, []SignalKind{SignalStarted, SignalTranscript, SignalEnded}, got.kinds())
	require.Equal(t, "who is watson", got.signals[1].Text)
	require.Equal(t, fsm.MicIdle, a.State())
}

func TestEmptyResultIsIgnored(t *testing.T) {
	rec := &fakeRecognizer{}
	var got recordedSignals
	a := New(rec, got.sink, nil)

	require.NoError(t, a.Start(context.Background()))
	rec.send(Event{Kind: EventStart})
	rec.send(Event{Kind: EventResult, Transcript: "   "})
	rec.send(Event{Kind: EventEnd})

	require.Equal(t, []SignalKind{SignalStarted, SignalEnded}, got.kinds())
}

func TestErrorCodesMapToNotices(t *testing.T) {
	cases := map[string]string{
		CodeNoSpeech:     NoticeNoSpeech,
		CodeNotAllowed:   NoticeNotAllowed,
		CodeNetwork:      "Speech recognition error: network",
		CodeAudioCapture: "Speech recognition error: audio-capture",
	}
	for code, notice := range cases {
		t.Run(code, func(t *testing.T) {
			rec := &fakeRecognizer{}
			var got recordedSignals
			a := New(rec, got.sink, nil)

			require.NoError(t, a.Start(context.Background()))
			rec.send(Event{Kind: EventStart})
			rec.send(Event{Kind: EventError, Code: code})
			require.Equal(t, fsm.MicError, a.State())
			rec.send(Event{Kind: EventEnd})

			require.Equal(t, []SignalKind{SignalStarted, SignalFailure, SignalEnded}, got.kinds())
			require.Equal(t, notice, got.signals[1].Notice)
			require.Equal(t, code, got.signals[1].Code)
			require.Equal(t, fsm.MicIdle, a.State())
		})
	}
}

func TestSynchronousStartFailureEndsSession(t *testing.T) {
	rec := &fakeRecognizer{startErr: errors.New("device busy")}
	var got recordedSignals
	a := New(rec, got.sink, nil)

	err := a.Start(context.Background())
	require.Error(t, err)
	require.Equal(t, []SignalKind{SignalFailure, SignalEnded}, got.kinds())
	require.Equal(t, NoticeStartFailed, got.signals[0].Notice)
	require.Equal(t, fsm.MicIdle, a.State())

	rec.startErr = nil
	require.NoError(t, a.Start(context.Background()))
}

func TestStopEndsWithoutError(t *testing.T) {
	rec := &fakeRecognizer{}
	var got recordedSignals
	a := New(rec, got.sink, nil)

	require.NoError(t, a.Start(context.Background()))
	rec.send(Event{Kind: EventStart})
	require.NoError(t, a.Stop())

	require.Equal(t, []SignalKind{SignalStarted, SignalEnded}, got.kinds())
	require.Equal(t, 1, rec.stops)
	require.Equal(t, fsm.MicIdle, a.State())
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	rec := &fakeRecognizer{}
	a := New(rec, nil, nil)
	require.NoError(t, a.Stop())
	require.Zero(t, rec.stops)
}

func TestStaleSessionEventsAreIgnored(t *testing.T) {
	rec := &fakeRecognizer{}
	var got recordedSignals
	a := New(rec, got.sink, nil)

	require.NoError(t, a.Start(context.Background()))
	stale := rec.emit
	rec.send(Event{Kind: EventEnd})

	require.NoError(t, a.Start(context.Background()))
	stale(Event{Kind: EventStart})
	stale(Event{Kind: EventResult, Transcript: "late"})
	require.Equal(t, fsm.MicStarting, a.State())
	require.Equal(t, []SignalKind{SignalEnded}, got.kinds())
}
