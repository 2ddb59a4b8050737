package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/colloquy/internal/listen"
	"github.com/rbright/colloquy/internal/qa"
	"github.com/rbright/colloquy/internal/transcript"
)

type fakeAsker struct {
	stats   qa.Stats
	initErr error
	ask     func(ctx context.Context, question string) (string, error)

	mu        sync.Mutex
	questions []string
}

func (f *fakeAsker) Dataset() string { return "sherlock" }

func (f *fakeAsker) Initialize(context.Context) (qa.Stats, error) {
	return f.stats, f.initErr
}

func (f *fakeAsker) Ask(ctx context.Context, question string) (string, error) {
	f.mu.Lock()
	f.questions = append(f.questions, question)
	f.mu.Unlock()
	if f.ask == nil {
		return "An answer.", nil
	}
	return f.ask(ctx, question)
}

func (f *fakeAsker) asked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.questions...)
}

type fakeView struct {
	mu           sync.Mutex
	fatal        string
	dashboard    qa.Stats
	messages     []transcript.Message
	pending      bool
	input        string
	inputEnabled bool
	listening    bool
	speaker      bool
	notices      []string
	welcomes     int
}

func (v *fakeView) ShowLoading(string) {}

func (v *fakeView) ShowDashboard(_ string, stats qa.Stats) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dashboard = stats
}

func (v *fakeView) ShowFatal(message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fatal = message
}

func (v *fakeView) ShowWelcome() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.welcomes++
	v.messages = nil
}

func (v *fakeView) AppendMessage(msg transcript.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages = append(v.messages, msg)
}

func (v *fakeView) ShowPending(on bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending = on
}

func (v *fakeView) SetInput(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.input = text
}

func (v *fakeView) SetInputEnabled(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.inputEnabled = enabled
}

func (v *fakeView) SetListening(on bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listening = on
}

func (v *fakeView) SetSpeaker(on bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.speaker = on
}

func (v *fakeView) Notice(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notices = append(v.notices, text)
}

func (v *fakeView) noticeList() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.notices...)
}

type fakeIndicator struct {
	listening  atomic.Int32
	errors     atomic.Int32
	startCues  atomic.Int32
	stopCues   atomic.Int32
	errorCues  atomic.Int32
	hides      atomic.Int32
	lastErrMsg atomic.Value
}

func (f *fakeIndicator) ShowListening(context.Context) { f.listening.Add(1) }
func (f *fakeIndicator) ShowError(_ context.Context, msg string) {
	f.errors.Add(1)
	f.lastErrMsg.Store(msg)
}
func (f *fakeIndicator) CueStart(context.Context) { f.startCues.Add(1) }
func (f *fakeIndicator) CueStop(context.Context)  { f.stopCues.Add(1) }
func (f *fakeIndicator) CueError(context.Context) { f.errorCues.Add(1) }
func (f *fakeIndicator) Hide(context.Context)     { f.hides.Add(1) }

type fakeSpeaker struct {
	mu      sync.Mutex
	enabled bool
	spoken  []string
	toggles []bool
}

func (f *fakeSpeaker) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *fakeSpeaker) SetEnabled(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = on
	f.toggles = append(f.toggles, on)
}

func (f *fakeSpeaker) Speak(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enabled {
		f.spoken = append(f.spoken, text)
	}
}

func (f *fakeSpeaker) said() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

// fakeListener is a synchronous stand-in for listen.Adapter.
type fakeListener struct {
	mu        sync.Mutex
	supported bool
	active    bool
	startErr  error
	starts    int
	stops     int
	sink      listen.Sink
}

func (f *fakeListener) Supported() bool { return f.supported }

func (f *fakeListener) Listening() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeListener) Start(context.Context) error {
	f.mu.Lock()
	f.starts++
	err := f.startErr
	sink := f.sink
	f.mu.Unlock()
	if err != nil {
		sink(listen.Signal{Kind: listen.SignalFailure, Notice: listen.NoticeStartFailed})
		sink(listen.Signal{Kind: listen.SignalEnded})
		return err
	}
	return nil
}

func (f *fakeListener) Stop() error {
	f.mu.Lock()
	f.stops++
	f.active = false
	sink := f.sink
	f.mu.Unlock()
	sink(listen.Signal{Kind: listen.SignalEnded})
	return nil
}

func (f *fakeListener) emit(signal listen.Signal) {
	f.mu.Lock()
	if signal.Kind == listen.SignalStarted {
		f.active = true
	}
	sink := f.sink
	f.mu.Unlock()
	sink(signal)
}

type harness struct {
	ctrl      *Controller
	asker     *fakeAsker
	view      *fakeView
	indicator *fakeIndicator
	speaker   *fakeSpeaker
	listener  *fakeListener
	store     *transcript.Store
	cancel    context.CancelFunc
	runErr    chan error
}

type harnessOption func(*harness, *Deps)

func withConfirm(answer bool) harnessOption {
	return func(_ *harness, d *Deps) {
		d.Confirmer = ConfirmFunc(func(_ context.Context, prompt string) (bool, error) {
			if prompt != ClearPrompt {
				return false, nil
			}
			return answer, nil
		})
	}
}

func startHarness(t *testing.T, asker *fakeAsker, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		asker:     asker,
		view:      &fakeView{},
		indicator: &fakeIndicator{},
		speaker:   &fakeSpeaker{},
		listener:  &fakeListener{supported: true},
		store:     transcript.NewStore(),
		runErr:    make(chan error, 1),
	}
	deps := Deps{
		Asker:     asker,
		Store:     h.store,
		View:      h.view,
		Indicator: h.indicator,
		Speaker:   h.speaker,
		Now:       func() time.Time { return time.Date(2026, 3, 1, 21, 15, 0, 0, time.Local) },
	}
	for _, opt := range opts {
		opt(h, &deps)
	}

	h.ctrl = NewController(deps)
	h.listener.sink = h.ctrl.OnSpeech
	h.ctrl.AttachListener(h.listener)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.runErr <- h.ctrl.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.ctrl.Done()
	})

	select {
	case <-h.ctrl.Initialized():
	case <-time.After(2 * time.Second):
		t.Fatal("initialization did not settle")
	}
	return h
}

func (h *harness) snapshot(t *testing.T) Snapshot {
	t.Helper()
	snap, err := h.ctrl.Snapshot(context.Background())
	require.NoError(t, err)
	return snap
}

// waitSettled polls until no request is pending.
func (h *harness) waitSettled(t *testing.T) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		snap = h.snapshot(t)
		return !snap.Pending
	}, 2*time.Second, 5*time.Millisecond)
	return snap
}
