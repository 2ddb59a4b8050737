package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rbright/colloquy/internal/fsm"
	"github.com/rbright/colloquy/internal/listen"
	"github.com/rbright/colloquy/internal/qa"
	"github.com/rbright/colloquy/internal/transcript"
)

type requestKind int

const (
	requestSubmit requestKind = iota + 1
	requestToggleMic
	requestToggleSpeaker
	requestClear
	requestSnapshot
)

type request struct {
	kind  requestKind
	text  string
	reply chan reply
}

type reply struct {
	id       string
	on       bool
	snapshot Snapshot
	await    <-chan askOutcome
	err      error
}

type eventKind int

const (
	eventInitSettled eventKind = iota + 1
	eventAskSettled
	eventSpeech
)

type event struct {
	kind   eventKind
	id     string
	answer string
	stats  qa.Stats
	err    error
	signal listen.Signal
}

// askOutcome is the assistant message that settled one submission.
type askOutcome struct {
	Content string
	Failed  bool
}

// Run initializes the session and serves events until ctx ends.
func (c *Controller) Run(ctx context.Context) error {
	started := false
	c.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("session already running")
	}
	defer close(c.done)

	c.view.ShowLoading(c.asker.Dataset())
	c.view.SetInputEnabled(false)
	c.view.SetSpeaker(c.speaker.Enabled())
	go c.initialize(ctx)

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case req := <-c.requests:
			req.reply <- c.serve(ctx, req)
		case <-c.wake:
			for _, ev := range c.drainInbox() {
				c.dispatch(ctx, ev)
			}
		}
	}
}

func (c *Controller) shutdown() {
	if c.listening {
		_ = c.listener.Stop()
	}
	c.speaker.SetEnabled(false)
	for id, ch := range c.waiters {
		close(ch)
		delete(c.waiters, id)
	}
}

// post hands a request to the loop and waits for its reply.
func (c *Controller) post(ctx context.Context, req request) (reply, error) {
	req.reply = make(chan reply, 1)
	select {
	case c.requests <- req:
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case <-c.done:
		return reply{}, ErrStopped
	}
	select {
	case r := <-req.reply:
		return r, nil
	case <-c.done:
		return reply{}, ErrStopped
	}
}

// notify queues an event for the loop without ever blocking the caller.
func (c *Controller) notify(ev event) {
	c.inboxMu.Lock()
	c.inbox = append(c.inbox, ev)
	c.inboxMu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) drainInbox() []event {
	c.inboxMu.Lock()
	defer c.inboxMu.Unlock()
	events := c.inbox
	c.inbox = nil
	return events
}

func (c *Controller) serve(ctx context.Context, req request) reply {
	switch req.kind {
	case requestSubmit:
		id, err := c.submit(ctx, req.text)
		return reply{id: id, await: c.waiters[id], err: err}
	case requestToggleMic:
		on, err := c.toggleMic(ctx)
		return reply{on: on, err: err}
	case requestToggleSpeaker:
		on := !c.speaker.Enabled()
		c.speaker.SetEnabled(on)
		c.view.SetSpeaker(on)
		c.logger.Info("speech output toggled", "enabled", on)
		return reply{on: on}
	case requestClear:
		c.store.Reset()
		c.view.ShowWelcome()
		c.logger.Info("transcript cleared")
		return reply{}
	case requestSnapshot:
		return reply{snapshot: c.snapshot()}
	default:
		return reply{err: fmt.Errorf("unknown request %d", req.kind)}
	}
}

func (c *Controller) dispatch(ctx context.Context, ev event) {
	switch ev.kind {
	case eventInitSettled:
		c.onInitSettled(ev)
	case eventAskSettled:
		c.onAskSettled(ev)
	case eventSpeech:
		c.onSpeech(ctx, ev.signal)
	default:
		c.logger.Warn("unknown session event", "kind", ev.kind)
	}
}

func (c *Controller) transition(event fsm.Event) {
	next, err := fsm.Transition(c.state, event)
	if err != nil {
		c.logger.Warn("session transition rejected", "error", err)
		return
	}
	c.state = next
}

func (c *Controller) initialize(ctx context.Context) {
	var (
		stats qa.Stats
		err   error
	)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("initialize panicked", "panic", r)
			stats, err = nil, fmt.Errorf("%w: %v", qa.ErrInternal, r)
		}
		c.notify(event{kind: eventInitSettled, stats: stats, err: err})
	}()
	stats, err = c.asker.Initialize(ctx)
}

func (c *Controller) onInitSettled(ev event) {
	defer close(c.initialized)

	if ev.err != nil {
		c.transition(fsm.EventFail)
		var apiErr *qa.APIError
		if errors.As(ev.err, &apiErr) {
			c.failure = "Failed to initialize system: " + apiErr.Error()
		} else {
			c.failure = "Error initializing system: " + qa.Reason(ev.err)
		}
		c.logger.Error("initialization failed", "dataset", c.asker.Dataset(), "error", ev.err)
		c.view.ShowFatal(c.failure)
		return
	}

	c.stats = ev.stats
	c.transition(fsm.EventInitialized)
	c.inputEnabled = true
	c.logger.Info("initialization complete", "dataset", c.asker.Dataset(), "stats", len(ev.stats))
	c.view.ShowDashboard(c.asker.Dataset(), ev.stats)
	if c.store.Len() == 0 {
		c.view.ShowWelcome()
	}
	c.view.SetInputEnabled(true)
}

func (c *Controller) submit(ctx context.Context, text string) (string, error) {
	question := strings.TrimSpace(text)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	if c.state != fsm.StateReady {
		c.logger.Debug("submission dropped", "state", c.state)
		return "", fmt.Errorf("%w (%s)", ErrNotReady, c.state)
	}

	c.appendMessage(transcript.RoleUser, question)
	c.view.SetInput("")
	c.view.ShowPending(true)

	c.inputEnabled = false
	c.transition(fsm.EventSubmit)
	c.view.SetInputEnabled(false)

	id := uuid.NewString()
	c.pendingID = id
	c.waiters[id] = make(chan askOutcome, 1)
	c.logger.Info("question submitted", "request_id", id, "chars", len(question))

	go c.ask(ctx, id, question)
	return id, nil
}

func (c *Controller) ask(ctx context.Context, id string, question string) {
	var (
		answer string
		err    error
	)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("ask panicked", "request_id", id, "panic", r)
			answer, err = "", fmt.Errorf("%w: %v", qa.ErrInternal, r)
		}
		c.notify(event{kind: eventAskSettled, id: id, answer: answer, err: err})
	}()
	answer, err = c.asker.Ask(ctx, question)
}

func (c *Controller) onAskSettled(ev event) {
	if ev.id == "" || ev.id != c.pendingID {
		c.logger.Debug("stale answer ignored", "request_id", ev.id)
		return
	}
	defer c.release()

	c.view.ShowPending(false)

	outcome := askOutcome{Content: ev.answer}
	if ev.err != nil {
		c.logger.Warn("question failed", "request_id", ev.id, "error", ev.err)
		outcome = askOutcome{Content: "Sorry, I encountered an error: " + qa.Reason(ev.err), Failed: true}
		c.appendMessage(transcript.RoleAssistant, outcome.Content)
	} else {
		c.logger.Info("question answered", "request_id", ev.id, "chars", len(ev.answer))
		c.appendMessage(transcript.RoleAssistant, ev.answer)
		c.speaker.Speak(ev.answer)
	}

	if ch, ok := c.waiters[ev.id]; ok {
		ch <- outcome
		close(ch)
		delete(c.waiters, ev.id)
	}
}

// release ends the submission scope. It runs on every settlement path.
func (c *Controller) release() {
	c.pendingID = ""
	c.inputEnabled = true
	c.transition(fsm.EventSettled)
	c.view.SetInputEnabled(true)
}

func (c *Controller) toggleMic(ctx context.Context) (bool, error) {
	if !c.listener.Supported() {
		c.view.Notice(listen.NoticeUnsupported)
		return false, listen.ErrUnsupported
	}
	if c.listening {
		return false, c.listener.Stop()
	}

	err := c.listener.Start(ctx)
	switch {
	case errors.Is(err, listen.ErrBusy):
		// A start is still in flight; a second toggle abandons it.
		return false, c.listener.Stop()
	case err != nil:
		c.logger.Warn("speech input start failed", "error", err)
		return false, err
	}
	return true, nil
}

func (c *Controller) onSpeech(ctx context.Context, signal listen.Signal) {
	switch signal.Kind {
	case listen.SignalStarted:
		c.listening = true
		c.view.SetListening(true)
		c.indicator.CueStart(ctx)
		c.indicator.ShowListening(ctx)
	case listen.SignalTranscript:
		c.logger.Info("speech recognized", "chars", len(signal.Text))
		if c.state == fsm.StatePending {
			c.logger.Info("recognized speech dropped while an answer is pending", "request_id", c.pendingID)
			c.view.Notice(NoticeBusy)
			return
		}
		c.view.SetInput(signal.Text)
		if _, err := c.submit(ctx, signal.Text); err != nil {
			c.logger.Debug("recognized speech not submitted", "error", err)
		}
	case listen.SignalFailure:
		c.logger.Warn("speech input failed", "code", signal.Code)
		c.view.Notice(signal.Notice)
		c.indicator.CueError(ctx)
		c.indicator.ShowError(ctx, signal.Notice)
	case listen.SignalEnded:
		wasListening := c.listening
		c.listening = false
		c.view.SetListening(false)
		if wasListening {
			c.indicator.CueStop(ctx)
			c.indicator.Hide(ctx)
		}
	}
}

func (c *Controller) appendMessage(role transcript.Role, content string) {
	msg := transcript.NewMessage(role, content, c.now())
	c.store.Append(msg)
	c.view.AppendMessage(msg)
}

func (c *Controller) snapshot() Snapshot {
	stats := make(qa.Stats, len(c.stats))
	for k, v := range c.stats {
		stats[k] = v
	}
	return Snapshot{
		State:        c.state,
		Dataset:      c.asker.Dataset(),
		Stats:        stats,
		InputEnabled: c.inputEnabled,
		Pending:      c.pendingID != "",
		Listening:    c.listening,
		Speaker:      c.speaker.Enabled(),
		Failure:      c.failure,
		Messages:     c.store.Messages(),
	}
}
