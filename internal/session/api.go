package session

import (
	"context"
	"fmt"

	"github.com/rbright/colloquy/internal/listen"
)

// Submit asks question. It returns the request ID once the question is in
// the transcript and input is disabled; the answer arrives asynchronously.
func (c *Controller) Submit(ctx context.Context, question string) (string, error) {
	r, err := c.post(ctx, request{kind: requestSubmit, text: question})
	if err != nil {
		return "", err
	}
	return r.id, r.err
}

// Ask submits question and blocks until it settles. It returns the
// assistant message appended for it and whether the service answered.
func (c *Controller) Ask(ctx context.Context, question string) (string, bool, error) {
	r, err := c.post(ctx, request{kind: requestSubmit, text: question})
	if err != nil {
		return "", false, err
	}
	if r.err != nil {
		return "", false, r.err
	}
	select {
	case outcome, ok := <-r.await:
		if !ok {
			return "", false, ErrStopped
		}
		return outcome.Content, !outcome.Failed, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

// OnSpeech is the speech input adapter's sink.
func (c *Controller) OnSpeech(signal listen.Signal) {
	c.notify(event{kind: eventSpeech, signal: signal})
}

// ToggleMic starts listening when idle and stops it otherwise. It reports
// whether a new session was requested.
func (c *Controller) ToggleMic(ctx context.Context) (bool, error) {
	r, err := c.post(ctx, request{kind: requestToggleMic})
	if err != nil {
		return false, err
	}
	return r.on, r.err
}

// ToggleSpeaker flips speech output and returns the new setting.
func (c *Controller) ToggleSpeaker(ctx context.Context) (bool, error) {
	r, err := c.post(ctx, request{kind: requestToggleSpeaker})
	if err != nil {
		return false, err
	}
	return r.on, nil
}

// ClearTranscript asks the Confirmer, then wipes the history. The prompt runs
// on the caller's goroutine so the loop keeps serving settlements meanwhile.
func (c *Controller) ClearTranscript(ctx context.Context) error {
	ok, err := c.confirmer.Confirm(ctx, ClearPrompt)
	if err != nil {
		return fmt.Errorf("confirm clear: %w", err)
	}
	if !ok {
		return ErrDeclined
	}
	return c.clearConfirmed(ctx)
}

func (c *Controller) clearConfirmed(ctx context.Context) error {
	_, err := c.post(ctx, request{kind: requestClear})
	return err
}

// Snapshot returns a copy of the session state.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	r, err := c.post(ctx, request{kind: requestSnapshot})
	if err != nil {
		return Snapshot{}, err
	}
	return r.snapshot, nil
}
