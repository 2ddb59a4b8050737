package session

import (
	"context"
	"fmt"

	"github.com/rbright/colloquy/internal/ipc"
)

// Handle serves control-channel commands for the owning session.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		snap, err := c.Snapshot(ctx)
		if err != nil {
			return ipc.Response{OK: false, Error: err.Error()}
		}
		return ipc.Response{OK: true, State: string(snap.State), Message: describe(snap)}
	case ipc.CommandTranscript:
		snap, err := c.Snapshot(ctx)
		if err != nil {
			return ipc.Response{OK: false, Error: err.Error()}
		}
		return ipc.Response{OK: true, State: string(snap.State), Transcript: snap.Messages}
	case ipc.CommandAsk:
		answer, ok, err := c.Ask(ctx, req.Text)
		if err != nil {
			return c.respondErr(ctx, err)
		}
		return c.respond(ctx, ok, answer)
	case ipc.CommandMic:
		started, err := c.ToggleMic(ctx)
		if err != nil {
			return c.respondErr(ctx, err)
		}
		if started {
			return c.respond(ctx, true, "listening requested")
		}
		return c.respond(ctx, true, "listening stopped")
	case ipc.CommandSpeaker:
		on, err := c.ToggleSpeaker(ctx)
		if err != nil {
			return c.respondErr(ctx, err)
		}
		if on {
			return c.respond(ctx, true, "speech output enabled")
		}
		return c.respond(ctx, true, "speech output disabled")
	case ipc.CommandClear:
		if !req.Confirmed {
			return c.respondErr(ctx, fmt.Errorf("%w: pass --yes to clear from another process", ErrDeclined))
		}
		if err := c.clearConfirmed(ctx); err != nil {
			return c.respondErr(ctx, err)
		}
		return c.respond(ctx, true, "transcript cleared")
	default:
		return c.respondErr(ctx, fmt.Errorf("unknown command: %s", req.Command))
	}
}

func (c *Controller) respond(ctx context.Context, ok bool, message string) ipc.Response {
	resp := ipc.Response{OK: ok, State: c.stateName(ctx)}
	if ok {
		resp.Message = message
	} else {
		resp.Error = message
	}
	return resp
}

func (c *Controller) respondErr(ctx context.Context, err error) ipc.Response {
	return ipc.Response{OK: false, State: c.stateName(ctx), Error: err.Error()}
}

func (c *Controller) stateName(ctx context.Context) string {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return ""
	}
	return string(snap.State)
}

func describe(snap Snapshot) string {
	if snap.Failure != "" {
		return snap.Failure
	}
	return fmt.Sprintf("dataset=%s messages=%d pending=%t listening=%t speaker=%t",
		snap.Dataset, len(snap.Messages), snap.Pending, snap.Listening, snap.Speaker)
}
