// Package ipc carries control commands to the process that owns the session.
package ipc

import (
	"bufio"
	"fmt"
	"io"

	"github.com/bytedance/sonic"

	"github.com/rbright/colloquy/internal/transcript"
)

// Commands understood by the session owner.
const (
	CommandStatus     = "status"
	CommandAsk        = "ask"
	CommandMic        = "mic"
	CommandSpeaker    = "speaker"
	CommandClear      = "clear"
	CommandTranscript = "transcript"
)

// Request is one JSON line sent to the owner.
type Request struct {
	Command   string `json:"command"`
	Text      string `json:"text,omitempty"`
	Confirmed bool   `json:"confirmed,omitempty"`
}

// Response is the owner's single JSON line reply.
type Response struct {
	OK         bool                 `json:"ok"`
	State      string               `json:"state,omitempty"`
	Message    string               `json:"message,omitempty"`
	Error      string               `json:"error,omitempty"`
	Transcript []transcript.Message `json:"transcript,omitempty"`
}

// writeLine encodes v as one newline-terminated JSON document.
func writeLine(w io.Writer, v any) error {
	payload, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(append(payload, '\n'))
	return err
}

// readLine decodes one newline-terminated JSON document into v. what names
// the document in errors.
func readLine(r *bufio.Reader, v any, what string) error {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("read %s: %w", what, err)
	}
	if err := sonic.Unmarshal(line, v); err != nil {
		return fmt.Errorf("decode %s: %w", what, err)
	}
	return nil
}
