// Package deepgram streams linear16 audio to a Deepgram-compatible listen
// websocket and decodes its transcript events.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// ErrUnauthorized reports a handshake rejected for missing or bad credentials.
var ErrUnauthorized = errors.New("listen endpoint rejected credentials")

// Config selects the endpoint and recognition options for one stream.
type Config struct {
	URL           string
	APIKey        string
	Model         string
	Language      string
	SmartFormat   bool
	EndpointingMS int
	SampleRate    int
	// Dump receives every raw server message when set.
	Dump io.Writer
}

// EventKind classifies a server message.
type EventKind string

const (
	EventResults       EventKind = "Results"
	EventSpeechStarted EventKind = "SpeechStarted"
	EventUtteranceEnd  EventKind = "UtteranceEnd"
	EventMetadata      EventKind = "Metadata"
)

// Event is one decoded server message.
type Event struct {
	Kind         EventKind
	Transcript   string
	IsFinal      bool
	SpeechFinal  bool
	FromFinalize bool
}

type resultsMessage struct {
	Type         string `json:"type"`
	IsFinal      bool   `json:"is_final"`
	SpeechFinal  bool   `json:"speech_final"`
	FromFinalize bool   `json:"from_finalize"`
	Channel      struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type controlMessage struct {
	Type string `json:"type"`
}

// Stream is one open listen session.
type Stream struct {
	conn   *websocket.Conn
	dump   io.Writer
	events chan Event

	writeMu sync.Mutex

	errMu   sync.Mutex
	readErr error

	closeOnce sync.Once
	done      chan struct{}
}

// Dial opens a listen session. The read loop starts immediately.
func Dial(ctx context.Context, cfg Config) (*Stream, error) {
	endpoint, err := BuildListenURL(cfg)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set("Authorization", "Token "+cfg.APIKey)
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w (status %d)", ErrUnauthorized, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial listen endpoint: %w", err)
	}

	s := &Stream{
		conn:   conn,
		dump:   cfg.Dump,
		events: make(chan Event, 32),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// BuildListenURL encodes recognition options as listen query parameters.
func BuildListenURL(cfg Config) (string, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse listen url: %w", err)
	}
	if base.Scheme != "ws" && base.Scheme != "wss" {
		return "", fmt.Errorf("listen url %q must use ws or wss", cfg.URL)
	}

	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 16000
	}

	q := base.Query()
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(rate))
	q.Set("channels", "1")
	q.Set("interim_results", "false")
	q.Set("vad_events", "true")
	q.Set("punctuate", "true")
	q.Set("smart_format", strconv.FormatBool(cfg.SmartFormat))
	if cfg.Model != "" {
		q.Set("model", cfg.Model)
	}
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	if cfg.EndpointingMS > 0 {
		q.Set("endpointing", strconv.Itoa(cfg.EndpointingMS))
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// Events delivers decoded messages until the server closes the stream.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Err returns the read error that ended Events, nil on a clean close.
func (s *Stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.readErr
}

// SendAudio writes one binary PCM frame.
func (s *Stream) SendAudio(chunk []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return fmt.Errorf("send audio: %w", err)
	}
	return nil
}

// Finalize asks the server to flush pending audio as final results.
func (s *Stream) Finalize() error {
	return s.sendControl("Finalize")
}

// CloseSend tells the server no more audio follows; it closes after final results.
func (s *Stream) CloseSend() error {
	return s.sendControl("CloseStream")
}

// KeepAlive holds an idle stream open.
func (s *Stream) KeepAlive() error {
	return s.sendControl("KeepAlive")
}

// Close tears down the connection without waiting for results.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *Stream) sendControl(kind string) error {
	msg, err := sonic.Marshal(controlMessage{Type: kind})
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("send %s: %w", kind, err)
	}
	return nil
}

func (s *Stream) readLoop() {
	defer close(s.events)

	for {
		msgType, payload, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					s.errMu.Lock()
					s.readErr = err
					s.errMu.Unlock()
				}
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if s.dump != nil {
			_, _ = s.dump.Write(append(payload, '\n'))
		}

		event, ok := decodeEvent(payload)
		if !ok {
			continue
		}
		select {
		case s.events <- event:
		case <-s.done:
			return
		}
	}
}

func decodeEvent(payload []byte) (Event, bool) {
	var msg resultsMessage
	if err := sonic.Unmarshal(payload, &msg); err != nil {
		return Event{}, false
	}

	switch EventKind(msg.Type) {
	case EventResults:
		event := Event{
			Kind:         EventResults,
			IsFinal:      msg.IsFinal,
			SpeechFinal:  msg.SpeechFinal,
			FromFinalize: msg.FromFinalize,
		}
		if len(msg.Channel.Alternatives) > 0 {
			event.Transcript = msg.Channel.Alternatives[0].Transcript
		}
		return event, true
	case EventSpeechStarted, EventUtteranceEnd, EventMetadata:
		return Event{Kind: EventKind(msg.Type)}, true
	default:
		return Event{}, false
	}
}
