// Package pipeline wires microphone capture to the streaming recognizer and
// reports one utterance per listening session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/rbright/colloquy/internal/audio"
	"github.com/rbright/colloquy/internal/config"
	"github.com/rbright/colloquy/internal/deepgram"
	"github.com/rbright/colloquy/internal/listen"
	"github.com/rbright/colloquy/internal/logging"
	"github.com/rbright/colloquy/internal/utterance"
)

const defaultDrainTimeout = 2 * time.Second

type captureClient interface {
	Chunks() <-chan []byte
	Stop() error
	BytesCaptured() int64
	RawPCM() []byte
}

type streamClient interface {
	Events() <-chan deepgram.Event
	Err() error
	SendAudio(chunk []byte) error
	Finalize() error
	CloseSend() error
	Close() error
}

// Recognizer owns capture -> streaming ASR -> utterance sessions.
type Recognizer struct {
	cfg    config.Config
	logger *slog.Logger

	selectDevice func(context.Context, string, string) (audio.Selection, error)
	startCapture func(context.Context, audio.Device, audio.CaptureOptions) (captureClient, error)
	dialStream   func(context.Context, deepgram.Config) (streamClient, error)
	drainTimeout time.Duration

	mu     sync.Mutex
	active *run
}

type run struct {
	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func (r *run) stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// New constructs a recognizer backed by Pulse capture and a Deepgram stream.
func New(cfg config.Config, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recognizer{
		cfg:          cfg,
		logger:       logger,
		selectDevice: audio.SelectDevice,
		startCapture: func(ctx context.Context, device audio.Device, opts audio.CaptureOptions) (captureClient, error) {
			return audio.StartCapture(ctx, device, opts)
		},
		dialStream: func(ctx context.Context, cfg deepgram.Config) (streamClient, error) {
			return deepgram.Dial(ctx, cfg)
		},
		drainTimeout: defaultDrainTimeout,
	}
}

// Start begins one listening session in the background. Lifecycle events
// arrive through emit, ending with exactly one listen.EventEnd.
func (r *Recognizer) Start(ctx context.Context, emit listen.Emit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return fmt.Errorf("recognizer already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	current := &run{
		cancel: cancel,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	r.active = current

	go r.listen(runCtx, current, emit)
	return nil
}

// Stop asks the active session to flush final results and finish.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	current := r.active
	r.mu.Unlock()

	if current != nil {
		current.stop()
	}
	return nil
}

// Wait blocks until the active session, if any, has fully shut down.
func (r *Recognizer) Wait() {
	r.mu.Lock()
	current := r.active
	r.mu.Unlock()

	if current != nil {
		<-current.done
	}
}

func (r *Recognizer) listen(ctx context.Context, current *run, emit listen.Emit) {
	defer func() {
		current.cancel()
		r.mu.Lock()
		if r.active == current {
			r.active = nil
		}
		r.mu.Unlock()
		emit(listen.Event{Kind: listen.EventEnd})
		close(current.done)
	}()

	selection, err := r.selectDevice(ctx, r.cfg.Audio.Input, r.cfg.Audio.Fallback)
	if err != nil {
		r.logger.Error("audio device selection failed", "error", err)
		emit(listen.Event{Kind: listen.EventError, Code: deviceErrorCode(err)})
		return
	}
	if selection.Warning != "" {
		r.logger.Warn(selection.Warning)
	}

	var dump *os.File
	if r.cfg.Debug.EnableStreamDump {
		if dump, err = createDebugFile("stream", "jsonl"); err != nil {
			r.logger.Warn("unable to create stream dump", "error", err)
		}
	}
	defer func() {
		if dump != nil {
			_ = dump.Close()
		}
	}()

	stream, err := r.dialStream(ctx, r.streamConfig(dump))
	if err != nil {
		r.logger.Error("speech stream dial failed", "error", err)
		emit(listen.Event{Kind: listen.EventError, Code: dialErrorCode(err)})
		return
	}
	defer func() { _ = stream.Close() }()

	capture, err := r.startCapture(ctx, selection.Device, audio.CaptureOptions{KeepRaw: r.cfg.Debug.EnableAudioDump})
	if err != nil {
		r.logger.Error("audio capture failed", "error", err, "device", describeDevice(selection.Device))
		emit(listen.Event{Kind: listen.EventError, Code: listen.CodeAudioCapture})
		return
	}

	emit(listen.Event{Kind: listen.EventStart})
	started := time.Now()

	sendErrCh := make(chan error, 1)
	go sendLoop(capture, stream, sendErrCh)

	text, code := r.collect(ctx, current, stream, sendErrCh)

	_ = capture.Stop()
	r.writeDebugAudio(capture.RawPCM())

	r.logger.Info("speech session finished",
		"device", describeDevice(selection.Device),
		"bytes_captured", capture.BytesCaptured(),
		"elapsed_ms", time.Since(started).Milliseconds(),
		"heard", text != "",
		"error_code", code,
	)

	switch {
	case code != "":
		emit(listen.Event{Kind: listen.EventError, Code: code})
	case text != "":
		emit(listen.Event{Kind: listen.EventResult, Transcript: text})
	}
}

// collect consumes stream events until one utterance completes. It returns
// the assembled text or a recognizer error code.
func (r *Recognizer) collect(ctx context.Context, current *run, stream streamClient, sendErrCh <-chan error) (string, string) {
	noSpeech := time.NewTimer(time.Duration(r.cfg.Listen.NoSpeechTimeoutMS) * time.Millisecond)
	defer noSpeech.Stop()
	maxUtterance := time.NewTimer(time.Duration(r.cfg.Listen.MaxUtteranceMS) * time.Millisecond)
	defer maxUtterance.Stop()

	var (
		segments []string
		heard    bool
		draining bool
		drainC   <-chan time.Time
		stopCh   = current.stopCh
	)

	assemble := func() string {
		return utterance.Assemble(segments, utterance.Options{
			CapitalizeSentences: r.cfg.Listen.CapitalizeSentences,
			QuestionMark:        r.cfg.Listen.QuestionMark,
		})
	}
	drain := func(reason string) {
		if draining {
			return
		}
		draining = true
		stopCh = nil
		r.logger.Debug("draining speech stream", "reason", reason)
		if err := stream.Finalize(); err != nil {
			r.logger.Debug("finalize failed", "error", err)
		}
		if err := stream.CloseSend(); err != nil {
			r.logger.Debug("close send failed", "error", err)
		}
		drainC = time.After(r.drainTimeout)
	}

	events := stream.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if err := stream.Err(); err != nil && !draining && len(segments) == 0 {
					r.logger.Error("speech stream closed", "error", err)
					return "", listen.CodeNetwork
				}
				return assemble(), ""
			}
			switch ev.Kind {
			case deepgram.EventSpeechStarted:
				heard = true
				noSpeech.Stop()
			case deepgram.EventResults:
				if strings.TrimSpace(ev.Transcript) == "" {
					break
				}
				heard = true
				noSpeech.Stop()
				if ev.IsFinal {
					segments = append(segments, ev.Transcript)
				}
				if (ev.SpeechFinal || ev.FromFinalize) && len(segments) > 0 {
					return assemble(), ""
				}
			case deepgram.EventUtteranceEnd:
				if len(segments) > 0 {
					return assemble(), ""
				}
			}
		case <-noSpeech.C:
			if !heard {
				return "", listen.CodeNoSpeech
			}
		case <-maxUtterance.C:
			drain("max utterance")
		case <-stopCh:
			drain("stop requested")
		case <-drainC:
			return assemble(), ""
		case err := <-sendErrCh:
			if err != nil {
				r.logger.Error("speech stream send failed", "error", err)
				return "", listen.CodeNetwork
			}
			sendErrCh = nil
		case <-ctx.Done():
			return "", ""
		}
	}
}

func (r *Recognizer) streamConfig(dump *os.File) deepgram.Config {
	cfg := deepgram.Config{
		URL:           r.cfg.Listen.URL,
		APIKey:        strings.TrimSpace(os.Getenv(r.cfg.Listen.APIKeyEnv)),
		Model:         r.cfg.Listen.Model,
		Language:      r.cfg.Listen.Language,
		SmartFormat:   r.cfg.Listen.SmartFormat,
		EndpointingMS: r.cfg.Listen.EndpointingMS,
		SampleRate:    audio.CaptureSampleRate,
	}
	if dump != nil {
		cfg.Dump = dump
	}
	return cfg
}

// sendLoop forwards capture chunks until capture stops, reporting the first
// send failure.
func sendLoop(capture captureClient, stream streamClient, errCh chan<- error) {
	for chunk := range capture.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		if err := stream.SendAudio(chunk); err != nil {
			_ = capture.Stop()
			errCh <- err
			return
		}
	}
	errCh <- nil
}

func deviceErrorCode(err error) string {
	if errors.Is(err, audio.ErrMuted) {
		return listen.CodeNotAllowed
	}
	return listen.CodeAudioCapture
}

func dialErrorCode(err error) string {
	if errors.Is(err, deepgram.ErrUnauthorized) {
		return listen.CodeServiceNotAllowed
	}
	return listen.CodeNetwork
}

// describeDevice formats device metadata for logs.
func describeDevice(device audio.Device) string {
	description := strings.TrimSpace(device.Description)
	id := strings.TrimSpace(device.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return fmt.Sprintf("%s (%s)", description, id)
}

// createDebugFile creates timestamped debug artifacts under the state debug dir.
func createDebugFile(prefix string, extension string) (*os.File, error) {
	stateDir, err := logging.StateDir()
	if err != nil {
		return nil, err
	}
	debugDir := filepath.Join(stateDir, "debug")
	if err := os.MkdirAll(debugDir, 0o700); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000")
	path := filepath.Join(debugDir, fmt.Sprintf("%s-%s.%s", prefix, timestamp, extension))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open debug file %q: %w", path, err)
	}
	return file, nil
}

// writeDebugAudio writes raw PCM to WAV when debug.audio_dump is enabled.
func (r *Recognizer) writeDebugAudio(rawPCM []byte) {
	if !r.cfg.Debug.EnableAudioDump || len(rawPCM) == 0 {
		return
	}

	file, err := createDebugFile("audio", "wav")
	if err != nil {
		r.logger.Warn("unable to create debug audio dump", "error", err)
		return
	}
	defer file.Close()

	if err := writePCM16WAV(file, rawPCM, audio.CaptureSampleRate); err != nil {
		r.logger.Warn("unable to write debug audio dump", "error", err)
	}
}

// writePCM16WAV encodes little-endian mono PCM as a WAV file.
func writePCM16WAV(w io.WriteSeeker, pcm []byte, sampleRate int) error {
	samples := audio.PCM16LE(pcm)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return enc.Close()
}
