// Package speak vocalizes answers, one utterance at a time.
package speak

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/rbright/colloquy/internal/audio"
	"github.com/rbright/colloquy/internal/voice"
)

// EnabledPhrase is spoken when output is switched on.
const EnabledPhrase = "Speech output enabled"

// VoicePolicy picks a voice: the language tag must start with Locale, and
// the name must contain one of Preferred. An empty Preferred matches any name.
type VoicePolicy struct {
	Locale    string
	Preferred []string
}

// Select returns the first voice satisfying the policy, or "" for the engine
// default.
func (p VoicePolicy) Select(voices []voice.Voice) string {
	for _, v := range voices {
		if !v.Matches(p.Locale) {
			continue
		}
		if len(p.Preferred) == 0 {
			return v.Name
		}
		name := strings.ToLower(v.Name)
		for _, want := range p.Preferred {
			if want = strings.ToLower(strings.TrimSpace(want)); want != "" && strings.Contains(name, want) {
				return v.Name
			}
		}
	}
	return ""
}

// Options configures an Adapter.
type Options struct {
	Enabled bool
	Policy  VoicePolicy
	Rate    float64
	Pitch   float64
	Volume  float64
}

// Adapter owns the enabled flag and the single in-flight utterance.
type Adapter struct {
	logger *slog.Logger
	engine voice.Engine
	opts   Options
	play   func(ctx context.Context, clip audio.Clip) error

	mu       sync.Mutex
	enabled  bool
	cancel   context.CancelFunc
	done     chan struct{}
	resolved bool
	voice    string
}

// New wraps engine. A nil engine makes every Speak a logged no-op.
func New(engine voice.Engine, opts Options, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		logger:  logger,
		engine:  engine,
		opts:    opts,
		enabled: opts.Enabled,
		play: func(ctx context.Context, clip audio.Clip) error {
			return audio.Play(ctx, clip, "colloquy answer")
		},
	}
}

// Supported reports whether a synthesizer is wired.
func (a *Adapter) Supported() bool {
	return a.engine != nil
}

// Enabled reports whether answers are spoken.
func (a *Adapter) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// SetEnabled flips output. Turning off cancels the in-flight utterance
// before returning; turning on announces itself.
func (a *Adapter) SetEnabled(on bool) {
	a.mu.Lock()
	a.enabled = on
	a.mu.Unlock()

	if !on {
		a.Cancel()
		return
	}
	a.Speak(EnabledPhrase)
}

// Speak starts vocalizing text in the background, replacing any utterance
// still playing.
func (a *Adapter) Speak(text string) {
	text = strings.TrimSpace(text)
	if text == "" || !a.Enabled() {
		return
	}
	if a.engine == nil {
		a.logger.Debug("speech output unavailable", "chars", len(text))
		return
	}

	a.mu.Lock()
	prevCancel, prevDone := a.cancel, a.done
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.cancel, a.done = cancel, done
	a.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}

	go func() {
		defer close(done)
		if prevDone != nil {
			<-prevDone
		}
		if ctx.Err() != nil {
			return
		}
		if err := a.say(ctx, text); err != nil && ctx.Err() == nil {
			a.logger.Warn("speech output failed", "error", err)
		}
	}()
}

// Cancel stops the in-flight utterance and waits for it to go quiet.
func (a *Adapter) Cancel() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Wait blocks until the current utterance finishes.
func (a *Adapter) Wait() {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Voices lists the engine's voices.
func (a *Adapter) Voices(ctx context.Context) ([]voice.Voice, error) {
	if a.engine == nil {
		return nil, nil
	}
	return a.engine.Voices(ctx)
}

func (a *Adapter) say(ctx context.Context, text string) error {
	clip, err := a.engine.Synthesize(ctx, text, voice.Params{
		Voice:  a.selectVoice(ctx),
		Rate:   a.opts.Rate,
		Pitch:  a.opts.Pitch,
		Volume: a.opts.Volume,
	})
	if err != nil {
		return err
	}
	return a.play(ctx, clip)
}

// selectVoice resolves the policy once; later calls reuse the result.
func (a *Adapter) selectVoice(ctx context.Context) string {
	a.mu.Lock()
	if a.resolved {
		defer a.mu.Unlock()
		return a.voice
	}
	a.mu.Unlock()

	voices, err := a.engine.Voices(ctx)
	if err != nil {
		a.logger.Debug("voice list unavailable", "error", err)
		return ""
	}
	selected := a.opts.Policy.Select(voices)

	a.mu.Lock()
	a.resolved, a.voice = true, selected
	a.mu.Unlock()
	a.logger.Debug("speech voice selected", "voice", selected, "candidates", len(voices))
	return selected
}
