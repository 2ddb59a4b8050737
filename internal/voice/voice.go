// Package voice synthesizes answer text into PCM clips.
package voice

import (
	"context"
	"strings"

	"github.com/rbright/colloquy/internal/audio"
)

// Voice is one installed synthesis voice.
type Voice struct {
	Name string
	Lang string
}

// Matches reports whether the voice language begins with locale, ignoring case
// and the '-' vs '_' separator. An empty locale matches every voice.
func (v Voice) Matches(locale string) bool {
	locale = normalizeLang(locale)
	if locale == "" {
		return true
	}
	return strings.HasPrefix(normalizeLang(v.Lang), locale)
}

// Params are the prosody settings for one utterance. Rate, Pitch, and Volume
// are multipliers where 1 is the engine default.
type Params struct {
	Voice  string
	Rate   float64
	Pitch  float64
	Volume float64
}

// Engine lists voices and renders text to audio.
type Engine interface {
	Voices(ctx context.Context) ([]Voice, error)
	Synthesize(ctx context.Context, text string, params Params) (audio.Clip, error)
}

func normalizeLang(lang string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(lang), "_", "-"))
}
