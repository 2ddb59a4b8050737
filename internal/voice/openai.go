package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rbright/colloquy/internal/audio"
)

// openAISampleRate is the rate of the service's raw pcm response format.
const openAISampleRate = 24000

type speechClient interface {
	CreateSpeech(ctx context.Context, request openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// OpenAIOptions configures the hosted speech engine.
type OpenAIOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	Voice      string
	HTTPClient *http.Client
}

// OpenAI synthesizes speech through the hosted audio/speech endpoint.
type OpenAI struct {
	client speechClient
	model  string
	voice  string
}

// NewOpenAI builds the hosted engine. It fails fast without an API key.
func NewOpenAI(opts OpenAIOptions) (*OpenAI, error) {
	if opts.APIKey == "" {
		return nil, errors.New("openai api key is not set")
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: opts.Model, voice: opts.Voice}, nil
}

// Voices returns the fixed voice catalog. Every voice is multilingual; they
// are tagged en-US.
func (o *OpenAI) Voices(context.Context) ([]Voice, error) {
	names := []openai.SpeechVoice{
		openai.VoiceAlloy, openai.VoiceAsh, openai.VoiceBallad, openai.VoiceCoral, openai.VoiceEcho,
		openai.VoiceFable, openai.VoiceOnyx, openai.VoiceNova, openai.VoiceShimmer, openai.VoiceVerse,
	}
	voices := make([]Voice, 0, len(names))
	for _, name := range names {
		voices = append(voices, Voice{Name: string(name), Lang: "en-US"})
	}
	return voices, nil
}

// Synthesize requests raw 24kHz PCM. Pitch has no service equivalent and is
// ignored.
func (o *OpenAI) Synthesize(ctx context.Context, text string, params Params) (audio.Clip, error) {
	voice := params.Voice
	if voice == "" {
		voice = o.voice
	}

	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
		Speed:          min(max(params.Rate, 0.25), 4.0),
	})
	if err != nil {
		return audio.Clip{}, fmt.Errorf("create speech: %w", err)
	}
	defer resp.Close()

	raw, err := io.ReadAll(resp)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("read speech: %w", err)
	}

	clip := audio.Clip{Samples: audio.PCM16LE(raw), SampleRate: openAISampleRate}
	if params.Volume != 1 {
		clip = audio.Scale(clip, params.Volume)
	}
	return clip, nil
}
