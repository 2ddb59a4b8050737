package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rbright/colloquy/internal/config"
	"github.com/rbright/colloquy/internal/indicator"
	"github.com/rbright/colloquy/internal/listen"
	"github.com/rbright/colloquy/internal/pipeline"
	"github.com/rbright/colloquy/internal/qa"
	"github.com/rbright/colloquy/internal/session"
	"github.com/rbright/colloquy/internal/speak"
	"github.com/rbright/colloquy/internal/voice"
)

// sessionParts is one owned session and the background workers to drain
// before exit.
type sessionParts struct {
	controller *session.Controller
	speaker    *speak.Adapter
	recognizer *pipeline.Recognizer
	notifier   *indicator.Notifier
}

func (p sessionParts) wait() {
	p.speaker.Wait()
	if p.recognizer != nil {
		p.recognizer.Wait()
	}
	p.notifier.Wait()
}

func buildSession(cfg config.Config, logger *slog.Logger, view session.View, confirmer session.Confirmer, stderr io.Writer) (sessionParts, error) {
	asker, err := newAsker(cfg.API)
	if err != nil {
		return sessionParts{}, err
	}

	engine, err := newVoiceEngine(cfg.Speak)
	if err != nil {
		fmt.Fprintf(stderr, "warning: speech output unavailable: %v\n", err)
		logger.Warn("speech output unavailable", "backend", cfg.Speak.Backend, "error", err.Error())
		engine = nil
	}

	parts := sessionParts{
		speaker:  newSpeaker(cfg.Speak, engine, logger),
		notifier: indicator.New(cfg.Indicator, logger),
	}
	parts.controller = session.NewController(session.Deps{
		Logger:    logger,
		Asker:     asker,
		View:      view,
		Indicator: parts.notifier,
		Confirmer: confirmer,
		Speaker:   parts.speaker,
	})

	var rec listen.Recognizer
	if cfg.Listen.Enable {
		parts.recognizer = pipeline.New(cfg, logger)
		rec = parts.recognizer
	}
	parts.controller.AttachListener(listen.New(rec, parts.controller.OnSpeech, logger))
	return parts, nil
}

func newAsker(cfg config.APIConfig) (*qa.Client, error) {
	return qa.NewClient(qa.Options{
		BaseURL:     cfg.BaseURL,
		Dataset:     cfg.Dataset,
		InitTimeout: time.Duration(cfg.InitTimeoutMS) * time.Millisecond,
		AskTimeout:  time.Duration(cfg.AskTimeoutMS) * time.Millisecond,
		SOCKSProxy:  cfg.SOCKSProxy,
	})
}

// newVoiceEngine returns nil for the "none" backend.
func newVoiceEngine(cfg config.SpeakConfig) (voice.Engine, error) {
	switch cfg.Backend {
	case "espeak":
		return voice.NewEspeak(cfg.Command.Argv, cfg.VoicesCommand.Argv), nil
	case "openai":
		engine, err := voice.NewOpenAI(voice.OpenAIOptions{
			APIKey:  os.Getenv(cfg.OpenAIAPIKeyEnv),
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Voice:   cfg.OpenAIVoice,
		})
		if err != nil {
			return nil, err
		}
		return engine, nil
	default:
		return nil, nil
	}
}

func newSpeaker(cfg config.SpeakConfig, engine voice.Engine, logger *slog.Logger) *speak.Adapter {
	return speak.New(engine, speak.Options{
		Enabled: cfg.Enable,
		Policy:  speakPolicy(cfg),
		Rate:    cfg.Rate,
		Pitch:   cfg.Pitch,
		Volume:  cfg.Volume,
	}, logger)
}
