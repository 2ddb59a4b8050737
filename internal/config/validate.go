package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	base, err := url.Parse(strings.TrimSpace(cfg.API.BaseURL))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("api.base_url must be an absolute http(s) URL")
	}
	if strings.TrimSpace(cfg.API.Dataset) == "" {
		return nil, fmt.Errorf("api.dataset must not be empty")
	}
	if strings.Contains(cfg.API.Dataset, "/") {
		return nil, fmt.Errorf("api.dataset must not contain '/'")
	}
	if cfg.API.InitTimeoutMS <= 0 {
		return nil, fmt.Errorf("api.init_timeout_ms must be > 0")
	}
	if cfg.API.AskTimeoutMS <= 0 {
		return nil, fmt.Errorf("api.ask_timeout_ms must be > 0")
	}

	if cfg.Listen.Enable {
		listenURL, err := url.Parse(cfg.Listen.URL)
		if err != nil || (listenURL.Scheme != "ws" && listenURL.Scheme != "wss") {
			return nil, fmt.Errorf("listen.url must be a ws:// or wss:// URL")
		}
		if strings.TrimSpace(cfg.Listen.Language) == "" {
			return nil, fmt.Errorf("listen.language must not be empty")
		}
		if cfg.Listen.NoSpeechTimeoutMS <= 0 {
			return nil, fmt.Errorf("listen.no_speech_timeout_ms must be > 0")
		}
		if cfg.Listen.MaxUtteranceMS < cfg.Listen.NoSpeechTimeoutMS {
			return nil, fmt.Errorf("listen.max_utterance_ms must be >= listen.no_speech_timeout_ms")
		}
		if cfg.Listen.EndpointingMS < 0 {
			return nil, fmt.Errorf("listen.endpointing_ms must be >= 0")
		}
		if strings.TrimSpace(cfg.Listen.APIKeyEnv) == "" {
			warnings = append(warnings, Warning{Message: "listen.api_key_env is empty; the recognizer will connect without credentials"})
		}
	}

	switch cfg.Speak.Backend {
	case "espeak":
		if len(cfg.Speak.Command.Argv) == 0 {
			return nil, fmt.Errorf("speak.command must not be empty when speak.backend=espeak")
		}
	case "openai":
		if strings.TrimSpace(cfg.Speak.OpenAIModel) == "" {
			return nil, fmt.Errorf("speak.openai_model must not be empty when speak.backend=openai")
		}
	case "none":
	default:
		return nil, fmt.Errorf("speak.backend must be one of: espeak, openai, none")
	}
	if cfg.Speak.Rate <= 0 || cfg.Speak.Rate > 10 {
		return nil, fmt.Errorf("speak.rate must be within (0, 10]")
	}
	if cfg.Speak.Pitch < 0 || cfg.Speak.Pitch > 2 {
		return nil, fmt.Errorf("speak.pitch must be within [0, 2]")
	}
	if cfg.Speak.Volume < 0 || cfg.Speak.Volume > 1 {
		return nil, fmt.Errorf("speak.volume must be within [0, 1]")
	}
	if strings.TrimSpace(cfg.Speak.Locale) == "" {
		warnings = append(warnings, Warning{Message: "speak.locale is empty; any voice language will match"})
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Indicator.Backend))
	if backend == "" {
		return nil, fmt.Errorf("indicator.backend must not be empty")
	}
	if backend != "hypr" && backend != "desktop" {
		return nil, fmt.Errorf("indicator.backend must be one of: hypr, desktop")
	}
	if backend == "desktop" && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	seen := make(map[string]struct{}, len(cfg.Chat.Examples))
	for _, example := range cfg.Chat.Examples {
		if _, dup := seen[example]; dup {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("chat.examples lists %q more than once", example)})
		}
		seen[example] = struct{}{}
	}

	return warnings, nil
}
