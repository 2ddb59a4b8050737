package config

// DefaultWelcome is shown whenever the transcript is empty.
const DefaultWelcome = "Welcome! Ask a question about the loaded dataset, or type /help for commands."

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	speakCmd := "espeak-ng --stdout"
	voicesCmd := "espeak-ng --voices"

	return Config{
		API: APIConfig{
			BaseURL:       "http://127.0.0.1:5000",
			Dataset:       "sherlock",
			InitTimeoutMS: 300000,
			AskTimeoutMS:  90000,
		},
		Chat: ChatConfig{
			Welcome:        DefaultWelcome,
			UserLabel:      "You",
			AssistantLabel: "Assistant",
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Listen: ListenConfig{
			Enable:              true,
			URL:                 "wss://api.deepgram.com/v1/listen",
			Model:               "nova-2",
			Language:            "en-US",
			APIKeyEnv:           "DEEPGRAM_API_KEY",
			SmartFormat:         true,
			EndpointingMS:       500,
			NoSpeechTimeoutMS:   8000,
			MaxUtteranceMS:      30000,
			CapitalizeSentences: true,
			QuestionMark:        true,
		},
		Speak: SpeakConfig{
			Enable:          false,
			Backend:         "espeak",
			Command:         CommandConfig{Raw: speakCmd, Argv: mustParseArgv(speakCmd)},
			VoicesCommand:   CommandConfig{Raw: voicesCmd, Argv: mustParseArgv(voicesCmd)},
			Locale:          "en",
			Rate:            0.9,
			Pitch:           1.0,
			Volume:          1.0,
			OpenAIModel:     "tts-1",
			OpenAIVoice:     "alloy",
			OpenAIAPIKeyEnv: "OPENAI_API_KEY",
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        "desktop",
			DesktopAppName: "colloquy",
			SoundEnable:    true,
			ErrorTimeoutMS: 1600,
		},
		Log: LogConfig{
			Level: "info",
		},
		Debug: DebugConfig{},
	}
}
