package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	API       *jsoncAPI       `json:"api"`
	Chat      *jsoncChat      `json:"chat"`
	Audio     *jsoncAudio     `json:"audio"`
	Listen    *jsoncListen    `json:"listen"`
	Speak     *jsoncSpeak     `json:"speak"`
	Indicator *jsoncIndicator `json:"indicator"`
	Log       *jsoncLog       `json:"log"`
	Debug     *jsoncDebug     `json:"debug"`
}

type jsoncAPI struct {
	BaseURL       *string `json:"base_url"`
	Dataset       *string `json:"dataset"`
	InitTimeoutMS *int    `json:"init_timeout_ms"`
	AskTimeoutMS  *int    `json:"ask_timeout_ms"`
	SOCKSProxy    *string `json:"socks_proxy"`
}

type jsoncChat struct {
	Welcome        *string          `json:"welcome"`
	UserLabel      *string          `json:"user_label"`
	AssistantLabel *string          `json:"assistant_label"`
	Examples       *jsoncStringList `json:"examples"`
}

type jsoncAudio struct {
	Input    *string `json:"input"`
	Fallback *string `json:"fallback"`
}

type jsoncListen struct {
	Enable              *bool   `json:"enable"`
	URL                 *string `json:"url"`
	Model               *string `json:"model"`
	Language            *string `json:"language"`
	APIKeyEnv           *string `json:"api_key_env"`
	SmartFormat         *bool   `json:"smart_format"`
	EndpointingMS       *int    `json:"endpointing_ms"`
	NoSpeechTimeoutMS   *int    `json:"no_speech_timeout_ms"`
	MaxUtteranceMS      *int    `json:"max_utterance_ms"`
	CapitalizeSentences *bool   `json:"capitalize_sentences"`
	QuestionMark        *bool   `json:"question_mark"`
}

type jsoncSpeak struct {
	Enable          *bool            `json:"enable"`
	Backend         *string          `json:"backend"`
	Command         *string          `json:"command"`
	VoicesCommand   *string          `json:"voices_command"`
	Locale          *string          `json:"locale"`
	PreferredVoices *jsoncStringList `json:"preferred_voices"`
	Rate            *float64         `json:"rate"`
	Pitch           *float64         `json:"pitch"`
	Volume          *float64         `json:"volume"`
	OpenAIModel     *string          `json:"openai_model"`
	OpenAIVoice     *string          `json:"openai_voice"`
	OpenAIAPIKeyEnv *string          `json:"openai_api_key_env"`
	OpenAIBaseURL   *string          `json:"openai_base_url"`
}

type jsoncIndicator struct {
	Enable         *bool   `json:"enable"`
	Backend        *string `json:"backend"`
	DesktopAppName *string `json:"desktop_app_name"`
	SoundEnable    *bool   `json:"sound_enable"`
	SoundStartFile *string `json:"sound_start_file"`
	SoundStopFile  *string `json:"sound_stop_file"`
	SoundErrorFile *string `json:"sound_error_file"`
	TextListening  *string `json:"text_listening"`
	TextError      *string `json:"text_error"`
	ErrorTimeoutMS *int    `json:"error_timeout_ms"`
}

type jsoncLog struct {
	Level   *string `json:"level"`
	Console *bool   `json:"console"`
}

type jsoncDebug struct {
	AudioDump  *bool `json:"audio_dump"`
	StreamDump *bool `json:"stream_dump"`
}

// jsoncStringList accepts either a string array or one comma-delimited string.
type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = trimNonEmpty(list)
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = trimNonEmpty(strings.Split(single, ","))
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func trimNonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseJSONC(content string, base Config, overrides Overrides) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}
	overrides.applyTo(&cfg)

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setCommand(dst *CommandConfig, src *string, key string) error {
	if src == nil {
		return nil
	}
	argv, err := parseArgv(*src)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = CommandConfig{Raw: *src, Argv: argv}
	return nil
}

func (payload jsoncConfig) applyTo(cfg *Config) error {
	if api := payload.API; api != nil {
		setString(&cfg.API.BaseURL, api.BaseURL)
		setString(&cfg.API.Dataset, api.Dataset)
		setInt(&cfg.API.InitTimeoutMS, api.InitTimeoutMS)
		setInt(&cfg.API.AskTimeoutMS, api.AskTimeoutMS)
		setString(&cfg.API.SOCKSProxy, api.SOCKSProxy)
	}

	if chat := payload.Chat; chat != nil {
		setString(&cfg.Chat.Welcome, chat.Welcome)
		setString(&cfg.Chat.UserLabel, chat.UserLabel)
		setString(&cfg.Chat.AssistantLabel, chat.AssistantLabel)
		if chat.Examples != nil {
			cfg.Chat.Examples = []string(*chat.Examples)
		}
	}

	if audio := payload.Audio; audio != nil {
		// Device names can carry meaningful whitespace; keep them verbatim.
		if audio.Input != nil {
			cfg.Audio.Input = *audio.Input
		}
		if audio.Fallback != nil {
			cfg.Audio.Fallback = *audio.Fallback
		}
	}

	if listen := payload.Listen; listen != nil {
		setBool(&cfg.Listen.Enable, listen.Enable)
		setString(&cfg.Listen.URL, listen.URL)
		setString(&cfg.Listen.Model, listen.Model)
		setString(&cfg.Listen.Language, listen.Language)
		setString(&cfg.Listen.APIKeyEnv, listen.APIKeyEnv)
		setBool(&cfg.Listen.SmartFormat, listen.SmartFormat)
		setInt(&cfg.Listen.EndpointingMS, listen.EndpointingMS)
		setInt(&cfg.Listen.NoSpeechTimeoutMS, listen.NoSpeechTimeoutMS)
		setInt(&cfg.Listen.MaxUtteranceMS, listen.MaxUtteranceMS)
		setBool(&cfg.Listen.CapitalizeSentences, listen.CapitalizeSentences)
		setBool(&cfg.Listen.QuestionMark, listen.QuestionMark)
	}

	if speak := payload.Speak; speak != nil {
		setBool(&cfg.Speak.Enable, speak.Enable)
		if speak.Backend != nil {
			cfg.Speak.Backend = strings.ToLower(strings.TrimSpace(*speak.Backend))
		}
		if err := setCommand(&cfg.Speak.Command, speak.Command, "speak.command"); err != nil {
			return err
		}
		if err := setCommand(&cfg.Speak.VoicesCommand, speak.VoicesCommand, "speak.voices_command"); err != nil {
			return err
		}
		setString(&cfg.Speak.Locale, speak.Locale)
		if speak.PreferredVoices != nil {
			cfg.Speak.PreferredVoices = []string(*speak.PreferredVoices)
		}
		setFloat(&cfg.Speak.Rate, speak.Rate)
		setFloat(&cfg.Speak.Pitch, speak.Pitch)
		setFloat(&cfg.Speak.Volume, speak.Volume)
		setString(&cfg.Speak.OpenAIModel, speak.OpenAIModel)
		setString(&cfg.Speak.OpenAIVoice, speak.OpenAIVoice)
		setString(&cfg.Speak.OpenAIAPIKeyEnv, speak.OpenAIAPIKeyEnv)
		setString(&cfg.Speak.OpenAIBaseURL, speak.OpenAIBaseURL)
	}

	if ind := payload.Indicator; ind != nil {
		setBool(&cfg.Indicator.Enable, ind.Enable)
		setString(&cfg.Indicator.Backend, ind.Backend)
		setString(&cfg.Indicator.DesktopAppName, ind.DesktopAppName)
		setBool(&cfg.Indicator.SoundEnable, ind.SoundEnable)
		setString(&cfg.Indicator.SoundStartFile, ind.SoundStartFile)
		setString(&cfg.Indicator.SoundStopFile, ind.SoundStopFile)
		setString(&cfg.Indicator.SoundErrorFile, ind.SoundErrorFile)
		setString(&cfg.Indicator.TextListening, ind.TextListening)
		setString(&cfg.Indicator.TextError, ind.TextError)
		setInt(&cfg.Indicator.ErrorTimeoutMS, ind.ErrorTimeoutMS)
	}

	if log := payload.Log; log != nil {
		if log.Level != nil {
			cfg.Log.Level = strings.ToLower(strings.TrimSpace(*log.Level))
		}
		setBool(&cfg.Log.Console, log.Console)
	}

	if debug := payload.Debug; debug != nil {
		setBool(&cfg.Debug.EnableAudioDump, debug.AudioDump)
		setBool(&cfg.Debug.EnableStreamDump, debug.StreamDump)
	}

	return nil
}

// normalizeJSONC blanks comments and drops trailing commas in one pass.
// Byte offsets are preserved so decode errors still point at the source.
func normalizeJSONC(content string) (string, error) {
	out := []byte(content)
	inString, escaped := false, false
	lastComma := -1

	for i := 0; i < len(out); i++ {
		ch := out[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch {
		case ch == '"':
			inString = true
			lastComma = -1
		case ch == '/' && i+1 < len(out) && out[i+1] == '/':
			for i < len(out) && out[i] != '\n' && out[i] != '\r' {
				out[i] = ' '
				i++
			}
		case ch == '/' && i+1 < len(out) && out[i+1] == '*':
			end := strings.Index(content[i+2:], "*/")
			if end < 0 {
				return "", errors.New("unterminated block comment in JSONC")
			}
			stop := i + 2 + end + 2
			for ; i < stop; i++ {
				if out[i] != '\n' && out[i] != '\r' && out[i] != '\t' {
					out[i] = ' '
				}
			}
			i--
		case ch == ',':
			lastComma = i
		case ch == '}' || ch == ']':
			if lastComma >= 0 {
				out[lastComma] = ' '
			}
			lastComma = -1
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
		default:
			lastComma = -1
		}
	}

	return string(out), nil
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var offset int64
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	default:
		return err
	}

	line, col := offsetToLineCol(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	prefix := content[:min(int(offset), len(content))]
	if len(prefix) > 0 {
		prefix = prefix[:len(prefix)-1]
	}
	line := strings.Count(prefix, "\n") + 1
	col := len(prefix) - strings.LastIndex(prefix, "\n")
	return line, col
}
