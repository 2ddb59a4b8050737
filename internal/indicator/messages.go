package indicator

import (
	"os"
	"strings"
)

type locale string

const (
	localeEnglish locale = "en"
)

type messages struct {
	listening string
	errorText string
}

func indicatorMessagesFromEnv() messages {
	return indicatorMessages(resolveLocale(os.Getenv("LANG")))
}

// resolveLocale only knows English today; other locales fall back to it.
func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "en") {
		return localeEnglish
	}
	return localeEnglish
}

func indicatorMessages(tag locale) messages {
	switch tag {
	case localeEnglish:
		fallthrough
	default:
		return messages{
			listening: "Listening…",
			errorText: "Speech recognition error",
		}
	}
}

// withOverrides applies non-empty configured texts.
func (m messages) withOverrides(listening, errorText string) messages {
	if text := strings.TrimSpace(listening); text != "" {
		m.listening = text
	}
	if text := strings.TrimSpace(errorText); text != "" {
		m.errorText = text
	}
	return m
}
