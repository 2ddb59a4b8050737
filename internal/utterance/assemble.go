// Package utterance turns recognized speech segments into one question string.
package utterance

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Options controls utterance assembly formatting behavior.
type Options struct {
	CapitalizeSentences bool
	// QuestionMark appends "?" when the text opens with an interrogative word
	// and has no terminal punctuation.
	QuestionMark bool
}

var (
	pronounIPattern = regexp.MustCompile(`\bi(['’](?:m|d|ll|ve|re|s))?\b`)

	interrogatives = map[string]struct{}{
		"are": {}, "can": {}, "could": {}, "did": {}, "do": {}, "does": {},
		"how": {}, "is": {}, "shall": {}, "should": {}, "was": {}, "were": {},
		"what": {}, "when": {}, "where": {}, "which": {}, "who": {}, "whom": {},
		"whose": {}, "why": {}, "will": {}, "would": {},
	}
)

// Assemble joins final recognizer segments and applies configured normalization.
func Assemble(segments []string, opts Options) string {
	if len(segments) == 0 {
		return ""
	}

	normalized := strings.Join(strings.Fields(strings.Join(segments, " ")), " ")
	if normalized == "" {
		return ""
	}

	if opts.CapitalizeSentences {
		normalized = capitalizeSentences(normalized)
	}
	if opts.QuestionMark && looksLikeQuestion(normalized) {
		normalized += "?"
	}
	return normalized
}

func capitalizeSentences(text string) string {
	runes := []rune(text)
	capitalize := true
	for i, r := range runes {
		switch {
		case capitalize && unicode.IsLetter(r):
			runes[i] = unicode.ToUpper(r)
			capitalize = false
		case capitalize && unicode.IsDigit(r):
			capitalize = false
		case r == '.' || r == '!' || r == '?':
			// "3.5" and "e.g" do not open a sentence.
			capitalize = i+1 >= len(runes) || unicode.IsSpace(runes[i+1])
		}
	}

	return pronounIPattern.ReplaceAllStringFunc(string(runes), func(match string) string {
		return "I" + match[1:]
	})
}

func looksLikeQuestion(text string) bool {
	last, _ := utf8.DecodeLastRuneInString(text)
	if unicode.IsPunct(last) {
		return false
	}

	first := strings.ToLower(strings.TrimFunc(strings.Fields(text)[0], func(r rune) bool {
		return !unicode.IsLetter(r)
	}))
	_, ok := interrogatives[first]
	return ok
}
