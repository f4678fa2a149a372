// Package classify maps raw inbound text to a coarse dialog intent and
// provides the normalization shared with repeat detection.
package classify

import (
	"strings"
	"unicode"
)

// Intent is the coarse classification of an inbound message.
type Intent int

const (
	// Noise is text with no alphanumeric content (stickers, punctuation, empty).
	Noise Intent = iota
	// Greeting is the default bucket for anything that is neither noise nor a
	// question. Deliberately permissive: unmatched text lands here.
	Greeting
	// Question is long-enough text that reads like a question.
	Question
)

func (i Intent) String() string {
	switch i {
	case Noise:
		return "noise"
	case Question:
		return "question"
	default:
		return "greeting"
	}
}

// questionWords are interrogative tokens matched after normalization.
var questionWords = map[string]struct{}{
	"почему": {}, "как": {}, "что": {}, "где": {}, "когда": {},
	"зачем": {}, "куда": {}, "какой": {}, "какая": {}, "сколько": {},
	"why": {}, "how": {}, "what": {}, "where": {}, "when": {},
	"which": {}, "who": {}, "can": {},
}

// Classify buckets text into Noise, Question or Greeting.
// Question requires at least 4 words plus either a literal "?" or an
// interrogative token. Everything else that carries alphanumeric content
// is a Greeting.
func Classify(text string) Intent {
	trimmed := strings.TrimSpace(text)
	if Normalize(trimmed) == "" {
		return Noise
	}
	words := strings.Fields(trimmed)
	if len(words) >= 4 {
		if strings.Contains(trimmed, "?") {
			return Question
		}
		for _, w := range words {
			if _, ok := questionWords[Normalize(w)]; ok {
				return Question
			}
		}
	}
	return Greeting
}

// Normalize lowercases text and strips every rune that is not a letter or a
// digit. Two questions differing only in punctuation, case or whitespace
// normalize to the same fingerprint. Idempotent.
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TruncateMarker is appended to text cut by Truncate.
const TruncateMarker = "…"

// Truncate limits text to maxLen runes, preserving the prefix and appending
// the marker when anything was cut. Trailing whitespace before the marker is
// dropped.
func Truncate(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return strings.TrimRight(string(runes[:maxLen]), " \t\n") + TruncateMarker
}
