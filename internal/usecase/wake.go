package usecase

import (
	"strings"
	"unicode"
)

// DefaultWakePhrases are accepted when none are configured.
var DefaultWakePhrases = []string{"assistant", "hey assistant", "ok assistant"}

// DefaultStopWords end command listening without routing the utterance.
var DefaultStopWords = []string{"stop", "stop it"}

// wakeMatcher accumulates final wake-mode transcripts and checks them for
// any accepted phrase by substring containment.
type wakeMatcher struct {
	phrases []string
	finals  []string
}

func newWakeMatcher(phrases []string) *wakeMatcher {
	m := &wakeMatcher{}
	m.SetPhrases(phrases)
	return m
}

func (m *wakeMatcher) SetPhrases(phrases []string) {
	normalized := make([]string, 0, len(phrases))
	for _, phrase := range phrases {
		if n := normalize(phrase); n != "" {
			normalized = append(normalized, n)
		}
	}
	if len(normalized) == 0 {
		for _, phrase := range DefaultWakePhrases {
			normalized = append(normalized, normalize(phrase))
		}
	}
	m.phrases = normalized
}

// Primary is the phrase users are told to say.
func (m *wakeMatcher) Primary() string {
	return m.phrases[0]
}

func (m *wakeMatcher) Add(text string) {
	if text = strings.TrimSpace(text); text != "" {
		m.finals = append(m.finals, text)
	}
}

// Transcript returns everything heard since the last reset.
func (m *wakeMatcher) Transcript() string {
	return strings.TrimSpace(strings.Join(m.finals, " "))
}

func (m *wakeMatcher) Matches() bool {
	heard := normalize(m.Transcript())
	if heard == "" {
		return false
	}
	for _, phrase := range m.phrases {
		if strings.Contains(heard, phrase) {
			return true
		}
	}
	return false
}

func (m *wakeMatcher) Reset() {
	m.finals = m.finals[:0]
}

// normalize lowercases text, turns punctuation into spaces and collapses
// whitespace.
func normalize(text string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		if r == '\'' {
			return -1
		}
		return ' '
	}, text)
	return strings.Join(strings.Fields(mapped), " ")
}

// cleanUtterance trims the text and drops a trailing period.
func cleanUtterance(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, ".")
	return strings.TrimSpace(text)
}

type stopWords map[string]struct{}

func newStopWords(words []string) stopWords {
	if len(words) == 0 {
		words = DefaultStopWords
	}
	set := make(stopWords, len(words))
	for _, w := range words {
		if n := normalize(w); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func (s stopWords) Match(text string) bool {
	_, ok := s[normalize(text)]
	return ok
}
