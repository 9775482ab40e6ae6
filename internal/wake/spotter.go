package wake

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/triolabs/wakepc/internal/config"
)

// Confidence tiers for transcript-vs-keyword matches. Fuzzy matches are
// capped below the default threshold so a near-miss on one keyword cannot
// cross-trigger another at stock settings.
const (
	confExact      = 1.0
	confTrailing   = 0.9
	confAttention  = 0.85
	confInSentence = 0.8
	confFuzzyCap   = 0.75
)

// attentionWords are common lead-ins before a bare keyword ("hey penny").
var attentionWords = map[string]bool{
	"hey": true, "hi": true, "yo": true, "okay": true, "ok": true,
}

// spotter scores transcripts against a single wake word. Each spotter has
// its own threshold so every keyword gets an independent false-positive
// tradeoff.
type spotter struct {
	spec   config.WakeWordSpec
	phrase string
	tokens []string
}

func newSpotter(spec config.WakeWordSpec) (*spotter, error) {
	phrase := normalize(spec.Keyword)
	if phrase == "" {
		return nil, fmt.Errorf("keyword %q normalizes to nothing", spec.Keyword)
	}
	return &spotter{spec: spec, phrase: phrase, tokens: strings.Fields(phrase)}, nil
}

// score returns the match confidence of a normalized transcript against
// this spotter's keyword, 0 when there is no plausible match.
func (s *spotter) score(text string) float64 {
	if text == "" {
		return 0
	}
	if text == s.phrase {
		return confExact
	}

	tokens := strings.Fields(text)
	n, p := len(tokens), len(s.tokens)

	if n == p+1 && attentionWords[tokens[0]] && tokenEq(tokens[1:], s.tokens) {
		return confAttention
	}
	if n >= p && tokenEq(tokens[n-p:], s.tokens) {
		return confTrailing
	}
	for i := 0; i+p <= n; i++ {
		if tokenEq(tokens[i:i+p], s.tokens) {
			return confInSentence
		}
	}

	// Fuzzy fallback for short utterances that are probably a misheard
	// keyword ("penne" for "penny").
	if n <= p+1 {
		d := levenshtein(text, s.phrase)
		if d <= 2 && d < len(s.phrase) {
			conf := confFuzzyCap * (1 - float64(d)/float64(len(s.phrase)))
			return conf
		}
	}
	return 0
}

func tokenEq(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// normalize lowercases, strips everything but letters and digits, and
// collapses whitespace.
func normalize(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// levenshtein computes the edit distance between two strings using a
// single-row DP table.
func levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr := make([]int, lb+1)
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev = curr
	}
	return prev[lb]
}
