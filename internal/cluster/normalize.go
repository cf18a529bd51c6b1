package cluster

import (
	"strings"
	"unicode"
)

// stopwords are dropped from titles before comparison. They carry no
// signal about which physical object a detection refers to.
var stopwords = map[string]bool{
	"a":      true,
	"an":     true,
	"the":    true,
	"item":   true,
	"object": true,
}

// NormalizeTitle lowercases a title, strips punctuation, and drops
// stopwords. The result is a single-space-joined token string, possibly
// empty. Normalization is idempotent: applying it twice yields the same
// string as applying it once.
func NormalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			// Punctuation becomes a separator so "coffee-mug" splits
			// into two tokens rather than fusing into "coffeemug".
			b.WriteRune(' ')
		}
	}

	fields := strings.Fields(b.String())
	kept := fields[:0]
	for _, f := range fields {
		if !stopwords[f] {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}

// Levenshtein returns the edit distance between two strings, counting
// insertions, deletions, and substitutions. It operates on runes, not
// bytes.
func Levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// tokenOverlap returns the number of shared tokens between two normalized
// titles and the larger of the two unique-token counts. Both sides are
// treated as sets, so a repeated token never dilutes the ratio.
func tokenOverlap(a, b string) (shared, maxTokens int) {
	setA := make(map[string]bool)
	for _, tok := range strings.Fields(a) {
		setA[tok] = true
	}
	setB := make(map[string]bool)
	for _, tok := range strings.Fields(b) {
		setB[tok] = true
	}

	for tok := range setB {
		if setA[tok] {
			shared++
		}
	}

	maxTokens = len(setA)
	if len(setB) > maxTokens {
		maxTokens = len(setB)
	}
	return shared, maxTokens
}
