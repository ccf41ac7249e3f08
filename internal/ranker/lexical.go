package ranker

import (
	"regexp"
	"strings"
)

var wordRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// WordSet returns the set of lower-cased word-character runs in text.
func WordSet(text string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(text), -1)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// Jaccard returns |a∩b| / |a∪b|, or 0 when both sets are empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for w := range small {
		if _, ok := large[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// DedupKey is the content prefix used to collapse near-duplicate chunks that
// survive across chunk boundaries.
func DedupKey(content string) string {
	const prefixRunes = 100
	normalized := strings.ToLower(strings.Join(strings.Fields(content), " "))
	r := []rune(normalized)
	if len(r) > prefixRunes {
		r = r[:prefixRunes]
	}
	return string(r)
}

// sameText compares two texts ignoring case and whitespace layout.
func sameText(a, b string) bool {
	return strings.EqualFold(strings.Join(strings.Fields(a), " "), strings.Join(strings.Fields(b), " "))
}
