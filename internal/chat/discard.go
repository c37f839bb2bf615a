// ABOUTME: Duplicate suppression heuristics for streamed agent text
// ABOUTME: Four rules ordered from cheapest/most precise to fuzziest

package chat

import (
	"strings"
	"unicode/utf8"
)

// Rule identifies which duplicate-suppression heuristic matched.
type Rule int

const (
	RuleNone Rule = iota
	RuleExactTail
	RuleNearTail
	RuleOpeningPhrase
	RuleFuzzyWindow
)

func (r Rule) String() string {
	switch r {
	case RuleExactTail:
		return "exact_tail"
	case RuleNearTail:
		return "near_tail"
	case RuleOpeningPhrase:
		return "opening_phrase"
	case RuleFuzzyWindow:
		return "fuzzy_window"
	default:
		return "none"
	}
}

// Thresholds are measured in runes.
const (
	nearTailMinLength    = 15
	nearTailMaxDistance  = 100
	openingPhraseWords   = 10
	openingPhraseMinLen  = 30
	openingPhraseMaxDist = 200
	fuzzyWindowSize      = 200
	fuzzyMinLength       = 30
	fuzzyThreshold       = 0.8
)

// ShouldDiscard reports whether text is a re-emission of content that is
// already at (or near) the end of existing. The first matching rule wins.
func ShouldDiscard(existing, text string) (bool, Rule) {
	last := strings.TrimSpace(existing)
	next := strings.TrimSpace(text)

	if strings.HasSuffix(last, next) {
		return true, RuleExactTail
	}

	if utf8.RuneCountInString(next) > nearTailMinLength {
		if d, ok := distanceFromEnd(last, next); ok && d < nearTailMaxDistance {
			return true, RuleNearTail
		}
	}

	if words := strings.Fields(next); len(words) > 0 {
		if len(words) > openingPhraseWords {
			words = words[:openingPhraseWords]
		}
		opening := strings.Join(words, " ")
		if utf8.RuneCountInString(opening) > openingPhraseMinLen {
			if d, ok := distanceFromEnd(last, opening); ok && d < openingPhraseMaxDist {
				return true, RuleOpeningPhrase
			}
		}
	}

	tail := lastRunes(last, fuzzyWindowSize)
	head := firstRunes(next, fuzzyWindowSize)
	if utf8.RuneCountInString(tail) > fuzzyMinLength && utf8.RuneCountInString(head) > fuzzyMinLength {
		if Jaccard(tail, head) > fuzzyThreshold {
			return true, RuleFuzzyWindow
		}
	}

	return false, RuleNone
}

// Jaccard returns the Jaccard similarity of the lowercase whitespace-separated
// word sets of a and b. Two empty inputs have similarity 0.
func Jaccard(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)

	union := len(setA)
	intersection := 0
	for w := range setB {
		if _, ok := setA[w]; ok {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// distanceFromEnd finds the last occurrence of needle in haystack and returns
// how many runes follow it.
func distanceFromEnd(haystack, needle string) (int, bool) {
	idx := strings.LastIndex(haystack, needle)
	if idx < 0 {
		return 0, false
	}
	return utf8.RuneCountInString(haystack[idx+len(needle):]), true
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func lastRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[len(r)-n:])
}

func firstRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
