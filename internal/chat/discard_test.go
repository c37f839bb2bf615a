// ABOUTME: Tests for the duplicate suppression heuristics
// ABOUTME: Exercises each rule in isolation plus the pass-through cases

package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldDiscard_ExactTail(t *testing.T) {
	drop, rule := ShouldDiscard("The patient reports fever.", "fever.")
	assert.True(t, drop)
	assert.Equal(t, RuleExactTail, rule)
}

func TestShouldDiscard_ExactTailIgnoresSurroundingWhitespace(t *testing.T) {
	drop, rule := ShouldDiscard("The patient reports fever.  \n", "  reports fever. ")
	assert.True(t, drop)
	assert.Equal(t, RuleExactTail, rule)
}

func TestShouldDiscard_BlankTextIsTail(t *testing.T) {
	drop, rule := ShouldDiscard("anything", "   ")
	assert.True(t, drop)
	assert.Equal(t, RuleExactTail, rule)
}

func TestShouldDiscard_NearTail(t *testing.T) {
	existing := "Pasien mengalami demam tinggi sejak kemarin. Suhu 39C."
	drop, rule := ShouldDiscard(existing, "demam tinggi sejak kemarin")
	assert.True(t, drop)
	assert.Equal(t, RuleNearTail, rule)
}

func TestShouldDiscard_NearTailTooShort(t *testing.T) {
	// 15 runes or fewer never qualifies for the substring rule
	existing := "short words here and then more words after"
	drop, _ := ShouldDiscard(existing, "words here and")
	assert.False(t, drop)
}

func TestShouldDiscard_NearTailTooFar(t *testing.T) {
	existing := "demam tinggi sejak kemarin " + strings.Repeat("x", 120)
	drop, _ := ShouldDiscard(existing, "demam tinggi sejak kemarin")
	assert.False(t, drop)
}

func TestShouldDiscard_OpeningPhrase(t *testing.T) {
	opening := "Baik, saya mengerti keluhan anda tentang sakit kepala yang berat"
	existing := opening + " dan sudah berlangsung tiga hari. Mohon jelaskan lebih lanjut."
	// Same ten-word opening, different continuation
	next := opening + " sekali dan tidak kunjung membaik setelah minum obat."

	drop, rule := ShouldDiscard(existing, next)
	assert.True(t, drop)
	assert.Equal(t, RuleOpeningPhrase, rule)
}

func TestShouldDiscard_OpeningPhraseTooFar(t *testing.T) {
	opening := "Baik, saya mengerti keluhan anda tentang sakit kepala yang berat"
	existing := opening + " " + strings.Repeat("lorem ", 50)
	next := opening + " sekali dan tidak kunjung membaik."

	drop, _ := ShouldDiscard(existing, next)
	assert.False(t, drop)
}

func TestShouldDiscard_FuzzyWindow(t *testing.T) {
	existing := "Based on symptoms the triage level is urgent and the patient should visit the clinic today"
	next := "the triage level is urgent based on symptoms and the patient should visit the clinic today!"

	drop, rule := ShouldDiscard(existing, next)
	assert.True(t, drop)
	assert.Equal(t, RuleFuzzyWindow, rule)
}

func TestShouldDiscard_FuzzyWindowNeedsLength(t *testing.T) {
	drop, _ := ShouldDiscard("fever cough", "cough fever!")
	assert.False(t, drop)
}

func TestShouldDiscard_NewText(t *testing.T) {
	existing := "The patient reports fever."
	drop, rule := ShouldDiscard(existing, " Temperature is 38.5C, see report.pdf, Chunk #12, #13")
	assert.False(t, drop)
	assert.Equal(t, RuleNone, rule)
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "a b c", "a b c", 1},
		{"case insensitive", "A B", "a b", 1},
		{"disjoint", "a b", "c d", 0},
		{"half", "a b c", "b c d", 0.5},
		{"empty", "", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Jaccard(tt.a, tt.b), 1e-9)
		})
	}
}

func TestRule_String(t *testing.T) {
	assert.Equal(t, "exact_tail", RuleExactTail.String())
	assert.Equal(t, "fuzzy_window", RuleFuzzyWindow.String())
	assert.Equal(t, "none", RuleNone.String())
}
