// ABOUTME: Tests for the message aggregator
// ABOUTME: Covers run boundaries, duplicate suppression, reference merging and snapshot stability

package chat

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAggregator(policy Policy) *Aggregator {
	n := 0
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return &Aggregator{
		Policy: policy,
		Now: func() time.Time {
			n++
			return base.Add(time.Duration(n) * time.Second)
		},
		NewID: func() string {
			return fmt.Sprintf("msg-%d", n)
		},
	}
}

func TestAggregator_TriageScenario(t *testing.T) {
	agg := newTestAggregator(PolicyAuthor)
	var msgs []Message

	msgs, out := agg.Apply(msgs, Delta{Text: "The patient reports fever.", Author: "interview_agent"})
	require.Equal(t, Created, out.Kind)
	require.Len(t, msgs, 1)
	m1ID := msgs[0].ID

	msgs, out = agg.Apply(msgs, Delta{Text: "fever.", Author: "interview_agent"})
	assert.Equal(t, Discarded, out.Kind)
	assert.Equal(t, "The patient reports fever.", msgs[0].Content)

	text := " Temperature is 38.5C, see report.pdf, Chunk #12, #13"
	refs := []Reference{{Filename: "report.pdf", Chunks: []int{12, 13}}}
	msgs, out = agg.Apply(msgs, Delta{Text: text, Author: "interview_agent", References: refs})
	assert.Equal(t, Appended, out.Kind)
	require.Len(t, msgs, 1)
	assert.Equal(t, "The patient reports fever."+text, msgs[0].Content)
	assert.Equal(t, refs, msgs[0].References)

	m1 := msgs[0]
	msgs, out = agg.Apply(msgs, Delta{Text: "Classifying as urgent.", Author: "reasoning_agent"})
	assert.Equal(t, Created, out.Kind)
	require.Len(t, msgs, 2)
	assert.Equal(t, m1, msgs[0], "M1 must be unchanged")
	assert.Equal(t, m1ID, msgs[0].ID)
	assert.Equal(t, "reasoning_agent", msgs[1].Author)
	assert.Equal(t, TypeAgent, msgs[1].Type)
}

func TestAggregator_IdempotentSuffixDelivery(t *testing.T) {
	agg := newTestAggregator(PolicyAuthor)
	msgs, _ := agg.Apply(nil, Delta{Text: "Hello.", Author: "a"})

	d := Delta{Text: " Please describe your symptoms.", Author: "a"}
	msgs, out := agg.Apply(msgs, d)
	require.Equal(t, Appended, out.Kind)
	msgs, out = agg.Apply(msgs, d)
	assert.Equal(t, Discarded, out.Kind)

	assert.Equal(t, "Hello. Please describe your symptoms.", msgs[0].Content)
}

func TestAggregator_AuthorBoundary(t *testing.T) {
	agg := newTestAggregator(PolicyAuthor)
	msgs, _ := agg.Apply(nil, Delta{Text: "from A", Author: "A"})
	msgs, out := agg.Apply(msgs, Delta{Text: "from B", Author: "B"})

	assert.Equal(t, Created, out.Kind)
	require.Len(t, msgs, 2)
	assert.Equal(t, "from A", msgs[0].Content)
	assert.Equal(t, "from B", msgs[1].Content)
}

func TestAggregator_LenientPolicyIgnoresAuthor(t *testing.T) {
	agg := newTestAggregator(PolicyLenient)
	msgs, _ := agg.Apply(nil, Delta{Text: "from A.", Author: "A"})
	msgs, out := agg.Apply(msgs, Delta{Text: " from B.", Author: "B"})

	assert.Equal(t, Appended, out.Kind)
	require.Len(t, msgs, 1)
	assert.Equal(t, "from A. from B.", msgs[0].Content)
	assert.Equal(t, "A", msgs[0].Author)
}

func TestAggregator_HumanMessageClosesRun(t *testing.T) {
	agg := newTestAggregator(PolicyAuthor)
	msgs, _ := agg.Apply(nil, Delta{Text: "question?", Author: "A"})
	msgs = append(msgs, NewHumanMessage("answer", false, time.Now()))

	msgs, out := agg.Apply(msgs, Delta{Text: "follow up", Author: "A"})
	assert.Equal(t, Created, out.Kind)
	require.Len(t, msgs, 3)
	assert.Equal(t, TypeHuman, msgs[1].Type)
}

func TestAggregator_UnattributedAuthorsContinue(t *testing.T) {
	agg := newTestAggregator(PolicyAuthor)
	msgs, _ := agg.Apply(nil, Delta{Text: "one."})
	msgs, out := agg.Apply(msgs, Delta{Text: " two."})

	assert.Equal(t, Appended, out.Kind)
	assert.Equal(t, "one. two.", msgs[0].Content)
}

func TestAggregator_BlankDeltaDoesNotOpenRun(t *testing.T) {
	agg := newTestAggregator(PolicyAuthor)
	msgs, out := agg.Apply(nil, Delta{Text: "  \n", Author: "A"})

	assert.Equal(t, Skipped, out.Kind)
	assert.Empty(t, msgs)
	assert.False(t, out.Mutated())
}

func TestAggregator_MaxGapStartsNewMessage(t *testing.T) {
	agg := newTestAggregator(PolicyAuthor)
	agg.MaxGap = time.Minute
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	msgs, _ := agg.Apply(nil, Delta{Text: "first.", Author: "A", At: start})
	msgs, out := agg.Apply(msgs, Delta{Text: " second.", Author: "A", At: start.Add(30 * time.Second)})
	require.Equal(t, Appended, out.Kind)

	msgs, out = agg.Apply(msgs, Delta{Text: "much later.", Author: "A", At: start.Add(2 * time.Hour)})
	assert.Equal(t, Created, out.Kind)
	assert.Len(t, msgs, 2)
}

func TestAggregator_ReferenceMonotonicity(t *testing.T) {
	agg := newTestAggregator(PolicyAuthor)
	msgs, _ := agg.Apply(nil, Delta{
		Text:       "See a.pdf, Chunk #5",
		Author:     "A",
		References: []Reference{{Filename: "a.pdf", Chunks: []int{5}}},
	})
	msgs, _ = agg.Apply(msgs, Delta{
		Text:   " and b.pdf, Chunk #1 then a.pdf, Chunk #2, #5",
		Author: "A",
		References: []Reference{
			{Filename: "b.pdf", Chunks: []int{1}},
			{Filename: "a.pdf", Chunks: []int{2, 5}},
		},
	})
	msgs, _ = agg.Apply(msgs, Delta{
		Text:       " finally a.pdf, Chunk #9",
		Author:     "A",
		References: []Reference{{Filename: "a.pdf", Chunks: []int{9}}},
	})

	require.Len(t, msgs, 1)
	assert.Equal(t, []Reference{
		{Filename: "a.pdf", Chunks: []int{2, 5, 9}},
		{Filename: "b.pdf", Chunks: []int{1}},
	}, msgs[0].References)
}

func TestAggregator_DoesNotMutatePreviousSnapshot(t *testing.T) {
	agg := newTestAggregator(PolicyAuthor)
	before, _ := agg.Apply(nil, Delta{
		Text:       "start.",
		Author:     "A",
		References: []Reference{{Filename: "a.pdf", Chunks: []int{1}}},
	})
	after, out := agg.Apply(before, Delta{
		Text:       " more text here.",
		Author:     "A",
		References: []Reference{{Filename: "a.pdf", Chunks: []int{2}}},
	})
	require.Equal(t, Appended, out.Kind)

	assert.Equal(t, "start.", before[0].Content)
	assert.Equal(t, []int{1}, before[0].References[0].Chunks)
	assert.Equal(t, "start. more text here.", after[0].Content)
	assert.Equal(t, []int{1, 2}, after[0].References[0].Chunks)
}

func TestAggregator_OrderPreservation(t *testing.T) {
	agg := newTestAggregator(PolicyAuthor)
	var msgs []Message

	steps := []struct {
		human  bool
		author string
		text   string
	}{
		{false, "A", "a1"},
		{false, "A", " a2"},
		{true, "", "h1"},
		{false, "B", "b1"},
		{false, "C", "c1"},
		{false, "C", " c2"},
		{true, "", "h2"},
		{false, "A", "a3"},
	}
	for _, s := range steps {
		if s.human {
			msgs = append(msgs, NewHumanMessage(s.text, false, time.Now()))
			continue
		}
		msgs, _ = agg.Apply(msgs, Delta{Text: s.text, Author: s.author})
	}

	var got []string
	for _, m := range msgs {
		got = append(got, m.Content)
	}
	assert.Equal(t, []string{"a1 a2", "h1", "b1", "c1 c2", "h2", "a3"}, got)
}

func TestParsePolicy(t *testing.T) {
	assert.Equal(t, PolicyLenient, ParsePolicy("lenient"))
	assert.Equal(t, PolicyLenient, ParsePolicy("LENIENT"))
	assert.Equal(t, PolicyAuthor, ParsePolicy("author"))
	assert.Equal(t, PolicyAuthor, ParsePolicy(""))
}
