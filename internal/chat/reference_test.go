// ABOUTME: Tests for reference merging, chunk normalization and human message construction
// ABOUTME: Covers the attachment placeholder used for messages without text

package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMergeReferences_UnionSortedUnique(t *testing.T) {
	dst := []Reference{{Filename: "a.pdf", Chunks: []int{3, 1}}}
	src := []Reference{
		{Filename: "a.pdf", Chunks: []int{2, 3}},
		{Filename: "c.pdf", Chunks: []int{7, 7}},
	}

	got := MergeReferences(dst, src)

	assert.Equal(t, []Reference{
		{Filename: "a.pdf", Chunks: []int{1, 2, 3}},
		{Filename: "c.pdf", Chunks: []int{7}},
	}, got)
	// inputs untouched
	assert.Equal(t, []int{3, 1}, dst[0].Chunks)
}

func TestMergeReferences_EmptySourceCopies(t *testing.T) {
	dst := []Reference{{Filename: "a.pdf", Chunks: []int{1}}}
	got := MergeReferences(dst, nil)
	got[0].Chunks[0] = 99
	assert.Equal(t, 1, dst[0].Chunks[0])
}

func TestMergeReferences_NilBoth(t *testing.T) {
	assert.Nil(t, MergeReferences(nil, nil))
}

func TestNewHumanMessage_Placeholder(t *testing.T) {
	now := time.Now()

	m := NewHumanMessage("", true, now)
	assert.Equal(t, "Mengirim lampiran", m.Content, "stored text matches what the web client writes")
	assert.Equal(t, TypeHuman, m.Type)
	assert.NotEmpty(t, m.ID)

	m = NewHumanMessage("hi", true, now)
	assert.Equal(t, "hi", m.Content)
}

func TestSnapshot_DeepCopy(t *testing.T) {
	msgs := []Message{{ID: "1", References: []Reference{{Filename: "a.pdf", Chunks: []int{1}}}}}
	snap := Snapshot(msgs)
	snap[0].References[0].Chunks[0] = 42
	snap[0].ID = "changed"

	assert.Equal(t, 1, msgs[0].References[0].Chunks[0])
	assert.Equal(t, "1", msgs[0].ID)
	assert.Nil(t, Snapshot(nil))
}
