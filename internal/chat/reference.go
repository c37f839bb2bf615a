// ABOUTME: Document citation type and monotonic merge of chunk sets
// ABOUTME: Chunk lists are always kept sorted ascending and de-duplicated

package chat

import "slices"

// Reference points at chunks of a source document cited by an agent.
type Reference struct {
	Filename string `json:"filename"`
	Chunks   []int  `json:"chunks"`
}

// NormalizeChunks sorts and de-duplicates chunk indices in place and returns
// the shortened slice.
func NormalizeChunks(chunks []int) []int {
	slices.Sort(chunks)
	return slices.Compact(chunks)
}

// MergeReferences returns the union of dst and src. Filenames keep the order
// in which they were first seen; each chunk list is the sorted union of both
// sides. Neither input is modified.
func MergeReferences(dst, src []Reference) []Reference {
	if len(src) == 0 {
		return cloneReferences(dst)
	}

	out := cloneReferences(dst)
	index := make(map[string]int, len(out))
	for i, ref := range out {
		index[ref.Filename] = i
	}

	for _, ref := range src {
		i, ok := index[ref.Filename]
		if !ok {
			out = append(out, Reference{Filename: ref.Filename})
			i = len(out) - 1
			index[ref.Filename] = i
		}
		merged := append(out[i].Chunks, ref.Chunks...)
		out[i].Chunks = NormalizeChunks(merged)
	}
	return out
}

func cloneReferences(refs []Reference) []Reference {
	if refs == nil {
		return nil
	}
	out := make([]Reference, len(refs))
	for i, ref := range refs {
		out[i] = Reference{
			Filename: ref.Filename,
			Chunks:   slices.Clone(ref.Chunks),
		}
	}
	return out
}
