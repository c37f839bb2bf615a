// ABOUTME: Parses knowledge-base citations such as "guide.pdf, Chunk #3, #7" out of agent text
// ABOUTME: Returns one Reference per filename with sorted, unique chunk numbers

package citation

import (
	"regexp"
	"strconv"

	"github.com/2389/triage-chat/internal/chat"
)

var (
	citationPattern = regexp.MustCompile(`(?i)([\w\-]+\.pdf),?\s*chunk\s*#(\d+)((?:\s*,\s*#\d+)*)`)
	chunkNumber     = regexp.MustCompile(`\d+`)
)

// Extract returns every citation in text, merged per filename in order of
// first appearance. It returns nil when text cites nothing.
func Extract(text string) []chat.Reference {
	var refs []chat.Reference
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		chunks := []int{atoi(m[2])}
		for _, n := range chunkNumber.FindAllString(m[3], -1) {
			chunks = append(chunks, atoi(n))
		}
		refs = chat.MergeReferences(refs, []chat.Reference{{Filename: m[1], Chunks: chunks}})
	}
	return refs
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		// only reachable on overflow
		return -1
	}
	return n
}
