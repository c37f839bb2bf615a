// Package chat defines the conversation data model and the message
// aggregator that folds streamed agent text into it.
//
// # Aggregation
//
// An Aggregator turns a stream of Delta values into an ordered []Message.
// Consecutive deltas from the same author form one authorship run and are
// appended to the trailing agent message; a delta from a different author,
// or any delta after a human message, opens a new message.
//
//	agg := &chat.Aggregator{Policy: chat.PolicyAuthor}
//	msgs, out := agg.Apply(msgs, chat.Delta{Text: "fever.", Author: "interview_agent"})
//
// # Duplicate suppression
//
// Before a delta is appended, ShouldDiscard checks it against the existing
// content with four rules, cheapest first:
//
//   - exact tail: existing content already ends with the new text
//   - near tail: the new text occurs within the last 100 characters
//   - opening phrase: the first ten words occur within the last 200 characters
//   - fuzzy window: word-set Jaccard similarity above 0.8
//
// Apply never modifies a message that a caller already holds, so snapshots
// handed to renderers and persistence sinks stay valid.
package chat
