// Package conversation is the reconciliation engine of the triage client.
//
// A Session owns one ordered message sequence and the websocket stream that
// feeds it. Every inbound frame goes through the same synchronous pipeline:
//
//  1. protocol.Classify turns the raw bytes into a text delta, a delegation
//     signal, a completion signal or a parse error.
//  2. Text deltas that are thoughts of a hidden author, or replays of frames
//     already applied, are dropped.
//  3. The transition tracker updates the active agent hint and the citation
//     extractor pulls document references out of the text.
//  4. chat.Aggregator folds the delta into the sequence, starting a new
//     message when the author changes and discarding re-emitted text.
//  5. The persist.Synchronizer sees every mutation.
//
// Loading starts with a submission and ends with a completion signal, text
// from a terminal author, a malformed frame, or any change of connection
// state. There is no turn timeout.
//
// Renderers read state through Snapshot or Subscribe. Views are deep copies
// and are never modified after publication.
package conversation
