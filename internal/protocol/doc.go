// Package protocol defines the JSON frames exchanged with the agent backend
// over the session websocket.
//
// Inbound frames are decoded by Classify into exactly one of:
//
//   - TextDelta: the frame carries text, directly or as content parts
//   - DelegationSignal: no text, but a function call or response is present
//   - CompletionSignal: no text, finish reason STOP or MAX_TOKENS
//   - ParseError: the payload is not valid JSON
//
// Anything else classifies to nil and is ignored by the session.
package protocol
