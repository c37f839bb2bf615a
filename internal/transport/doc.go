// Package transport manages the websocket connection to the agent backend.
//
// A Manager holds at most one connection, addressed by an Identity:
//
//	<base>/ws/<user>/<session>
//
// States move Idle → Connecting → Open → Closed, passing through Closing
// when the client closes on purpose. Connect is idempotent for the current
// identity; a new identity closes the old stream with status 1000 first.
// Any close other than 1000 schedules exactly one reconnect after the
// configured delay (3s by default). Send never queues: it fails with
// ErrNotOpen unless the connection is open.
package transport
