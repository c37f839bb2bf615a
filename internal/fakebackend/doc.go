// Package fakebackend serves a local imitation of the triage backend for
// tests and demos: the per-session websocket at /ws/{user}/{session} and the
// chat-room REST endpoints under /api/chat-rooms.
//
// Every submission is answered by a Turn, TriageTurn by default. Push,
// PushRaw, Drop and Disconnect inject frames and faults into a live
// connection.
package fakebackend
