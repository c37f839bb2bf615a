// Package cache is the fast local persistence tier. It keeps the latest
// message snapshot per room (or per session before a room exists) and is
// written synchronously on every change.
package cache
