// Package persist keeps a session's message sequence in two tiers: a fast
// local cache written on every change and a durable room store written at
// most once per debounce window.
//
// Loading prefers the durable history and falls back to the cache. Clearing
// only forgets the cache entry; durable history is never deleted here.
package persist
