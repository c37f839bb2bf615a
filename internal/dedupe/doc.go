// Package dedupe provides the replay filter the session uses to recognise
// text frames it has already applied, so a backend that resends part of a
// turn after a reconnect does not duplicate visible content.
package dedupe
