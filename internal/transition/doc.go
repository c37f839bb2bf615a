// Package transition detects hand-offs between the triage agents from the
// phrases they use, and exposes the announced agent as an auto-expiring
// hint. Hints are advisory and never affect aggregation or persistence.
package transition
