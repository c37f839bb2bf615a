// Package citation extracts document citations from agent text and
// resolves them against the knowledge base the agents retrieve from.
package citation
