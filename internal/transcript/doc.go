// Package transcript exports archived conversations for reading outside the
// client, as a self-contained HTML page or as Markdown.
package transcript
