// Package logging configures log/slog for the client binaries.
package logging
