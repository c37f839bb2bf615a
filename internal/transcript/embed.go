// ABOUTME: Embeds the transcript page template into the binary using go:embed
// ABOUTME: Provides templateFS for Render

package transcript

import "embed"

//go:embed templates/*.html
var templateFS embed.FS
