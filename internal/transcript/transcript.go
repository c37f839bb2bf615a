// ABOUTME: Exports a message snapshot as a standalone HTML page or as Markdown
// ABOUTME: Message bodies are agent markdown rendered with goldmark; raw HTML is escaped

package transcript

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/triage-chat/internal/chat"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	md   = goldmark.New(goldmark.WithExtensions(extension.GFM))
	page = template.Must(template.ParseFS(templateFS, "templates/transcript.html"))
)

type pageData struct {
	Title    string
	Exported string
	Messages []messageData
}

type messageData struct {
	ID         string
	Type       chat.MessageType
	Label      string
	Time       string
	Body       template.HTML
	References []referenceData
}

type referenceData struct {
	Filename  string
	ChunkList string
}

// Label names the speaker of m for display.
func Label(m chat.Message) string {
	switch {
	case m.Type == chat.TypeHuman:
		return "You"
	case m.Author != "":
		return m.Author
	default:
		return "Agent"
	}
}

// Render writes msgs as an HTML page.
func Render(w io.Writer, title string, msgs []chat.Message) error {
	data := pageData{
		Title:    title,
		Exported: time.Now().UTC().Format(timeLayout),
		Messages: make([]messageData, 0, len(msgs)),
	}
	for _, m := range msgs {
		var body bytes.Buffer
		if err := md.Convert([]byte(m.Content), &body); err != nil {
			return fmt.Errorf("rendering message %s: %w", m.ID, err)
		}
		item := messageData{
			ID:    m.ID,
			Type:  m.Type,
			Label: Label(m),
			Time:  m.Timestamp.UTC().Format(timeLayout),
			Body:  template.HTML(body.String()),
		}
		for _, ref := range m.References {
			item.References = append(item.References, referenceData{Filename: ref.Filename, ChunkList: ChunkList(ref.Chunks)})
		}
		data.Messages = append(data.Messages, item)
	}

	if err := page.Execute(w, data); err != nil {
		return fmt.Errorf("executing transcript template: %w", err)
	}
	return nil
}

// Markdown writes msgs as a Markdown document.
func Markdown(w io.Writer, title string, msgs []chat.Message) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", title)
	for _, m := range msgs {
		fmt.Fprintf(&b, "\n## %s (%s)\n\n%s\n", Label(m), m.Timestamp.UTC().Format(timeLayout), strings.TrimSpace(m.Content))
		if len(m.References) > 0 {
			b.WriteString("\nReferences:\n")
			for _, ref := range m.References {
				fmt.Fprintf(&b, "- %s: chunk %s\n", ref.Filename, ChunkList(ref.Chunks))
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// ChunkList formats chunk numbers as "#3, #4".
func ChunkList(chunks []int) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = "#" + strconv.Itoa(c)
	}
	return strings.Join(parts, ", ")
}
