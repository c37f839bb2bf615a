// ABOUTME: Outbound client-to-backend message sent when the user submits a turn
// ABOUTME: Carries text, optional image/audio attachments and a one-shot location

package protocol

// MessageTypeText marks a text submission.
const MessageTypeText = "text"

// AttachmentKind is the media kind of an attachment.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentAudio AttachmentKind = "audio"
)

// Attachment is an opaque encoded payload, usually a base64 data URL.
type Attachment struct {
	Kind     AttachmentKind `json:"type"`
	Data     string         `json:"data"`
	MimeType string         `json:"mimeType,omitempty"`
}

// Outbound is the message written to the session websocket.
type Outbound struct {
	Type        string       `json:"type"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Location    string       `json:"location,omitempty"`
}

// NewTextMessage builds a text submission. location is omitted when empty.
func NewTextMessage(content string, attachments []Attachment, location string) Outbound {
	return Outbound{
		Type:        MessageTypeText,
		Content:     content,
		Attachments: attachments,
		Location:    location,
	}
}
