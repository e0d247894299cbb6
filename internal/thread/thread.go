package thread

import (
	"strconv"
	"sync/atomic"
	"time"
)

// Role of a message author.
type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

const (
	// DefaultTitle of a freshly created thread.
	DefaultTitle = "New Conversation"
	// AttachmentOnlyTitle is used when the first user message carries no text.
	AttachmentOnlyTitle = "Multimodal Chat"
	// Maximum number of characters of the first user message used as a title.
	titleLength = 30
)

// InlineData holds a transport-safe encoded binary payload.
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Part is one atomic content unit of a message. Exactly one of Text or
// InlineData is meaningful; use the constructors to keep that invariant.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// TextPart returns a text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// DataPart returns an inline-data part.
func DataPart(mimeType, data string) Part {
	return Part{InlineData: &InlineData{MimeType: mimeType, Data: data}}
}

// IsData reports whether this part carries inline data.
func (p Part) IsData() bool { return p.InlineData != nil }

// Message represents one turn's content within a thread.
type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Parts     []Part `json:"parts"`
	Timestamp int64  `json:"timestamp"`
}

// Thread represents one persisted conversation.
type Thread struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Messages  []*Message `json:"messages"`
	Model     string     `json:"model"`
	UpdatedAt int64      `json:"updatedAt"`
}

// clone returns a copy of the thread with its own message slice. Messages are
// shared; they are only ever replaced wholesale, never mutated in place.
func (t *Thread) clone() *Thread {
	copied := *t
	copied.Messages = make([]*Message, len(t.Messages))
	copy(copied.Messages, t.Messages)
	return &copied
}

// idCounter guards against two ids being derived within the same microsecond.
var idCounter atomic.Int64

func now() int64 { return time.Now().UnixMicro() }

// NewID returns a time-derived identifier, unique within this process.
func NewID() string {
	return strconv.FormatInt(now()+idCounter.Add(1), 10)
}

// NewTurnIDs returns a pair of ids for a turn: one for the user message and a
// distinct one, offset from it, for the model reply placeholder.
func NewTurnIDs() (userID, modelID string) {
	base := now() + idCounter.Add(2)
	return strconv.FormatInt(base-1, 10), strconv.FormatInt(base, 10)
}

// DeriveTitle computes a thread title from the first user message's text:
// the first 30 characters, or a fallback label for attachment-only messages.
func DeriveTitle(text string) string {
	if text == "" {
		return AttachmentOnlyTitle
	}
	runes := []rune(text)
	if len(runes) > titleLength {
		return string(runes[:titleLength])
	}
	return text
}
