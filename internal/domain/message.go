package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// GeneratedScheme prefixes cache keys of images decoded from base64 payloads.
const GeneratedScheme = "generated://"

type ImageData struct {
	ID   uuid.UUID `json:"id"`
	URL  string    `json:"url"`
	MIME string    `json:"mime"`
	Path string    `json:"path,omitempty"`
	Size int64     `json:"size,omitempty"`
}

func (i ImageData) IsGenerated() bool {
	return strings.HasPrefix(i.URL, GeneratedScheme)
}

type ChatMessage struct {
	ID        uuid.UUID   `json:"id"`
	Role      Role        `json:"role"`
	Text      string      `json:"text"`
	Images    []ImageData `json:"images,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

func NewMessage(role Role, text string, images []ImageData) ChatMessage {
	return ChatMessage{
		ID:        uuid.New(),
		Role:      role,
		Text:      text,
		Images:    images,
		CreatedAt: time.Now(),
	}
}

// IsEmpty reports whether the message carries neither text nor images.
func (m ChatMessage) IsEmpty() bool {
	return strings.TrimSpace(m.Text) == "" && len(m.Images) == 0
}

// Clone returns a copy that shares no slices with m.
func (m ChatMessage) Clone() ChatMessage {
	if m.Images != nil {
		m.Images = append([]ImageData(nil), m.Images...)
	}
	return m
}
