package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type ChatHistory struct {
	ID        uuid.UUID     `json:"id"`
	OwnerID   int64         `json:"owner_id"`
	Title     string        `json:"title"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func NewChatHistory(ownerID int64) *ChatHistory {
	now := time.Now()
	return &ChatHistory{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Messages:  []ChatMessage{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the history.
func (h *ChatHistory) Clone() *ChatHistory {
	c := *h
	c.Messages = make([]ChatMessage, len(h.Messages))
	for i, m := range h.Messages {
		c.Messages[i] = m.Clone()
	}
	return &c
}

// DeriveTitle returns the first user message, single-lined and truncated to maxLen runes.
func (h *ChatHistory) DeriveTitle(maxLen int) string {
	for _, m := range h.Messages {
		if m.Role != RoleUser {
			continue
		}
		text := strings.Join(strings.Fields(m.Text), " ")
		if text == "" {
			if len(m.Images) > 0 {
				return "📷 Photo"
			}
			continue
		}
		if utf8.RuneCountInString(text) > maxLen {
			return string([]rune(text)[:maxLen]) + "…"
		}
		return text
	}
	return ""
}

type GalleryHistoryItem struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	ChatID    uuid.UUID `json:"chat_id"`
	Prompt    string    `json:"prompt"`
	Image     ImageData `json:"image"`
	CreatedAt time.Time `json:"created_at"`
}
