package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveTitle(t *testing.T) {
	h := NewChatHistory(1)
	assert.Empty(t, h.DeriveTitle(10))

	h.Messages = append(h.Messages,
		NewMessage(RoleAssistant, "hello there", nil),
		NewMessage(RoleUser, "  draw   a\ncat in a hat please ", nil),
	)
	assert.Equal(t, "draw a cat…", h.DeriveTitle(10))
	assert.Equal(t, "draw a cat in a hat please", h.DeriveTitle(100))
}

func TestDeriveTitle_PhotoOnly(t *testing.T) {
	h := NewChatHistory(1)
	h.Messages = append(h.Messages, NewMessage(RoleUser, "", []ImageData{{URL: "https://x/y.png"}}))
	assert.Equal(t, "📷 Photo", h.DeriveTitle(10))
}

func TestClone_IsDeep(t *testing.T) {
	h := NewChatHistory(1)
	h.Messages = append(h.Messages, NewMessage(RoleUser, "hi", []ImageData{{URL: "a"}}))

	c := h.Clone()
	c.Messages[0].Text = "changed"
	c.Messages[0].Images[0].URL = "b"

	assert.Equal(t, "hi", h.Messages[0].Text)
	assert.Equal(t, "a", h.Messages[0].Images[0].URL)
}

func TestMessageIsEmpty(t *testing.T) {
	assert.True(t, NewMessage(RoleAssistant, " \n", nil).IsEmpty())
	assert.False(t, NewMessage(RoleAssistant, "x", nil).IsEmpty())
	assert.False(t, NewMessage(RoleAssistant, "", []ImageData{{URL: GeneratedScheme + "1"}}).IsEmpty())
}

func TestManifestStyle(t *testing.T) {
	m := &ContentManifest{Styles: []Style{{ID: "anime", Title: "Anime"}}}

	s, err := m.Style("anime")
	require.NoError(t, err)
	assert.Equal(t, "Anime", s.Title)

	_, err = m.Style("noir")
	assert.ErrorIs(t, err, ErrStyleNotFound)
}
