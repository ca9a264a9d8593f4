package handler

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// handleStat shows runtime counters to admins.
func (h *Handler) handleStat(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	if !h.cfg.IsAdmin(update.Message.From.ID) {
		return
	}

	text := fmt.Sprintf("📊 Stats\n\nActive conversations: %d\nCached images in memory: %d\nStorage: %s\nStreaming: %t",
		h.registry.Len(),
		h.images.Len(),
		h.cfg.StorageBackend,
		h.cfg.Streaming,
	)
	sendText(ctx, b, update.Message.Chat.ID, text)
}
