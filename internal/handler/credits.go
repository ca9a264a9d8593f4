package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

func (h *Handler) handleCredits(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Chat.Type != models.ChatTypePrivate {
		return
	}
	chatID := update.Message.Chat.ID

	if !h.creditsService.Enabled() {
		sendText(ctx, b, chatID, "💳 Credits are not tracked on this server.")
		return
	}

	h.creditsService.Invalidate(chatID)
	credits, err := h.creditsService.Get(ctx, chatID)
	if err != nil {
		slog.Error("fetch credits", "error", err, "chat_id", chatID)
		sendText(ctx, b, chatID, "❌ Could not fetch your balance. Try again later.")
		return
	}

	text := fmt.Sprintf("💳 *Credits:* %s", credits.Balance.String())
	if credits.IsExhausted() {
		text += "\n\n⚠️ You have no credits left."
	}
	_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeMarkdownV1,
	})
}
