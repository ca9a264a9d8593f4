package handler

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/pixchat/internal/domain"
	tg "github.com/set-night/pixchat/internal/telegram"
)

func (h *Handler) handleStyles(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Chat.Type != models.ChatTypePrivate {
		return
	}
	chatID := update.Message.Chat.ID

	manifest, err := h.contentService.Manifest(ctx)
	if err != nil {
		slog.Error("load manifest", "error", err)
		sendText(ctx, b, chatID, "❌ Styles are unavailable right now.")
		return
	}
	if len(manifest.Styles) == 0 {
		sendText(ctx, b, chatID, "🎨 No styles are available.")
		return
	}

	_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        "🎨 Pick a style for your next images:",
		ReplyMarkup: stylesKeyboard(manifest.Styles, h.selectedStyle(chatID)),
	})
}

// stylesKeyboard refers to styles by position: manifest IDs have no length
// limit, callback data does.
func stylesKeyboard(styles []domain.Style, current string) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton
	for i, s := range styles {
		label := s.Title
		if s.ID == current {
			label += " ✅"
		}
		rows = append(rows, tg.ButtonRow(tg.InlineButton(label, cbStyleSelect+strconv.Itoa(i))))
	}
	rows = append(rows, tg.ButtonRow(tg.InlineButton("🚫 No style", cbStyleClear)))
	return tg.InlineKeyboard(rows...)
}

// styleAt resolves style callback data against the current manifest.
func styleAt(manifest *domain.ContentManifest, data string) (*domain.Style, error) {
	idx, err := strconv.Atoi(strings.TrimPrefix(data, cbStyleSelect))
	if err != nil || idx < 0 || idx >= len(manifest.Styles) {
		return nil, domain.ErrStyleNotFound
	}
	return &manifest.Styles[idx], nil
}

func (h *Handler) handleStyleSelect(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	chatID, messageID, ok := callbackMessage(update)
	if !ok {
		answer(ctx, b, update, "")
		return
	}

	manifest, err := h.contentService.Manifest(ctx)
	if err != nil {
		slog.Error("load manifest", "error", err)
		answer(ctx, b, update, "Style is no longer available")
		return
	}
	style, err := styleAt(manifest, update.CallbackQuery.Data)
	if err != nil {
		answer(ctx, b, update, "Style is no longer available")
		return
	}

	h.setStyle(chatID, style.ID)
	answer(ctx, b, update, "")
	_ = tg.EditMessage(ctx, b, chatID, messageID, "🎨 Style: "+style.Title, nil)
}

func (h *Handler) handleStyleClear(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	chatID, messageID, ok := callbackMessage(update)
	answer(ctx, b, update, "")
	if !ok {
		return
	}

	h.setStyle(chatID, "")
	_ = tg.EditMessage(ctx, b, chatID, messageID, "🎨 Style cleared.", nil)
}
