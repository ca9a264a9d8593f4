package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/pixchat/internal/chat"
	"github.com/set-night/pixchat/internal/middleware"
	tg "github.com/set-night/pixchat/internal/telegram"
)

const helpText = "📋 *Commands:*\n" +
	"/new — Start a new chat\n" +
	"/history — Your chats\n" +
	"/gallery — Generated images\n" +
	"/styles — Pick an image style\n" +
	"/credits — Your balance\n" +
	"/retry — Resend the last failed prompt\n\n" +
	"Send a text prompt, or a photo with a caption to edit it."

// maxSuggestions caps the suggestion buttons shown under the welcome text.
const maxSuggestions = 6

func (h *Handler) handleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Chat.Type != models.ChatTypePrivate {
		return
	}

	chatID := update.Message.Chat.ID
	name := "there"
	if from := update.Message.From; from != nil && from.FirstName != "" {
		name = from.FirstName
	}

	text := fmt.Sprintf("👋 Hi, *%s*!\n\nI chat about photos and generate images.\n\n%s", name, helpText)

	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeMarkdownV1,
	}
	if keyboard := h.suggestionsKeyboard(ctx); keyboard != nil {
		params.ReplyMarkup = keyboard
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		slog.Error("send welcome", "error", err, "chat_id", chatID)
	}
}

func (h *Handler) handleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    update.Message.Chat.ID,
		Text:      helpText,
		ParseMode: models.ParseModeMarkdownV1,
	})
}

func (h *Handler) suggestionsKeyboard(ctx context.Context) *models.InlineKeyboardMarkup {
	manifest, err := h.contentService.Manifest(ctx)
	if err != nil {
		slog.Warn("load manifest for suggestions", "error", err)
		return nil
	}

	var rows [][]models.InlineKeyboardButton
	for i, s := range manifest.Suggestions {
		if i == maxSuggestions {
			break
		}
		rows = append(rows, tg.ButtonRow(
			tg.InlineButton("💡 "+tg.Truncate(s, 48), cbSuggestion+strconv.Itoa(i)),
		))
	}
	if len(rows) == 0 {
		return nil
	}
	return tg.InlineKeyboard(rows...)
}

func (h *Handler) handleSuggestion(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	chatID, _, ok := callbackMessage(update)
	if !ok {
		answer(ctx, b, update, "")
		return
	}

	idx, err := strconv.Atoi(strings.TrimPrefix(update.CallbackQuery.Data, cbSuggestion))
	if err != nil {
		answer(ctx, b, update, "")
		return
	}

	manifest, err := h.contentService.Manifest(ctx)
	if err != nil || idx < 0 || idx >= len(manifest.Suggestions) {
		answer(ctx, b, update, "Suggestion is no longer available")
		return
	}
	answer(ctx, b, update, "")

	conv := middleware.GetConversation(ctx)
	if conv == nil {
		return
	}

	prompt := chat.Prompt{
		Text:    manifest.Suggestions[idx],
		StyleID: h.selectedStyle(chatID),
	}
	sendText(ctx, b, chatID, "💡 "+prompt.Text)
	h.runTurn(ctx, b, chatID, conv, prompt.Text, func(ctx context.Context, onUpdate chat.Listener) (*chat.TurnResult, error) {
		return h.engine.Send(ctx, conv, prompt, onUpdate)
	})
}
