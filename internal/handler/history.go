package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"

	"github.com/set-night/pixchat/internal/config"
	"github.com/set-night/pixchat/internal/domain"
	"github.com/set-night/pixchat/internal/middleware"
	tg "github.com/set-night/pixchat/internal/telegram"
)

func (h *Handler) handleNew(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Chat.Type != models.ChatTypePrivate {
		return
	}
	chatID := update.Message.Chat.ID
	sendText(ctx, b, chatID, h.startNewChat(chatID))
}

func (h *Handler) handleNewChatCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	answer(ctx, b, update, "")

	chatID, messageID, ok := callbackMessage(update)
	if !ok {
		return
	}
	_ = tg.EditMessage(ctx, b, chatID, messageID, h.startNewChat(chatID), nil)
}

func (h *Handler) startNewChat(chatID int64) string {
	if _, err := h.registry.StartNew(chatID); err != nil {
		return errorBanner(err)
	}
	return "🆕 New chat started. Send a prompt or a photo."
}

func (h *Handler) handleHistory(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Chat.Type != models.ChatTypePrivate {
		return
	}
	h.sendHistoryPage(ctx, b, update.Message.Chat.ID, 0, 0)
}

func (h *Handler) handleHistoryPage(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	answer(ctx, b, update, "")

	chatID, messageID, ok := callbackMessage(update)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(strings.TrimPrefix(update.CallbackQuery.Data, cbHistoryPage))
	h.sendHistoryPage(ctx, b, chatID, page, messageID)
}

// sendHistoryPage renders one page of stored chats. A non-zero messageID
// edits that message in place.
func (h *Handler) sendHistoryPage(ctx context.Context, b *bot.Bot, chatID int64, page, messageID int) {
	total, err := h.historyService.CountChats(ctx, chatID)
	if err != nil {
		slog.Error("count chats", "error", err, "chat_id", chatID)
		return
	}

	totalPages := tg.TotalPages(total, config.ChatsPerPage)
	page = tg.ClampPage(page, totalPages)

	chats, err := h.historyService.ListChats(ctx, chatID, config.ChatsPerPage, page*config.ChatsPerPage)
	if err != nil {
		slog.Error("list chats", "error", err, "chat_id", chatID)
		return
	}

	var activeID uuid.UUID
	if conv := middleware.GetConversation(ctx); conv != nil {
		activeID = conv.ID()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📂 *Chats* (%d)\n", total))
	if total == 0 {
		sb.WriteString("\nNo saved chats yet.")
	}

	var rows [][]models.InlineKeyboardButton
	for _, c := range chats {
		label := fmt.Sprintf("%s · %s", c.Title, c.UpdatedAt.Format("02.01 15:04"))
		if c.ID == activeID {
			label += " ✅"
		}
		rows = append(rows, tg.ButtonRow(
			tg.InlineButton(label, cbHistoryOpen+c.ID.String()),
			tg.InlineButton("🗑", cbHistoryDel+c.ID.String()),
		))
	}
	rows = append(rows, tg.ButtonRow(tg.InlineButton("➕ New chat", cbNewChat)))
	if pageRow := tg.PaginationRow(page, totalPages, cbHistoryPage); pageRow != nil {
		rows = append(rows, pageRow)
	}

	keyboard := tg.InlineKeyboard(rows...)
	text := sb.String()

	if messageID != 0 {
		if err := tg.EditMessage(ctx, b, chatID, messageID, text, keyboard); err != nil {
			slog.Warn("edit history page", "error", err)
		}
		return
	}
	_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   models.ParseModeMarkdownV1,
		ReplyMarkup: keyboard,
	})
}

func (h *Handler) handleHistoryOpen(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	chatID, _, ok := callbackMessage(update)
	if !ok {
		answer(ctx, b, update, "")
		return
	}

	id, err := uuid.Parse(strings.TrimPrefix(update.CallbackQuery.Data, cbHistoryOpen))
	if err != nil {
		answer(ctx, b, update, "")
		return
	}

	conv, err := h.registry.Switch(ctx, chatID, id)
	switch {
	case errors.Is(err, domain.ErrStreamInProgress):
		answer(ctx, b, update, "Wait for the current answer first")
		return
	case errors.Is(err, domain.ErrHistoryNotFound):
		answer(ctx, b, update, "Chat not found")
		return
	case err != nil:
		slog.Error("switch chat", "error", err, "chat_id", chatID)
		answer(ctx, b, update, "Could not open the chat")
		return
	}
	answer(ctx, b, update, "")

	history := conv.Snapshot()
	text := fmt.Sprintf("📂 Switched to «%s» (%d messages).", history.Title, len(history.Messages))
	if last, ok := conv.LastMessage(); ok && last.Role == domain.RoleAssistant && last.Text != "" {
		text += "\n\nLast answer:\n" + tg.Truncate(last.Text, 1000)
	}
	sendText(ctx, b, chatID, text)
}

func (h *Handler) handleHistoryDelete(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	chatID, messageID, ok := callbackMessage(update)
	if !ok {
		answer(ctx, b, update, "")
		return
	}

	id, err := uuid.Parse(strings.TrimPrefix(update.CallbackQuery.Data, cbHistoryDel))
	if err != nil {
		answer(ctx, b, update, "")
		return
	}

	if conv := middleware.GetConversation(ctx); conv != nil && conv.ID() == id && conv.InFlight() {
		answer(ctx, b, update, "Wait for the current answer first")
		return
	}

	if err := h.historyService.DeleteChat(ctx, chatID, id); err != nil && !errors.Is(err, domain.ErrHistoryNotFound) {
		slog.Error("delete chat", "error", err, "chat_id", chatID)
		answer(ctx, b, update, "Could not delete the chat")
		return
	}
	h.registry.Forget(chatID, id)
	answer(ctx, b, update, "🗑 Deleted")

	h.sendHistoryPage(ctx, b, chatID, 0, messageID)
}
