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
	tg "github.com/set-night/pixchat/internal/telegram"
)

func (h *Handler) handleGallery(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Chat.Type != models.ChatTypePrivate {
		return
	}
	h.sendGalleryPage(ctx, b, update.Message.Chat.ID, 0)
}

func (h *Handler) handleGalleryPage(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	answer(ctx, b, update, "")

	chatID, messageID, ok := callbackMessage(update)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(strings.TrimPrefix(update.CallbackQuery.Data, cbGalleryPage))

	// Photos cannot be edited into other photos cheaply; replace the message.
	_, _ = b.DeleteMessage(ctx, &bot.DeleteMessageParams{ChatID: chatID, MessageID: messageID})
	h.sendGalleryPage(ctx, b, chatID, page)
}

func (h *Handler) sendGalleryPage(ctx context.Context, b *bot.Bot, chatID int64, page int) {
	total, err := h.historyService.CountGallery(ctx, chatID)
	if err != nil {
		slog.Error("count gallery", "error", err, "chat_id", chatID)
		return
	}
	if total == 0 {
		sendText(ctx, b, chatID, "🖼 Your gallery is empty. Generated images will appear here.")
		return
	}

	totalPages := tg.TotalPages(total, config.GalleryPerPage)
	page = tg.ClampPage(page, totalPages)

	items, err := h.historyService.ListGallery(ctx, chatID, config.GalleryPerPage, page*config.GalleryPerPage)
	if err != nil || len(items) == 0 {
		if err != nil {
			slog.Error("list gallery", "error", err, "chat_id", chatID)
		}
		return
	}
	item := items[0]

	rows := [][]models.InlineKeyboardButton{
		tg.ButtonRow(tg.InlineButton("🗑 Delete", cbGalleryDel+item.ID.String())),
	}
	if pageRow := tg.PaginationRow(page, totalPages, cbGalleryPage); pageRow != nil {
		rows = append(rows, pageRow)
	}
	keyboard := tg.InlineKeyboard(rows...)

	caption := galleryCaption(item)
	if _, err := h.sendImage(ctx, b, chatID, item.Image, caption, keyboard); err != nil {
		slog.Warn("send gallery image", "error", err, "item_id", item.ID)
		_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:      chatID,
			Text:        "⚠️ Image is no longer available.\n\n" + caption,
			ReplyMarkup: keyboard,
		})
	}
}

func galleryCaption(item domain.GalleryHistoryItem) string {
	prompt := item.Prompt
	if prompt == "" {
		prompt = "(no prompt)"
	}
	return fmt.Sprintf("🖼 %s\n🕒 %s", prompt, item.CreatedAt.Format("02.01.2006 15:04"))
}

func (h *Handler) handleGalleryDelete(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	chatID, messageID, ok := callbackMessage(update)
	if !ok {
		answer(ctx, b, update, "")
		return
	}

	id, err := uuid.Parse(strings.TrimPrefix(update.CallbackQuery.Data, cbGalleryDel))
	if err != nil {
		answer(ctx, b, update, "")
		return
	}

	if err := h.historyService.DeleteGalleryItem(ctx, chatID, id); err != nil && !errors.Is(err, domain.ErrGalleryItemNotFound) {
		slog.Error("delete gallery item", "error", err, "chat_id", chatID)
		answer(ctx, b, update, "Could not delete the image")
		return
	}
	answer(ctx, b, update, "🗑 Deleted")

	_, _ = b.DeleteMessage(ctx, &bot.DeleteMessageParams{ChatID: chatID, MessageID: messageID})
	h.sendGalleryPage(ctx, b, chatID, 0)
}
