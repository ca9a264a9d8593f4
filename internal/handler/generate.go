package handler

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/pixchat/internal/chat"
	"github.com/set-night/pixchat/internal/config"
	"github.com/set-night/pixchat/internal/domain"
	"github.com/set-night/pixchat/internal/middleware"
	tg "github.com/set-night/pixchat/internal/telegram"
)

// turnFunc runs one engine turn, reporting progress to onUpdate.
type turnFunc func(ctx context.Context, onUpdate chat.Listener) (*chat.TurnResult, error)

// HandleMessage processes private text and photo messages as prompts.
func (h *Handler) HandleMessage(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.Chat.Type != models.ChatTypePrivate {
		return
	}

	chatID := msg.Chat.ID

	if strings.HasPrefix(msg.Text, "/") {
		sendText(ctx, b, chatID, "🤔 Unknown command. See /help")
		return
	}

	conv := middleware.GetConversation(ctx)
	if conv == nil {
		sendText(ctx, b, chatID, "❌ Could not load your chat. Try again later.")
		return
	}

	prompt := chat.Prompt{
		Text:    msg.Text,
		StyleID: h.selectedStyle(chatID),
	}

	if fileID := imageFileID(msg); fileID != "" {
		file, err := tg.DownloadFile(ctx, b, fileID, config.MaxImageDownloadBytes)
		if err != nil {
			slog.Error("download user photo", "error", err, "chat_id", chatID)
			sendText(ctx, b, chatID, "❌ Could not download your photo.")
			return
		}
		prompt.Text = msg.Caption
		prompt.Photo = &chat.Photo{Data: file.Data, MIME: file.MIME, Name: file.Name}
	}

	h.runTurn(ctx, b, chatID, conv, prompt.Text, func(ctx context.Context, onUpdate chat.Listener) (*chat.TurnResult, error) {
		return h.engine.Send(ctx, conv, prompt, onUpdate)
	})
}

func (h *Handler) handleRetry(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Chat.Type != models.ChatTypePrivate {
		return
	}
	chatID := update.Message.Chat.ID
	h.retry(ctx, b, chatID)
}

func (h *Handler) handleRetryCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	chatID, messageID, ok := callbackMessage(update)
	if !ok {
		answer(ctx, b, update, "")
		return
	}

	conv := middleware.GetConversation(ctx)
	if conv == nil {
		answer(ctx, b, update, "")
		return
	}
	if _, pending := conv.PendingRetry(); !pending {
		answer(ctx, b, update, "Nothing to retry")
		return
	}
	answer(ctx, b, update, "")

	// The banner is replaced by a fresh status message.
	_, _ = b.DeleteMessage(ctx, &bot.DeleteMessageParams{ChatID: chatID, MessageID: messageID})
	h.retry(ctx, b, chatID)
}

func (h *Handler) retry(ctx context.Context, b *bot.Bot, chatID int64) {
	conv := middleware.GetConversation(ctx)
	if conv == nil {
		return
	}
	p, ok := conv.PendingRetry()
	if !ok {
		sendText(ctx, b, chatID, errorBanner(domain.ErrNothingToRetry))
		return
	}
	h.runTurn(ctx, b, chatID, conv, p.Text, func(ctx context.Context, onUpdate chat.Listener) (*chat.TurnResult, error) {
		return h.engine.Retry(ctx, conv, onUpdate)
	})
}

// runTurn shows a status message, mirrors streamed text into it and replaces
// it with the answer, or with an error banner when the turn fails.
func (h *Handler) runTurn(ctx context.Context, b *bot.Bot, chatID int64, conv *chat.Conversation, promptText string, turn turnFunc) {
	if conv.InFlight() {
		sendText(ctx, b, chatID, errorBanner(domain.ErrStreamInProgress))
		return
	}

	stopTyping := tg.StartTyping(ctx, b, chatID)
	defer stopTyping()

	status, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   "⏳ Generating...",
	})
	if err != nil {
		slog.Error("send status message", "error", err, "chat_id", chatID)
		return
	}

	renderer := tg.NewStreamRenderer(func(ctx context.Context, text string) error {
		return tg.EditMessage(ctx, b, chatID, status.ID, text, nil)
	}, config.StreamEditInterval)

	turnCtx, cancel := context.WithTimeout(ctx, config.StreamTimeout)
	defer cancel()

	start := time.Now()
	result, err := turn(turnCtx, func(m domain.ChatMessage) {
		if m.Role == domain.RoleAssistant {
			renderer.Update(turnCtx, m.Text)
		}
	})
	if err != nil {
		h.showError(ctx, b, chatID, status.ID, conv, err)
		return
	}

	h.deliver(ctx, b, chatID, status.ID, result)
	h.tgLogger.LogGeneration(chatID, promptText, len(result.Images), time.Since(start))
}

func (h *Handler) showError(ctx context.Context, b *bot.Bot, chatID int64, statusID int, conv *chat.Conversation, err error) {
	if isUserError(err) {
		slog.Debug("turn rejected", "error", err, "chat_id", chatID)
	} else {
		slog.Error("generation failed", "error", err, "chat_id", chatID)
		h.tgLogger.LogError(err, fmt.Sprintf("generation for chat %d", chatID))
	}

	var markup models.ReplyMarkup
	if _, ok := conv.PendingRetry(); ok {
		markup = tg.InlineKeyboard(tg.ButtonRow(tg.InlineButton("🔁 Retry", cbRetry)))
	}
	if editErr := tg.EditMessage(ctx, b, chatID, statusID, errorBanner(err), markup); editErr != nil {
		slog.Warn("show error banner", "error", editErr, "chat_id", chatID)
	}
}

// deliver puts the answer text into the status message and sends every
// generated image as a photo.
func (h *Handler) deliver(ctx context.Context, b *bot.Bot, chatID int64, statusID int, result *chat.TurnResult) {
	if text := result.Message.Text; text != "" {
		if err := tg.ReplaceWithLongMessage(ctx, b, chatID, statusID, text); err != nil {
			slog.Warn("deliver answer", "error", err, "chat_id", chatID)
		}
	} else {
		_, _ = b.DeleteMessage(ctx, &bot.DeleteMessageParams{ChatID: chatID, MessageID: statusID})
	}

	for _, img := range result.Images {
		if _, err := h.sendImage(ctx, b, chatID, img, "", nil); err != nil {
			slog.Error("send generated image", "error", err, "chat_id", chatID, "url", img.URL)
		}
	}

	if result.Credits != nil {
		sendText(ctx, b, chatID, fmt.Sprintf("💳 Credits left: %s", result.Credits.String()))
	}
}

// sendImage uploads an image from the cache. Remote images that are not
// cached are passed to Telegram by URL.
func (h *Handler) sendImage(ctx context.Context, b *bot.Bot, chatID int64, img domain.ImageData, caption string, markup models.ReplyMarkup) (*models.Message, error) {
	data, cached, err := h.images.Get(ctx, img.URL)
	if err == nil {
		return tg.SendPhotoBytes(ctx, b, chatID, data, photoName(cached), caption, markup)
	}
	if img.IsGenerated() || img.URL == "" {
		return nil, err
	}

	slog.Warn("image not cached, sending by url", "error", err, "url", img.URL)
	params := &bot.SendPhotoParams{
		ChatID:  chatID,
		Photo:   &models.InputFileString{Data: img.URL},
		Caption: tg.Truncate(caption, config.MaxCaptionLen),
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	return b.SendPhoto(ctx, params)
}

func photoName(img domain.ImageData) string {
	if img.Path != "" {
		return filepath.Base(img.Path)
	}
	return "image.png"
}

// imageFileID returns the file to download for a photo message: the largest
// photo size, or a document sent as an image file.
func imageFileID(msg *models.Message) string {
	if n := len(msg.Photo); n > 0 {
		return msg.Photo[n-1].FileID
	}
	if msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/") {
		return msg.Document.FileID
	}
	return ""
}
