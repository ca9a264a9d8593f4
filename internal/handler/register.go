package handler

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	tg "github.com/set-night/pixchat/internal/telegram"
)

const (
	cbHistoryPage = "hist_page_"
	cbHistoryOpen = "hist_open_"
	cbHistoryDel  = "hist_del_"
	cbNewChat     = "new_chat"
	cbGalleryPage = "gal_page_"
	cbGalleryDel  = "gal_del_"
	cbStyleSelect = "stylesel_"
	cbStyleClear  = "styleclear"
	cbSuggestion  = "suggest_"
	cbRetry       = "retry"
)

// Register registers all command and callback handlers on the bot instance.
// Plain text and photos are not registered here; they reach HandleMessage
// through the bot's default handler.
func (h *Handler) Register() {
	// Commands
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, h.handleStart)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypePrefix, h.handleHelp)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/new", bot.MatchTypePrefix, h.handleNew)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/history", bot.MatchTypePrefix, h.handleHistory)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/gallery", bot.MatchTypePrefix, h.handleGallery)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/credits", bot.MatchTypePrefix, h.handleCredits)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/styles", bot.MatchTypePrefix, h.handleStyles)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/retry", bot.MatchTypePrefix, h.handleRetry)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/stat", bot.MatchTypePrefix, h.handleStat)

	// History callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbHistoryPage, bot.MatchTypePrefix, h.handleHistoryPage)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbHistoryOpen, bot.MatchTypePrefix, h.handleHistoryOpen)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbHistoryDel, bot.MatchTypePrefix, h.handleHistoryDelete)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbNewChat, bot.MatchTypeExact, h.handleNewChatCallback)

	// Gallery callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbGalleryPage, bot.MatchTypePrefix, h.handleGalleryPage)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbGalleryDel, bot.MatchTypePrefix, h.handleGalleryDelete)

	// Style and suggestion callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbStyleSelect, bot.MatchTypePrefix, h.handleStyleSelect)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbStyleClear, bot.MatchTypeExact, h.handleStyleClear)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbSuggestion, bot.MatchTypePrefix, h.handleSuggestion)

	// Retry button of the error banner
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbRetry, bot.MatchTypeExact, h.handleRetryCallback)

	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, tg.NoopCallback, bot.MatchTypeExact, h.handleNoop)
}

// handleNoop acknowledges callbacks of inert buttons such as page counters.
func (h *Handler) handleNoop(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery != nil {
		answer(ctx, b, update, "")
	}
}

// answer acknowledges a callback query, optionally with a toast.
func answer(ctx context.Context, b *bot.Bot, update *models.Update, text string) {
	_, _ = b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: update.CallbackQuery.ID,
		Text:            text,
	})
}

// callbackMessage returns the chat and message a callback button belongs to.
func callbackMessage(update *models.Update) (chatID int64, messageID int, ok bool) {
	msg := update.CallbackQuery.Message.Message
	if msg == nil {
		return 0, 0, false
	}
	return msg.Chat.ID, msg.ID, true
}

func sendText(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
}
