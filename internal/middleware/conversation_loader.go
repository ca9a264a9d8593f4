package middleware

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/pixchat/internal/chat"
)

type ctxKey string

const ConversationKey ctxKey = "conversation"

// ConversationSource resolves the active conversation of a chat.
type ConversationSource interface {
	Get(ctx context.Context, ownerID int64) (*chat.Conversation, error)
}

// GetConversation extracts the active conversation from context.
func GetConversation(ctx context.Context) *chat.Conversation {
	c, ok := ctx.Value(ConversationKey).(*chat.Conversation)
	if !ok {
		return nil
	}
	return c
}

// WithConversation stores conv in ctx.
func WithConversation(ctx context.Context, conv *chat.Conversation) context.Context {
	return context.WithValue(ctx, ConversationKey, conv)
}

// ConversationLoader returns middleware that loads the chat's active
// conversation into context. Private chats only.
func ConversationLoader(source ConversationSource) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			chatID := ChatID(update)
			if chatID == 0 || !isPrivate(update) {
				next(ctx, b, update)
				return
			}

			conv, err := source.Get(ctx, chatID)
			if err != nil {
				slog.Error("failed to load conversation", "error", err, "chat_id", chatID)
			} else {
				ctx = WithConversation(ctx, conv)
				defer releaseOnPanic(conv.Abort)
			}

			next(ctx, b, update)
		}
	}
}

func isPrivate(update *models.Update) bool {
	switch {
	case update.Message != nil:
		return update.Message.Chat.Type == models.ChatTypePrivate
	case update.CallbackQuery != nil && update.CallbackQuery.Message.Message != nil:
		return update.CallbackQuery.Message.Message.Chat.Type == models.ChatTypePrivate
	}
	return false
}
