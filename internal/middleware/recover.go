package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// PanicReporter forwards a recovered panic to the ops log.
type PanicReporter func(err error, where string)

// Recover returns middleware that recovers from panics. The panic is logged
// with its stack, passed to report and the user is told the request failed.
func Recover(report PanicReporter) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				chatID := ChatID(update)
				slog.Error("panic recovered in handler",
					"panic", r,
					"chat_id", chatID,
					"update_id", update.ID,
					"stack", string(debug.Stack()),
				)
				if report != nil {
					report(fmt.Errorf("panic: %v", r), fmt.Sprintf("update %d, chat %d", update.ID, chatID))
				}
				if b != nil && chatID != 0 {
					_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
						ChatID: chatID,
						Text:   "❌ Something went wrong. Please try again.",
					})
				}
			}()
			next(ctx, b, update)
		}
	}
}

// releaseOnPanic ends a turn the panicking handler left running, so the
// conversation accepts new prompts, then lets the panic continue to Recover.
func releaseOnPanic(release func()) {
	if r := recover(); r != nil {
		release()
		panic(r)
	}
}
