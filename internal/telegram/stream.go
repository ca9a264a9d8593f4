package telegram

import (
	"context"
	"sync"
	"time"

	"github.com/set-night/pixchat/internal/config"
)

const streamCursor = " ▌"

// EditFunc replaces the visible text of a status message.
type EditFunc func(ctx context.Context, text string) error

// StreamRenderer mirrors a growing answer into one status message without
// exceeding Telegram's edit rate. Updates that arrive inside the interval are
// coalesced; the newest text wins.
type StreamRenderer struct {
	edit     EditFunc
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	shown    string
	lastEdit time.Time
}

func NewStreamRenderer(edit EditFunc, interval time.Duration) *StreamRenderer {
	return &StreamRenderer{
		edit:     edit,
		interval: interval,
		now:      time.Now,
	}
}

// Update shows text with a cursor if the interval since the previous edit
// has elapsed. Edit errors are ignored; the next update tries again.
func (r *StreamRenderer) Update(ctx context.Context, text string) {
	if text == "" {
		return
	}
	text = Truncate(text, config.MaxTelegramMessageLen-len([]rune(streamCursor))) + streamCursor

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if text == r.shown || (!r.lastEdit.IsZero() && now.Sub(r.lastEdit) < r.interval) {
		return
	}
	if err := r.edit(ctx, text); err != nil {
		return
	}
	r.shown = text
	r.lastEdit = now
}

// Shown returns the last text successfully rendered.
func (r *StreamRenderer) Shown() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shown
}
