// Package chat holds the live state of each conversation and runs
// generation turns against it.
package chat

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/pixchat/internal/domain"
)

// Listener receives a copy of the message that changed.
type Listener func(msg domain.ChatMessage)

// Conversation wraps one chat history. Only one turn may run at a time; the
// turn's assistant message is always the last message until it ends.
type Conversation struct {
	mu       sync.Mutex
	history  *domain.ChatHistory
	inFlight bool
	listener Listener
	failed   *failedTurn
	turnUser uuid.UUID
	lastUsed time.Time
}

// failedTurn is a prompt waiting for Retry. userID is the user message the
// failed turn left in history, or zero if it failed before starting.
type failedTurn struct {
	prompt Prompt
	userID uuid.UUID
}

func NewConversation(history *domain.ChatHistory) *Conversation {
	return &Conversation{history: history, lastUsed: time.Now()}
}

func (c *Conversation) ID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.ID
}

func (c *Conversation) OwnerID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.OwnerID
}

// Begin appends the user message followed by an empty assistant placeholder.
// Any pending retry is discarded.
func (c *Conversation) Begin(text string, images []domain.ImageData, listener Listener) error {
	return c.begin(text, images, listener, false)
}

// BeginRetry starts a turn for the pending retry. Whatever the failed turn
// left in history, its user message and any partial answer, is replaced by
// the new turn.
func (c *Conversation) BeginRetry(text string, images []domain.ImageData, listener Listener) error {
	return c.begin(text, images, listener, true)
}

func (c *Conversation) begin(text string, images []domain.ImageData, listener Listener, retry bool) error {
	if strings.TrimSpace(text) == "" && len(images) == 0 {
		return domain.ErrEmptyPrompt
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return domain.ErrStreamInProgress
	}
	if retry {
		if c.failed == nil {
			c.mu.Unlock()
			return domain.ErrNothingToRetry
		}
		c.truncateAt(c.failed.userID)
	}
	c.inFlight = true
	c.failed = nil
	c.listener = listener
	c.lastUsed = time.Now()

	user := domain.NewMessage(domain.RoleUser, text, images)
	placeholder := domain.NewMessage(domain.RoleAssistant, "", nil)
	c.turnUser = user.ID
	c.history.Messages = append(c.history.Messages, user, placeholder)
	c.history.UpdatedAt = c.lastUsed
	c.mu.Unlock()

	if listener != nil {
		listener(placeholder.Clone())
	}
	return nil
}

// truncateAt drops the message with the given id and everything after it.
func (c *Conversation) truncateAt(id uuid.UUID) {
	if id == uuid.Nil {
		return
	}
	for i, m := range c.history.Messages {
		if m.ID == id {
			c.history.Messages = c.history.Messages[:i]
			return
		}
	}
}

// AppendDelta adds streamed text to the assistant message of the running turn.
func (c *Conversation) AppendDelta(delta string) {
	if delta == "" {
		return
	}
	c.mutateLast(func(m *domain.ChatMessage) {
		m.Text += delta
	})
}

func (c *Conversation) AttachImage(img domain.ImageData) {
	c.mutateLast(func(m *domain.ChatMessage) {
		m.Images = append(m.Images, img)
	})
}

func (c *Conversation) mutateLast(fn func(m *domain.ChatMessage)) {
	c.mu.Lock()
	if !c.inFlight || len(c.history.Messages) == 0 {
		c.mu.Unlock()
		return
	}
	last := &c.history.Messages[len(c.history.Messages)-1]
	fn(last)
	msg := last.Clone()
	listener := c.listener
	c.mu.Unlock()

	if listener != nil {
		listener(msg)
	}
}

// Fail ends the running turn. An assistant message that received nothing is
// removed; partial content is kept. The prompt is remembered for Retry.
func (c *Conversation) Fail(p Prompt) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.inFlight {
		return
	}
	c.endTurn()
	c.failed = &failedTurn{prompt: p, userID: c.turnUser}
}

// Abort ends a running turn whose prompt is unknown. Nothing is left to retry.
func (c *Conversation) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.inFlight {
		return
	}
	c.endTurn()
	c.failed = nil
}

func (c *Conversation) endTurn() {
	if n := len(c.history.Messages); n > 0 {
		last := c.history.Messages[n-1]
		if last.Role == domain.RoleAssistant && last.IsEmpty() {
			c.history.Messages = c.history.Messages[:n-1]
		}
	}
	c.inFlight = false
	c.listener = nil
	c.lastUsed = time.Now()
}

// Reject remembers a prompt that failed before its turn could start, so it
// can still be retried. History is left untouched.
func (c *Conversation) Reject(p Prompt) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight {
		return
	}
	c.failed = &failedTurn{prompt: p}
	c.lastUsed = time.Now()
}

func (c *Conversation) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inFlight = false
	c.listener = nil
	c.turnUser = uuid.Nil
	c.lastUsed = time.Now()
	c.history.UpdatedAt = c.lastUsed
}

// PendingRetry returns the prompt of the last failed turn, if any.
func (c *Conversation) PendingRetry() (Prompt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed == nil || c.inFlight {
		return Prompt{}, false
	}
	return c.failed.prompt, true
}

func (c *Conversation) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Snapshot returns a deep copy of the history.
func (c *Conversation) Snapshot() *domain.ChatHistory {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Clone()
}

func (c *Conversation) LastMessage() (domain.ChatMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.history.Messages) == 0 {
		return domain.ChatMessage{}, false
	}
	return c.history.Messages[len(c.history.Messages)-1].Clone(), true
}

func (c *Conversation) idleSince() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed, c.inFlight
}
