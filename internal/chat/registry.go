package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/pixchat/internal/domain"
)

type HistoryLoader interface {
	LatestChat(ctx context.Context, ownerID int64) (*domain.ChatHistory, error)
	GetChat(ctx context.Context, ownerID int64, id uuid.UUID) (*domain.ChatHistory, error)
}

// Registry tracks the active conversation of every owner (Telegram chat).
type Registry struct {
	loader HistoryLoader

	mu    sync.Mutex
	convs map[int64]*Conversation
}

func NewRegistry(loader HistoryLoader) *Registry {
	return &Registry{loader: loader, convs: make(map[int64]*Conversation)}
}

// Get returns the active conversation, resuming the latest stored chat
// or starting an empty one.
func (r *Registry) Get(ctx context.Context, ownerID int64) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conv, ok := r.convs[ownerID]; ok {
		return conv, nil
	}

	history, err := r.loader.LatestChat(ctx, ownerID)
	switch {
	case errors.Is(err, domain.ErrHistoryNotFound):
		history = domain.NewChatHistory(ownerID)
	case err != nil:
		return nil, fmt.Errorf("load latest chat: %w", err)
	}

	conv := NewConversation(history)
	r.convs[ownerID] = conv
	return conv, nil
}

// StartNew replaces the active conversation with an empty chat.
func (r *Registry) StartNew(ownerID int64) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.convs[ownerID]; ok && cur.InFlight() {
		return nil, domain.ErrStreamInProgress
	}
	conv := NewConversation(domain.NewChatHistory(ownerID))
	r.convs[ownerID] = conv
	return conv, nil
}

// Switch makes a stored chat the active conversation.
func (r *Registry) Switch(ctx context.Context, ownerID int64, id uuid.UUID) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.convs[ownerID]
	if ok && cur.InFlight() {
		return nil, domain.ErrStreamInProgress
	}
	if ok && cur.ID() == id {
		return cur, nil
	}

	history, err := r.loader.GetChat(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	conv := NewConversation(history)
	r.convs[ownerID] = conv
	return conv, nil
}

// Forget drops the active conversation if it is the chat with the given id.
func (r *Registry) Forget(ownerID int64, id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.convs[ownerID]; ok && cur.ID() == id {
		delete(r.convs, ownerID)
	}
}

// Sweep evicts conversations idle for longer than ttl. Running turns are kept.
func (r *Registry) Sweep(ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for owner, conv := range r.convs {
		last, inFlight := conv.idleSince()
		if !inFlight && time.Since(last) > ttl {
			delete(r.convs, owner)
			evicted++
		}
	}
	return evicted
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.convs)
}
