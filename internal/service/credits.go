package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/set-night/pixchat/internal/domain"
	"github.com/shopspring/decimal"
)

type CreditsFetcher interface {
	Credits(ctx context.Context, userID int64) (decimal.Decimal, error)
}

// CreditsService caches per-owner credit balances for a short TTL.
type CreditsService struct {
	fetcher CreditsFetcher
	enabled bool
	ttl     time.Duration

	mu    sync.RWMutex
	cache map[int64]domain.Credits
	now   func() time.Time
}

func NewCreditsService(fetcher CreditsFetcher, enabled bool, ttl time.Duration) *CreditsService {
	return &CreditsService{
		fetcher: fetcher,
		enabled: enabled,
		ttl:     ttl,
		cache:   make(map[int64]domain.Credits),
		now:     time.Now,
	}
}

func (s *CreditsService) Enabled() bool {
	return s.enabled
}

func (s *CreditsService) Get(ctx context.Context, ownerID int64) (domain.Credits, error) {
	s.mu.RLock()
	cached, ok := s.cache[ownerID]
	s.mu.RUnlock()
	if ok && s.now().Sub(cached.FetchedAt) < s.ttl {
		return cached, nil
	}

	balance, err := s.fetcher.Credits(ctx, ownerID)
	if err != nil {
		return domain.Credits{}, fmt.Errorf("fetch credits: %w", err)
	}
	return s.Update(ownerID, balance), nil
}

// Check fails with ErrInsufficientCredits when the owner has nothing left.
// It always passes when credits are not configured.
func (s *CreditsService) Check(ctx context.Context, ownerID int64) error {
	if !s.enabled {
		return nil
	}
	credits, err := s.Get(ctx, ownerID)
	if err != nil {
		return err
	}
	if credits.IsExhausted() {
		return domain.ErrInsufficientCredits
	}
	return nil
}

// Update records a balance reported by the backend.
func (s *CreditsService) Update(ownerID int64, balance decimal.Decimal) domain.Credits {
	credits := domain.Credits{Balance: balance, FetchedAt: s.now()}
	s.mu.Lock()
	s.cache[ownerID] = credits
	s.mu.Unlock()
	return credits
}

func (s *CreditsService) Invalidate(ownerID int64) {
	s.mu.Lock()
	delete(s.cache, ownerID)
	s.mu.Unlock()
}
