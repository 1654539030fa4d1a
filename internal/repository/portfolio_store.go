package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Kavach/internal/domain/models"
	domrepo "Kavach/internal/domain/repository"
	"Kavach/pkg/cache"
)

var _ domrepo.PortfolioStore = (*PortfolioStore)(nil)

// PortfolioStore keeps portfolio snapshots as JSON in a cache.Service.
// With Redis behind it, locks and snapshots are shared across replicas.
type PortfolioStore struct {
	cache    cache.Service
	lockTTL  time.Duration
	lockWait time.Duration
	poll     time.Duration
}

// NewPortfolioStore creates a store. lockTTL bounds how long a crashed
// holder can block a portfolio.
func NewPortfolioStore(c cache.Service, lockTTL time.Duration) *PortfolioStore {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &PortfolioStore{cache: c, lockTTL: lockTTL, lockWait: 2 * time.Second, poll: 25 * time.Millisecond}
}

// NewMemoryPortfolioStore keeps portfolios in process. The backing cache
// never evicts, so a portfolio lives until the process exits.
func NewMemoryPortfolioStore(lockTTL time.Duration) *PortfolioStore {
	return NewPortfolioStore(cache.NewMemoryCache(cache.WithMemoryMaxSize(0)), lockTTL)
}

func portfolioKey(id string) string { return cache.GenerateKey("portfolio", id) }
func markerKey(id string) string    { return cache.GenerateKey("portfolio:id", id) }
func lockKey(id string) string      { return cache.GenerateKey("portfolio:lock", id) }

// Create stores p unless a portfolio with the same id exists.
func (s *PortfolioStore) Create(ctx context.Context, p *models.Portfolio) error {
	ok, err := s.cache.TryLock(ctx, markerKey(p.ID), 0)
	if err != nil {
		return fmt.Errorf("reserve portfolio id: %w", err)
	}
	if !ok {
		return models.ErrPortfolioExists
	}
	if err := s.cache.Set(ctx, portfolioKey(p.ID), p, 0); err != nil {
		_ = s.cache.Unlock(ctx, markerKey(p.ID))
		return fmt.Errorf("store portfolio: %w", err)
	}
	return nil
}

func (s *PortfolioStore) Get(ctx context.Context, id string) (*models.Portfolio, error) {
	var p models.Portfolio
	if err := s.cache.Get(ctx, portfolioKey(id), &p); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, models.ErrPortfolioNotFound
		}
		return nil, fmt.Errorf("load portfolio: %w", err)
	}
	return &p, nil
}

func (s *PortfolioStore) Save(ctx context.Context, p *models.Portfolio) error {
	if err := s.cache.Set(ctx, portfolioKey(p.ID), p, 0); err != nil {
		return fmt.Errorf("store portfolio: %w", err)
	}
	return nil
}

// Lock polls for the portfolio lock for a short while and gives up with
// ErrPortfolioBusy.
func (s *PortfolioStore) Lock(ctx context.Context, id string) (func(), error) {
	deadline := time.Now().Add(s.lockWait)
	for {
		ok, err := s.cache.TryLock(ctx, lockKey(id), s.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("lock portfolio: %w", err)
		}
		if ok {
			return func() { _ = s.cache.Unlock(context.Background(), lockKey(id)) }, nil
		}
		if time.Now().After(deadline) {
			return nil, models.ErrPortfolioBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.poll):
		}
	}
}
