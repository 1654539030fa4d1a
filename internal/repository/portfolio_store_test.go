package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"Kavach/internal/domain/models"
	"Kavach/pkg/cache"
)

func newStore(t *testing.T) *PortfolioStore {
	t.Helper()
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	s := NewPortfolioStore(mc, time.Minute)
	s.lockWait = 50 * time.Millisecond
	s.poll = 5 * time.Millisecond
	return s
}

func TestPortfolioStoreCreateGetSave(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	if _, err := s.Get(ctx, "p1"); !errors.Is(err, models.ErrPortfolioNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	p := &models.Portfolio{ID: "p1", UninvestedCash: 100000}
	if err := s.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, &models.Portfolio{ID: "p1"}); !errors.Is(err, models.ErrPortfolioExists) {
		t.Fatalf("expected exists, got %v", err)
	}

	got, err := s.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Deployed = true
	got.Holdings = append(got.Holdings, &models.Holding{Symbol: "GLD", Quantity: 75, AvgPrice: 200})
	if err := s.Save(ctx, got); err != nil {
		t.Fatalf("Save: %v", err)
	}

	again, _ := s.Get(ctx, "p1")
	if !again.Deployed || again.Holding("GLD") == nil || again.Holding("GLD").Quantity != 75 {
		t.Fatalf("saved snapshot not returned: %+v", again)
	}
	if p.Deployed {
		t.Fatalf("stored snapshot must not alias the caller's value")
	}
}

func TestMemoryPortfolioStoreKeepsEveryPortfolio(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryPortfolioStore(time.Minute)

	first := &models.Portfolio{
		ID:       "p0",
		Deployed: true,
		Holdings: []*models.Holding{{Symbol: "USD", Quantity: 100000, AvgPrice: 1}},
	}
	if err := s.Create(ctx, first); err != nil {
		t.Fatalf("Create p0: %v", err)
	}
	for i := 1; i <= 2000; i++ {
		if err := s.Create(ctx, &models.Portfolio{ID: fmt.Sprintf("p%d", i)}); err != nil {
			t.Fatalf("Create p%d: %v", i, err)
		}
	}

	got, err := s.Get(ctx, "p0")
	if err != nil {
		t.Fatalf("p0 lost after later creates: %v", err)
	}
	if !got.Deployed || got.Holding("USD") == nil || got.Holding("USD").Quantity != 100000 {
		t.Fatalf("p0 changed: %+v", got)
	}
	if err := s.Create(ctx, &models.Portfolio{ID: "p0"}); !errors.Is(err, models.ErrPortfolioExists) {
		t.Fatalf("re-create of p0 = %v, want exists", err)
	}
}

func TestPortfolioStoreLock(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	unlock, err := s.Lock(ctx, "p1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, err := s.Lock(ctx, "p1"); !errors.Is(err, models.ErrPortfolioBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
	if other, err := s.Lock(ctx, "p2"); err != nil {
		t.Fatalf("locks must be per portfolio: %v", err)
	} else {
		other()
	}

	unlock()
	again, err := s.Lock(ctx, "p1")
	if err != nil {
		t.Fatalf("Lock after unlock: %v", err)
	}
	again()
}
