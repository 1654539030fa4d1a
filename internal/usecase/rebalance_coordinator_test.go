package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"Kavach/internal/domain/models"
	"Kavach/internal/services/allocation"
)

var fixedNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func near(a, b float64) bool { return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(b)) }

func newCoordinator(t *testing.T, market *stubMarket) *Coordinator {
	t.Helper()
	engine, err := allocation.NewEngine(allocation.DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ids := 0
	return NewCoordinator(engine, market,
		WithCoordinatorClock(func() time.Time { return fixedNow }),
		WithRecordIDs(func() string { ids++; return "rec-" + string(rune('0'+ids)) }),
	)
}

func defaultMarket() *stubMarket {
	return &stubMarket{prices: map[string]float64{"BTC-USD": 50000, "ETH-USD": 50000, "GLD": 200}}
}

func quantities(p *models.Portfolio) map[string]float64 {
	out := map[string]float64{}
	for _, h := range p.Holdings {
		out[h.Symbol] = h.Quantity
	}
	return out
}

func TestDeployBull(t *testing.T) {
	c := newCoordinator(t, defaultMarket())
	p := &models.Portfolio{ID: "p1", UninvestedCash: 100000}

	out, err := c.Deploy(context.Background(), p, models.RegimeBull)
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}

	want := map[string]float64{"BTC-USD": 0.8, "ETH-USD": 0.8, "GLD": 75, "USD": 5000}
	got := quantities(p)
	if len(got) != len(want) {
		t.Fatalf("holdings = %v, want %v", got, want)
	}
	for sym, q := range want {
		if !near(got[sym], q) {
			t.Fatalf("%s: quantity %v, want %v", sym, got[sym], q)
		}
	}
	if p.UninvestedCash != 0 || !p.Deployed || p.LastRegime != models.RegimeBull {
		t.Fatalf("unexpected portfolio state %+v", p)
	}
	if h := p.Holding("USD"); h.AvgPrice != 1 || h.Class != models.HoldingCash {
		t.Fatalf("cash holding basis = %+v", h)
	}
	if h := p.Holding("GLD"); h.AvgPrice != 200 || h.Class != models.HoldingSafe || !h.LastUpdated.Equal(fixedNow) {
		t.Fatalf("GLD holding = %+v", h)
	}

	rec := out.Record
	if rec.Action != models.ActionDeploy || rec.ValueBefore != 100000 || !near(rec.ValueAfter, 100000) {
		t.Fatalf("unexpected record %+v", rec)
	}
	wantReason := "Deployed capital in bull regime. Target allocation: BTC-USD/ETH-USD 80%, GLD 15%, USD 5%"
	if rec.Reasoning != wantReason {
		t.Fatalf("reasoning = %q, want %q", rec.Reasoning, wantReason)
	}
	if out.Allocation["BTC-USD"] != 40000 || out.Allocation["GLD"] != 15000 || out.Allocation["USD"] != 5000 {
		t.Fatalf("unexpected allocation %v", out.Allocation)
	}
	if out.PortfolioValue != 100000 {
		t.Fatalf("portfolio value = %v", out.PortfolioValue)
	}
}

func TestDeployErrors(t *testing.T) {
	c := newCoordinator(t, defaultMarket())
	ctx := context.Background()

	t.Run("already deployed", func(t *testing.T) {
		p := &models.Portfolio{ID: "p", UninvestedCash: 10, Deployed: true}
		if _, err := c.Deploy(ctx, p, models.RegimeBull); !errors.Is(err, models.ErrAlreadyDeployed) {
			t.Fatalf("expected ErrAlreadyDeployed, got %v", err)
		}
	})
	t.Run("existing holdings", func(t *testing.T) {
		p := &models.Portfolio{ID: "p", UninvestedCash: 10, Holdings: []*models.Holding{{Symbol: "GLD", Quantity: 1}}}
		if _, err := c.Deploy(ctx, p, models.RegimeBull); !errors.Is(err, models.ErrAlreadyDeployed) {
			t.Fatalf("expected ErrAlreadyDeployed, got %v", err)
		}
	})
	t.Run("no capital", func(t *testing.T) {
		p := &models.Portfolio{ID: "p"}
		if _, err := c.Deploy(ctx, p, models.RegimeBull); !errors.Is(err, models.ErrNoCapital) {
			t.Fatalf("expected ErrNoCapital, got %v", err)
		}
		if p.Deployed || len(p.Holdings) != 0 {
			t.Fatalf("failed deploy must not mutate the portfolio")
		}
	})
}

func TestDeployCrashHoldsOnlyCash(t *testing.T) {
	c := newCoordinator(t, defaultMarket())
	p := &models.Portfolio{ID: "p1", UninvestedCash: 2500}
	if _, err := c.Deploy(context.Background(), p, models.RegimeCrash); err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if len(p.Holdings) != 1 || p.Holdings[0].Symbol != "USD" || p.Holdings[0].Quantity != 2500 {
		t.Fatalf("expected a single cash holding, got %v", quantities(p))
	}
}

func TestDeployFailedPriceGivesZeroQuantity(t *testing.T) {
	market := defaultMarket()
	delete(market.prices, "ETH-USD")
	c := newCoordinator(t, market)
	p := &models.Portfolio{ID: "p1", UninvestedCash: 100000}

	out, err := c.Deploy(context.Background(), p, models.RegimeBull)
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if p.Holding("ETH-USD") != nil {
		t.Fatalf("ETH-USD must not be held when its price failed")
	}
	if !near(out.Record.ValueAfter, 60000) {
		t.Fatalf("value after = %v, want 60000", out.Record.ValueAfter)
	}
}

func TestRebalanceRequiresDeployment(t *testing.T) {
	c := newCoordinator(t, defaultMarket())
	p := &models.Portfolio{ID: "p1", UninvestedCash: 100000}
	if _, err := c.Rebalance(context.Background(), p, models.RegimeCrash); !errors.Is(err, models.ErrNotDeployed) {
		t.Fatalf("expected ErrNotDeployed, got %v", err)
	}
}

func TestRebalanceToCrashThenBack(t *testing.T) {
	market := defaultMarket()
	c := newCoordinator(t, market)
	ctx := context.Background()
	p := &models.Portfolio{ID: "p1", UninvestedCash: 100000}
	if _, err := c.Deploy(ctx, p, models.RegimeBull); err != nil {
		t.Fatalf("Deploy: %v", err)
	}

	market.setPrice("BTC-USD", 40000)
	out, err := c.Rebalance(ctx, p, models.RegimeCrash)
	if err != nil {
		t.Fatalf("Rebalance: %v", err)
	}
	// 0.8*40000 + 0.8*50000 + 75*200 + 5000
	wantValue := 92000.0
	if !near(out.Record.ValueBefore, wantValue) || !near(out.Record.ValueAfter, wantValue) {
		t.Fatalf("values = %v / %v, want %v", out.Record.ValueBefore, out.Record.ValueAfter, wantValue)
	}
	got := quantities(p)
	if got["BTC-USD"] != 0 || got["ETH-USD"] != 0 || got["GLD"] != 0 || !near(got["USD"], wantValue) {
		t.Fatalf("crash holdings = %v", got)
	}
	if len(p.Holdings) != 4 {
		t.Fatalf("zero targets must stay as holdings, got %d", len(p.Holdings))
	}
	if p.LastRegime != models.RegimeCrash {
		t.Fatalf("last regime = %s", p.LastRegime)
	}
	if out.Record.Reasoning != "Rebalanced portfolio due to regime change to crash. Target: BTC-USD/ETH-USD 0%, GLD 0%, USD 100%" {
		t.Fatalf("reasoning = %q", out.Record.Reasoning)
	}

	back, err := c.Rebalance(ctx, p, models.RegimeBull)
	if err != nil {
		t.Fatalf("Rebalance: %v", err)
	}
	if !near(back.Record.ValueBefore, wantValue) {
		t.Fatalf("cash-only value = %v", back.Record.ValueBefore)
	}
	if !near(quantities(p)["BTC-USD"], wantValue*0.4/40000) {
		t.Fatalf("BTC quantity = %v", quantities(p)["BTC-USD"])
	}
}

func TestRebalanceIsIdempotentAtConstantPrices(t *testing.T) {
	c := newCoordinator(t, defaultMarket())
	ctx := context.Background()
	p := &models.Portfolio{ID: "p1", UninvestedCash: 100000}
	if _, err := c.Deploy(ctx, p, models.RegimeVolatile); err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	first := quantities(p)

	out, err := c.Rebalance(ctx, p, models.RegimeVolatile)
	if err != nil {
		t.Fatalf("Rebalance: %v", err)
	}
	for sym, q := range quantities(p) {
		if !near(q, first[sym]) {
			t.Fatalf("%s changed from %v to %v", sym, first[sym], q)
		}
	}
	if !near(out.Record.ValueBefore, out.Record.ValueAfter) {
		t.Fatalf("value changed: %v -> %v", out.Record.ValueBefore, out.Record.ValueAfter)
	}
}

func TestRebalanceLiquidatesHoldingsOutsideAllocation(t *testing.T) {
	c := newCoordinator(t, defaultMarket())
	ctx := context.Background()
	p := &models.Portfolio{
		ID:       "p1",
		Deployed: true,
		Holdings: []*models.Holding{
			{Symbol: "TLT", Quantity: 10, AvgPrice: 95, Class: models.HoldingSafe},
			{Symbol: "USD", Quantity: 50, AvgPrice: 1, Class: models.HoldingCash},
		},
	}
	out, err := c.Rebalance(ctx, p, models.RegimeCrash)
	if err != nil {
		t.Fatalf("Rebalance: %v", err)
	}
	if !near(out.Record.ValueBefore, 1000) || !near(out.Record.ValueAfter, 1000) {
		t.Fatalf("values = %v -> %v, want 1000 -> 1000", out.Record.ValueBefore, out.Record.ValueAfter)
	}
	if p.Holding("TLT") != nil {
		t.Fatalf("TLT should be closed into the new allocation")
	}
	if p.Holding("USD").Quantity != 1000 {
		t.Fatalf("USD = %v, want 1000", p.Holding("USD").Quantity)
	}

	again, err := c.Rebalance(ctx, p, models.RegimeCrash)
	if err != nil {
		t.Fatalf("second Rebalance: %v", err)
	}
	if !near(again.Record.ValueBefore, 1000) || p.Holding("USD").Quantity != 1000 {
		t.Fatalf("second rebalance changed value: before=%v usd=%v", again.Record.ValueBefore, p.Holding("USD").Quantity)
	}
}
