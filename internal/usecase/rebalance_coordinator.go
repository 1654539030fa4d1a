package usecase

import (
	"context"
	"fmt"
	"time"

	"Kavach/internal/domain/models"
	"Kavach/internal/domain/service"
	"Kavach/internal/services/allocation"

	"github.com/google/uuid"
)

// Coordinator executes deploy and rebalance against a portfolio snapshot.
// It never decides whether a rebalance is due; callers do.
type Coordinator struct {
	engine *allocation.Engine
	market service.MarketData
	now    func() time.Time
	newID  func() string
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorClock overrides the timestamp source.
func WithCoordinatorClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// WithRecordIDs overrides record id generation.
func WithRecordIDs(newID func() string) CoordinatorOption {
	return func(c *Coordinator) { c.newID = newID }
}

func NewCoordinator(engine *allocation.Engine, market service.MarketData, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		engine: engine,
		market: market,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Deploy invests the whole uninvested cash balance under regime. p is
// mutated in place; the caller persists it.
func (c *Coordinator) Deploy(ctx context.Context, p *models.Portfolio, regime models.Regime) (*models.RebalanceOutcome, error) {
	if p == nil {
		return nil, fmt.Errorf("deploy: nil portfolio")
	}
	if p.Deployed || len(p.Holdings) > 0 {
		return nil, models.ErrAlreadyDeployed
	}
	if p.UninvestedCash <= 0 {
		return nil, models.ErrNoCapital
	}

	prices := c.prices(ctx)
	before := p.UninvestedCash
	target := c.engine.Compute(regime, before, prices)
	now := c.now().UTC()

	for _, sym := range c.engine.Symbols() {
		qty := target[sym]
		if qty <= 0 {
			continue
		}
		p.Holdings = append(p.Holdings, &models.Holding{
			Symbol:      sym,
			Quantity:    qty,
			AvgPrice:    c.engine.PriceOf(sym, prices),
			Class:       c.engine.ClassOf(sym),
			LastUpdated: now,
		})
	}
	p.UninvestedCash = 0
	p.Deployed = true
	p.LastRegime = regime
	p.UpdatedAt = now

	after := c.engine.Value(target, prices)
	rec := models.RebalanceRecord{
		ID:          c.newID(),
		PortfolioID: p.ID,
		Action:      models.ActionDeploy,
		Regime:      regime,
		Reasoning:   fmt.Sprintf("Deployed capital in %s regime. Target allocation: %s", regime, c.engine.Describe(regime)),
		ValueBefore: before,
		ValueAfter:  after,
		Timestamp:   now,
	}
	return c.outcome(regime, target, prices, after, rec), nil
}

// Rebalance moves every target symbol to the allocation for regime, valued
// at current prices.
func (c *Coordinator) Rebalance(ctx context.Context, p *models.Portfolio, regime models.Regime) (*models.RebalanceOutcome, error) {
	if p == nil {
		return nil, fmt.Errorf("rebalance: nil portfolio")
	}
	if !p.Deployed {
		return nil, models.ErrNotDeployed
	}

	prices := c.prices(ctx)
	before := c.currentValue(p, prices)
	target := c.engine.Compute(regime, before, prices)
	now := c.now().UTC()

	// Holdings outside the allocation set were counted in before, so their
	// value now lives in target and the positions are closed.
	kept := p.Holdings[:0]
	for _, h := range p.Holdings {
		if _, ok := target[h.Symbol]; ok {
			kept = append(kept, h)
		}
	}
	p.Holdings = kept

	for _, sym := range c.engine.Symbols() {
		qty := target[sym]
		price := c.engine.PriceOf(sym, prices)
		if h := p.Holding(sym); h != nil {
			h.Quantity = qty
			h.AvgPrice = price
			h.LastUpdated = now
			continue
		}
		p.Holdings = append(p.Holdings, &models.Holding{
			Symbol:      sym,
			Quantity:    qty,
			AvgPrice:    price,
			Class:       c.engine.ClassOf(sym),
			LastUpdated: now,
		})
	}
	p.LastRegime = regime
	p.UpdatedAt = now

	after := c.engine.Value(target, prices)
	rec := models.RebalanceRecord{
		ID:          c.newID(),
		PortfolioID: p.ID,
		Action:      models.ActionRebalance,
		Regime:      regime,
		Reasoning:   fmt.Sprintf("Rebalanced portfolio due to regime change to %s. Target: %s", regime, c.engine.Describe(regime)),
		ValueBefore: before,
		ValueAfter:  after,
		Timestamp:   now,
	}
	return c.outcome(regime, target, prices, after, rec), nil
}

// prices fetches the allocation tickers; a failed lookup is priced at 0.
func (c *Coordinator) prices(ctx context.Context) map[string]float64 {
	tickers := c.engine.PricedTickers()
	latest := c.market.LatestPrices(ctx, tickers)
	out := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		out[t] = latest.PriceOrZero(t)
	}
	return out
}

func (c *Coordinator) currentValue(p *models.Portfolio, prices map[string]float64) float64 {
	total := 0.0
	for _, h := range p.Holdings {
		price, fetched := prices[h.Symbol]
		switch {
		case h.Symbol == c.engine.CashSymbol():
			price = 1
		case !fetched:
			price = h.AvgPrice
		}
		total += price * h.Quantity
	}
	return total
}

func (c *Coordinator) outcome(regime models.Regime, target models.AllocationTarget, prices map[string]float64, value float64, rec models.RebalanceRecord) *models.RebalanceOutcome {
	return &models.RebalanceOutcome{
		Regime:         regime,
		Allocation:     c.engine.DollarAllocation(target, prices),
		Quantities:     target,
		PortfolioValue: allocation.RoundCents(value),
		Record:         rec,
	}
}
