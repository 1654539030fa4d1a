package allocation

import (
	"fmt"
	"math"
	"strings"

	"Kavach/internal/domain/models"

	"github.com/shopspring/decimal"
)

// Weights is the risky/safe/cash split for one regime.
type Weights struct {
	Risky float64
	Safe  float64
	Cash  float64
}

func (w Weights) String() string {
	return fmt.Sprintf("risky=%.2f safe=%.2f cash=%.2f", w.Risky, w.Safe, w.Cash)
}

// Config is the asset universe and weight table.
type Config struct {
	RiskyTickers []string
	SafeTicker   string
	CashSymbol   string
	Weights      map[models.Regime]Weights
}

// DefaultConfig returns BTC/ETH as risky, GLD as safe and USD as cash.
func DefaultConfig() Config {
	return Config{
		RiskyTickers: []string{"BTC-USD", "ETH-USD"},
		SafeTicker:   "GLD",
		CashSymbol:   "USD",
		Weights: map[models.Regime]Weights{
			models.RegimeBull:     {Risky: 0.80, Safe: 0.15, Cash: 0.05},
			models.RegimeVolatile: {Risky: 0.40, Safe: 0.50, Cash: 0.10},
			models.RegimeCrash:    {Risky: 0.00, Safe: 0.00, Cash: 1.00},
		},
	}
}

// Engine turns a regime and a portfolio value into target quantities.
type Engine struct {
	cfg Config
}

// NewEngine validates the weight table and returns an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if len(cfg.RiskyTickers) == 0 {
		return nil, fmt.Errorf("allocation: no risky tickers")
	}
	if cfg.SafeTicker == "" || cfg.CashSymbol == "" {
		return nil, fmt.Errorf("allocation: safe ticker and cash symbol are required")
	}
	for _, regime := range []models.Regime{models.RegimeBull, models.RegimeVolatile, models.RegimeCrash} {
		if _, ok := cfg.Weights[regime]; !ok {
			return nil, fmt.Errorf("allocation: missing weights for %s", regime)
		}
	}
	for regime, w := range cfg.Weights {
		if w.Risky < 0 || w.Safe < 0 || w.Cash < 0 {
			return nil, fmt.Errorf("allocation: negative weight for %s", regime)
		}
		if sum := w.Risky + w.Safe + w.Cash; math.Abs(sum-1) > 1e-9 {
			return nil, fmt.Errorf("allocation: weights for %s sum to %.6f", regime, sum)
		}
	}
	return &Engine{cfg: cfg}, nil
}

// Weights returns the row for regime; unknown regimes use the bull row.
func (e *Engine) Weights(regime models.Regime) Weights {
	if w, ok := e.cfg.Weights[regime]; ok {
		return w
	}
	return e.cfg.Weights[models.RegimeBull]
}

// PricedTickers lists the symbols that need a market price, in target order.
func (e *Engine) PricedTickers() []string {
	out := make([]string, 0, len(e.cfg.RiskyTickers)+1)
	out = append(out, e.cfg.RiskyTickers...)
	return append(out, e.cfg.SafeTicker)
}

// Symbols lists every target symbol including cash.
func (e *Engine) Symbols() []string {
	return append(e.PricedTickers(), e.cfg.CashSymbol)
}

// CashSymbol is the symbol whose quantity is a dollar amount.
func (e *Engine) CashSymbol() string { return e.cfg.CashSymbol }

// ClassOf returns the holding class of symbol.
func (e *Engine) ClassOf(symbol string) models.HoldingClass {
	switch symbol {
	case e.cfg.CashSymbol:
		return models.HoldingCash
	case e.cfg.SafeTicker:
		return models.HoldingSafe
	}
	return models.HoldingRisky
}

// Compute splits totalValue by the regime weights. The risky budget is
// divided evenly across the risky tickers. A missing or non-positive price
// yields a zero quantity; the cash quantity equals its dollar budget.
func (e *Engine) Compute(regime models.Regime, totalValue float64, prices map[string]float64) models.AllocationTarget {
	w := e.Weights(regime)
	target := make(models.AllocationTarget, len(e.cfg.RiskyTickers)+2)

	perRisky := totalValue * w.Risky / float64(len(e.cfg.RiskyTickers))
	for _, t := range e.cfg.RiskyTickers {
		target[t] = units(perRisky, prices[t])
	}
	target[e.cfg.SafeTicker] = units(totalValue*w.Safe, prices[e.cfg.SafeTicker])
	target[e.cfg.CashSymbol] = totalValue * w.Cash
	return target
}

// PriceOf returns the unit price used to value symbol: 1 for cash,
// otherwise the quoted price (0 when absent).
func (e *Engine) PriceOf(symbol string, prices map[string]float64) float64 {
	if symbol == e.cfg.CashSymbol {
		return 1
	}
	return prices[symbol]
}

// Value sums price times quantity over target.
func (e *Engine) Value(target models.AllocationTarget, prices map[string]float64) float64 {
	total := 0.0
	for _, sym := range e.Symbols() {
		total += e.PriceOf(sym, prices) * target[sym]
	}
	return total
}

// DollarAllocation returns the value of every target symbol rounded to cents.
func (e *Engine) DollarAllocation(target models.AllocationTarget, prices map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(target))
	for _, sym := range e.Symbols() {
		out[sym] = RoundCents(e.PriceOf(sym, prices) * target[sym])
	}
	return out
}

// Describe renders the target weights for a record's reasoning.
func (e *Engine) Describe(regime models.Regime) string {
	w := e.Weights(regime)
	parts := []string{
		fmt.Sprintf("%s %.0f%%", strings.Join(e.cfg.RiskyTickers, "/"), w.Risky*100),
		fmt.Sprintf("%s %.0f%%", e.cfg.SafeTicker, w.Safe*100),
		fmt.Sprintf("%s %.0f%%", e.cfg.CashSymbol, w.Cash*100),
	}
	return strings.Join(parts, ", ")
}

// RoundCents rounds a dollar amount half away from zero to two decimals.
func RoundCents(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

func units(budget, price float64) float64 {
	if price <= 0 || math.IsNaN(price) {
		return 0
	}
	return budget / price
}
