package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"Kavach/internal/domain/models"
)

// stubMarket serves fixed prices and histories. A ticker without an entry
// fails like an exhausted provider chain.
type stubMarket struct {
	mu      sync.Mutex
	prices  map[string]float64
	history map[string]models.PriceSeries
	calls   int
}

func (m *stubMarket) setPrice(ticker string, p float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[ticker] = p
}

func (m *stubMarket) LatestPrice(_ context.Context, ticker string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	p, ok := m.prices[ticker]
	if !ok {
		return 0, &models.ExhaustedError{Ticker: ticker, Errors: []error{errors.New("yahoo error: down")}}
	}
	return p, nil
}

func (m *stubMarket) History(_ context.Context, ticker string) (models.PriceSeries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.history[ticker]
	if !ok {
		return models.PriceSeries{}, &models.ExhaustedError{Ticker: ticker, Errors: []error{errors.New("stooq error: no data")}}
	}
	return s, nil
}

func (m *stubMarket) LatestPrices(ctx context.Context, tickers []string) models.LatestPrices {
	out := models.LatestPrices{Timestamp: time.Now().UTC(), Prices: map[string]*float64{}}
	for _, t := range tickers {
		p, err := m.LatestPrice(ctx, t)
		if err != nil {
			if out.Errors == nil {
				out.Errors = map[string]string{}
			}
			out.Prices[t] = nil
			out.Errors[t] = err.Error()
			continue
		}
		out.Prices[t] = models.Float(p)
	}
	return out
}

type nopMetrics struct {
	mu         sync.Mutex
	errors     []string
	regimes    []models.Regime
	rebalances []models.RebalanceAction
}

func (m *nopMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, kind)
}
func (m *nopMetrics) RecordProviderAttempt(string, bool) {}
func (m *nopMetrics) RecordFallback(string, string)      {}
func (m *nopMetrics) RecordExhausted(string, string)     {}
func (m *nopMetrics) RecordLatency(string, float64)      {}
func (m *nopMetrics) RecordRegime(r models.Regime) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regimes = append(m.regimes, r)
}
func (m *nopMetrics) RecordRebalance(a models.RebalanceAction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rebalances = append(m.rebalances, a)
}

type memorySink struct {
	mu          sync.Mutex
	assessments []*models.RegimeAssessment
	records     []*models.RebalanceRecord
	err         error
}

func (s *memorySink) RecordAssessment(_ context.Context, a *models.RegimeAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments = append(s.assessments, a)
	return s.err
}

func (s *memorySink) RecordRebalance(_ context.Context, r *models.RebalanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return s.err
}

// fixedDetector returns a scripted regime.
type fixedDetector struct {
	regime models.Regime
	calls  int
}

func (d *fixedDetector) Detect(context.Context, string, string) models.RegimeAssessment {
	d.calls++
	return models.RegimeAssessment{Regime: d.regime, Level: d.regime.Level(), DetectedBy: models.DetectedByZScore}
}
