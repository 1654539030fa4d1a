package repository

import (
	"context"

	"Kavach/internal/domain/models"
)

// PortfolioStore persists portfolio snapshots between requests.
type PortfolioStore interface {
	Create(ctx context.Context, p *models.Portfolio) error
	Get(ctx context.Context, id string) (*models.Portfolio, error)
	Save(ctx context.Context, p *models.Portfolio) error
	// Lock serialises deploy and rebalance for one portfolio. The returned
	// func releases the lock.
	Lock(ctx context.Context, id string) (func(), error)
}

// DecisionSink records regime assessments and rebalance records.
type DecisionSink interface {
	RecordAssessment(ctx context.Context, a *models.RegimeAssessment) error
	RecordRebalance(ctx context.Context, r *models.RebalanceRecord) error
}

// Metrics is the instrumentation surface of the domain services.
type Metrics interface {
	RecordError(kind string)
	RecordProviderAttempt(provider string, ok bool)
	RecordFallback(ticker, provider string)
	RecordExhausted(ticker, kind string)
	RecordLatency(op string, seconds float64)
	RecordRegime(regime models.Regime)
	RecordRebalance(action models.RebalanceAction)
}
