package service

import (
	"context"

	"Kavach/internal/domain/models"
)

// PriceProvider is one upstream market-data source. Implementations must
// return *models.ProviderError on failure and never panic.
type PriceProvider interface {
	Name() string
	FetchLatest(ctx context.Context, ticker string) (float64, error)
	FetchHistory(ctx context.Context, ticker string, lookbackDays int) (models.PriceSeries, error)
}

// MarketData is the resilient fetch layer seen by the rest of the system.
type MarketData interface {
	LatestPrice(ctx context.Context, ticker string) (float64, error)
	History(ctx context.Context, ticker string) (models.PriceSeries, error)
	LatestPrices(ctx context.Context, tickers []string) models.LatestPrices
}

// RegimeClassifier turns price history into a regime assessment.
// safe may be nil; a nil risky series yields the fallback assessment.
type RegimeClassifier interface {
	Classify(risky, safe *models.PriceSeries) models.RegimeAssessment
}
