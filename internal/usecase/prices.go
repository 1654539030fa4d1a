package usecase

import (
	"context"
	"time"

	"Kavach/internal/domain/models"
	domrepo "Kavach/internal/domain/repository"
	"Kavach/internal/domain/service"
	"Kavach/pkg/util"
)

// PriceUseCase serves batch latest prices.
type PriceUseCase struct {
	market  service.MarketData
	metrics domrepo.Metrics
}

func NewPriceUseCase(market service.MarketData, metrics domrepo.Metrics) *PriceUseCase {
	return &PriceUseCase{market: market, metrics: metrics}
}

// FetchLatestPrices returns one entry per ticker. An empty list means the
// default ticker set.
func (uc *PriceUseCase) FetchLatestPrices(ctx context.Context, tickers []string) models.LatestPrices {
	if len(tickers) == 0 {
		tickers = util.ParseTickers("")
	}
	start := time.Now()
	res := uc.market.LatestPrices(ctx, tickers)
	uc.metrics.RecordLatency("latest_prices", time.Since(start).Seconds())
	return res
}
