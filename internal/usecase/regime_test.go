package usecase

import (
	"context"
	"testing"
	"time"

	"Kavach/internal/domain/models"
	"Kavach/internal/services/regime"
	applogger "Kavach/pkg/logger"
)

func flatSeries(ticker string, n int, price float64) models.PriceSeries {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	pts := make([]models.PricePoint, n)
	for i := range pts {
		pts[i] = models.PricePoint{Date: start.AddDate(0, 0, i), Close: price}
	}
	return models.NewPriceSeries(ticker, pts)
}

func newRegimeUseCase(market *stubMarket, sink *memorySink, metrics *nopMetrics) *RegimeUseCase {
	return NewRegimeUseCase(market, regime.NewDetector(), sink, nil, metrics, applogger.Nop(), "BTC-USD", "GLD")
}

func TestRegimeDetectRecordsAssessment(t *testing.T) {
	market := &stubMarket{history: map[string]models.PriceSeries{
		"BTC-USD": flatSeries("BTC-USD", 220, 100),
		"GLD":     flatSeries("GLD", 220, 180),
	}}
	sink, metrics := &memorySink{}, &nopMetrics{}

	a := newRegimeUseCase(market, sink, metrics).Detect(context.Background(), "", "")
	if a.Regime != models.RegimeBull || a.DetectedBy != models.DetectedByZScore {
		t.Fatalf("unexpected assessment %+v", a)
	}
	if a.ID == "" || a.RiskyTicker != "BTC-USD" || a.SafeTicker != "GLD" || a.Errors != nil {
		t.Fatalf("unexpected identity fields %+v", a)
	}
	if len(sink.assessments) != 1 || len(metrics.regimes) != 1 {
		t.Fatalf("assessment not recorded")
	}
}

func TestRegimeDetectFallsBackWhenRiskyHistoryFails(t *testing.T) {
	market := &stubMarket{history: map[string]models.PriceSeries{"GLD": flatSeries("GLD", 30, 180)}}

	a := newRegimeUseCase(market, &memorySink{}, &nopMetrics{}).Detect(context.Background(), "SOL-USD", "")
	if a.DetectedBy != models.DetectedByFallback || a.Regime != models.RegimeBull {
		t.Fatalf("expected fallback, got %+v", a)
	}
	if len(a.Reasoning) != 1 || a.Reasoning[0] != "Insufficient risky asset history" {
		t.Fatalf("unexpected reasoning %v", a.Reasoning)
	}
	if a.Errors["SOL-USD"] == "" || a.RiskyTicker != "SOL-USD" {
		t.Fatalf("expected fetch error for SOL-USD, got %v", a.Errors)
	}
}

func TestPriceUseCaseDefaultsTickers(t *testing.T) {
	market := defaultMarket()
	res := NewPriceUseCase(market, &nopMetrics{}).FetchLatestPrices(context.Background(), nil)
	if len(res.Prices) != 4 {
		t.Fatalf("expected the default ticker set, got %v", res.Prices)
	}
	if res.Prices["TLT"] != nil || res.Errors["TLT"] == "" {
		t.Fatalf("TLT has no stub price and must fail alone: %v %v", res.Prices, res.Errors)
	}
	if *res.Prices["GLD"] != 200 {
		t.Fatalf("GLD = %v", *res.Prices["GLD"])
	}
}
