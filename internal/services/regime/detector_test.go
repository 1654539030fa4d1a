package regime

import (
	"reflect"
	"testing"
	"time"

	"Kavach/internal/domain/models"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestDetector() *Detector {
	return NewDetector(WithClock(func() time.Time { return fixedNow }))
}

func series(ticker string, closes ...float64) *models.PriceSeries {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pts := make([]models.PricePoint, len(closes))
	for i, c := range closes {
		pts[i] = models.PricePoint{Date: start.AddDate(0, 0, i), Close: c}
	}
	s := models.NewPriceSeries(ticker, pts)
	return &s
}

func flat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestClassifyVolatilitySpikeIsCrash(t *testing.T) {
	closes := append(flat(130, 100), 80)
	a := newTestDetector().Classify(series("BTC-USD", closes...), nil)

	if a.Regime != models.RegimeCrash || a.Level != 3 {
		t.Fatalf("expected crash level 3, got %s level %d", a.Regime, a.Level)
	}
	if a.DetectedBy != models.DetectedByZScoreOrSafe {
		t.Fatalf("unexpected detected_by %q", a.DetectedBy)
	}
	if a.Metrics.ZScore == nil || *a.Metrics.ZScore < 3 {
		t.Fatalf("expected z-score >= 3, got %v", a.Metrics.ZScore)
	}
	want := []string{"Volatility z-score: 9.38", "Risky 7d return: -20.00%", "Level 3 triggered"}
	if !reflect.DeepEqual(a.Reasoning, want) {
		t.Fatalf("reasoning = %q, want %q", a.Reasoning, want)
	}
	if a.Metrics.Price == nil || *a.Metrics.Price != 80 {
		t.Fatalf("expected latest price 80, got %v", a.Metrics.Price)
	}
}

func TestClassifyDualDrawdownWithoutZScore(t *testing.T) {
	risky := series("BTC-USD", 100, 100, 100, 99, 98, 97, 96, 95, 94.5, 94)
	safe := series("GLD", 200, 200, 200, 199, 198, 197, 196, 195, 194.5, 194)

	a := newTestDetector().Classify(risky, safe)
	if a.Regime != models.RegimeCrash {
		t.Fatalf("expected crash, got %s", a.Regime)
	}
	if a.Metrics.ZScore != nil {
		t.Fatalf("expected undefined z-score, got %v", *a.Metrics.ZScore)
	}
	want := []string{
		"Insufficient data for volatility z-score",
		"Risky 7d return: -6.00%",
		"Safe 7d return: -3.00%",
		"Level 3 triggered",
	}
	if !reflect.DeepEqual(a.Reasoning, want) {
		t.Fatalf("reasoning = %q, want %q", a.Reasoning, want)
	}
	if a.SafeTicker != "GLD" || a.RiskyTicker != "BTC-USD" {
		t.Fatalf("unexpected tickers %q %q", a.RiskyTicker, a.SafeTicker)
	}
}

func TestClassifyRiskyDropAloneStaysBull(t *testing.T) {
	risky := series("BTC-USD", 100, 100, 100, 99, 98, 97, 96, 95, 94.5, 94)
	safe := series("GLD", 200, 200, 200, 200, 200, 200, 200, 200, 199, 198)

	a := newTestDetector().Classify(risky, safe)
	if a.Regime != models.RegimeBull || a.Level != 1 {
		t.Fatalf("expected bull, got %s", a.Regime)
	}
	want := []string{"Insufficient data for volatility z-score", "Risky 7d return: -6.00%", "Level 1 triggered"}
	if !reflect.DeepEqual(a.Reasoning, want) {
		t.Fatalf("reasoning = %q, want %q", a.Reasoning, want)
	}
}

func TestClassifyMissingRiskyFallsBack(t *testing.T) {
	d := newTestDetector()
	for _, risky := range []*models.PriceSeries{nil, {Ticker: "BTC-USD"}} {
		a := d.Classify(risky, series("GLD", 1, 2, 3))
		if a.Regime != models.RegimeBull || a.Level != 1 {
			t.Fatalf("expected bull fallback, got %s", a.Regime)
		}
		if a.DetectedBy != models.DetectedByFallback {
			t.Fatalf("unexpected detected_by %q", a.DetectedBy)
		}
		if !reflect.DeepEqual(a.Reasoning, []string{"Insufficient risky asset history"}) {
			t.Fatalf("unexpected reasoning %q", a.Reasoning)
		}
		if !reflect.DeepEqual(a.Metrics, models.VolatilityMetrics{}) {
			t.Fatalf("expected empty metrics, got %+v", a.Metrics)
		}
		if !a.Timestamp.Equal(fixedNow) {
			t.Fatalf("unexpected timestamp %v", a.Timestamp)
		}
	}
}

func TestDecideThresholds(t *testing.T) {
	d := newTestDetector()
	cases := []struct {
		name       string
		metrics    models.VolatilityMetrics
		regime     models.Regime
		detectedBy string
		last       string
	}{
		{
			name:       "z of one with flat returns",
			metrics:    models.VolatilityMetrics{ZScore: models.Float(1.0), RiskyReturn7d: models.Float(0), SafeReturn7d: models.Float(0)},
			regime:     models.RegimeBull,
			detectedBy: models.DetectedByZScore,
			last:       "Level 1 triggered",
		},
		{
			name:       "z of two is volatile",
			metrics:    models.VolatilityMetrics{ZScore: models.Float(2.0)},
			regime:     models.RegimeVolatile,
			detectedBy: models.DetectedByZScore,
			last:       "Level 2 triggered",
		},
		{
			name:       "z just below three is volatile",
			metrics:    models.VolatilityMetrics{ZScore: models.Float(2.99)},
			regime:     models.RegimeVolatile,
			detectedBy: models.DetectedByZScore,
			last:       "Level 2 triggered",
		},
		{
			name:       "z of three is crash",
			metrics:    models.VolatilityMetrics{ZScore: models.Float(3.0)},
			regime:     models.RegimeCrash,
			detectedBy: models.DetectedByZScoreOrSafe,
			last:       "Level 3 triggered",
		},
		{
			name:       "drops exactly at thresholds are crash",
			metrics:    models.VolatilityMetrics{ZScore: models.Float(0.5), RiskyReturn7d: models.Float(-0.05), SafeReturn7d: models.Float(-0.02)},
			regime:     models.RegimeCrash,
			detectedBy: models.DetectedByZScoreOrSafe,
			last:       "Level 3 triggered",
		},
		{
			name:       "no z-score and no drops is bull",
			metrics:    models.VolatilityMetrics{},
			regime:     models.RegimeBull,
			detectedBy: models.DetectedByZScore,
			last:       "Level 1 triggered",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			regime, detectedBy, reasoning := d.decide(tc.metrics)
			if regime != tc.regime {
				t.Fatalf("regime = %s, want %s", regime, tc.regime)
			}
			if detectedBy != tc.detectedBy {
				t.Fatalf("detected_by = %s, want %s", detectedBy, tc.detectedBy)
			}
			if got := reasoning[len(reasoning)-1]; got != tc.last {
				t.Fatalf("last reasoning = %q, want %q", got, tc.last)
			}
		})
	}
}

func TestMetricsMovingAverageNeedsFullWindow(t *testing.T) {
	d := newTestDetector()
	m := d.Metrics(series("BTC-USD", flat(199, 10)...), nil)
	if m.MA200 != nil {
		t.Fatalf("expected no ma200 with 199 observations")
	}
	if m.ZScore != nil {
		t.Fatalf("expected undefined z-score over flat history, got %v", *m.ZScore)
	}
	m = d.Metrics(series("BTC-USD", append(flat(199, 10), 210)...), nil)
	if m.MA200 == nil || *m.MA200 != 11 {
		t.Fatalf("expected ma200 of 11, got %v", m.MA200)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	d := newTestDetector()
	risky := series("BTC-USD", append(flat(150, 100), 101, 99, 103, 97, 100)...)
	safe := series("GLD", flat(20, 50)...)
	first := d.Classify(risky, safe)
	second := d.Classify(risky, safe)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("classification not deterministic:\n%+v\n%+v", first, second)
	}
}
