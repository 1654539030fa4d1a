package regime

import (
	"fmt"
	"time"

	"Kavach/internal/domain/models"
	"Kavach/internal/domain/service"
	"Kavach/internal/services/features"
)

var _ service.RegimeClassifier = (*Detector)(nil)

// Config holds the detector windows and thresholds.
type Config struct {
	VolWindow int     // observations per rolling volatility window
	ZWindow   int     // trailing rolling-vol values used for the z-score
	ReturnLag int     // lag of the drawdown return
	MAWindow  int     // moving average length
	VolatileZ float64 // z-score that triggers level 2
	CrashZ    float64 // z-score that triggers level 3
	RiskyDrop float64 // risky lag return at or below which the drop fires
	SafeDrop  float64 // safe lag return at or below which the drop fires
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		VolWindow: 30,
		ZWindow:   90,
		ReturnLag: 7,
		MAWindow:  200,
		VolatileZ: 2.0,
		CrashZ:    3.0,
		RiskyDrop: -0.05,
		SafeDrop:  -0.02,
	}
}

// Option configures a Detector.
type Option func(*Detector)

// WithConfig replaces the thresholds.
func WithConfig(cfg Config) Option {
	return func(d *Detector) { d.cfg = cfg }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// Detector classifies a risky/safe price pair into a regime. It is a pure
// function of its inputs apart from the timestamp.
type Detector struct {
	cfg Config
	now func() time.Time
}

// NewDetector creates a detector with DefaultConfig unless overridden.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{cfg: DefaultConfig(), now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Config returns the active thresholds.
func (d *Detector) Config() Config { return d.cfg }

// Classify computes volatility metrics for risky (and safe, when present)
// and applies the priority rule crash > volatile > bull.
func (d *Detector) Classify(risky, safe *models.PriceSeries) models.RegimeAssessment {
	ts := d.now().UTC()
	if risky == nil || risky.Empty() {
		return models.RegimeAssessment{
			Timestamp:  ts,
			Level:      models.RegimeBull.Level(),
			Regime:     models.RegimeBull,
			Reasoning:  []string{"Insufficient risky asset history"},
			DetectedBy: models.DetectedByFallback,
		}
	}

	m := d.Metrics(risky, safe)
	regime, detectedBy, reasoning := d.decide(m)
	a := models.RegimeAssessment{
		Timestamp:   ts,
		Level:       regime.Level(),
		Regime:      regime,
		Reasoning:   reasoning,
		Metrics:     m,
		DetectedBy:  detectedBy,
		RiskyTicker: risky.Ticker,
	}
	if safe != nil {
		a.SafeTicker = safe.Ticker
	}
	return a
}

// Metrics computes the statistics used by the decision rule.
func (d *Detector) Metrics(risky, safe *models.PriceSeries) models.VolatilityMetrics {
	var m models.VolatilityMetrics
	closes := risky.Closes()
	if last, ok := risky.Last(); ok {
		m.Price = models.Float(last.Close)
	}

	rolling := features.RollingStd(features.PctChange(closes), d.cfg.VolWindow)
	if len(rolling) > 0 {
		current := rolling[len(rolling)-1]
		m.CurrentVol = models.Float(current)
		z, mean, std, ok := features.ZScore(current, features.Tail(rolling, d.cfg.ZWindow))
		m.MeanVol = models.Float(mean)
		if ok {
			m.StdVol = models.Float(std)
			m.ZScore = models.Float(z)
		}
	}

	if ma, ok := features.SMA(closes, d.cfg.MAWindow); ok {
		m.MA200 = models.Float(ma)
	}
	if r, ok := features.LagReturn(closes, d.cfg.ReturnLag); ok {
		m.RiskyReturn7d = models.Float(r)
	}
	if safe != nil {
		if r, ok := features.LagReturn(safe.Closes(), d.cfg.ReturnLag); ok {
			m.SafeReturn7d = models.Float(r)
		}
	}
	return m
}

func (d *Detector) decide(m models.VolatilityMetrics) (models.Regime, string, []string) {
	riskyDrop := m.RiskyReturn7d != nil && *m.RiskyReturn7d <= d.cfg.RiskyDrop
	safeDrop := m.SafeReturn7d != nil && *m.SafeReturn7d <= d.cfg.SafeDrop

	reasoning := make([]string, 0, 4)
	if m.ZScore == nil {
		reasoning = append(reasoning, "Insufficient data for volatility z-score")
	} else {
		reasoning = append(reasoning, fmt.Sprintf("Volatility z-score: %.2f", *m.ZScore))
	}
	if riskyDrop {
		reasoning = append(reasoning, fmt.Sprintf("Risky 7d return: %.2f%%", *m.RiskyReturn7d*100))
	}
	if safeDrop {
		reasoning = append(reasoning, fmt.Sprintf("Safe 7d return: %.2f%%", *m.SafeReturn7d*100))
	}

	switch {
	case (m.ZScore != nil && *m.ZScore >= d.cfg.CrashZ) || (riskyDrop && safeDrop):
		return models.RegimeCrash, models.DetectedByZScoreOrSafe, append(reasoning, "Level 3 triggered")
	case m.ZScore != nil && *m.ZScore >= d.cfg.VolatileZ:
		return models.RegimeVolatile, models.DetectedByZScore, append(reasoning, "Level 2 triggered")
	default:
		return models.RegimeBull, models.DetectedByZScore, append(reasoning, "Level 1 triggered")
	}
}
