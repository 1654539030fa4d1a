package models

import "time"

// Regime is the discrete market state used to pick allocation weights.
type Regime string

const (
	RegimeBull     Regime = "bull"
	RegimeVolatile Regime = "volatile"
	RegimeCrash    Regime = "crash"
)

// Level maps a regime to its severity, 1 (calm) to 3 (crash).
func (r Regime) Level() int {
	switch r {
	case RegimeCrash:
		return 3
	case RegimeVolatile:
		return 2
	default:
		return 1
	}
}

// Valid reports whether r is one of the known regimes.
func (r Regime) Valid() bool {
	return r == RegimeBull || r == RegimeVolatile || r == RegimeCrash
}

const (
	DetectedByZScore       = "z_score"
	DetectedByZScoreOrSafe = "z_score_or_safe_breakdown"
	DetectedByFallback     = "fallback"
)

// VolatilityMetrics are the statistics behind a regime decision.
// Nil fields could not be computed from the available history.
type VolatilityMetrics struct {
	Price         *float64 `json:"price"`
	CurrentVol    *float64 `json:"current_vol"`
	MeanVol       *float64 `json:"mean_vol"`
	StdVol        *float64 `json:"std_vol"`
	ZScore        *float64 `json:"z_score"`
	RiskyReturn7d *float64 `json:"risky_7d_return"`
	SafeReturn7d  *float64 `json:"safe_7d_return"`
	MA200         *float64 `json:"ma200"`
}

// RegimeAssessment is an immutable classification result.
type RegimeAssessment struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	Level       int               `json:"level"`
	Regime      Regime            `json:"regime"`
	Reasoning   []string          `json:"reasoning"`
	Metrics     VolatilityMetrics `json:"metrics"`
	DetectedBy  string            `json:"detected_by"`
	RiskyTicker string            `json:"risky_ticker,omitempty"`
	SafeTicker  string            `json:"safe_ticker,omitempty"`
	Errors      map[string]string `json:"errors,omitempty"`
}

// VolatilityScore is the z-score, or 0 when it is undefined.
func (a RegimeAssessment) VolatilityScore() float64 {
	if a.Metrics.ZScore == nil {
		return 0
	}
	return *a.Metrics.ZScore
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
