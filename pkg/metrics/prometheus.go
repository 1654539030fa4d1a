package metrics

import (
	"strconv"

	"Kavach/internal/domain/models"
	"Kavach/internal/domain/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var _ repository.Metrics = (*Recorder)(nil)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	errorsTotal      *prometheus.CounterVec
	providerAttempts *prometheus.CounterVec
	fallbacks        *prometheus.CounterVec
	exhausted        *prometheus.CounterVec
	latency          *prometheus.HistogramVec
	regimeLevel      prometheus.Gauge
	regimes          *prometheus.CounterVec
	rebalances       *prometheus.CounterVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kavach_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		providerAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kavach_provider_attempts_total",
				Help: "Provider calls by outcome",
			},
			[]string{"provider", "ok"},
		),
		fallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kavach_provider_fallbacks_total",
				Help: "Fetches served by a non-primary provider",
			},
			[]string{"ticker", "provider"},
		),
		exhausted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kavach_provider_exhausted_total",
				Help: "Fetches where every provider failed",
			},
			[]string{"ticker", "kind"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kavach_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		regimeLevel: f.NewGauge(prometheus.GaugeOpts{
			Name: "kavach_regime_level",
			Help: "Level of the last detected regime (1 bull, 2 volatile, 3 crash)",
		}),
		regimes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kavach_regime_assessments_total",
				Help: "Regime assessments by result",
			},
			[]string{"regime"},
		),
		rebalances: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kavach_rebalances_total",
				Help: "Deploy and rebalance operations",
			},
			[]string{"action"},
		),
	}
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordProviderAttempt(provider string, ok bool) {
	r.providerAttempts.WithLabelValues(provider, strconv.FormatBool(ok)).Inc()
}

func (r *Recorder) RecordFallback(ticker, provider string) {
	r.fallbacks.WithLabelValues(ticker, provider).Inc()
}

func (r *Recorder) RecordExhausted(ticker, kind string) {
	r.exhausted.WithLabelValues(ticker, kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordRegime(regime models.Regime) {
	r.regimes.WithLabelValues(string(regime)).Inc()
	r.regimeLevel.Set(float64(regime.Level()))
}

func (r *Recorder) RecordRebalance(action models.RebalanceAction) {
	r.rebalances.WithLabelValues(string(action)).Inc()
}

// Nop discards everything. Used by tools that do not expose /metrics.
type Nop struct{}

var _ repository.Metrics = Nop{}

func (Nop) RecordError(string)                     {}
func (Nop) RecordProviderAttempt(string, bool)     {}
func (Nop) RecordFallback(string, string)          {}
func (Nop) RecordExhausted(string, string)         {}
func (Nop) RecordLatency(string, float64)          {}
func (Nop) RecordRegime(models.Regime)             {}
func (Nop) RecordRebalance(models.RebalanceAction) {}
