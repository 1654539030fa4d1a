package marketdata

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"Kavach/internal/domain/models"
	xhttp "Kavach/pkg/http"
	applogger "Kavach/pkg/logger"

	"github.com/sony/gobreaker"
)

// BreakerConfig controls when a provider is taken out of rotation.
type BreakerConfig struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// Breakers holds one circuit breaker per provider name.
type Breakers struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	logger   *applogger.Logger
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakers creates an empty breaker registry.
func NewBreakers(cfg BreakerConfig, logger *applogger.Logger) *Breakers {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 6
	}
	if logger == nil {
		logger = applogger.Nop()
	}
	return &Breakers{cfg: cfg, logger: logger, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (b *Breakers) get(name string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.breakers[name]
	if ok {
		return cb
	}
	threshold := b.cfg.ConsecutiveFailures
	cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     b.cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		IsSuccessful: countsAsHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("provider breaker state change",
				applogger.String("provider", name),
				applogger.String("from", from.String()),
				applogger.String("to", to.String()),
			)
		},
	})
	b.breakers[name] = cb
	return cb
}

// Execute runs fn behind the provider's breaker. An open breaker yields an
// unavailable ProviderError without calling fn.
func (b *Breakers) Execute(name, ticker string, fn func() (interface{}, error)) (interface{}, error) {
	v, err := b.get(name).Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, models.NewProviderError(name, ticker, models.ProviderUnavailable, err)
	}
	return v, err
}

// State reports the breaker state for name.
func (b *Breakers) State(name string) string {
	return b.get(name).State().String()
}

// Ticker-specific failures (unknown symbol, no rows, 404) do not say
// anything about the provider's health.
func countsAsHealthy(err error) bool {
	if err == nil {
		return true
	}
	var se *xhttp.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return true
	}
	var pe *models.ProviderError
	if errors.As(err, &pe) {
		switch pe.Code {
		case models.ProviderUnsupported, models.ProviderEmpty:
			return true
		}
	}
	return false
}
