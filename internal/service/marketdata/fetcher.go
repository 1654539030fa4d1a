package marketdata

import (
	"context"
	"errors"
	"time"

	"Kavach/internal/domain/models"
	"Kavach/internal/domain/repository"
	"Kavach/internal/domain/service"
	"Kavach/internal/service/ratelimit"
	applogger "Kavach/pkg/logger"
)

var _ service.MarketData = (*Fetcher)(nil)

// Fetcher walks an ordered provider chain per asset class, retrying each
// provider under Policy before falling through to the next one.
type Fetcher struct {
	chains       map[models.AssetClass][]service.PriceProvider
	crypto       map[string]struct{}
	policy       Policy
	sleep        Sleeper
	lookbackDays int
	now          func() time.Time

	logger   *applogger.Logger
	metrics  repository.Metrics
	breakers *Breakers
	limiter  *ratelimit.Limiter
	cache    *resultCache
}

// Option configures a Fetcher.
type Option func(*Fetcher)

func WithPolicy(p Policy) Option { return func(f *Fetcher) { f.policy = p } }

func WithSleeper(s Sleeper) Option { return func(f *Fetcher) { f.sleep = s } }

func WithLookbackDays(days int) Option { return func(f *Fetcher) { f.lookbackDays = days } }

func WithClock(now func() time.Time) Option { return func(f *Fetcher) { f.now = now } }

func WithLogger(l *applogger.Logger) Option { return func(f *Fetcher) { f.logger = l } }

func WithMetrics(m repository.Metrics) Option { return func(f *Fetcher) { f.metrics = m } }

// WithBreakers puts every provider call behind a circuit breaker.
func WithBreakers(b *Breakers) Option { return func(f *Fetcher) { f.breakers = b } }

// WithLimiter rate limits calls per provider.
func WithLimiter(l *ratelimit.Limiter) Option { return func(f *Fetcher) { f.limiter = l } }

// New creates a fetcher. Tickers in cryptoTickers use the crypto chain,
// everything else the traditional chain.
func New(cryptoTickers []string, cryptoChain, traditionalChain []service.PriceProvider, opts ...Option) *Fetcher {
	f := &Fetcher{
		chains: map[models.AssetClass][]service.PriceProvider{
			models.AssetClassCrypto:      cryptoChain,
			models.AssetClassTraditional: traditionalChain,
		},
		crypto:       make(map[string]struct{}, len(cryptoTickers)),
		policy:       DefaultPolicy(),
		sleep:        SleepContext,
		lookbackDays: 220,
		now:          time.Now,
		logger:       applogger.Nop(),
	}
	for _, t := range cryptoTickers {
		f.crypto[t] = struct{}{}
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.cache != nil {
		f.cache.logger = f.logger
	}
	return f
}

// Classify returns the asset class of ticker.
func (f *Fetcher) Classify(ticker string) models.AssetClass {
	if _, ok := f.crypto[ticker]; ok {
		return models.AssetClassCrypto
	}
	return models.AssetClassTraditional
}

// LatestPrice returns the first successful latest price along the chain.
func (f *Fetcher) LatestPrice(ctx context.Context, ticker string) (float64, error) {
	var price float64
	if f.cache.getLatest(ctx, ticker, &price) {
		return price, nil
	}

	start := time.Now()
	price, err := run(ctx, f, ticker, "latest", func(ctx context.Context, p service.PriceProvider) (float64, error) {
		return p.FetchLatest(ctx, ticker)
	})
	f.recordLatency("fetch_latest", start)
	if err != nil {
		return 0, err
	}
	f.cache.putLatest(ctx, ticker, price)
	return price, nil
}

// History returns the configured lookback of daily closes.
func (f *Fetcher) History(ctx context.Context, ticker string) (models.PriceSeries, error) {
	var s models.PriceSeries
	if f.cache.getHistory(ctx, ticker, f.lookbackDays, &s) {
		return s, nil
	}

	start := time.Now()
	s, err := run(ctx, f, ticker, "history", func(ctx context.Context, p service.PriceProvider) (models.PriceSeries, error) {
		return p.FetchHistory(ctx, ticker, f.lookbackDays)
	})
	f.recordLatency("fetch_history", start)
	if err != nil {
		return models.PriceSeries{}, err
	}
	f.cache.putHistory(ctx, ticker, f.lookbackDays, s)
	return s, nil
}

// LatestPrices fetches tickers one at a time. A failed ticker maps to a
// nil price and its error message; it never fails the batch.
func (f *Fetcher) LatestPrices(ctx context.Context, tickers []string) models.LatestPrices {
	out := models.LatestPrices{
		Timestamp: f.now().UTC(),
		Prices:    make(map[string]*float64, len(tickers)),
	}
	for _, t := range tickers {
		price, err := f.LatestPrice(ctx, t)
		if err != nil {
			if out.Errors == nil {
				out.Errors = make(map[string]string)
			}
			out.Prices[t] = nil
			out.Errors[t] = err.Error()
			continue
		}
		out.Prices[t] = models.Float(price)
	}
	return out
}

func run[T any](ctx context.Context, f *Fetcher, ticker, kind string, call func(context.Context, service.PriceProvider) (T, error)) (T, error) {
	var zero T
	chain := f.chains[f.Classify(ticker)]
	errs := make([]error, 0, len(chain))

	for i, p := range chain {
		p := p
		onRetry := func(attempt int, wait time.Duration, err error) {
			f.logger.Debug("provider attempt failed, retrying",
				applogger.String("provider", p.Name()),
				applogger.String("ticker", ticker),
				applogger.String("kind", kind),
				applogger.Int("attempt", attempt),
				applogger.Duration("wait_ms", wait),
				applogger.Error(err),
			)
		}
		res := Attempt(ctx, f.policy, f.sleep, retryable, onRetry, func(ctx context.Context) (T, error) {
			return invoke(ctx, f, p, ticker, call)
		})
		if res.OK() {
			if i > 0 && f.metrics != nil {
				f.metrics.RecordFallback(ticker, p.Name())
			}
			return res.Value, nil
		}

		f.logger.Warn("provider exhausted",
			applogger.String("provider", p.Name()),
			applogger.String("ticker", ticker),
			applogger.String("kind", kind),
			applogger.Int("attempts", res.Attempts),
			applogger.Error(res.Err),
		)
		errs = append(errs, res.Err)
		if ctx.Err() != nil {
			break
		}
	}

	if len(errs) == 0 {
		errs = append(errs, models.NewProviderError("chain", ticker, models.ProviderUnsupported, errors.New("no providers configured")))
	}
	exhausted := &models.ExhaustedError{Ticker: ticker, Errors: errs}
	f.logger.Error("all providers failed",
		applogger.String("ticker", ticker),
		applogger.String("kind", kind),
		applogger.String("errors", exhausted.Error()),
	)
	if f.metrics != nil {
		f.metrics.RecordExhausted(ticker, kind)
	}
	return zero, exhausted
}

func invoke[T any](ctx context.Context, f *Fetcher, p service.PriceProvider, ticker string, call func(context.Context, service.PriceProvider) (T, error)) (T, error) {
	var zero T
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, p.Name()); err != nil {
			return zero, models.NewProviderError(p.Name(), ticker, models.ProviderUnavailable, err)
		}
	}

	var (
		v   T
		err error
	)
	if f.breakers != nil {
		var out interface{}
		out, err = f.breakers.Execute(p.Name(), ticker, func() (interface{}, error) {
			return call(ctx, p)
		})
		if err == nil {
			v = out.(T)
		}
	} else {
		v, err = call(ctx, p)
	}

	if f.metrics != nil {
		f.metrics.RecordProviderAttempt(p.Name(), err == nil)
	}
	if err != nil {
		return zero, err
	}
	return v, nil
}

// An open breaker, rate-limit cancellation or an unsupported ticker will
// not change on retry.
func retryable(err error) bool {
	var pe *models.ProviderError
	if errors.As(err, &pe) {
		return pe.Code != models.ProviderUnavailable && pe.Code != models.ProviderUnsupported
	}
	return true
}

func (f *Fetcher) recordLatency(op string, start time.Time) {
	if f.metrics != nil {
		f.metrics.RecordLatency(op, time.Since(start).Seconds())
	}
}
