package usecase

import (
	"context"
	"time"

	"Kavach/internal/domain/models"
	domrepo "Kavach/internal/domain/repository"
	"Kavach/internal/domain/service"
	applogger "Kavach/pkg/logger"

	"github.com/google/uuid"
)

// RegimeUseCase fetches history for a risky/safe pair and classifies it.
type RegimeUseCase struct {
	market      service.MarketData
	classifier  service.RegimeClassifier
	sink        domrepo.DecisionSink
	history     domrepo.DecisionHistory
	metrics     domrepo.Metrics
	logger      *applogger.Logger
	riskyTicker string
	safeTicker  string
}

func NewRegimeUseCase(
	market service.MarketData,
	classifier service.RegimeClassifier,
	sink domrepo.DecisionSink,
	history domrepo.DecisionHistory,
	metrics domrepo.Metrics,
	logger *applogger.Logger,
	riskyTicker, safeTicker string,
) *RegimeUseCase {
	return &RegimeUseCase{
		market:      market,
		classifier:  classifier,
		sink:        sink,
		history:     history,
		metrics:     metrics,
		logger:      logger,
		riskyTicker: riskyTicker,
		safeTicker:  safeTicker,
	}
}

// Detect never fails: a risky history failure yields the fallback
// assessment and a safe history failure drops the safe-asset signal.
// Fetch failures are reported in Errors.
func (uc *RegimeUseCase) Detect(ctx context.Context, risky, safe string) models.RegimeAssessment {
	if risky == "" {
		risky = uc.riskyTicker
	}
	if safe == "" {
		safe = uc.safeTicker
	}
	start := time.Now()
	errs := map[string]string{}

	var riskySeries, safeSeries *models.PriceSeries
	if s, err := uc.market.History(ctx, risky); err != nil {
		errs[risky] = err.Error()
	} else {
		riskySeries = &s
	}
	if s, err := uc.market.History(ctx, safe); err != nil {
		errs[safe] = err.Error()
	} else {
		safeSeries = &s
	}

	a := uc.classifier.Classify(riskySeries, safeSeries)
	a.ID = uuid.NewString()
	a.RiskyTicker = risky
	a.SafeTicker = safe
	if len(errs) > 0 {
		a.Errors = errs
	}

	uc.metrics.RecordRegime(a.Regime)
	uc.metrics.RecordLatency("detect_regime", time.Since(start).Seconds())
	uc.logger.Info("regime assessed",
		applogger.String("regime", string(a.Regime)),
		applogger.String("detected_by", a.DetectedBy),
		applogger.Float64("volatility_score", a.VolatilityScore()),
	)

	if uc.sink != nil {
		if err := uc.sink.RecordAssessment(ctx, &a); err != nil {
			uc.metrics.RecordError("record_assessment")
			uc.logger.Warn("failed to record assessment", applogger.Error(err))
		}
	}
	return a
}

// Recent lists recorded assessments, newest first.
func (uc *RegimeUseCase) Recent(ctx context.Context, limit int) ([]*models.RegimeAssessment, error) {
	if uc.history == nil {
		return nil, models.ErrHistoryUnavailable
	}
	return uc.history.ListAssessments(ctx, limit)
}
