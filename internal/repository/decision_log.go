package repository

import (
	"context"
	"errors"

	"Kavach/internal/domain/models"
	domrepo "Kavach/internal/domain/repository"
	applogger "Kavach/pkg/logger"
)

var (
	_ domrepo.DecisionSink = (*LogSink)(nil)
	_ domrepo.DecisionSink = MultiSink(nil)
)

// LogSink writes decisions as structured log lines.
type LogSink struct {
	logger *applogger.Logger
}

func NewLogSink(logger *applogger.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) RecordAssessment(_ context.Context, a *models.RegimeAssessment) error {
	s.logger.Info("market state",
		applogger.String("id", a.ID),
		applogger.String("regime", string(a.Regime)),
		applogger.Int("level", a.Level),
		applogger.Float64("volatility_score", a.VolatilityScore()),
		applogger.String("detected_by", a.DetectedBy),
		applogger.Strings("reasoning", a.Reasoning),
	)
	return nil
}

func (s *LogSink) RecordRebalance(_ context.Context, r *models.RebalanceRecord) error {
	s.logger.Info("rebalance",
		applogger.String("id", r.ID),
		applogger.String("portfolio_id", r.PortfolioID),
		applogger.String("action", string(r.Action)),
		applogger.String("regime", string(r.Regime)),
		applogger.Float64("value_before", r.ValueBefore),
		applogger.Float64("value_after", r.ValueAfter),
		applogger.String("reasoning", r.Reasoning),
	)
	return nil
}

// MultiSink fans a decision out to every sink and joins their errors.
type MultiSink []domrepo.DecisionSink

func (m MultiSink) RecordAssessment(ctx context.Context, a *models.RegimeAssessment) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.RecordAssessment(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) RecordRebalance(ctx context.Context, r *models.RebalanceRecord) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.RecordRebalance(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
