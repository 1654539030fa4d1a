package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"Kavach/internal/domain/models"
	domrepo "Kavach/internal/domain/repository"
	applogger "Kavach/pkg/logger"
	"Kavach/pkg/queue"
)

// JobEvaluatePortfolio is the queue message type for portfolio evaluations.
const JobEvaluatePortfolio = "evaluate_portfolio"

// EvaluatePayload is the body of an evaluate_portfolio job.
type EvaluatePayload struct {
	PortfolioID string `json:"portfolio_id"`
}

var _ queue.Job = (*EvaluatePortfolioJob)(nil)

// EvaluatePortfolioJob runs PortfolioService.Evaluate for queued ids.
type EvaluatePortfolioJob struct {
	portfolios *PortfolioService
	metrics    domrepo.Metrics
	logger     *applogger.Logger
}

func NewEvaluatePortfolioJob(portfolios *PortfolioService, metrics domrepo.Metrics, logger *applogger.Logger) *EvaluatePortfolioJob {
	return &EvaluatePortfolioJob{portfolios: portfolios, metrics: metrics, logger: logger}
}

func (j *EvaluatePortfolioJob) Type() string { return JobEvaluatePortfolio }

// Handle returns an error only for failures worth retrying. Unknown or
// malformed portfolios are dropped.
func (j *EvaluatePortfolioJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.ParsePayload[EvaluatePayload](payload)
	if err != nil || p.PortfolioID == "" {
		j.metrics.RecordError("evaluate_job_payload")
		j.logger.Warn("dropping evaluate job with bad payload", applogger.Error(err))
		return nil
	}

	res, err := j.portfolios.Evaluate(ctx, p.PortfolioID)
	switch {
	case errors.Is(err, models.ErrPortfolioNotFound):
		j.logger.Warn("evaluate job for unknown portfolio", applogger.String("portfolio_id", p.PortfolioID))
		return nil
	case err != nil:
		return err
	}
	j.logger.Debug("evaluate job done",
		applogger.String("portfolio_id", p.PortfolioID),
		applogger.String("regime", string(res.Assessment.Regime)),
		applogger.Bool("rebalanced", res.Rebalanced),
	)
	return nil
}

// EvaluationScheduler enqueues an evaluation for every configured portfolio
// on a fixed interval.
type EvaluationScheduler struct {
	queue      queue.Enqueuer
	portfolios []string
	interval   time.Duration
	logger     *applogger.Logger
}

func NewEvaluationScheduler(q queue.Enqueuer, portfolios []string, interval time.Duration, logger *applogger.Logger) *EvaluationScheduler {
	return &EvaluationScheduler{queue: q, portfolios: portfolios, interval: interval, logger: logger}
}

// Run enqueues one round immediately and then one per tick until ctx ends.
func (s *EvaluationScheduler) Run(ctx context.Context) {
	if len(s.portfolios) == 0 || s.interval <= 0 {
		s.logger.Info("evaluation scheduler idle: no portfolios configured")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick enqueues one evaluation per portfolio and returns how many were queued.
func (s *EvaluationScheduler) Tick(ctx context.Context) int {
	queued := 0
	for _, id := range s.portfolios {
		if err := s.queue.Enqueue(ctx, JobEvaluatePortfolio, EvaluatePayload{PortfolioID: id}); err != nil {
			s.logger.Error("enqueue evaluation failed", applogger.String("portfolio_id", id), applogger.Error(err))
			continue
		}
		queued++
	}
	s.logger.Debug("evaluations enqueued", applogger.Int("count", queued))
	return queued
}
