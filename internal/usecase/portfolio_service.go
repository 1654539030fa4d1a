package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"Kavach/internal/domain/models"
	domrepo "Kavach/internal/domain/repository"
	applogger "Kavach/pkg/logger"
)

// Detector is the part of RegimeUseCase the portfolio service needs.
type Detector interface {
	Detect(ctx context.Context, risky, safe string) models.RegimeAssessment
}

// EvaluateResult reports a detection and, when the regime changed on a
// deployed portfolio, the rebalance it triggered.
type EvaluateResult struct {
	Assessment models.RegimeAssessment  `json:"assessment"`
	Rebalanced bool                     `json:"rebalanced"`
	Outcome    *models.RebalanceOutcome `json:"outcome,omitempty"`
}

// PortfolioService loads, locks and persists portfolios around the
// Coordinator and reports every executed decision to the sink.
type PortfolioService struct {
	store           domrepo.PortfolioStore
	coordinator     *Coordinator
	detector        Detector
	sink            domrepo.DecisionSink
	history         domrepo.DecisionHistory
	metrics         domrepo.Metrics
	logger          *applogger.Logger
	startingBalance float64
	now             func() time.Time
}

func NewPortfolioService(
	store domrepo.PortfolioStore,
	coordinator *Coordinator,
	detector Detector,
	sink domrepo.DecisionSink,
	history domrepo.DecisionHistory,
	metrics domrepo.Metrics,
	logger *applogger.Logger,
	startingBalance float64,
) *PortfolioService {
	return &PortfolioService{
		store:           store,
		coordinator:     coordinator,
		detector:        detector,
		sink:            sink,
		history:         history,
		metrics:         metrics,
		logger:          logger,
		startingBalance: startingBalance,
		now:             time.Now,
	}
}

// Create stores a new undeployed portfolio. A nil balance uses the
// configured starting balance.
func (s *PortfolioService) Create(ctx context.Context, id string, balance *float64) (*models.Portfolio, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("portfolio id required")
	}
	cash := s.startingBalance
	if balance != nil {
		cash = *balance
	}
	now := s.now().UTC()
	p := &models.Portfolio{
		ID:             id,
		UninvestedCash: cash,
		Holdings:       []*models.Holding{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("portfolio created", applogger.String("portfolio_id", id), applogger.Float64("cash", cash))
	return p, nil
}

func (s *PortfolioService) Get(ctx context.Context, id string) (*models.Portfolio, error) {
	return s.store.Get(ctx, id)
}

// Deploy invests the cash balance. An empty regime is detected first.
func (s *PortfolioService) Deploy(ctx context.Context, id string, regime models.Regime) (*models.RebalanceOutcome, error) {
	if regime == "" {
		regime = s.detector.Detect(ctx, "", "").Regime
	}
	return s.execute(ctx, id, models.ActionDeploy, regime)
}

// Rebalance executes regime unconditionally.
func (s *PortfolioService) Rebalance(ctx context.Context, id string, regime models.Regime) (*models.RebalanceOutcome, error) {
	return s.execute(ctx, id, models.ActionRebalance, regime)
}

// Evaluate detects the current regime and rebalances only a deployed
// portfolio whose last executed regime differs.
func (s *PortfolioService) Evaluate(ctx context.Context, id string) (*EvaluateResult, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	a := s.detector.Detect(ctx, "", "")
	res := &EvaluateResult{Assessment: a}
	if !p.Deployed || p.LastRegime == a.Regime {
		s.logger.Debug("no rebalance needed",
			applogger.String("portfolio_id", id),
			applogger.Bool("deployed", p.Deployed),
			applogger.String("regime", string(a.Regime)),
		)
		return res, nil
	}

	out, err := s.execute(ctx, id, models.ActionRebalance, a.Regime)
	if err != nil {
		return nil, err
	}
	res.Rebalanced = true
	res.Outcome = out
	return res, nil
}

// History lists the most recent records for id, newest first.
func (s *PortfolioService) History(ctx context.Context, id string, limit int) ([]*models.RebalanceRecord, error) {
	if s.history == nil {
		return nil, models.ErrHistoryUnavailable
	}
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.history.ListRebalances(ctx, id, limit)
}

func (s *PortfolioService) execute(ctx context.Context, id string, action models.RebalanceAction, regime models.Regime) (*models.RebalanceOutcome, error) {
	unlock, err := s.store.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var out *models.RebalanceOutcome
	switch action {
	case models.ActionDeploy:
		out, err = s.coordinator.Deploy(ctx, p, regime)
	default:
		out, err = s.coordinator.Rebalance(ctx, p, regime)
	}
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, p); err != nil {
		s.metrics.RecordError("portfolio_save")
		return nil, fmt.Errorf("save portfolio: %w", err)
	}

	s.metrics.RecordRebalance(action)
	s.metrics.RecordLatency(string(action), time.Since(start).Seconds())
	s.logger.Info("portfolio "+string(action)+" executed",
		applogger.String("portfolio_id", id),
		applogger.String("regime", string(regime)),
		applogger.Float64("value_before", out.Record.ValueBefore),
		applogger.Float64("value_after", out.Record.ValueAfter),
	)

	if s.sink != nil {
		rec := out.Record
		if err := s.sink.RecordRebalance(ctx, &rec); err != nil {
			s.metrics.RecordError("record_rebalance")
			s.logger.Warn("failed to record rebalance", applogger.String("portfolio_id", id), applogger.Error(err))
		}
	}
	return out, nil
}
