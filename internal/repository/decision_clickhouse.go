package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"Kavach/internal/domain/models"
	domrepo "Kavach/internal/domain/repository"
	pkgch "Kavach/pkg/clickhouse"
	applogger "Kavach/pkg/logger"
)

var (
	_ domrepo.DecisionSink    = (*CHDecisionStore)(nil)
	_ domrepo.DecisionHistory = (*CHDecisionStore)(nil)
)

// DecisionSchema creates the market_states and rebalance_log tables.
func DecisionSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.market_states (
    id String,
    ts DateTime64(3, 'UTC'),
    regime LowCardinality(String),
    level UInt8,
    volatility_score Float64,
    detected_by LowCardinality(String),
    risky_ticker String,
    safe_ticker String,
    reasoning String,
    metrics String
) ENGINE = ReplacingMergeTree ORDER BY (ts, id)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.rebalance_log (
    id String,
    ts DateTime64(3, 'UTC'),
    portfolio_id String,
    action LowCardinality(String),
    regime LowCardinality(String),
    reasoning String,
    value_before Float64,
    value_after Float64
) ENGINE = ReplacingMergeTree ORDER BY (portfolio_id, ts, id)`, database),
	}
}

// CHDecisionStore persists decisions in ClickHouse and reads them back.
// Reasoning lists and metrics are stored as JSON strings.
type CHDecisionStore struct {
	db *sql.DB
	l  *applogger.Logger

	insertState     string
	insertRebalance string
	listRebalances  string
	listStates      string
}

// NewCHDecisionStore creates a store over the tables of database.
func NewCHDecisionStore(ch *pkgch.Client, database string, logger *applogger.Logger) *CHDecisionStore {
	if logger == nil {
		logger = applogger.Nop()
	}
	return &CHDecisionStore{
		db:              ch.DB(),
		l:               logger,
		insertState:     fmt.Sprintf(insertMarketState, database),
		insertRebalance: fmt.Sprintf(insertRebalance, database),
		listRebalances:  fmt.Sprintf(selectRebalances, database),
		listStates:      fmt.Sprintf(selectAssessments, database),
	}
}

const insertMarketState = `INSERT INTO %s.market_states (id, ts, regime, level, volatility_score, detected_by, risky_ticker, safe_ticker, reasoning, metrics) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *CHDecisionStore) RecordAssessment(ctx context.Context, a *models.RegimeAssessment) error {
	reasoning, err := json.Marshal(a.Reasoning)
	if err != nil {
		return fmt.Errorf("encode reasoning: %w", err)
	}
	metrics, err := json.Marshal(a.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.insertState,
		a.ID,
		a.Timestamp.UTC(),
		string(a.Regime),
		uint8(a.Level),
		a.VolatilityScore(),
		a.DetectedBy,
		a.RiskyTicker,
		a.SafeTicker,
		string(reasoning),
		string(metrics),
	)
	if err != nil {
		s.l.Error("clickhouse insert market_state failed", applogger.String("id", a.ID), applogger.Error(err))
		return fmt.Errorf("insert market state: %w", err)
	}
	return nil
}

const insertRebalance = `INSERT INTO %s.rebalance_log (id, ts, portfolio_id, action, regime, reasoning, value_before, value_after) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (s *CHDecisionStore) RecordRebalance(ctx context.Context, r *models.RebalanceRecord) error {
	_, err := s.db.ExecContext(ctx, s.insertRebalance,
		r.ID,
		r.Timestamp.UTC(),
		r.PortfolioID,
		string(r.Action),
		string(r.Regime),
		r.Reasoning,
		r.ValueBefore,
		r.ValueAfter,
	)
	if err != nil {
		s.l.Error("clickhouse insert rebalance failed",
			applogger.String("id", r.ID),
			applogger.String("portfolio_id", r.PortfolioID),
			applogger.Error(err),
		)
		return fmt.Errorf("insert rebalance: %w", err)
	}
	return nil
}

const selectRebalances = `SELECT id, ts, portfolio_id, action, regime, reasoning, value_before, value_after
FROM %s.rebalance_log FINAL
WHERE portfolio_id = ?
ORDER BY ts DESC
LIMIT ?`

// ListRebalances returns the newest records of one portfolio first.
func (s *CHDecisionStore) ListRebalances(ctx context.Context, portfolioID string, limit int) ([]*models.RebalanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.listRebalances, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("query rebalances: %w", err)
	}
	defer rows.Close()

	out := make([]*models.RebalanceRecord, 0, limit)
	for rows.Next() {
		var (
			r              models.RebalanceRecord
			ts             time.Time
			action, regime string
		)
		if err := rows.Scan(&r.ID, &ts, &r.PortfolioID, &action, &regime, &r.Reasoning, &r.ValueBefore, &r.ValueAfter); err != nil {
			return nil, fmt.Errorf("scan rebalance: %w", err)
		}
		r.Timestamp = ts.UTC()
		r.Action = models.RebalanceAction(action)
		r.Regime = models.Regime(regime)
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

const selectAssessments = `SELECT id, ts, regime, level, detected_by, risky_ticker, safe_ticker, reasoning, metrics
FROM %s.market_states FINAL
ORDER BY ts DESC
LIMIT ?`

// ListAssessments returns the newest market states first.
func (s *CHDecisionStore) ListAssessments(ctx context.Context, limit int) ([]*models.RegimeAssessment, error) {
	rows, err := s.db.QueryContext(ctx, s.listStates, limit)
	if err != nil {
		return nil, fmt.Errorf("query market states: %w", err)
	}
	defer rows.Close()

	out := make([]*models.RegimeAssessment, 0, limit)
	for rows.Next() {
		var (
			a                  models.RegimeAssessment
			ts                 time.Time
			regime             string
			level              uint8
			reasoning, metrics string
		)
		if err := rows.Scan(&a.ID, &ts, &regime, &level, &a.DetectedBy, &a.RiskyTicker, &a.SafeTicker, &reasoning, &metrics); err != nil {
			return nil, fmt.Errorf("scan market state: %w", err)
		}
		if err := json.Unmarshal([]byte(reasoning), &a.Reasoning); err != nil {
			return nil, fmt.Errorf("decode reasoning: %w", err)
		}
		if err := json.Unmarshal([]byte(metrics), &a.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
		a.Timestamp = ts.UTC()
		a.Regime = models.Regime(regime)
		a.Level = int(level)
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
