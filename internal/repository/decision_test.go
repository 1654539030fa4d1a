package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"Kavach/internal/domain/models"
	pkgch "Kavach/pkg/clickhouse"
	applogger "Kavach/pkg/logger"

	"github.com/DATA-DOG/go-sqlmock"
)

func newCHStore(t *testing.T) (*CHDecisionStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewCHDecisionStore(pkgch.NewClientFromDB(db), "kavach", nil), mock
}

func TestCHDecisionStoreRecordRebalance(t *testing.T) {
	store, mock := newCHStore(t)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &models.RebalanceRecord{
		ID: "r1", PortfolioID: "p1", Action: models.ActionDeploy, Regime: models.RegimeBull,
		Reasoning: "Deployed capital in bull regime.", ValueBefore: 100000, ValueAfter: 100000, Timestamp: ts,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kavach.rebalance_log")).
		WithArgs("r1", ts, "p1", "deploy", "bull", rec.Reasoning, 100000.0, 100000.0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.RecordRebalance(context.Background(), rec); err != nil {
		t.Fatalf("RecordRebalance: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCHDecisionStoreRecordAssessmentError(t *testing.T) {
	store, mock := newCHStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kavach.market_states")).
		WillReturnError(errors.New("connection reset"))

	a := &models.RegimeAssessment{ID: "a1", Regime: models.RegimeCrash, Level: 3, Reasoning: []string{"Level 3 triggered"}}
	if err := store.RecordAssessment(context.Background(), a); err == nil {
		t.Fatalf("expected insert error")
	}
}

func TestCHDecisionStoreListRebalances(t *testing.T) {
	store, mock := newCHStore(t)
	ts := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "ts", "portfolio_id", "action", "regime", "reasoning", "value_before", "value_after"}).
		AddRow("r2", ts, "p1", "rebalance", "crash", "Rebalanced", 90000.0, 90000.0)
	mock.ExpectQuery(regexp.QuoteMeta("FROM kavach.rebalance_log FINAL")).
		WithArgs("p1", 10).
		WillReturnRows(rows)

	out, err := store.ListRebalances(context.Background(), "p1", 10)
	if err != nil {
		t.Fatalf("ListRebalances: %v", err)
	}
	if len(out) != 1 || out[0].Action != models.ActionRebalance || out[0].Regime != models.RegimeCrash || !out[0].Timestamp.Equal(ts) {
		t.Fatalf("unexpected records %+v", out)
	}
}

func TestCHDecisionStoreListAssessments(t *testing.T) {
	store, mock := newCHStore(t)
	ts := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "ts", "regime", "level", "detected_by", "risky_ticker", "safe_ticker", "reasoning", "metrics"}).
		AddRow("a1", ts, "volatile", int64(2), "z_score", "BTC-USD", "GLD", `["Volatility z-score: 2.40","Level 2 triggered"]`, `{"z_score":2.4}`)
	mock.ExpectQuery(regexp.QuoteMeta("FROM kavach.market_states FINAL")).
		WithArgs(5).
		WillReturnRows(rows)

	out, err := store.ListAssessments(context.Background(), 5)
	if err != nil {
		t.Fatalf("ListAssessments: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected one assessment, got %d", len(out))
	}
	a := out[0]
	if a.Regime != models.RegimeVolatile || a.Level != 2 || len(a.Reasoning) != 2 || a.Metrics.ZScore == nil || *a.Metrics.ZScore != 2.4 {
		t.Fatalf("unexpected assessment %+v", a)
	}
}

type recordingPublisher struct {
	topics []string
	keys   []string
	values []interface{}
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, string(key))
	p.values = append(p.values, value)
	return p.err
}

func TestKafkaDecisionSinkKeys(t *testing.T) {
	pub := &recordingPublisher{}
	sink := NewKafkaDecisionSink(pub, "kavach.decisions")
	ctx := context.Background()

	if err := sink.RecordAssessment(ctx, &models.RegimeAssessment{RiskyTicker: "BTC-USD"}); err != nil {
		t.Fatalf("RecordAssessment: %v", err)
	}
	if err := sink.RecordRebalance(ctx, &models.RebalanceRecord{PortfolioID: "p1"}); err != nil {
		t.Fatalf("RecordRebalance: %v", err)
	}
	if pub.keys[0] != "BTC-USD" || pub.keys[1] != "p1" || pub.topics[1] != "kavach.decisions" {
		t.Fatalf("unexpected publish calls %v %v", pub.topics, pub.keys)
	}
	ev, ok := pub.values[1].(models.DecisionEvent)
	if !ok || ev.Type != models.EventRebalance || ev.Record == nil {
		t.Fatalf("unexpected event %+v", pub.values[1])
	}

	pub.err = errors.New("broker down")
	if err := sink.RecordRebalance(ctx, &models.RebalanceRecord{PortfolioID: "p1"}); err == nil {
		t.Fatalf("expected publish error")
	}
}

type countingSink struct {
	assessments, rebalances int
	err                     error
}

func (s *countingSink) RecordAssessment(context.Context, *models.RegimeAssessment) error {
	s.assessments++
	return s.err
}

func (s *countingSink) RecordRebalance(context.Context, *models.RebalanceRecord) error {
	s.rebalances++
	return s.err
}

func TestMultiSinkFansOut(t *testing.T) {
	ok := &countingSink{}
	failing := &countingSink{err: errors.New("down")}
	m := MultiSink{NewLogSink(applogger.Nop()), failing, nil, ok}

	err := m.RecordRebalance(context.Background(), &models.RebalanceRecord{})
	if !errors.Is(err, failing.err) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if ok.rebalances != 1 || failing.rebalances != 1 {
		t.Fatalf("every sink must be called, got %d and %d", ok.rebalances, failing.rebalances)
	}
	if err := (MultiSink{ok}).RecordAssessment(context.Background(), &models.RegimeAssessment{}); err != nil {
		t.Fatalf("RecordAssessment: %v", err)
	}
}
