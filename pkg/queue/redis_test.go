package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	applogger "Kavach/pkg/logger"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
)

var queueNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type funcJob struct {
	typ   string
	calls int
	err   error
}

func (j *funcJob) Type() string { return j.typ }

func (j *funcJob) Handle(context.Context, json.RawMessage) error {
	j.calls++
	return j.err
}

func newTestQueue(retryLimit int) (*RedisQueue, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	q := NewRedisQueue(applogger.Nop(), Config{RetryLimit: retryLimit, RetryDelay: time.Minute}, db,
		WithKeyPrefix("test:jobs"),
		WithClock(func() time.Time { return queueNow }),
	)
	return q, mock
}

func testMessage(attempts int) Message {
	return Message{
		ID:        "m1",
		Type:      "evaluate_portfolio",
		Payload:   json.RawMessage(`{"portfolio_id":"p1"}`),
		Attempts:  attempts,
		Timestamp: queueNow,
	}
}

func TestProcessSuccess(t *testing.T) {
	q, mock := newTestQueue(3)
	job := &funcJob{typ: "evaluate_portfolio"}
	q.Register(job)

	q.process(context.Background(), testMessage(0))
	if job.calls != 1 {
		t.Fatalf("calls = %d", job.calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected redis traffic: %v", err)
	}
}

func TestProcessFailureSchedulesRetry(t *testing.T) {
	q, mock := newTestQueue(3)
	q.Register(&funcJob{typ: "evaluate_portfolio", err: errors.New("upstream down")})

	retried := testMessage(1)
	b, _ := json.Marshal(retried)
	mock.ExpectZAdd("test:jobs:retry", redis.Z{
		Score:  float64(queueNow.Add(time.Minute).Unix()),
		Member: b,
	}).SetVal(1)

	q.process(context.Background(), testMessage(0))
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("retry not scheduled: %v", err)
	}
}

func TestProcessExhaustedGoesToDeadLetter(t *testing.T) {
	q, mock := newTestQueue(2)
	q.Register(&funcJob{typ: "evaluate_portfolio", err: errors.New("still down")})

	b, _ := json.Marshal(testMessage(2))
	mock.ExpectLPush("test:jobs:dlq", b).SetVal(1)

	q.process(context.Background(), testMessage(2))
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("dead letter not written: %v", err)
	}
}

func TestProcessUnknownTypeIsDropped(t *testing.T) {
	q, mock := newTestQueue(3)
	msg := testMessage(0)
	msg.Type = "unknown"

	q.process(context.Background(), msg)
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected redis traffic: %v", err)
	}
}

func TestEnqueueRequiresStart(t *testing.T) {
	q, mock := newTestQueue(3)
	if err := q.Enqueue(context.Background(), "evaluate_portfolio", map[string]string{"portfolio_id": "p1"}); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}

	mock.ExpectPing().SetVal("PONG")
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := q.Start(context.Background()); err == nil {
		t.Fatalf("second Start should fail")
	}
	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := q.Enqueue(context.Background(), "evaluate_portfolio", nil); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning after Stop, got %v", err)
	}
}

func TestStartFailsWhenRedisIsDown(t *testing.T) {
	q, mock := newTestQueue(3)
	mock.ExpectPing().SetErr(errors.New("connection refused"))
	if err := q.Start(context.Background()); err == nil {
		t.Fatalf("expected ping error")
	}
}

func TestMoveDueRetriesWithNothingDue(t *testing.T) {
	q, mock := newTestQueue(3)
	mock.ExpectZRangeByScore("test:jobs:retry", &redis.ZRangeBy{
		Min: "0",
		Max: "1709294400",
	}).SetVal([]string{})

	q.moveDueRetries(context.Background())
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestParsePayload(t *testing.T) {
	type payload struct {
		PortfolioID string `json:"portfolio_id"`
	}
	p, err := ParsePayload[payload](json.RawMessage(`{"portfolio_id":"p1"}`))
	if err != nil || p.PortfolioID != "p1" {
		t.Fatalf("ParsePayload = %+v, %v", p, err)
	}
	if _, err := ParsePayload[payload](nil); err == nil {
		t.Fatalf("expected error for empty payload")
	}
	if _, err := ParsePayload[payload](json.RawMessage(`[`)); err == nil {
		t.Fatalf("expected decode error")
	}
}
