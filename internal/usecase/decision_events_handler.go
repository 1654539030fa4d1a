package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"Kavach/internal/domain/models"
	domrepo "Kavach/internal/domain/repository"
	pkgkafka "Kavach/pkg/kafka"
)

var _ pkgkafka.MessageHandler = (*DecisionEventsHandler)(nil)

// DecisionEventsHandler consumes published DecisionEvents and writes them
// to a store.
type DecisionEventsHandler struct {
	topic   string
	store   domrepo.DecisionSink
	metrics domrepo.Metrics
}

func NewDecisionEventsHandler(topic string, store domrepo.DecisionSink, metrics domrepo.Metrics) *DecisionEventsHandler {
	return &DecisionEventsHandler{topic: topic, store: store, metrics: metrics}
}

func (h *DecisionEventsHandler) Topic() string { return h.topic }

// Handle returns an error only for failures worth retrying. Undecodable
// or unknown events are counted and dropped.
func (h *DecisionEventsHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.DecisionEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return nil
	}
	if !ev.Timestamp.IsZero() {
		h.metrics.RecordLatency("decision_e2e", time.Since(ev.Timestamp).Seconds())
	}

	start := time.Now()
	var err error
	switch {
	case ev.Type == models.EventAssessment && ev.Assessment != nil:
		err = h.store.RecordAssessment(ctx, ev.Assessment)
	case ev.Type == models.EventRebalance && ev.Record != nil:
		err = h.store.RecordRebalance(ctx, ev.Record)
	default:
		h.metrics.RecordError("consumer_unknown_event")
		return nil
	}
	h.metrics.RecordLatency("decision_store", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return fmt.Errorf("store %s event: %w", ev.Type, err)
	}
	return nil
}
