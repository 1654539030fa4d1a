package repository

import (
	"context"
	"fmt"

	"Kavach/internal/domain/models"
	domrepo "Kavach/internal/domain/repository"
)

var _ domrepo.DecisionSink = (*KafkaDecisionSink)(nil)

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaDecisionSink publishes DecisionEvents as JSON. Assessments are keyed
// by risky ticker and rebalances by portfolio id.
type KafkaDecisionSink struct {
	pub   EventPublisher
	topic string
}

func NewKafkaDecisionSink(pub EventPublisher, topic string) *KafkaDecisionSink {
	return &KafkaDecisionSink{pub: pub, topic: topic}
}

func (s *KafkaDecisionSink) RecordAssessment(ctx context.Context, a *models.RegimeAssessment) error {
	ev := models.DecisionEvent{Type: models.EventAssessment, Timestamp: a.Timestamp, Assessment: a}
	if err := s.pub.Publish(ctx, s.topic, []byte(a.RiskyTicker), ev); err != nil {
		return fmt.Errorf("publish assessment: %w", err)
	}
	return nil
}

func (s *KafkaDecisionSink) RecordRebalance(ctx context.Context, r *models.RebalanceRecord) error {
	ev := models.DecisionEvent{Type: models.EventRebalance, Timestamp: r.Timestamp, Record: r}
	if err := s.pub.Publish(ctx, s.topic, []byte(r.PortfolioID), ev); err != nil {
		return fmt.Errorf("publish rebalance: %w", err)
	}
	return nil
}
