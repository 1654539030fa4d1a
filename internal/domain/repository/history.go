package repository

import (
	"context"

	"Kavach/internal/domain/models"
)

// DecisionHistory gives read access to recorded decisions.
type DecisionHistory interface {
	ListRebalances(ctx context.Context, portfolioID string, limit int) ([]*models.RebalanceRecord, error)
	ListAssessments(ctx context.Context, limit int) ([]*models.RegimeAssessment, error)
}
