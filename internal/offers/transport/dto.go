// Package transport defines the request/response DTOs for the board API.
package transport

import (
	"offerboard_backend/internal/offers/domain"
	"offerboard_backend/internal/pipeline"
)

// AssignmentView is one operator assignment as rendered on a board row.
type AssignmentView struct {
	ID           string                       `json:"id"`
	OperatorID   string                       `json:"operatorId"`
	OperatorName string                       `json:"operatorName,omitempty"`
	SourceIDs    []string                     `json:"sourceIds"`
	Status       domain.AssignmentStatus      `json:"status"`
	Periods      map[domain.Period]domain.PeriodMetric `json:"periods,omitempty"`
}

// BoardRow is one enriched offer row plus its operator breakdown.
type BoardRow struct {
	domain.OfferMetric
	Assignments     []AssignmentView `json:"assignments"`
	NeedsMoreHeight bool             `json:"needsMoreHeight"`
}

// OperatorView is one roster operator.
type OperatorView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BoardResponse is the full board payload.
type BoardResponse struct {
	Offers    []BoardRow                     `json:"offers"`
	Operators []OperatorView                 `json:"operators"`
	Stages    map[string]pipeline.StageState `json:"stages"`
}

// RefreshRequest scopes a requested refresh. Empty article means a full
// catalog refresh.
type RefreshRequest struct {
	Article    string `json:"article" validate:"omitempty,max=64"`
	OperatorID string `json:"operatorId" validate:"omitempty,max=64,excluded_without=Article"`
}

// RefreshResponse acknowledges an enqueued refresh.
type RefreshResponse struct {
	Enqueued bool   `json:"enqueued"`
	Mode     string `json:"mode"`
}
