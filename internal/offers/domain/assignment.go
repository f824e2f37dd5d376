package domain

import (
	"time"

	"github.com/google/uuid"
)

// AssignmentStatus tracks a single assignment's enrichment state.
type AssignmentStatus string

const (
	// AssignmentPending marks a freshly created assignment whose scoped
	// metrics run has not completed yet.
	AssignmentPending AssignmentStatus = "pending"
	AssignmentReady   AssignmentStatus = "ready"
	AssignmentFailed  AssignmentStatus = "failed"
)

// OperatorAssignment links a trafficking operator to an offer and the
// external source identifiers used to scope aggregation queries.
// Created and archived by the external CRUD collaborator; consumed
// read-only here.
type OperatorAssignment struct {
	ID         uuid.UUID        `json:"id"`
	OperatorID string           `json:"operatorId"`
	Article    string           `json:"article"`
	SourceIDs  []string         `json:"sourceIds"`
	Status     AssignmentStatus `json:"status"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// Clone returns a copy whose SourceIDs slice does not alias the original.
func (a OperatorAssignment) Clone() OperatorAssignment {
	out := a
	out.SourceIDs = append([]string(nil), a.SourceIDs...)
	return out
}

// SharesSource reports whether the two assignments overlap on at least
// one source identifier.
func (a OperatorAssignment) SharesSource(other OperatorAssignment) bool {
	for _, s := range a.SourceIDs {
		for _, o := range other.SourceIDs {
			if s == o {
				return true
			}
		}
	}
	return false
}

// PerOperatorMetric is the period-keyed leads/cost breakdown for one
// operator on one offer, scoped to the operator's source IDs. Derived,
// never persisted authoritatively.
type PerOperatorMetric struct {
	Article    string                  `json:"article"`
	OperatorID string                  `json:"operatorId"`
	Periods    map[Period]PeriodMetric `json:"periods"`
}
