package domain

import "github.com/google/uuid"

// ChangeKind tags an assignment change event.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// ChangeEvent is one externally pushed assignment change. Delivery is
// at-least-once and unordered across distinct ids, so consumers must
// merge idempotently.
type ChangeEvent struct {
	Kind       ChangeKind         `json:"kind"`
	Assignment OperatorAssignment `json:"assignment"`
}

// AssignmentID returns the id the event refers to. Deleted events may
// carry only the id.
func (e ChangeEvent) AssignmentID() uuid.UUID {
	return e.Assignment.ID
}
