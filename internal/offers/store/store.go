// Package store holds the live in-memory offer and assignment tables.
//
// These two tables are the only shared mutable state in the system.
// Writers never edit records structurally in place: pipeline stages merge
// whole field-sets through Merge, and the reconciler replaces whole
// assignment records. Readers always receive clones.
package store

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"offerboard_backend/internal/offers/domain"
)

type operatorKey struct {
	article    string
	operatorID string
}

// Store is the concurrency-safe offer/assignment table.
type Store struct {
	mu          sync.RWMutex
	offers      map[string]domain.OfferMetric
	stageGen    map[string]map[string]uint64
	assignments map[uuid.UUID]domain.OperatorAssignment
	perOperator map[operatorKey]domain.PerOperatorMetric
	heightHints map[string]bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		offers:      make(map[string]domain.OfferMetric),
		stageGen:    make(map[string]map[string]uint64),
		assignments: make(map[uuid.UUID]domain.OperatorAssignment),
		perOperator: make(map[operatorKey]domain.PerOperatorMetric),
		heightHints: make(map[string]bool),
	}
}

// SeedOffers inserts rows for articles not yet present. Existing rows
// keep their enriched fields.
func (s *Store) SeedOffers(articles []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, article := range articles {
		if _, ok := s.offers[article]; !ok {
			s.offers[article] = domain.OfferMetric{Article: article}
		}
	}
}

// LoadOffers replaces the offer table wholesale, used when seeding from
// a warm cache.
func (s *Store) LoadOffers(offers []domain.OfferMetric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers = make(map[string]domain.OfferMetric, len(offers))
	for _, m := range offers {
		s.offers[m.Article] = m.Clone()
	}
}

// Offers returns a sorted snapshot of the offer table.
func (s *Store) Offers() []domain.OfferMetric {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.OfferMetric, 0, len(s.offers))
	for _, m := range s.offers {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Article < out[j].Article })
	return out
}

// Offer returns a clone of one row.
func (s *Store) Offer(article string) (domain.OfferMetric, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.offers[article]
	if !ok {
		return domain.OfferMetric{}, false
	}
	return m.Clone(), true
}

// Merge applies a stage's delta to one row. The write is discarded when
// a newer generation already wrote this stage's field-set for the
// article, so overlapping runs never roll metrics backwards.
func (s *Store) Merge(generation uint64, stage, article string, apply func(*domain.OfferMetric)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.offers[article]
	if !ok {
		return false
	}

	gens, ok := s.stageGen[article]
	if !ok {
		gens = make(map[string]uint64)
		s.stageGen[article] = gens
	}
	if generation < gens[stage] {
		return false
	}
	gens[stage] = generation

	clone := m.Clone()
	apply(&clone)
	s.offers[article] = clone
	return true
}

// =============================================================================
// Assignment table
// =============================================================================

// ApplyCreated merges a Created event. Redelivery of the same id replaces
// the record (idempotent); a fresh row for the same operator/source pair
// supersedes the archived one instead of duplicating it.
func (s *Store) ApplyCreated(a domain.OperatorAssignment) (topologyChanged bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.liveCountLocked(a.Article)

	if _, ok := s.assignments[a.ID]; !ok {
		for id, existing := range s.assignments {
			if existing.Article == a.Article && existing.OperatorID == a.OperatorID && existing.SharesSource(a) {
				delete(s.assignments, id)
			}
		}
	}
	s.assignments[a.ID] = a.Clone()

	return before == 0 && s.liveCountLocked(a.Article) > 0
}

// ApplyUpdated replaces the record by id. Out-of-order delivery for an
// unknown id is a no-op, not an error.
func (s *Store) ApplyUpdated(a domain.OperatorAssignment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[a.ID]; !ok {
		return false
	}
	s.assignments[a.ID] = a.Clone()
	return true
}

// ApplyDeleted removes the record by id; absent ids are a no-op.
func (s *Store) ApplyDeleted(id uuid.UUID) (removed, topologyChanged bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.assignments[id]
	if !ok {
		return false, false
	}
	before := s.liveCountLocked(existing.Article)
	delete(s.assignments, id)
	delete(s.perOperator, operatorKey{article: existing.Article, operatorID: existing.OperatorID})
	return true, before > 0 && s.liveCountLocked(existing.Article) == 0
}

// SetAssignmentStatus updates one assignment's enrichment status.
func (s *Store) SetAssignmentStatus(id uuid.UUID, status domain.AssignmentStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return false
	}
	a.Status = status
	s.assignments[id] = a
	return true
}

// AssignmentByID returns a clone of one assignment.
func (s *Store) AssignmentByID(id uuid.UUID) (domain.OperatorAssignment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[id]
	if !ok {
		return domain.OperatorAssignment{}, false
	}
	return a.Clone(), true
}

// Assignments returns the live assignments for one article, sorted by
// operator then id for deterministic output.
func (s *Store) Assignments(article string) []domain.OperatorAssignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.assignmentsLocked(article)
}

// AssignmentsByArticle returns the full assignment lookup keyed by article.
func (s *Store) AssignmentsByArticle() map[string][]domain.OperatorAssignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]domain.OperatorAssignment)
	seen := make(map[string]bool)
	for _, a := range s.assignments {
		if !seen[a.Article] {
			seen[a.Article] = true
			out[a.Article] = s.assignmentsLocked(a.Article)
		}
	}
	return out
}

// ReplaceAssignments swaps the assignment table wholesale (initial load).
func (s *Store) ReplaceAssignments(assignments []domain.OperatorAssignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments = make(map[uuid.UUID]domain.OperatorAssignment, len(assignments))
	for _, a := range assignments {
		s.assignments[a.ID] = a.Clone()
	}
}

func (s *Store) assignmentsLocked(article string) []domain.OperatorAssignment {
	var out []domain.OperatorAssignment
	for _, a := range s.assignments {
		if a.Article == article {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OperatorID != out[j].OperatorID {
			return out[i].OperatorID < out[j].OperatorID
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (s *Store) liveCountLocked(article string) int {
	n := 0
	for _, a := range s.assignments {
		if a.Article == article {
			n++
		}
	}
	return n
}

// =============================================================================
// Per-operator metrics and layout hints
// =============================================================================

// SetPerOperator stores a derived per-operator metric.
func (s *Store) SetPerOperator(m domain.PerOperatorMetric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perOperator[operatorKey{article: m.Article, operatorID: m.OperatorID}] = m
}

// PerOperator returns the per-operator metrics for one article, sorted
// by operator id.
func (s *Store) PerOperator(article string) []domain.PerOperatorMetric {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PerOperatorMetric
	for key, m := range s.perOperator {
		if key.article == article {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OperatorID < out[j].OperatorID })
	return out
}

// MarkHeightHint flags an article whose row layout must be recomputed.
func (s *Store) MarkHeightHint(article string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heightHints[article] = true
}

// RowNeedsMoreHeight reports and consumes the layout hint for an article.
func (s *Store) RowNeedsMoreHeight(article string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	hinted := s.heightHints[article]
	delete(s.heightHints, article)
	return hinted
}
