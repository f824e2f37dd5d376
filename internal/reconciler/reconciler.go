// Package reconciler merges externally pushed assignment change events
// into the live in-memory view without a full reload.
//
// The change feed is at-least-once and unordered across distinct ids, so
// every merge is idempotent: duplicate and out-of-order deliveries are
// absorbed silently, never treated as errors.
package reconciler

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"offerboard_backend/internal/events"
	"offerboard_backend/internal/offers/domain"
	"offerboard_backend/internal/offers/store"
	"offerboard_backend/internal/pipeline"
	"offerboard_backend/platform/logger"
)

// Runner executes scoped pipeline runs.
type Runner interface {
	Run(ctx context.Context, req pipeline.RunRequest) (*pipeline.Report, error)
}

// Reconciler applies ChangeEvents to the assignment table and triggers
// narrow pipeline re-runs for the affected offer/operator pair.
type Reconciler struct {
	store  *store.Store
	runner Runner
	bus    events.Bus
	log    *logger.Logger

	// dispatch runs scoped refreshes; asynchronous in production,
	// replaced with an inline call in tests.
	dispatch func(fn func())

	runsMu     sync.Mutex
	activeRuns map[string]bool
}

// New creates a reconciler.
func New(st *store.Store, runner Runner, bus events.Bus, log *logger.Logger) *Reconciler {
	return &Reconciler{
		store:      st,
		runner:     runner,
		bus:        bus,
		log:        log,
		dispatch:   func(fn func()) { go fn() },
		activeRuns: make(map[string]bool),
	}
}

// Apply merges one change event. The offer table itself is never touched
// here; metrics only change through the scoped pipeline re-run.
func (r *Reconciler) Apply(ctx context.Context, ev domain.ChangeEvent) {
	switch ev.Kind {
	case domain.ChangeCreated:
		r.applyCreated(ctx, ev.Assignment)
	case domain.ChangeUpdated:
		r.applyUpdated(ev.Assignment)
	case domain.ChangeDeleted:
		r.applyDeleted(ctx, ev.AssignmentID())
	default:
		r.log.Warn("reconciler: unknown change kind", "kind", ev.Kind)
	}
}

func (r *Reconciler) applyCreated(ctx context.Context, a domain.OperatorAssignment) {
	// The fresh assignment stays pending until its scoped run lands.
	a.Status = domain.AssignmentPending

	topologyChanged := r.store.ApplyCreated(a)
	if topologyChanged {
		r.signalTopology(ctx, a.Article, true)
	}

	r.triggerScopedRun(a.Article, a.OperatorID, a.ID)
}

func (r *Reconciler) applyUpdated(a domain.OperatorAssignment) {
	existing, ok := r.store.AssignmentByID(a.ID)
	if !ok {
		// Out-of-order delivery; the Created event may still arrive.
		r.log.Debug("reconciler: update for unknown assignment", "id", a.ID)
		return
	}
	if a.Status == "" {
		a.Status = existing.Status
	}
	r.store.ApplyUpdated(a)
}

func (r *Reconciler) applyDeleted(ctx context.Context, id uuid.UUID) {
	existing, ok := r.store.AssignmentByID(id)
	if !ok {
		return
	}
	removed, topologyChanged := r.store.ApplyDeleted(id)
	if removed && topologyChanged {
		r.signalTopology(ctx, existing.Article, false)
	}
}

func (r *Reconciler) signalTopology(ctx context.Context, article string, hasAssignments bool) {
	r.store.MarkHeightHint(article)
	r.bus.Publish(ctx, events.RowTopologyChanged{
		BaseEvent:      events.NewBaseEvent(),
		Article:        article,
		HasAssignments: hasAssignments,
	})
}

func (r *Reconciler) markRunning(key string) bool {
	r.runsMu.Lock()
	defer r.runsMu.Unlock()
	if r.activeRuns[key] {
		return false
	}
	r.activeRuns[key] = true
	return true
}

func (r *Reconciler) markComplete(key string) {
	r.runsMu.Lock()
	defer r.runsMu.Unlock()
	delete(r.activeRuns, key)
}

func (r *Reconciler) triggerScopedRun(article, operatorID string, assignmentID uuid.UUID) {
	key := article + ":" + operatorID
	if !r.markRunning(key) {
		r.log.Debug("reconciler: scoped run already in flight", "article", article, "operator", operatorID)
		return
	}
	r.dispatch(func() {
		defer r.markComplete(key)
		r.runScoped(context.Background(), article, operatorID, assignmentID)
	})
}

// runScoped populates metrics for a fresh assignment. When the
// assignment's source set changes while the run is in flight (an Updated
// event racing the Created), the run repeats so the final metrics always
// reflect the final source IDs.
func (r *Reconciler) runScoped(ctx context.Context, article, operatorID string, assignmentID uuid.UUID) {
	const maxPasses = 3

	for pass := 0; pass < maxPasses; pass++ {
		before, ok := r.store.AssignmentByID(assignmentID)
		if !ok {
			// Deleted while pending; nothing left to enrich.
			return
		}

		report, err := r.runner.Run(ctx, pipeline.RunRequest{
			Mode:  pipeline.ModeScoped,
			Scope: pipeline.Scope{Article: article, OperatorID: operatorID},
		})
		if err != nil {
			r.log.Error("reconciler: scoped run failed", "article", article, "operator", operatorID, "error", err)
			r.store.SetAssignmentStatus(assignmentID, domain.AssignmentFailed)
			return
		}

		after, ok := r.store.AssignmentByID(assignmentID)
		if !ok {
			return
		}
		if equalSources(before.SourceIDs, after.SourceIDs) {
			r.store.SetAssignmentStatus(assignmentID, domain.AssignmentReady)
			r.bus.Publish(ctx, events.MetricsRefreshed{
				BaseEvent:  events.NewBaseEvent(),
				Generation: report.Generation,
				Mode:       string(pipeline.ModeScoped),
				Article:    article,
			})
			return
		}
	}

	r.store.SetAssignmentStatus(assignmentID, domain.AssignmentReady)
}

func equalSources(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		if seen[s] == 0 {
			return false
		}
		seen[s]--
	}
	return true
}
