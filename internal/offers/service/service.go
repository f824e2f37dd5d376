// Package service implements the board use cases: initial load, board
// assembly, and refresh orchestration.
package service

import (
	"context"
	"sync"

	"offerboard_backend/internal/cache"
	"offerboard_backend/internal/offers/domain"
	"offerboard_backend/internal/offers/store"
	"offerboard_backend/internal/offers/transport"
	"offerboard_backend/internal/pipeline"
	"offerboard_backend/internal/roster/repository"
	"offerboard_backend/internal/scheduler"
	"offerboard_backend/platform/apperr"
	"offerboard_backend/platform/logger"
)

// Roster loads the offer catalog, operators, and assignments owned by
// the external CRUD service.
type Roster interface {
	ListArticles(ctx context.Context) ([]string, error)
	ListOperators(ctx context.Context) ([]repository.Operator, error)
	ListAssignments(ctx context.Context) ([]domain.OperatorAssignment, error)
}

// Pipeline runs metric refreshes and reports per-stage readiness.
type Pipeline interface {
	Run(ctx context.Context, req pipeline.RunRequest) (*pipeline.Report, error)
	StageStates() map[string]pipeline.StageState
}

// Service is the board application service.
type Service struct {
	store    *store.Store
	roster   Roster
	cache    *cache.Manager
	pipeline Pipeline
	enqueuer scheduler.RefreshEnqueuer
	log      *logger.Logger

	opsMu     sync.RWMutex
	operators []repository.Operator
}

// New creates the board service.
func New(st *store.Store, roster Roster, cacheMgr *cache.Manager, pl Pipeline, enqueuer scheduler.RefreshEnqueuer, log *logger.Logger) *Service {
	return &Service{
		store:    st,
		roster:   roster,
		cache:    cacheMgr,
		pipeline: pl,
		enqueuer: enqueuer,
		log:      log,
	}
}

// Load performs the initial population: roster first, then either a
// cache restore or a full synchronous pipeline run. Later refreshes go
// through the queue; only startup blocks on the pipeline.
func (s *Service) Load(ctx context.Context) error {
	articles, err := s.roster.ListArticles(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "load offer catalog", err)
	}
	operators, err := s.roster.ListOperators(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "load operator roster", err)
	}
	assignments, err := s.roster.ListAssignments(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "load assignments", err)
	}

	s.store.SeedOffers(articles)
	s.store.ReplaceAssignments(assignments)
	s.setOperators(operators)

	if s.restoreFromCache(ctx) {
		s.log.Info("board restored from cache", "offers", len(articles))
		return nil
	}

	report, err := s.pipeline.Run(ctx, pipeline.RunRequest{Mode: pipeline.ModeFull})
	if err != nil {
		return err
	}
	s.log.Info("initial refresh complete",
		"generation", report.Generation,
		"stage_errors", len(report.StageErrors))

	s.SnapshotToCache(ctx)
	return nil
}

// restoreFromCache seeds the store from the session cache. All five
// slices must hit; a partial cache is treated as no cache at all.
func (s *Service) restoreFromCache(ctx context.Context) bool {
	var (
		metrics     []domain.OfferMetric
		operators   []repository.Operator
		statuses    map[string]domain.AssignmentStatus
		assignments []domain.OperatorAssignment
		mappings    []domain.PerOperatorMetric
	)

	if !s.cache.Read(ctx, cache.SliceMetrics, &metrics) ||
		!s.cache.Read(ctx, cache.SliceOperators, &operators) ||
		!s.cache.Read(ctx, cache.SliceStatuses, &statuses) ||
		!s.cache.Read(ctx, cache.SliceAssignments, &assignments) ||
		!s.cache.Read(ctx, cache.SliceMappings, &mappings) {
		return false
	}

	s.store.LoadOffers(metrics)
	s.store.ReplaceAssignments(assignments)
	for _, a := range assignments {
		if status, ok := statuses[a.ID.String()]; ok {
			s.store.SetAssignmentStatus(a.ID, status)
		}
	}
	for _, m := range mappings {
		s.store.SetPerOperator(m)
	}
	s.setOperators(operators)
	return true
}

// SnapshotToCache writes all five cache slices from the current store
// state. Write failures degrade to an uncached session.
func (s *Service) SnapshotToCache(ctx context.Context) {
	offers := s.store.Offers()
	assignmentsByArticle := s.store.AssignmentsByArticle()

	var assignments []domain.OperatorAssignment
	statuses := make(map[string]domain.AssignmentStatus)
	var mappings []domain.PerOperatorMetric
	for _, m := range offers {
		for _, a := range assignmentsByArticle[m.Article] {
			assignments = append(assignments, a)
			statuses[a.ID.String()] = a.Status
		}
		mappings = append(mappings, s.store.PerOperator(m.Article)...)
	}

	writes := []struct {
		slice cache.Slice
		v     any
	}{
		{cache.SliceMetrics, offers},
		{cache.SliceOperators, s.Operators()},
		{cache.SliceStatuses, statuses},
		{cache.SliceAssignments, assignments},
		{cache.SliceMappings, mappings},
	}
	for _, w := range writes {
		if err := s.cache.Write(ctx, w.slice, w.v); err != nil {
			s.log.Warn("cache write failed", "slice", w.slice, "error", err)
		}
	}
}

// Board assembles the full board payload from the live store.
func (s *Service) Board(ctx context.Context) transport.BoardResponse {
	offers := s.store.Offers()
	rows := make([]transport.BoardRow, 0, len(offers))
	for _, m := range offers {
		rows = append(rows, s.buildRow(m))
	}

	operators := s.Operators()
	views := make([]transport.OperatorView, 0, len(operators))
	for _, op := range operators {
		views = append(views, transport.OperatorView{ID: op.ID, Name: op.Name})
	}

	return transport.BoardResponse{
		Offers:    rows,
		Operators: views,
		Stages:    s.pipeline.StageStates(),
	}
}

// Row returns one enriched board row.
func (s *Service) Row(ctx context.Context, article string) (transport.BoardRow, error) {
	m, ok := s.store.Offer(article)
	if !ok {
		return transport.BoardRow{}, apperr.NotFound("offer not found")
	}
	return s.buildRow(m), nil
}

func (s *Service) buildRow(m domain.OfferMetric) transport.BoardRow {
	assignments := s.store.Assignments(m.Article)
	perOperator := s.store.PerOperator(m.Article)

	periodsByOperator := make(map[string]map[domain.Period]domain.PeriodMetric, len(perOperator))
	for _, pm := range perOperator {
		periodsByOperator[pm.OperatorID] = pm.Periods
	}
	names := s.operatorNames()

	views := make([]transport.AssignmentView, 0, len(assignments))
	for _, a := range assignments {
		views = append(views, transport.AssignmentView{
			ID:           a.ID.String(),
			OperatorID:   a.OperatorID,
			OperatorName: names[a.OperatorID],
			SourceIDs:    a.SourceIDs,
			Status:       a.Status,
			Periods:      periodsByOperator[a.OperatorID],
		})
	}

	return transport.BoardRow{
		OfferMetric:     m,
		Assignments:     views,
		NeedsMoreHeight: s.store.RowNeedsMoreHeight(m.Article),
	}
}

// StageStates exposes the pipeline's per-stage readiness flags.
func (s *Service) StageStates() map[string]pipeline.StageState {
	return s.pipeline.StageStates()
}

// Refresh enqueues a refresh. An empty article requests a full run.
func (s *Service) Refresh(ctx context.Context, req transport.RefreshRequest) (transport.RefreshResponse, error) {
	if req.Article == "" {
		if err := s.enqueuer.EnqueueFullRefresh(ctx); err != nil {
			return transport.RefreshResponse{}, apperr.Wrap(apperr.KindUnavailable, "enqueue full refresh", err)
		}
		return transport.RefreshResponse{Enqueued: true, Mode: string(pipeline.ModeFull)}, nil
	}

	if _, ok := s.store.Offer(req.Article); !ok {
		return transport.RefreshResponse{}, apperr.NotFound("offer not found")
	}
	if err := s.enqueuer.EnqueueOfferRefresh(ctx, scheduler.RefreshOfferPayload{
		Article:    req.Article,
		OperatorID: req.OperatorID,
	}); err != nil {
		return transport.RefreshResponse{}, apperr.Wrap(apperr.KindUnavailable, "enqueue offer refresh", err)
	}
	return transport.RefreshResponse{Enqueued: true, Mode: string(pipeline.ModeScoped)}, nil
}

// Operators returns a copy of the cached operator roster.
func (s *Service) Operators() []repository.Operator {
	s.opsMu.RLock()
	defer s.opsMu.RUnlock()
	return append([]repository.Operator(nil), s.operators...)
}

func (s *Service) setOperators(operators []repository.Operator) {
	s.opsMu.Lock()
	defer s.opsMu.Unlock()
	s.operators = operators
}

func (s *Service) operatorNames() map[string]string {
	s.opsMu.RLock()
	defer s.opsMu.RUnlock()
	names := make(map[string]string, len(s.operators))
	for _, op := range s.operators {
		names[op.ID] = op.Name
	}
	return names
}
