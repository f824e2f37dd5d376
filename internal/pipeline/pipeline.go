// Package pipeline sequences the metrics stages over the offer table.
//
// Stages run against immutable snapshots and merge deltas back through
// the store in a fixed order (stock, zones, forecast, leadcost) so a
// later stage always sees the previous stage's committed fields. Stock
// and zones have no mutual dependency and run concurrently. One stage's
// failure leaves its fields at their prior values and never aborts the
// batch.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"offerboard_backend/internal/forecast"
	"offerboard_backend/internal/leadcost"
	"offerboard_backend/internal/offers/domain"
	"offerboard_backend/internal/offers/store"
	"offerboard_backend/internal/stock"
	"offerboard_backend/internal/zones"
	"offerboard_backend/platform/apperr"
	"offerboard_backend/platform/logger"
)

// RunMode selects the pipeline's scope.
type RunMode string

const (
	// ModeFull runs every stage over the whole catalog.
	ModeFull RunMode = "full"
	// ModeScoped runs over a single offer, or a single operator within
	// one offer when Scope.OperatorID is set.
	ModeScoped RunMode = "scoped"
)

// Scope narrows a scoped run.
type Scope struct {
	Article    string
	OperatorID string
}

// RunRequest describes one pipeline run.
type RunRequest struct {
	Mode  RunMode
	Scope Scope
}

// Report summarizes one completed run.
type Report struct {
	Generation    uint64            `json:"generation"`
	StageErrors   map[string]string `json:"stageErrors,omitempty"`
	SkippedMonths []string          `json:"skippedMonths,omitempty"`
	Duration      time.Duration     `json:"duration"`
}

// StockSource fetches per-article stock totals.
type StockSource interface {
	Fetch(ctx context.Context) (map[string]stock.Total, error)
}

// ZoneSource fetches per-article effectiveness thresholds.
type ZoneSource interface {
	FetchThresholds(ctx context.Context, articles []string) (map[string]zones.Thresholds, error)
}

// ForecastSource fetches lead history and derives forecasts.
type ForecastSource interface {
	FetchSamples(ctx context.Context, articles []string) (map[string][]forecast.Sample, []string, error)
	Compute(stockQty *int, samples []forecast.Sample) (forecastPerDay, daysRemaining *float64, status domain.ForecastStatus)
}

// LeadCostSource fetches raw lead/cost rows and sums them per period.
// HasRows reports whether an article's rows are already cached, so an
// operator re-scope can re-sum without another fetch.
type LeadCostSource interface {
	FetchRaw(ctx context.Context, articles []string) error
	HasRows(article string) bool
	GlobalPeriods(article string) map[domain.Period]domain.PeriodMetric
	OperatorPeriods(article string, sourceIDs []string) map[domain.Period]domain.PeriodMetric
}

// Orchestrator composes the four stages over the shared store.
type Orchestrator struct {
	store       *store.Store
	stockSrc    StockSource
	zoneSrc     ZoneSource
	forecastSrc ForecastSource
	leadSrc     LeadCostSource
	log         *logger.Logger

	generation atomic.Uint64
	states     *stageStates
}

// New creates an orchestrator.
func New(st *store.Store, stockSrc StockSource, zoneSrc ZoneSource, forecastSrc ForecastSource, leadSrc LeadCostSource, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		store:       st,
		stockSrc:    stockSrc,
		zoneSrc:     zoneSrc,
		forecastSrc: forecastSrc,
		leadSrc:     leadSrc,
		log:         log,
		states:      newStageStates(),
	}
}

// StageStates returns the current per-stage readiness flags.
func (o *Orchestrator) StageStates() map[string]StageState {
	return o.states.snapshot()
}

// Run executes the pipeline for the requested scope. Each run is tagged
// with a fresh generation; merges from a run that another run has since
// overtaken are discarded by the store, so overlapping refreshes never
// roll a row backwards.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*Report, error) {
	started := time.Now()
	gen := o.generation.Add(1)

	report := &Report{
		Generation:  gen,
		StageErrors: make(map[string]string),
	}

	articles := o.scopeArticles(req)
	if len(articles) == 0 {
		report.Duration = time.Since(started)
		return report, nil
	}

	// An operator-scoped run only re-derives that operator's metrics;
	// the offer-level fields were already populated by a wider run.
	if req.Mode == ModeScoped && req.Scope.OperatorID != "" {
		o.runLeadCost(ctx, gen, articles, req.Scope.OperatorID, report)
		report.Duration = time.Since(started)
		return report, o.batchError(report, []string{StageLeadCost})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		o.runStock(gctx, gen, articles, report)
		return nil
	})
	g.Go(func() error {
		o.runZones(gctx, gen, articles, report)
		return nil
	})
	_ = g.Wait()

	o.runForecast(ctx, gen, articles, report)
	o.runLeadCost(ctx, gen, articles, "", report)

	report.Duration = time.Since(started)
	return report, o.batchError(report, StageNames)
}

func (o *Orchestrator) scopeArticles(req RunRequest) []string {
	if req.Mode == ModeScoped && req.Scope.Article != "" {
		if _, ok := o.store.Offer(req.Scope.Article); !ok {
			return nil
		}
		return []string{req.Scope.Article}
	}
	offers := o.store.Offers()
	articles := make([]string, len(offers))
	for i, m := range offers {
		articles[i] = m.Article
	}
	return articles
}

// batchError surfaces a single reportable error only when every stage
// attempted in this run failed, which means the upstream endpoints were
// unreachable outright. An operator-scoped run attempts only leadcost,
// so its lone stage failure is enough to fail the run. Partial
// enrichment is preserved either way.
func (o *Orchestrator) batchError(report *Report, attempted []string) error {
	if len(report.StageErrors) == 0 {
		return nil
	}
	for _, name := range attempted {
		if _, ok := report.StageErrors[name]; !ok {
			return nil
		}
	}
	return apperr.Unavailable("all pipeline stages failed", nil)
}

func (o *Orchestrator) runStock(ctx context.Context, gen uint64, articles []string, report *Report) {
	o.states.setLoading(StageStock)

	totals, err := o.stockSrc.Fetch(ctx)
	if err != nil {
		o.log.StageError(StageStock, gen, err)
		report.StageErrors[StageStock] = err.Error()
		o.states.setDone(StageStock, err)
		return
	}

	for _, article := range articles {
		total := totals[article]
		o.store.Merge(gen, StageStock, article, func(m *domain.OfferMetric) {
			qty := total.Quantity
			m.StockQuantity = &qty
			m.Modifications = total.Modifications
		})
	}
	o.states.setDone(StageStock, nil)
}

func (o *Orchestrator) runZones(ctx context.Context, gen uint64, articles []string, report *Report) {
	o.states.setLoading(StageZones)

	thresholds, err := o.zoneSrc.FetchThresholds(ctx, articles)
	if err != nil {
		o.log.StageError(StageZones, gen, err)
		report.StageErrors[StageZones] = err.Error()
		o.states.setDone(StageZones, err)
		return
	}

	for _, article := range articles {
		t, ok := thresholds[article]
		if !ok {
			continue
		}
		result := zones.Compute(t)
		o.store.Merge(gen, StageZones, article, func(m *domain.OfferMetric) {
			m.ZonePrices = result.Prices
			m.RefusalPercent = result.RefusalPercent
			m.NoPickupPercent = result.NoPickupPercent
			m.ActualROIPercent = t.ActualROI
			if t.ActualROI != nil {
				m.CurrentZone = zones.Classify(*t.ActualROI, t)
			}
		})
	}
	o.states.setDone(StageZones, nil)
}

func (o *Orchestrator) runForecast(ctx context.Context, gen uint64, articles []string, report *Report) {
	o.states.setLoading(StageForecast)

	samples, skipped, err := o.forecastSrc.FetchSamples(ctx, articles)
	if err != nil {
		o.log.StageError(StageForecast, gen, err)
		report.StageErrors[StageForecast] = err.Error()
		o.states.setDone(StageForecast, err)
		return
	}
	report.SkippedMonths = skipped

	for _, article := range articles {
		// The forecast consumes the stock stage's committed fields.
		current, ok := o.store.Offer(article)
		if !ok {
			continue
		}
		forecastPerDay, daysRemaining, status := o.forecastSrc.Compute(current.StockQuantity, samples[article])
		o.store.Merge(gen, StageForecast, article, func(m *domain.OfferMetric) {
			m.SalesForecastPerDay = forecastPerDay
			m.DaysRemaining = daysRemaining
			m.ForecastStatus = status
		})
	}
	o.states.setDone(StageForecast, nil)
}

func (o *Orchestrator) runLeadCost(ctx context.Context, gen uint64, articles []string, operatorID string, report *Report) {
	o.states.setLoading(StageLeadCost)

	// An operator re-scope re-sums the cached raw rows; it fetches only
	// when some scoped article was never loaded.
	needFetch := operatorID == ""
	if !needFetch {
		for _, article := range articles {
			if !o.leadSrc.HasRows(article) {
				needFetch = true
				break
			}
		}
	}
	if needFetch {
		if err := o.leadSrc.FetchRaw(ctx, articles); err != nil {
			o.log.StageError(StageLeadCost, gen, err)
			report.StageErrors[StageLeadCost] = err.Error()
			o.states.setDone(StageLeadCost, err)
			return
		}
	}

	for _, article := range articles {
		if operatorID == "" {
			periods := o.leadSrc.GlobalPeriods(article)
			o.store.Merge(gen, StageLeadCost, article, func(m *domain.OfferMetric) {
				m.LeadsByPeriod = make(map[domain.Period]int, len(periods))
				m.CostByPeriod = make(map[domain.Period]float64, len(periods))
				m.CPLByPeriod = make(map[domain.Period]float64, len(periods))
				for period, metric := range periods {
					m.LeadsByPeriod[period] = metric.Leads
					m.CostByPeriod[period] = metric.Cost
					m.CPLByPeriod[period] = metric.CPL
				}
				m.Rating = leadcost.Rate(periods)
			})
		}

		for _, assignment := range o.store.Assignments(article) {
			if operatorID != "" && assignment.OperatorID != operatorID {
				continue
			}
			o.store.SetPerOperator(domain.PerOperatorMetric{
				Article:    article,
				OperatorID: assignment.OperatorID,
				Periods:    o.leadSrc.OperatorPeriods(article, assignment.SourceIDs),
			})
		}
	}
	o.states.setDone(StageLeadCost, nil)
}
