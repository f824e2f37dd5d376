package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"offerboard_backend/internal/forecast"
	"offerboard_backend/internal/offers/domain"
	"offerboard_backend/internal/offers/store"
	"offerboard_backend/internal/stock"
	"offerboard_backend/internal/zones"
	"offerboard_backend/platform/logger"
)

func fptr(v float64) *float64 { return &v }

type fakeStock struct {
	totals map[string]stock.Total
	err    error
	calls  int
}

func (f *fakeStock) Fetch(ctx context.Context) (map[string]stock.Total, error) {
	f.calls++
	return f.totals, f.err
}

type fakeZones struct {
	thresholds map[string]zones.Thresholds
	err        error
}

func (f *fakeZones) FetchThresholds(ctx context.Context, articles []string) (map[string]zones.Thresholds, error) {
	return f.thresholds, f.err
}

type fakeForecast struct {
	samples      map[string][]forecast.Sample
	skipped      []string
	err          error
	seenStock    map[string]*int
	forecastBack *float64
}

func (f *fakeForecast) FetchSamples(ctx context.Context, articles []string) (map[string][]forecast.Sample, []string, error) {
	return f.samples, f.skipped, f.err
}

func (f *fakeForecast) Compute(stockQty *int, samples []forecast.Sample) (*float64, *float64, domain.ForecastStatus) {
	if f.seenStock == nil {
		f.seenStock = make(map[string]*int)
	}
	if len(samples) > 0 {
		f.seenStock[samples[0].Article] = stockQty
	}
	return f.forecastBack, nil, domain.ForecastStatusOK
}

type fakeLeadCost struct {
	err        error
	fetchCalls int
	cached     map[string]bool
	global     map[domain.Period]domain.PeriodMetric
	perSource  map[string]map[domain.Period]domain.PeriodMetric
}

func (f *fakeLeadCost) FetchRaw(ctx context.Context, articles []string) error {
	f.fetchCalls++
	if f.err != nil {
		return f.err
	}
	if f.cached == nil {
		f.cached = make(map[string]bool)
	}
	for _, article := range articles {
		f.cached[article] = true
	}
	return nil
}

func (f *fakeLeadCost) HasRows(article string) bool {
	return f.cached[article]
}

func (f *fakeLeadCost) GlobalPeriods(article string) map[domain.Period]domain.PeriodMetric {
	return f.global
}

func (f *fakeLeadCost) OperatorPeriods(article string, sourceIDs []string) map[domain.Period]domain.PeriodMetric {
	if len(sourceIDs) == 0 {
		return nil
	}
	return f.perSource[sourceIDs[0]]
}

func healthySources() (*fakeStock, *fakeZones, *fakeForecast, *fakeLeadCost) {
	return &fakeStock{totals: map[string]stock.Total{"A100": {Quantity: 40}}},
		&fakeZones{thresholds: map[string]zones.Thresholds{
			"A100": {First: fptr(50), Fourth: fptr(20), ActualROI: fptr(35)},
		}},
		&fakeForecast{
			samples:      map[string][]forecast.Sample{"A100": {{Article: "A100"}}},
			forecastBack: fptr(4),
		},
		&fakeLeadCost{global: map[domain.Period]domain.PeriodMetric{
			domain.Period(7):  {Leads: 10, Cost: 50, CPL: 5},
			domain.Period(30): {Leads: 40, Cost: 240, CPL: 6},
		}}
}

func newOrchestrator(st *store.Store, s StockSource, z ZoneSource, f ForecastSource, l LeadCostSource) *Orchestrator {
	return New(st, s, z, f, l, logger.New("development"))
}

func TestFullRunEnrichesAllStages(t *testing.T) {
	st := store.New()
	st.SeedOffers([]string{"A100"})
	stockSrc, zoneSrc, forecastSrc, leadSrc := healthySources()
	o := newOrchestrator(st, stockSrc, zoneSrc, forecastSrc, leadSrc)

	report, err := o.Run(context.Background(), RunRequest{Mode: ModeFull})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.StageErrors) != 0 {
		t.Fatalf("expected no stage errors, got %v", report.StageErrors)
	}

	m, _ := st.Offer("A100")
	if m.StockQuantity == nil || *m.StockQuantity != 40 {
		t.Fatalf("expected stock merged, got %+v", m.StockQuantity)
	}
	if m.CurrentZone == "" {
		t.Fatal("expected zone classified")
	}
	if m.SalesForecastPerDay == nil || *m.SalesForecastPerDay != 4 {
		t.Fatalf("expected forecast merged, got %v", m.SalesForecastPerDay)
	}
	if m.LeadsByPeriod[domain.Period(7)] != 10 {
		t.Fatalf("expected lead periods merged, got %v", m.LeadsByPeriod)
	}
	if m.Rating != domain.RatingA {
		t.Fatalf("expected rating A, got %q", m.Rating)
	}
}

func TestStageFailureIsIsolated(t *testing.T) {
	st := store.New()
	st.SeedOffers([]string{"A100"})
	stockSrc, zoneSrc, forecastSrc, leadSrc := healthySources()
	stockSrc.err = errors.New("feed down")
	o := newOrchestrator(st, stockSrc, zoneSrc, forecastSrc, leadSrc)

	report, err := o.Run(context.Background(), RunRequest{Mode: ModeFull})
	if err != nil {
		t.Fatalf("expected partial failure to be non-fatal, got %v", err)
	}
	if _, ok := report.StageErrors[StageStock]; !ok {
		t.Fatalf("expected stock stage error recorded, got %v", report.StageErrors)
	}

	m, _ := st.Offer("A100")
	if m.StockQuantity != nil {
		t.Fatal("expected stock fields untouched after stage failure")
	}
	if m.CurrentZone == "" || m.LeadsByPeriod == nil {
		t.Fatal("expected other stages to still enrich")
	}
}

func TestAllStagesFailedSurfacesError(t *testing.T) {
	st := store.New()
	st.SeedOffers([]string{"A100"})
	down := errors.New("down")
	o := newOrchestrator(st,
		&fakeStock{err: down},
		&fakeZones{err: down},
		&fakeForecast{err: down},
		&fakeLeadCost{err: down},
	)

	report, err := o.Run(context.Background(), RunRequest{Mode: ModeFull})
	if err == nil {
		t.Fatal("expected batch error when every stage failed")
	}
	if len(report.StageErrors) != len(StageNames) {
		t.Fatalf("expected all stage errors recorded, got %v", report.StageErrors)
	}
}

func TestForecastReadsCommittedStock(t *testing.T) {
	st := store.New()
	st.SeedOffers([]string{"A100"})
	stockSrc, zoneSrc, forecastSrc, leadSrc := healthySources()
	o := newOrchestrator(st, stockSrc, zoneSrc, forecastSrc, leadSrc)

	if _, err := o.Run(context.Background(), RunRequest{Mode: ModeFull}); err != nil {
		t.Fatalf("run: %v", err)
	}

	seen := forecastSrc.seenStock["A100"]
	if seen == nil || *seen != 40 {
		t.Fatalf("expected forecast to see the stock stage's committed quantity, got %v", seen)
	}
}

func TestScopedRunTouchesOnlyScopedArticle(t *testing.T) {
	st := store.New()
	st.SeedOffers([]string{"A100", "B200"})
	stockSrc, zoneSrc, forecastSrc, leadSrc := healthySources()
	stockSrc.totals["B200"] = stock.Total{Quantity: 9}
	o := newOrchestrator(st, stockSrc, zoneSrc, forecastSrc, leadSrc)

	if _, err := o.Run(context.Background(), RunRequest{
		Mode:  ModeScoped,
		Scope: Scope{Article: "A100"},
	}); err != nil {
		t.Fatalf("run: %v", err)
	}

	a, _ := st.Offer("A100")
	if a.StockQuantity == nil {
		t.Fatal("expected scoped article enriched")
	}
	b, _ := st.Offer("B200")
	if b.StockQuantity != nil {
		t.Fatal("expected out-of-scope article untouched")
	}
}

func TestScopedRunUnknownArticleIsEmpty(t *testing.T) {
	st := store.New()
	st.SeedOffers([]string{"A100"})
	stockSrc, zoneSrc, forecastSrc, leadSrc := healthySources()
	o := newOrchestrator(st, stockSrc, zoneSrc, forecastSrc, leadSrc)

	report, err := o.Run(context.Background(), RunRequest{
		Mode:  ModeScoped,
		Scope: Scope{Article: "ZZZ"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stockSrc.calls != 0 {
		t.Fatal("expected no fetches for an unknown article")
	}
	if len(report.StageErrors) != 0 {
		t.Fatalf("expected clean empty report, got %v", report.StageErrors)
	}
}

func TestOperatorScopedRunOnlyResumsLeadCost(t *testing.T) {
	st := store.New()
	st.SeedOffers([]string{"A100"})
	st.ReplaceAssignments([]domain.OperatorAssignment{{
		ID:         uuid.New(),
		OperatorID: "op-1",
		Article:    "A100",
		SourceIDs:  []string{"s1"},
	}})

	stockSrc, zoneSrc, forecastSrc, leadSrc := healthySources()
	leadSrc.cached = map[string]bool{"A100": true}
	leadSrc.perSource = map[string]map[domain.Period]domain.PeriodMetric{
		"s1": {domain.Period(7): {Leads: 3, Cost: 12, CPL: 4}},
	}
	o := newOrchestrator(st, stockSrc, zoneSrc, forecastSrc, leadSrc)

	if _, err := o.Run(context.Background(), RunRequest{
		Mode:  ModeScoped,
		Scope: Scope{Article: "A100", OperatorID: "op-1"},
	}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if stockSrc.calls != 0 {
		t.Fatal("expected operator-scoped run to skip the stock stage")
	}
	if leadSrc.fetchCalls != 0 {
		t.Fatal("expected operator re-scope to re-sum cached rows without a fetch")
	}

	perOp := st.PerOperator("A100")
	if len(perOp) != 1 || perOp[0].OperatorID != "op-1" {
		t.Fatalf("expected per-operator metrics for op-1, got %+v", perOp)
	}
	if perOp[0].Periods[domain.Period(7)].Leads != 3 {
		t.Fatalf("expected operator-scoped sums, got %+v", perOp[0].Periods)
	}

	// Offer-level lead fields stay untouched on an operator-scoped run.
	m, _ := st.Offer("A100")
	if m.LeadsByPeriod != nil {
		t.Fatal("expected global lead fields untouched")
	}
}

func TestOperatorScopedRunFetchesOnColdCache(t *testing.T) {
	st := store.New()
	st.SeedOffers([]string{"A100"})
	st.ReplaceAssignments([]domain.OperatorAssignment{{
		ID:         uuid.New(),
		OperatorID: "op-1",
		Article:    "A100",
		SourceIDs:  []string{"s1"},
	}})

	stockSrc, zoneSrc, forecastSrc, leadSrc := healthySources()
	o := newOrchestrator(st, stockSrc, zoneSrc, forecastSrc, leadSrc)

	if _, err := o.Run(context.Background(), RunRequest{
		Mode:  ModeScoped,
		Scope: Scope{Article: "A100", OperatorID: "op-1"},
	}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if leadSrc.fetchCalls != 1 {
		t.Fatalf("expected one fetch for an article never loaded, got %d", leadSrc.fetchCalls)
	}
}

func TestOperatorScopedRunFailureSurfacesError(t *testing.T) {
	st := store.New()
	st.SeedOffers([]string{"A100"})
	st.ReplaceAssignments([]domain.OperatorAssignment{{
		ID:         uuid.New(),
		OperatorID: "op-1",
		Article:    "A100",
		SourceIDs:  []string{"s1"},
	}})

	stockSrc, zoneSrc, forecastSrc, leadSrc := healthySources()
	leadSrc.err = errors.New("analytics endpoint unreachable")
	o := newOrchestrator(st, stockSrc, zoneSrc, forecastSrc, leadSrc)

	report, err := o.Run(context.Background(), RunRequest{
		Mode:  ModeScoped,
		Scope: Scope{Article: "A100", OperatorID: "op-1"},
	})
	if err == nil {
		t.Fatal("expected error when the only attempted stage failed")
	}
	if _, ok := report.StageErrors[StageLeadCost]; !ok {
		t.Fatalf("expected leadcost stage error recorded, got %v", report.StageErrors)
	}
}

func TestGenerationIncrementsPerRun(t *testing.T) {
	st := store.New()
	st.SeedOffers([]string{"A100"})
	stockSrc, zoneSrc, forecastSrc, leadSrc := healthySources()
	o := newOrchestrator(st, stockSrc, zoneSrc, forecastSrc, leadSrc)

	first, err := o.Run(context.Background(), RunRequest{Mode: ModeFull})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	second, err := o.Run(context.Background(), RunRequest{Mode: ModeFull})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if second.Generation <= first.Generation {
		t.Fatalf("expected increasing generations, got %d then %d", first.Generation, second.Generation)
	}
}

func TestStageStatesClearAfterRun(t *testing.T) {
	st := store.New()
	st.SeedOffers([]string{"A100"})
	stockSrc, zoneSrc, forecastSrc, leadSrc := healthySources()
	zoneSrc.err = errors.New("thresholds down")
	o := newOrchestrator(st, stockSrc, zoneSrc, forecastSrc, leadSrc)

	if _, err := o.Run(context.Background(), RunRequest{Mode: ModeFull}); err != nil {
		t.Fatalf("run: %v", err)
	}

	states := o.StageStates()
	if len(states) != len(StageNames) {
		t.Fatalf("expected state per stage, got %d", len(states))
	}
	for name, state := range states {
		if state.Loading {
			t.Fatalf("expected stage %s not loading after run", name)
		}
	}
	if states[StageZones].Err == "" {
		t.Fatal("expected zone stage error recorded in state")
	}
	if states[StageStock].Err != "" {
		t.Fatal("expected stock stage clean")
	}
}

func TestSkippedMonthsSurfaceInReport(t *testing.T) {
	st := store.New()
	st.SeedOffers([]string{"A100"})
	stockSrc, zoneSrc, forecastSrc, leadSrc := healthySources()
	forecastSrc.skipped = []string{"2026-02", "2026-05"}
	o := newOrchestrator(st, stockSrc, zoneSrc, forecastSrc, leadSrc)

	report, err := o.Run(context.Background(), RunRequest{Mode: ModeFull})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.SkippedMonths) != 2 {
		t.Fatalf("expected skipped months in report, got %v", report.SkippedMonths)
	}
}
