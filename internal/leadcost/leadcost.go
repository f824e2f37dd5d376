// Package leadcost aggregates lead and cost figures per article over the
// fixed lookback windows, globally and per operator.
//
// The full-catalog fetch is the most expensive network operation in the
// system, so the raw per-source-per-day rows are kept in memory keyed by
// article: re-scoping an operator's metrics after an assignment change
// only re-sums already-fetched rows filtered by the new source-id set.
package leadcost

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"offerboard_backend/internal/analytics"
	"offerboard_backend/internal/offers/domain"
	"offerboard_backend/platform/logger"
)

// RawRow is one fetched per-source-per-day aggregate.
type RawRow struct {
	Article  string
	SourceID string
	Date     time.Time
	Leads    int
	Cost     float64
}

type queryer interface {
	Query(ctx context.Context, query string, assoc bool) (*analytics.Result, error)
}

const fetchBatchSize = 100

// Aggregator fetches raw lead/cost rows and derives period metrics.
type Aggregator struct {
	analytics queryer
	log       *logger.Logger
	now       func() time.Time

	mu   sync.Mutex
	rows map[string][]RawRow

	progress func(done, total int)
}

// New creates a lead/cost aggregator.
func New(analyticsClient queryer, log *logger.Logger) *Aggregator {
	return &Aggregator{
		analytics: analyticsClient,
		log:       log,
		now:       time.Now,
		rows:      make(map[string][]RawRow),
	}
}

// SetProgress installs a coarse progress callback. It fires only when a
// 25% boundary is crossed and at completion, never per row.
func (a *Aggregator) SetProgress(fn func(done, total int)) {
	a.progress = fn
}

// FetchRaw loads the trailing 90 days of per-source-per-day rows for the
// given articles, replacing any cached rows for them.
func (a *Aggregator) FetchRaw(ctx context.Context, articles []string) error {
	if len(articles) == 0 {
		return nil
	}

	since := a.now().AddDate(0, 0, -int(domain.Periods[len(domain.Periods)-1]))
	fetched := make(map[string][]RawRow, len(articles))

	lastQuartile := 0
	for start := 0; start < len(articles); start += fetchBatchSize {
		end := start + fetchBatchSize
		if end > len(articles) {
			end = len(articles)
		}

		result, err := a.analytics.Query(ctx, rawRowQuery(since, articles[start:end]), true)
		if err != nil {
			return fmt.Errorf("fetch lead/cost rows: %w", err)
		}

		for _, row := range result.Rows {
			day, err := time.Parse("2006-01-02", row.String("day"))
			if err != nil {
				continue
			}
			article := row.String("article")
			fetched[article] = append(fetched[article], RawRow{
				Article:  article,
				SourceID: row.String("source_id"),
				Date:     day,
				Leads:    row.Int("leads"),
				Cost:     row.Float("cost"),
			})
		}

		if a.progress != nil {
			quartile := end * 4 / len(articles)
			if quartile > lastQuartile || end == len(articles) {
				lastQuartile = quartile
				a.progress(end, len(articles))
			}
		}
	}

	a.mu.Lock()
	for _, article := range articles {
		a.rows[article] = fetched[article]
	}
	a.mu.Unlock()

	return nil
}

func rawRowQuery(since time.Time, articles []string) string {
	quoted := make([]string, len(articles))
	for i, art := range articles {
		quoted[i] = "'" + strings.ReplaceAll(art, "'", "''") + "'"
	}
	return fmt.Sprintf(
		"SELECT article, source_id, toDate(event_date) AS day, count() AS leads, sum(cost) AS cost FROM lead_events WHERE event_date >= '%s' AND article IN (%s) GROUP BY article, source_id, day",
		since.Format("2006-01-02"), strings.Join(quoted, ","))
}

// HasRows reports whether the raw-row cache holds an entry for article.
// A fetch that returned zero rows still counts; absence means the
// article was never fetched at all.
func (a *Aggregator) HasRows(article string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.rows[article]
	return ok
}

// GlobalPeriods sums the cached rows for one article across all sources.
func (a *Aggregator) GlobalPeriods(article string) map[domain.Period]domain.PeriodMetric {
	return a.sumPeriods(article, nil)
}

// OperatorPeriods sums the cached rows for one article filtered by an
// operator's source-id set. No refetch happens on re-scoping.
func (a *Aggregator) OperatorPeriods(article string, sourceIDs []string) map[domain.Period]domain.PeriodMetric {
	allowed := make(map[string]bool, len(sourceIDs))
	for _, id := range sourceIDs {
		allowed[id] = true
	}
	return a.sumPeriods(article, allowed)
}

func (a *Aggregator) sumPeriods(article string, allowed map[string]bool) map[domain.Period]domain.PeriodMetric {
	a.mu.Lock()
	rows := a.rows[article]
	a.mu.Unlock()

	now := a.now()
	out := make(map[domain.Period]domain.PeriodMetric, len(domain.Periods))
	for _, period := range domain.Periods {
		cutoff := now.AddDate(0, 0, -int(period))
		var metric domain.PeriodMetric
		for _, row := range rows {
			if allowed != nil && !allowed[row.SourceID] {
				continue
			}
			if row.Date.Before(cutoff) {
				continue
			}
			metric.Leads += row.Leads
			metric.Cost += row.Cost
		}
		if metric.Leads > 0 {
			metric.CPL = metric.Cost / float64(metric.Leads)
		}
		out[period] = metric
	}
	return out
}

// Rate classifies an article A-D from its recent CPL/lead trend:
// A when the 7-day lead pace holds up against the 30-day pace and CPL is
// not worsening, B when only CPL holds, C when only the pace holds, and
// D when neither does or the 30-day window has no leads at all.
func Rate(periods map[domain.Period]domain.PeriodMetric) domain.Rating {
	week := periods[domain.Period(7)]
	month := periods[domain.Period(30)]

	if month.Leads == 0 {
		return domain.RatingD
	}

	paceHolds := float64(week.Leads)*30/7 >= float64(month.Leads)
	cplHolds := week.Leads == 0 || week.CPL <= month.CPL

	switch {
	case paceHolds && cplHolds:
		return domain.RatingA
	case cplHolds:
		return domain.RatingB
	case paceHolds:
		return domain.RatingC
	default:
		return domain.RatingD
	}
}
