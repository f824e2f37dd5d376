// Package forecast implements the stock-days engine: per-article daily
// sales forecasts from exponentially smoothed lead history.
package forecast

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"offerboard_backend/internal/analytics"
	"offerboard_backend/internal/offers/domain"
	"offerboard_backend/platform/config"
	"offerboard_backend/platform/logger"
)

// Sample is one aggregated day of lead history for an article. Samples
// live only inside a forecaster run, never across runs.
type Sample struct {
	Article string
	Date    time.Time
	Leads   float64
}

type queryer interface {
	Query(ctx context.Context, query string, assoc bool) (*analytics.Result, error)
}

// Forecaster fetches monthly lead history and computes smoothed daily
// forecasts.
type Forecaster struct {
	analytics  queryer
	limiter    *rate.Limiter
	months     int
	minSamples int
	alpha      float64
	floor      float64
	now        func() time.Time
	log        *logger.Logger
}

// New creates a forecaster from the pipeline tuning.
func New(analyticsClient queryer, tuning config.Tuning, log *logger.Logger) *Forecaster {
	return &Forecaster{
		analytics:  analyticsClient,
		limiter:    rate.NewLimiter(rate.Every(tuning.MonthFetchDelay), 1),
		months:     tuning.ForecastMonths,
		minSamples: tuning.MinForecastSamples,
		alpha:      tuning.SmoothingAlpha,
		floor:      tuning.ForecastFloor,
		now:        time.Now,
		log:        log,
	}
}

// FetchSamples collects the trailing lead history, month by month. The
// requests are deliberately sequential with an inter-request delay so a
// full-catalog fetch never hammers the endpoint. A month that exhausts
// its retries is skipped and reported, not fatal.
func (f *Forecaster) FetchSamples(ctx context.Context, articles []string) (map[string][]Sample, []string, error) {
	samples := make(map[string][]Sample)
	var skipped []string

	end := monthStart(f.now()).AddDate(0, 1, 0)
	for i := f.months; i >= 1; i-- {
		from := end.AddDate(0, -i, 0)
		to := from.AddDate(0, 1, 0)

		if err := f.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}

		result, err := f.analytics.Query(ctx, monthQuery(from, to, articles), true)
		if err != nil {
			f.log.Warn("forecast month skipped",
				"month", from.Format("2006-01"),
				"error", err)
			skipped = append(skipped, from.Format("2006-01"))
			continue
		}

		for _, row := range result.Rows {
			article := row.String("article")
			day, err := time.Parse("2006-01-02", row.String("day"))
			if err != nil {
				continue
			}
			samples[article] = append(samples[article], Sample{
				Article: article,
				Date:    day,
				Leads:   row.Float("leads"),
			})
		}
	}

	return samples, skipped, nil
}

// monthQuery builds one grouped aggregate query. Grouping by article and
// day keeps the response bounded regardless of raw event volume.
func monthQuery(from, to time.Time, articles []string) string {
	var filter string
	if len(articles) > 0 {
		quoted := make([]string, len(articles))
		for i, a := range articles {
			quoted[i] = "'" + strings.ReplaceAll(a, "'", "''") + "'"
		}
		filter = fmt.Sprintf(" AND article IN (%s)", strings.Join(quoted, ","))
	}
	return fmt.Sprintf(
		"SELECT article, toDate(event_date) AS day, count() AS leads FROM lead_events WHERE event_date >= '%s' AND event_date < '%s'%s GROUP BY article, day",
		from.Format("2006-01-02"), to.Format("2006-01-02"), filter)
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Smooth applies exponential smoothing over the date-sorted samples:
// f0 = first sample, fi = alpha*leads_i + (1-alpha)*f(i-1). The result
// is clamped to the floor so later divisions never blow up. ok is false
// when the sample count is below the minimum.
func (f *Forecaster) Smooth(samples []Sample) (float64, bool) {
	return Smooth(samples, f.alpha, f.floor, f.minSamples)
}

// Smooth is the pure smoothing kernel; see Forecaster.Smooth.
func Smooth(samples []Sample, alpha, floor float64, minSamples int) (float64, bool) {
	if len(samples) < minSamples {
		return 0, false
	}

	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	smoothed := sorted[0].Leads
	for _, s := range sorted[1:] {
		smoothed = alpha*s.Leads + (1-alpha)*smoothed
	}

	if smoothed < floor {
		smoothed = floor
	}
	return smoothed, true
}

// TrendSign reports the sign of the least-squares slope over the
// date-sorted lead series: -1 declining, 0 flat, 1 growing.
func TrendSign(samples []Sample) int {
	if len(samples) < 2 {
		return 0
	}

	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	n := float64(len(sorted))
	var sumX, sumY, sumXY, sumXX float64
	for i, s := range sorted {
		x := float64(i)
		sumX += x
		sumY += s.Leads
		sumXY += x * s.Leads
		sumXX += x * x
	}

	numerator := n*sumXY - sumX*sumY
	switch {
	case numerator < 0:
		return -1
	case numerator > 0:
		return 1
	default:
		return 0
	}
}

// Compute derives the forecast fields for one article. DaysRemaining is
// only a number when stock and a positive forecast are both present and
// the trend is not declining; otherwise the status carries the sentinel.
func (f *Forecaster) Compute(stock *int, samples []Sample) (forecastPerDay, daysRemaining *float64, status domain.ForecastStatus) {
	smoothed, ok := f.Smooth(samples)
	if !ok {
		return nil, nil, domain.ForecastStatusInsufficientHistory
	}

	forecastPerDay = &smoothed

	if TrendSign(samples) < 0 {
		return forecastPerDay, nil, domain.ForecastStatusDecliningTrend
	}

	if stock != nil && smoothed > 0 {
		days := float64(*stock) / smoothed
		daysRemaining = &days
	}
	return forecastPerDay, daysRemaining, domain.ForecastStatusOK
}
