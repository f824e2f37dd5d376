// Package zones computes the four zone price points and classifies an
// offer's current zone from its actual ROI.
//
// Zones are independent thresholds converted by a single scale rule;
// red <= pink <= gold <= green is not enforced by construction.
package zones

import (
	"context"
	"fmt"
	"strings"

	"offerboard_backend/internal/analytics"
	"offerboard_backend/internal/offers/domain"
	"offerboard_backend/platform/logger"
)

// ROI threshold type flags as delivered by the effectiveness endpoint.
const (
	ROITypeCurrency = "currency"
	ROITypePercent  = "%"
)

// Thresholds is the per-article effectiveness record. First is the best
// zone's threshold, Fourth the worst. A nil threshold yields a nil price
// for that zone only.
type Thresholds struct {
	First          *float64
	Second         *float64
	Third          *float64
	Fourth         *float64
	ROIType        string
	InvestPrice    float64
	ActualROI      *float64
	ApprovePercent *float64
	SoldPercent    *float64
}

// Result is the computed zone output for one article.
type Result struct {
	Prices          domain.ZonePrices
	RefusalPercent  *float64
	NoPickupPercent *float64
}

type queryer interface {
	Query(ctx context.Context, query string, assoc bool) (*analytics.Result, error)
}

// Calculator fetches effectiveness thresholds in batched IN-list queries
// and converts them to zone prices.
type Calculator struct {
	analytics queryer
	batchSize int
	log       *logger.Logger
}

// New creates a zone price calculator.
func New(analyticsClient queryer, batchSize int, log *logger.Logger) *Calculator {
	if batchSize < 1 {
		batchSize = 200
	}
	return &Calculator{analytics: analyticsClient, batchSize: batchSize, log: log}
}

// FetchThresholds loads the effectiveness records for the given articles,
// batched by the IN-list size limit.
func (c *Calculator) FetchThresholds(ctx context.Context, articles []string) (map[string]Thresholds, error) {
	out := make(map[string]Thresholds, len(articles))

	for start := 0; start < len(articles); start += c.batchSize {
		end := start + c.batchSize
		if end > len(articles) {
			end = len(articles)
		}

		result, err := c.analytics.Query(ctx, thresholdQuery(articles[start:end]), true)
		if err != nil {
			return nil, fmt.Errorf("fetch zone thresholds: %w", err)
		}

		for _, row := range result.Rows {
			article := row.String("article")
			if article == "" {
				continue
			}
			out[article] = Thresholds{
				First:          row.FloatPtr("first_threshold"),
				Second:         row.FloatPtr("second_threshold"),
				Third:          row.FloatPtr("third_threshold"),
				Fourth:         row.FloatPtr("fourth_threshold"),
				ROIType:        row.String("roi_type"),
				InvestPrice:    row.Float("invest_price"),
				ActualROI:      row.FloatPtr("actual_roi"),
				ApprovePercent: row.FloatPtr("approve_percent"),
				SoldPercent:    row.FloatPtr("sold_percent"),
			}
		}
	}

	return out, nil
}

func thresholdQuery(articles []string) string {
	quoted := make([]string, len(articles))
	for i, a := range articles {
		quoted[i] = "'" + strings.ReplaceAll(a, "'", "''") + "'"
	}
	return fmt.Sprintf(
		"SELECT article, first_threshold, second_threshold, third_threshold, fourth_threshold, roi_type, invest_price, actual_roi, approve_percent, sold_percent FROM effectiveness WHERE article IN (%s)",
		strings.Join(quoted, ","))
}

// Compute converts thresholds to zone price points: green gets the best
// (first) threshold, red the worst (fourth). Currency thresholds are the
// price directly; percent thresholds scale the invested price.
func Compute(t Thresholds) Result {
	res := Result{
		Prices: domain.ZonePrices{
			Green: priceFor(t, t.First),
			Gold:  priceFor(t, t.Second),
			Pink:  priceFor(t, t.Third),
			Red:   priceFor(t, t.Fourth),
		},
	}

	if t.ApprovePercent != nil {
		refusal := 100 - *t.ApprovePercent
		res.RefusalPercent = &refusal
	}
	if t.SoldPercent != nil {
		noPickup := 100 - *t.SoldPercent
		res.NoPickupPercent = &noPickup
	}

	return res
}

func priceFor(t Thresholds, threshold *float64) *float64 {
	if threshold == nil {
		return nil
	}
	var price float64
	if t.ROIType == ROITypePercent {
		price = t.InvestPrice * *threshold / 100
	} else {
		price = *threshold
	}
	return &price
}

// Classify walks zones from worst to best and returns the best zone
// whose ROI threshold is at or below the actual ROI (inclusive lower
// bound, ties resolve to the better zone). ZoneBelow when none qualify.
func Classify(actualROI float64, t Thresholds) domain.Zone {
	zone := domain.ZoneBelow
	steps := []struct {
		threshold *float64
		zone      domain.Zone
	}{
		{t.Fourth, domain.ZoneRed},
		{t.Third, domain.ZonePink},
		{t.Second, domain.ZoneGold},
		{t.First, domain.ZoneGreen},
	}
	for _, step := range steps {
		if step.threshold != nil && *step.threshold <= actualROI {
			zone = step.zone
		}
	}
	return zone
}
