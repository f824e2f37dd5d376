// Package domain holds the offer metrics domain model.
package domain

// Period is a trailing lookback window in days.
type Period int

// Periods is the fixed set of lookback windows used for lead/cost
// aggregation, ordered ascending.
var Periods = []Period{7, 14, 30, 60, 90}

// PeriodMetric holds leads, cost, and cost-per-lead for one window.
type PeriodMetric struct {
	Leads int     `json:"leads"`
	Cost  float64 `json:"cost"`
	CPL   float64 `json:"cpl"`
}

// Zone is a pricing/performance tier, ordered worst to best.
type Zone string

const (
	// ZoneBelow marks an offer whose ROI qualifies for no zone at all.
	ZoneBelow Zone = "below"
	ZoneRed   Zone = "red"
	ZonePink  Zone = "pink"
	ZoneGold  Zone = "gold"
	ZoneGreen Zone = "green"
)

// ZonePrices holds the four zone price points. A zone with no threshold
// stays nil without failing the stage.
type ZonePrices struct {
	Red   *float64 `json:"red"`
	Pink  *float64 `json:"pink"`
	Gold  *float64 `json:"gold"`
	Green *float64 `json:"green"`
}

// ForecastStatus is the sentinel emitted when days-remaining cannot be
// computed as a number.
type ForecastStatus string

const (
	ForecastStatusOK                  ForecastStatus = "ok"
	ForecastStatusInsufficientHistory ForecastStatus = "insufficient_history"
	ForecastStatusDecliningTrend      ForecastStatus = "declining_trend"
)

// Rating is the A-D classification derived from recent CPL/lead trend.
type Rating string

const (
	RatingA Rating = "A"
	RatingB Rating = "B"
	RatingC Rating = "C"
	RatingD Rating = "D"
)

// OfferMetric is one row of the board: the derived state of a single
// catalog article. Fields are nil until the owning pipeline stage has
// run; each stage owns a disjoint set of fields and only the pipeline
// mutates them.
type OfferMetric struct {
	Article string `json:"article"`

	// Stock stage.
	StockQuantity *int     `json:"stockQuantity"`
	Modifications []string `json:"modifications,omitempty"`

	// Zone stage.
	ZonePrices       ZonePrices `json:"zonePrices"`
	CurrentZone      Zone       `json:"currentZone,omitempty"`
	ActualROIPercent *float64   `json:"actualRoiPercent"`
	RefusalPercent   *float64   `json:"refusalPercent"`
	NoPickupPercent  *float64   `json:"noPickupPercent"`

	// Forecast stage.
	SalesForecastPerDay *float64       `json:"salesForecastPerDay"`
	DaysRemaining       *float64       `json:"daysRemaining"`
	ForecastStatus      ForecastStatus `json:"forecastStatus,omitempty"`

	// Lead/cost stage.
	LeadsByPeriod map[Period]int     `json:"leadsByPeriod,omitempty"`
	CostByPeriod  map[Period]float64 `json:"costByPeriod,omitempty"`
	CPLByPeriod   map[Period]float64 `json:"cplByPeriod,omitempty"`
	Rating        Rating             `json:"rating,omitempty"`
}

// Clone returns a deep copy so snapshots handed to pipeline stages never
// alias the live table.
func (m OfferMetric) Clone() OfferMetric {
	out := m
	out.StockQuantity = cloneInt(m.StockQuantity)
	out.Modifications = append([]string(nil), m.Modifications...)
	out.ZonePrices = ZonePrices{
		Red:   cloneFloat(m.ZonePrices.Red),
		Pink:  cloneFloat(m.ZonePrices.Pink),
		Gold:  cloneFloat(m.ZonePrices.Gold),
		Green: cloneFloat(m.ZonePrices.Green),
	}
	out.ActualROIPercent = cloneFloat(m.ActualROIPercent)
	out.RefusalPercent = cloneFloat(m.RefusalPercent)
	out.NoPickupPercent = cloneFloat(m.NoPickupPercent)
	out.SalesForecastPerDay = cloneFloat(m.SalesForecastPerDay)
	out.DaysRemaining = cloneFloat(m.DaysRemaining)
	out.LeadsByPeriod = clonePeriodInts(m.LeadsByPeriod)
	out.CostByPeriod = clonePeriodFloats(m.CostByPeriod)
	out.CPLByPeriod = clonePeriodFloats(m.CPLByPeriod)
	return out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func clonePeriodInts(in map[Period]int) map[Period]int {
	if in == nil {
		return nil
	}
	out := make(map[Period]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func clonePeriodFloats(in map[Period]float64) map[Period]float64 {
	if in == nil {
		return nil
	}
	out := make(map[Period]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
