package domain

import (
	"time"
)

// DataSource identifies which data path produced a rollup.
type DataSource string

const (
	SourceCanonical DataSource = "canonical"
	SourceFiltered  DataSource = "filtered"
	SourceFallback  DataSource = "fallback"
)

// PeriodKPIs holds the scalar KPIs for one period.
type PeriodKPIs struct {
	GrossRaised float64 `json:"gross_raised"`
	NetRaised   float64 `json:"net_raised"`
	Refunds     float64 `json:"refunds"`
	NetRevenue  float64 `json:"net_revenue"`
	TotalFees   float64 `json:"total_fees"`

	FeePercentage float64 `json:"fee_percentage"` // fees / gross * 100
	RefundRate    float64 `json:"refund_rate"`    // refunds / gross * 100

	AttributedRevenue float64 `json:"attributed_revenue"`
	AttributionRate   float64 `json:"attribution_rate"` // attributed / net revenue * 100

	TotalSpend    float64 `json:"total_spend"`
	AdSpend       float64 `json:"ad_spend"`
	MessagingCost float64 `json:"messaging_cost"`

	// ROI is the investment multiplier on attributed revenue:
	// 1.5 means $1.50 returned per $1 spent. BlendedROI divides total
	// net revenue (not just attributed revenue) by spend. The two are
	// exposed separately and never conflated.
	ROI        float64 `json:"roi"`
	BlendedROI float64 `json:"blended_roi"`

	DonationCount int     `json:"donation_count"`
	RefundCount   int     `json:"refund_count"`
	AvgDonation   float64 `json:"avg_donation"`

	UniqueDonors    int `json:"unique_donors"`
	NewDonors       int `json:"new_donors"`
	ReturningDonors int `json:"returning_donors"`

	// LifetimeNewDonors is the optional lifetime-based enrichment: the
	// count of donors whose first-ever donation falls in this period.
	// nil when no donor history source was available. The period-relative
	// NewDonors figure above is the baseline contract.
	LifetimeNewDonors *int `json:"lifetime_new_donors,omitempty"`

	RecurringRevenue float64 `json:"recurring_revenue"`
	OneTimeRevenue   float64 `json:"one_time_revenue"`
}

// TrendSet holds period-over-period percentage deltas for the headline KPIs.
type TrendSet struct {
	GrossRaised  float64 `json:"gross_raised"`
	NetRevenue   float64 `json:"net_revenue"`
	Donations    float64 `json:"donations"`
	UniqueDonors float64 `json:"unique_donors"`
	ROI          float64 `json:"roi"`
}

// TimeSeriesPoint is one calendar day of chart data. Every day in the
// requested range is present, including days with zero activity, so
// chart x-axes never skip a day.
type TimeSeriesPoint struct {
	Date        string  `json:"date"`
	GrossRaised float64 `json:"gross_raised"`
	NetRevenue  float64 `json:"net_revenue"`
	Refunds     float64 `json:"refunds"`
	Donations   int     `json:"donations"`
	Spend       float64 `json:"spend"`
}

// ChannelStats is the per-channel entry of the channel breakdown.
type ChannelStats struct {
	Channel       Channel `json:"channel"`
	Revenue       float64 `json:"revenue"`
	DonationCount int     `json:"donation_count"`
	Spend         float64 `json:"spend"`
	ROI           float64 `json:"roi"`
	RevenueShare  float64 `json:"revenue_share"` // % of attributed+unattributed revenue
}

// DataQuality discloses how trustworthy the bundle is so the presentation
// layer never shows approximate figures with false precision.
type DataQuality struct {
	UsedFallback       bool   `json:"used_fallback"`
	AttributionMethod  string `json:"attribution_method"` // "canonical" or "fallback"
	UniqueDonorsApprox bool   `json:"unique_donors_approx"`
	RawRowsCapped      bool   `json:"raw_rows_capped"`
	RollupStale        bool   `json:"rollup_stale,omitempty"`
}

// KPIBundle is the engine's terminal output for one reconciliation pass.
// It is computed fresh on every query and never persisted by the engine
// itself (the snapshot archive is write-behind, outside the request path).
type KPIBundle struct {
	OrganizationID string     `json:"organization_id"`
	StartDate      string     `json:"start_date"`
	EndDate        string     `json:"end_date"`
	Timezone       string     `json:"timezone"`
	Source         DataSource `json:"source"`
	GeneratedAt    time.Time  `json:"generated_at"`

	Current  PeriodKPIs `json:"current"`
	Previous PeriodKPIs `json:"previous"`
	Trends   TrendSet   `json:"trends"`

	TimeSeries []TimeSeriesPoint    `json:"time_series"`
	Sparklines map[string][]float64 `json:"sparklines"`
	Channels   []ChannelStats       `json:"channels"`

	DataQuality DataQuality `json:"data_quality"`
}
