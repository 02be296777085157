// Package kpi derives the scalar KPIs, trends, time series, and channel
// breakdown from whichever rollup path won a reconciliation pass.
//
// Every ratio here is defined to be 0 when its denominator is 0; a NaN
// or Inf escaping this package would poison every downstream figure.
package kpi

import (
	"time"

	"github.com/civicpulse/fundraise-monitor/internal/attribution"
	"github.com/civicpulse/fundraise-monitor/internal/daybucket"
	"github.com/civicpulse/fundraise-monitor/internal/domain"
)

// FeePercentage returns processor fees as a percentage of gross.
func FeePercentage(totalFees, grossRaised float64) float64 {
	if grossRaised == 0 {
		return 0
	}
	return totalFees / grossRaised * 100
}

// RefundRate returns refunds as a percentage of gross.
func RefundRate(refunds, grossRaised float64) float64 {
	if grossRaised == 0 {
		return 0
	}
	return refunds / grossRaised * 100
}

// AttributionRate returns attributed revenue as a percentage of total
// net revenue.
func AttributionRate(attributedRevenue, netRevenue float64) float64 {
	if netRevenue == 0 {
		return 0
	}
	return attributedRevenue / netRevenue * 100
}

// ROI is the investment multiplier on attributed revenue: 1.5 means
// $1.50 returned per $1 spent.
func ROI(attributedRevenue, totalSpend float64) float64 {
	if totalSpend == 0 {
		return 0
	}
	return attributedRevenue / totalSpend
}

// BlendedROI divides total net revenue (not just attributed revenue) by
// spend. Kept separate from ROI; the two must never be conflated.
func BlendedROI(netRevenue, totalSpend float64) float64 {
	if totalSpend == 0 {
		return 0
	}
	return netRevenue / totalSpend
}

// Trend returns the period-over-period delta as a percentage.
// A previous of exactly 0 with positive current reads as +100 (and -100
// for negative current); 0 over 0 is flat.
func Trend(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		if current < 0 {
			return -100
		}
		return 0
	}
	return (current - previous) / previous * 100
}

// NewVsReturning splits the current period's donors against the
// immediately preceding period of equal length. This is a set
// difference over two period-scoped donor sets, not a lifetime
// first-donation lookup; lifetime classification is an optional
// enrichment on top.
func NewVsReturning(current, previous map[string]struct{}) (newDonors, returning int) {
	for id := range current {
		if _, seen := previous[id]; seen {
			returning++
		} else {
			newDonors++
		}
	}
	return newDonors, returning
}

// Inputs carries everything the synthesis step needs. All fields are
// snapshots fetched concurrently by the orchestrator; nothing here does
// I/O.
type Inputs struct {
	OrganizationID string
	StartDate      string
	EndDate        string
	Timezone       string
	Source         domain.DataSource

	CurrentDaily    []domain.DailyRollupRow
	CurrentSummary  *domain.PeriodSummary
	PreviousSummary *domain.PeriodSummary

	// Channel revenue from the attribution classifier, current period.
	ChannelRevenue map[domain.Channel]*attribution.ChannelRevenue
	// Attributed revenue for the previous period (scalar is enough for
	// the trend; no per-channel breakdown is rendered for it).
	PreviousAttributedRevenue float64

	CurrentSpend  []domain.SpendRecord
	PreviousSpend []domain.SpendRecord

	CurrentDonorIDs  map[string]struct{}
	PreviousDonorIDs map[string]struct{}

	DataQuality domain.DataQuality
}

// Synthesize combines the winning rollup with spend and attribution
// into the final KPI bundle.
func Synthesize(in Inputs) *domain.KPIBundle {
	current := buildPeriodKPIs(in.CurrentSummary, in.ChannelRevenue, in.CurrentSpend)
	previous := buildPeriodKPIs(in.PreviousSummary, nil, in.PreviousSpend)

	// The previous period's attribution figures come in as a scalar.
	previous.AttributedRevenue = in.PreviousAttributedRevenue
	previous.AttributionRate = AttributionRate(previous.AttributedRevenue, previous.NetRevenue)
	previous.ROI = ROI(previous.AttributedRevenue, previous.TotalSpend)

	current.NewDonors, current.ReturningDonors = NewVsReturning(in.CurrentDonorIDs, in.PreviousDonorIDs)

	series := buildTimeSeries(in)

	bundle := &domain.KPIBundle{
		OrganizationID: in.OrganizationID,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		Timezone:       in.Timezone,
		Source:         in.Source,
		GeneratedAt:    time.Now().UTC(),

		Current:  current,
		Previous: previous,
		Trends: domain.TrendSet{
			GrossRaised:  Trend(current.GrossRaised, previous.GrossRaised),
			NetRevenue:   Trend(current.NetRevenue, previous.NetRevenue),
			Donations:    Trend(float64(current.DonationCount), float64(previous.DonationCount)),
			UniqueDonors: Trend(float64(current.UniqueDonors), float64(previous.UniqueDonors)),
			ROI:          Trend(current.ROI, previous.ROI),
		},

		TimeSeries: series,
		Sparklines: buildSparklines(series),
		Channels:   buildChannelBreakdown(in.ChannelRevenue, in.CurrentSpend),

		DataQuality: in.DataQuality,
	}

	return bundle
}

// buildPeriodKPIs computes the scalar KPI block for one period.
// A nil summary yields a zero-valued block (missing data degrades to
// zeros, never aborts the bundle).
func buildPeriodKPIs(summary *domain.PeriodSummary, byChannel map[domain.Channel]*attribution.ChannelRevenue, spend []domain.SpendRecord) domain.PeriodKPIs {
	k := domain.PeriodKPIs{}
	if summary != nil {
		k.GrossRaised = summary.GrossRaised
		k.NetRaised = summary.NetRaised
		k.Refunds = summary.Refunds
		k.NetRevenue = summary.NetRevenue
		k.TotalFees = summary.TotalFees
		k.DonationCount = summary.DonationCount
		k.RefundCount = summary.RefundCount
		k.AvgDonation = summary.AvgDonation
		k.UniqueDonors = summary.UniqueDonors
		k.RecurringRevenue = summary.RecurringRevenue
		k.OneTimeRevenue = summary.OneTimeRevenue
	}

	for _, s := range spend {
		k.TotalSpend += s.Amount
		switch s.Channel {
		case domain.ChannelSMS:
			k.MessagingCost += s.Amount
		default:
			k.AdSpend += s.Amount
		}
	}

	if byChannel != nil {
		k.AttributedRevenue = attribution.AttributedRevenue(byChannel)
	}

	k.FeePercentage = FeePercentage(k.TotalFees, k.GrossRaised)
	k.RefundRate = RefundRate(k.Refunds, k.GrossRaised)
	k.AttributionRate = AttributionRate(k.AttributedRevenue, k.NetRevenue)
	k.ROI = ROI(k.AttributedRevenue, k.TotalSpend)
	k.BlendedROI = BlendedROI(k.NetRevenue, k.TotalSpend)

	return k
}

// buildTimeSeries emits one point per calendar day of the requested
// range, inclusive, zero-filling days without activity so chart x-axes
// never skip a day.
func buildTimeSeries(in Inputs) []domain.TimeSeriesPoint {
	days := daybucket.EachDay(in.StartDate, in.EndDate, in.Timezone)
	if days == nil {
		return []domain.TimeSeriesPoint{}
	}

	rowByDay := make(map[string]domain.DailyRollupRow, len(in.CurrentDaily))
	for _, row := range in.CurrentDaily {
		rowByDay[row.Date] = row
	}
	spendByDay := make(map[string]float64)
	for _, s := range in.CurrentSpend {
		spendByDay[s.Date] += s.Amount
	}

	series := make([]domain.TimeSeriesPoint, 0, len(days))
	for _, day := range days {
		point := domain.TimeSeriesPoint{Date: day, Spend: spendByDay[day]}
		if row, ok := rowByDay[day]; ok {
			point.GrossRaised = row.GrossRaised
			point.NetRevenue = row.NetRevenue
			point.Refunds = row.Refunds
			point.Donations = row.DonationCount
		}
		series = append(series, point)
	}
	return series
}

// buildSparklines projects the time series into per-metric value slices
// for compact chart rendering.
func buildSparklines(series []domain.TimeSeriesPoint) map[string][]float64 {
	gross := make([]float64, len(series))
	net := make([]float64, len(series))
	donations := make([]float64, len(series))
	spend := make([]float64, len(series))

	for i, p := range series {
		gross[i] = p.GrossRaised
		net[i] = p.NetRevenue
		donations[i] = float64(p.Donations)
		spend[i] = p.Spend
	}

	return map[string][]float64{
		"gross_raised": gross,
		"net_revenue":  net,
		"donations":    donations,
		"spend":        spend,
	}
}

// buildChannelBreakdown merges attributed revenue with per-channel
// spend into the breakdown list, ordered by revenue descending.
func buildChannelBreakdown(byChannel map[domain.Channel]*attribution.ChannelRevenue, spend []domain.SpendRecord) []domain.ChannelStats {
	spendByChannel := make(map[domain.Channel]float64)
	for _, s := range spend {
		spendByChannel[s.Channel] += s.Amount
	}

	var totalRevenue float64
	for _, rev := range byChannel {
		totalRevenue += rev.Revenue
	}

	sorted := attribution.SortedChannels(byChannel)
	out := make([]domain.ChannelStats, 0, len(sorted))
	for _, rev := range sorted {
		stats := domain.ChannelStats{
			Channel:       rev.Channel,
			Revenue:       rev.Revenue,
			DonationCount: rev.DonationCount,
			Spend:         spendByChannel[rev.Channel],
			ROI:           ROI(rev.Revenue, spendByChannel[rev.Channel]),
		}
		if totalRevenue != 0 {
			stats.RevenueShare = rev.Revenue / totalRevenue * 100
		}
		out = append(out, stats)
	}
	return out
}
