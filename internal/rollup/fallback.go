package rollup

import (
	"math"
	"sort"
	"time"

	"github.com/civicpulse/fundraise-monitor/internal/daybucket"
	"github.com/civicpulse/fundraise-monitor/internal/domain"
)

// Aggregator reconstructs the rollup shape directly from raw
// transaction rows. It exists for three cases: the gateway failed, the
// gateway returned zero rows while raw transactions exist, or a caller
// explicitly requested client-side recomputation for audit comparison.
//
// For the same underlying transaction set it must agree with the
// canonical gateway's figures to within floating-point tolerance.
type Aggregator struct{}

// NewAggregator creates a fallback aggregator.
func NewAggregator() *Aggregator { return &Aggregator{} }

// AggregateFromTransactions buckets donations and refunds by
// organization-local day and produces the per-day rollup rows plus the
// period summary.
//
// Donations and refunds are bucketed separately: merging refunds into
// the donation bucket before subtraction would let an active
// campaign/creative filter (applied to donations only) drop refunds,
// understating them. Refund amounts reduce net revenue on the day the
// refund occurred.
func (a *Aggregator) AggregateFromTransactions(q Query, donations, refunds []domain.Transaction) ([]domain.DailyRollupRow, *domain.PeriodSummary) {
	occurredAt := func(t domain.Transaction) time.Time { return t.OccurredAt }

	donationDays := daybucket.BucketByDay(donations, occurredAt, q.Timezone)
	refundDays := daybucket.BucketByDay(refunds, occurredAt, q.Timezone)

	// Union of day keys, sorted for stable output.
	daySet := make(map[string]struct{}, len(donationDays)+len(refundDays))
	for day := range donationDays {
		daySet[day] = struct{}{}
	}
	for day := range refundDays {
		daySet[day] = struct{}{}
	}
	days := make([]string, 0, len(daySet))
	for day := range daySet {
		days = append(days, day)
	}
	sort.Strings(days)

	periodDonors := make(map[string]struct{})
	daily := make([]domain.DailyRollupRow, 0, len(days))

	for _, day := range days {
		row := domain.DailyRollupRow{
			Date:           day,
			OrganizationID: q.OrganizationID,
		}

		dayDonors := make(map[string]struct{})
		for _, txn := range donationDays[day] {
			row.GrossRaised += txn.GrossAmount
			row.NetRaised += txn.Net()
			row.TotalFees += txn.Fee()
			row.DonationCount++

			if txn.Recurring {
				row.RecurringCount++
				row.RecurringRevenue += txn.Net()
			} else {
				row.OneTimeCount++
				row.OneTimeRevenue += txn.Net()
			}

			if txn.DonorID != "" {
				dayDonors[txn.DonorID] = struct{}{}
				periodDonors[txn.DonorID] = struct{}{}
			}
		}

		for _, txn := range refundDays[day] {
			// Processor feeds report refunds as negative or positive
			// amounts depending on vintage; the magnitude is the refund.
			row.Refunds += math.Abs(txn.Net())
			row.RefundCount++
		}

		row.NetRevenue = row.NetRaised - row.Refunds
		row.UniqueDonors = len(dayDonors)

		daily = append(daily, row)
	}

	summary := SumDaily(q, daily)
	// Raw rows give a true distinct count across the whole period,
	// unlike summing per-day counts (which double-counts repeat donors).
	summary.UniqueDonors = len(periodDonors)
	summary.UniqueDonorsApprox = false

	return daily, summary
}

// SumDaily aggregates daily rollup rows into a period summary. The
// summary must equal the sum of its rows; this is the testable
// round-trip invariant the canonical gateway is held to as well.
//
// UniqueDonors is the sum of per-day counts and therefore approximate
// (a donor giving on two days counts twice); callers with raw rows
// overwrite it with a true distinct count.
func SumDaily(q Query, daily []domain.DailyRollupRow) *domain.PeriodSummary {
	summary := &domain.PeriodSummary{
		OrganizationID:     q.OrganizationID,
		StartDate:          q.StartDate,
		EndDate:            q.EndDate,
		UniqueDonorsApprox: true,
	}

	for _, row := range daily {
		summary.GrossRaised += row.GrossRaised
		summary.NetRaised += row.NetRaised
		summary.Refunds += row.Refunds
		summary.NetRevenue += row.NetRevenue
		summary.TotalFees += row.TotalFees

		summary.DonationCount += row.DonationCount
		summary.RefundCount += row.RefundCount

		summary.RecurringCount += row.RecurringCount
		summary.RecurringRevenue += row.RecurringRevenue
		summary.OneTimeCount += row.OneTimeCount
		summary.OneTimeRevenue += row.OneTimeRevenue

		summary.UniqueDonors += row.UniqueDonors

		if row.DonationCount > 0 {
			summary.DaysWithDonations++
		}
	}

	if summary.DonationCount > 0 {
		summary.AvgDonation = summary.GrossRaised / float64(summary.DonationCount)
	}

	return summary
}
