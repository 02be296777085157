package rollup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicpulse/fundraise-monitor/internal/domain"
)

func fptr(f float64) *float64 { return &f }

func donation(id, donor string, gross float64, net *float64, at time.Time) domain.Transaction {
	return domain.Transaction{
		ID:          id,
		DonorID:     donor,
		Type:        domain.TransactionDonation,
		GrossAmount: gross,
		NetAmount:   net,
		OccurredAt:  at,
	}
}

func refund(id string, gross float64, net *float64, at time.Time) domain.Transaction {
	return domain.Transaction{
		ID:          id,
		Type:        domain.TransactionRefund,
		GrossAmount: gross,
		NetAmount:   net,
		OccurredAt:  at,
	}
}

func TestAggregate_ThreeDonationsOneRefundSameDay(t *testing.T) {
	// Three $100 gross / $97 net donations and one $50 refund (net -$48)
	// on the same UTC day.
	day := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	q := Query{OrganizationID: "org-1", StartDate: "2025-05-10", EndDate: "2025-05-10", Timezone: "UTC"}

	donations := []domain.Transaction{
		donation("t1", "d1", 100, fptr(97), day),
		donation("t2", "d2", 100, fptr(97), day.Add(time.Hour)),
		donation("t3", "d3", 100, fptr(97), day.Add(2*time.Hour)),
	}
	refunds := []domain.Transaction{
		refund("r1", 50, fptr(-48), day.Add(3*time.Hour)),
	}

	daily, summary := NewAggregator().AggregateFromTransactions(q, donations, refunds)

	require.Len(t, daily, 1)
	assert.InDelta(t, 300.0, daily[0].GrossRaised, 1e-6)
	assert.InDelta(t, 291.0, daily[0].NetRaised, 1e-6)
	assert.InDelta(t, 48.0, daily[0].Refunds, 1e-6)
	assert.InDelta(t, 243.0, daily[0].NetRevenue, 1e-6)
	assert.InDelta(t, 9.0, daily[0].TotalFees, 1e-6)
	assert.Equal(t, 3, daily[0].DonationCount)
	assert.Equal(t, 1, daily[0].RefundCount)

	assert.InDelta(t, 300.0, summary.GrossRaised, 1e-6)
	assert.InDelta(t, 291.0, summary.NetRaised, 1e-6)
	assert.InDelta(t, 48.0, summary.Refunds, 1e-6)
	assert.InDelta(t, 243.0, summary.NetRevenue, 1e-6)
	assert.InDelta(t, 100.0, summary.AvgDonation, 1e-6)
	assert.Equal(t, 1, summary.DaysWithDonations)
}

func TestAggregate_RefundOnDayWithoutDonations(t *testing.T) {
	q := Query{OrganizationID: "org-1", StartDate: "2025-05-10", EndDate: "2025-05-11", Timezone: "UTC"}

	donations := []domain.Transaction{
		donation("t1", "d1", 100, fptr(97), time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)),
	}
	refunds := []domain.Transaction{
		refund("r1", 25, fptr(-24), time.Date(2025, 5, 11, 9, 0, 0, 0, time.UTC)),
	}

	daily, summary := NewAggregator().AggregateFromTransactions(q, donations, refunds)

	require.Len(t, daily, 2)
	assert.Equal(t, "2025-05-10", daily[0].Date)
	assert.Equal(t, "2025-05-11", daily[1].Date)

	// The refund-only day must still appear with a negative net revenue.
	assert.InDelta(t, 0.0, daily[1].GrossRaised, 1e-6)
	assert.InDelta(t, -24.0, daily[1].NetRevenue, 1e-6)
	assert.Equal(t, 1, daily[1].RefundCount)

	assert.Equal(t, 1, summary.DaysWithDonations) // refund-only day doesn't count
	assert.InDelta(t, 97.0-24.0, summary.NetRevenue, 1e-6)
}

func TestAggregate_TimezoneShiftsDayBoundary(t *testing.T) {
	// 2025-01-15T02:00:00Z is still Jan 14 in New York.
	q := Query{OrganizationID: "org-1", StartDate: "2025-01-14", EndDate: "2025-01-15", Timezone: "America/New_York"}

	donations := []domain.Transaction{
		donation("t1", "d1", 100, nil, time.Date(2025, 1, 15, 2, 0, 0, 0, time.UTC)),
	}

	daily, _ := NewAggregator().AggregateFromTransactions(q, donations, nil)

	require.Len(t, daily, 1)
	assert.Equal(t, "2025-01-14", daily[0].Date)
}

func TestAggregate_NilNetDefaultsToGross(t *testing.T) {
	q := Query{OrganizationID: "org-1", StartDate: "2025-05-10", EndDate: "2025-05-10", Timezone: "UTC"}

	donations := []domain.Transaction{
		donation("t1", "d1", 80, nil, time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)),
	}

	daily, _ := NewAggregator().AggregateFromTransactions(q, donations, nil)

	require.Len(t, daily, 1)
	assert.InDelta(t, 80.0, daily[0].NetRaised, 1e-6)
	assert.InDelta(t, 0.0, daily[0].TotalFees, 1e-6)
}

func TestAggregate_RecurringSplit(t *testing.T) {
	q := Query{OrganizationID: "org-1", StartDate: "2025-05-10", EndDate: "2025-05-10", Timezone: "UTC"}
	at := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

	recurring := donation("t1", "d1", 25, fptr(24), at)
	recurring.Recurring = true
	oneTime := donation("t2", "d2", 100, fptr(97), at)

	daily, summary := NewAggregator().AggregateFromTransactions(q, []domain.Transaction{recurring, oneTime}, nil)

	require.Len(t, daily, 1)
	assert.Equal(t, 1, daily[0].RecurringCount)
	assert.InDelta(t, 24.0, daily[0].RecurringRevenue, 1e-6)
	assert.Equal(t, 1, daily[0].OneTimeCount)
	assert.InDelta(t, 97.0, daily[0].OneTimeRevenue, 1e-6)

	assert.InDelta(t, summary.RecurringRevenue+summary.OneTimeRevenue, summary.NetRaised, 1e-6)
}

func TestAggregate_TrueDistinctDonorCount(t *testing.T) {
	q := Query{OrganizationID: "org-1", StartDate: "2025-05-10", EndDate: "2025-05-11", Timezone: "UTC"}

	// Donor d1 gives on both days; per-day counts sum to 3 but the
	// period-level distinct count must be 2.
	donations := []domain.Transaction{
		donation("t1", "d1", 10, nil, time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)),
		donation("t2", "d1", 10, nil, time.Date(2025, 5, 11, 12, 0, 0, 0, time.UTC)),
		donation("t3", "d2", 10, nil, time.Date(2025, 5, 11, 13, 0, 0, 0, time.UTC)),
	}

	daily, summary := NewAggregator().AggregateFromTransactions(q, donations, nil)

	assert.Equal(t, 1, daily[0].UniqueDonors)
	assert.Equal(t, 2, daily[1].UniqueDonors)
	assert.Equal(t, 2, summary.UniqueDonors)
	assert.False(t, summary.UniqueDonorsApprox)
}

func TestSumDaily_MatchesDailyRows(t *testing.T) {
	q := Query{OrganizationID: "org-1", StartDate: "2025-05-01", EndDate: "2025-05-31", Timezone: "UTC"}

	var donations, refunds []domain.Transaction
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 40; i++ {
		at := base.Add(time.Duration(i*17) * time.Hour)
		donations = append(donations, donation("t", "d", 50, fptr(48.2), at))
		if i%7 == 0 {
			refunds = append(refunds, refund("r", 10, fptr(-9.5), at))
		}
	}

	daily, summary := NewAggregator().AggregateFromTransactions(q, donations, refunds)

	var net, gross, ref float64
	for _, row := range daily {
		gross += row.GrossRaised
		net += row.NetRevenue
		ref += row.Refunds
	}
	assert.InDelta(t, gross, summary.GrossRaised, 1e-6)
	assert.InDelta(t, net, summary.NetRevenue, 1e-6)
	assert.InDelta(t, ref, summary.Refunds, 1e-6)
}

func TestAggregate_SkipsZeroTimestamps(t *testing.T) {
	q := Query{OrganizationID: "org-1", StartDate: "2025-05-10", EndDate: "2025-05-10", Timezone: "UTC"}

	donations := []domain.Transaction{
		donation("t1", "d1", 100, nil, time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)),
		donation("bad", "d2", 999, nil, time.Time{}), // unparseable upstream timestamp
	}

	daily, summary := NewAggregator().AggregateFromTransactions(q, donations, nil)

	require.Len(t, daily, 1)
	assert.InDelta(t, 100.0, summary.GrossRaised, 1e-6)
}
