package rollup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToFloat_Coercion(t *testing.T) {
	tests := []struct {
		in   interface{}
		want float64
	}{
		{nil, 0},
		{float64(1.5), 1.5},
		{float32(2), 2},
		{int64(7), 7},
		{int(3), 3},
		{[]byte("19.25"), 19.25},
		{"42", 42},
		{"  42.5 ", 42.5},
		{"not a number", 0},
		{"", 0},
		{true, 0}, // unsupported types coerce to zero, never NaN
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toFloat(tt.in), "input %#v", tt.in)
	}
}

func TestNormalizeDailyRow_CurrentColumnNames(t *testing.T) {
	row := normalizeDailyRow(rawRow{
		"date":           "2025-05-10",
		"gross_raised":   300.0,
		"net_raised":     291.0,
		"refunds":        48.0,
		"net_revenue":    243.0,
		"total_fees":     9.0,
		"donation_count": int64(3),
		"refund_count":   int64(1),
		"unique_donors":  int64(3),
	}, "org-1")

	assert.Equal(t, "2025-05-10", row.Date)
	assert.Equal(t, "org-1", row.OrganizationID)
	assert.InDelta(t, 300.0, row.GrossRaised, 1e-9)
	assert.InDelta(t, 243.0, row.NetRevenue, 1e-9)
	assert.Equal(t, 3, row.DonationCount)
	assert.True(t, row.UniqueDonorsApprox)
}

func TestNormalizeDailyRow_LegacyColumnNames(t *testing.T) {
	// The previous stored-procedure release shipped these names.
	row := normalizeDailyRow(rawRow{
		"day":             []byte("2025-05-10"),
		"total_gross":     []byte("300"),
		"total_net":       []byte("291"),
		"refund_amount":   []byte("48"),
		"donation_total":  int64(3),
		"distinct_donors": int64(3),
	}, "org-1")

	assert.Equal(t, "2025-05-10", row.Date)
	assert.InDelta(t, 300.0, row.GrossRaised, 1e-9)
	assert.InDelta(t, 291.0, row.NetRaised, 1e-9)
	assert.InDelta(t, 48.0, row.Refunds, 1e-9)
	// Derivable fields are recomputed when the source omits them.
	assert.InDelta(t, 243.0, row.NetRevenue, 1e-9)
	assert.InDelta(t, 9.0, row.TotalFees, 1e-9)
}

func TestNormalizeDailyRow_AliasPriorityIsDeterministic(t *testing.T) {
	// A row carrying both the current and a legacy column must always
	// resolve to the current one.
	for i := 0; i < 20; i++ {
		row := normalizeDailyRow(rawRow{
			"gross_raised": 100.0,
			"total_gross":  999.0,
		}, "org-1")
		assert.InDelta(t, 100.0, row.GrossRaised, 1e-9)
	}
}

func TestNormalizeDailyRow_MalformedNumericsCoerceToZero(t *testing.T) {
	row := normalizeDailyRow(rawRow{
		"date":         "2025-05-10",
		"gross_raised": "garbage",
		"refunds":      nil,
	}, "org-1")

	assert.Equal(t, 0.0, row.GrossRaised)
	assert.Equal(t, 0.0, row.Refunds)
	assert.False(t, row.NetRevenue != row.NetRevenue, "NetRevenue must never be NaN")
}

func TestNormalizeDailyRow_TimestampShapedDates(t *testing.T) {
	row := normalizeDailyRow(rawRow{"date": "2025-05-10T00:00:00Z"}, "org-1")
	assert.Equal(t, "2025-05-10", row.Date)

	row = normalizeDailyRow(rawRow{"date": time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)}, "org-1")
	assert.Equal(t, "2025-05-10", row.Date)
}

func TestNormalizePeriodRow(t *testing.T) {
	q := Query{OrganizationID: "org-1", StartDate: "2025-05-01", EndDate: "2025-05-31", Timezone: "UTC"}

	summary := normalizePeriodRow(rawRow{
		"gross_raised":        1000.0,
		"net_raised":          970.0,
		"refunds":             50.0,
		"average_donation":    25.0, // legacy alias
		"days_with_donations": int64(12),
	}, q)

	assert.Equal(t, "2025-05-01", summary.StartDate)
	assert.Equal(t, "2025-05-31", summary.EndDate)
	assert.InDelta(t, 920.0, summary.NetRevenue, 1e-9)
	assert.InDelta(t, 25.0, summary.AvgDonation, 1e-9)
	assert.Equal(t, 12, summary.DaysWithDonations)
	assert.True(t, summary.UniqueDonorsApprox)
}
