package rollup

import (
	"strconv"
	"strings"
	"time"

	"github.com/civicpulse/fundraise-monitor/internal/domain"
)

// The rollup source's column names drift release to release (the stored
// procedures have shipped at least three namings for the same figure).
// Everything is normalized here, once, at the gateway boundary; every
// downstream component assumes fully-typed, non-null numeric fields.

// fieldAliases lists, per canonical field, every column name the rollup
// source has ever used for it, in lookup priority order. The current
// naming comes first so a row carrying both old and new columns resolves
// deterministically.
var fieldAliases = map[string][]string{
	"date":                {"date", "day", "rollup_date", "local_date"},
	"org_id":              {"org_id", "organization_id"},
	"gross_raised":        {"gross_raised", "total_gross", "gross", "gross_amount"},
	"net_raised":          {"net_raised", "total_net", "net", "net_amount"},
	"refunds":             {"refunds", "refund_amount", "refund_total"},
	"net_revenue":         {"net_revenue", "revenue_net"},
	"total_fees":          {"total_fees", "fees", "fee_amount"},
	"donation_count":      {"donation_count", "donations", "donation_total"},
	"refund_count":        {"refund_count"},
	"recurring_count":     {"recurring_count"},
	"recurring_revenue":   {"recurring_revenue", "recurring_amount"},
	"one_time_count":      {"one_time_count", "onetime_count"},
	"one_time_revenue":    {"one_time_revenue", "one_time_amount", "onetime_revenue"},
	"unique_donors":       {"unique_donors", "distinct_donors", "donor_count"},
	"avg_donation":        {"avg_donation", "average_donation"},
	"days_with_donations": {"days_with_donations", "active_days"},
}

// toFloat coerces any value the sql driver can hand back into a float64.
// Missing, NULL, or non-numeric values coerce to 0; a NaN or error
// propagated here would silently poison every derived ratio downstream.
func toFloat(v interface{}) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case float64:
		return x
	case float32:
		return float64(x)
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case []byte:
		return parseFloat(string(x))
	case string:
		return parseFloat(x)
	default:
		return 0
	}
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func toInt(v interface{}) int {
	return int(toFloat(v))
}

func toString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format("2006-01-02")
	default:
		return ""
	}
}

// rawRow is one loosely-typed row as scanned from the rollup source.
type rawRow map[string]interface{}

// canonical returns the value for a canonical field, resolving whatever
// alias the source used this release.
func (r rawRow) canonical(field string) interface{} {
	for _, col := range fieldAliases[field] {
		if v, ok := r[col]; ok && v != nil {
			return v
		}
	}
	return nil
}

// normalizeDailyRow converts a loosely-typed source row into the strict
// DailyRollupRow shape. Derivable fields are recomputed when absent:
// net_revenue = net_raised - refunds, fees = gross - net.
func normalizeDailyRow(r rawRow, orgID string) domain.DailyRollupRow {
	row := domain.DailyRollupRow{
		Date:           normalizeDate(toString(r.canonical("date"))),
		OrganizationID: orgID,

		GrossRaised: toFloat(r.canonical("gross_raised")),
		NetRaised:   toFloat(r.canonical("net_raised")),
		Refunds:     toFloat(r.canonical("refunds")),
		NetRevenue:  toFloat(r.canonical("net_revenue")),
		TotalFees:   toFloat(r.canonical("total_fees")),

		DonationCount: toInt(r.canonical("donation_count")),
		RefundCount:   toInt(r.canonical("refund_count")),

		RecurringCount:   toInt(r.canonical("recurring_count")),
		RecurringRevenue: toFloat(r.canonical("recurring_revenue")),
		OneTimeCount:     toInt(r.canonical("one_time_count")),
		OneTimeRevenue:   toFloat(r.canonical("one_time_revenue")),

		UniqueDonors: toInt(r.canonical("unique_donors")),
		// Pre-aggregated donor counts are approximate: the source can't
		// deduplicate a donor across days without raw rows.
		UniqueDonorsApprox: true,
	}

	if row.NetRaised == 0 && row.GrossRaised != 0 {
		row.NetRaised = row.GrossRaised - row.TotalFees
	}
	if row.NetRevenue == 0 && (row.NetRaised != 0 || row.Refunds != 0) {
		row.NetRevenue = row.NetRaised - row.Refunds
	}
	if row.TotalFees == 0 && row.GrossRaised != row.NetRaised {
		row.TotalFees = row.GrossRaised - row.NetRaised
	}

	return row
}

// normalizePeriodRow converts a loosely-typed summary row into the
// strict PeriodSummary shape.
func normalizePeriodRow(r rawRow, q Query) *domain.PeriodSummary {
	daily := normalizeDailyRow(r, q.OrganizationID)

	return &domain.PeriodSummary{
		OrganizationID: q.OrganizationID,
		StartDate:      q.StartDate,
		EndDate:        q.EndDate,

		GrossRaised: daily.GrossRaised,
		NetRaised:   daily.NetRaised,
		Refunds:     daily.Refunds,
		NetRevenue:  daily.NetRevenue,
		TotalFees:   daily.TotalFees,

		DonationCount: daily.DonationCount,
		RefundCount:   daily.RefundCount,

		RecurringCount:   daily.RecurringCount,
		RecurringRevenue: daily.RecurringRevenue,
		OneTimeCount:     daily.OneTimeCount,
		OneTimeRevenue:   daily.OneTimeRevenue,

		UniqueDonors:       daily.UniqueDonors,
		UniqueDonorsApprox: true,

		AvgDonation:       toFloat(r.canonical("avg_donation")),
		DaysWithDonations: toInt(r.canonical("days_with_donations")),
	}
}

// normalizeDate trims a timestamp-shaped date ("2025-01-15T00:00:00Z"
// or "2025-01-15 00:00:00") down to the YYYY-MM-DD day key.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 10 {
		return s[:10]
	}
	return s
}
