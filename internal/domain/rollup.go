package domain

// DailyRollupRow is one calendar day (in organization-local time) of
// financial totals for one organization. Rows are never mutated in place;
// a changed day is represented by a fresh row for the same key.
type DailyRollupRow struct {
	Date           string `json:"date" db:"date"` // YYYY-MM-DD, organization-local
	OrganizationID string `json:"organization_id" db:"organization_id"`

	GrossRaised float64 `json:"gross_raised" db:"gross_raised"`
	NetRaised   float64 `json:"net_raised" db:"net_raised"` // gross minus fees, before refunds
	Refunds     float64 `json:"refunds" db:"refunds"`
	NetRevenue  float64 `json:"net_revenue" db:"net_revenue"` // net_raised - refunds
	TotalFees   float64 `json:"total_fees" db:"total_fees"`

	DonationCount int `json:"donation_count" db:"donation_count"`
	RefundCount   int `json:"refund_count" db:"refund_count"`

	RecurringCount   int     `json:"recurring_count" db:"recurring_count"`
	RecurringRevenue float64 `json:"recurring_revenue" db:"recurring_revenue"`
	OneTimeCount     int     `json:"one_time_count" db:"one_time_count"`
	OneTimeRevenue   float64 `json:"one_time_revenue" db:"one_time_revenue"`

	UniqueDonors int `json:"unique_donors" db:"unique_donors"`
	// UniqueDonorsApprox is true when the count came from a pre-aggregated
	// source without raw rows and may not be a true distinct count.
	UniqueDonorsApprox bool `json:"unique_donors_approx,omitempty"`
}

// PeriodSummary is the DailyRollupRow shape aggregated across a full date
// range. It must equal the sum of the daily rows spanning the same range.
type PeriodSummary struct {
	OrganizationID string `json:"organization_id"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`

	GrossRaised float64 `json:"gross_raised"`
	NetRaised   float64 `json:"net_raised"`
	Refunds     float64 `json:"refunds"`
	NetRevenue  float64 `json:"net_revenue"`
	TotalFees   float64 `json:"total_fees"`

	DonationCount int `json:"donation_count"`
	RefundCount   int `json:"refund_count"`

	RecurringCount   int     `json:"recurring_count"`
	RecurringRevenue float64 `json:"recurring_revenue"`
	OneTimeCount     int     `json:"one_time_count"`
	OneTimeRevenue   float64 `json:"one_time_revenue"`

	UniqueDonors       int  `json:"unique_donors"`
	UniqueDonorsApprox bool `json:"unique_donors_approx,omitempty"`

	AvgDonation       float64 `json:"avg_donation"`
	DaysWithDonations int     `json:"days_with_donations"`
}
