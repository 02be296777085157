package warehouse

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/civicpulse/fundraise-monitor/internal/domain"
	"github.com/civicpulse/fundraise-monitor/internal/rollup"
)

// driftTolerance absorbs float accumulation noise; anything beyond a
// cent is real drift.
const driftTolerance = 0.01

// ArchiveReader is the complete-history transaction source.
type ArchiveReader interface {
	ListTransactions(ctx context.Context, orgID, startDate, endDate, tz string) ([]domain.Transaction, error)
}

// FieldDrift is one financial field where the canonical rollup and the
// archive recomputation disagree.
type FieldDrift struct {
	Field      string  `json:"field"`
	Canonical  float64 `json:"canonical"`
	Recomputed float64 `json:"recomputed"`
	Delta      float64 `json:"delta"`
}

// Report is the outcome of one audit recomputation.
type Report struct {
	OrganizationID string `json:"organization_id"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	Timezone       string `json:"timezone"`

	Canonical  *domain.PeriodSummary `json:"canonical"`
	Recomputed *domain.PeriodSummary `json:"recomputed"`

	Drift []FieldDrift `json:"drift"`
	Clean bool         `json:"clean"`
}

// Auditor recomputes a period from the complete archive and compares it
// against the canonical rollup.
type Auditor struct {
	archive    ArchiveReader
	gateway    rollup.Gateway
	aggregator *rollup.Aggregator
}

// NewAuditor builds an auditor over the archive and the canonical gateway.
func NewAuditor(archive ArchiveReader, gateway rollup.Gateway) *Auditor {
	return &Auditor{
		archive:    archive,
		gateway:    gateway,
		aggregator: rollup.NewAggregator(),
	}
}

// Audit recomputes the period from archived transactions and reports
// every field where the canonical rollup disagrees. An empty canonical
// rollup is compared as all zeros.
func (a *Auditor) Audit(ctx context.Context, q rollup.Query) (*Report, error) {
	canonical, err := a.gateway.FetchPeriodSummary(ctx, q)
	if err != nil && !errors.Is(err, rollup.ErrNoRows) {
		return nil, fmt.Errorf("fetch canonical summary: %w", err)
	}

	txns, err := a.archive.ListTransactions(ctx, q.OrganizationID, q.StartDate, q.EndDate, q.Timezone)
	if err != nil {
		return nil, fmt.Errorf("list archived transactions: %w", err)
	}

	var donations, refunds []domain.Transaction
	for _, t := range txns {
		if t.IsRefundLike() {
			refunds = append(refunds, t)
		} else {
			donations = append(donations, t)
		}
	}
	_, recomputed := a.aggregator.AggregateFromTransactions(q, donations, refunds)

	report := &Report{
		OrganizationID: q.OrganizationID,
		StartDate:      q.StartDate,
		EndDate:        q.EndDate,
		Timezone:       q.Timezone,
		Canonical:      canonical,
		Recomputed:     recomputed,
	}

	base := canonical
	if base == nil {
		base = &domain.PeriodSummary{}
	}
	report.Drift = compareSummaries(base, recomputed)
	report.Clean = len(report.Drift) == 0
	return report, nil
}

func compareSummaries(canonical, recomputed *domain.PeriodSummary) []FieldDrift {
	fields := []struct {
		name string
		a, b float64
	}{
		{"gross_raised", canonical.GrossRaised, recomputed.GrossRaised},
		{"net_raised", canonical.NetRaised, recomputed.NetRaised},
		{"refunds", canonical.Refunds, recomputed.Refunds},
		{"net_revenue", canonical.NetRevenue, recomputed.NetRevenue},
		{"total_fees", canonical.TotalFees, recomputed.TotalFees},
		{"donation_count", float64(canonical.DonationCount), float64(recomputed.DonationCount)},
		{"refund_count", float64(canonical.RefundCount), float64(recomputed.RefundCount)},
		{"recurring_revenue", canonical.RecurringRevenue, recomputed.RecurringRevenue},
		{"one_time_revenue", canonical.OneTimeRevenue, recomputed.OneTimeRevenue},
	}

	var drift []FieldDrift
	for _, f := range fields {
		if math.Abs(f.a-f.b) > driftTolerance {
			drift = append(drift, FieldDrift{
				Field:      f.name,
				Canonical:  f.a,
				Recomputed: f.b,
				Delta:      f.b - f.a,
			})
		}
	}
	return drift
}
