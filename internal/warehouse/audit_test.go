package warehouse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicpulse/fundraise-monitor/internal/domain"
	"github.com/civicpulse/fundraise-monitor/internal/rollup"
)

type fakeArchive struct {
	txns []domain.Transaction
	err  error
}

func (f *fakeArchive) ListTransactions(_ context.Context, _, _, _, _ string) ([]domain.Transaction, error) {
	return f.txns, f.err
}

type fakeRollup struct {
	summary *domain.PeriodSummary
	err     error
}

func (f *fakeRollup) FetchDailyRollup(_ context.Context, _ rollup.Query) ([]domain.DailyRollupRow, error) {
	return nil, nil
}

func (f *fakeRollup) FetchPeriodSummary(_ context.Context, _ rollup.Query) (*domain.PeriodSummary, error) {
	return f.summary, f.err
}

func auditQuery() rollup.Query {
	return rollup.Query{
		OrganizationID: "org-1",
		StartDate:      "2025-05-10",
		EndDate:        "2025-05-10",
		Timezone:       "UTC",
	}
}

func archiveTxn(id string, gross, net float64, refund bool) domain.Transaction {
	n := net
	t := domain.Transaction{
		ID:             id,
		OrganizationID: "org-1",
		DonorID:        "d-" + id,
		Type:           domain.TransactionDonation,
		GrossAmount:    gross,
		NetAmount:      &n,
		OccurredAt:     time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC),
	}
	if refund {
		t.Type = domain.TransactionRefund
	}
	return t
}

func TestAudit_Clean(t *testing.T) {
	archive := &fakeArchive{txns: []domain.Transaction{
		archiveTxn("1", 100, 97, false),
		archiveTxn("2", 50, 48.5, false),
		archiveTxn("3", -20, -20, true),
	}}
	canonical := &fakeRollup{summary: &domain.PeriodSummary{
		GrossRaised:   150,
		NetRaised:     145.5,
		Refunds:       20,
		NetRevenue:    125.5,
		TotalFees:     4.5,
		DonationCount: 2,
		RefundCount:   1,

		OneTimeRevenue: 145.5,
	}}

	report, err := NewAuditor(archive, canonical).Audit(context.Background(), auditQuery())
	require.NoError(t, err)
	assert.True(t, report.Clean)
	assert.Empty(t, report.Drift)
}

func TestAudit_DetectsDrift(t *testing.T) {
	archive := &fakeArchive{txns: []domain.Transaction{
		archiveTxn("1", 100, 97, false),
		archiveTxn("2", 50, 48.5, false),
	}}
	// Canonical rollup missed the second donation.
	canonical := &fakeRollup{summary: &domain.PeriodSummary{
		GrossRaised:   100,
		NetRaised:     97,
		NetRevenue:    97,
		TotalFees:     3,
		DonationCount: 1,

		OneTimeRevenue: 97,
	}}

	report, err := NewAuditor(archive, canonical).Audit(context.Background(), auditQuery())
	require.NoError(t, err)
	assert.False(t, report.Clean)

	byField := make(map[string]FieldDrift)
	for _, d := range report.Drift {
		byField[d.Field] = d
	}
	require.Contains(t, byField, "gross_raised")
	assert.InDelta(t, 50, byField["gross_raised"].Delta, 1e-9)
	require.Contains(t, byField, "donation_count")
	assert.InDelta(t, 1, byField["donation_count"].Delta, 1e-9)
}

func TestAudit_EmptyCanonicalComparesAsZeros(t *testing.T) {
	archive := &fakeArchive{txns: []domain.Transaction{archiveTxn("1", 100, 97, false)}}
	canonical := &fakeRollup{err: rollup.ErrNoRows}

	report, err := NewAuditor(archive, canonical).Audit(context.Background(), auditQuery())
	require.NoError(t, err)
	assert.Nil(t, report.Canonical)
	assert.False(t, report.Clean)
}

func TestAudit_ArchiveFailure(t *testing.T) {
	canonical := &fakeRollup{summary: &domain.PeriodSummary{}}
	_, err := NewAuditor(&fakeArchive{err: errors.New("warehouse suspended")}, canonical).
		Audit(context.Background(), auditQuery())
	assert.Error(t, err)
}
