// Package postgres implements the raw data-source reads against
// PostgreSQL: transaction-level rows, daily spend, and donor history.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/civicpulse/fundraise-monitor/internal/daybucket"
	"github.com/civicpulse/fundraise-monitor/internal/domain"
)

// DefaultMaxRows caps one raw transaction read. A result at the cap is
// possibly incomplete; callers must surface that and prefer the rollup
// source for totals whenever it is available.
const DefaultMaxRows = 10000

// TransactionRepo reads raw transaction records.
type TransactionRepo struct {
	db      *sql.DB
	maxRows int
}

// NewTransactionRepo creates a Postgres-backed transaction reader.
// maxRows <= 0 applies DefaultMaxRows.
func NewTransactionRepo(db *sql.DB, maxRows int) *TransactionRepo {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &TransactionRepo{db: db, maxRows: maxRows}
}

// ListByDateRange reads every transaction for the organization whose
// occurrence instant falls inside the local date range, up to the cap.
// The second return is true when the read hit the cap: totals computed
// from a capped result may understate the true figures, and callers
// must prefer the rollup source whenever it is available.
func (r *TransactionRepo) ListByDateRange(ctx context.Context, orgID, startDate, endDate, tz string) ([]domain.Transaction, bool, error) {
	from, to, ok := daybucket.RangeBounds(startDate, endDate, tz)
	if !ok {
		return nil, false, fmt.Errorf("invalid date range %s..%s (%s)", startDate, endDate, tz)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, organization_id, COALESCE(donor_id,''), type,
		       gross_amount, net_amount, occurred_at, recurring,
		       COALESCE(refcode,''), COALESCE(click_id,''), COALESCE(platform_click_id,''),
		       COALESCE(campaign_id,''), COALESCE(creative_id,''), COALESCE(ad_id,''),
		       COALESCE(form_id,''), COALESCE(platform,'')
		FROM transactions
		WHERE organization_id = $1 AND occurred_at >= $2 AND occurred_at < $3
		ORDER BY occurred_at
		LIMIT $4
	`, orgID, from, to, r.maxRows+1)
	if err != nil {
		return nil, false, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var netAmount sql.NullFloat64
		if err := rows.Scan(
			&t.ID, &t.OrganizationID, &t.DonorID, &t.Type,
			&t.GrossAmount, &netAmount, &t.OccurredAt, &t.Recurring,
			&t.Signals.RefCode, &t.Signals.ClickID, &t.Signals.PlatformClickID,
			&t.Signals.CampaignID, &t.Signals.CreativeID, &t.Signals.AdID,
			&t.Signals.FormID, &t.Signals.Platform,
		); err != nil {
			return nil, false, fmt.Errorf("scan transaction: %w", err)
		}
		if netAmount.Valid {
			v := netAmount.Float64
			t.NetAmount = &v
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate transactions: %w", err)
	}

	if len(out) > r.maxRows {
		// Fetched one past the cap to detect truncation.
		return out[:r.maxRows], true, nil
	}
	return out, false, nil
}

// DonorRepo reads donor giving history for the optional lifetime-based
// new/returning enrichment.
type DonorRepo struct{ db *sql.DB }

// NewDonorRepo creates a Postgres-backed donor history reader.
func NewDonorRepo(db *sql.DB) *DonorRepo { return &DonorRepo{db: db} }

// FirstDonationDays returns each donor's first-ever donation day
// (YYYY-MM-DD, organization-local) for the given donor ids. Donors with
// no donation history are absent from the result.
func (r *DonorRepo) FirstDonationDays(ctx context.Context, orgID string, donorIDs []string, tz string) (map[string]string, error) {
	if len(donorIDs) == 0 {
		return map[string]string{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT donor_id, MIN(occurred_at)
		FROM transactions
		WHERE organization_id = $1 AND type = 'donation' AND donor_id = ANY($2)
		GROUP BY donor_id
	`, orgID, pq.Array(donorIDs))
	if err != nil {
		return nil, fmt.Errorf("first donation days: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string, len(donorIDs))
	for rows.Next() {
		var donorID string
		var first sql.NullTime
		if err := rows.Scan(&donorID, &first); err != nil {
			return nil, fmt.Errorf("scan donor history: %w", err)
		}
		if !first.Valid {
			continue
		}
		day := daybucket.DayKey(first.Time, tz)
		if day == daybucket.InvalidDay {
			continue
		}
		out[donorID] = day
	}
	return out, rows.Err()
}
