package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/civicpulse/fundraise-monitor/internal/domain"
)

// SpendRepo reads per-channel daily spend rows ingested from the ad and
// messaging platforms. Zero rows is a valid "no spend" answer, not an
// error.
type SpendRepo struct{ db *sql.DB }

// NewSpendRepo creates a Postgres-backed spend reader.
func NewSpendRepo(db *sql.DB) *SpendRepo { return &SpendRepo{db: db} }

// FetchSpend reads all spend rows for the organization inside the
// inclusive local date range. The signature matches spend.Source so the
// repo can sit alongside the platform API clients in a MultiSource.
func (r *SpendRepo) FetchSpend(ctx context.Context, orgID, startDate, endDate string) ([]domain.SpendRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT organization_id, channel, date, amount
		FROM spend_daily
		WHERE organization_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date, channel
	`, orgID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("list spend: %w", err)
	}
	defer rows.Close()

	var out []domain.SpendRecord
	for rows.Next() {
		var s domain.SpendRecord
		if err := rows.Scan(&s.OrganizationID, &s.Channel, &s.Date, &s.Amount); err != nil {
			return nil, fmt.Errorf("scan spend: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
