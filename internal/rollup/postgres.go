package rollup

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/civicpulse/fundraise-monitor/internal/domain"
)

// PostgresGateway reads pre-aggregated rollups through the stored
// procedures the hosted store exposes. The procedures themselves are a
// black box: this gateway normalizes whatever column shape the current
// release returns and surfaces every failure as a *GatewayError.
type PostgresGateway struct {
	db *sql.DB
}

// NewPostgresGateway creates a gateway over an open database handle.
func NewPostgresGateway(db *sql.DB) *PostgresGateway {
	return &PostgresGateway{db: db}
}

// FetchDailyRollup calls get_daily_rollup(org, start, end, tz).
func (g *PostgresGateway) FetchDailyRollup(ctx context.Context, q Query) ([]domain.DailyRollupRow, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT * FROM get_daily_rollup($1, $2, $3, $4)`,
		q.OrganizationID, q.StartDate, q.EndDate, q.Timezone,
	)
	if err != nil {
		return nil, &GatewayError{Op: "daily_rollup", Err: err}
	}
	defer rows.Close()

	raw, err := scanRawRows(rows)
	if err != nil {
		return nil, &GatewayError{Op: "daily_rollup", Err: err}
	}

	out := make([]domain.DailyRollupRow, 0, len(raw))
	for _, r := range raw {
		out = append(out, normalizeDailyRow(r, q.OrganizationID))
	}
	return out, nil
}

// FetchPeriodSummary calls get_period_summary(org, start, end, tz).
func (g *PostgresGateway) FetchPeriodSummary(ctx context.Context, q Query) (*domain.PeriodSummary, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT * FROM get_period_summary($1, $2, $3, $4)`,
		q.OrganizationID, q.StartDate, q.EndDate, q.Timezone,
	)
	if err != nil {
		return nil, &GatewayError{Op: "period_summary", Err: err}
	}
	defer rows.Close()

	raw, err := scanRawRows(rows)
	if err != nil {
		return nil, &GatewayError{Op: "period_summary", Err: err}
	}
	if len(raw) == 0 {
		return nil, ErrNoRows
	}

	return normalizePeriodRow(raw[0], q), nil
}

// FetchDailyRollupFiltered calls the campaign/creative-scoped variant.
// The stored procedure restricts gross/net figures to attributable
// transactions matching the filter; refunds stay unfiltered.
func (g *PostgresGateway) FetchDailyRollupFiltered(ctx context.Context, q Query, f Filter) ([]domain.DailyRollupRow, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT * FROM get_daily_rollup_filtered($1, $2, $3, $4, $5, $6)`,
		q.OrganizationID, q.StartDate, q.EndDate, q.Timezone,
		nullable(f.CampaignID), nullable(f.CreativeID),
	)
	if err != nil {
		return nil, &GatewayError{Op: "daily_rollup_filtered", Err: err}
	}
	defer rows.Close()

	raw, err := scanRawRows(rows)
	if err != nil {
		return nil, &GatewayError{Op: "daily_rollup_filtered", Err: err}
	}

	out := make([]domain.DailyRollupRow, 0, len(raw))
	for _, r := range raw {
		out = append(out, normalizeDailyRow(r, q.OrganizationID))
	}
	return out, nil
}

// FetchPeriodSummaryFiltered calls the campaign/creative-scoped summary.
func (g *PostgresGateway) FetchPeriodSummaryFiltered(ctx context.Context, q Query, f Filter) (*domain.PeriodSummary, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT * FROM get_period_summary_filtered($1, $2, $3, $4, $5, $6)`,
		q.OrganizationID, q.StartDate, q.EndDate, q.Timezone,
		nullable(f.CampaignID), nullable(f.CreativeID),
	)
	if err != nil {
		return nil, &GatewayError{Op: "period_summary_filtered", Err: err}
	}
	defer rows.Close()

	raw, err := scanRawRows(rows)
	if err != nil {
		return nil, &GatewayError{Op: "period_summary_filtered", Err: err}
	}
	if len(raw) == 0 {
		return nil, ErrNoRows
	}

	return normalizePeriodRow(raw[0], q), nil
}

// scanRawRows scans a result set without assuming a column layout. The
// stored procedures have changed their output columns across releases;
// scanning into a map lets the normalizer resolve aliases afterward.
func scanRawRows(rows *sql.Rows) ([]rawRow, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var out []rawRow
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		r := make(rawRow, len(cols))
		for i, col := range cols {
			r[col] = values[i]
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// nullable converts an empty filter value to SQL NULL so the stored
// procedure treats the dimension as unfiltered.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
