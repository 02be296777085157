// Package warehouse reads the full transaction archive from Snowflake.
// The operational Postgres read is capped; audit recomputation (an
// explicit client-side aggregation run to compare against the canonical
// rollup) goes through the warehouse instead, which holds the complete
// history.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/snowflakedb/gosnowflake" // Snowflake driver

	"github.com/civicpulse/fundraise-monitor/internal/daybucket"
	"github.com/civicpulse/fundraise-monitor/internal/domain"
)

// Config holds Snowflake connection settings.
type Config struct {
	Account   string `yaml:"account"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
	Warehouse string `yaml:"warehouse"`
}

// Client provides read access to the transaction archive.
type Client struct {
	db *sql.DB
}

// NewClient opens a Snowflake connection.
func NewClient(cfg Config) (*Client, error) {
	// DSN format: user:password@account/database/schema?warehouse=xxx
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s",
		cfg.User, cfg.Password, cfg.Account, cfg.Database, cfg.Schema)
	if cfg.Warehouse != "" {
		dsn += "?warehouse=" + cfg.Warehouse
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("open snowflake connection: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Client{db: db}, nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping tests the database connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// ListTransactions reads every archived transaction for the
// organization inside the local date range. No row cap: audit
// recomputation needs the complete set.
func (c *Client) ListTransactions(ctx context.Context, orgID, startDate, endDate, tz string) ([]domain.Transaction, error) {
	from, to, ok := daybucket.RangeBounds(startDate, endDate, tz)
	if !ok {
		return nil, fmt.Errorf("invalid date range %s..%s (%s)", startDate, endDate, tz)
	}

	query := `
		SELECT ID, ORGANIZATION_ID, COALESCE(DONOR_ID,''), TXN_TYPE,
		       GROSS_AMOUNT, NET_AMOUNT, OCCURRED_AT, RECURRING,
		       COALESCE(REFCODE,''), COALESCE(CLICK_ID,''), COALESCE(PLATFORM_CLICK_ID,''),
		       COALESCE(CAMPAIGN_ID,''), COALESCE(CREATIVE_ID,''), COALESCE(AD_ID,''),
		       COALESCE(FORM_ID,''), COALESCE(PLATFORM,'')
		FROM TRANSACTION_ARCHIVE
		WHERE ORGANIZATION_ID = ? AND OCCURRED_AT >= ? AND OCCURRED_AT < ?
		ORDER BY OCCURRED_AT`

	rows, err := c.db.QueryContext(ctx, query, orgID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query transaction archive: %w", err)
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
			return nil, fmt.Errorf("scan archived transaction: %w", err)
		}
		if netAmount.Valid {
			v := netAmount.Float64
			t.NetAmount = &v
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
