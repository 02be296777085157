// Package rollup provides the pre-aggregated financial rollup gateways
// and the client-side fallback aggregator. The canonical gateway is the
// preferred source of truth; the fallback reconstructs the same shape
// from raw transaction rows when the gateway is unavailable or empty.
package rollup

import (
	"context"
	"errors"
	"fmt"

	"github.com/civicpulse/fundraise-monitor/internal/domain"
)

// ErrNoRows indicates the rollup source answered successfully but had
// no pre-aggregated rows for the requested range.
var ErrNoRows = errors.New("rollup: no rows for range")

// GatewayError wraps a transport or query failure from the external
// rollup source. It is surfaced to the orchestrator, never swallowed;
// only the orchestrator decides whether to fall back.
type GatewayError struct {
	Op  string // "daily_rollup", "period_summary", ...
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("rollup gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Query identifies one rollup request: organization, inclusive date
// range (YYYY-MM-DD, organization-local) and the timezone the source
// must use for day boundaries.
type Query struct {
	OrganizationID string
	StartDate      string
	EndDate        string
	Timezone       string
}

// Filter narrows a rollup to attributable transactions matching a
// campaign and/or creative. Refund figures are never filtered.
type Filter struct {
	CampaignID string
	CreativeID string
}

// Active reports whether any filter dimension is set.
func (f Filter) Active() bool { return f.CampaignID != "" || f.CreativeID != "" }

// Gateway is the canonical pre-aggregated rollup source. It has no
// campaign/creative dimension; use FilteredGateway when a filter is
// active.
type Gateway interface {
	FetchDailyRollup(ctx context.Context, q Query) ([]domain.DailyRollupRow, error)
	FetchPeriodSummary(ctx context.Context, q Query) (*domain.PeriodSummary, error)
}

// FilteredGateway is the campaign/creative-scoped rollup source.
// Gross/net figures are restricted to attributable transactions matching
// the filter while refund figures remain unfiltered.
type FilteredGateway interface {
	FetchDailyRollupFiltered(ctx context.Context, q Query, f Filter) ([]domain.DailyRollupRow, error)
	FetchPeriodSummaryFiltered(ctx context.Context, q Query, f Filter) (*domain.PeriodSummary, error)
}
