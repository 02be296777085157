// Package spend fetches per-channel advertising and messaging spend.
// Sources degrade independently: zero rows is a valid "no spend"
// answer, and a failed source never blocks revenue KPIs that don't
// depend on it.
package spend

import (
	"context"

	"github.com/civicpulse/fundraise-monitor/internal/domain"
)

// Source is one per-channel spend provider scoped by organization and
// inclusive local date range.
type Source interface {
	FetchSpend(ctx context.Context, orgID, startDate, endDate string) ([]domain.SpendRecord, error)
}

// MultiSource fans a fetch out over several providers and concatenates
// their records. Provider errors are collected but do not abort the
// others; the caller receives whatever spend data was reachable plus
// the first error for logging.
type MultiSource struct {
	sources []Source
}

// NewMultiSource combines providers into one Source.
func NewMultiSource(sources ...Source) *MultiSource {
	return &MultiSource{sources: sources}
}

func (m *MultiSource) FetchSpend(ctx context.Context, orgID, startDate, endDate string) ([]domain.SpendRecord, error) {
	var out []domain.SpendRecord
	var firstErr error

	for _, src := range m.sources {
		records, err := src.FetchSpend(ctx, orgID, startDate, endDate)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, records...)
	}
	return out, firstErr
}
