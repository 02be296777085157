package kpi

import (
	"github.com/civicpulse/fundraise-monitor/internal/domain"
)

// ApplyLifetimeClassification layers the optional lifetime-based
// new-donor count on top of the baseline period-relative split.
// firstSeen maps donor id to the YYYY-MM-DD day of their first-ever
// donation; donors missing from the map are skipped rather than guessed.
func ApplyLifetimeClassification(bundle *domain.KPIBundle, donors map[string]struct{}, firstSeen map[string]string) {
	if bundle == nil || len(firstSeen) == 0 {
		return
	}

	count := 0
	for id := range donors {
		first, ok := firstSeen[id]
		if !ok {
			continue
		}
		if first >= bundle.StartDate && first <= bundle.EndDate {
			count++
		}
	}
	bundle.Current.LifetimeNewDonors = &count
}
