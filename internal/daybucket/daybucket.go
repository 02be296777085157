// Package daybucket converts absolute timestamps into organization-local
// calendar days and groups dated records into per-day buckets.
//
// Every component that buckets by day must use the same timezone value
// within one reconciliation pass; mixing UTC and local bucketing in the
// same report is the single most common correctness bug this package
// exists to prevent.
package daybucket

import (
	"sync"
	"time"
)

// InvalidDay is the sentinel returned for timestamps that cannot be
// bucketed (zero time, unloadable timezone). Callers skip invalid
// entries rather than aborting the whole aggregation.
const InvalidDay = "invalid"

// DefaultTimezone is the system-wide fallback when an organization has
// no timezone configured.
const DefaultTimezone = "America/New_York"

// DayFormat is the canonical calendar-day key format.
const DayFormat = "2006-01-02"

var (
	locMu    sync.RWMutex
	locCache = map[string]*time.Location{}
)

// loadLocation resolves an IANA timezone name, caching the result so
// repeated bucketing calls don't re-parse tzdata.
func loadLocation(tz string) (*time.Location, bool) {
	if tz == "" {
		tz = DefaultTimezone
	}

	locMu.RLock()
	loc, ok := locCache[tz]
	locMu.RUnlock()
	if ok {
		return loc, loc != nil
	}

	loc, err := time.LoadLocation(tz)
	locMu.Lock()
	if err != nil {
		locCache[tz] = nil
	} else {
		locCache[tz] = loc
	}
	locMu.Unlock()

	return loc, err == nil
}

// DayKey converts an absolute instant to a YYYY-MM-DD string under the
// given IANA timezone. Returns InvalidDay (never panics) when the input
// is a zero time or the timezone cannot be loaded.
func DayKey(t time.Time, tz string) string {
	if t.IsZero() {
		return InvalidDay
	}
	loc, ok := loadLocation(tz)
	if !ok {
		return InvalidDay
	}
	return t.In(loc).Format(DayFormat)
}

// BucketByDay groups records into calendar-day buckets keyed by DayKey.
// Records whose timestamp resolves to InvalidDay are skipped. The result
// is stable: calling twice on the same input yields identically-keyed
// buckets with identical member counts.
func BucketByDay[T any](records []T, timestampOf func(T) time.Time, tz string) map[string][]T {
	buckets := make(map[string][]T)
	for _, rec := range records {
		key := DayKey(timestampOf(rec), tz)
		if key == InvalidDay {
			continue
		}
		buckets[key] = append(buckets[key], rec)
	}
	return buckets
}

// EachDay returns every calendar day from start to end inclusive, in the
// given timezone. Used to build zero-filled time series so chart x-axes
// never skip a day. Returns nil when the range is inverted or a date is
// unparseable.
func EachDay(startDate, endDate, tz string) []string {
	loc, ok := loadLocation(tz)
	if !ok {
		return nil
	}

	start, err := time.ParseInLocation(DayFormat, startDate, loc)
	if err != nil {
		return nil
	}
	end, err := time.ParseInLocation(DayFormat, endDate, loc)
	if err != nil {
		return nil
	}
	if end.Before(start) {
		return nil
	}

	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DayFormat))
	}
	return days
}

// RangeBounds converts an inclusive local date range into the absolute
// instants [start of startDate, start of the day after endDate) in the
// given timezone. Callers use the half-open upper bound with a strict
// less-than so day boundaries match DayKey exactly.
func RangeBounds(startDate, endDate, tz string) (time.Time, time.Time, bool) {
	loc, ok := loadLocation(tz)
	if !ok {
		return time.Time{}, time.Time{}, false
	}

	start, err := time.ParseInLocation(DayFormat, startDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	end, err := time.ParseInLocation(DayFormat, endDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}

	return start, end.AddDate(0, 0, 1), true
}

// PreviousPeriod returns the immediately preceding date range of equal
// length: for a 7-day range it is the 7 days ending the day before
// startDate. Returns empty strings when the input dates are unparseable.
// Date arithmetic happens in UTC so DST transitions can't skew the
// period length.
func PreviousPeriod(startDate, endDate string) (string, string) {
	start, err := time.ParseInLocation(DayFormat, startDate, time.UTC)
	if err != nil {
		return "", ""
	}
	end, err := time.ParseInLocation(DayFormat, endDate, time.UTC)
	if err != nil {
		return "", ""
	}

	days := int(end.Sub(start).Hours()/24) + 1
	prevEnd := start.AddDate(0, 0, -1)
	prevStart := prevEnd.AddDate(0, 0, -(days - 1))
	return prevStart.Format(DayFormat), prevEnd.Format(DayFormat)
}
