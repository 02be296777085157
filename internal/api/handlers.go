package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/civicpulse/fundraise-monitor/internal/daybucket"
	"github.com/civicpulse/fundraise-monitor/internal/domain"
	"github.com/civicpulse/fundraise-monitor/internal/reconcile"
	"github.com/civicpulse/fundraise-monitor/internal/rollup"
	"github.com/civicpulse/fundraise-monitor/internal/warehouse"
)

// Reconciler runs one reconciliation pass per dashboard query.
type Reconciler interface {
	Reconcile(ctx context.Context, req reconcile.Request) (*domain.KPIBundle, error)
}

// SnapshotReader serves archived bundles.
type SnapshotReader interface {
	LoadLatest(ctx context.Context, orgID string) (*domain.KPIBundle, error)
}

// Auditor recomputes a period from the warehouse archive and compares
// it against the canonical rollup.
type Auditor interface {
	Audit(ctx context.Context, q rollup.Query) (*warehouse.Report, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	reconciler  Reconciler
	snapshots   SnapshotReader // optional
	auditor     Auditor        // optional
	timezoneFor func(orgID string) string
	startTime   time.Time
}

// NewHandlers creates a new Handlers instance
func NewHandlers(reconciler Reconciler, timezoneFor func(orgID string) string) *Handlers {
	if timezoneFor == nil {
		timezoneFor = func(string) string { return daybucket.DefaultTimezone }
	}
	return &Handlers{
		reconciler:  reconciler,
		timezoneFor: timezoneFor,
		startTime:   time.Now(),
	}
}

// SetSnapshotReader sets the archived bundle reader
func (h *Handlers) SetSnapshotReader(snapshots SnapshotReader) {
	h.snapshots = snapshots
}

// SetAuditor sets the warehouse audit recomputation service
func (h *Handlers) SetAuditor(auditor Auditor) {
	h.auditor = auditor
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// DateRange represents a date range for filtering data
type DateRange struct {
	StartDate string // YYYY-MM-DD, organization-local
	EndDate   string
	Type      string // "mtd", "last30", "lastMonth"
}

// parseDateRange extracts a local date range from query parameters.
// If no params are provided, defaults to Month to Date (MTD) in the
// organization's reporting timezone.
func parseDateRange(r *http.Request, tz string) DateRange {
	rangeType := r.URL.Query().Get("range_type")
	startDateStr := r.URL.Query().Get("start_date")
	endDateStr := r.URL.Query().Get("end_date")

	// If explicit dates provided, use them verbatim
	if startDateStr != "" && endDateStr != "" {
		return DateRange{
			StartDate: startDateStr,
			EndDate:   endDateStr,
			Type:      rangeType,
		}
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	now := time.Now().In(loc)

	// Calculate based on range type (default to MTD)
	switch rangeType {
	case "last30":
		// Last 30 days rolling window
		return DateRange{
			StartDate: now.AddDate(0, 0, -29).Format(daybucket.DayFormat),
			EndDate:   now.Format(daybucket.DayFormat),
			Type:      "last30",
		}
	case "lastMonth":
		// Previous complete month
		firstOfThisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		lastDayOfPrevMonth := firstOfThisMonth.AddDate(0, 0, -1)
		firstOfPrevMonth := time.Date(lastDayOfPrevMonth.Year(), lastDayOfPrevMonth.Month(), 1, 0, 0, 0, 0, loc)
		return DateRange{
			StartDate: firstOfPrevMonth.Format(daybucket.DayFormat),
			EndDate:   lastDayOfPrevMonth.Format(daybucket.DayFormat),
			Type:      "lastMonth",
		}
	default:
		// Month to Date (default)
		firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		return DateRange{
			StartDate: firstOfMonth.Format(daybucket.DayFormat),
			EndDate:   now.Format(daybucket.DayFormat),
			Type:      "mtd",
		}
	}
}

// requestFrom translates one HTTP query into a reconciliation request.
func (h *Handlers) requestFrom(r *http.Request) (reconcile.Request, bool) {
	orgID := chi.URLParam(r, "orgID")
	if orgID == "" {
		return reconcile.Request{}, false
	}

	tz := r.URL.Query().Get("timezone")
	if tz == "" {
		tz = h.timezoneFor(orgID)
	}
	dateRange := parseDateRange(r, tz)

	return reconcile.Request{
		OrganizationID: orgID,
		StartDate:      dateRange.StartDate,
		EndDate:        dateRange.EndDate,
		Timezone:       tz,
		Filter: rollup.Filter{
			CampaignID: r.URL.Query().Get("campaign_id"),
			CreativeID: r.URL.Query().Get("creative_id"),
		},
		ForceFallback: r.URL.Query().Get("force_fallback") == "true",
	}, true
}

// reconcileOrFail runs a pass and writes the error response on failure.
func (h *Handlers) reconcileOrFail(w http.ResponseWriter, r *http.Request) *domain.KPIBundle {
	req, ok := h.requestFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "organization id is required")
		return nil
	}

	bundle, err := h.reconciler.Reconcile(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, reconcile.ErrSuperseded):
			respondError(w, http.StatusConflict, "superseded by a newer request")
		case errors.Is(err, reconcile.ErrAllSourcesFailed):
			respondError(w, http.StatusBadGateway, "no data source is currently available")
		default:
			respondError(w, http.StatusInternalServerError, "reconciliation failed")
		}
		return nil
	}
	return bundle
}

// GetKPIs returns the complete KPI bundle for an organization and range.
func (h *Handlers) GetKPIs(w http.ResponseWriter, r *http.Request) {
	if bundle := h.reconcileOrFail(w, r); bundle != nil {
		respondJSON(w, http.StatusOK, bundle)
	}
}

// GetDailyRollup returns just the zero-filled daily time series.
func (h *Handlers) GetDailyRollup(w http.ResponseWriter, r *http.Request) {
	bundle := h.reconcileOrFail(w, r)
	if bundle == nil {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"organization_id": bundle.OrganizationID,
		"start_date":      bundle.StartDate,
		"end_date":        bundle.EndDate,
		"timezone":        bundle.Timezone,
		"source":          bundle.Source,
		"time_series":     bundle.TimeSeries,
		"sparklines":      bundle.Sparklines,
		"data_quality":    bundle.DataQuality,
	})
}

// GetChannels returns the per-channel attribution breakdown.
func (h *Handlers) GetChannels(w http.ResponseWriter, r *http.Request) {
	bundle := h.reconcileOrFail(w, r)
	if bundle == nil {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"organization_id":    bundle.OrganizationID,
		"start_date":         bundle.StartDate,
		"end_date":           bundle.EndDate,
		"channels":           bundle.Channels,
		"attributed_revenue": bundle.Current.AttributedRevenue,
		"attribution_rate":   bundle.Current.AttributionRate,
		"data_quality":       bundle.DataQuality,
	})
}

// GetLatestSnapshot serves the most recently archived bundle.
func (h *Handlers) GetLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		respondError(w, http.StatusNotFound, "snapshot archive is not configured")
		return
	}
	orgID := chi.URLParam(r, "orgID")
	bundle, err := h.snapshots.LoadLatest(r.Context(), orgID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}
	if bundle == nil {
		respondError(w, http.StatusNotFound, "no snapshot for organization")
		return
	}
	respondJSON(w, http.StatusOK, bundle)
}

// GetAudit recomputes the period from the warehouse archive and
// reports drift against the canonical rollup.
func (h *Handlers) GetAudit(w http.ResponseWriter, r *http.Request) {
	if h.auditor == nil {
		respondError(w, http.StatusNotFound, "warehouse audit is not configured")
		return
	}
	req, ok := h.requestFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "organization id is required")
		return
	}
	report, err := h.auditor.Audit(r.Context(), rollup.Query{
		OrganizationID: req.OrganizationID,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		Timezone:       req.Timezone,
	})
	if err != nil {
		respondError(w, http.StatusBadGateway, "audit recomputation failed")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// HealthCheck returns the health status of the API
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now(),
		"uptime":    time.Since(h.startTime).String(),
	})
}
