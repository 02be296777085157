// Package reconcile runs one reconciliation pass per dashboard query:
// it races the pre-aggregated rollup gateways against the raw
// transaction feed, picks the trustworthy source, and hands the winner
// to KPI synthesis. Fallback is decided per request and never sticks.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/civicpulse/fundraise-monitor/internal/attribution"
	"github.com/civicpulse/fundraise-monitor/internal/daybucket"
	"github.com/civicpulse/fundraise-monitor/internal/domain"
	"github.com/civicpulse/fundraise-monitor/internal/kpi"
	"github.com/civicpulse/fundraise-monitor/internal/pkg/distlock"
	"github.com/civicpulse/fundraise-monitor/internal/pkg/logger"
	"github.com/civicpulse/fundraise-monitor/internal/rollup"
	"github.com/civicpulse/fundraise-monitor/internal/spend"
)

var (
	// ErrSuperseded means a newer request for the same organization
	// arrived while this one was in flight; the caller should drop the
	// result instead of rendering stale data.
	ErrSuperseded = errors.New("reconcile: superseded by newer request")

	// ErrAllSourcesFailed means neither the rollup gateway nor the raw
	// transaction feed produced data.
	ErrAllSourcesFailed = errors.New("reconcile: all data sources failed")
)

// RollupSource is the combined canonical and filtered rollup surface.
type RollupSource interface {
	rollup.Gateway
	rollup.FilteredGateway
}

// TransactionSource reads raw transactions for a local date range. The
// bool return is true when the result was capped and may be incomplete.
type TransactionSource interface {
	ListByDateRange(ctx context.Context, orgID, startDate, endDate, tz string) ([]domain.Transaction, bool, error)
}

// DonorHistory resolves each donor's first-ever donation day for the
// optional lifetime new-donor enrichment.
type DonorHistory interface {
	FirstDonationDays(ctx context.Context, orgID string, donorIDs []string, tz string) (map[string]string, error)
}

// Archiver persists finished bundles outside the request path.
type Archiver interface {
	SaveBundle(ctx context.Context, bundle *domain.KPIBundle) error
}

// LockFactory builds a per-key distributed lock for the write-behind
// snapshot path, so replicas don't archive the same bundle twice.
type LockFactory func(key string) distlock.DistLock

// Request identifies one reconciliation pass.
type Request struct {
	OrganizationID string
	StartDate      string // YYYY-MM-DD, organization-local
	EndDate        string
	Timezone       string // optional; falls back to the orchestrator default
	Filter         rollup.Filter

	// ForceFallback skips the rollup gateways and aggregates from raw
	// transactions, for debugging rollup discrepancies.
	ForceFallback bool
}

// Orchestrator coordinates one reconciliation pass end to end. Safe for
// concurrent use; per-organization request identity enforces
// last-request-wins when responses arrive out of order.
type Orchestrator struct {
	gateway      RollupSource
	transactions TransactionSource
	spend        spend.Source // optional
	donors       DonorHistory // optional
	archive      Archiver     // optional
	archiveLock  LockFactory  // optional
	classifier   *attribution.Classifier
	aggregator   *rollup.Aggregator
	defaultTZ    string

	mu     sync.Mutex
	latest map[string]uuid.UUID // org id -> most recent request
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSpendSource wires per-channel spend; without it every spend figure
// is zero and ROI reads 0.
func WithSpendSource(s spend.Source) Option {
	return func(o *Orchestrator) { o.spend = s }
}

// WithDonorHistory enables the lifetime new-donor enrichment.
func WithDonorHistory(d DonorHistory) Option {
	return func(o *Orchestrator) { o.donors = d }
}

// WithArchive enables write-behind bundle snapshots.
func WithArchive(a Archiver) Option {
	return func(o *Orchestrator) { o.archive = a }
}

// WithArchiveLock guards snapshot writes with a distributed lock.
func WithArchiveLock(f LockFactory) Option {
	return func(o *Orchestrator) { o.archiveLock = f }
}

// WithDefaultTimezone overrides the organization-local timezone used
// when a request does not carry one.
func WithDefaultTimezone(tz string) Option {
	return func(o *Orchestrator) { o.defaultTZ = tz }
}

// NewOrchestrator builds an orchestrator over the given sources.
func NewOrchestrator(gateway RollupSource, transactions TransactionSource, classifier *attribution.Classifier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gateway:      gateway,
		transactions: transactions,
		classifier:   classifier,
		aggregator:   rollup.NewAggregator(),
		defaultTZ:    daybucket.DefaultTimezone,
		latest:       make(map[string]uuid.UUID),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// fetchResults carries the raw material of one pass. Each source fails
// independently; the decision of what the failure means is made after
// the join, not inside the goroutines.
type fetchResults struct {
	curDaily     []domain.DailyRollupRow
	curSummary   *domain.PeriodSummary
	curRollupErr error

	prevSummary   *domain.PeriodSummary
	prevRollupErr error

	curTxns   []domain.Transaction
	curCapped bool
	curTxnErr error

	prevTxns   []domain.Transaction
	prevCapped bool
	prevTxnErr error

	curSpend     []domain.SpendRecord
	curSpendErr  error
	prevSpend    []domain.SpendRecord
	prevSpendErr error
}

// Reconcile runs one full pass and returns the finished KPI bundle.
func (o *Orchestrator) Reconcile(ctx context.Context, req Request) (*domain.KPIBundle, error) {
	tz := req.Timezone
	if tz == "" {
		tz = o.defaultTZ
	}

	requestID := o.register(req.OrganizationID)

	prevStart, prevEnd := daybucket.PreviousPeriod(req.StartDate, req.EndDate)
	q := rollup.Query{
		OrganizationID: req.OrganizationID,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		Timezone:       tz,
	}
	prevQ := rollup.Query{
		OrganizationID: req.OrganizationID,
		StartDate:      prevStart,
		EndDate:        prevEnd,
		Timezone:       tz,
	}

	res := o.fetchAll(ctx, req, q, prevQ)

	if !o.isLatest(req.OrganizationID, requestID) {
		return nil, ErrSuperseded
	}

	curDonations, curRefunds := splitTransactions(res.curTxns, req.Filter)
	prevDonations, prevRefunds := splitTransactions(res.prevTxns, req.Filter)

	rawAvailable := res.curTxnErr == nil
	rollupEmpty := res.curSummary == nil ||
		(len(res.curDaily) == 0 && res.curSummary.DonationCount == 0)

	useFallback := req.ForceFallback || res.curRollupErr != nil
	if !useFallback && rollupEmpty && rawAvailable && len(res.curTxns) > 0 {
		// The rollup pipeline is behind the transaction feed; trust the
		// raw rows for this pass.
		useFallback = true
	}

	if useFallback && !rawAvailable {
		if res.curRollupErr != nil {
			return nil, fmt.Errorf("%w: rollup: %v; transactions: %v",
				ErrAllSourcesFailed, res.curRollupErr, res.curTxnErr)
		}
		return nil, fmt.Errorf("%w: transactions: %v", ErrAllSourcesFailed, res.curTxnErr)
	}

	source := domain.SourceCanonical
	if req.Filter.Active() {
		source = domain.SourceFiltered
	}

	curDaily, curSummary := res.curDaily, res.curSummary
	if useFallback {
		source = domain.SourceFallback
		curDaily, curSummary = o.aggregator.AggregateFromTransactions(q, curDonations, curRefunds)
		logger.Warn("Reconciliation using fallback aggregation",
			"org_id", req.OrganizationID,
			"rollup_error", errString(res.curRollupErr),
			"raw_rows", len(res.curTxns))
	}

	prevSummary := res.prevSummary
	if prevSummary == nil && res.prevTxnErr == nil && len(res.prevTxns) > 0 {
		_, prevSummary = o.aggregator.AggregateFromTransactions(prevQ, prevDonations, prevRefunds)
	}

	if res.curSpendErr != nil {
		logger.Warn("Spend source degraded; ROI figures may understate spend",
			"org_id", req.OrganizationID, "error", res.curSpendErr.Error())
	}
	if !rawAvailable {
		logger.Warn("Transaction feed unavailable; attribution and donor splits read zero",
			"org_id", req.OrganizationID, "error", res.curTxnErr.Error())
	}

	quality := domain.DataQuality{
		UsedFallback:      useFallback,
		AttributionMethod: "canonical",
		RawRowsCapped:     res.curCapped || res.prevCapped,
	}
	if useFallback {
		quality.AttributionMethod = "fallback"
	}
	if curSummary != nil {
		quality.UniqueDonorsApprox = curSummary.UniqueDonorsApprox
	}
	if !useFallback && rawAvailable && !res.curCapped && curSummary != nil &&
		len(res.curTxns) > 0 && len(curDonations) > curSummary.DonationCount {
		quality.RollupStale = true
	}

	var channelRevenue map[domain.Channel]*attribution.ChannelRevenue
	var prevAttributed float64
	if rawAvailable {
		channelRevenue = o.classifier.SummarizeRevenue(curDonations)
	}
	if res.prevTxnErr == nil {
		prevAttributed = attribution.AttributedRevenue(o.classifier.SummarizeRevenue(prevDonations))
	}

	bundle := kpi.Synthesize(kpi.Inputs{
		OrganizationID: req.OrganizationID,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		Timezone:       tz,
		Source:         source,

		CurrentDaily:    curDaily,
		CurrentSummary:  curSummary,
		PreviousSummary: prevSummary,

		ChannelRevenue:            channelRevenue,
		PreviousAttributedRevenue: prevAttributed,

		CurrentSpend:  res.curSpend,
		PreviousSpend: res.prevSpend,

		CurrentDonorIDs:  donorSet(curDonations),
		PreviousDonorIDs: donorSet(prevDonations),

		DataQuality: quality,
	})

	o.applyLifetime(ctx, req.OrganizationID, tz, curDonations, bundle)

	if !o.isLatest(req.OrganizationID, requestID) {
		return nil, ErrSuperseded
	}

	o.archiveBundle(bundle)

	return bundle, nil
}

// fetchAll pulls every source for both periods concurrently and joins.
func (o *Orchestrator) fetchAll(ctx context.Context, req Request, q, prevQ rollup.Query) *fetchResults {
	res := &fetchResults{}
	var wg sync.WaitGroup

	if !req.ForceFallback {
		wg.Add(2)
		go func() {
			defer wg.Done()
			res.curDaily, res.curSummary, res.curRollupErr = o.fetchRollup(ctx, q, req.Filter)
		}()
		go func() {
			defer wg.Done()
			_, res.prevSummary, res.prevRollupErr = o.fetchRollup(ctx, prevQ, req.Filter)
		}()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		res.curTxns, res.curCapped, res.curTxnErr = o.transactions.ListByDateRange(
			ctx, q.OrganizationID, q.StartDate, q.EndDate, q.Timezone)
	}()
	go func() {
		defer wg.Done()
		res.prevTxns, res.prevCapped, res.prevTxnErr = o.transactions.ListByDateRange(
			ctx, prevQ.OrganizationID, prevQ.StartDate, prevQ.EndDate, prevQ.Timezone)
	}()

	if o.spend != nil {
		wg.Add(2)
		go func() {
			defer wg.Done()
			res.curSpend, res.curSpendErr = o.spend.FetchSpend(
				ctx, q.OrganizationID, q.StartDate, q.EndDate)
		}()
		go func() {
			defer wg.Done()
			res.prevSpend, res.prevSpendErr = o.spend.FetchSpend(
				ctx, prevQ.OrganizationID, prevQ.StartDate, prevQ.EndDate)
		}()
	}

	wg.Wait()
	return res
}

// fetchRollup reads one period from the appropriate gateway. An
// ErrNoRows answer is an empty result, not a failure.
func (o *Orchestrator) fetchRollup(ctx context.Context, q rollup.Query, f rollup.Filter) ([]domain.DailyRollupRow, *domain.PeriodSummary, error) {
	var (
		daily   []domain.DailyRollupRow
		summary *domain.PeriodSummary
		err     error
	)
	if f.Active() {
		daily, err = o.gateway.FetchDailyRollupFiltered(ctx, q, f)
		if err == nil {
			summary, err = o.gateway.FetchPeriodSummaryFiltered(ctx, q, f)
		}
	} else {
		daily, err = o.gateway.FetchDailyRollup(ctx, q)
		if err == nil {
			summary, err = o.gateway.FetchPeriodSummary(ctx, q)
		}
	}
	if errors.Is(err, rollup.ErrNoRows) {
		return daily, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return daily, summary, nil
}

// splitTransactions separates donations from refund-like records and
// applies the campaign filter to donations only. Refunds pass through
// unfiltered: a refund carries no reliable attribution signals and must
// always count against the period it lands in.
func splitTransactions(txns []domain.Transaction, f rollup.Filter) (donations, refunds []domain.Transaction) {
	for _, t := range txns {
		if t.IsRefundLike() {
			refunds = append(refunds, t)
			continue
		}
		if f.Active() && !attribution.MatchesFilter(t.Signals, f.CampaignID, f.CreativeID) {
			continue
		}
		donations = append(donations, t)
	}
	return donations, refunds
}

func donorSet(donations []domain.Transaction) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range donations {
		if t.DonorID != "" {
			set[t.DonorID] = struct{}{}
		}
	}
	return set
}

// applyLifetime attaches the lifetime new-donor count when a donor
// history source is configured. Failures degrade to the baseline
// period-relative figures.
func (o *Orchestrator) applyLifetime(ctx context.Context, orgID, tz string, donations []domain.Transaction, bundle *domain.KPIBundle) {
	if o.donors == nil {
		return
	}
	donors := donorSet(donations)
	if len(donors) == 0 {
		return
	}
	ids := make([]string, 0, len(donors))
	for id := range donors {
		ids = append(ids, id)
	}
	firstSeen, err := o.donors.FirstDonationDays(ctx, orgID, ids, tz)
	if err != nil {
		logger.Warn("Donor history lookup failed; skipping lifetime enrichment",
			"org_id", orgID, "error", err.Error())
		return
	}
	kpi.ApplyLifetimeClassification(bundle, donors, firstSeen)
}

// archiveBundle snapshots the bundle outside the request path.
func (o *Orchestrator) archiveBundle(bundle *domain.KPIBundle) {
	if o.archive == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if o.archiveLock != nil {
			lock := o.archiveLock("snapshot:" + bundle.OrganizationID)
			ok, err := lock.Acquire(ctx)
			if err != nil || !ok {
				logger.Debug("Snapshot archive skipped; another writer holds the lock",
					"org_id", bundle.OrganizationID)
				return
			}
			defer lock.Release(ctx)
		}

		if err := o.archive.SaveBundle(ctx, bundle); err != nil {
			logger.Error("Failed to archive KPI bundle",
				"org_id", bundle.OrganizationID, "error", err.Error())
		}
	}()
}

func (o *Orchestrator) register(orgID string) uuid.UUID {
	id := uuid.New()
	o.mu.Lock()
	o.latest[orgID] = id
	o.mu.Unlock()
	return id
}

func (o *Orchestrator) isLatest(orgID string, id uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latest[orgID] == id
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
