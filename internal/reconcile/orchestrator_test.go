package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicpulse/fundraise-monitor/internal/attribution"
	"github.com/civicpulse/fundraise-monitor/internal/domain"
	"github.com/civicpulse/fundraise-monitor/internal/pkg/distlock"
	"github.com/civicpulse/fundraise-monitor/internal/rollup"
)

type fakeGateway struct {
	mu             sync.Mutex
	daily          map[string][]domain.DailyRollupRow
	summary        map[string]*domain.PeriodSummary
	err            error
	canonicalCalls int
	filteredCalls  int
}

func (g *fakeGateway) fetch(start string, filtered bool) ([]domain.DailyRollupRow, *domain.PeriodSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if filtered {
		g.filteredCalls++
	} else {
		g.canonicalCalls++
	}
	if g.err != nil {
		return nil, nil, &rollup.GatewayError{Op: "daily_rollup", Err: g.err}
	}
	return g.daily[start], g.summary[start], nil
}

func (g *fakeGateway) FetchDailyRollup(_ context.Context, q rollup.Query) ([]domain.DailyRollupRow, error) {
	daily, _, err := g.fetch(q.StartDate, false)
	return daily, err
}

func (g *fakeGateway) FetchPeriodSummary(_ context.Context, q rollup.Query) (*domain.PeriodSummary, error) {
	_, summary, err := g.fetch(q.StartDate, false)
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return nil, rollup.ErrNoRows
	}
	return summary, nil
}

func (g *fakeGateway) FetchDailyRollupFiltered(_ context.Context, q rollup.Query, _ rollup.Filter) ([]domain.DailyRollupRow, error) {
	daily, _, err := g.fetch(q.StartDate, true)
	return daily, err
}

func (g *fakeGateway) FetchPeriodSummaryFiltered(_ context.Context, q rollup.Query, _ rollup.Filter) (*domain.PeriodSummary, error) {
	_, summary, err := g.fetch(q.StartDate, true)
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return nil, rollup.ErrNoRows
	}
	return summary, nil
}

type fakeTxnSource struct {
	txns   map[string][]domain.Transaction
	capped bool
	err    error

	calls      int32
	blockFirst int32
	release    chan struct{}
}

func (s *fakeTxnSource) ListByDateRange(_ context.Context, _, start, _, _ string) ([]domain.Transaction, bool, error) {
	n := atomic.AddInt32(&s.calls, 1)
	if s.release != nil && n <= atomic.LoadInt32(&s.blockFirst) {
		<-s.release
	}
	if s.err != nil {
		return nil, false, s.err
	}
	return s.txns[start], s.capped, nil
}

type fakeSpend struct {
	records []domain.SpendRecord
	err     error
}

func (s *fakeSpend) FetchSpend(_ context.Context, _, start, _ string) ([]domain.SpendRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.SpendRecord
	for _, r := range s.records {
		if r.Date >= start {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeDonors struct {
	firstSeen map[string]string
	err       error
}

func (d *fakeDonors) FirstDonationDays(_ context.Context, _ string, _ []string, _ string) (map[string]string, error) {
	return d.firstSeen, d.err
}

type fakeArchive struct {
	saved chan *domain.KPIBundle
}

func (a *fakeArchive) SaveBundle(_ context.Context, b *domain.KPIBundle) error {
	a.saved <- b
	return nil
}

func donationAt(id, donor string, gross, net float64, at time.Time, sig domain.AttributionSignals) domain.Transaction {
	n := net
	return domain.Transaction{
		ID:             id,
		OrganizationID: "org-1",
		DonorID:        donor,
		Type:           domain.TransactionDonation,
		GrossAmount:    gross,
		NetAmount:      &n,
		OccurredAt:     at,
		Signals:        sig,
	}
}

func refundAt(id string, net float64, at time.Time) domain.Transaction {
	n := net
	return domain.Transaction{
		ID:             id,
		OrganizationID: "org-1",
		Type:           domain.TransactionRefund,
		GrossAmount:    net,
		NetAmount:      &n,
		OccurredAt:     at,
	}
}

func baseRequest() Request {
	return Request{
		OrganizationID: "org-1",
		StartDate:      "2025-05-10",
		EndDate:        "2025-05-11",
		Timezone:       "UTC",
	}
}

func canonicalSummary(donations int) *domain.PeriodSummary {
	return &domain.PeriodSummary{
		OrganizationID: "org-1",
		StartDate:      "2025-05-10",
		EndDate:        "2025-05-11",
		GrossRaised:    300,
		NetRaised:      291,
		Refunds:        48,
		NetRevenue:     243,
		TotalFees:      9,
		DonationCount:  donations,
		RefundCount:    1,
		UniqueDonors:   donations,

		UniqueDonorsApprox: true,
	}
}

func TestReconcile_CanonicalPath(t *testing.T) {
	at := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	gw := &fakeGateway{
		daily: map[string][]domain.DailyRollupRow{
			"2025-05-10": {{Date: "2025-05-10", OrganizationID: "org-1", GrossRaised: 300, NetRevenue: 243}},
		},
		summary: map[string]*domain.PeriodSummary{
			"2025-05-10": canonicalSummary(10),
			"2025-05-08": {GrossRaised: 100, NetRevenue: 90, DonationCount: 4},
		},
	}
	txns := &fakeTxnSource{txns: map[string][]domain.Transaction{
		"2025-05-10": {
			donationAt("t1", "d1", 100, 97, at, domain.AttributionSignals{RefCode: "fb_spring"}),
			donationAt("t2", "d2", 50, 48.5, at, domain.AttributionSignals{}),
		},
		"2025-05-08": {
			donationAt("p1", "d1", 40, 39, at.AddDate(0, 0, -2), domain.AttributionSignals{RefCode: "fb_spring"}),
		},
	}}
	spendSrc := &fakeSpend{records: []domain.SpendRecord{
		{OrganizationID: "org-1", Channel: domain.ChannelMeta, Date: "2025-05-10", Amount: 50},
	}}

	o := NewOrchestrator(gw, txns, attribution.NewClassifier(), WithSpendSource(spendSrc))
	bundle, err := o.Reconcile(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.SourceCanonical, bundle.Source)
	assert.False(t, bundle.DataQuality.UsedFallback)
	assert.Equal(t, "canonical", bundle.DataQuality.AttributionMethod)
	assert.True(t, bundle.DataQuality.UniqueDonorsApprox)

	// Scalars come from the gateway summary, not the raw rows.
	assert.InDelta(t, 300, bundle.Current.GrossRaised, 1e-9)
	assert.InDelta(t, 243, bundle.Current.NetRevenue, 1e-9)
	assert.Equal(t, 10, bundle.Current.DonationCount)

	// Attribution comes from the raw rows.
	assert.InDelta(t, 97, bundle.Current.AttributedRevenue, 1e-9)
	assert.InDelta(t, 50, bundle.Current.TotalSpend, 1e-9)

	// d1 donated in the previous period, d2 did not.
	assert.Equal(t, 1, bundle.Current.NewDonors)
	assert.Equal(t, 1, bundle.Current.ReturningDonors)

	// Two days in range, zero-filled.
	require.Len(t, bundle.TimeSeries, 2)
	assert.Equal(t, "2025-05-11", bundle.TimeSeries[1].Date)
	assert.Zero(t, bundle.TimeSeries[1].GrossRaised)

	// Daily plus summary for each of the two periods.
	assert.Equal(t, 4, gw.canonicalCalls)
	assert.Zero(t, gw.filteredCalls)
}

func TestReconcile_FallbackOnGatewayError(t *testing.T) {
	at := time.Date(2025, 5, 10, 15, 0, 0, 0, time.UTC)

	var raw []domain.Transaction
	for i := 0; i < 10; i++ {
		raw = append(raw, donationAt(
			string(rune('a'+i)), "donor-"+string(rune('a'+i)),
			30, 29.1, at, domain.AttributionSignals{RefCode: "sms_blast"}))
	}
	raw = append(raw, refundAt("r1", -48, at))

	gw := &fakeGateway{err: errors.New("connection refused")}
	txns := &fakeTxnSource{txns: map[string][]domain.Transaction{"2025-05-10": raw}}

	o := NewOrchestrator(gw, txns, attribution.NewClassifier())
	bundle, err := o.Reconcile(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.SourceFallback, bundle.Source)
	assert.True(t, bundle.DataQuality.UsedFallback)
	assert.Equal(t, "fallback", bundle.DataQuality.AttributionMethod)

	assert.InDelta(t, 300, bundle.Current.GrossRaised, 1e-9)
	assert.InDelta(t, 291, bundle.Current.NetRaised, 1e-9)
	assert.InDelta(t, 48, bundle.Current.Refunds, 1e-9)
	assert.InDelta(t, 243, bundle.Current.NetRevenue, 1e-9)
	assert.Equal(t, 10, bundle.Current.DonationCount)
	assert.Equal(t, 1, bundle.Current.RefundCount)

	// Raw rows allow a true distinct donor count.
	assert.Equal(t, 10, bundle.Current.UniqueDonors)
	assert.False(t, bundle.DataQuality.UniqueDonorsApprox)

	assert.InDelta(t, 291, bundle.Current.AttributedRevenue, 1e-9)
	assert.NotEmpty(t, bundle.TimeSeries)
}

func TestReconcile_FallbackOnEmptyRollupWithRawRows(t *testing.T) {
	at := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)

	// Gateway is reachable but the rollup pipeline has no rows yet.
	gw := &fakeGateway{}
	txns := &fakeTxnSource{txns: map[string][]domain.Transaction{
		"2025-05-10": {donationAt("t1", "d1", 25, 24, at, domain.AttributionSignals{})},
	}}

	o := NewOrchestrator(gw, txns, attribution.NewClassifier())
	bundle, err := o.Reconcile(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.SourceFallback, bundle.Source)
	assert.True(t, bundle.DataQuality.UsedFallback)
	assert.InDelta(t, 25, bundle.Current.GrossRaised, 1e-9)
}

func TestReconcile_EmptyRollupNoRawRowsStaysCanonical(t *testing.T) {
	gw := &fakeGateway{}
	txns := &fakeTxnSource{}

	o := NewOrchestrator(gw, txns, attribution.NewClassifier())
	bundle, err := o.Reconcile(context.Background(), baseRequest())
	require.NoError(t, err)

	// A genuinely quiet period is not a fallback condition.
	assert.Equal(t, domain.SourceCanonical, bundle.Source)
	assert.False(t, bundle.DataQuality.UsedFallback)
	assert.Zero(t, bundle.Current.GrossRaised)
}

func TestReconcile_AllSourcesFailed(t *testing.T) {
	gw := &fakeGateway{err: errors.New("timeout")}
	txns := &fakeTxnSource{err: errors.New("db down")}

	o := NewOrchestrator(gw, txns, attribution.NewClassifier())
	_, err := o.Reconcile(context.Background(), baseRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllSourcesFailed)
}

func TestReconcile_FallbackNotSticky(t *testing.T) {
	at := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)
	gw := &fakeGateway{err: errors.New("flaky")}
	txns := &fakeTxnSource{txns: map[string][]domain.Transaction{
		"2025-05-10": {donationAt("t1", "d1", 25, 24, at, domain.AttributionSignals{})},
	}}

	o := NewOrchestrator(gw, txns, attribution.NewClassifier())

	bundle, err := o.Reconcile(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.SourceFallback, bundle.Source)

	// Gateway recovers; the very next request must use it again.
	gw.mu.Lock()
	gw.err = nil
	gw.summary = map[string]*domain.PeriodSummary{"2025-05-10": canonicalSummary(1)}
	gw.mu.Unlock()

	bundle, err = o.Reconcile(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.SourceCanonical, bundle.Source)
	assert.False(t, bundle.DataQuality.UsedFallback)
}

func TestReconcile_FilteredMode(t *testing.T) {
	at := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)

	// Filtered gateway fails so the pass falls back, which makes the
	// filter's effect on the aggregation observable.
	gw := &fakeGateway{err: errors.New("function does not exist")}
	txns := &fakeTxnSource{txns: map[string][]domain.Transaction{
		"2025-05-10": {
			donationAt("t1", "d1", 100, 97, at, domain.AttributionSignals{CampaignID: "c-1"}),
			donationAt("t2", "d2", 50, 48, at, domain.AttributionSignals{CampaignID: "c-2"}),
			refundAt("r1", -10, at),
		},
	}}

	o := NewOrchestrator(gw, txns, attribution.NewClassifier())
	req := baseRequest()
	req.Filter = rollup.Filter{CampaignID: "c-1"}

	bundle, err := o.Reconcile(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, domain.SourceFallback, bundle.Source)
	assert.True(t, gw.filteredCalls > 0)
	assert.Zero(t, gw.canonicalCalls)

	// Only the matching donation counts, but the refund still applies.
	assert.InDelta(t, 100, bundle.Current.GrossRaised, 1e-9)
	assert.Equal(t, 1, bundle.Current.DonationCount)
	assert.InDelta(t, 10, bundle.Current.Refunds, 1e-9)
	assert.InDelta(t, 87, bundle.Current.NetRevenue, 1e-9)
}

func TestReconcile_FilteredModeUsesFilteredGateway(t *testing.T) {
	gw := &fakeGateway{summary: map[string]*domain.PeriodSummary{
		"2025-05-10": canonicalSummary(3),
	}}
	txns := &fakeTxnSource{}

	o := NewOrchestrator(gw, txns, attribution.NewClassifier())
	req := baseRequest()
	req.Filter = rollup.Filter{CampaignID: "c-1", CreativeID: "cr-9"}

	bundle, err := o.Reconcile(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, domain.SourceFiltered, bundle.Source)
	assert.Zero(t, gw.canonicalCalls)
	assert.Equal(t, 4, gw.filteredCalls)
}

func TestReconcile_ForceFallbackSkipsGateway(t *testing.T) {
	at := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)
	gw := &fakeGateway{summary: map[string]*domain.PeriodSummary{
		"2025-05-10": canonicalSummary(99),
	}}
	txns := &fakeTxnSource{txns: map[string][]domain.Transaction{
		"2025-05-10": {donationAt("t1", "d1", 25, 24, at, domain.AttributionSignals{})},
	}}

	o := NewOrchestrator(gw, txns, attribution.NewClassifier())
	req := baseRequest()
	req.ForceFallback = true

	bundle, err := o.Reconcile(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, domain.SourceFallback, bundle.Source)
	assert.Equal(t, 1, bundle.Current.DonationCount)
	assert.Zero(t, gw.canonicalCalls)
	assert.Zero(t, gw.filteredCalls)
}

func TestReconcile_RollupStaleFlag(t *testing.T) {
	at := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)
	gw := &fakeGateway{
		daily: map[string][]domain.DailyRollupRow{
			"2025-05-10": {{Date: "2025-05-10", GrossRaised: 30, DonationCount: 1}},
		},
		summary: map[string]*domain.PeriodSummary{
			"2025-05-10": {GrossRaised: 30, NetRevenue: 29, DonationCount: 1},
		},
	}
	txns := &fakeTxnSource{txns: map[string][]domain.Transaction{
		"2025-05-10": {
			donationAt("t1", "d1", 30, 29, at, domain.AttributionSignals{}),
			donationAt("t2", "d2", 30, 29, at, domain.AttributionSignals{}),
			donationAt("t3", "d3", 30, 29, at, domain.AttributionSignals{}),
		},
	}}

	o := NewOrchestrator(gw, txns, attribution.NewClassifier())
	bundle, err := o.Reconcile(context.Background(), baseRequest())
	require.NoError(t, err)

	// Rollup answered with data but lags the raw feed: serve it, flag it.
	assert.Equal(t, domain.SourceCanonical, bundle.Source)
	assert.True(t, bundle.DataQuality.RollupStale)
}

func TestReconcile_CappedRawRowsFlag(t *testing.T) {
	at := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)
	gw := &fakeGateway{err: errors.New("down")}
	txns := &fakeTxnSource{
		txns: map[string][]domain.Transaction{
			"2025-05-10": {donationAt("t1", "d1", 25, 24, at, domain.AttributionSignals{})},
		},
		capped: true,
	}

	o := NewOrchestrator(gw, txns, attribution.NewClassifier())
	bundle, err := o.Reconcile(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.True(t, bundle.DataQuality.RawRowsCapped)
	assert.False(t, bundle.DataQuality.RollupStale)
}

func TestReconcile_LifetimeEnrichment(t *testing.T) {
	at := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)
	gw := &fakeGateway{err: errors.New("down")}
	txns := &fakeTxnSource{txns: map[string][]domain.Transaction{
		"2025-05-10": {
			donationAt("t1", "d1", 25, 24, at, domain.AttributionSignals{}),
			donationAt("t2", "d2", 25, 24, at, domain.AttributionSignals{}),
		},
	}}
	donors := &fakeDonors{firstSeen: map[string]string{
		"d1": "2025-05-10", // first gift in this period
		"d2": "2024-11-03", // long-time donor
	}}

	o := NewOrchestrator(gw, txns, attribution.NewClassifier(), WithDonorHistory(donors))
	bundle, err := o.Reconcile(context.Background(), baseRequest())
	require.NoError(t, err)

	require.NotNil(t, bundle.Current.LifetimeNewDonors)
	assert.Equal(t, 1, *bundle.Current.LifetimeNewDonors)
}

func TestReconcile_LifetimeLookupFailureDegrades(t *testing.T) {
	at := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)
	gw := &fakeGateway{err: errors.New("down")}
	txns := &fakeTxnSource{txns: map[string][]domain.Transaction{
		"2025-05-10": {donationAt("t1", "d1", 25, 24, at, domain.AttributionSignals{})},
	}}
	donors := &fakeDonors{err: errors.New("history table locked")}

	o := NewOrchestrator(gw, txns, attribution.NewClassifier(), WithDonorHistory(donors))
	bundle, err := o.Reconcile(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Nil(t, bundle.Current.LifetimeNewDonors)
}

func TestReconcile_SpendFailureDoesNotAbort(t *testing.T) {
	at := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)
	gw := &fakeGateway{err: errors.New("down")}
	txns := &fakeTxnSource{txns: map[string][]domain.Transaction{
		"2025-05-10": {donationAt("t1", "d1", 25, 24, at, domain.AttributionSignals{})},
	}}

	o := NewOrchestrator(gw, txns, attribution.NewClassifier(),
		WithSpendSource(&fakeSpend{err: errors.New("rate limited")}))
	bundle, err := o.Reconcile(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.InDelta(t, 25, bundle.Current.GrossRaised, 1e-9)
	assert.Zero(t, bundle.Current.TotalSpend)
	assert.Zero(t, bundle.Current.ROI)
}

func TestReconcile_ArchiveWriteBehind(t *testing.T) {
	at := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)
	gw := &fakeGateway{err: errors.New("down")}
	txns := &fakeTxnSource{txns: map[string][]domain.Transaction{
		"2025-05-10": {donationAt("t1", "d1", 25, 24, at, domain.AttributionSignals{})},
	}}
	archive := &fakeArchive{saved: make(chan *domain.KPIBundle, 1)}

	o := NewOrchestrator(gw, txns, attribution.NewClassifier(), WithArchive(archive))
	bundle, err := o.Reconcile(context.Background(), baseRequest())
	require.NoError(t, err)

	select {
	case saved := <-archive.saved:
		assert.Equal(t, bundle.OrganizationID, saved.OrganizationID)
	case <-time.After(2 * time.Second):
		t.Fatal("bundle was never archived")
	}
}

type fakeLock struct {
	acquired bool
	releases int32
}

func (l *fakeLock) Acquire(_ context.Context) (bool, error) { return l.acquired, nil }
func (l *fakeLock) Release(_ context.Context) error {
	atomic.AddInt32(&l.releases, 1)
	return nil
}

func TestReconcile_ArchiveLockHeldElsewhereSkipsWrite(t *testing.T) {
	at := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)
	gw := &fakeGateway{err: errors.New("down")}
	txns := &fakeTxnSource{txns: map[string][]domain.Transaction{
		"2025-05-10": {donationAt("t1", "d1", 25, 24, at, domain.AttributionSignals{})},
	}}
	archive := &fakeArchive{saved: make(chan *domain.KPIBundle, 1)}
	lock := &fakeLock{acquired: false}

	o := NewOrchestrator(gw, txns, attribution.NewClassifier(),
		WithArchive(archive),
		WithArchiveLock(func(string) distlock.DistLock { return lock }))

	_, err := o.Reconcile(context.Background(), baseRequest())
	require.NoError(t, err)

	select {
	case <-archive.saved:
		t.Fatal("bundle archived despite a held lock")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReconcile_ArchiveLockAcquiredWritesAndReleases(t *testing.T) {
	at := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)
	gw := &fakeGateway{err: errors.New("down")}
	txns := &fakeTxnSource{txns: map[string][]domain.Transaction{
		"2025-05-10": {donationAt("t1", "d1", 25, 24, at, domain.AttributionSignals{})},
	}}
	archive := &fakeArchive{saved: make(chan *domain.KPIBundle, 1)}
	lock := &fakeLock{acquired: true}

	o := NewOrchestrator(gw, txns, attribution.NewClassifier(),
		WithArchive(archive),
		WithArchiveLock(func(string) distlock.DistLock { return lock }))

	_, err := o.Reconcile(context.Background(), baseRequest())
	require.NoError(t, err)

	select {
	case <-archive.saved:
	case <-time.After(2 * time.Second):
		t.Fatal("bundle was never archived")
	}
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&lock.releases) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestReconcile_LastRequestWins(t *testing.T) {
	at := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)
	gw := &fakeGateway{err: errors.New("down")}
	txns := &fakeTxnSource{
		txns: map[string][]domain.Transaction{
			"2025-05-10": {donationAt("t1", "d1", 25, 24, at, domain.AttributionSignals{})},
		},
		blockFirst: 2,
		release:    make(chan struct{}),
	}

	o := NewOrchestrator(gw, txns, attribution.NewClassifier())

	errCh := make(chan error, 1)
	go func() {
		_, err := o.Reconcile(context.Background(), baseRequest())
		errCh <- err
	}()

	// Wait until the first request's transaction fetches are in flight.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&txns.calls) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	// A newer request for the same organization completes first.
	bundle, err := o.Reconcile(context.Background(), baseRequest())
	require.NoError(t, err)
	require.NotNil(t, bundle)

	close(txns.release)
	assert.ErrorIs(t, <-errCh, ErrSuperseded)
}
