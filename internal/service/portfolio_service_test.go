package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Dineshdataengineer/reactive-stock-trader/internal/domain"
)

// ---------------------------------------------------------------------------
// in-memory fakes
// ---------------------------------------------------------------------------

type memJournal struct {
	mu     sync.Mutex
	events map[string][]domain.PersistedEvent
}

func newMemJournal() *memJournal {
	return &memJournal{events: make(map[string][]domain.PersistedEvent)}
}

func (m *memJournal) Append(_ context.Context, id string, seqNo int64, evt domain.PortfolioEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pe := range m.events[id] {
		if pe.SequenceNo == seqNo {
			return domain.ErrConflict
		}
	}
	m.events[id] = append(m.events[id], domain.PersistedEvent{
		PortfolioID: id,
		SequenceNo:  seqNo,
		Event:       evt,
		RecordedAt:  time.Now().UTC(),
	})
	return nil
}

func (m *memJournal) Load(_ context.Context, id string, afterSeq int64) ([]domain.PersistedEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PersistedEvent
	for _, pe := range m.events[id] {
		if pe.SequenceNo > afterSeq {
			out = append(out, pe)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNo < out[j].SequenceNo })
	return out, nil
}

func (m *memJournal) LastSequence(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last int64
	for _, pe := range m.events[id] {
		if pe.SequenceNo > last {
			last = pe.SequenceNo
		}
	}
	return last, nil
}

type memSnapshots struct {
	mu    sync.Mutex
	snaps map[string]domain.Snapshot
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{snaps: make(map[string]domain.Snapshot)}
}

func (m *memSnapshots) Save(_ context.Context, snap domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.PortfolioID] = snap
	return nil
}

func (m *memSnapshots) Load(_ context.Context, id string) (domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[id]
	if !ok {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (m *memSnapshots) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, id)
	return nil
}

type memSummaries struct {
	mu   sync.Mutex
	rows map[string]domain.PortfolioSummary
}

func newMemSummaries() *memSummaries {
	return &memSummaries{rows: make(map[string]domain.PortfolioSummary)}
}

func (m *memSummaries) Create(_ context.Context, s domain.PortfolioSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[s.ID]; ok {
		return domain.ErrConflict
	}
	m.rows[s.ID] = s
	return nil
}

func (m *memSummaries) Update(_ context.Context, s domain.PortfolioSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[s.ID]; !ok {
		return domain.ErrNotFound
	}
	m.rows[s.ID] = s
	return nil
}

func (m *memSummaries) GetByID(_ context.Context, id string) (domain.PortfolioSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return domain.PortfolioSummary{}, domain.ErrNotFound
	}
	return s, nil
}

func (m *memSummaries) List(_ context.Context, opts domain.ListOpts) ([]domain.PortfolioSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PortfolioSummary
	for _, s := range m.rows {
		if opts.Status != "" && s.Status != opts.Status {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memSummaries) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.rows)), nil
}

type cacheEntry struct {
	state domain.PortfolioState
	seqNo int64
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]cacheEntry)}
}

func (m *memCache) Put(_ context.Context, id string, state domain.PortfolioState, seqNo int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = cacheEntry{state: state, seqNo: seqNo}
	return nil
}

func (m *memCache) Get(_ context.Context, id string) (domain.PortfolioState, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, 0, domain.ErrNotFound
	}
	return e.state, e.seqNo, nil
}

func (m *memCache) Invalidate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streamed  map[string][][]byte
}

func newMemBus() *memBus {
	return &memBus{
		published: make(map[string][][]byte),
		streamed:  make(map[string][][]byte),
	}
}

func (m *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[channel] = append(m.published[channel], payload)
	return nil
}

func (m *memBus) Subscribe(_ context.Context, _ string) (<-chan domain.BusMessage, error) {
	ch := make(chan domain.BusMessage)
	close(ch)
	return ch, nil
}

func (m *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamed[stream] = append(m.streamed[stream], payload)
	return nil
}

func (m *memBus) StreamRead(_ context.Context, _ string, _ string, _ int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocks() *memLocks {
	return &memLocks{held: make(map[string]bool)}
}

func (m *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return nil, domain.ErrLockHeld
	}
	m.held[key] = true
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, key)
	}, nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (m *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, domain.AuditEntry{
		ID:        int64(len(m.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *memAudit) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AuditEntry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

// Compile-time interface checks for the fakes.
var (
	_ domain.JournalStore  = (*memJournal)(nil)
	_ domain.SnapshotStore = (*memSnapshots)(nil)
	_ domain.SummaryStore  = (*memSummaries)(nil)
	_ domain.StateCache    = (*memCache)(nil)
	_ domain.SignalBus     = (*memBus)(nil)
	_ domain.LockManager   = (*memLocks)(nil)
	_ domain.AuditStore    = (*memAudit)(nil)
)

// ---------------------------------------------------------------------------
// harness
// ---------------------------------------------------------------------------

type harness struct {
	svc       *PortfolioService
	journal   *memJournal
	snapshots *memSnapshots
	summaries *memSummaries
	cache     *memCache
	bus       *memBus
	locks     *memLocks
	audit     *memAudit
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		journal:   newMemJournal(),
		snapshots: newMemSnapshots(),
		summaries: newMemSummaries(),
		cache:     newMemCache(),
		bus:       newMemBus(),
		locks:     newMemLocks(),
		audit:     &memAudit{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.svc = NewPortfolioService(
		h.journal, h.snapshots, h.summaries, h.cache,
		h.bus, h.locks, h.audit, logger, opts,
	)
	return h
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func (h *harness) openFunded(t *testing.T, name, funds string) string {
	t.Helper()
	sum, err := h.svc.Open(context.Background(), name)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := h.svc.Deposit(context.Background(), sum.ID, dec(t, funds)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	return sum.ID
}

func (h *harness) mustState(t *testing.T, id string) domain.PortfolioState {
	t.Helper()
	state, _, err := h.svc.State(context.Background(), id)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	return state
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestOpenDepositWithdraw(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	id := h.openFunded(t, "savings", "100")

	if err := h.svc.Withdraw(ctx, id, dec(t, "30")); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	state := h.mustState(t, id)
	if !state.Funds().Equal(dec(t, "70")) {
		t.Errorf("funds = %s, want 70", state.Funds())
	}

	err := h.svc.Withdraw(ctx, id, dec(t, "100"))
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("overdraw error = %v, want ErrInsufficientFunds", err)
	}

	err = h.svc.Deposit(ctx, id, dec(t, "-5"))
	if !errors.Is(err, domain.ErrInvariantViolation) {
		t.Errorf("negative deposit error = %v, want ErrInvariantViolation", err)
	}
}

func TestBuyOrderLifecycle(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	id := h.openFunded(t, "growth", "1000")

	orderID, err := h.svc.PlaceOrder(ctx, id, "IBM", 10, domain.OrderSideBuy)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	open := h.mustState(t, id).(domain.Open)
	if open.ActiveOrderCount() != 1 {
		t.Fatalf("active orders = %d, want 1", open.ActiveOrderCount())
	}

	if err := h.svc.CompleteTrade(ctx, id, orderID, dec(t, "5")); err != nil {
		t.Fatalf("complete trade: %v", err)
	}

	open = h.mustState(t, id).(domain.Open)
	if open.ActiveOrderCount() != 0 {
		t.Errorf("active orders = %d, want 0", open.ActiveOrderCount())
	}
	if !open.IsCompleted(orderID) {
		t.Error("order not marked completed")
	}
	if got := open.Holdings().ShareCount("IBM"); got != 10 {
		t.Errorf("IBM shares = %d, want 10", got)
	}
	if !open.Funds().Equal(dec(t, "950")) {
		t.Errorf("funds = %s, want 950", open.Funds())
	}

	// Settling the same order again is rejected.
	err = h.svc.CompleteTrade(ctx, id, orderID, dec(t, "5"))
	if !errors.Is(err, domain.ErrOrderNotActive) {
		t.Errorf("double settle error = %v, want ErrOrderNotActive", err)
	}
}

func TestSellOrderLifecycle(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	id := h.openFunded(t, "income", "100")

	// Selling without holdings is rejected at placement.
	_, err := h.svc.PlaceOrder(ctx, id, "IBM", 5, domain.OrderSideSell)
	if !errors.Is(err, domain.ErrInsufficientShares) {
		t.Fatalf("uncovered sell error = %v, want ErrInsufficientShares", err)
	}

	if err := h.svc.CreditShares(ctx, id, "IBM", 5); err != nil {
		t.Fatalf("credit shares: %v", err)
	}

	orderID, err := h.svc.PlaceOrder(ctx, id, "IBM", 5, domain.OrderSideSell)
	if err != nil {
		t.Fatalf("place sell: %v", err)
	}
	if err := h.svc.CompleteTrade(ctx, id, orderID, dec(t, "12")); err != nil {
		t.Fatalf("complete sell: %v", err)
	}

	open := h.mustState(t, id).(domain.Open)
	if got := open.Holdings().ShareCount("IBM"); got != 0 {
		t.Errorf("IBM shares = %d, want 0", got)
	}
	if !open.Funds().Equal(dec(t, "160")) {
		t.Errorf("funds = %s, want 160", open.Funds())
	}
}

func TestFailOrderLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	id := h.openFunded(t, "cautious", "500")

	err := h.svc.FailOrder(ctx, id, "nonexistent")
	if !errors.Is(err, domain.ErrOrderNotActive) {
		t.Fatalf("fail unknown order error = %v, want ErrOrderNotActive", err)
	}

	orderID, err := h.svc.PlaceOrder(ctx, id, "AAPL", 3, domain.OrderSideBuy)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if err := h.svc.FailOrder(ctx, id, orderID); err != nil {
		t.Fatalf("fail order: %v", err)
	}

	open := h.mustState(t, id).(domain.Open)
	if !open.Funds().Equal(dec(t, "500")) {
		t.Errorf("funds = %s, want 500", open.Funds())
	}
	if !open.Holdings().IsEmpty() {
		t.Error("holdings changed by failed order")
	}
	if !open.IsCompleted(orderID) {
		t.Error("failed order not marked completed")
	}
}

func TestLifecyclePhases(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	id := h.openFunded(t, "winding", "100")

	orderID, err := h.svc.PlaceOrder(ctx, id, "IBM", 1, domain.OrderSideBuy)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	// Active orders block liquidation.
	err = h.svc.Liquidate(ctx, id)
	if !errors.Is(err, domain.ErrOrderStillActive) {
		t.Fatalf("liquidate with active order error = %v, want ErrOrderStillActive", err)
	}

	if err := h.svc.FailOrder(ctx, id, orderID); err != nil {
		t.Fatalf("fail order: %v", err)
	}
	if err := h.svc.Liquidate(ctx, id); err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	// Mutations are rejected during liquidation.
	err = h.svc.Deposit(ctx, id, dec(t, "10"))
	if !errors.Is(err, domain.ErrPortfolioClosed) {
		t.Errorf("deposit while liquidating error = %v, want ErrPortfolioClosed", err)
	}

	state := h.mustState(t, id)
	if state.Status() != domain.StatusLiquidating {
		t.Fatalf("status = %s, want liquidating", state.Status())
	}
	if !state.Funds().Equal(dec(t, "100")) {
		t.Errorf("liquidating funds = %s, want 100", state.Funds())
	}

	if err := h.svc.Close(ctx, id); err != nil {
		t.Fatalf("close: %v", err)
	}
	state = h.mustState(t, id)
	if state.Status() != domain.StatusClosed {
		t.Fatalf("status = %s, want closed", state.Status())
	}
	if !state.Funds().IsZero() {
		t.Errorf("closed funds = %s, want 0", state.Funds())
	}

	// Terminal phase rejects everything.
	err = h.svc.Close(ctx, id)
	if !errors.Is(err, domain.ErrPortfolioClosed) {
		t.Errorf("double close error = %v, want ErrPortfolioClosed", err)
	}

	sum, err := h.svc.Summary(ctx, id)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Status != domain.StatusClosed {
		t.Errorf("summary status = %s, want closed", sum.Status)
	}
}

func TestCloseRequiresLiquidating(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	id := h.openFunded(t, "direct", "50")

	err := h.svc.Close(ctx, id)
	if !errors.Is(err, domain.ErrNoTransition) {
		t.Errorf("close open portfolio error = %v, want ErrNoTransition", err)
	}
}

func TestStateRecoveryAfterCacheLoss(t *testing.T) {
	h := newHarness(t, Options{SnapshotInterval: 2})
	ctx := context.Background()

	id := h.openFunded(t, "resilient", "300")
	if err := h.svc.CreditShares(ctx, id, "IBM", 7); err != nil {
		t.Fatalf("credit shares: %v", err)
	}
	if err := h.svc.Withdraw(ctx, id, dec(t, "50")); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	before := h.mustState(t, id).(domain.Open)

	// Drop the cache; the next read must rebuild from snapshot plus journal.
	if err := h.cache.Invalidate(ctx, id); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	after := h.mustState(t, id).(domain.Open)
	if !after.Funds().Equal(before.Funds()) {
		t.Errorf("recovered funds = %s, want %s", after.Funds(), before.Funds())
	}
	if after.Holdings().ShareCount("IBM") != before.Holdings().ShareCount("IBM") {
		t.Error("recovered holdings differ")
	}
}

func TestPhaseRecoveryAfterCacheLoss(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	id := h.openFunded(t, "phased", "80")
	if err := h.svc.Liquidate(ctx, id); err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	// Drop both the cache and the snapshot so the phase must come back from
	// the summary projection.
	if err := h.cache.Invalidate(ctx, id); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if err := h.snapshots.Delete(ctx, id); err != nil {
		t.Fatalf("delete snapshot: %v", err)
	}

	state := h.mustState(t, id)
	if state.Status() != domain.StatusLiquidating {
		t.Errorf("recovered status = %s, want liquidating", state.Status())
	}
	if !state.Funds().Equal(dec(t, "80")) {
		t.Errorf("recovered funds = %s, want 80", state.Funds())
	}
}

func TestTerminalSnapshotBehindJournalFailsRead(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	id := h.openFunded(t, "torn", "100")

	// Plant a Liquidating snapshot that predates the journal's last event.
	// No event can follow a phase change, so the read must refuse to fold
	// the trailing rows into a state that cannot accept them.
	stale := domain.InitialState("torn").BeginLiquidation()
	if err := h.snapshots.Save(ctx, domain.Snapshot{
		PortfolioID: id,
		SequenceNo:  0,
		State:       stale,
		TakenAt:     time.Now().UTC(),
	}); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	if err := h.cache.Invalidate(ctx, id); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	_, _, err := h.svc.State(ctx, id)
	if !errors.Is(err, domain.ErrInvariantViolation) {
		t.Errorf("read with trailing journal rows error = %v, want ErrInvariantViolation", err)
	}
}

func TestRebuildRestoresProjection(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	id := h.openFunded(t, "drifted", "400")
	if err := h.svc.Withdraw(ctx, id, dec(t, "150")); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	// Corrupt the projection.
	sum, err := h.summaries.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	sum.Funds = dec(t, "999")
	if err := h.summaries.Update(ctx, sum); err != nil {
		t.Fatalf("update summary: %v", err)
	}

	n, err := h.svc.RebuildAll(ctx)
	if err != nil {
		t.Fatalf("rebuild all: %v", err)
	}
	if n != 1 {
		t.Fatalf("rebuilt = %d, want 1", n)
	}

	sum, err = h.svc.Summary(ctx, id)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !sum.Funds.Equal(dec(t, "250")) {
		t.Errorf("rebuilt funds = %s, want 250", sum.Funds)
	}

	snap, err := h.snapshots.Load(ctx, id)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if snap.SequenceNo != 2 {
		t.Errorf("snapshot seq = %d, want 2", snap.SequenceNo)
	}
}

func TestEventsPublishedToBus(t *testing.T) {
	h := newHarness(t, Options{})

	id := h.openFunded(t, "noisy", "10")

	h.bus.mu.Lock()
	defer h.bus.mu.Unlock()
	if got := len(h.bus.published[ChannelPortfolioEvents]); got != 1 {
		t.Errorf("broadcast publishes = %d, want 1", got)
	}
	if got := len(h.bus.published["portfolio:"+id]); got != 1 {
		t.Errorf("per-portfolio publishes = %d, want 1", got)
	}
	if got := len(h.bus.streamed[StreamPortfolioJournal]); got != 1 {
		t.Errorf("stream appends = %d, want 1", got)
	}
}

func TestLockHeldRejectsCommand(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	id := h.openFunded(t, "contended", "10")

	unlock, err := h.locks.Acquire(ctx, id, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer unlock()

	err = h.svc.Deposit(ctx, id, dec(t, "1"))
	if !errors.Is(err, domain.ErrLockHeld) {
		t.Errorf("deposit under held lock error = %v, want ErrLockHeld", err)
	}
}
