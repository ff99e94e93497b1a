package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Dineshdataengineer/reactive-stock-trader/internal/domain"
)

// Bus channel and stream names for accepted portfolio events.
const (
	ChannelPortfolioEvents = "portfolio:events"
	StreamPortfolioJournal = "portfolio:journal"
)

// PortfolioService is the command layer of the portfolio aggregate. It decides
// business legality, folds accepted events through domain.Transition, and
// persists them at explicit journal sequence numbers. The reducer itself never
// validates commands; every rule that depends on more than (state, event)
// lives here.
type PortfolioService struct {
	journal   domain.JournalStore
	snapshots domain.SnapshotStore
	summaries domain.SummaryStore
	cache     domain.StateCache
	bus       domain.SignalBus
	locks     domain.LockManager
	audit     domain.AuditStore
	logger    *slog.Logger

	snapshotInterval int64
	lockTTL          time.Duration
}

// Options tunes persistence behaviour of the service.
type Options struct {
	// SnapshotInterval is the number of journal events between snapshots.
	SnapshotInterval int64
	// LockTTL bounds how long a per-portfolio writer lock may be held.
	LockTTL time.Duration
}

// NewPortfolioService creates a PortfolioService with all required
// dependencies.
func NewPortfolioService(
	journal domain.JournalStore,
	snapshots domain.SnapshotStore,
	summaries domain.SummaryStore,
	cache domain.StateCache,
	bus domain.SignalBus,
	locks domain.LockManager,
	audit domain.AuditStore,
	logger *slog.Logger,
	opts Options,
) *PortfolioService {
	if opts.SnapshotInterval <= 0 {
		opts.SnapshotInterval = 100
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Second
	}
	return &PortfolioService{
		journal:          journal,
		snapshots:        snapshots,
		summaries:        summaries,
		cache:            cache,
		bus:              bus,
		locks:            locks,
		audit:            audit,
		logger:           logger,
		snapshotInterval: opts.SnapshotInterval,
		lockTTL:          opts.LockTTL,
	}
}

// Open creates a new portfolio with a fresh UUID and an empty initial state.
func (s *PortfolioService) Open(ctx context.Context, name string) (domain.PortfolioSummary, error) {
	if name == "" {
		return domain.PortfolioSummary{}, fmt.Errorf("portfolio_service: open: name is required")
	}

	id := uuid.New().String()
	state := domain.InitialState(name)
	now := time.Now().UTC()

	sum := domain.PortfolioSummary{
		ID:           id,
		Name:         name,
		Status:       domain.StatusOpen,
		Funds:        state.Funds(),
		LoyaltyLevel: state.LoyaltyLevel(),
		OpenedAt:     now,
		UpdatedAt:    now,
	}

	if err := s.summaries.Create(ctx, sum); err != nil {
		return domain.PortfolioSummary{}, fmt.Errorf("portfolio_service: open %s: %w", id, err)
	}

	if err := s.cache.Put(ctx, id, state, 0); err != nil {
		s.warn(ctx, "cache put failed", id, err)
	}

	s.auditLog(ctx, "portfolio_opened", map[string]any{
		"portfolio_id": id,
		"name":         name,
	})

	s.logger.InfoContext(ctx, "portfolio_service: portfolio opened",
		slog.String("portfolio_id", id),
		slog.String("name", name),
	)

	return sum, nil
}

// Deposit credits funds to the portfolio.
func (s *PortfolioService) Deposit(ctx context.Context, id string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("portfolio_service: deposit %s: amount must be positive: %w", id, domain.ErrInvariantViolation)
	}
	return s.applyEvent(ctx, id, domain.TransferReceived{Amount: amount}, nil)
}

// Withdraw debits funds from the portfolio. It requires a positive amount and
// sufficient funds.
func (s *PortfolioService) Withdraw(ctx context.Context, id string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("portfolio_service: withdraw %s: amount must be positive: %w", id, domain.ErrInvariantViolation)
	}
	return s.applyEvent(ctx, id, domain.TransferSent{Amount: amount}, func(o domain.Open) error {
		if o.Funds().LessThan(amount) {
			return domain.ErrInsufficientFunds
		}
		return nil
	})
}

// PlaceOrder records a new order against the portfolio and returns its order
// ID. Sell orders require sufficient holdings at placement time.
func (s *PortfolioService) PlaceOrder(ctx context.Context, id, symbol string, shares int64, side domain.OrderSide) (domain.OrderID, error) {
	if symbol == "" || shares <= 0 {
		return "", fmt.Errorf("portfolio_service: place order %s: symbol and positive shares required: %w", id, domain.ErrInvariantViolation)
	}
	if side != domain.OrderSideBuy && side != domain.OrderSideSell {
		return "", fmt.Errorf("portfolio_service: place order %s: unknown side %q: %w", id, side, domain.ErrInvariantViolation)
	}

	orderID := domain.OrderID(uuid.New().String())
	evt := domain.OrderPlaced{
		OrderID: orderID,
		Symbol:  symbol,
		Shares:  shares,
		Side:    side,
	}

	err := s.applyEvent(ctx, id, evt, func(o domain.Open) error {
		if side == domain.OrderSideSell && o.Holdings().ShareCount(symbol) < shares {
			return domain.ErrInsufficientShares
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return orderID, nil
}

// CompleteTrade settles an active order at the given share price. The side
// recorded at placement decides whether the settlement buys or sells.
func (s *PortfolioService) CompleteTrade(ctx context.Context, id string, orderID domain.OrderID, sharePrice decimal.Decimal) error {
	if sharePrice.IsNegative() {
		return fmt.Errorf("portfolio_service: complete trade %s: negative share price: %w", id, domain.ErrInvariantViolation)
	}

	return s.mutate(ctx, id, func(o domain.Open) (domain.PortfolioEvent, error) {
		placed, ok := o.ActiveOrder(orderID)
		if !ok {
			return nil, domain.ErrOrderNotActive
		}

		switch placed.Side {
		case domain.OrderSideBuy:
			cost := sharePrice.Mul(decimal.NewFromInt(placed.Shares))
			if o.Funds().LessThan(cost) {
				return nil, domain.ErrInsufficientFunds
			}
			return domain.SharesBought{
				OrderID:    placed.OrderID,
				Symbol:     placed.Symbol,
				Shares:     placed.Shares,
				SharePrice: sharePrice,
			}, nil
		case domain.OrderSideSell:
			return domain.SharesSold{
				OrderID:    placed.OrderID,
				Symbol:     placed.Symbol,
				Shares:     placed.Shares,
				SharePrice: sharePrice,
			}, nil
		default:
			return nil, fmt.Errorf("order %s has unknown side %q: %w", orderID, placed.Side, domain.ErrInvariantViolation)
		}
	})
}

// FailOrder resolves an active order without trading.
func (s *PortfolioService) FailOrder(ctx context.Context, id string, orderID domain.OrderID) error {
	return s.applyEvent(ctx, id, domain.OrderFailed{OrderID: orderID}, func(o domain.Open) error {
		if _, ok := o.ActiveOrder(orderID); !ok {
			return domain.ErrOrderNotActive
		}
		return nil
	})
}

// CreditShares applies a back-office share adjustment crediting shares.
func (s *PortfolioService) CreditShares(ctx context.Context, id, symbol string, shares int64) error {
	if symbol == "" || shares <= 0 {
		return fmt.Errorf("portfolio_service: credit shares %s: symbol and positive shares required: %w", id, domain.ErrInvariantViolation)
	}
	return s.applyEvent(ctx, id, domain.SharesCredited{Symbol: symbol, Shares: shares}, nil)
}

// DebitShares applies a back-office share adjustment debiting shares.
func (s *PortfolioService) DebitShares(ctx context.Context, id, symbol string, shares int64) error {
	if symbol == "" || shares <= 0 {
		return fmt.Errorf("portfolio_service: debit shares %s: symbol and positive shares required: %w", id, domain.ErrInvariantViolation)
	}
	return s.applyEvent(ctx, id, domain.SharesDebited{Symbol: symbol, Shares: shares}, func(o domain.Open) error {
		if o.Holdings().ShareCount(symbol) < shares {
			return domain.ErrInsufficientShares
		}
		return nil
	})
}

// Liquidate moves an open portfolio into the winding-down phase. The phase
// change is a constructor, not a journal event; it is recorded in the summary
// projection. All orders must have resolved first, because order bookkeeping
// is not retained past this point.
func (s *PortfolioService) Liquidate(ctx context.Context, id string) error {
	unlock, err := s.locks.Acquire(ctx, id, s.lockTTL)
	if err != nil {
		return fmt.Errorf("portfolio_service: liquidate %s: %w", id, err)
	}
	defer unlock()

	state, seqNo, err := s.loadState(ctx, id)
	if err != nil {
		return fmt.Errorf("portfolio_service: liquidate %s: %w", id, err)
	}

	open, ok := state.(domain.Open)
	if !ok {
		return fmt.Errorf("portfolio_service: liquidate %s: %w", id, domain.ErrPortfolioClosed)
	}
	if open.ActiveOrderCount() > 0 {
		return fmt.Errorf("portfolio_service: liquidate %s: %w", id, domain.ErrOrderStillActive)
	}

	next := open.BeginLiquidation()
	if err := s.persistPhase(ctx, id, next, seqNo); err != nil {
		return fmt.Errorf("portfolio_service: liquidate %s: %w", id, err)
	}

	s.auditLog(ctx, "portfolio_liquidating", map[string]any{"portfolio_id": id})
	s.logger.InfoContext(ctx, "portfolio_service: portfolio liquidating",
		slog.String("portfolio_id", id),
	)
	return nil
}

// Close moves a liquidating portfolio into its terminal phase.
func (s *PortfolioService) Close(ctx context.Context, id string) error {
	unlock, err := s.locks.Acquire(ctx, id, s.lockTTL)
	if err != nil {
		return fmt.Errorf("portfolio_service: close %s: %w", id, err)
	}
	defer unlock()

	state, seqNo, err := s.loadState(ctx, id)
	if err != nil {
		return fmt.Errorf("portfolio_service: close %s: %w", id, err)
	}

	liq, ok := state.(domain.Liquidating)
	if !ok {
		if _, isClosed := state.(domain.Closed); isClosed {
			return fmt.Errorf("portfolio_service: close %s: %w", id, domain.ErrPortfolioClosed)
		}
		return fmt.Errorf("portfolio_service: close %s: not liquidating: %w", id, domain.ErrNoTransition)
	}

	next := liq.Close()
	if err := s.persistPhase(ctx, id, next, seqNo); err != nil {
		return fmt.Errorf("portfolio_service: close %s: %w", id, err)
	}

	s.auditLog(ctx, "portfolio_closed", map[string]any{"portfolio_id": id})
	s.logger.InfoContext(ctx, "portfolio_service: portfolio closed",
		slog.String("portfolio_id", id),
	)
	return nil
}

// State returns the portfolio's current state and the sequence number it
// reflects, using the cache when possible and snapshot plus journal replay
// otherwise.
func (s *PortfolioService) State(ctx context.Context, id string) (domain.PortfolioState, int64, error) {
	state, seqNo, err := s.loadState(ctx, id)
	if err != nil {
		return nil, 0, fmt.Errorf("portfolio_service: state %s: %w", id, err)
	}
	return state, seqNo, nil
}

// Summary returns the portfolio's read-model row.
func (s *PortfolioService) Summary(ctx context.Context, id string) (domain.PortfolioSummary, error) {
	sum, err := s.summaries.GetByID(ctx, id)
	if err != nil {
		return domain.PortfolioSummary{}, fmt.Errorf("portfolio_service: summary %s: %w", id, err)
	}
	return sum, nil
}

// List returns portfolio summaries with optional status filter and pagination.
func (s *PortfolioService) List(ctx context.Context, opts domain.ListOpts) ([]domain.PortfolioSummary, error) {
	sums, err := s.summaries.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("portfolio_service: list: %w", err)
	}
	return sums, nil
}

// Rebuild recomputes one portfolio's snapshot and summary projection from its
// full journal, bypassing the cache. Used by the replay mode after schema
// changes or suspected projection drift.
func (s *PortfolioService) Rebuild(ctx context.Context, id string) error {
	unlock, err := s.locks.Acquire(ctx, id, s.lockTTL)
	if err != nil {
		return fmt.Errorf("portfolio_service: rebuild %s: %w", id, err)
	}
	defer unlock()

	sum, err := s.summaries.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("portfolio_service: rebuild %s: %w", id, err)
	}

	persisted, err := s.journal.Load(ctx, id, 0)
	if err != nil {
		return fmt.Errorf("portfolio_service: rebuild %s: %w", id, err)
	}

	events := make([]domain.PortfolioEvent, len(persisted))
	for i, pe := range persisted {
		events[i] = pe.Event
	}

	state, err := domain.Replay(domain.InitialState(sum.Name), events)
	if err != nil {
		return fmt.Errorf("portfolio_service: rebuild %s: journal: %w", id, err)
	}
	state = reapplyPhase(state, sum.Status)

	var seqNo int64
	if len(persisted) > 0 {
		seqNo = persisted[len(persisted)-1].SequenceNo
	}

	snap := domain.Snapshot{PortfolioID: id, SequenceNo: seqNo, State: state}
	if err := s.snapshots.Save(ctx, snap); err != nil {
		return fmt.Errorf("portfolio_service: rebuild %s: %w", id, err)
	}
	if err := s.updateSummary(ctx, id, state); err != nil {
		return fmt.Errorf("portfolio_service: rebuild %s: %w", id, err)
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.warn(ctx, "cache invalidate failed", id, err)
	}

	s.logger.InfoContext(ctx, "portfolio_service: projection rebuilt",
		slog.String("portfolio_id", id),
		slog.Int64("sequence_no", seqNo),
	)
	return nil
}

// RebuildAll rebuilds every portfolio's projections and returns how many were
// processed.
func (s *PortfolioService) RebuildAll(ctx context.Context) (int, error) {
	sums, err := s.summaries.List(ctx, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("portfolio_service: rebuild all: %w", err)
	}

	for i, sum := range sums {
		if err := s.Rebuild(ctx, sum.ID); err != nil {
			return i, err
		}
	}
	return len(sums), nil
}

// applyEvent runs the standard mutation flow for an event whose shape is fully
// known up front. The optional validate hook sees the loaded Open state before
// the event is folded.
func (s *PortfolioService) applyEvent(ctx context.Context, id string, evt domain.PortfolioEvent, validate func(domain.Open) error) error {
	return s.mutate(ctx, id, func(o domain.Open) (domain.PortfolioEvent, error) {
		if validate != nil {
			if err := validate(o); err != nil {
				return nil, err
			}
		}
		return evt, nil
	})
}

// mutate is the single write path for journal events: acquire the per-
// portfolio lock, load the state, let decide produce the event, fold it
// through Transition, and persist at the next sequence number. Publish and
// audit failures are logged but do not fail the command.
func (s *PortfolioService) mutate(ctx context.Context, id string, decide func(domain.Open) (domain.PortfolioEvent, error)) error {
	unlock, err := s.locks.Acquire(ctx, id, s.lockTTL)
	if err != nil {
		return fmt.Errorf("portfolio_service: mutate %s: %w", id, err)
	}
	defer unlock()

	state, seqNo, err := s.loadState(ctx, id)
	if err != nil {
		return fmt.Errorf("portfolio_service: mutate %s: %w", id, err)
	}

	open, ok := state.(domain.Open)
	if !ok {
		return fmt.Errorf("portfolio_service: mutate %s: %w", id, domain.ErrPortfolioClosed)
	}

	evt, err := decide(open)
	if err != nil {
		s.auditLog(ctx, "command_rejected", map[string]any{
			"portfolio_id": id,
			"reason":       err.Error(),
		})
		return fmt.Errorf("portfolio_service: mutate %s: %w", id, err)
	}

	next, err := domain.Transition(state, evt)
	if err != nil {
		s.auditLog(ctx, "event_rejected", map[string]any{
			"portfolio_id": id,
			"event":        string(evt.EventType()),
			"reason":       err.Error(),
		})
		return fmt.Errorf("portfolio_service: mutate %s: %w", id, err)
	}

	nextSeq := seqNo + 1
	if err := s.journal.Append(ctx, id, nextSeq, evt); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Another writer advanced the journal; the cached state is stale.
			if invErr := s.cache.Invalidate(ctx, id); invErr != nil {
				s.warn(ctx, "cache invalidate failed", id, invErr)
			}
		}
		return fmt.Errorf("portfolio_service: mutate %s: %w", id, err)
	}

	s.afterAppend(ctx, id, next, nextSeq, evt)
	return nil
}

// afterAppend runs the post-commit bookkeeping: snapshot, summary projection,
// cache, bus, audit. The event is already durable, so failures here only warn.
func (s *PortfolioService) afterAppend(ctx context.Context, id string, state domain.PortfolioState, seqNo int64, evt domain.PortfolioEvent) {
	if seqNo%s.snapshotInterval == 0 {
		snap := domain.Snapshot{PortfolioID: id, SequenceNo: seqNo, State: state}
		if err := s.snapshots.Save(ctx, snap); err != nil {
			s.warn(ctx, "snapshot save failed", id, err)
		}
	}

	if err := s.updateSummary(ctx, id, state); err != nil {
		s.warn(ctx, "summary update failed", id, err)
	}

	if err := s.cache.Put(ctx, id, state, seqNo); err != nil {
		s.warn(ctx, "cache put failed", id, err)
	}

	s.publish(ctx, id, seqNo, evt)

	s.auditLog(ctx, "event_accepted", map[string]any{
		"portfolio_id": id,
		"sequence_no":  seqNo,
		"event":        string(evt.EventType()),
	})
}

// persistPhase records a lifecycle phase change: summary projection, snapshot
// at the current sequence so recovery rebuilds the right variant, cache, bus.
func (s *PortfolioService) persistPhase(ctx context.Context, id string, state domain.PortfolioState, seqNo int64) error {
	if err := s.updateSummary(ctx, id, state); err != nil {
		return err
	}

	snap := domain.Snapshot{PortfolioID: id, SequenceNo: seqNo, State: state}
	if err := s.snapshots.Save(ctx, snap); err != nil {
		return err
	}

	if err := s.cache.Put(ctx, id, state, seqNo); err != nil {
		s.warn(ctx, "cache put failed", id, err)
	}

	payload, _ := json.Marshal(map[string]any{
		"portfolio_id": id,
		"status":       string(state.Status()),
	})
	if err := s.bus.Publish(ctx, ChannelPortfolioEvents, payload); err != nil {
		s.warn(ctx, "bus publish failed", id, err)
	}
	if err := s.bus.Publish(ctx, "portfolio:"+id, payload); err != nil {
		s.warn(ctx, "bus publish failed", id, err)
	}
	return nil
}

// updateSummary projects the state into the read-model row, preserving the
// name and loyalty level on variants that no longer carry them.
func (s *PortfolioService) updateSummary(ctx context.Context, id string, state domain.PortfolioState) error {
	sum, err := s.summaries.GetByID(ctx, id)
	if err != nil {
		return err
	}

	sum.Status = state.Status()
	sum.Funds = state.Funds()
	switch st := state.(type) {
	case domain.Open:
		sum.Name = st.Name()
		sum.LoyaltyLevel = st.LoyaltyLevel()
	case domain.Liquidating:
		sum.Name = st.Name()
		sum.LoyaltyLevel = st.LoyaltyLevel()
	case domain.Closed:
		// Terminal variant carries no data; keep the projected columns.
	}
	sum.UpdatedAt = time.Now().UTC()

	return s.summaries.Update(ctx, sum)
}

// loadState resolves the portfolio's current state: cache hit, or snapshot
// plus journal suffix replay, or full replay from the initial state. The
// lifecycle phase lives in the summary projection, not the journal, so it is
// re-applied after replay.
func (s *PortfolioService) loadState(ctx context.Context, id string) (domain.PortfolioState, int64, error) {
	if state, seqNo, err := s.cache.Get(ctx, id); err == nil {
		return state, seqNo, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.warn(ctx, "cache get failed", id, err)
	}

	sum, err := s.summaries.GetByID(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	var state domain.PortfolioState
	var fromSeq int64

	snap, err := s.snapshots.Load(ctx, id)
	switch {
	case err == nil:
		state = snap.State
		fromSeq = snap.SequenceNo
	case errors.Is(err, domain.ErrNotFound):
		state = domain.InitialState(sum.Name)
		fromSeq = 0
	default:
		return nil, 0, err
	}

	persisted, err := s.journal.Load(ctx, id, fromSeq)
	if err != nil {
		return nil, 0, err
	}

	seqNo := fromSeq
	if open, ok := state.(domain.Open); ok && len(persisted) > 0 {
		events := make([]domain.PortfolioEvent, len(persisted))
		for i, pe := range persisted {
			events[i] = pe.Event
		}
		replayed, err := domain.Replay(open, events)
		if err != nil {
			return nil, 0, fmt.Errorf("journal %s: %w", id, err)
		}
		state = replayed
		seqNo = persisted[len(persisted)-1].SequenceNo
	} else if len(persisted) > 0 {
		// Only an Open portfolio can accept events, so journal rows past a
		// Liquidating or Closed snapshot mean the journal and the snapshot
		// disagree. Fail the read rather than serve a state that ignores
		// recorded events.
		return nil, 0, fmt.Errorf(
			"journal %s: %d events recorded past %s snapshot at seq %d: %w",
			id, len(persisted), state.Status(), fromSeq, domain.ErrInvariantViolation,
		)
	}

	state = reapplyPhase(state, sum.Status)

	if err := s.cache.Put(ctx, id, state, seqNo); err != nil {
		s.warn(ctx, "cache put failed", id, err)
	}
	return state, seqNo, nil
}

// reapplyPhase advances a replayed Open state to the phase recorded in the
// summary projection. Phases only move forward, so the walk is at most two
// constructor calls.
func reapplyPhase(state domain.PortfolioState, status domain.PortfolioStatus) domain.PortfolioState {
	open, ok := state.(domain.Open)
	if !ok {
		return state
	}
	switch status {
	case domain.StatusLiquidating:
		return open.BeginLiquidation()
	case domain.StatusClosed:
		return open.BeginLiquidation().Close()
	default:
		return open
	}
}

// publish sends the accepted event envelope to the broadcast channel, the
// per-portfolio channel, and the durable journal stream.
func (s *PortfolioService) publish(ctx context.Context, id string, seqNo int64, evt domain.PortfolioEvent) {
	data, err := domain.MarshalEvent(evt)
	if err != nil {
		s.warn(ctx, "event encode failed", id, err)
		return
	}
	payload, err := json.Marshal(map[string]any{
		"portfolio_id": id,
		"sequence_no":  seqNo,
		"event":        json.RawMessage(data),
	})
	if err != nil {
		s.warn(ctx, "envelope encode failed", id, err)
		return
	}

	if err := s.bus.Publish(ctx, ChannelPortfolioEvents, payload); err != nil {
		s.warn(ctx, "bus publish failed", id, err)
	}
	if err := s.bus.Publish(ctx, "portfolio:"+id, payload); err != nil {
		s.warn(ctx, "bus publish failed", id, err)
	}
	if err := s.bus.StreamAppend(ctx, StreamPortfolioJournal, payload); err != nil {
		s.warn(ctx, "stream append failed", id, err)
	}
}

func (s *PortfolioService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "portfolio_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PortfolioService) warn(ctx context.Context, msg, id string, err error) {
	s.logger.WarnContext(ctx, "portfolio_service: "+msg,
		slog.String("portfolio_id", id),
		slog.String("error", err.Error()),
	)
}
