package domain

import (
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"
)

// PortfolioStatus names the lifecycle phase of a portfolio state variant.
type PortfolioStatus string

const (
	StatusOpen        PortfolioStatus = "open"
	StatusLiquidating PortfolioStatus = "liquidating"
	StatusClosed      PortfolioStatus = "closed"
)

// PortfolioState is the closed sum of the three lifecycle variants: Open,
// Liquidating, and Closed. Exactly one variant is active at a time and the
// lifecycle only moves forward; there is no constructor leading backward.
//
// States are immutable values. The only way to derive a new state from events
// is Transition; the only way to advance the phase is BeginLiquidation and
// Close, invoked by the command layer.
type PortfolioState interface {
	// Funds returns the cash balance observed in this state. Closed
	// portfolios always report zero.
	Funds() decimal.Decimal

	// Status identifies the lifecycle phase of the variant.
	Status() PortfolioStatus

	isPortfolioState()
}

// Visitor dispatches exhaustively over the three state variants. Because it
// is an interface, any implementation must handle all three at compile time;
// there is no default branch to silently swallow a variant.
type Visitor[T any] interface {
	VisitOpen(Open) T
	VisitLiquidating(Liquidating) T
	VisitClosed(Closed) T
}

// VisitState applies v to the concrete variant of s. The state sum is sealed
// within this package, so the three cases are exhaustive; anything else is an
// internal fault and panics rather than being misread as a valid dispatch.
func VisitState[T any](s PortfolioState, v Visitor[T]) T {
	switch st := s.(type) {
	case Open:
		return v.VisitOpen(st)
	case Liquidating:
		return v.VisitLiquidating(st)
	case Closed:
		return v.VisitClosed(st)
	default:
		panic("domain: unknown portfolio state variant")
	}
}

// ---------------------------------------------------------------------------
// Open
// ---------------------------------------------------------------------------

// Open is the normal trading phase. It carries the cash balance, the holdings
// ledger, and order bookkeeping: active orders keyed by ID with their original
// placement details, and the set of resolved order IDs. An order ID belongs
// to at most one of the two collections.
type Open struct {
	funds           decimal.Decimal
	name            string
	loyaltyLevel    LoyaltyLevel
	holdings        Holdings
	activeOrders    map[OrderID]OrderPlaced
	completedOrders map[OrderID]struct{}
}

// InitialState returns the Open state of a freshly opened portfolio: zero
// funds, default loyalty level, no holdings, no orders.
func InitialState(name string) Open {
	return Open{
		funds:        decimal.Zero,
		name:         name,
		loyaltyLevel: DefaultLoyaltyLevel,
		holdings:     EmptyHoldings(),
	}
}

func (o Open) Funds() decimal.Decimal     { return o.funds }
func (o Open) Status() PortfolioStatus    { return StatusOpen }
func (o Open) Name() string               { return o.name }
func (o Open) LoyaltyLevel() LoyaltyLevel { return o.loyaltyLevel }
func (o Open) Holdings() Holdings         { return o.holdings }

// ActiveOrder returns the placement details of an unresolved order.
func (o Open) ActiveOrder(id OrderID) (OrderPlaced, bool) {
	placed, ok := o.activeOrders[id]
	return placed, ok
}

// ActiveOrders returns the unresolved orders sorted by order ID.
func (o Open) ActiveOrders() []OrderPlaced {
	out := make([]OrderPlaced, 0, len(o.activeOrders))
	for _, placed := range o.activeOrders {
		out = append(out, placed)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

// ActiveOrderCount returns the number of unresolved orders.
func (o Open) ActiveOrderCount() int { return len(o.activeOrders) }

// IsCompleted reports whether the order ID has resolved (bought, sold, or
// failed).
func (o Open) IsCompleted(id OrderID) bool {
	_, ok := o.completedOrders[id]
	return ok
}

// CompletedOrders returns the resolved order IDs in lexicographic order.
func (o Open) CompletedOrders() []OrderID {
	out := make([]OrderID, 0, len(o.completedOrders))
	for id := range o.completedOrders {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BeginLiquidation advances the portfolio to the winding-down phase. Order
// bookkeeping is not retained past this point.
func (o Open) BeginLiquidation() Liquidating {
	return Liquidating{
		funds:        o.funds,
		name:         o.name,
		loyaltyLevel: o.loyaltyLevel,
		holdings:     o.holdings,
	}
}

func (Open) isPortfolioState() {}

// withFunds returns a copy of the state with the cash balance replaced.
func (o Open) withFunds(funds decimal.Decimal) Open {
	o.funds = funds
	return o
}

// withHoldings returns a copy of the state with the holdings ledger replaced.
func (o Open) withHoldings(h Holdings) Open {
	o.holdings = h
	return o
}

// withOrderPlaced returns a copy of the state with the order recorded as
// active. The order maps are copied, never aliased, so earlier states are
// unaffected.
func (o Open) withOrderPlaced(evt OrderPlaced) Open {
	active := make(map[OrderID]OrderPlaced, len(o.activeOrders)+1)
	for id, placed := range o.activeOrders {
		active[id] = placed
	}
	active[evt.OrderID] = evt
	o.activeOrders = active
	return o
}

// withOrderResolved returns a copy of the state with the order ID moved from
// the active map to the completed set.
func (o Open) withOrderResolved(id OrderID) Open {
	active := make(map[OrderID]OrderPlaced, len(o.activeOrders))
	for oid, placed := range o.activeOrders {
		if oid != id {
			active[oid] = placed
		}
	}
	completed := make(map[OrderID]struct{}, len(o.completedOrders)+1)
	for oid := range o.completedOrders {
		completed[oid] = struct{}{}
	}
	completed[id] = struct{}{}

	o.activeOrders = active
	o.completedOrders = completed
	return o
}

// ---------------------------------------------------------------------------
// Liquidating
// ---------------------------------------------------------------------------

// Liquidating is the winding-down phase: the balance and holdings are still
// observable while positions are unwound, but no event in the journal has a
// defined effect on it.
type Liquidating struct {
	funds        decimal.Decimal
	name         string
	loyaltyLevel LoyaltyLevel
	holdings     Holdings
}

func (l Liquidating) Funds() decimal.Decimal     { return l.funds }
func (l Liquidating) Status() PortfolioStatus    { return StatusLiquidating }
func (l Liquidating) Name() string               { return l.name }
func (l Liquidating) LoyaltyLevel() LoyaltyLevel { return l.loyaltyLevel }
func (l Liquidating) Holdings() Holdings         { return l.holdings }

// Close advances the portfolio to its terminal phase.
func (l Liquidating) Close() Closed { return Closed{} }

func (Liquidating) isPortfolioState() {}

// ---------------------------------------------------------------------------
// Closed
// ---------------------------------------------------------------------------

// Closed is the terminal, absorbing phase. It carries no data; funds are
// observed as zero and every event yields no transition.
type Closed struct{}

func (Closed) Funds() decimal.Decimal  { return decimal.Zero }
func (Closed) Status() PortfolioStatus { return StatusClosed }

func (Closed) isPortfolioState() {}

// ---------------------------------------------------------------------------
// JSON
// ---------------------------------------------------------------------------

// openJSON is the storage shape of an Open state.
type openJSON struct {
	Funds           decimal.Decimal         `json:"funds"`
	Name            string                  `json:"name"`
	LoyaltyLevel    LoyaltyLevel            `json:"loyalty_level"`
	Holdings        Holdings                `json:"holdings"`
	ActiveOrders    map[OrderID]OrderPlaced `json:"active_orders"`
	CompletedOrders []OrderID               `json:"completed_orders"`
}

// MarshalJSON encodes the Open state for snapshots and caches.
func (o Open) MarshalJSON() ([]byte, error) {
	return json.Marshal(openJSON{
		Funds:           o.funds,
		Name:            o.name,
		LoyaltyLevel:    o.loyaltyLevel,
		Holdings:        o.holdings,
		ActiveOrders:    o.activeOrders,
		CompletedOrders: o.CompletedOrders(),
	})
}

// UnmarshalJSON decodes an Open state produced by MarshalJSON.
func (o *Open) UnmarshalJSON(data []byte) error {
	var dto openJSON
	if err := json.Unmarshal(data, &dto); err != nil {
		return err
	}
	var completed map[OrderID]struct{}
	if len(dto.CompletedOrders) > 0 {
		completed = make(map[OrderID]struct{}, len(dto.CompletedOrders))
		for _, id := range dto.CompletedOrders {
			completed[id] = struct{}{}
		}
	}
	*o = Open{
		funds:           dto.Funds,
		name:            dto.Name,
		loyaltyLevel:    dto.LoyaltyLevel,
		holdings:        dto.Holdings,
		activeOrders:    dto.ActiveOrders,
		completedOrders: completed,
	}
	return nil
}

// liquidatingJSON is the storage shape of a Liquidating state.
type liquidatingJSON struct {
	Funds        decimal.Decimal `json:"funds"`
	Name         string          `json:"name"`
	LoyaltyLevel LoyaltyLevel    `json:"loyalty_level"`
	Holdings     Holdings        `json:"holdings"`
}

// MarshalJSON encodes the Liquidating state for snapshots and caches.
func (l Liquidating) MarshalJSON() ([]byte, error) {
	return json.Marshal(liquidatingJSON{
		Funds:        l.funds,
		Name:         l.name,
		LoyaltyLevel: l.loyaltyLevel,
		Holdings:     l.holdings,
	})
}

// UnmarshalJSON decodes a Liquidating state produced by MarshalJSON.
func (l *Liquidating) UnmarshalJSON(data []byte) error {
	var dto liquidatingJSON
	if err := json.Unmarshal(data, &dto); err != nil {
		return err
	}
	*l = Liquidating{
		funds:        dto.Funds,
		name:         dto.Name,
		loyaltyLevel: dto.LoyaltyLevel,
		holdings:     dto.Holdings,
	}
	return nil
}
