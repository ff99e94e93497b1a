package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Transition is the state transition function of the portfolio aggregate:
// from a given state and event it produces the resulting state. It is pure
// and deterministic, which lets the same function serve live command
// processing, journal replay after a restart, and historical projections.
//
// Dispatch is a pair of type switches over the sealed state and event sums;
// there is no reflection and no catch-all, so an inapplicable event
// (ErrNoTransition) can never mask an internal fault. Events that would drive
// funds or a holding negative return an error wrapping ErrInvariantViolation
// instead of corrupting state.
func Transition(state PortfolioState, evt PortfolioEvent) (PortfolioState, error) {
	switch st := state.(type) {
	case Open:
		return st.apply(evt)
	case Liquidating:
		// No event in the journal affects a liquidating portfolio.
		return nil, ErrNoTransition
	case Closed:
		// Terminal and absorbing: the portfolio no longer reacts to anything.
		return nil, ErrNoTransition
	default:
		panic("domain: unknown portfolio state variant")
	}
}

// Replay folds an ordered event sequence through Transition starting from
// initial. A NoTransition during replay means the journal contains an event
// that was once accepted but no longer applies, i.e. a corrupt or misordered
// journal, so it is surfaced as an error rather than skipped.
func Replay(initial PortfolioState, events []PortfolioEvent) (PortfolioState, error) {
	state := initial
	for i, evt := range events {
		next, err := Transition(state, evt)
		if err != nil {
			return nil, fmt.Errorf("replay event %d (%s): %w", i, evt.EventType(), err)
		}
		state = next
	}
	return state, nil
}

// apply maps each event type with a defined effect in the Open phase to the
// resulting state. Event types without a mapping yield ErrNoTransition.
func (o Open) apply(evt PortfolioEvent) (PortfolioState, error) {
	switch e := evt.(type) {
	case TransferReceived:
		return o.withFunds(o.funds.Add(e.Amount)), nil

	case TransferSent:
		funds, err := o.debitFunds(e.Amount)
		if err != nil {
			return nil, err
		}
		return o.withFunds(funds), nil

	case SharesCredited:
		return o.withHoldings(o.holdings.Add(e.Symbol, e.Shares)), nil

	case SharesDebited:
		holdings, err := o.holdings.Remove(e.Symbol, e.Shares)
		if err != nil {
			return nil, err
		}
		return o.withHoldings(holdings), nil

	case OrderPlaced:
		return o.withOrderPlaced(e), nil

	case SharesBought:
		cost := e.SharePrice.Mul(decimal.NewFromInt(e.Shares))
		funds, err := o.debitFunds(cost)
		if err != nil {
			return nil, err
		}
		return o.
			withHoldings(o.holdings.Add(e.Symbol, e.Shares)).
			withOrderResolved(e.OrderID).
			withFunds(funds), nil

	case SharesSold:
		holdings, err := o.holdings.Remove(e.Symbol, e.Shares)
		if err != nil {
			return nil, err
		}
		proceeds := e.SharePrice.Mul(decimal.NewFromInt(e.Shares))
		return o.
			withHoldings(holdings).
			withOrderResolved(e.OrderID).
			withFunds(o.funds.Add(proceeds)), nil

	case OrderFailed:
		// Resolved without any holdings or funds change.
		return o.withOrderResolved(e.OrderID), nil

	default:
		return nil, ErrNoTransition
	}
}

// debitFunds subtracts amount from the cash balance, refusing to go negative.
func (o Open) debitFunds(amount decimal.Decimal) (decimal.Decimal, error) {
	next := o.funds.Sub(amount)
	if next.IsNegative() {
		return decimal.Zero, fmt.Errorf(
			"funds: debit %s exceeds balance %s: %w",
			amount, o.funds, ErrInvariantViolation,
		)
	}
	return next, nil
}
