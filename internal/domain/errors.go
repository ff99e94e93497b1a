package domain

import "errors"

var (
	// ErrNoTransition is the typed "this event has no effect in this state"
	// outcome of Transition. It is an expected result, not a fault: every
	// event applied to a Closed portfolio, and every event applied to a
	// Liquidating one, resolves to it.
	ErrNoTransition = errors.New("no transition for event in current state")

	// ErrInvariantViolation marks an event that would corrupt state if
	// applied, e.g. driving funds or a holding below zero. Unlike
	// ErrNoTransition it indicates an inconsistency upstream and must be
	// surfaced to the caller, never silently absorbed.
	ErrInvariantViolation = errors.New("invariant violation")

	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("sequence conflict")
	ErrPortfolioClosed    = errors.New("portfolio closed")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrOrderNotActive     = errors.New("order not active")
	ErrOrderStillActive   = errors.New("order still active")
	ErrLockHeld           = errors.New("lock already held")
)
