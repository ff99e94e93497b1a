package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Holdings maps an instrument symbol to the number of shares held. It is an
// immutable value: Add and Remove return a new Holdings and never mutate the
// receiver, so prior states produced by the reducer stay valid. A symbol with
// zero shares is equivalent to absence and is never stored.
type Holdings struct {
	shares map[string]int64
}

// EmptyHoldings returns a Holdings with no positions.
func EmptyHoldings() Holdings {
	return Holdings{}
}

// ShareCount returns the number of shares held for symbol, zero if absent.
func (h Holdings) ShareCount(symbol string) int64 {
	return h.shares[symbol]
}

// Size returns the number of distinct symbols held.
func (h Holdings) Size() int {
	return len(h.shares)
}

// IsEmpty reports whether no shares are held at all.
func (h Holdings) IsEmpty() bool {
	return len(h.shares) == 0
}

// Symbols returns the held symbols in lexicographic order.
func (h Holdings) Symbols() []string {
	out := make([]string, 0, len(h.shares))
	for sym := range h.shares {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Add returns a new Holdings with the share count for symbol increased,
// creating the entry if absent.
func (h Holdings) Add(symbol string, shares int64) Holdings {
	if shares == 0 {
		return h
	}
	return h.with(symbol, h.shares[symbol]+shares)
}

// Remove returns a new Holdings with the share count for symbol decreased.
// Removing more shares than are held is an invariant violation: it means
// order fulfillment disagrees with prior holdings state, and it is reported
// rather than clamped to zero.
func (h Holdings) Remove(symbol string, shares int64) (Holdings, error) {
	held := h.shares[symbol]
	if shares > held {
		return Holdings{}, fmt.Errorf(
			"holdings: remove %d %s exceeds held %d: %w",
			shares, symbol, held, ErrInvariantViolation,
		)
	}
	return h.with(symbol, held-shares), nil
}

// with copies the underlying map, replacing the entry for symbol. A zero
// count drops the entry.
func (h Holdings) with(symbol string, count int64) Holdings {
	next := make(map[string]int64, len(h.shares)+1)
	for sym, n := range h.shares {
		next[sym] = n
	}
	if count == 0 {
		delete(next, symbol)
	} else {
		next[symbol] = count
	}
	if len(next) == 0 {
		return Holdings{}
	}
	return Holdings{shares: next}
}

// MarshalJSON encodes the holdings as a plain symbol→count object.
func (h Holdings) MarshalJSON() ([]byte, error) {
	if h.shares == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(h.shares)
}

// UnmarshalJSON decodes a symbol→count object, dropping zero entries.
func (h *Holdings) UnmarshalJSON(data []byte) error {
	var m map[string]int64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	for sym, n := range m {
		if n == 0 {
			delete(m, sym)
		}
	}
	if len(m) == 0 {
		*h = Holdings{}
		return nil
	}
	*h = Holdings{shares: m}
	return nil
}
