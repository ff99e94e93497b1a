package domain

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestEventCodecRoundTrip(t *testing.T) {
	price := decimal.RequireFromString("12.34")

	events := []PortfolioEvent{
		TransferReceived{Amount: price},
		OrderPlaced{OrderID: "o1", Symbol: "ACME", Shares: 10, Side: OrderSideSell},
		SharesBought{OrderID: "o2", Symbol: "GLOBX", Shares: 3, SharePrice: price},
		OrderFailed{OrderID: "o3"},
	}

	for _, evt := range events {
		data, err := MarshalEvent(evt)
		if err != nil {
			t.Fatalf("MarshalEvent(%s): %v", evt.EventType(), err)
		}
		decoded, err := UnmarshalEvent(data)
		if err != nil {
			t.Fatalf("UnmarshalEvent(%s): %v", evt.EventType(), err)
		}
		if decoded.EventType() != evt.EventType() {
			t.Errorf("round trip changed type: %s -> %s", evt.EventType(), decoded.EventType())
		}
	}

	// Spot-check one payload survives with its values intact.
	data, err := MarshalEvent(SharesBought{OrderID: "o9", Symbol: "ACME", Shares: 5, SharePrice: price})
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := UnmarshalEvent(data)
	if err != nil {
		t.Fatal(err)
	}
	bought := decoded.(SharesBought)
	if bought.OrderID != "o9" || bought.Symbol != "ACME" || bought.Shares != 5 || !bought.SharePrice.Equal(price) {
		t.Errorf("payload mangled in round trip: %+v", bought)
	}
}

func TestUnmarshalEventUnknownType(t *testing.T) {
	_, err := UnmarshalEvent([]byte(`{"type":"dividend_paid","data":{}}`))
	if err == nil {
		t.Fatal("unknown event type must fail to decode, not be skipped")
	}
	if !strings.Contains(err.Error(), "dividend_paid") {
		t.Errorf("error should name the unknown type, got %v", err)
	}
}

func TestStateCodecRoundTrip(t *testing.T) {
	open, err := Replay(InitialState("Alice"), []PortfolioEvent{
		TransferReceived{Amount: decimal.RequireFromString("1000")},
		OrderPlaced{OrderID: "a", Symbol: "ACME", Shares: 10, Side: OrderSideBuy},
		SharesBought{OrderID: "a", Symbol: "ACME", Shares: 10, SharePrice: decimal.RequireFromString("12.50")},
		OrderPlaced{OrderID: "b", Symbol: "ACME", Shares: 2, Side: OrderSideSell},
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	states := []PortfolioState{
		open,
		open.(Open).BeginLiquidation(),
		Closed{},
	}

	for _, state := range states {
		t.Run(string(state.Status()), func(t *testing.T) {
			data, err := MarshalState(state)
			if err != nil {
				t.Fatalf("MarshalState: %v", err)
			}
			decoded, err := UnmarshalState(data)
			if err != nil {
				t.Fatalf("UnmarshalState: %v", err)
			}
			if decoded.Status() != state.Status() {
				t.Errorf("status changed: %s -> %s", state.Status(), decoded.Status())
			}
			if !decoded.Funds().Equal(state.Funds()) {
				t.Errorf("funds changed: %s -> %s", state.Funds(), decoded.Funds())
			}
		})
	}

	// Order bookkeeping must survive the open-state round trip.
	data, err := MarshalState(open)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := UnmarshalState(data)
	if err != nil {
		t.Fatal(err)
	}
	reopened := decoded.(Open)
	if _, ok := reopened.ActiveOrder("b"); !ok {
		t.Error("active order lost in round trip")
	}
	if !reopened.IsCompleted("a") {
		t.Error("completed order lost in round trip")
	}
	if got := reopened.Holdings().ShareCount("ACME"); got != 10 {
		t.Errorf("holdings lost in round trip: ACME = %d, want 10", got)
	}
}

func TestUnmarshalStateUnknownStatus(t *testing.T) {
	if _, err := UnmarshalState([]byte(`{"status":"suspended","data":{}}`)); err == nil {
		t.Fatal("unknown status must fail to decode")
	}
}
