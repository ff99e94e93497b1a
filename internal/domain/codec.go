package domain

import (
	"encoding/json"
	"fmt"
)

// eventEnvelope is the wire shape of a journaled event: a type tag plus the
// event's own JSON body.
type eventEnvelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalEvent encodes an event into its tagged JSON envelope. The same
// encoding is used for journal rows, bus payloads, and archive exports.
func MarshalEvent(evt PortfolioEvent) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", evt.EventType(), err)
	}
	return json.Marshal(eventEnvelope{Type: evt.EventType(), Data: data})
}

// UnmarshalEvent decodes a tagged JSON envelope back into a concrete event.
// An unknown type tag is a decode error; it is never skipped or mapped to
// NoTransition.
func UnmarshalEvent(data []byte) (PortfolioEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal event envelope: %w", err)
	}

	var (
		evt PortfolioEvent
		err error
	)
	switch env.Type {
	case EventTransferReceived:
		var e TransferReceived
		err = json.Unmarshal(env.Data, &e)
		evt = e
	case EventTransferSent:
		var e TransferSent
		err = json.Unmarshal(env.Data, &e)
		evt = e
	case EventSharesCredited:
		var e SharesCredited
		err = json.Unmarshal(env.Data, &e)
		evt = e
	case EventSharesDebited:
		var e SharesDebited
		err = json.Unmarshal(env.Data, &e)
		evt = e
	case EventOrderPlaced:
		var e OrderPlaced
		err = json.Unmarshal(env.Data, &e)
		evt = e
	case EventSharesBought:
		var e SharesBought
		err = json.Unmarshal(env.Data, &e)
		evt = e
	case EventSharesSold:
		var e SharesSold
		err = json.Unmarshal(env.Data, &e)
		evt = e
	case EventOrderFailed:
		var e OrderFailed
		err = json.Unmarshal(env.Data, &e)
		evt = e
	default:
		return nil, fmt.Errorf("unmarshal event: unknown type %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal event %s: %w", env.Type, err)
	}
	return evt, nil
}

// stateEnvelope is the wire shape of a persisted state: the lifecycle phase
// plus the variant's own JSON body.
type stateEnvelope struct {
	Status PortfolioStatus `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// MarshalState encodes a state into its tagged JSON envelope, used for
// snapshot rows and the Redis state cache.
func MarshalState(state PortfolioState) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal state %s: %w", state.Status(), err)
	}
	return json.Marshal(stateEnvelope{Status: state.Status(), Data: data})
}

// UnmarshalState decodes a tagged JSON envelope back into a concrete state
// variant.
func UnmarshalState(data []byte) (PortfolioState, error) {
	var env stateEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal state envelope: %w", err)
	}

	switch env.Status {
	case StatusOpen:
		var o Open
		if err := json.Unmarshal(env.Data, &o); err != nil {
			return nil, fmt.Errorf("unmarshal open state: %w", err)
		}
		return o, nil
	case StatusLiquidating:
		var l Liquidating
		if err := json.Unmarshal(env.Data, &l); err != nil {
			return nil, fmt.Errorf("unmarshal liquidating state: %w", err)
		}
		return l, nil
	case StatusClosed:
		return Closed{}, nil
	default:
		return nil, fmt.Errorf("unmarshal state: unknown status %q", env.Status)
	}
}
