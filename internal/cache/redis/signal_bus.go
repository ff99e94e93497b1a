package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/Dineshdataengineer/reactive-stock-trader/internal/domain"
)

const (
	// journalStreamMaxLen bounds the durable event streams. The stream is a
	// relay buffer for projections, not the journal itself, so old entries
	// can be trimmed once consumers have moved past them.
	journalStreamMaxLen int64 = 10000

	// subscriptionBuffer absorbs bursts of accepted events between the
	// pub/sub reader goroutine and the hub. One command produces at most
	// two publishes, so this covers well over a hundred commands in flight.
	subscriptionBuffer = 128

	// streamPayloadField is the single field each stream entry carries.
	streamPayloadField = "payload"
)

// SignalBus fans accepted portfolio events out over Redis. Pub/sub channels
// give the WebSocket hub live, lossy delivery; streams give projections a
// durable, replayable tail of the same envelopes.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus on the shared Redis connection.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Raw()}
}

// Publish delivers an event envelope to every live subscriber of the channel.
// A publish with no subscribers is not an error.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a pub/sub subscription and returns a channel of deliveries.
// A glob pattern ("portfolio:*") subscribes via PSUBSCRIBE; either way each
// delivery carries the concrete channel the payload was published to, so the
// hub can route per-portfolio events to the clients that asked for them.
//
// The subscription and the returned channel are closed when ctx is cancelled.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan domain.BusMessage, error) {
	var pubsub *redis.PubSub
	if isPattern(channel) {
		pubsub = sb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, channel)
	}

	// Wait for the server's confirmation so a broken connection surfaces
	// here instead of as a silently dead subscription.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan domain.BusMessage, subscriptionBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		deliveries := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-deliveries:
				if !ok {
					return
				}
				// msg.Channel is the concrete channel even for pattern
				// subscriptions; the pattern itself is in msg.Pattern.
				delivery := domain.BusMessage{
					Channel: msg.Channel,
					Payload: []byte(msg.Payload),
				}
				select {
				case out <- delivery:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// isPattern reports whether the channel name contains glob metacharacters and
// therefore needs PSUBSCRIBE.
func isPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// StreamAppend appends an event envelope to a stream, trimming it to roughly
// journalStreamMaxLen entries (MAXLEN ~, so trimming is amortized).
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: journalStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			streamPayloadField: payload,
		},
	}
	if err := sb.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries recorded after lastID. Use "0" to
// read from the start of the stream. No pending entries is (nil, nil), not an
// error, so pollers can loop on the result.
func (sb *SignalBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	args := &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   int64(count),
	}

	results, err := sb.rdb.XRead(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	var messages []domain.StreamMessage
	for _, s := range results {
		for _, msg := range s.Messages {
			data, ok := streamPayload(msg.Values)
			if !ok {
				continue
			}
			messages = append(messages, domain.StreamMessage{
				ID:      msg.ID,
				Payload: data,
			})
		}
	}

	return messages, nil
}

// streamPayload extracts the payload field from a raw stream entry. Entries
// written by other producers without the field are skipped by the caller.
func streamPayload(values map[string]interface{}) ([]byte, bool) {
	raw, ok := values[streamPayloadField]
	if !ok {
		return nil, false
	}
	switch v := raw.(type) {
	case string:
		return []byte(v), true
	case []byte:
		return v, true
	default:
		return nil, false
	}
}

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)
