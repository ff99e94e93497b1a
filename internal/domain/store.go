package domain

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Status PortfolioStatus // empty matches all
}

// PersistedEvent is one journal row: an event together with the portfolio it
// belongs to and its position in that portfolio's history.
type PersistedEvent struct {
	PortfolioID string
	SequenceNo  int64
	Event       PortfolioEvent
	RecordedAt  time.Time
}

// JournalStore is the append-only event journal. Sequence numbers start at 1
// and are dense per portfolio; the total order of one portfolio's history is
// exactly its sequence numbers.
type JournalStore interface {
	// Append writes an event at the given sequence number. If the slot is
	// already taken — another writer got there first — it returns
	// ErrConflict and writes nothing.
	Append(ctx context.Context, portfolioID string, seqNo int64, evt PortfolioEvent) error

	// Load returns the ordered events with sequence number > afterSeq.
	// Pass 0 to load the full history.
	Load(ctx context.Context, portfolioID string, afterSeq int64) ([]PersistedEvent, error)

	// LastSequence returns the highest sequence number in the portfolio's
	// journal, zero when the journal is empty.
	LastSequence(ctx context.Context, portfolioID string) (int64, error)
}

// Snapshot is a persisted state together with the sequence number of the last
// event folded into it.
type Snapshot struct {
	PortfolioID string
	SequenceNo  int64
	State       PortfolioState
	TakenAt     time.Time
}

// SnapshotStore persists one recovery snapshot per portfolio so that a
// restart replays only the journal suffix after the snapshot.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	// Load returns ErrNotFound when the portfolio has no snapshot yet.
	Load(ctx context.Context, portfolioID string) (Snapshot, error)
	Delete(ctx context.Context, portfolioID string) error
}

// PortfolioSummary is the read-model row of a portfolio, maintained by the
// command layer after every accepted event. It also records the lifecycle
// phase, which the event journal does not carry.
type PortfolioSummary struct {
	ID           string
	Name         string
	Status       PortfolioStatus
	Funds        decimal.Decimal
	LoyaltyLevel LoyaltyLevel
	OpenedAt     time.Time
	UpdatedAt    time.Time
}

// SummaryStore persists the portfolio read model.
type SummaryStore interface {
	Create(ctx context.Context, s PortfolioSummary) error
	Update(ctx context.Context, s PortfolioSummary) error
	GetByID(ctx context.Context, id string) (PortfolioSummary, error)
	List(ctx context.Context, opts ListOpts) ([]PortfolioSummary, error)
	Count(ctx context.Context) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of accepted commands and
// rejected events.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// StateCache holds the latest materialized state per portfolio so reads skip
// snapshot loading and journal replay.
type StateCache interface {
	// Put stores the state together with the sequence number it reflects.
	Put(ctx context.Context, portfolioID string, state PortfolioState, seqNo int64) error
	// Get returns ErrNotFound on a cache miss.
	Get(ctx context.Context, portfolioID string) (PortfolioState, int64, error)
	Invalidate(ctx context.Context, portfolioID string) error
}

// StreamMessage is a single entry read from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// BusMessage is one pub/sub delivery. Channel is the concrete channel the
// payload was published to, never a subscription pattern, so consumers that
// subscribed with a wildcard can still route by the real channel name.
type BusMessage struct {
	Channel string
	Payload []byte
}

// SignalBus distributes accepted portfolio events: ephemeral pub/sub for live
// consumers (the WebSocket hub) and durable ordered streams for projections
// that must not miss entries.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe accepts either a concrete channel name or a glob pattern
	// such as "portfolio:*". Deliveries always carry the concrete channel.
	Subscribe(ctx context.Context, channel string) (<-chan BusMessage, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// LockManager provides the per-portfolio writer lock that enforces the
// single-logical-owner rule across service replicas: one portfolio's events
// are never applied concurrently against the same state.
type LockManager interface {
	// Acquire returns an unlock function on success and ErrLockHeld when the
	// lock is owned by another party.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver exports closed portfolios' journals to cold storage.
type Archiver interface {
	// ArchiveClosed archives every closed portfolio last updated before the
	// cutoff and returns the number of portfolios archived.
	ArchiveClosed(ctx context.Context, before time.Time) (int64, error)
}
