package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dineshdataengineer/reactive-stock-trader/internal/domain"
)

// ArchiveImpl implements domain.Archiver by exporting closed portfolios'
// journals to JSONL files in object storage.
//
// Deletion of the archived journals from the primary store is intentionally
// NOT performed here; that is a separate, explicit step to be executed after
// the archive has been verified.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	journal   domain.JournalStore
	summaries domain.SummaryStore
	audit     domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	journal domain.JournalStore,
	summaries domain.SummaryStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:    writer,
		journal:   journal,
		summaries: summaries,
		audit:     audit,
	}
}

// journalLine is one JSONL record of an archived journal: the event envelope
// together with its sequence number and recording time.
type journalLine struct {
	SequenceNo int64           `json:"sequence_no"`
	RecordedAt time.Time       `json:"recorded_at"`
	Event      json.RawMessage `json:"event"`
}

// ArchiveClosed exports the full journal of every closed portfolio last
// updated before the cutoff. Each portfolio becomes one JSONL object at
// archive/portfolios/{id}.jsonl. The archival is recorded in the audit log
// and the number of portfolios archived is returned.
func (a *ArchiveImpl) ArchiveClosed(ctx context.Context, before time.Time) (int64, error) {
	sums, err := a.summaries.List(ctx, domain.ListOpts{Status: domain.StatusClosed})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive closed query: %w", err)
	}

	var archived int64
	for _, sum := range sums {
		if !sum.UpdatedAt.Before(before) {
			continue
		}

		events, err := a.journal.Load(ctx, sum.ID, 0)
		if err != nil {
			return archived, fmt.Errorf("s3blob: archive %s load journal: %w", sum.ID, err)
		}
		if len(events) == 0 {
			continue
		}

		buf, err := marshalJournal(events)
		if err != nil {
			return archived, fmt.Errorf("s3blob: archive %s marshal: %w", sum.ID, err)
		}

		path := archivePath(sum.ID)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return archived, fmt.Errorf("s3blob: archive %s upload: %w", sum.ID, err)
		}

		archived++

		if err := a.audit.Log(ctx, "archive.portfolio", map[string]any{
			"portfolio_id": sum.ID,
			"path":         path,
			"events":       len(events),
			"before":       before.Format(time.RFC3339),
		}); err != nil {
			return archived, fmt.Errorf("s3blob: archive %s audit log: %w", sum.ID, err)
		}
	}

	return archived, nil
}

// archivePath builds the S3 key for a portfolio's archived journal.
//
//	archive/portfolios/7f3a....jsonl
func archivePath(portfolioID string) string {
	return fmt.Sprintf("archive/portfolios/%s.jsonl", portfolioID)
}

// marshalJournal serialises a journal as newline-delimited JSON. Each event
// is one compact line carrying its sequence number and recording time.
func marshalJournal(events []domain.PersistedEvent) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for _, pe := range events {
		payload, err := domain.MarshalEvent(pe.Event)
		if err != nil {
			return nil, fmt.Errorf("jsonl encode seq %d: %w", pe.SequenceNo, err)
		}
		line := journalLine{
			SequenceNo: pe.SequenceNo,
			RecordedAt: pe.RecordedAt,
			Event:      payload,
		}
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("jsonl encode seq %d: %w", pe.SequenceNo, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
