package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver.
//
// The archiver only needs the time-ranged query and delete methods, not the
// full domain store interfaces. The Postgres stores satisfy these implicitly.
// ---------------------------------------------------------------------------

// FillArchiveStore provides read and delete access to fills for archival.
type FillArchiveStore interface {
	// ListBefore returns all fills executed strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.FillRecord, error)
	// DeleteBefore removes all fills executed strictly before the cutoff and
	// returns the number of rows deleted.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// EventArchiveStore provides read and delete access to pool events for
// archival.
type EventArchiveStore interface {
	// ListBefore returns all events recorded strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.PoolEvent, error)
	// DeleteBefore removes all events recorded strictly before the cutoff and
	// returns the number of rows deleted.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ---------------------------------------------------------------------------
// ArchiveImpl
// ---------------------------------------------------------------------------

// ArchiveImpl implements domain.Archiver by querying the stores for records
// older than the cutoff, serializing them to JSONL, uploading the result to
// S3, and then deleting the archived rows from the primary store. Deletion
// happens only after the upload has succeeded, so a failed upload leaves the
// database untouched and the sweep can simply be retried.
type ArchiveImpl struct {
	writer domain.BlobWriter
	fills  FillArchiveStore
	events EventArchiveStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, fills FillArchiveStore, events EventArchiveStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		fills:  fills,
		events: events,
	}
}

// ArchiveFills moves all fills executed before the cutoff to cold storage at
// archive/fills/YYYY-MM.jsonl and returns the number of records archived.
func (a *ArchiveImpl) ArchiveFills(ctx context.Context, before time.Time) (int64, error) {
	fills, err := a.fills.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive fills query: %w", err)
	}
	if len(fills) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(fills)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive fills marshal: %w", err)
	}

	path := archivePath("fills", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive fills upload: %w", err)
	}

	deleted, err := a.fills.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(fills)), fmt.Errorf("s3blob: archive fills delete: %w", err)
	}
	return deleted, nil
}

// ArchiveEvents moves all pool events recorded before the cutoff to cold
// storage at archive/events/YYYY-MM.jsonl and returns the number of records
// archived.
func (a *ArchiveImpl) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.events.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	path := archivePath("events", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive events upload: %w", err)
	}

	deleted, err := a.events.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(events)), fmt.Errorf("s3blob: archive events delete: %w", err)
	}
	return deleted, nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/fills/2026-08.jsonl
//	archive/events/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
