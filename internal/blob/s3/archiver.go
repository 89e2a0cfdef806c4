package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// multipartThreshold is the payload size above which an archive goes out
// through the multipart uploader instead of a single PutObject.
const multipartThreshold = 64 << 20

// OutcomeArchiveStore provides read access to settled trades for archival.
// The archiver only needs the time-ranged query, not the full outcome store.
type OutcomeArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.TradeOutcome, error)
}

// Archiver queries old trade outcomes, serializes them to JSONL, and uploads
// the result to object storage at archive/trade_outcomes/YYYY-MM.jsonl.
//
// Deletion of the archived rows from the primary store is intentionally NOT
// performed here; that is a separate, explicit step after the archive has
// been verified.
type Archiver struct {
	writer *Writer
	store  OutcomeArchiveStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer *Writer, store OutcomeArchiveStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		store:  store,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveOutcomes queries all trade outcomes completed before the cutoff,
// serializes them to JSONL, and uploads the file. Returns the count of
// archived records.
func (a *Archiver) ArchiveOutcomes(ctx context.Context, before time.Time) (int64, error) {
	outcomes, err := a.store.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive outcomes query: %w", err)
	}
	if len(outcomes) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(outcomes)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive outcomes marshal: %w", err)
	}

	path := archivePath("trade_outcomes", before)
	if int64(len(buf)) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize, "application/x-ndjson")
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive outcomes upload: %w", err)
	}

	a.logger.Info("archived trade outcomes",
		slog.String("path", path),
		slog.Int("count", len(outcomes)),
	)
	return int64(len(outcomes)), nil
}

// Run archives outcomes older than retention on each tick until ctx is
// cancelled. Archive failures are logged and retried on the next tick.
func (a *Archiver) Run(ctx context.Context, interval, retention time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().Add(-retention)
			if _, err := a.ArchiveOutcomes(ctx, cutoff); err != nil {
				a.logger.Warn("archive cycle failed", slog.Any("error", err))
			}
		}
	}
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
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
