package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/alanyoungcy/lobsim/internal/domain"
)

const (
	contentTypeJSONL = "application/x-ndjson"
	contentTypeJSON  = "application/json"

	// multipartThreshold switches snapshot uploads to the transfer manager.
	multipartThreshold = 16 * 1024 * 1024
)

// RunArchiver implements domain.Archiver. Each run lands under
//
//	{prefix}/runs/{YYYY-MM}/{run_id}/snapshots.jsonl
//	{prefix}/runs/{YYYY-MM}/{run_id}/summary.json
//
// and, when an audit store is set, an "archive.run" audit entry is written.
type RunArchiver struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
	prefix string
}

// NewArchiver creates a RunArchiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore, prefix string) *RunArchiver {
	return &RunArchiver{writer: writer, audit: audit, prefix: prefix}
}

// ArchiveRun uploads the run's snapshots and summary and returns the object
// prefix they were written under.
func (a *RunArchiver) ArchiveRun(ctx context.Context, run domain.Run, snapshots []domain.Snapshot) (string, error) {
	dir := runDir(a.prefix, run)

	lines, err := marshalJSONL(snapshots)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive run %s: %w", run.ID, err)
	}
	snapPath := path.Join(dir, "snapshots.jsonl")
	if len(lines) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, snapPath, bytes.NewReader(lines), minPartSize)
	} else {
		err = a.writer.Put(ctx, snapPath, bytes.NewReader(lines), contentTypeJSONL)
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive run %s snapshots: %w", run.ID, err)
	}

	summary, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: archive run %s summary: %w", run.ID, err)
	}
	if err := a.writer.Put(ctx, path.Join(dir, "summary.json"), bytes.NewReader(summary), contentTypeJSON); err != nil {
		return "", fmt.Errorf("s3blob: archive run %s summary: %w", run.ID, err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.run", map[string]any{
			"run_id":    run.ID,
			"path":      dir,
			"snapshots": len(snapshots),
		}); err != nil {
			return dir, fmt.Errorf("s3blob: archive run %s audit log: %w", run.ID, err)
		}
	}
	return dir, nil
}

// runDir partitions runs by the UTC year-month they were created in.
func runDir(prefix string, run domain.Run) string {
	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return path.Join(prefix, "runs", created.UTC().Format("2006-01"), run.ID)
}

// marshalJSONL encodes records as newline-delimited compact JSON.
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

var _ domain.Archiver = (*RunArchiver)(nil)
