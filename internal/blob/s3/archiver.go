package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// ArchiveImpl implements domain.Archiver. Each batch becomes one JSONL object
// at <prefix>/<yyyy-mm-dd>/<uuid>.jsonl. Archived records are not removed
// from the ledger.
type ArchiveImpl struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	audit  domain.AuditStore
	prefix string
	now    func() time.Time
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates an ArchiveImpl. audit may be nil.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, audit domain.AuditStore, prefix string) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		reader: reader,
		audit:  audit,
		prefix: strings.Trim(prefix, "/"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ArchivePredictions uploads preds and returns the object path. An empty
// batch uploads nothing and returns "".
func (a *ArchiveImpl) ArchivePredictions(ctx context.Context, preds []domain.Prediction) (string, error) {
	if len(preds) == 0 {
		return "", nil
	}

	buf, err := marshalJSONL(preds)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive predictions marshal: %w", err)
	}

	key := archivePath(a.prefix, a.now(), uuid.NewString())
	if int64(len(buf)) > minPartSize {
		err = a.writer.PutMultipart(ctx, key, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, key, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive predictions upload: %w", err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.predictions", map[string]any{
			"path":     key,
			"count":    len(preds),
			"first_id": preds[0].ID,
			"last_id":  preds[len(preds)-1].ID,
		}); err != nil {
			return key, fmt.Errorf("s3blob: archive predictions audit log: %w", err)
		}
	}
	return key, nil
}

// ArchivedIDs scans every object under the prefix and collects the ids it
// holds.
func (a *ArchiveImpl) ArchivedIDs(ctx context.Context) (map[uint64]struct{}, error) {
	infos, err := a.reader.List(ctx, a.prefix+"/")
	if err != nil {
		return nil, err
	}
	ids := make(map[uint64]struct{})
	for _, info := range infos {
		if !strings.HasSuffix(info.Path, ".jsonl") {
			continue
		}
		if err := a.collectIDs(ctx, info.Path, ids); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (a *ArchiveImpl) collectIDs(ctx context.Context, key string, ids map[uint64]struct{}) error {
	body, err := a.reader.Get(ctx, key)
	if err != nil {
		return err
	}
	defer body.Close()

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec struct {
			ID uint64 `json:"id"`
		}
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("s3blob: decode %s: %w", key, err)
		}
		ids[rec.ID] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("s3blob: read %s: %w", key, err)
	}
	return nil
}

// archivePath builds object keys of the form
//
//	predictions/2025-01-31/0b6f...e1.jsonl
func archivePath(prefix string, at time.Time, id string) string {
	return path.Join(prefix, at.Format("2006-01-02"), id+".jsonl")
}

// marshalJSONL encodes records as newline-delimited JSON.
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
