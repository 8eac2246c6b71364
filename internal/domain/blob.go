package domain

import (
	"context"
	"io"
	"time"
)

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
}

// Archiver copies settled predictions to cold storage. Records stay on the
// ledger; the archive is an export.
type Archiver interface {
	// ArchivePredictions uploads preds as one object and returns its path.
	ArchivePredictions(ctx context.Context, preds []Prediction) (string, error)
	// ArchivedIDs returns the ids of every prediction already exported.
	ArchivedIDs(ctx context.Context) (map[uint64]struct{}, error)
}
