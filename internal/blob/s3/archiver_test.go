package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// memBlobs is an in-memory bucket implementing both blob interfaces.
type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: make(map[string][]byte)} }

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlobInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.BlobInfo{Path: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

type auditRecorder struct{ events []string }

func (a *auditRecorder) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *auditRecorder) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestArchivePredictions(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	audit := &auditRecorder{}
	a := NewArchiver(blobs, blobs, audit, "/predictions/")
	a.now = func() time.Time { return time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC) }

	key, err := a.ArchivePredictions(ctx, []domain.Prediction{
		{ID: 1, Amount: 1000, Direction: "up", Settled: true, Winning: true},
		{ID: 4, Amount: 50, Direction: "down", Settled: true},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "predictions/2025-01-31/"))
	assert.True(t, strings.HasSuffix(key, ".jsonl"))
	assert.Equal(t, []string{"archive.predictions"}, audit.events)

	lines := strings.Split(strings.TrimSpace(string(blobs.objects[key])), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"id":1`)

	ids, err := a.ArchivedIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[uint64]struct{}{1: {}, 4: {}}, ids)
}

func TestArchiveEmptyBatchUploadsNothing(t *testing.T) {
	blobs := newMemBlobs()
	a := NewArchiver(blobs, blobs, nil, "predictions")
	key, err := a.ArchivePredictions(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, key)
	assert.Empty(t, blobs.objects)
}

func TestArchiveUploadError(t *testing.T) {
	blobs := newMemBlobs()
	blobs.putErr = errors.New("access denied")
	a := NewArchiver(blobs, blobs, nil, "predictions")
	_, err := a.ArchivePredictions(context.Background(), []domain.Prediction{{ID: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestArchivedIDsSkipsForeignObjects(t *testing.T) {
	blobs := newMemBlobs()
	blobs.objects["predictions/README.txt"] = []byte("not json")
	blobs.objects["predictions/2025-01-01/a.jsonl"] = []byte("{\"id\":7}\n\n")
	a := NewArchiver(blobs, blobs, nil, "predictions")
	ids, err := a.ArchivedIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[uint64]struct{}{7: {}}, ids)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("localhost:9000", false))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
}
