package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// ArchiveService periodically exports settled predictions that have not been
// exported yet.
type ArchiveService struct {
	markets  *MarketService
	archiver domain.Archiver
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	archived map[uint64]struct{}
}

// NewArchiveService creates an ArchiveService.
func NewArchiveService(markets *MarketService, archiver domain.Archiver, interval time.Duration, logger *slog.Logger) *ArchiveService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ArchiveService{
		markets:  markets,
		archiver: archiver,
		interval: interval,
		logger:   logger.With(slog.String("component", "archive_service")),
	}
}

// Run archives once immediately and then on every tick until ctx ends.
func (s *ArchiveService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, _, err := s.RunOnce(ctx); err != nil {
			s.logger.ErrorContext(ctx, "archive_service: run failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce exports the pending batch and returns its path and size. An empty
// batch returns "", 0.
func (s *ArchiveService) RunOnce(ctx context.Context) (string, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.archived == nil {
		ids, err := s.archiver.ArchivedIDs(ctx)
		if err != nil {
			return "", 0, fmt.Errorf("archive_service: load archived ids: %w", err)
		}
		s.archived = ids
	}

	settled, err := s.markets.ListPredictions(ctx, PredictionFilter{Status: StatusSettled})
	if err != nil {
		return "", 0, err
	}
	var batch []domain.Prediction
	for _, p := range settled {
		if _, ok := s.archived[p.ID]; !ok {
			batch = append(batch, p)
		}
	}
	if len(batch) == 0 {
		return "", 0, nil
	}

	path, err := s.archiver.ArchivePredictions(ctx, batch)
	if err != nil {
		return "", 0, fmt.Errorf("archive_service: %w", err)
	}
	for _, p := range batch {
		s.archived[p.ID] = struct{}{}
	}
	s.logger.InfoContext(ctx, "archive_service: exported settled predictions",
		slog.String("path", path),
		slog.Int("count", len(batch)),
	)
	return path, len(batch), nil
}
