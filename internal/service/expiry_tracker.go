package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
	"github.com/alanyoungcy/binaryoptions/internal/ledger"
)

// ExpiryTracker watches open predictions and publishes a settlement_due event
// once per prediction when its expiry passes. It never settles anything
// itself; settlement needs the admin and an observed end price.
type ExpiryTracker struct {
	markets  *MarketService
	pub      domain.EventPublisher
	clock    ledger.Clock
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	notified map[uint64]struct{}
}

// NewExpiryTracker creates an ExpiryTracker. interval is how often open
// predictions are checked.
func NewExpiryTracker(
	markets *MarketService,
	pub domain.EventPublisher,
	clock ledger.Clock,
	interval time.Duration,
	logger *slog.Logger,
) *ExpiryTracker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	return &ExpiryTracker{
		markets:  markets,
		pub:      pub,
		clock:    clock,
		interval: interval,
		logger:   logger.With(slog.String("component", "expiry_tracker")),
		notified: make(map[uint64]struct{}),
	}
}

// Run polls until ctx is cancelled. Call in a goroutine.
func (t *ExpiryTracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := t.Check(ctx); err != nil {
				t.logger.ErrorContext(ctx, "expiry tracker check failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Check publishes settlement_due for every newly due prediction and returns
// how many were published.
func (t *ExpiryTracker) Check(ctx context.Context) (int, error) {
	now := t.clock.Now()
	due, err := t.markets.DuePredictions(ctx, now.Unix())
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Forget predictions that were settled since the last pass.
	stillDue := make(map[uint64]struct{}, len(due))
	for _, p := range due {
		stillDue[p.ID] = struct{}{}
	}
	for id := range t.notified {
		if _, ok := stillDue[id]; !ok {
			delete(t.notified, id)
		}
	}

	published := 0
	for _, p := range due {
		if _, ok := t.notified[p.ID]; ok {
			continue
		}
		payload, err := json.Marshal(p)
		if err != nil {
			return published, err
		}
		ev := domain.Event{
			Type:    domain.EventSettlementDue,
			Payload: payload,
			Time:    now,
		}
		if err := t.pub.PublishEvent(ctx, ev); err != nil {
			t.logger.WarnContext(ctx, "expiry tracker publish failed",
				slog.Uint64("prediction_id", p.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		t.notified[p.ID] = struct{}{}
		published++
		t.logger.InfoContext(ctx, "prediction due for settlement",
			slog.Uint64("prediction_id", p.ID),
			slog.String("trader", p.Trader),
			slog.Int64("expiry", p.ExpiryTimestamp),
		)
	}
	return published, nil
}
