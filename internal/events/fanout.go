// Package events routes committed ledger events to every configured sink.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

type sink struct {
	name string
	pub  domain.EventPublisher
}

// Fanout delivers each event to all registered sinks. A failing sink does not
// stop delivery to the others.
type Fanout struct {
	mu     sync.RWMutex
	sinks  []sink
	logger *slog.Logger
}

var _ domain.EventPublisher = (*Fanout)(nil)

// NewFanout returns an empty Fanout.
func NewFanout(logger *slog.Logger) *Fanout {
	return &Fanout{logger: logger.With(slog.String("component", "events"))}
}

// Add registers a sink under name.
func (f *Fanout) Add(name string, pub domain.EventPublisher) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, sink{name: name, pub: pub})
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sinks)
}

// PublishEvent implements domain.EventPublisher.
func (f *Fanout) PublishEvent(ctx context.Context, ev domain.Event) error {
	f.mu.RLock()
	sinks := append([]sink(nil), f.sinks...)
	f.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		if err := s.pub.PublishEvent(ctx, ev); err != nil {
			f.logger.WarnContext(ctx, "events: sink failed",
				slog.String("sink", s.name),
				slog.String("type", ev.Type),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
