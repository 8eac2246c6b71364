package events_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
	"github.com/alanyoungcy/binaryoptions/internal/events"
)

type recorder struct {
	err    error
	events []domain.Event
}

func (r *recorder) PublishEvent(_ context.Context, ev domain.Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func TestFanoutDeliversToEverySink(t *testing.T) {
	f := events.NewFanout(slog.New(slog.NewTextHandler(io.Discard, nil)))
	a := &recorder{err: errors.New("down")}
	b := &recorder{}
	f.Add("a", a)
	f.Add("b", b)
	require.Equal(t, 2, f.Len())

	err := f.PublishEvent(context.Background(), domain.Event{Type: domain.EventPredictionSettled})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a: down")
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)

	a.err = nil
	assert.NoError(t, f.PublishEvent(context.Background(), domain.Event{Type: domain.EventPredictionCreated}))
}
