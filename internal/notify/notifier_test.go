package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

type recordingSender struct {
	name  string
	err   error
	sends []string
}

func (r *recordingSender) Send(_ context.Context, title, message string) error {
	r.sends = append(r.sends, title+"|"+message)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifierFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{domain.EventSettlementDue}, discardLogger())
	ctx := context.Background()

	require.NoError(t, n.PublishEvent(ctx, domain.Event{Type: domain.EventPredictionCreated}))
	assert.Empty(t, s.sends)

	require.NoError(t, n.PublishEvent(ctx, domain.Event{
		Type:    domain.EventSettlementDue,
		Payload: json.RawMessage(`{"id":4}`),
	}))
	require.Len(t, s.sends, 1)
	assert.Contains(t, s.sends[0], "settlement due|")
	assert.Contains(t, s.sends[0], `"id": 4`)
}

func TestNotifierCollectsSenderErrors(t *testing.T) {
	ok := &recordingSender{name: "ok"}
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	n := NewNotifier([]Sender{bad, ok}, nil, discardLogger())

	err := n.PublishEvent(context.Background(), domain.Event{Type: domain.EventFeesWithdrawn})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, ok.sends, 1, "a failing sender does not block the others")
	assert.True(t, n.Wants("anything"))
}

func TestEventMessageIncludesSignature(t *testing.T) {
	msg := eventMessage(domain.Event{Type: "x", Signature: "sig", Slot: 9})
	assert.Equal(t, "tx sig (slot 9)", msg)
}

func TestWebhookSenders(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	ctx := context.Background()

	require.NoError(t, NewDiscordSender(srv.URL+"/hook").Send(ctx, "T", "M"))
	assert.Equal(t, "/hook", path)
	embeds := got["embeds"].([]any)
	require.Len(t, embeds, 1)
	assert.Equal(t, "T", embeds[0].(map[string]any)["title"])

	require.NoError(t, NewTelegramSenderWithBase(srv.URL+"/", "tok", "42").Send(ctx, "T", "M"))
	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*T*\nM", got["text"])
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "T", "M")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 400")
}
