// Package notify forwards ledger events to operators over chat webhooks
// (Telegram, Discord). Events are filtered by type so operators receive only
// the alerts they care about, such as predictions whose settlement is due.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// Sender is one chat channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier renders events as chat messages and delivers them to every
// sender. It sits on the ledger's event fanout.
type Notifier struct {
	senders []Sender
	allow   map[string]struct{}
	logger  *slog.Logger
}

var _ domain.EventPublisher = (*Notifier)(nil)

// NewNotifier creates a Notifier for the given event types. An empty list
// lets every event through.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allow := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allow[e] = struct{}{}
		}
	}
	return &Notifier{
		senders: senders,
		allow:   allow,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Wants reports whether events of this type are delivered.
func (n *Notifier) Wants(eventType string) bool {
	if len(n.allow) == 0 {
		return true
	}
	_, ok := n.allow[eventType]
	return ok
}

// PublishEvent delivers ev to every sender when its type is wanted. A failing
// sender does not stop delivery to the rest; their errors are joined.
func (n *Notifier) PublishEvent(ctx context.Context, ev domain.Event) error {
	if len(n.senders) == 0 || !n.Wants(ev.Type) {
		return nil
	}
	title, msg := eventTitle(ev), eventMessage(ev)

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, msg); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", ev.Type),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func eventTitle(ev domain.Event) string {
	return strings.ReplaceAll(ev.Type, "_", " ")
}

// eventMessage pretty-prints the payload and appends the transaction
// reference when there is one.
func eventMessage(ev domain.Event) string {
	var b strings.Builder
	if len(ev.Payload) > 0 {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, ev.Payload, "", "  "); err == nil {
			b.Write(pretty.Bytes())
		} else {
			b.Write(ev.Payload)
		}
	}
	if ev.Signature != "" {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "tx %s (slot %d)", ev.Signature, ev.Slot)
	}
	return b.String()
}
