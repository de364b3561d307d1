// Package notify announces changes to an application's FAQ set over NATS.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/wessley-support/engine/domain"
	"github.com/WessleyAI/wessley-support/pkg/natsutil"
)

// DefaultSubject is the subject FAQ change events are published on.
const DefaultSubject = "faq.changed"

// Event is the payload of a FAQ change notification.
type Event struct {
	AppID     string    `json:"app_id"`
	FAQID     string    `json:"faq_id"`
	Question  string    `json:"question"`
	Published bool      `json:"published"`
	At        time.Time `json:"at"`
}

// NATSNotifier publishes an Event for each changed entry.
type NATSNotifier struct {
	nc      *nats.Conn
	subject string
	now     func() time.Time
}

// NewNATSNotifier creates a notifier. An empty subject uses DefaultSubject.
func NewNATSNotifier(nc *nats.Conn, subject string) *NATSNotifier {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSNotifier{nc: nc, subject: subject, now: time.Now}
}

// FAQSetChanged publishes the change event for entry.
func (n *NATSNotifier) FAQSetChanged(ctx context.Context, entry domain.FAQEntry) error {
	ev := Event{
		AppID:     entry.AppID,
		FAQID:     entry.ID,
		Question:  entry.Question,
		Published: entry.IsPublished,
		At:        n.now().UTC(),
	}
	if err := natsutil.Publish(ctx, n.nc, n.subject, ev); err != nil {
		return fmt.Errorf("notify: faq %s: %w", entry.ID, err)
	}
	return nil
}

// Subject returns the subject events are published on.
func (n *NATSNotifier) Subject() string { return n.subject }
