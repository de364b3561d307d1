package notify

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WessleyAI/wessley-support/engine/domain"
	"github.com/WessleyAI/wessley-support/pkg/natsutil"
)

func startTestNATS(t *testing.T) (*natsserver.Server, *nats.Conn) {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	require.NoError(t, err)
	srv.Start()
	require.True(t, srv.ReadyForConnections(3*time.Second), "nats not ready")
	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return srv, nc
}

func TestNATSNotifier_FAQSetChanged(t *testing.T) {
	_, nc := startTestNATS(t)
	n := NewNATSNotifier(nc, "")
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return at }

	ch := make(chan Event, 1)
	sub, err := natsutil.Subscribe(nc, DefaultSubject, func(_ context.Context, e Event) { ch <- e }, nil)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	entry := domain.FAQEntry{ID: "faq-1", AppID: "app-1", Question: "How do I reset my password?", IsPublished: true}
	require.NoError(t, n.FAQSetChanged(context.Background(), entry))

	select {
	case e := <-ch:
		assert.Equal(t, "app-1", e.AppID)
		assert.Equal(t, "faq-1", e.FAQID)
		assert.True(t, e.Published)
		assert.True(t, e.At.Equal(at), "at = %v, want %v", e.At, at)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNATSNotifier_ClosedConn(t *testing.T) {
	_, nc := startTestNATS(t)
	n := NewNATSNotifier(nc, "faq.custom")
	assert.Equal(t, "faq.custom", n.Subject())
	nc.Close()
	assert.Error(t, n.FAQSetChanged(context.Background(), domain.FAQEntry{ID: "x"}))
}
