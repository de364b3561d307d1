package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/wessley-support/engine/corpus"
	"github.com/WessleyAI/wessley-support/engine/domain"
	"github.com/WessleyAI/wessley-support/engine/faq"
	"github.com/WessleyAI/wessley-support/engine/generator"
	"github.com/WessleyAI/wessley-support/engine/graph"
	"github.com/WessleyAI/wessley-support/engine/localstore"
	"github.com/WessleyAI/wessley-support/engine/notify"
	"github.com/WessleyAI/wessley-support/engine/semantic"
	"github.com/WessleyAI/wessley-support/pkg/metrics"
	"github.com/WessleyAI/wessley-support/pkg/ollama"
	"github.com/WessleyAI/wessley-support/pkg/resilience"
)

// Store is what both the graph and the SQLite store provide.
type Store interface {
	corpus.TicketStore
	faq.FAQStore
	generator.AppDirectory
	SaveTicket(ctx context.Context, t domain.TicketRecord) error
	EnsureApp(ctx context.Context, appID, name string) error
	GetFAQ(ctx context.Context, id string) (domain.FAQEntry, error)
	ListFAQs(ctx context.Context, appID string, offset, limit int) ([]domain.FAQEntry, error)
}

var (
	_ Store = (*graph.Store)(nil)
	_ Store = (*localstore.Store)(nil)
)

// Backend owns the connections behind a Service.
type Backend struct {
	Service  *generator.Service
	Store    Store
	Index    *semantic.FAQIndex
	Notifier *notify.NATSNotifier
	Breaker  *resilience.Breaker
	Metrics  *metrics.Registry

	closers []func()
}

// Close releases every connection in reverse order of opening.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// OpenStore opens only the ticket/FAQ store.
func OpenStore(ctx context.Context, s Settings) (Store, func(), error) {
	switch s.Store {
	case KindSQLite:
		st, err := localstore.Open(s.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	case KindNeo4j:
		driver, err := neo4j.NewDriverWithContext(s.Neo4j.URL, neo4j.BasicAuth(s.Neo4j.User, s.Neo4j.Password, ""))
		if err != nil {
			return nil, nil, fmt.Errorf("backend: neo4j driver: %w", err)
		}
		closeDriver := func() { driver.Close(context.Background()) }
		if err := driver.VerifyConnectivity(ctx); err != nil {
			closeDriver()
			return nil, nil, fmt.Errorf("backend: neo4j connect: %w", err)
		}
		st := graph.New(driver, s.Neo4j.Database)
		if err := st.EnsureSchema(ctx); err != nil {
			closeDriver()
			return nil, nil, err
		}
		return st, closeDriver, nil
	default:
		return nil, nil, fmt.Errorf("backend: unknown store %q", s.Store)
	}
}

// Open connects every configured dependency and builds the Service.
func Open(ctx context.Context, s Settings, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	b := &Backend{Metrics: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			b.Close()
		}
	}()

	store, closeStore, err := OpenStore(ctx, s)
	if err != nil {
		return nil, err
	}
	b.Store = store
	b.closers = append(b.closers, closeStore)

	if s.Qdrant.URL != "" {
		idx, err := semantic.New(s.Qdrant.URL, s.Qdrant.Collection)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { idx.Close() })
		if err := idx.EnsureCollection(ctx, s.Qdrant.Dimension); err != nil {
			return nil, err
		}
		b.Index = idx
	}

	if s.NATS.URL != "" {
		nc, err := nats.Connect(s.NATS.URL, nats.Name("faqgen"), nats.MaxReconnects(-1))
		if err != nil {
			return nil, fmt.Errorf("backend: nats connect: %w", err)
		}
		b.closers = append(b.closers, nc.Close)
		b.Notifier = notify.NewNATSNotifier(nc, s.NATS.Subject)
	}

	b.Breaker = newBreaker(s.Breaker, b.Metrics, logger)
	cfg := s.Generator
	cfg.Vectorize.Breaker = b.Breaker
	cfg.Vectorize.Retry = s.retryOpts()
	if s.Qdrant.URL != "" && cfg.Vectorize.FallbackDimension <= 0 {
		cfg.Vectorize.FallbackDimension = s.Qdrant.Dimension
	}

	embedder := ollama.NewClient(s.Ollama.URL, s.Ollama.Model,
		ollama.WithHTTPClient(&http.Client{Timeout: s.Ollama.Timeout}))

	deps := generator.Deps{
		Tickets:  store,
		Embedder: embedder,
		FAQs:     store,
		Apps:     store,
		Metrics:  generator.NewMetrics(b.Metrics),
		Logger:   logger,
	}
	if b.Index != nil {
		deps.Index = b.Index
	}
	if b.Notifier != nil {
		deps.Notifier = b.Notifier
	}
	svc, err := generator.New(cfg, deps)
	if err != nil {
		return nil, err
	}
	b.Service = svc
	ok = true

	logger.Info("backend ready",
		"store", s.Store,
		"index", s.Qdrant.URL != "",
		"notify", s.NATS.URL != "",
		"model", embedder.Model(),
	)
	return b, nil
}

// newBreaker exports the breaker state as a gauge and logs transitions.
func newBreaker(opts resilience.BreakerOpts, reg *metrics.Registry, logger *slog.Logger) *resilience.Breaker {
	gauge := reg.Gauge("faqgen_embedder_breaker_state", "Embedder circuit breaker state (0 closed, 1 open, 2 half-open)")
	opts.OnStateChange = func(from, to resilience.State) {
		gauge.Set(float64(to))
		logger.Warn("embedder breaker state change", "from", from.String(), "to", to.String())
	}
	return resilience.NewBreaker(opts)
}
