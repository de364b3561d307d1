// Package generator orchestrates FAQ generation runs: corpus selection,
// vectorization, clustering, validation and candidate derivation, followed by
// optional materialization into the FAQ store.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/WessleyAI/wessley-support/engine/cluster"
	"github.com/WessleyAI/wessley-support/engine/corpus"
	"github.com/WessleyAI/wessley-support/engine/domain"
	"github.com/WessleyAI/wessley-support/engine/faq"
	"github.com/WessleyAI/wessley-support/engine/vectorize"
	"github.com/WessleyAI/wessley-support/pkg/fn"
)

// AppDirectory resolves application ids.
type AppDirectory interface {
	AppExists(ctx context.Context, appID string) (bool, error)
}

// FAQIndex is a vector index over existing FAQ entries.
type FAQIndex interface {
	faq.Indexer
	// FindSimilar returns the closest indexed entry of appID scoring at least
	// threshold, or an empty id.
	FindSimilar(ctx context.Context, appID string, vector []float32, threshold float64) (string, float64, error)
}

// Deps holds the collaborators of a Service. Apps, Index, Notifier and Metrics
// are optional.
type Deps struct {
	Tickets  corpus.TicketStore
	Embedder vectorize.Embedder
	FAQs     faq.FAQStore
	Apps     AppDirectory
	Index    FAQIndex
	Notifier faq.Notifier
	Metrics  *Metrics
	Logger   *slog.Logger
}

// Service runs FAQ generation.
type Service struct {
	cfg          Config
	apps         AppDirectory
	index        FAQIndex
	selector     *corpus.Selector
	vectorizer   *vectorize.Stage
	builder      *faq.Builder
	materializer *faq.Materializer
	metrics      *Metrics
	logger       *slog.Logger
}

// New creates a Service.
func New(cfg Config, deps Deps) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Tickets == nil || deps.Embedder == nil || deps.FAQs == nil {
		return nil, errors.New("generator: ticket store, embedder and faq store are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var indexer faq.Indexer
	if deps.Index != nil {
		indexer = deps.Index
	}
	return &Service{
		cfg:          cfg,
		apps:         deps.Apps,
		index:        deps.Index,
		selector:     corpus.NewSelector(deps.Tickets, cfg.CorpusLimit, logger),
		vectorizer:   vectorize.New(deps.Embedder, cfg.Vectorize, logger),
		builder:      faq.NewBuilder(cfg.FAQ),
		materializer: faq.NewMaterializer(deps.FAQs, deps.Notifier, indexer, logger),
		metrics:      deps.Metrics,
		logger:       logger,
	}, nil
}

// run carries the state of one analysis through the pipeline stages.
type run struct {
	req         domain.GenerateRequest
	tickets     []domain.TicketRecord
	vectors     vectorize.Result
	clusters    cluster.Result
	candidates  []domain.FAQCandidate
	memberCount int
}

// Preview clusters the corpus and derives candidates without persisting
// anything.
func (s *Service) Preview(ctx context.Context, req domain.GenerateRequest) (domain.PreviewResult, error) {
	if err := domain.ValidateGenerateRequest(req); err != nil {
		return domain.PreviewResult{}, err
	}
	if err := s.checkApp(ctx, req.AppID); err != nil {
		return domain.PreviewResult{}, err
	}

	start := time.Now()
	runCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	r, err := s.pipeline()(runCtx, run{req: req}).Unwrap()
	if err != nil {
		s.metrics.observeRun(outcome(err), time.Since(start).Seconds(), nil)
		return domain.PreviewResult{}, fmt.Errorf("generator: preview %s: %w", req.AppID, err)
	}

	res := domain.PreviewResult{
		Clusters:     r.candidates,
		Degradations: r.vectors.Degradations,
		Unclustered:  r.clusters.Unclustered,
		Statistics: domain.PreviewStatistics{
			TotalInquiries:     len(r.tickets),
			ClusteredInquiries: r.memberCount,
			Unclustered:        len(r.clusters.Unclustered),
			GeneratedFAQs:      len(r.candidates),
			DegradedEmbeddings: len(r.vectors.Degradations),
			Iterations:         r.clusters.Iterations,
			Converged:          r.clusters.Converged,
		},
	}
	if res.Clusters == nil {
		res.Clusters = []domain.FAQCandidate{}
	}
	s.metrics.observeRun("ok", time.Since(start).Seconds(), &res.Statistics)
	s.logger.Info("faq preview complete", "app_id", req.AppID,
		"total", res.Statistics.TotalInquiries,
		"clustered", res.Statistics.ClusteredInquiries,
		"unclustered", res.Statistics.Unclustered,
		"generated", res.Statistics.GeneratedFAQs,
		"degraded", res.Statistics.DegradedEmbeddings,
		"duration", time.Since(start))
	return res, nil
}

// Generate runs a preview and materializes its candidates. opts.ClusterIDs
// restricts materialization to the named clusters of the run; ids are only
// stable across runs when Config.Seed is set.
func (s *Service) Generate(ctx context.Context, req domain.GenerateRequest, opts domain.MaterializeOptions) (domain.MaterializeResult, error) {
	if err := domain.ValidateMaterializeOptions(opts); err != nil {
		return domain.MaterializeResult{}, err
	}
	preview, err := s.Preview(ctx, req)
	if err != nil {
		return domain.MaterializeResult{}, err
	}
	cands, err := selectClusters(preview.Clusters, opts.ClusterIDs)
	if err != nil {
		return domain.MaterializeResult{}, err
	}
	return s.materialize(ctx, req.AppID, cands, opts)
}

// CreateFAQFromCluster persists one previously previewed candidate.
func (s *Service) CreateFAQFromCluster(ctx context.Context, appID string, c domain.FAQCandidate, opts domain.MaterializeOptions) (domain.FAQEntry, error) {
	if err := s.checkApp(ctx, appID); err != nil {
		return domain.FAQEntry{}, err
	}
	entry, err := s.materializer.CreateFAQFromCluster(ctx, appID, c, opts)
	if err != nil {
		s.metrics.observeFailures(1)
		return domain.FAQEntry{}, err
	}
	s.metrics.observeCreated(entry.IsPublished)
	return entry, nil
}

// CreateFAQsFromClusters persists a manual batch of candidates best-effort.
// Repeated cluster ids are rejected as a validation error.
func (s *Service) CreateFAQsFromClusters(ctx context.Context, appID string, cands []domain.FAQCandidate, opts domain.MaterializeOptions) (domain.MaterializeResult, error) {
	if err := domain.ValidateMaterializeOptions(opts); err != nil {
		return domain.MaterializeResult{}, err
	}
	if err := domain.ValidateCandidates(cands); err != nil {
		return domain.MaterializeResult{}, err
	}
	if err := s.checkApp(ctx, appID); err != nil {
		return domain.MaterializeResult{}, err
	}
	cands, err := selectClusters(cands, opts.ClusterIDs)
	if err != nil {
		return domain.MaterializeResult{}, err
	}
	return s.materialize(ctx, appID, cands, opts)
}

func (s *Service) materialize(ctx context.Context, appID string, cands []domain.FAQCandidate, opts domain.MaterializeOptions) (domain.MaterializeResult, error) {
	res, err := s.materializer.CreateFAQsFromClusters(ctx, appID, cands, opts)
	if err != nil {
		return domain.MaterializeResult{}, err
	}
	for _, e := range res.Created {
		s.metrics.observeCreated(e.IsPublished)
	}
	s.metrics.observeFailures(len(res.Failed))
	return res, nil
}

func (s *Service) checkApp(ctx context.Context, appID string) error {
	if s.apps == nil {
		return nil
	}
	ok, err := s.apps.AppExists(ctx, appID)
	if err != nil {
		return fmt.Errorf("generator: lookup app %s: %w", appID, err)
	}
	if !ok {
		return &domain.NotFoundError{Resource: "app", ID: appID}
	}
	return nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Timeout)
}

// selectClusters keeps the candidates named by ids in the order given. A nil
// ids keeps everything.
func selectClusters(cands []domain.FAQCandidate, ids []string) ([]domain.FAQCandidate, error) {
	if ids == nil {
		return cands, nil
	}
	if err := domain.ValidateClusterIDs(ids); err != nil {
		return nil, err
	}
	byID := make(map[string]domain.FAQCandidate, len(cands))
	for _, c := range cands {
		byID[c.ClusterID] = c
	}
	out := make([]domain.FAQCandidate, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			return nil, domain.NewValidationError("cluster_id", id, domain.ErrUnknownCluster)
		}
		out = append(out, c)
	}
	return out, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

// pipeline composes the analysis stages.
func (s *Service) pipeline() fn.Stage[run, run] {
	selected := fn.TracedStage("faq.select", s.selectStage())
	embedded := fn.TracedStage("faq.vectorize", s.vectorizeStage())
	clustered := fn.TracedStage("faq.cluster", s.clusterStage())
	described := fn.TracedStage("faq.describe", s.describeStage())
	flagged := fn.TracedStage("faq.duplicates", s.duplicateStage(), attribute.Bool("faq.index", s.index != nil))

	logged := fn.TapStage(func(_ context.Context, r run) {
		s.logger.Debug("faq clustering done", "app_id", r.req.AppID,
			"clusters", len(r.clusters.Clusters), "iterations", r.clusters.Iterations, "converged", r.clusters.Converged)
	})

	return fn.Then(selected, fn.Then(embedded, fn.Then(clustered, fn.Then(logged, fn.Then(described, flagged)))))
}

func (s *Service) selectStage() fn.Stage[run, run] {
	return func(ctx context.Context, r run) fn.Result[run] {
		tickets, err := s.selector.Select(ctx, r.req.AppID, r.req.DateRange, r.req.Categories)
		if err != nil {
			return fn.Err[run](err)
		}
		r.tickets = tickets
		return fn.Ok(r)
	}
}

func (s *Service) vectorizeStage() fn.Stage[run, run] {
	return func(ctx context.Context, r run) fn.Result[run] {
		if len(r.tickets) == 0 {
			return fn.Ok(r)
		}
		res, err := s.vectorizer.Vectorize(ctx, r.tickets)
		if err != nil {
			return fn.Err[run](err)
		}
		r.vectors = res
		return fn.Ok(r)
	}
}

func (s *Service) clusterStage() fn.Stage[run, run] {
	return func(_ context.Context, r run) fn.Result[run] {
		ids := fn.Map(r.tickets, func(t domain.TicketRecord) string { return t.ID })
		engine := cluster.NewEngine(s.newRand(), s.cfg.MaxIterations, s.logger)
		res, err := engine.Run(ids, r.vectors.Vectors, r.req.MinClusterSize, r.req.MaxClusters)
		if err != nil {
			return fn.Err[run](err)
		}
		r.clusters = res
		return fn.Ok(r)
	}
}

func (s *Service) describeStage() fn.Stage[run, run] {
	return func(ctx context.Context, r run) fn.Result[run] {
		index := make(map[string]int, len(r.tickets))
		for i, t := range r.tickets {
			index[t.ID] = i
		}
		r.candidates = make([]domain.FAQCandidate, 0, len(r.clusters.Clusters))
		for ci, c := range r.clusters.Clusters {
			if err := ctx.Err(); err != nil {
				return fn.Err[run](err)
			}
			members := make([]faq.Member, len(c.MemberIDs))
			for i, id := range c.MemberIDs {
				pos := index[id]
				members[i] = faq.Member{Ticket: r.tickets[pos], Vector: r.vectors.Vectors[pos]}
			}
			cand, err := s.builder.Build(c, members)
			if err != nil {
				return fn.Err[run](err)
			}
			r.clusters.Clusters[ci].Cohesion = cand.Confidence
			r.candidates = append(r.candidates, cand)
		}
		r.memberCount = fn.Reduce(r.clusters.Clusters, 0, func(n int, c domain.ClusterCandidate) int { return n + c.Size() })
		return fn.Ok(r)
	}
}

// duplicateStage flags candidates that closely match an indexed FAQ entry.
// Index failures are logged and leave the candidate unflagged.
func (s *Service) duplicateStage() fn.Stage[run, run] {
	return func(ctx context.Context, r run) fn.Result[run] {
		if s.index == nil {
			return fn.Ok(r)
		}
		for i, c := range r.candidates {
			if c.Embedding == nil {
				continue
			}
			id, score, err := s.index.FindSimilar(ctx, r.req.AppID, c.Embedding, r.req.SimilarityThreshold)
			if err != nil {
				if ctx.Err() != nil {
					return fn.Err[run](ctx.Err())
				}
				s.logger.Warn("faq duplicate lookup failed", "app_id", r.req.AppID, "cluster_id", c.ClusterID, "err", err)
				continue
			}
			if id != "" {
				r.candidates[i].DuplicateOf = id
				s.logger.Info("faq candidate matches existing entry", "cluster_id", c.ClusterID, "faq_id", id, "score", score)
			}
		}
		return fn.Ok(r)
	}
}

func (s *Service) newRand() *rand.Rand {
	seed := s.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
