package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WessleyAI/wessley-support/engine/corpus"
	"github.com/WessleyAI/wessley-support/engine/domain"
	"github.com/WessleyAI/wessley-support/engine/vectorize"
	"github.com/WessleyAI/wessley-support/pkg/metrics"
)

var base = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

type fakeTickets struct {
	tickets []domain.TicketRecord
	calls   int
}

func (f *fakeTickets) FetchResolved(_ context.Context, c corpus.Criteria) ([]domain.TicketRecord, error) {
	f.calls++
	return f.tickets, nil
}

type fakeFAQs struct {
	mu      sync.Mutex
	entries []domain.FAQEntry
	fail    map[string]bool
}

func (f *fakeFAQs) Create(_ context.Context, d domain.FAQDraft) (domain.FAQEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[d.ClusterID] {
		return domain.FAQEntry{}, errors.New("write conflict")
	}
	e := domain.FAQEntry{
		ID:          fmt.Sprintf("faq-%d", len(f.entries)+1),
		AppID:       d.AppID,
		Question:    d.Question,
		Answer:      d.Answer,
		Category:    d.Category,
		Tags:        d.Tags,
		IsPublished: d.IsPublished,
		OrderIndex:  len(f.entries),
	}
	f.entries = append(f.entries, e)
	return e, nil
}

type fakeApps map[string]bool

func (a fakeApps) AppExists(_ context.Context, id string) (bool, error) { return a[id], nil }

type fakeIndex struct {
	match   string
	indexed []string
}

func (i *fakeIndex) Index(_ context.Context, e domain.FAQEntry, _ []float32) error {
	i.indexed = append(i.indexed, e.ID)
	return nil
}

func (i *fakeIndex) FindSimilar(_ context.Context, _ string, v []float32, threshold float64) (string, float64, error) {
	if v[0] > 0.5 && threshold <= 0.9 {
		return i.match, 0.95, nil
	}
	return "", 0, nil
}

type fakeNotifier struct{ published []string }

func (n *fakeNotifier) FAQSetChanged(_ context.Context, e domain.FAQEntry) error {
	n.published = append(n.published, e.ID)
	return nil
}

func ticket(id, title, category string, age time.Duration) domain.TicketRecord {
	return domain.TicketRecord{
		ID:         id,
		AppID:      "app-1",
		Title:      title,
		Body:       "details for " + id,
		Category:   category,
		Status:     domain.StatusResolved,
		CreatedAt:  base.Add(-age - time.Hour),
		ResolvedAt: base.Add(-age),
		Responses: []domain.Response{{
			Content:   "Open Settings, choose Security and follow the reset steps described there.",
			IsPublic:  true,
			CreatedAt: base.Add(-age),
		}},
	}
}

// corpusOf builds n tickets alternating between a password topic and a
// billing topic.
func corpusOf(n int) []domain.TicketRecord {
	out := make([]domain.TicketRecord, n)
	for i := range out {
		id := fmt.Sprintf("t%02d", i)
		if i%2 == 0 {
			out[i] = ticket(id, "How do I reset my password?", "account", time.Duration(i)*time.Hour)
		} else {
			out[i] = ticket(id, "Why was my invoice charged twice?", "billing", time.Duration(i)*time.Hour)
		}
	}
	return out
}

func topicEmbedder(failFor string) vectorize.Embedder {
	return vectorize.EmbedderFunc(func(_ context.Context, text string) ([]float32, error) {
		if failFor != "" && strings.Contains(text, failFor) {
			return nil, errors.New("embedding service timeout")
		}
		if strings.Contains(text, "password") {
			return []float32{1, 0.05, 0}, nil
		}
		return []float32{0.05, 1, 0}, nil
	})
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Seed = 42
	cfg.Vectorize.Workers = 2
	return cfg
}

func newService(t *testing.T, tickets *fakeTickets, emb vectorize.Embedder, faqs *fakeFAQs, mod func(*Deps)) *Service {
	t.Helper()
	deps := Deps{Tickets: tickets, Embedder: emb, FAQs: faqs, Apps: fakeApps{"app-1": true}}
	if mod != nil {
		mod(&deps)
	}
	svc, err := New(testConfig(), deps)
	require.NoError(t, err)
	return svc
}

func request(minSize, maxClusters int) domain.GenerateRequest {
	return domain.GenerateRequest{AppID: "app-1", MinClusterSize: minSize, MaxClusters: maxClusters, SimilarityThreshold: 0.8}
}

func assertAccounted(t *testing.T, res domain.PreviewResult) {
	t.Helper()
	members := 0
	for _, c := range res.Clusters {
		members += len(c.SourceTicketIDs)
		assert.GreaterOrEqual(t, c.Confidence, 0.0)
		assert.LessOrEqual(t, c.Confidence, 1.0)
		assert.LessOrEqual(t, len(c.Tags), domain.MaxTags)
	}
	assert.Equal(t, members, res.Statistics.ClusteredInquiries)
	assert.Equal(t, res.Statistics.TotalInquiries, members+res.Statistics.Unclustered)
	assert.Len(t, res.Unclustered, res.Statistics.Unclustered)
}

func TestPreviewTenTickets(t *testing.T) {
	svc := newService(t, &fakeTickets{tickets: corpusOf(10)}, topicEmbedder(""), &fakeFAQs{}, nil)

	res, err := svc.Preview(context.Background(), request(3, 4))
	require.NoError(t, err)

	assert.Equal(t, 10, res.Statistics.TotalInquiries)
	// k = min(4, 10/3) = 3
	assert.LessOrEqual(t, len(res.Clusters), 3)
	for _, c := range res.Clusters {
		assert.GreaterOrEqual(t, len(c.SourceTicketIDs), 3)
	}
	assertAccounted(t, res)
	assert.Equal(t, len(res.Clusters), res.Statistics.GeneratedFAQs)
}

func TestPreviewTopicsSeparate(t *testing.T) {
	svc := newService(t, &fakeTickets{tickets: corpusOf(10)}, topicEmbedder(""), &fakeFAQs{}, nil)

	res, err := svc.Preview(context.Background(), request(3, 4))
	require.NoError(t, err)
	require.Len(t, res.Clusters, 2)

	questions := []string{res.Clusters[0].Question, res.Clusters[1].Question}
	assert.ElementsMatch(t, []string{"How do I reset my password?", "Why was my invoice charged twice?"}, questions)
	for _, c := range res.Clusters {
		assert.Len(t, c.SourceTicketIDs, 5)
		if strings.Contains(c.Question, "password") {
			// how, reset, password
			assert.InDelta(t, 0.6, c.Confidence, 1e-9)
			assert.Equal(t, "account", c.Category)
		} else {
			assert.Equal(t, 1.0, c.Confidence)
			assert.Equal(t, []string{"billing", "invoice", "security", "settings"}, c.Tags)
		}
	}
}

func TestPreviewTooFewTickets(t *testing.T) {
	svc := newService(t, &fakeTickets{tickets: corpusOf(4)}, topicEmbedder(""), &fakeFAQs{}, nil)

	res, err := svc.Preview(context.Background(), request(5, 10))
	require.NoError(t, err)
	assert.Empty(t, res.Clusters)
	assert.Equal(t, 4, res.Statistics.Unclustered)
	assert.Equal(t, 0, res.Statistics.GeneratedFAQs)
	assertAccounted(t, res)
}

func TestPreviewEmptyCorpus(t *testing.T) {
	svc := newService(t, &fakeTickets{}, topicEmbedder(""), &fakeFAQs{}, nil)

	res, err := svc.Preview(context.Background(), request(2, 5))
	require.NoError(t, err)
	assert.NotNil(t, res.Clusters)
	assert.Empty(t, res.Clusters)
	assert.Equal(t, domain.PreviewStatistics{Converged: true}, res.Statistics)
}

func TestPreviewEmbeddingFailureDegrades(t *testing.T) {
	svc := newService(t, &fakeTickets{tickets: corpusOf(5)}, topicEmbedder("t03"), &fakeFAQs{}, nil)

	res, err := svc.Preview(context.Background(), request(2, 3))
	require.NoError(t, err)
	assert.Equal(t, 5, res.Statistics.TotalInquiries)
	assert.Equal(t, 1, res.Statistics.DegradedEmbeddings)
	require.Len(t, res.Degradations, 1)
	assert.Equal(t, "t03", res.Degradations[0].TicketID)
	assertAccounted(t, res)
}

func TestPreviewValidationBeforeFetch(t *testing.T) {
	store := &fakeTickets{tickets: corpusOf(10)}
	svc := newService(t, store, topicEmbedder(""), &fakeFAQs{}, nil)

	for _, req := range []domain.GenerateRequest{request(5, 5), request(3, 2)} {
		_, err := svc.Preview(context.Background(), req)
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))
		assert.ErrorIs(t, err, domain.ErrClusterBounds)
	}
	assert.Zero(t, store.calls)
}

func TestPreviewUnknownApp(t *testing.T) {
	store := &fakeTickets{tickets: corpusOf(10)}
	svc := newService(t, store, topicEmbedder(""), &fakeFAQs{}, nil)

	req := request(2, 5)
	req.AppID = "missing"
	_, err := svc.Preview(context.Background(), req)
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, store.calls)
}

func TestPreviewDeterministicWithSeed(t *testing.T) {
	tickets := corpusOf(20)
	for i := range tickets {
		tickets[i].Title = fmt.Sprintf("%s variant %d", tickets[i].Title, i%3)
	}
	emb := vectorize.EmbedderFunc(func(_ context.Context, text string) ([]float32, error) {
		h := 0
		for _, r := range text {
			h = (h*31 + int(r)) % 1000
		}
		return []float32{float32(h % 10), float32(h % 7), float32(h % 13), 1}, nil
	})
	svc := newService(t, &fakeTickets{tickets: tickets}, emb, &fakeFAQs{}, nil)

	a, err := svc.Preview(context.Background(), request(2, 6))
	require.NoError(t, err)
	b, err := svc.Preview(context.Background(), request(2, 6))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPreviewTimeout(t *testing.T) {
	emb := vectorize.EmbedderFunc(func(ctx context.Context, _ string) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond
	svc, err := New(cfg, Deps{Tickets: &fakeTickets{tickets: corpusOf(4)}, Embedder: emb, FAQs: &fakeFAQs{}})
	require.NoError(t, err)

	_, err = svc.Preview(context.Background(), request(2, 3))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPreviewRateLimitPastTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 500 * time.Millisecond
	cfg.Vectorize.Workers = 1
	cfg.Vectorize.RateLimit = 1
	cfg.Vectorize.Burst = 1
	faqs := &fakeFAQs{}
	svc, err := New(cfg, Deps{Tickets: &fakeTickets{tickets: corpusOf(4)}, Embedder: topicEmbedder(""), FAQs: faqs})
	require.NoError(t, err)

	_, err = svc.Preview(context.Background(), request(2, 3))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = svc.Generate(context.Background(), request(2, 3), domain.MaterializeOptions{Publish: true})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, faqs.entries)
}

type failingApps struct{}

func (failingApps) AppExists(context.Context, string) (bool, error) {
	return false, errors.New("connection reset")
}

func TestPreviewAppLookupFailureIsNotNotFound(t *testing.T) {
	store := &fakeTickets{tickets: corpusOf(10)}
	svc := newService(t, store, topicEmbedder(""), &fakeFAQs{}, func(d *Deps) { d.Apps = failingApps{} })

	_, err := svc.Preview(context.Background(), request(3, 4))
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, domain.IsValidation(err))
	assert.Zero(t, store.calls)
}

func TestPreviewFlagsDuplicates(t *testing.T) {
	idx := &fakeIndex{match: "faq-existing"}
	svc := newService(t, &fakeTickets{tickets: corpusOf(10)}, topicEmbedder(""), &fakeFAQs{}, func(d *Deps) { d.Index = idx })

	res, err := svc.Preview(context.Background(), request(3, 4))
	require.NoError(t, err)
	require.Len(t, res.Clusters, 2)
	for _, c := range res.Clusters {
		if strings.Contains(c.Question, "password") {
			assert.Equal(t, "faq-existing", c.DuplicateOf)
		} else {
			assert.Empty(t, c.DuplicateOf)
		}
	}
	assertAccounted(t, res)
}

func TestGenerateAutoPublish(t *testing.T) {
	faqs := &fakeFAQs{}
	notifier := &fakeNotifier{}
	idx := &fakeIndex{}
	reg := metrics.New()
	svc := newService(t, &fakeTickets{tickets: corpusOf(10)}, topicEmbedder(""), faqs, func(d *Deps) {
		d.Notifier = notifier
		d.Index = idx
		d.Metrics = NewMetrics(reg)
	})

	threshold := 0.8
	res, err := svc.Generate(context.Background(), request(3, 4), domain.MaterializeOptions{AutoPublishThreshold: &threshold})
	require.NoError(t, err)

	require.Len(t, res.Created, 2)
	assert.Empty(t, res.Failed)
	for _, e := range res.Created {
		// The billing cluster has full cohesion, the password cluster 0.6.
		assert.Equal(t, strings.Contains(e.Question, "invoice"), e.IsPublished, e.Question)
	}
	assert.Len(t, notifier.published, 1)
	assert.Len(t, idx.indexed, 2)
	assert.Equal(t, domain.MaterializeStatistics{Total: 2, Success: 2}, res.Statistics)
	out := reg.Render()
	assert.Contains(t, out, `faqgen_faqs_created_total{published="true"} 1`)
	assert.Contains(t, out, `faqgen_faqs_created_total{published="false"} 1`)
	assert.Contains(t, out, `faqgen_runs_total{outcome="ok"} 1`)
}

func TestGenerateSubset(t *testing.T) {
	svc := newService(t, &fakeTickets{tickets: corpusOf(10)}, topicEmbedder(""), &fakeFAQs{}, nil)
	preview, err := svc.Preview(context.Background(), request(3, 4))
	require.NoError(t, err)
	require.NotEmpty(t, preview.Clusters)

	id := preview.Clusters[0].ClusterID
	res, err := svc.Generate(context.Background(), request(3, 4), domain.MaterializeOptions{ClusterIDs: []string{id}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Statistics.Total)
	assert.Equal(t, id, res.Outcomes[0].ClusterID)

	_, err = svc.Generate(context.Background(), request(3, 4), domain.MaterializeOptions{ClusterIDs: []string{"cluster_99"}})
	assert.ErrorIs(t, err, domain.ErrUnknownCluster)
	assert.True(t, domain.IsValidation(err))
}

func TestGeneratePartialFailure(t *testing.T) {
	svc := newService(t, &fakeTickets{tickets: corpusOf(10)}, topicEmbedder(""), &fakeFAQs{}, nil)
	preview, err := svc.Preview(context.Background(), request(3, 4))
	require.NoError(t, err)
	require.Len(t, preview.Clusters, 2)

	faqs := &fakeFAQs{fail: map[string]bool{preview.Clusters[1].ClusterID: true}}
	svc = newService(t, &fakeTickets{tickets: corpusOf(10)}, topicEmbedder(""), faqs, nil)

	res, err := svc.Generate(context.Background(), request(3, 4), domain.MaterializeOptions{})
	require.NoError(t, err)
	assert.Len(t, res.Created, 1)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, preview.Clusters[1].ClusterID, res.Failed[0].ClusterID)
	assert.Equal(t, 2, len(res.Created)+len(res.Failed))
}

func TestCreateFAQsFromClustersManual(t *testing.T) {
	faqs := &fakeFAQs{}
	svc := newService(t, &fakeTickets{}, topicEmbedder(""), faqs, nil)

	cands := []domain.FAQCandidate{
		{ClusterID: "c1", Question: "How do I export data?", Answer: "Use the export button.", Confidence: 0.9},
		{ClusterID: "c2", Question: "Where is my invoice?", Answer: "Under billing.", Confidence: 0.6},
	}
	threshold := 0.8
	res, err := svc.CreateFAQsFromClusters(context.Background(), "app-1", cands, domain.MaterializeOptions{AutoPublishThreshold: &threshold})
	require.NoError(t, err)
	require.Len(t, res.Created, 2)
	assert.True(t, res.Created[0].IsPublished)
	assert.False(t, res.Created[1].IsPublished)

	cands[1].ClusterID = "c1"
	_, err = svc.CreateFAQsFromClusters(context.Background(), "app-1", cands, domain.MaterializeOptions{})
	assert.ErrorIs(t, err, domain.ErrDuplicateCluster)
	assert.Len(t, faqs.entries, 2, "rejected batch must not write")

	_, err = svc.CreateFAQsFromClusters(context.Background(), "nope", cands[:1], domain.MaterializeOptions{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateFAQFromCluster(t *testing.T) {
	svc := newService(t, &fakeTickets{}, topicEmbedder(""), &fakeFAQs{}, nil)
	category := "billing"
	entry, err := svc.CreateFAQFromCluster(context.Background(), "app-1",
		domain.FAQCandidate{ClusterID: "c1", Question: "Where is my invoice?", Category: "account", Confidence: 0.2},
		domain.MaterializeOptions{Category: &category, Tags: []string{"Invoice"}, Publish: true})
	require.NoError(t, err)
	assert.Equal(t, "billing", entry.Category)
	assert.Equal(t, []string{"Invoice"}, entry.Tags)
	assert.True(t, entry.IsPublished)
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(DefaultConfig(), Deps{})
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.CorpusLimit = 0
	_, err = New(cfg, Deps{Tickets: &fakeTickets{}, Embedder: topicEmbedder(""), FAQs: &fakeFAQs{}})
	assert.ErrorContains(t, err, "corpus_limit")
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MaxIterations = 0
	cfg.Timeout = -time.Second
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_iterations")
	assert.Contains(t, err.Error(), "timeout")
}
