package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WessleyAI/wessley-support/engine/domain"
	"github.com/WessleyAI/wessley-support/pkg/keylock"
	"github.com/WessleyAI/wessley-support/pkg/metrics"
)

// --- Fakes ---

type fakeService struct {
	mu          sync.Mutex
	previewReq  domain.GenerateRequest
	generateReq domain.GenerateRequest
	opts        domain.MaterializeOptions
	cands       []domain.FAQCandidate
	err         error
	block       chan struct{}
}

func (f *fakeService) Preview(_ context.Context, req domain.GenerateRequest) (domain.PreviewResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.previewReq = req
	if f.err != nil {
		return domain.PreviewResult{}, f.err
	}
	return domain.PreviewResult{
		Clusters:   []domain.FAQCandidate{{ClusterID: "cluster_0", Question: "How do I reset my password?", Confidence: 0.6}},
		Statistics: domain.PreviewStatistics{TotalInquiries: 3, ClusteredInquiries: 3, GeneratedFAQs: 1},
	}, nil
}

func (f *fakeService) Generate(_ context.Context, req domain.GenerateRequest, opts domain.MaterializeOptions) (domain.MaterializeResult, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generateReq, f.opts = req, opts
	if f.err != nil {
		return domain.MaterializeResult{}, f.err
	}
	return domain.MaterializeResult{
		Created:    []domain.FAQEntry{{ID: "faq-1", AppID: req.AppID, IsPublished: opts.Publish}},
		Failed:     []domain.ClusterFailure{},
		Statistics: domain.MaterializeStatistics{Total: 1, Success: 1},
	}, nil
}

func (f *fakeService) CreateFAQsFromClusters(_ context.Context, appID string, cands []domain.FAQCandidate, opts domain.MaterializeOptions) (domain.MaterializeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cands, f.opts = cands, opts
	if f.err != nil {
		return domain.MaterializeResult{}, f.err
	}
	return domain.MaterializeResult{Statistics: domain.MaterializeStatistics{Total: len(cands), Success: len(cands)}}, nil
}

type fakeLister struct {
	entries []domain.FAQEntry
	offset  int
	limit   int
}

func (f *fakeLister) ListFAQs(_ context.Context, _ string, offset, limit int) ([]domain.FAQEntry, error) {
	f.offset, f.limit = offset, limit
	return f.entries, nil
}

func newTestServer(svc *fakeService, lister *fakeLister) (http.Handler, *metrics.Registry) {
	srv := &server{
		svc:         svc,
		faqs:        lister,
		locks:       &keylock.Locker{},
		lockTimeout: 50 * time.Millisecond,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	reg := metrics.New()
	mux := http.NewServeMux()
	srv.routes(mux, reg)
	return mux, reg
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, bytes.NewBufferString(body)))
	return rec
}

// --- Tests ---

func TestHealthEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	handleHealth(rec, httptest.NewRequest("GET", "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestPreviewEndpoint(t *testing.T) {
	svc := &fakeService{}
	h, _ := newTestServer(svc, &fakeLister{})

	body := `{"min_cluster_size":3,"max_clusters":10,"similarity_threshold":0.7,"categories":["billing"]}`
	rec := do(h, "POST", "/api/apps/app-1/faq/preview", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "app-1", svc.previewReq.AppID)
	assert.Equal(t, 3, svc.previewReq.MinClusterSize)
	assert.Equal(t, []string{"billing"}, svc.previewReq.Categories)

	var res domain.PreviewResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Len(t, res.Clusters, 1)
	assert.Equal(t, 3, res.Statistics.TotalInquiries)
}

func TestPreviewEndpoint_InvalidJSON(t *testing.T) {
	h, _ := newTestServer(&fakeService{}, &fakeLister{})
	assert.Equal(t, http.StatusBadRequest, do(h, "POST", "/api/apps/a/faq/preview", "not json").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, "POST", "/api/apps/a/faq/preview", `{"bogus":1}`).Code,
		"unknown fields should be rejected")
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.NewValidationError("min_cluster_size", "1", domain.ErrMinClusterSize), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", &domain.NotFoundError{Resource: "app", ID: "x"}), http.StatusNotFound},
		{fmt.Errorf("generator: preview x: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{context.Canceled, statusClientClosed},
		{errors.New("neo4j down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h, _ := newTestServer(&fakeService{err: tc.err}, &fakeLister{})
		rec := do(h, "POST", "/api/apps/a/faq/preview", `{}`)
		assert.Equal(t, tc.want, rec.Code, "%v", tc.err)
	}
}

func TestValidationErrorNamesField(t *testing.T) {
	err := domain.NewValidationError("max_clusters", "0", domain.ErrMaxClusters)
	h, _ := newTestServer(&fakeService{err: err}, &fakeLister{})
	rec := do(h, "POST", "/api/apps/a/faq/preview", `{}`)

	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "max_clusters", body.Field)
}

func TestInternalErrorHidesDetail(t *testing.T) {
	h, _ := newTestServer(&fakeService{err: errors.New("password=hunter2")}, &fakeLister{})
	rec := do(h, "POST", "/api/apps/a/faq/preview", `{}`)
	assert.NotContains(t, rec.Body.String(), "hunter2")
}

func TestGenerateEndpoint(t *testing.T) {
	svc := &fakeService{}
	h, reg := newTestServer(svc, &fakeLister{})

	body := `{"min_cluster_size":2,"max_clusters":5,"similarity_threshold":0.8,"publish":true,"auto_publish_threshold":0.9,"tags":["billing"],"cluster_ids":["cluster_1"]}`
	rec := do(h, "POST", "/api/apps/app-9/faq/generate", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "app-9", svc.generateReq.AppID)
	assert.Equal(t, 5, svc.generateReq.MaxClusters)
	assert.True(t, svc.opts.Publish)
	require.NotNil(t, svc.opts.AutoPublishThreshold)
	assert.Equal(t, 0.9, *svc.opts.AutoPublishThreshold)
	assert.Equal(t, []string{"cluster_1"}, svc.opts.ClusterIDs)

	var res domain.MaterializeResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	require.Len(t, res.Created, 1)
	assert.True(t, res.Created[0].IsPublished)
	assert.Contains(t, reg.Render(), `http_requests_total{route="generate",status="200"} 1`)
}

func TestGenerateEndpoint_LockedApp(t *testing.T) {
	svc := &fakeService{block: make(chan struct{})}
	h, _ := newTestServer(svc, &fakeLister{})

	done := make(chan int)
	go func() {
		done <- do(h, "POST", "/api/apps/busy/faq/generate", `{}`).Code
	}()

	// Wait until the first request holds the lock.
	rejected := assert.Eventually(t, func() bool {
		return do(h, "POST", "/api/apps/busy/faq/clusters", `{"clusters":[]}`).Code == http.StatusConflict
	}, time.Second, 5*time.Millisecond, "second materialisation for the same app was not rejected")
	close(svc.block)
	code := <-done
	if rejected {
		assert.Equal(t, http.StatusOK, code, "first request")
	}
}

func TestClustersEndpoint(t *testing.T) {
	svc := &fakeService{}
	h, _ := newTestServer(svc, &fakeLister{})

	body := `{"clusters":[{"cluster_id":"c1","question":"Q?","answer":"A","confidence":0.7,"tags":["x"],"source_ticket_ids":["t1"]}],"category":"billing"}`
	rec := do(h, "POST", "/api/apps/app-1/faq/clusters", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, svc.cands, 1)
	assert.Equal(t, "c1", svc.cands[0].ClusterID)
	assert.Equal(t, 0.7, svc.cands[0].Confidence)
	require.NotNil(t, svc.opts.Category, "category override not decoded")
	assert.Equal(t, "billing", *svc.opts.Category)
}

func TestListEndpoint(t *testing.T) {
	lister := &fakeLister{entries: []domain.FAQEntry{{ID: "a"}, {ID: "b"}}}
	h, _ := newTestServer(&fakeService{}, lister)

	rec := do(h, "GET", "/api/apps/app-1/faqs?offset=5&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, lister.offset)
	assert.Equal(t, 2, lister.limit)

	var body struct {
		FAQs []domain.FAQEntry `json:"faqs"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Len(t, body.FAQs, 2)

	assert.Equal(t, http.StatusBadRequest, do(h, "GET", "/api/apps/app-1/faqs?limit=-1", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestServer(&fakeService{}, &fakeLister{})
	do(h, "POST", "/api/apps/a/faq/preview", `{}`)
	rec := do(h, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := loadConfig()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "*", cfg.CORSOrigin)
	assert.Equal(t, 30*time.Second, cfg.LockTimeout)
}
