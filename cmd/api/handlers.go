package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/WessleyAI/wessley-support/engine/domain"
	"github.com/WessleyAI/wessley-support/pkg/keylock"
	"github.com/WessleyAI/wessley-support/pkg/metrics"
	"github.com/WessleyAI/wessley-support/pkg/mid"
)

const (
	maxBodyBytes = 4 << 20
	// statusClientClosed is reported when the caller went away mid-request.
	statusClientClosed = 499
)

// faqService is the part of generator.Service the handlers use.
type faqService interface {
	Preview(ctx context.Context, req domain.GenerateRequest) (domain.PreviewResult, error)
	Generate(ctx context.Context, req domain.GenerateRequest, opts domain.MaterializeOptions) (domain.MaterializeResult, error)
	CreateFAQsFromClusters(ctx context.Context, appID string, cands []domain.FAQCandidate, opts domain.MaterializeOptions) (domain.MaterializeResult, error)
}

type faqLister interface {
	ListFAQs(ctx context.Context, appID string, offset, limit int) ([]domain.FAQEntry, error)
}

type server struct {
	svc         faqService
	faqs        faqLister
	locks       *keylock.Locker
	lockTimeout time.Duration
	logger      *slog.Logger
}

func (s *server) routes(mux *http.ServeMux, reg *metrics.Registry) {
	handle := func(pattern, route string, h http.HandlerFunc) {
		mux.Handle(pattern, mid.Metrics(reg, route)(h))
	}
	mux.HandleFunc("GET /api/health", handleHealth)
	handle("POST /api/apps/{appId}/faq/preview", "preview", s.handlePreview)
	handle("POST /api/apps/{appId}/faq/generate", "generate", s.handleGenerate)
	handle("POST /api/apps/{appId}/faq/clusters", "clusters", s.handleClusters)
	handle("GET /api/apps/{appId}/faqs", "list", s.handleList)
	mux.Handle("GET /metrics", reg.Handler())
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// generateBody is the body of the generate endpoint.
type generateBody struct {
	domain.GenerateRequest
	domain.MaterializeOptions
}

// clustersBody is the body of the manual materialization endpoint.
type clustersBody struct {
	Clusters []domain.FAQCandidate `json:"clusters"`
	domain.MaterializeOptions
}

func (s *server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req domain.GenerateRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.AppID = r.PathValue("appId")

	res, err := s.svc.Preview(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body generateBody
	if !s.decode(w, r, &body) {
		return
	}
	appID := r.PathValue("appId")
	body.GenerateRequest.AppID = appID

	unlock, ok := s.lock(w, r, appID)
	if !ok {
		return
	}
	defer unlock()

	res, err := s.svc.Generate(r.Context(), body.GenerateRequest, body.MaterializeOptions)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleClusters(w http.ResponseWriter, r *http.Request) {
	var body clustersBody
	if !s.decode(w, r, &body) {
		return
	}
	appID := r.PathValue("appId")

	unlock, ok := s.lock(w, r, appID)
	if !ok {
		return
	}
	defer unlock()

	res, err := s.svc.CreateFAQsFromClusters(r.Context(), appID, body.Clusters, body.MaterializeOptions)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	offset, errOff := queryInt(r, "offset", 0)
	limit, errLim := queryInt(r, "limit", 50)
	if err := errors.Join(errOff, errLim); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	entries, err := s.faqs.ListFAQs(r.Context(), r.PathValue("appId"), offset, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.FAQEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"faqs": entries})
}

// lock serialises materialisations per application.
func (s *server) lock(w http.ResponseWriter, r *http.Request, appID string) (func(), bool) {
	ctx := r.Context()
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}
	unlock, err := s.locks.Lock(ctx, appID)
	if err != nil {
		writeJSON(w, http.StatusConflict, errorBody{Error: "another generation is running for this app"})
		return nil, false
	}
	return unlock, true
}

func (s *server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

type errorBody struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	body := errorBody{Error: err.Error(), RequestID: mid.RequestIDFrom(r.Context())}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "status", status, "err", err)
		if status == http.StatusInternalServerError {
			body.Error = "internal server error"
		}
	}
	writeJSON(w, status, body)
}

// statusOf maps engine errors to HTTP statuses.
func statusOf(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return statusClientClosed
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}
