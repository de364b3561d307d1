// Package vectorize turns tickets into embedding vectors. A ticket whose
// embedding fails is given a zero vector and reported as a degradation so the
// run can continue over the full corpus.
package vectorize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/WessleyAI/wessley-support/engine/domain"
	"github.com/WessleyAI/wessley-support/pkg/fn"
	"github.com/WessleyAI/wessley-support/pkg/resilience"
)

// Embedder maps text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) { return f(ctx, text) }

// Options configures the vectorization stage.
type Options struct {
	// Workers bounds concurrent embed calls.
	Workers int `yaml:"workers"`
	// FallbackDimension sizes zero vectors when no ticket embeds successfully.
	FallbackDimension int `yaml:"fallback_dimension"`
	// RateLimit caps embed calls per second. Zero disables limiting.
	RateLimit float64      `yaml:"rate_limit"`
	Burst     int          `yaml:"burst"`
	Retry     fn.RetryOpts `yaml:"-"`
	// Breaker, if set, short-circuits calls while the embedder is failing.
	Breaker *resilience.Breaker `yaml:"-"`
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Workers:           4,
		FallbackDimension: 768,
		Retry:             fn.NoRetry,
	}
}

// Result holds one vector per input ticket, in input order.
type Result struct {
	Vectors      [][]float32
	Dimension    int
	Degradations []domain.Degradation
}

// Stage embeds ticket text.
type Stage struct {
	embedder Embedder
	opts     Options
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// New creates a vectorization stage.
func New(embedder Embedder, opts Options, logger *slog.Logger) *Stage {
	def := DefaultOptions()
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.FallbackDimension <= 0 {
		opts.FallbackDimension = def.FallbackDimension
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = def.Retry
	}
	retryable := opts.Retry.Retryable
	opts.Retry.Retryable = func(err error) bool {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return false
		}
		return retryable == nil || retryable(err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Stage{embedder: embedder, opts: opts, logger: logger}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return s
}

// Text is the string embedded for a ticket.
func Text(t domain.TicketRecord) string {
	title := strings.TrimSpace(t.Title)
	body := strings.TrimSpace(t.Body)
	if body == "" {
		return title
	}
	return title + "\n\n" + body
}

type outcome struct {
	vec []float32
	err error
}

// rateWaitError reports that the rate limiter could not admit a call before
// the run's deadline. It ends the run instead of degrading one ticket.
type rateWaitError struct{ err error }

func (e *rateWaitError) Error() string { return "rate limit wait: " + e.err.Error() }

func (e *rateWaitError) Unwrap() []error { return []error{context.DeadlineExceeded, e.err} }

// Vectorize embeds every ticket. Only cancellation of ctx, or a rate limit that
// cannot be met before its deadline, fails the call; per-ticket failures
// degrade to zero vectors.
func (s *Stage) Vectorize(ctx context.Context, tickets []domain.TicketRecord) (Result, error) {
	outcomes := make([]outcome, len(tickets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, t := range tickets {
		g.Go(func() error {
			vec, err := s.embedOne(gctx, Text(t))
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			var rw *rateWaitError
			if errors.As(err, &rw) {
				return err
			}
			outcomes[i] = outcome{vec: vec, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("vectorize: %w", err)
	}

	dim := 0
	for _, o := range outcomes {
		if o.err == nil {
			dim = len(o.vec)
			break
		}
	}
	if dim == 0 {
		dim = s.opts.FallbackDimension
	}

	res := Result{Vectors: make([][]float32, len(tickets)), Dimension: dim}
	for i, o := range outcomes {
		err := o.err
		if err == nil && len(o.vec) != dim {
			err = fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(o.vec), dim)
		}
		if err == nil {
			res.Vectors[i] = o.vec
			continue
		}
		uerr := &domain.UpstreamError{Dependency: "embedder", TicketID: tickets[i].ID, Err: err}
		s.logger.Warn("embedding degraded to zero vector", "ticket_id", tickets[i].ID, "err", uerr)
		res.Vectors[i] = make([]float32, dim)
		res.Degradations = append(res.Degradations, domain.Degradation{TicketID: tickets[i].ID, Reason: err.Error()})
	}
	return res, nil
}

func (s *Stage) embedOne(ctx context.Context, text string) ([]float32, error) {
	call := func(ctx context.Context) fn.Result[[]float32] {
		vec, err := s.embedder.Embed(ctx, text)
		if err == nil && len(vec) == 0 {
			err = errors.New("empty vector")
		}
		return fn.FromPair(vec, err)
	}
	guarded := call
	if s.opts.Breaker != nil {
		guarded = func(ctx context.Context) fn.Result[[]float32] {
			return resilience.Do(s.opts.Breaker, ctx, call)
		}
	}
	// Limiter waits are not recorded by the breaker.
	attempt := func(ctx context.Context) fn.Result[[]float32] {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return fn.Err[[]float32](&rateWaitError{err: err})
			}
		}
		return guarded(ctx)
	}
	return fn.Retry(ctx, s.opts.Retry, attempt).Unwrap()
}
