package cluster

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/WessleyAI/wessley-support/engine/domain"
)

// Validation splits candidates by the minimum size rule.
type Validation struct {
	Valid []domain.ClusterCandidate
	// Unclustered holds the members of dropped clusters.
	Unclustered []string
}

// Validate drops clusters with fewer than minSize members and moves their
// members into Unclustered.
func Validate(candidates []domain.ClusterCandidate, minSize int) Validation {
	var v Validation
	for _, c := range candidates {
		if c.Size() >= minSize {
			v.Valid = append(v.Valid, c)
			continue
		}
		v.Unclustered = append(v.Unclustered, c.MemberIDs...)
	}
	return v
}

// Result is a validated clustering of a corpus.
type Result struct {
	Clusters    []domain.ClusterCandidate
	Unclustered []string
	Iterations  int
	Converged   bool
}

// Engine runs clustering with an injected random source.
type Engine struct {
	rng           *rand.Rand
	maxIterations int
	logger        *slog.Logger
}

// NewEngine creates an Engine. A nil rng is seeded from the clock.
func NewEngine(rng *rand.Rand, maxIterations int, logger *slog.Logger) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{rng: rng, maxIterations: maxIterations, logger: logger}
}

// Run clusters vectors (parallel to ids) and validates the result. Every id
// ends up in exactly one valid cluster or in Unclustered, the latter kept in
// input order.
func (e *Engine) Run(ids []string, vectors [][]float32, minSize, maxClusters int) (Result, error) {
	if len(ids) != len(vectors) {
		return Result{}, fmt.Errorf("cluster: %d ids for %d vectors", len(ids), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != len(vectors[0]) {
			return Result{}, fmt.Errorf("cluster: vector %s: %w", ids[i], domain.ErrDimensionMismatch)
		}
	}

	k := K(len(ids), minSize, maxClusters)
	if k < 1 {
		return Result{Unclustered: append([]string(nil), ids...), Converged: true}, nil
	}

	a := KMeans(vectors, k, e.maxIterations, e.rng)
	v := Validate(Candidates(ids, a), minSize)
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	sort.Slice(v.Unclustered, func(i, j int) bool { return pos[v.Unclustered[i]] < pos[v.Unclustered[j]] })
	if !a.Converged {
		e.logger.Info("clustering hit iteration cap", "iterations", a.Iterations, "k", k)
	}
	return Result{
		Clusters:    v.Valid,
		Unclustered: v.Unclustered,
		Iterations:  a.Iterations,
		Converged:   a.Converged,
	}, nil
}
