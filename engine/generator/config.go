package generator

import (
	"errors"
	"fmt"
	"time"

	"github.com/WessleyAI/wessley-support/engine/cluster"
	"github.com/WessleyAI/wessley-support/engine/corpus"
	"github.com/WessleyAI/wessley-support/engine/faq"
	"github.com/WessleyAI/wessley-support/engine/vectorize"
)

// Config is the validated configuration of a Service. It is built once and
// passed to every stage of a run.
type Config struct {
	// CorpusLimit caps the number of tickets considered per run.
	CorpusLimit int `yaml:"corpus_limit"`
	// MaxIterations caps k-means reassignment rounds.
	MaxIterations int `yaml:"max_iterations"`
	// Seed makes centroid initialisation reproducible. Zero seeds from the clock.
	Seed int64 `yaml:"seed"`
	// Timeout bounds the analysis part of a run. Zero means no limit beyond
	// the caller's context.
	Timeout time.Duration `yaml:"timeout"`

	Vectorize vectorize.Options `yaml:"vectorize"`
	FAQ       faq.Options       `yaml:"faq"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		CorpusLimit:   corpus.DefaultLimit,
		MaxIterations: cluster.DefaultMaxIterations,
		Timeout:       2 * time.Minute,
		Vectorize:     vectorize.DefaultOptions(),
		FAQ:           faq.DefaultOptions(),
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	var errs []error
	if c.CorpusLimit < 1 {
		errs = append(errs, fmt.Errorf("corpus_limit must be positive, got %d", c.CorpusLimit))
	}
	if c.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Timeout))
	}
	if c.Vectorize.Workers < 0 {
		errs = append(errs, fmt.Errorf("vectorize.workers must not be negative, got %d", c.Vectorize.Workers))
	}
	if c.Vectorize.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("vectorize.rate_limit must not be negative, got %g", c.Vectorize.RateLimit))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("generator: invalid config: %w", err)
	}
	return nil
}
