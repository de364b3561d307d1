// Package backend assembles a generator.Service from configuration: the
// ticket and FAQ store (Neo4j or SQLite), the Ollama embedder, the optional
// Qdrant FAQ index and the optional NATS notifier.
package backend

import (
	"errors"
	"fmt"
	"time"

	"github.com/WessleyAI/wessley-support/engine/generator"
	"github.com/WessleyAI/wessley-support/pkg/config"
	"github.com/WessleyAI/wessley-support/pkg/fn"
	"github.com/WessleyAI/wessley-support/pkg/resilience"
)

// Store kinds.
const (
	KindSQLite = "sqlite"
	KindNeo4j  = "neo4j"
)

// Neo4jSettings locates the graph database.
type Neo4jSettings struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// QdrantSettings locates the FAQ vector index. An empty URL disables it.
type QdrantSettings struct {
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"`
	Dimension  int    `yaml:"dimension"`
}

// OllamaSettings configures the embedder.
type OllamaSettings struct {
	URL     string        `yaml:"url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// NATSSettings configures change notifications. An empty URL disables them.
type NATSSettings struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// RetrySettings configures embedding retries.
type RetrySettings struct {
	MaxAttempts int           `yaml:"max_attempts"`
	InitialWait time.Duration `yaml:"initial_wait"`
	MaxWait     time.Duration `yaml:"max_wait"`
}

// Settings is the configuration shared by the binaries.
type Settings struct {
	Store      string         `yaml:"store"`
	SQLitePath string         `yaml:"sqlite_path"`
	Neo4j      Neo4jSettings  `yaml:"neo4j"`
	Qdrant     QdrantSettings `yaml:"qdrant"`
	Ollama     OllamaSettings `yaml:"ollama"`
	NATS       NATSSettings   `yaml:"nats"`

	Retry     RetrySettings          `yaml:"retry"`
	Breaker   resilience.BreakerOpts `yaml:"breaker"`
	Generator generator.Config       `yaml:"generator"`
}

// DefaultSettings returns a local SQLite setup with Ollama on localhost.
func DefaultSettings() Settings {
	return Settings{
		Store:      KindSQLite,
		SQLitePath: "faqgen.db",
		Neo4j: Neo4jSettings{
			URL:  "neo4j://localhost:7687",
			User: "neo4j",
		},
		Qdrant: QdrantSettings{Collection: "faq_entries", Dimension: 768},
		Ollama: OllamaSettings{
			URL:     "http://localhost:11434",
			Model:   "nomic-embed-text",
			Timeout: 30 * time.Second,
		},
		Retry: RetrySettings{
			MaxAttempts: fn.DefaultRetry.MaxAttempts,
			InitialWait: fn.DefaultRetry.InitialWait,
			MaxWait:     fn.DefaultRetry.MaxWait,
		},
		Breaker:   resilience.DefaultBreakerOpts,
		Generator: generator.DefaultConfig(),
	}
}

// LoadSettings starts from DefaultSettings, applies the YAML file at path
// (optional) and then environment overrides.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if err := config.Load(path, &s); err != nil {
		return Settings{}, err
	}
	s.ApplyEnv()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// ApplyEnv overrides settings from the environment.
func (s *Settings) ApplyEnv() {
	s.Store = config.EnvOr("FAQ_STORE", s.Store)
	s.SQLitePath = config.EnvOr("FAQ_SQLITE_PATH", s.SQLitePath)

	s.Neo4j.URL = config.EnvOr("NEO4J_URL", s.Neo4j.URL)
	s.Neo4j.User = config.EnvOr("NEO4J_USER", s.Neo4j.User)
	s.Neo4j.Password = config.EnvOr("NEO4J_PASS", s.Neo4j.Password)
	s.Neo4j.Database = config.EnvOr("NEO4J_DATABASE", s.Neo4j.Database)

	s.Qdrant.URL = config.EnvOr("QDRANT_URL", s.Qdrant.URL)
	s.Qdrant.Collection = config.EnvOr("QDRANT_COLLECTION", s.Qdrant.Collection)
	s.Qdrant.Dimension = config.EnvInt("QDRANT_DIMENSION", s.Qdrant.Dimension)

	s.Ollama.URL = config.EnvOr("OLLAMA_URL", s.Ollama.URL)
	s.Ollama.Model = config.EnvOr("OLLAMA_MODEL", s.Ollama.Model)

	s.NATS.URL = config.EnvOr("NATS_URL", s.NATS.URL)
	s.NATS.Subject = config.EnvOr("NATS_SUBJECT", s.NATS.Subject)

	g := &s.Generator
	g.CorpusLimit = config.EnvInt("FAQ_CORPUS_LIMIT", g.CorpusLimit)
	g.MaxIterations = config.EnvInt("FAQ_MAX_ITERATIONS", g.MaxIterations)
	g.Seed = int64(config.EnvInt("FAQ_SEED", int(g.Seed)))
	g.Timeout = config.EnvDuration("FAQ_TIMEOUT", g.Timeout)
	g.Vectorize.Workers = config.EnvInt("FAQ_EMBED_WORKERS", g.Vectorize.Workers)
	g.Vectorize.RateLimit = config.EnvFloat("FAQ_EMBED_RATE", g.Vectorize.RateLimit)
}

// Validate checks the settings that Open depends on.
func (s Settings) Validate() error {
	var errs []error
	switch s.Store {
	case KindSQLite:
		if s.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite_path is required for the sqlite store"))
		}
	case KindNeo4j:
		if s.Neo4j.URL == "" {
			errs = append(errs, errors.New("neo4j.url is required for the neo4j store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", s.Store))
	}
	if s.Ollama.URL == "" || s.Ollama.Model == "" {
		errs = append(errs, errors.New("ollama.url and ollama.model are required"))
	}
	if s.Qdrant.URL != "" && s.Qdrant.Dimension < 1 {
		errs = append(errs, fmt.Errorf("qdrant.dimension must be positive, got %d", s.Qdrant.Dimension))
	}
	if err := s.Generator.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("backend: invalid settings: %w", err)
	}
	return nil
}

func (s Settings) retryOpts() fn.RetryOpts {
	if s.Retry.MaxAttempts <= 1 {
		return fn.NoRetry
	}
	return fn.RetryOpts{
		MaxAttempts: s.Retry.MaxAttempts,
		InitialWait: s.Retry.InitialWait,
		MaxWait:     s.Retry.MaxWait,
		Jitter:      true,
	}
}
