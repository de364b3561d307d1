// Package repo provides a generic Neo4j-backed reader and the session
// plumbing shared by the graph stores.
package repo

import (
	"context"
	"errors"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ErrNotFound is returned by Get when no node matches.
var ErrNotFound = errors.New("repo: not found")

// Reader is a generic read-only repository.
type Reader[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
}

// ListOpts controls pagination, filtering and ordering for List.
type ListOpts struct {
	Offset int
	Limit  int
	// Filter matches node properties by equality.
	Filter map[string]any
	// OrderBy names a node property to sort ascending by.
	OrderBy string
}

// Result is the minimal interface needed from a neo4j result. Next returns
// false both at the end of the stream and on failure; Err tells them apart.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// Drain consumes the rest of result and returns the stream error, if any.
// Write statements use it so that failures reported after RUN surface.
func Drain(ctx context.Context, result Result) error {
	for result.Next(ctx) {
	}
	return result.Err()
}

// Runner is the minimal interface needed from a neo4j session.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
	Close(ctx context.Context) error
}

// SessionFunc opens a session. Tests substitute an in-memory runner.
type SessionFunc func(ctx context.Context) Runner

// sessionAdapter adapts neo4j.SessionWithContext to Runner.
type sessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *sessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

// DriverSessions opens sessions on driver against database ("" for the default).
func DriverSessions(driver neo4j.DriverWithContext, database string) SessionFunc {
	return func(ctx context.Context) Runner {
		return &sessionAdapter{sess: driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: database})}
	}
}
