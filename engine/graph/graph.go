// Package graph stores tickets, applications and FAQ entries in Neo4j.
//
// Model:
//
//	(:App)-[:HAS_TICKET]->(:Ticket)-[:HAS_RESPONSE]->(:Response)
//	(:App)-[:HAS_FAQ]->(:FAQEntry)-[:DERIVED_FROM]->(:Ticket)
package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/wessley-support/engine/domain"
	"github.com/WessleyAI/wessley-support/pkg/repo"
)

// Store provides the ticket, FAQ and app operations on top of the generic
// Neo4j repository.
type Store struct {
	sessions repo.SessionFunc
	faqs     *repo.Neo4jRepo[domain.FAQEntry, string]
	now      func() time.Time
	newID    func() string
}

// New creates a Store on driver against database ("" for the default).
func New(driver neo4j.DriverWithContext, database string) *Store {
	return NewWithSessions(repo.DriverSessions(driver, database))
}

// NewWithSessions creates a Store over an arbitrary session source.
func NewWithSessions(sessions repo.SessionFunc) *Store {
	return &Store{
		sessions: sessions,
		faqs:     repo.NewNeo4jRepo[domain.FAQEntry, string](sessions, "FAQEntry", faqFromRecord),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    newFAQID,
	}
}

var schema = []string{
	`CREATE CONSTRAINT app_id IF NOT EXISTS FOR (a:App) REQUIRE a.id IS UNIQUE`,
	`CREATE CONSTRAINT ticket_id IF NOT EXISTS FOR (t:Ticket) REQUIRE t.id IS UNIQUE`,
	`CREATE CONSTRAINT faq_id IF NOT EXISTS FOR (f:FAQEntry) REQUIRE f.id IS UNIQUE`,
	`CREATE INDEX ticket_app_status IF NOT EXISTS FOR (t:Ticket) ON (t.app_id, t.status)`,
}

// EnsureSchema creates constraints and indexes if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	sess := s.sessions(ctx)
	defer sess.Close(ctx)
	for _, stmt := range schema {
		result, err := sess.Run(ctx, stmt, nil)
		if err == nil {
			err = repo.Drain(ctx, result)
		}
		if err != nil {
			return fmt.Errorf("graph: ensure schema: %w", err)
		}
	}
	return nil
}

// AppExists reports whether an App node with id exists.
func (s *Store) AppExists(ctx context.Context, appID string) (bool, error) {
	sess := s.sessions(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, `MATCH (a:App {id: $id}) RETURN count(a) > 0 AS found`, map[string]any{"id": appID})
	if err != nil {
		return false, fmt.Errorf("graph: app exists: %w", err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return false, fmt.Errorf("graph: app exists: %w", err)
		}
		return false, errors.New("graph: app exists: empty result")
	}
	found, _, err := neo4j.GetRecordValue[bool](result.Record(), "found")
	if err != nil {
		return false, fmt.Errorf("graph: app exists: %w", err)
	}
	return found, nil
}

// EnsureApp creates the App node if missing.
func (s *Store) EnsureApp(ctx context.Context, appID, name string) error {
	sess := s.sessions(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, `MERGE (a:App {id: $id}) ON CREATE SET a.name = $name`, map[string]any{"id": appID, "name": name})
	if err == nil {
		err = repo.Drain(ctx, result)
	}
	if err != nil {
		return fmt.Errorf("graph: ensure app %s: %w", appID, err)
	}
	return nil
}
