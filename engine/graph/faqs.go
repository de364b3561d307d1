package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/WessleyAI/wessley-support/engine/domain"
	"github.com/WessleyAI/wessley-support/pkg/repo"
)

func newFAQID() string { return uuid.NewString() }

// createFAQCypher appends the entry at the end of the app's ordering and links
// it to whichever source tickets exist.
const createFAQCypher = `MATCH (a:App {id: $app_id})
OPTIONAL MATCH (a)-[:HAS_FAQ]->(existing:FAQEntry)
WITH a, coalesce(max(existing.order_index), -1) + 1 AS next
CREATE (f:FAQEntry $props)
SET f.order_index = next
MERGE (a)-[:HAS_FAQ]->(f)
WITH f
OPTIONAL MATCH (t:Ticket) WHERE t.id IN $ticket_ids
FOREACH (_ IN CASE WHEN t IS NULL THEN [] ELSE [1] END | MERGE (f)-[:DERIVED_FROM]->(t))
RETURN DISTINCT f AS n`

// Create persists a draft as an FAQEntry node.
func (s *Store) Create(ctx context.Context, d domain.FAQDraft) (domain.FAQEntry, error) {
	now := s.now()
	props := map[string]any{
		"id":                s.newID(),
		"app_id":            d.AppID,
		"cluster_id":        d.ClusterID,
		"question":          d.Question,
		"answer":            d.Answer,
		"category":          d.Category,
		"tags":              toAnySlice(d.Tags),
		"published":         d.IsPublished,
		"source_ticket_ids": toAnySlice(d.SourceTicketIDs),
		"created_at":        now,
		"updated_at":        now,
	}
	entries, err := s.faqs.Query(ctx, createFAQCypher, map[string]any{
		"app_id":     d.AppID,
		"props":      props,
		"ticket_ids": toAnySlice(d.SourceTicketIDs),
	})
	if err != nil {
		return domain.FAQEntry{}, fmt.Errorf("graph: create faq: %w", err)
	}
	if len(entries) == 0 {
		return domain.FAQEntry{}, &domain.NotFoundError{Resource: "app", ID: d.AppID}
	}
	return entries[0], nil
}

// GetFAQ returns one entry by id.
func (s *Store) GetFAQ(ctx context.Context, id string) (domain.FAQEntry, error) {
	e, err := s.faqs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.FAQEntry{}, &domain.NotFoundError{Resource: "faq", ID: id}
		}
		return domain.FAQEntry{}, fmt.Errorf("graph: get faq: %w", err)
	}
	return e, nil
}

// ListFAQs returns an application's entries in display order.
func (s *Store) ListFAQs(ctx context.Context, appID string, offset, limit int) ([]domain.FAQEntry, error) {
	entries, err := s.faqs.List(ctx, repo.ListOpts{
		Offset:  offset,
		Limit:   limit,
		Filter:  map[string]any{"app_id": appID},
		OrderBy: "order_index",
	})
	if err != nil {
		return nil, fmt.Errorf("graph: list faqs: %w", err)
	}
	return entries, nil
}

func faqFromRecord(rec *neo4j.Record) (domain.FAQEntry, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return domain.FAQEntry{}, err
	}
	p := node.Props
	return domain.FAQEntry{
		ID:              strProp(p, "id"),
		AppID:           strProp(p, "app_id"),
		Question:        strProp(p, "question"),
		Answer:          strProp(p, "answer"),
		Category:        strProp(p, "category"),
		Tags:            stringsProp(p, "tags"),
		IsPublished:     boolProp(p, "published"),
		OrderIndex:      intProp(p, "order_index"),
		SourceTicketIDs: stringsProp(p, "source_ticket_ids"),
		CreatedAt:       timeProp(p, "created_at"),
		UpdatedAt:       timeProp(p, "updated_at"),
	}, nil
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
