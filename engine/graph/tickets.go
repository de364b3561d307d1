package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/WessleyAI/wessley-support/engine/corpus"
	"github.com/WessleyAI/wessley-support/engine/domain"
	"github.com/WessleyAI/wessley-support/pkg/repo"
)

const fetchResolvedCypher = `MATCH (t:Ticket {app_id: $app_id, status: 'resolved'})
WHERE ($from IS NULL OR t.resolved_at >= $from)
  AND ($to IS NULL OR t.resolved_at <= $to)
  AND (size($categories) = 0 OR toLower(t.category) IN $categories)
  AND EXISTS { MATCH (t)-[:HAS_RESPONSE]->(:Response {is_public: true}) }
OPTIONAL MATCH (t)-[:HAS_RESPONSE]->(r:Response)
WITH t, r ORDER BY r.created_at
WITH t, collect(r {.content, .is_public, .created_at}) AS responses
RETURN t, responses
ORDER BY t.resolved_at DESC, t.id
LIMIT $limit`

// FetchResolved returns resolved tickets of an application that carry a
// public response, newest first.
func (s *Store) FetchResolved(ctx context.Context, c corpus.Criteria) ([]domain.TicketRecord, error) {
	sess := s.sessions(ctx)
	defer sess.Close(ctx)

	categories := make([]any, 0, len(c.Categories))
	for _, cat := range c.Categories {
		categories = append(categories, strings.ToLower(strings.TrimSpace(cat)))
	}
	params := map[string]any{
		"app_id":     c.AppID,
		"from":       nil,
		"to":         nil,
		"categories": categories,
		"limit":      int64(c.Limit),
	}
	if c.DateRange != nil {
		if !c.DateRange.From.IsZero() {
			params["from"] = c.DateRange.From
		}
		if !c.DateRange.To.IsZero() {
			params["to"] = c.DateRange.To
		}
	}

	result, err := sess.Run(ctx, fetchResolvedCypher, params)
	if err != nil {
		return nil, fmt.Errorf("graph: fetch resolved: %w", err)
	}
	var tickets []domain.TicketRecord
	for result.Next(ctx) {
		t, err := ticketFromRecord(result.Record())
		if err != nil {
			return nil, fmt.Errorf("graph: fetch resolved: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("graph: fetch resolved: %w", err)
	}
	return tickets, nil
}

const saveTicketCypher = `MERGE (a:App {id: $app_id})
MERGE (t:Ticket {id: $id})
SET t += $props
MERGE (a)-[:HAS_TICKET]->(t)
WITH t
OPTIONAL MATCH (t)-[:HAS_RESPONSE]->(old:Response)
DETACH DELETE old
WITH DISTINCT t
UNWIND $responses AS r
CREATE (t)-[:HAS_RESPONSE]->(:Response {content: r.content, is_public: r.is_public, created_at: r.created_at})`

// SaveTicket creates or replaces a ticket and its responses.
func (s *Store) SaveTicket(ctx context.Context, t domain.TicketRecord) error {
	sess := s.sessions(ctx)
	defer sess.Close(ctx)

	responses := make([]any, len(t.Responses))
	for i, r := range t.Responses {
		responses[i] = map[string]any{"content": r.Content, "is_public": r.IsPublic, "created_at": r.CreatedAt}
	}
	result, err := sess.Run(ctx, saveTicketCypher, map[string]any{
		"app_id":    t.AppID,
		"id":        t.ID,
		"props":     ticketToMap(t),
		"responses": responses,
	})
	if err == nil {
		err = repo.Drain(ctx, result)
	}
	if err != nil {
		return fmt.Errorf("graph: save ticket %s: %w", t.ID, err)
	}
	return nil
}

func ticketToMap(t domain.TicketRecord) map[string]any {
	m := map[string]any{
		"id":         t.ID,
		"app_id":     t.AppID,
		"title":      t.Title,
		"body":       t.Body,
		"category":   t.Category,
		"status":     string(t.Status),
		"created_at": t.CreatedAt,
	}
	if !t.ResolvedAt.IsZero() {
		m["resolved_at"] = t.ResolvedAt
	}
	return m
}

func ticketFromRecord(rec *neo4j.Record) (domain.TicketRecord, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "t")
	if err != nil {
		return domain.TicketRecord{}, err
	}
	p := node.Props
	t := domain.TicketRecord{
		ID:         strProp(p, "id"),
		AppID:      strProp(p, "app_id"),
		Title:      strProp(p, "title"),
		Body:       strProp(p, "body"),
		Category:   strProp(p, "category"),
		Status:     domain.TicketStatus(strProp(p, "status")),
		CreatedAt:  timeProp(p, "created_at"),
		ResolvedAt: timeProp(p, "resolved_at"),
	}
	raw, _, err := neo4j.GetRecordValue[[]any](rec, "responses")
	if err != nil {
		return domain.TicketRecord{}, err
	}
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		t.Responses = append(t.Responses, domain.Response{
			Content:   strProp(m, "content"),
			IsPublic:  boolProp(m, "is_public"),
			CreatedAt: timeProp(m, "created_at"),
		})
	}
	return t, nil
}

func strProp(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

func boolProp(props map[string]any, key string) bool {
	b, _ := props[key].(bool)
	return b
}

func intProp(props map[string]any, key string) int {
	if n, ok := props[key].(int64); ok {
		return int(n)
	}
	return 0
}

func timeProp(props map[string]any, key string) time.Time {
	switch v := props[key].(type) {
	case time.Time:
		return v.UTC()
	case dbtype.LocalDateTime:
		return v.Time()
	case string:
		t, _ := time.Parse(time.RFC3339, v)
		return t
	}
	return time.Time{}
}

func stringsProp(props map[string]any, key string) []string {
	raw, _ := props[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
