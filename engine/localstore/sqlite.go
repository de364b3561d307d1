// Package localstore keeps tickets, applications and FAQ entries in a single
// SQLite file for local runs of the engine.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/WessleyAI/wessley-support/engine/corpus"
	"github.com/WessleyAI/wessley-support/engine/domain"
)

// timeLayout sorts lexicographically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements the ticket, FAQ and app operations over SQLite.
type Store struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("localstore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("localstore: ping %s: %w", path, err)
	}

	s := &Store{
		db:    db,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("localstore: init schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS apps (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS tickets (
			id TEXT PRIMARY KEY,
			app_id TEXT NOT NULL REFERENCES apps(id),
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			resolved_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS responses (
			ticket_id TEXT NOT NULL REFERENCES tickets(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			content TEXT NOT NULL,
			is_public INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (ticket_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS faq_entries (
			id TEXT PRIMARY KEY,
			app_id TEXT NOT NULL REFERENCES apps(id),
			cluster_id TEXT NOT NULL DEFAULT '',
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			tags JSON NOT NULL,
			published INTEGER NOT NULL,
			order_index INTEGER NOT NULL,
			source_ticket_ids JSON NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (app_id, order_index)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_app_status ON tickets(app_id, status, resolved_at);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// --- AppDirectory ---

// AppExists reports whether the application is registered.
func (s *Store) AppExists(ctx context.Context, appID string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM apps WHERE id = ?`, appID).Scan(&n); err != nil {
		return false, fmt.Errorf("localstore: app exists: %w", err)
	}
	return n > 0, nil
}

// EnsureApp registers the application if missing.
func (s *Store) EnsureApp(ctx context.Context, appID, name string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO apps (id, name) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`, appID, name)
	if err != nil {
		return fmt.Errorf("localstore: ensure app %s: %w", appID, err)
	}
	return nil
}

// --- TicketStore ---

// SaveTicket creates or replaces a ticket and its responses. The owning app
// is registered on the fly.
func (s *Store) SaveTicket(ctx context.Context, t domain.TicketRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("localstore: save ticket %s: %w", t.ID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO apps (id) VALUES (?) ON CONFLICT(id) DO NOTHING`, t.AppID); err != nil {
		return fmt.Errorf("localstore: save ticket %s: %w", t.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tickets (id, app_id, title, body, category, status, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			app_id=excluded.app_id,
			title=excluded.title,
			body=excluded.body,
			category=excluded.category,
			status=excluded.status,
			created_at=excluded.created_at,
			resolved_at=excluded.resolved_at
	`, t.ID, t.AppID, t.Title, t.Body, t.Category, string(t.Status), formatTime(t.CreatedAt), nullTime(t.ResolvedAt))
	if err != nil {
		return fmt.Errorf("localstore: save ticket %s: %w", t.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM responses WHERE ticket_id = ?`, t.ID); err != nil {
		return fmt.Errorf("localstore: save ticket %s: %w", t.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO responses (ticket_id, seq, content, is_public, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("localstore: save ticket %s: %w", t.ID, err)
	}
	defer stmt.Close()
	for i, r := range t.Responses {
		if _, err := stmt.ExecContext(ctx, t.ID, i, r.Content, r.IsPublic, formatTime(r.CreatedAt)); err != nil {
			return fmt.Errorf("localstore: save ticket %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// FetchResolved returns resolved tickets of an application that carry a
// public response, newest first.
func (s *Store) FetchResolved(ctx context.Context, c corpus.Criteria) ([]domain.TicketRecord, error) {
	var (
		where = []string{
			"t.app_id = ?",
			"t.status = ?",
			"EXISTS (SELECT 1 FROM responses r WHERE r.ticket_id = t.id AND r.is_public = 1)",
		}
		args = []any{c.AppID, string(domain.StatusResolved)}
	)
	if r := c.DateRange; r != nil {
		if !r.From.IsZero() {
			where = append(where, "t.resolved_at >= ?")
			args = append(args, formatTime(r.From))
		}
		if !r.To.IsZero() {
			where = append(where, "t.resolved_at <= ?")
			args = append(args, formatTime(r.To))
		}
	}
	if len(c.Categories) > 0 {
		where = append(where, "lower(t.category) IN ("+placeholders(len(c.Categories))+")")
		for _, cat := range c.Categories {
			args = append(args, strings.ToLower(strings.TrimSpace(cat)))
		}
	}
	limit := c.Limit
	if limit <= 0 {
		limit = corpus.DefaultLimit
	}
	args = append(args, limit)

	query := `SELECT t.id, t.app_id, t.title, t.body, t.category, t.status, t.created_at, t.resolved_at
		FROM tickets t WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY t.resolved_at DESC, t.id LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("localstore: fetch resolved: %w", err)
	}
	defer rows.Close()

	var (
		tickets []domain.TicketRecord
		index   = make(map[string]int)
	)
	for rows.Next() {
		var (
			t               domain.TicketRecord
			status, created string
			resolved        sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.AppID, &t.Title, &t.Body, &t.Category, &status, &created, &resolved); err != nil {
			return nil, fmt.Errorf("localstore: scan ticket: %w", err)
		}
		t.Status = domain.TicketStatus(status)
		t.CreatedAt = parseTime(created)
		if resolved.Valid {
			t.ResolvedAt = parseTime(resolved.String)
		}
		index[t.ID] = len(tickets)
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("localstore: fetch resolved: %w", err)
	}
	if len(tickets) == 0 {
		return nil, nil
	}
	if err := s.loadResponses(ctx, tickets, index); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *Store) loadResponses(ctx context.Context, tickets []domain.TicketRecord, index map[string]int) error {
	args := make([]any, len(tickets))
	for i, t := range tickets {
		args[i] = t.ID
	}
	rows, err := s.db.QueryContext(ctx, `SELECT ticket_id, content, is_public, created_at FROM responses
		WHERE ticket_id IN (`+placeholders(len(args))+`) ORDER BY ticket_id, seq`, args...)
	if err != nil {
		return fmt.Errorf("localstore: load responses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ticketID, created string
			r                 domain.Response
		)
		if err := rows.Scan(&ticketID, &r.Content, &r.IsPublic, &created); err != nil {
			return fmt.Errorf("localstore: scan response: %w", err)
		}
		r.CreatedAt = parseTime(created)
		i := index[ticketID]
		tickets[i].Responses = append(tickets[i].Responses, r)
	}
	return rows.Err()
}

// --- FAQStore ---

const faqColumns = `id, app_id, question, answer, category, tags, published, order_index, source_ticket_ids, created_at, updated_at`

// Create persists a draft at the end of the application's ordering.
func (s *Store) Create(ctx context.Context, d domain.FAQDraft) (domain.FAQEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.FAQEntry{}, fmt.Errorf("localstore: create faq: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM apps WHERE id = ?`, d.AppID).Scan(&exists); err != nil {
		return domain.FAQEntry{}, fmt.Errorf("localstore: create faq: %w", err)
	}
	if exists == 0 {
		return domain.FAQEntry{}, &domain.NotFoundError{Resource: "app", ID: d.AppID}
	}

	var next int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(order_index), -1) + 1 FROM faq_entries WHERE app_id = ?`, d.AppID).Scan(&next); err != nil {
		return domain.FAQEntry{}, fmt.Errorf("localstore: create faq: %w", err)
	}

	now := s.now()
	e := domain.FAQEntry{
		ID:              s.newID(),
		AppID:           d.AppID,
		Question:        d.Question,
		Answer:          d.Answer,
		Category:        d.Category,
		Tags:            nonNil(d.Tags),
		IsPublished:     d.IsPublished,
		OrderIndex:      next,
		SourceTicketIDs: nonNil(d.SourceTicketIDs),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	tags, _ := json.Marshal(e.Tags)
	sources, _ := json.Marshal(e.SourceTicketIDs)
	_, err = tx.ExecContext(ctx, `INSERT INTO faq_entries (`+faqColumns+`, cluster_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AppID, e.Question, e.Answer, e.Category, tags, e.IsPublished, e.OrderIndex, sources,
		formatTime(now), formatTime(now), d.ClusterID)
	if err != nil {
		return domain.FAQEntry{}, fmt.Errorf("localstore: create faq: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.FAQEntry{}, fmt.Errorf("localstore: create faq: %w", err)
	}
	return e, nil
}

// GetFAQ returns one entry by id.
func (s *Store) GetFAQ(ctx context.Context, id string) (domain.FAQEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+faqColumns+` FROM faq_entries WHERE id = ?`, id)
	e, err := scanFAQ(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FAQEntry{}, &domain.NotFoundError{Resource: "faq", ID: id}
	}
	if err != nil {
		return domain.FAQEntry{}, fmt.Errorf("localstore: get faq: %w", err)
	}
	return e, nil
}

// ListFAQs returns an application's entries in display order.
func (s *Store) ListFAQs(ctx context.Context, appID string, offset, limit int) ([]domain.FAQEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+faqColumns+` FROM faq_entries
		WHERE app_id = ? ORDER BY order_index LIMIT ? OFFSET ?`, appID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("localstore: list faqs: %w", err)
	}
	defer rows.Close()

	var entries []domain.FAQEntry
	for rows.Next() {
		e, err := scanFAQ(rows)
		if err != nil {
			return nil, fmt.Errorf("localstore: scan faq: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFAQ(sc scanner) (domain.FAQEntry, error) {
	var (
		e                domain.FAQEntry
		tags, sources    []byte
		created, updated string
	)
	err := sc.Scan(&e.ID, &e.AppID, &e.Question, &e.Answer, &e.Category, &tags, &e.IsPublished,
		&e.OrderIndex, &sources, &created, &updated)
	if err != nil {
		return domain.FAQEntry{}, err
	}
	if err := json.Unmarshal(tags, &e.Tags); err != nil {
		return domain.FAQEntry{}, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal(sources, &e.SourceTicketIDs); err != nil {
		return domain.FAQEntry{}, fmt.Errorf("decode source tickets: %w", err)
	}
	e.CreatedAt = parseTime(created)
	e.UpdatedAt = parseTime(updated)
	return e, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
