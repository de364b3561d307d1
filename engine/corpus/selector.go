// Package corpus selects the bounded set of resolved tickets a clustering run
// works on.
package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/WessleyAI/wessley-support/engine/domain"
	"github.com/WessleyAI/wessley-support/pkg/fn"
)

// DefaultLimit caps the corpus when no limit is configured.
const DefaultLimit = 1000

// Criteria narrows the tickets fetched for one application.
type Criteria struct {
	AppID      string
	DateRange  *domain.DateRange
	Categories []string
	Limit      int
}

// TicketStore is the external ticket repository.
type TicketStore interface {
	FetchResolved(ctx context.Context, c Criteria) ([]domain.TicketRecord, error)
}

// Selector fetches and filters the eligible ticket set.
type Selector struct {
	store  TicketStore
	limit  int
	logger *slog.Logger
}

// NewSelector creates a Selector. A limit <= 0 uses DefaultLimit.
func NewSelector(store TicketStore, limit int, logger *slog.Logger) *Selector {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{store: store, limit: limit, logger: logger}
}

// Select returns eligible tickets newest first, capped at the selector limit.
// Stores may pre-filter; eligibility is re-checked here regardless.
func (s *Selector) Select(ctx context.Context, appID string, dates *domain.DateRange, categories []string) ([]domain.TicketRecord, error) {
	crit := Criteria{AppID: appID, DateRange: dates, Categories: categories, Limit: s.limit}
	tickets, err := s.store.FetchResolved(ctx, crit)
	if err != nil {
		return nil, fmt.Errorf("corpus: fetch resolved tickets for %s: %w", appID, err)
	}

	eligible := fn.Filter(tickets, func(t domain.TicketRecord) bool { return Eligible(t, crit) })
	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if !a.ResolvedAt.Equal(b.ResolvedAt) {
			return a.ResolvedAt.After(b.ResolvedAt)
		}
		return a.ID < b.ID
	})
	eligible = fn.UniqueBy(eligible, func(t domain.TicketRecord) string { return t.ID })
	if len(eligible) > s.limit {
		eligible = eligible[:s.limit]
	}

	s.logger.Info("corpus selected",
		"app_id", appID,
		"fetched", len(tickets),
		"eligible", len(eligible),
		"limit", s.limit,
	)
	return eligible, nil
}

// Eligible reports whether a ticket may enter the corpus under c.
func Eligible(t domain.TicketRecord, c Criteria) bool {
	if t.Status != domain.StatusResolved || !t.HasPublicResponse() {
		return false
	}
	if c.AppID != "" && t.AppID != "" && t.AppID != c.AppID {
		return false
	}
	if !c.DateRange.Contains(t.ResolvedAt) {
		return false
	}
	return categoryAllowed(t.Category, c.Categories)
}

func categoryAllowed(category string, allow []string) bool {
	if len(allow) == 0 {
		return true
	}
	for _, a := range allow {
		if strings.EqualFold(strings.TrimSpace(a), category) {
			return true
		}
	}
	return false
}
