package faq

import (
	"context"
	"log/slog"
	"strings"

	"github.com/WessleyAI/wessley-support/engine/domain"
)

// FAQStore persists FAQ drafts. Implementations assign ID, order index and
// timestamps.
type FAQStore interface {
	Create(ctx context.Context, draft domain.FAQDraft) (domain.FAQEntry, error)
}

// Notifier is told when the published FAQ set of an application changes.
type Notifier interface {
	FAQSetChanged(ctx context.Context, entry domain.FAQEntry) error
}

// Indexer records the vector of a created entry for similarity lookups.
type Indexer interface {
	Index(ctx context.Context, entry domain.FAQEntry, vector []float32) error
}

// Materializer creates FAQ entries from candidates.
type Materializer struct {
	store    FAQStore
	notifier Notifier
	indexer  Indexer
	logger   *slog.Logger
}

// NewMaterializer creates a Materializer. notifier and indexer are optional.
func NewMaterializer(store FAQStore, notifier Notifier, indexer Indexer, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{store: store, notifier: notifier, indexer: indexer, logger: logger}
}

// ShouldPublish applies the auto-publish policy.
func ShouldPublish(confidence float64, opts domain.MaterializeOptions) bool {
	return opts.Publish || (opts.AutoPublishThreshold != nil && confidence >= *opts.AutoPublishThreshold)
}

// Draft builds the store payload for a candidate. Caller overrides win over
// derived category and tags.
func Draft(appID string, c domain.FAQCandidate, opts domain.MaterializeOptions) domain.FAQDraft {
	category := c.Category
	if opts.Category != nil {
		category = strings.TrimSpace(*opts.Category)
	}
	tags := c.Tags
	if opts.Tags != nil {
		tags = opts.Tags
	}
	return domain.FAQDraft{
		AppID:           appID,
		ClusterID:       c.ClusterID,
		Question:        c.Question,
		Answer:          c.Answer,
		Category:        category,
		Tags:            NormalizeTags(tags),
		IsPublished:     ShouldPublish(c.Confidence, opts),
		SourceTicketIDs: c.SourceTicketIDs,
	}
}

// CreateFAQFromCluster persists a single candidate. Store failures are
// returned as *domain.PersistenceError.
func (m *Materializer) CreateFAQFromCluster(ctx context.Context, appID string, c domain.FAQCandidate, opts domain.MaterializeOptions) (domain.FAQEntry, error) {
	if err := domain.ValidateMaterializeOptions(opts); err != nil {
		return domain.FAQEntry{}, err
	}
	if err := domain.ValidateCandidates([]domain.FAQCandidate{c}); err != nil {
		return domain.FAQEntry{}, err
	}
	return m.create(ctx, appID, c, opts)
}

func (m *Materializer) create(ctx context.Context, appID string, c domain.FAQCandidate, opts domain.MaterializeOptions) (domain.FAQEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.FAQEntry{}, &domain.PersistenceError{ClusterID: c.ClusterID, Err: err}
	}
	entry, err := m.store.Create(ctx, Draft(appID, c, opts))
	if err != nil {
		return domain.FAQEntry{}, &domain.PersistenceError{ClusterID: c.ClusterID, Err: err}
	}

	if m.indexer != nil && c.Embedding != nil {
		if err := m.indexer.Index(ctx, entry, c.Embedding); err != nil {
			m.logger.Warn("faq index update failed", "app_id", appID, "faq_id", entry.ID, "err", err)
		}
	}
	if m.notifier != nil && entry.IsPublished {
		if err := m.notifier.FAQSetChanged(ctx, entry); err != nil {
			m.logger.Warn("faq change notification failed", "app_id", appID, "faq_id", entry.ID, "err", err)
		}
	}
	return entry, nil
}

// CreateFAQsFromClusters persists each candidate independently. A failure is
// recorded against its cluster and the batch continues, so
// len(Created)+len(Failed) == len(candidates). Repeated cluster ids reject the
// whole batch before anything is written.
func (m *Materializer) CreateFAQsFromClusters(ctx context.Context, appID string, cands []domain.FAQCandidate, opts domain.MaterializeOptions) (domain.MaterializeResult, error) {
	if err := domain.ValidateMaterializeOptions(opts); err != nil {
		return domain.MaterializeResult{}, err
	}
	if err := domain.ValidateCandidates(cands); err != nil {
		return domain.MaterializeResult{}, err
	}

	res := domain.MaterializeResult{
		Created:  []domain.FAQEntry{},
		Failed:   []domain.ClusterFailure{},
		Outcomes: make([]domain.ClusterOutcome, 0, len(cands)),
	}
	for _, c := range cands {
		entry, err := m.create(ctx, appID, c, opts)
		if err != nil {
			m.logger.Error("faq creation failed", "app_id", appID, "cluster_id", c.ClusterID, "err", err)
			res.Failed = append(res.Failed, domain.ClusterFailure{ClusterID: c.ClusterID, Error: err.Error(), Err: err})
			res.Outcomes = append(res.Outcomes, domain.ClusterOutcome{ClusterID: c.ClusterID, State: domain.StateFailed})
			continue
		}
		state := domain.StateUnpublished
		if entry.IsPublished {
			state = domain.StatePublished
		}
		res.Created = append(res.Created, entry)
		res.Outcomes = append(res.Outcomes, domain.ClusterOutcome{ClusterID: c.ClusterID, State: state, FAQID: entry.ID})
	}

	res.Statistics = domain.MaterializeStatistics{
		Total:   len(cands),
		Success: len(res.Created),
		Failed:  len(res.Failed),
	}
	m.logger.Info("faq batch materialized", "app_id", appID,
		"total", res.Statistics.Total, "success", res.Statistics.Success, "failed", res.Statistics.Failed)
	return res, nil
}

