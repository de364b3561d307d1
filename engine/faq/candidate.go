package faq

import (
	"errors"
	"fmt"
	"strings"

	"github.com/WessleyAI/wessley-support/engine/domain"
)

// ErrNoMembers is returned when a cluster's members cannot be resolved.
var ErrNoMembers = errors.New("faq: cluster has no members")

// Options configures candidate derivation.
type Options struct {
	Interrogatives []string `yaml:"interrogatives"`
	Vocabulary     []string `yaml:"vocabulary"`
}

// DefaultOptions returns the English keyword lists.
func DefaultOptions() Options {
	return Options{Interrogatives: DefaultInterrogatives, Vocabulary: DefaultVocabulary}
}

// Member is a cluster member ticket with its embedding.
type Member struct {
	Ticket domain.TicketRecord
	Vector []float32
}

// Builder turns validated clusters into FAQ candidates.
type Builder struct {
	opts Options
}

// NewBuilder creates a Builder. Nil keyword lists fall back to the defaults.
func NewBuilder(opts Options) *Builder {
	def := DefaultOptions()
	if opts.Interrogatives == nil {
		opts.Interrogatives = def.Interrogatives
	}
	if opts.Vocabulary == nil {
		opts.Vocabulary = def.Vocabulary
	}
	return &Builder{opts: opts}
}

// Build derives the candidate for one cluster. members must be the cluster's
// tickets in member order.
func (b *Builder) Build(c domain.ClusterCandidate, members []Member) (domain.FAQCandidate, error) {
	if len(members) == 0 {
		return domain.FAQCandidate{}, fmt.Errorf("%w: %s", ErrNoMembers, c.ID)
	}
	tickets := make([]domain.TicketRecord, len(members))
	titles := make([]string, len(members))
	for i, m := range members {
		tickets[i] = m.Ticket
		titles[i] = m.Ticket.Title
	}

	q := SelectQuestion(tickets, b.opts.Interrogatives)
	answer, _ := SelectAnswer(tickets)
	category := DominantCategory(tickets)
	question := strings.TrimSpace(tickets[q].Title)
	content := strings.TrimSpace(answer.Content)
	confidence := Cohesion(titles)

	return domain.FAQCandidate{
		ClusterID:       c.ID,
		Question:        question,
		Answer:          content,
		Category:        category,
		Tags:            DeriveTags(category, question, content, b.opts.Vocabulary),
		Confidence:      confidence,
		SourceTicketIDs: append([]string(nil), c.MemberIDs...),
		Embedding:       nonZero(members[q].Vector),
	}, nil
}

// nonZero returns v unless it is empty or all zeros.
func nonZero(v []float32) []float32 {
	for _, x := range v {
		if x != 0 {
			return v
		}
	}
	return nil
}
