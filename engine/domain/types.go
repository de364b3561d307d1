// Package domain defines the ticket and knowledge-base types shared by the FAQ
// generation engine, along with request validation. It acts as the validation
// gate at engine entry points.
package domain

import "time"

// TicketStatus is the lifecycle state of a support ticket.
type TicketStatus string

const (
	StatusOpen       TicketStatus = "open"
	StatusInProgress TicketStatus = "in_progress"
	StatusResolved   TicketStatus = "resolved"
	StatusClosed     TicketStatus = "closed"
)

// Response is a single reply posted on a ticket.
type Response struct {
	Content   string    `json:"content"`
	IsPublic  bool      `json:"is_public"`
	CreatedAt time.Time `json:"created_at"`
}

// TicketRecord is the immutable view of a support ticket consumed by the engine.
type TicketRecord struct {
	ID         string       `json:"id"`
	AppID      string       `json:"app_id"`
	Title      string       `json:"title"`
	Body       string       `json:"body"`
	Category   string       `json:"category,omitempty"`
	Status     TicketStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	ResolvedAt time.Time    `json:"resolved_at"`
	Responses  []Response   `json:"responses"`
}

// HasPublicResponse reports whether at least one non-internal response exists.
func (t TicketRecord) HasPublicResponse() bool {
	for _, r := range t.Responses {
		if r.IsPublic {
			return true
		}
	}
	return false
}

// ClusterCandidate is a group of tickets produced by the clustering engine.
type ClusterCandidate struct {
	ID        string    `json:"id"`
	MemberIDs []string  `json:"member_ids"`
	Centroid  []float32 `json:"centroid,omitempty"`
	Cohesion  float64   `json:"cohesion"`
}

// Size returns the number of member tickets.
func (c ClusterCandidate) Size() int { return len(c.MemberIDs) }

// FAQCandidate is a derived, not yet persisted question/answer pair.
type FAQCandidate struct {
	ClusterID       string   `json:"cluster_id"`
	Question        string   `json:"question"`
	Answer          string   `json:"answer"`
	Category        string   `json:"category,omitempty"`
	Tags            []string `json:"tags"`
	Confidence      float64  `json:"confidence"`
	SourceTicketIDs []string `json:"source_ticket_ids"`
	// DuplicateOf names an existing FAQ entry this candidate closely matches.
	DuplicateOf string `json:"duplicate_of,omitempty"`

	// Embedding of the representative ticket, used to index the created entry.
	Embedding []float32 `json:"-"`
}

// FAQDraft is what the materializer hands to an FAQ store for persistence.
type FAQDraft struct {
	AppID           string
	ClusterID       string
	Question        string
	Answer          string
	Category        string
	Tags            []string
	IsPublished     bool
	SourceTicketIDs []string
}

// FAQEntry is a persisted knowledge-base entry.
type FAQEntry struct {
	ID              string    `json:"id"`
	AppID           string    `json:"app_id"`
	Question        string    `json:"question"`
	Answer          string    `json:"answer"`
	Category        string    `json:"category,omitempty"`
	Tags            []string  `json:"tags"`
	IsPublished     bool      `json:"is_published"`
	OrderIndex      int       `json:"order_index"`
	SourceTicketIDs []string  `json:"source_ticket_ids,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ClusterState tracks a cluster through materialization.
type ClusterState string

const (
	StateCandidate    ClusterState = "candidate"
	StateValidated    ClusterState = "validated"
	StateFailed       ClusterState = "failed"
	StateMaterialized ClusterState = "materialized"
	StatePublished    ClusterState = "published"
	StateUnpublished  ClusterState = "unpublished"
)

// Terminal reports whether no further transition happens without an external edit.
func (s ClusterState) Terminal() bool {
	return s == StateFailed || s == StatePublished || s == StateUnpublished
}

// Degradation records a ticket whose embedding was replaced by a zero vector.
type Degradation struct {
	TicketID string `json:"ticket_id"`
	Reason   string `json:"reason"`
}
