package domain

import "time"

// DateRange bounds the resolution time of tickets considered. A zero bound is open.
type DateRange struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

// Contains reports whether t falls inside the range, bounds inclusive.
func (r *DateRange) Contains(t time.Time) bool {
	if r == nil {
		return true
	}
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// GenerateRequest asks for a clustering run over one application's tickets.
type GenerateRequest struct {
	AppID               string     `json:"app_id"`
	MinClusterSize      int        `json:"min_cluster_size"`
	MaxClusters         int        `json:"max_clusters"`
	SimilarityThreshold float64    `json:"similarity_threshold"`
	DateRange           *DateRange `json:"date_range,omitempty"`
	Categories          []string   `json:"categories,omitempty"`
}

// MaterializeOptions controls how candidates become FAQ entries.
type MaterializeOptions struct {
	// Publish forces every created entry to be published.
	Publish bool `json:"publish"`
	// AutoPublishThreshold publishes entries whose confidence reaches it.
	AutoPublishThreshold *float64 `json:"auto_publish_threshold,omitempty"`
	// Category overrides the derived category when set.
	Category *string `json:"category,omitempty"`
	// Tags overrides the derived tags when non-nil.
	Tags []string `json:"tags,omitempty"`
	// ClusterIDs restricts generation to a subset of a run's clusters.
	ClusterIDs []string `json:"cluster_ids,omitempty"`
}

// PreviewStatistics accounts for every ticket in a run.
type PreviewStatistics struct {
	TotalInquiries     int  `json:"total_inquiries"`
	ClusteredInquiries int  `json:"clustered_inquiries"`
	Unclustered        int  `json:"unclustered"`
	GeneratedFAQs      int  `json:"generated_faqs"`
	DegradedEmbeddings int  `json:"degraded_embeddings"`
	Iterations         int  `json:"iterations"`
	Converged          bool `json:"converged"`
}

// PreviewResult is the outcome of a clustering run without persistence.
type PreviewResult struct {
	Clusters     []FAQCandidate    `json:"clusters"`
	Statistics   PreviewStatistics `json:"statistics"`
	Degradations []Degradation     `json:"degradations,omitempty"`
	Unclustered  []string          `json:"unclustered_ticket_ids,omitempty"`
}

// ClusterFailure records a cluster whose FAQ entry could not be created.
type ClusterFailure struct {
	ClusterID string `json:"cluster_id"`
	Error     string `json:"error"`
	Err       error  `json:"-"`
}

// ClusterOutcome is the final state reached by one cluster in a batch.
type ClusterOutcome struct {
	ClusterID string       `json:"cluster_id"`
	State     ClusterState `json:"state"`
	FAQID     string       `json:"faq_id,omitempty"`
}

// MaterializeStatistics summarises a batch.
type MaterializeStatistics struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// MaterializeResult is the best-effort outcome of a batch of FAQ creations.
type MaterializeResult struct {
	Created    []FAQEntry            `json:"created"`
	Failed     []ClusterFailure      `json:"failed"`
	Outcomes   []ClusterOutcome      `json:"outcomes"`
	Statistics MaterializeStatistics `json:"statistics"`
}
