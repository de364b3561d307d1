package semantic

// SearchResult is a single FAQ index hit.
type SearchResult struct {
	PointID   string  `json:"point_id"`
	FAQID     string  `json:"faq_id"`
	AppID     string  `json:"app_id"`
	Question  string  `json:"question"`
	Category  string  `json:"category,omitempty"`
	Published bool    `json:"published"`
	Score     float32 `json:"score"`
}
