package domain

import (
	"math"
	"strconv"
	"strings"
)

// Request bounds.
const (
	MinClusterSizeFloor    = 2
	MaxClustersCeiling     = 100
	MinSimilarityThreshold = 0.1
	MaxSimilarityThreshold = 1.0
	MaxTags                = 5
)

// ValidateGenerateRequest checks a clustering request before any corpus fetch.
func ValidateGenerateRequest(req GenerateRequest) error {
	if strings.TrimSpace(req.AppID) == "" {
		return NewValidationError("app_id", req.AppID, ErrMissingAppID)
	}
	if req.MinClusterSize < MinClusterSizeFloor {
		return NewValidationError("min_cluster_size", strconv.Itoa(req.MinClusterSize), ErrMinClusterSize)
	}
	if req.MaxClusters < 1 || req.MaxClusters > MaxClustersCeiling {
		return NewValidationError("max_clusters", strconv.Itoa(req.MaxClusters), ErrMaxClusters)
	}
	if req.MinClusterSize >= req.MaxClusters {
		return NewValidationError("min_cluster_size", strconv.Itoa(req.MinClusterSize), ErrClusterBounds)
	}
	if !inRange(req.SimilarityThreshold, MinSimilarityThreshold, MaxSimilarityThreshold) {
		return NewValidationError("similarity_threshold", formatFloat(req.SimilarityThreshold), ErrThresholdRange)
	}
	if r := req.DateRange; r != nil && !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return NewValidationError("date_range", r.From.String()+".."+r.To.String(), ErrDateRange)
	}
	return nil
}

// ValidateMaterializeOptions checks caller overrides and the publish policy.
func ValidateMaterializeOptions(opts MaterializeOptions) error {
	if t := opts.AutoPublishThreshold; t != nil && !inRange(*t, 0, 1) {
		return NewValidationError("auto_publish_threshold", formatFloat(*t), ErrThresholdRange)
	}
	if len(opts.Tags) > MaxTags {
		return NewValidationError("tags", strings.Join(opts.Tags, ","), ErrTooManyTags)
	}
	if opts.ClusterIDs != nil {
		return ValidateClusterIDs(opts.ClusterIDs)
	}
	return nil
}

// ValidateClusterIDs rejects empty and repeated cluster ids.
func ValidateClusterIDs(ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return NewValidationError("cluster_id", id, ErrEmptyClusterID)
		}
		if _, ok := seen[id]; ok {
			return NewValidationError("cluster_id", id, ErrDuplicateCluster)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// ValidateCandidates checks a manual batch of previewed candidates.
func ValidateCandidates(cands []FAQCandidate) error {
	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.ClusterID
	}
	if err := ValidateClusterIDs(ids); err != nil {
		return err
	}
	for _, c := range cands {
		if strings.TrimSpace(c.Question) == "" {
			return NewValidationError("question", c.ClusterID, ErrEmptyQuestion)
		}
		if !inRange(c.Confidence, 0, 1) {
			return NewValidationError("confidence", formatFloat(c.Confidence), ErrThresholdRange)
		}
	}
	return nil
}

// inRange is false for NaN.
func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
