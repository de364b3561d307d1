package main

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/WessleyAI/wessley-support/engine/domain"
)

// requestFlags are shared by preview and generate.
type requestFlags struct {
	appID      string
	minSize    int
	maxK       int
	threshold  float64
	from, to   string
	categories []string
	asJSON     bool
}

func (f *requestFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.appID, "app", "", "application id (required)")
	fs.IntVar(&f.minSize, "min-size", 3, "minimum tickets per cluster")
	fs.IntVar(&f.maxK, "max-clusters", 10, "maximum number of clusters")
	fs.Float64Var(&f.threshold, "threshold", 0.8, "similarity threshold for near-duplicate detection")
	fs.StringVar(&f.from, "from", "", "earliest resolution time (RFC 3339 or YYYY-MM-DD)")
	fs.StringVar(&f.to, "to", "", "latest resolution time (RFC 3339 or YYYY-MM-DD)")
	fs.StringSliceVar(&f.categories, "category", nil, "restrict to ticket categories")
	fs.BoolVar(&f.asJSON, "json", false, "print the raw JSON result")
}

func (f *requestFlags) request() (domain.GenerateRequest, error) {
	req := domain.GenerateRequest{
		AppID:               f.appID,
		MinClusterSize:      f.minSize,
		MaxClusters:         f.maxK,
		SimilarityThreshold: f.threshold,
		Categories:          f.categories,
	}
	if f.from == "" && f.to == "" {
		return req, nil
	}
	var dr domain.DateRange
	var err error
	if dr.From, err = parseDate(f.from, false); err != nil {
		return req, fmt.Errorf("--from: %w", err)
	}
	if dr.To, err = parseDate(f.to, true); err != nil {
		return req, fmt.Errorf("--to: %w", err)
	}
	req.DateRange = &dr
	return req, nil
}

// parseDate accepts RFC 3339 or a bare date. A bare upper bound covers the
// whole day.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
