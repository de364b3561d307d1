package generator

import (
	"strconv"

	"github.com/WessleyAI/wessley-support/engine/domain"
	"github.com/WessleyAI/wessley-support/pkg/metrics"
)

// Metrics records run and materialization counters. A nil *Metrics is a no-op.
type Metrics struct {
	reg         *metrics.Registry
	runDuration *metrics.Histogram
	tickets     *metrics.Counter
	unclustered *metrics.Counter
	degraded    *metrics.Counter
	candidates  *metrics.Counter
	failures    *metrics.Counter
}

// NewMetrics registers the generator metrics on reg.
func NewMetrics(reg *metrics.Registry) *Metrics {
	return &Metrics{
		reg:         reg,
		runDuration: reg.Histogram("faqgen_run_duration_seconds", "Duration of clustering runs", nil),
		tickets:     reg.Counter("faqgen_tickets_total", "Tickets considered by clustering runs"),
		unclustered: reg.Counter("faqgen_unclustered_tickets_total", "Tickets left unclustered"),
		degraded:    reg.Counter("faqgen_degraded_embeddings_total", "Tickets embedded as zero vectors"),
		candidates:  reg.Counter("faqgen_candidates_total", "FAQ candidates derived"),
		failures:    reg.Counter("faqgen_materialize_failures_total", "Clusters that failed to persist"),
	}
}

func (m *Metrics) observeRun(outcome string, seconds float64, stats *domain.PreviewStatistics) {
	if m == nil {
		return
	}
	m.reg.Counter(metrics.WithLabels("faqgen_runs_total", "outcome", outcome), "Clustering runs by outcome").Inc()
	m.runDuration.Observe(seconds)
	if stats == nil {
		return
	}
	m.tickets.Add(int64(stats.TotalInquiries))
	m.unclustered.Add(int64(stats.Unclustered))
	m.degraded.Add(int64(stats.DegradedEmbeddings))
	m.candidates.Add(int64(stats.GeneratedFAQs))
}

func (m *Metrics) observeCreated(published bool) {
	if m == nil {
		return
	}
	m.reg.Counter(metrics.WithLabels("faqgen_faqs_created_total", "published", strconv.FormatBool(published)), "FAQ entries created").Inc()
}

func (m *Metrics) observeFailures(n int) {
	if m == nil || n == 0 {
		return
	}
	m.failures.Add(int64(n))
}
