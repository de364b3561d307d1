package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/WessleyAI/wessley-support/engine/domain"
	"github.com/WessleyAI/wessley-support/engine/notify"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderPreview(w io.Writer, res domain.PreviewResult) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	faint := color.New(color.FgHiBlack).SprintFunc()

	st := res.Statistics
	fmt.Fprintf(w, "%d tickets, %d clustered, %d unclustered, %d FAQ candidates\n",
		st.TotalInquiries, st.ClusteredInquiries, st.Unclustered, st.GeneratedFAQs)
	if st.DegradedEmbeddings > 0 {
		fmt.Fprintf(w, "%s %d ticket(s) could not be embedded\n", yellow("⚠"), st.DegradedEmbeddings)
	}
	if !st.Converged && st.TotalInquiries > 0 {
		fmt.Fprintf(w, "%s clustering stopped after %d iterations without converging\n", yellow("⚠"), st.Iterations)
	}
	if len(res.Clusters) == 0 {
		fmt.Fprintln(w, "No clusters met the minimum size.")
		return
	}

	for _, c := range res.Clusters {
		fmt.Fprintf(w, "\n%s  %s\n", cyan(c.ClusterID), confidence(c.Confidence))
		fmt.Fprintf(w, "  Q: %s\n", c.Question)
		fmt.Fprintf(w, "  A: %s\n", truncate(c.Answer, 160))
		if c.Category != "" || len(c.Tags) > 0 {
			fmt.Fprintf(w, "  %s\n", faint(fmt.Sprintf("category=%s tags=%s", c.Category, strings.Join(c.Tags, ","))))
		}
		fmt.Fprintf(w, "  %s\n", faint(fmt.Sprintf("%d source tickets", len(c.SourceTicketIDs))))
		if c.DuplicateOf != "" {
			fmt.Fprintf(w, "  %s similar to existing FAQ %s\n", yellow("⚠"), c.DuplicateOf)
		}
	}
}

func renderMaterialize(w io.Writer, res domain.MaterializeResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	for _, e := range res.Created {
		state := "draft"
		if e.IsPublished {
			state = "published"
		}
		fmt.Fprintf(w, "%s %s [%s] #%d %s\n", green("✓"), e.ID, state, e.OrderIndex, e.Question)
	}
	for _, f := range res.Failed {
		fmt.Fprintf(w, "%s %s: %s\n", red("✗"), f.ClusterID, f.Error)
	}
	st := res.Statistics
	fmt.Fprintf(w, "\n%d of %d created, %d failed\n", st.Success, st.Total, st.Failed)
}

func renderEvent(w io.Writer, ev notify.Event) {
	state := color.New(color.FgYellow).Sprint("draft")
	if ev.Published {
		state = color.New(color.FgGreen).Sprint("published")
	}
	fmt.Fprintf(w, "%s %s %s %s %s\n", ev.At.Format("15:04:05"), ev.AppID, ev.FAQID, state, ev.Question)
}

func confidence(c float64) string {
	var col *color.Color
	switch {
	case c >= 0.8:
		col = color.New(color.FgGreen)
	case c >= 0.5:
		col = color.New(color.FgYellow)
	default:
		col = color.New(color.FgRed)
	}
	return col.Sprintf("confidence %.2f", c)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
