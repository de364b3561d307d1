package faq

import (
	"strings"

	"github.com/WessleyAI/wessley-support/engine/domain"
)

// DefaultVocabulary is the curated keyword list matched against questions
// and answers when deriving tags.
var DefaultVocabulary = []string{
	"account", "api", "billing", "crash", "download", "email", "error",
	"export", "import", "installation", "integration", "invoice", "login",
	"mobile", "notification", "password", "payment", "performance",
	"refund", "security", "settings", "subscription", "sync", "upload",
	"two-factor",
}

// DominantCategory returns the most frequent non-empty category among
// members. Ties go to the category seen first.
func DominantCategory(members []domain.TicketRecord) string {
	counts := map[string]int{}
	var order []string
	for _, t := range members {
		c := strings.TrimSpace(t.Category)
		if c == "" {
			continue
		}
		if counts[c] == 0 {
			order = append(order, c)
		}
		counts[c]++
	}
	best := ""
	for _, c := range order {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}

// DeriveTags starts from category and appends vocabulary terms found in the
// question or answer. The result is normalised by NormalizeTags.
func DeriveTags(category, question, answer string, vocabulary []string) []string {
	tags := []string{category}
	text := strings.ToLower(question + "\n" + answer)
	set := words(text)
	for _, term := range vocabulary {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if _, ok := set[term]; ok || (!isWord(term) && strings.Contains(text, term)) {
			tags = append(tags, term)
		}
	}
	return NormalizeTags(tags)
}

// NormalizeTags trims, drops empties, removes case-insensitive duplicates
// keeping the first spelling, and caps the list at domain.MaxTags.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, min(len(tags), domain.MaxTags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
		if len(out) == domain.MaxTags {
			break
		}
	}
	return out
}

// isWord reports whether term survives tokenisation unchanged.
func isWord(term string) bool {
	set := words(term)
	_, ok := set[term]
	return ok && len(set) == 1
}
