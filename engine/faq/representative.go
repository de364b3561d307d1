// Package faq derives FAQ candidates from validated clusters and persists them
// as knowledge-base entries. Scoring is done by pure functions over ticket
// values so each heuristic can be tested on its own.
package faq

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/WessleyAI/wessley-support/engine/domain"
)

// DefaultInterrogatives are the English question words recognised in titles.
var DefaultInterrogatives = []string{
	"how", "what", "why", "when", "where", "who", "which",
	"can", "could", "does", "do", "is", "are", "should", "will",
}

// Question scoring weights.
const (
	titleLengthScore   = 10
	interrogativeScore = 5
	minTitleLen        = 10
	maxTitleLen        = 100
)

// Answer scoring weights.
const (
	answerLengthScore = 10
	publicScore       = 5
	structureScore    = 3
	minAnswerLen      = 50
	maxAnswerLen      = 1000
)

var structuredLine = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+\S`)

// QuestionScore rates a ticket title as an FAQ question.
func QuestionScore(title string, interrogatives []string) int {
	title = strings.TrimSpace(title)
	score := 0
	if n := utf8.RuneCountInString(title); n >= minTitleLen && n <= maxTitleLen {
		score += titleLengthScore
	}
	if strings.Contains(title, "?") || hasInterrogative(title, interrogatives) {
		score += interrogativeScore
	}
	return score
}

func hasInterrogative(title string, interrogatives []string) bool {
	set := words(title)
	for _, q := range interrogatives {
		if _, ok := set[strings.ToLower(q)]; ok {
			return true
		}
	}
	return false
}

// words returns the lower-cased set of letter/digit runs in s.
func words(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// SelectQuestion returns the index of the member whose title scores highest.
// Ties go to the earliest CreatedAt, then to member order. It returns -1 for
// an empty slice.
func SelectQuestion(members []domain.TicketRecord, interrogatives []string) int {
	best, bestScore := -1, -1
	for i, t := range members {
		s := QuestionScore(t.Title, interrogatives)
		switch {
		case s > bestScore:
		case s == bestScore && t.CreatedAt.Before(members[best].CreatedAt):
		default:
			continue
		}
		best, bestScore = i, s
	}
	return best
}

// AnswerScore rates a response as an FAQ answer.
func AnswerScore(r domain.Response) int {
	content := strings.TrimSpace(r.Content)
	score := 0
	if n := utf8.RuneCountInString(content); n >= minAnswerLen && n <= maxAnswerLen {
		score += answerLengthScore
	}
	if r.IsPublic {
		score += publicScore
	}
	if structuredLine.MatchString(content) {
		score += structureScore
	}
	return score
}

// SelectAnswer picks the best response across all members. Ties go to the
// earliest CreatedAt, then to encounter order.
func SelectAnswer(members []domain.TicketRecord) (domain.Response, bool) {
	var best domain.Response
	bestScore := -1
	for _, t := range members {
		for _, r := range t.Responses {
			if strings.TrimSpace(r.Content) == "" {
				continue
			}
			s := AnswerScore(r)
			if s > bestScore || (s == bestScore && r.CreatedAt.Before(best.CreatedAt)) {
				best, bestScore = r, s
			}
		}
	}
	return best, bestScore >= 0
}
