package faq

import "unicode/utf8"

// cohesionTokens is the number of shared title tokens that earns full cohesion.
const cohesionTokens = 5

// Cohesion scores how lexically alike member titles are: the number of tokens
// longer than two characters found in at least half of the titles, divided by
// five and capped at 1. A single title scores 1; no titles score 0.
func Cohesion(titles []string) float64 {
	switch len(titles) {
	case 0:
		return 0
	case 1:
		return 1
	}

	df := map[string]int{}
	for _, title := range titles {
		for tok := range words(title) {
			if utf8.RuneCountInString(tok) > 2 {
				df[tok]++
			}
		}
	}
	shared := 0
	for _, n := range df {
		if 2*n >= len(titles) {
			shared++
		}
	}
	return min(1, float64(shared)/cohesionTokens)
}
