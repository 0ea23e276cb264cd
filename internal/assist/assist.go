// Package assist helps users discover variable codes: a deterministic
// keyword search over the product's variable dictionary, plus an optional
// LLM-backed suggester that maps free-text questions onto codes.
package assist

import (
	"sort"
	"strings"

	"tidycensus/internal/censusapi"
)

// Suggestion is one ranked variable candidate.
type Suggestion struct {
	Code    string
	Label   string
	Concept string
	Score   float64
}

// Search ranks catalog entries against a free-text query by keyword overlap
// on label and concept. Concept matches weigh double: labels repeat the same
// boilerplate ("Estimate!!Total") across thousands of variables. Results are
// capped at limit (zero means 10) and sorted by score then code.
func Search(catalog []censusapi.Variable, query string, limit int) []Suggestion {
	if limit <= 0 {
		limit = 10
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	var out []Suggestion
	for _, v := range catalog {
		label := strings.ToLower(v.Label)
		concept := strings.ToLower(v.Concept)
		var score float64
		for _, term := range terms {
			if strings.Contains(concept, term) {
				score += 2
			}
			if strings.Contains(label, term) {
				score++
			}
		}
		if score > 0 {
			out = append(out, Suggestion{Code: v.Code, Label: v.Label, Concept: v.Concept, Score: score})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Code < out[j].Code
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'")
		if len(f) < 3 || stopwords[f] {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "per": true,
	"what": true, "which": true, "how": true, "many": true, "much": true,
	"number": true, "total": true, "all": true,
}
