package assist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tidycensus/internal/censusapi"
)

var catalog = []censusapi.Variable{
	{Code: "B01003_001E", Label: "Estimate!!Total", Concept: "TOTAL POPULATION"},
	{Code: "B19013_001E", Label: "Estimate!!Median household income in the past 12 months", Concept: "MEDIAN HOUSEHOLD INCOME"},
	{Code: "B25003_001E", Label: "Estimate!!Total", Concept: "TENURE"},
	{Code: "B25003_002E", Label: "Estimate!!Total!!Owner occupied", Concept: "TENURE"},
}

func TestSearchRanksConceptMatches(t *testing.T) {
	got := Search(catalog, "median household income", 10)
	if len(got) == 0 {
		t.Fatalf("no results")
	}
	if got[0].Code != "B19013_001E" {
		t.Fatalf("top result = %+v, want B19013_001E", got[0])
	}
}

func TestSearchLimit(t *testing.T) {
	got := Search(catalog, "occupied tenure estimate", 1)
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
}

func TestSearchNoMatch(t *testing.T) {
	if got := Search(catalog, "commute time", 10); len(got) != 0 {
		t.Fatalf("expected no results, got %+v", got)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	if got := Search(catalog, "   ", 10); got != nil {
		t.Fatalf("expected nil for empty query, got %+v", got)
	}
}

func TestOpenAISuggest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"role": "assistant",
					// One valid code, one hallucinated.
					"content": "B19013_001E, B99999_001E",
				}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	gen, err := NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	got, err := gen.Suggest(context.Background(), "median household income", catalog)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(got) != 1 || got[0].Code != "B19013_001E" {
		t.Fatalf("expected the hallucinated code filtered out, got %+v", got)
	}
}

func TestOpenAISuggestNoCandidates(t *testing.T) {
	gen, err := NewOpenAI(OpenAIConfig{APIKey: "test"})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	got, err := gen.Suggest(context.Background(), "commute time", catalog)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil without candidates, got %+v", got)
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAI(OpenAIConfig{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
