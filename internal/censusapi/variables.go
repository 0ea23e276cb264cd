package censusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"tidycensus/pkg/census"
)

// Variable is one entry of a product's variable dictionary.
type Variable struct {
	Code    string
	Label   string
	Concept string
}

type variablesDocument struct {
	Variables map[string]struct {
		Label   string `json:"label"`
		Concept string `json:"concept"`
	} `json:"variables"`
}

// Variables fetches the variable dictionary for one product vintage, sorted
// by code. The dictionary backs variable search and discovery; it is cached
// like any other payload.
func (c *Client) Variables(ctx context.Context, year int, dataset census.Dataset) ([]Variable, error) {
	path, err := datasetPath(dataset, year)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/data/%d/%s/variables.json", c.baseURL, year, path)
	body, err := c.fetch(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	var doc variablesDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode variables.json: %w", err)
	}
	vars := make([]Variable, 0, len(doc.Variables))
	for code, v := range doc.Variables {
		// The dictionary includes the query parameters themselves.
		if code == "for" || code == "in" || code == "ucgid" {
			continue
		}
		vars = append(vars, Variable{Code: code, Label: v.Label, Concept: v.Concept})
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Code < vars[j].Code })
	return vars, nil
}
