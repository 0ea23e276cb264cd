package assist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"tidycensus/internal/censusapi"
)

// Generator maps a free-text question onto variable suggestions. The OpenAI
// implementation is the production generator; Search is the offline fallback.
type Generator interface {
	Suggest(ctx context.Context, query string, catalog []censusapi.Variable) ([]Suggestion, error)
}

// OpenAIConfig carries generator construction parameters.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // optional override, mostly for tests
	Model   string // default gpt-4o-mini
	Logger  *slog.Logger
}

// OpenAI suggests variable codes with a chat completion over a keyword-
// prefiltered slice of the catalog. The model only ever sees candidate codes
// that exist, and its answer is validated against the catalog before being
// returned.
type OpenAI struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

var _ Generator = (*OpenAI)(nil)

// NewOpenAI constructs a generator from cfg.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &OpenAI{client: openai.NewClientWithConfig(clientCfg), model: model, logger: logger}, nil
}

const systemPrompt = "You are a US Census data expert. Given a question and a list of " +
	"candidate variable codes with their labels, answer with the codes that best " +
	"match the question, comma separated, nothing else."

// Suggest asks the model to pick codes from the keyword-prefiltered
// candidates. Codes not present in the candidate set are dropped.
func (o *OpenAI) Suggest(ctx context.Context, query string, catalog []censusapi.Variable) ([]Suggestion, error) {
	candidates := Search(catalog, query, 50)
	if len(candidates) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\nCandidates:\n", query)
	byCode := make(map[string]Suggestion, len(candidates))
	for _, c := range candidates {
		byCode[c.Code] = c
		fmt.Fprintf(&sb, "%s: %s (%s)\n", c.Code, c.Label, c.Concept)
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion")
	}

	var out []Suggestion
	for _, token := range strings.Split(resp.Choices[0].Message.Content, ",") {
		code := strings.TrimSpace(token)
		if s, ok := byCode[code]; ok {
			out = append(out, s)
		} else if code != "" {
			o.logger.Warn("model suggested unknown code", "code", code)
		}
	}
	return out, nil
}
