// Package generate produces analysis text from a language model.
package generate

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/claims-cli/internal/config"
	"github.com/sells-group/claims-cli/pkg/anthropic"
)

// DefaultMaxTokens caps the response length when no limit is configured.
const DefaultMaxTokens int64 = 8192

// Generation is the complete text of one model response.
type Generation struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Generator sends one prompt to a model and returns the full response.
// Streamed chunks are concatenated in arrival order.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (*Generation, error)
}

// New creates the Generator selected by cfg.Generation.Provider.
func New(cfg *config.Config) (Generator, error) {
	switch cfg.Generation.Provider {
	case "anthropic", "":
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("generate: anthropic provider requires anthropic.key")
		}
		client := anthropic.NewClient(cfg.Anthropic.Key, cfg.Anthropic.BaseURL)
		return NewAnthropic(client, cfg.Generation.MaxTokens), nil
	case "openai":
		if cfg.OpenAI.Key == "" {
			return nil, eris.New("generate: openai provider requires openai.key")
		}
		return NewOpenAI(cfg.OpenAI.Key, cfg.OpenAI.BaseURL, cfg.Generation.MaxTokens), nil
	default:
		return nil, eris.Errorf("generate: unknown provider %q", cfg.Generation.Provider)
	}
}
