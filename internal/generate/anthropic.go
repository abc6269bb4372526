package generate

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/claims-cli/pkg/anthropic"
)

// Anthropic generates text with Claude models over a streaming request.
type Anthropic struct {
	client    anthropic.Client
	maxTokens int64
}

// NewAnthropic creates an Anthropic generator.
func NewAnthropic(client anthropic.Client, maxTokens int64) *Anthropic {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Anthropic{client: client, maxTokens: maxTokens}
}

func (a *Anthropic) Generate(ctx context.Context, model, prompt string) (*Generation, error) {
	var sb strings.Builder
	resp, err := a.client.StreamMessage(ctx, anthropic.MessageRequest{
		Model:     model,
		MaxTokens: a.maxTokens,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	}, func(chunk string) {
		sb.WriteString(chunk)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "generate: anthropic %s", model)
	}

	gen := &Generation{
		Text:         sb.String(),
		Model:        model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	if resp.Model != "" {
		gen.Model = resp.Model
	}
	return gen, nil
}
