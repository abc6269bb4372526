package generate

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sashabaranov/go-openai"
)

// OpenAI generates text with OpenAI chat models over a streaming request.
type OpenAI struct {
	client    *openai.Client
	maxTokens int
}

// NewOpenAI creates an OpenAI generator. A non-empty baseURL overrides the
// API endpoint.
func NewOpenAI(apiKey, baseURL string, maxTokens int64) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), maxTokens: int(maxTokens)}
}

// reasoningModel reports whether model only accepts max_completion_tokens.
func reasoningModel(model string) bool {
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

func (o *OpenAI) Generate(ctx context.Context, model, prompt string) (*Generation, error) {
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}
	if reasoningModel(model) {
		req.MaxCompletionTokens = o.maxTokens
	} else {
		req.MaxTokens = o.maxTokens
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, eris.Wrapf(err, "generate: openai %s", model)
	}
	defer stream.Close() //nolint:errcheck

	gen := &Generation{Model: model}
	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "generate: openai %s stream", model)
		}
		for _, choice := range chunk.Choices {
			sb.WriteString(choice.Delta.Content)
		}
		if chunk.Usage != nil {
			gen.InputTokens = int64(chunk.Usage.PromptTokens)
			gen.OutputTokens = int64(chunk.Usage.CompletionTokens)
		}
	}
	gen.Text = sb.String()
	return gen, nil
}
