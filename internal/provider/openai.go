package provider

import (
	"context"
	"errors"

	"github.com/sells-group/journal-harness/internal/resilience"
	"github.com/sells-group/journal-harness/pkg/openai"
)

type compatProvider struct {
	name string
	api  openai.Client
}

// NewOpenAICompatible adapts a /chat/completions client. name labels errors
// and is one of openai, perplexity or ollama.
func NewOpenAICompatible(name string, api openai.Client) Client {
	return &compatProvider{name: name, api: api}
}

func (p *compatProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	msgs := make([]openai.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.Message{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, openai.Message{Role: m.Role, Content: m.Content})
	}

	creq := openai.ChatCompletionRequest{Model: req.Model, Messages: msgs}
	temp := req.Temperature
	creq.Temperature = &temp
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		creq.MaxTokens = &maxTokens
	}

	resp, err := p.api.ChatCompletion(ctx, creq)
	if err != nil {
		var se *openai.StatusError
		if errors.As(err, &se) {
			return nil, resilience.FromStatus(p.name, err, se.StatusCode)
		}
		return nil, err
	}

	return &ChatResponse{
		Text:         resp.Text(),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
