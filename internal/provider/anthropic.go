package provider

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/journal-harness/internal/resilience"
	"github.com/sells-group/journal-harness/pkg/anthropic"
)

type anthropicProvider struct {
	api anthropic.Client
}

// NewAnthropic adapts an Anthropic Messages client. The system prompt is
// sent as a cached block.
func NewAnthropic(api anthropic.Client) Client {
	return &anthropicProvider{api: api}
}

func (p *anthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	msgs := make([]anthropic.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = anthropic.Message{Role: m.Role, Content: m.Content}
	}
	temp := req.Temperature

	resp, err := p.api.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       req.Model,
		MaxTokens:   int64(req.MaxTokens),
		System:      anthropic.CachedSystem(req.System),
		Messages:    msgs,
		Temperature: &temp,
	})
	if err != nil {
		return nil, resilience.FromStatus("anthropic", err, anthropic.StatusCode(err))
	}
	if resp.StopReason == "refusal" {
		return nil, eris.Wrap(resilience.ErrPermanent, "anthropic: model refused the request")
	}

	return &ChatResponse{
		Text:         resp.Text(),
		InputTokens:  int(resp.Usage.Input()),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}
