package handoff

import (
	"context"

	"github.com/pi-cli/pi/internal/chat"
	"github.com/pi-cli/pi/internal/provider"
)

// ProviderModelClient adapts the host's provider.Provider into ModelClient:
// a single non-streaming completion call with a system and a user message,
// mirroring how orchestrator.chatWithRetry drives the same provider for
// ordinary turns but without tool definitions or streaming callbacks.
type ProviderModelClient struct {
	Provider provider.Provider
}

func (c ProviderModelClient) Complete(ctx context.Context, systemPrompt, userMessage string) (ModelResponse, error) {
	req := provider.ChatRequest{
		Model: c.Provider.CurrentModel(),
		Messages: []chat.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
	}
	resp, err := c.Provider.Chat(ctx, req, nil)
	if err != nil {
		return ModelResponse{}, err
	}
	return ModelResponse{StopReason: "stop", Text: resp.Content}, nil
}
