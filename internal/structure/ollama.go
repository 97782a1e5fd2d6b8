package structure

import (
	"context"
	"fmt"

	"github.com/kalambet/vitae/internal/ollama"
)

// OllamaChatter is the subset of the Ollama client used for structuring.
type OllamaChatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, format any, opts *ollama.ChatOptions) (string, error)
}

// Ollama structures resumes with a local model, passing the resume schema
// as the chat format.
type Ollama struct {
	client OllamaChatter
	model  string
}

// NewOllama creates an Ollama provider using the given client and model name.
func NewOllama(client OllamaChatter, model string) *Ollama {
	return &Ollama{client: client, model: model}
}

func (p *Ollama) Name() string { return "ollama" }

func (p *Ollama) Complete(ctx context.Context, req Request) (string, error) {
	messages := []ollama.Message{
		{Role: "system", Content: req.System},
		{Role: "user", Content: req.User},
	}
	raw, err := p.client.Chat(ctx, p.model, messages, req.Schema, &ollama.ChatOptions{Temperature: 0})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return raw, nil
}
