package structure

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// Gemini structures resumes through the Gemini API with a JSON response
// MIME type and the resume schema.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini provider. baseURL is only set in tests.
func NewGemini(ctx context.Context, apiKey, baseURL, model string) (*Gemini, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (p *Gemini) Name() string { return "gemini" }

func (p *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(req.User), &genai.GenerateContentConfig{
		SystemInstruction:  genai.NewContentFromText(req.System, genai.RoleUser),
		Temperature:        genai.Ptr[float32](0),
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: req.Schema,
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked (%s)", ErrRefused, resp.PromptFeedback.BlockReason)
	}
	text := resp.Text()
	if text == "" {
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
			return "", fmt.Errorf("gemini: empty response (finish reason %s)", resp.Candidates[0].FinishReason)
		}
		return "", errors.New("gemini: empty response")
	}
	return text, nil
}
