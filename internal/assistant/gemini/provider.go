package gemini

import (
	"context"
	"fmt"

	"github.com/devroom-sh/devroom/internal/config"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// systemInstruction steers the model toward modular, runnable Node
// projects and the structured reply envelope the interpreter expects.
const systemInstruction = `You are an expert full-stack developer with more than ten years of
experience. You write modular code, split it into files as needed, keep
previous code working, handle errors and edge cases, and add brief
understandable comments.

Reply with a JSON object of the shape
{"text": "<short human-readable summary>", "fileTree": {<path>: {"kind": "file", "contents": "<source>"} | {"kind": "directory", "children": {...}}}}.
Include "fileTree" only when the user asked for code; it must always be
the complete project tree, never a partial diff. Put explanations in
"text" only, never code.`

type Provider struct {
	apiKey string
	model  string
}

func NewProvider(cfg config.GeminiConfig) *Provider {
	return &Provider{
		apiKey: cfg.APIKey,
		model:  cfg.Model,
	}
}

func (p *Provider) Name() string {
	return "gemini"
}

func (p *Provider) DefaultModel() string {
	if p.model != "" {
		return p.model
	}
	return "gemini-2.0-flash"
}

func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	if !p.IsConfigured() {
		return "", fmt.Errorf("gemini provider is not configured (missing API key)")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(p.DefaultModel())
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generation error: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from gemini")
	}

	var output string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			output += string(text)
		}
	}

	return output, nil
}
