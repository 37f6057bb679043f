// Package gemini implements ragkb.Generator with Google Gemini and a local
// Gemini tokenizer.
package gemini

import (
	"context"
	"strings"

	"github.com/fwojciec/ragkb"
	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// Ensure Generator implements ragkb.Generator at compile time.
var _ ragkb.Generator = (*Generator)(nil)

// Generator produces text with a Gemini model.
type Generator struct {
	client *genai.Client
	model  string
}

// NewClient creates a Gemini API client authenticated with apiKey.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, ragkb.Errorf(ragkb.EINVALID, "gemini API key required")
	}
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

// NewGenerator creates a new Generator.
func NewGenerator(client *genai.Client, model string) *Generator {
	if model == "" {
		model = DefaultModel
	}
	return &Generator{client: client, model: model}
}

// Generate returns the model's answer to req.
func (g *Generator) Generate(ctx context.Context, req ragkb.GenerateRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", ragkb.Errorf(ragkb.EINVALID, "prompt required")
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: req.Prompt}},
		}},
		BuildConfig(req),
	)
	if err != nil {
		return "", ragkb.Errorf(ragkb.EUNAVAILABLE, "gemini generate: %v", err)
	}
	if result == nil {
		return "", ragkb.Errorf(ragkb.EINTERNAL, "gemini returned nil result")
	}

	return strings.TrimSpace(result.Text()), nil
}

// BuildConfig maps a generation request onto the Gemini content config.
func BuildConfig(req ragkb.GenerateRequest) *genai.GenerateContentConfig {
	temp := float32(req.Temperature)
	config := &genai.GenerateContentConfig{Temperature: &temp}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}
	return config
}
