package ollama

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/fwojciec/ragkb"
	"github.com/ollama/ollama/api"
)

var _ ragkb.Generator = (*Generator)(nil)

// DefaultModel is the text model used when none is configured.
const DefaultModel = "llama3.1:8b"

// Generator produces text with an Ollama model.
type Generator struct {
	client *api.Client
	model  string
}

// NewGenerator returns a Generator using model.
func NewGenerator(client *api.Client, model string) *Generator {
	if model == "" {
		model = DefaultModel
	}
	return &Generator{client: client, model: model}
}

// Generate returns the complete, non-streamed response to req.
func (g *Generator) Generate(ctx context.Context, req ragkb.GenerateRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", ragkb.Errorf(ragkb.EINVALID, "prompt required")
	}

	stream := false
	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	r := &api.GenerateRequest{
		Model:   g.model,
		Prompt:  req.Prompt,
		System:  req.System,
		Stream:  &stream,
		Options: options,
	}
	if req.JSON {
		r.Format = json.RawMessage(`"json"`)
	}

	var sb strings.Builder
	err := g.client.Generate(ctx, r, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", ragkb.Errorf(ragkb.EUNAVAILABLE, "ollama generate: %v", err)
	}
	return strings.TrimSpace(sb.String()), nil
}
