package ollama

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/fwojciec/ragkb"
	"github.com/ollama/ollama/api"
)

var _ ragkb.Embedder = (*Embedder)(nil)

// DefaultEmbedModel is the embedding model used when none is configured.
const DefaultEmbedModel = "nomic-embed-text"

// embedBatchSize bounds the inputs sent in one request.
const embedBatchSize = 10

// Embedder produces unit-length embeddings with an Ollama model.
type Embedder struct {
	client *api.Client
	model  string
	dim    atomic.Int64
}

// NewEmbedder returns an Embedder using model.
func NewEmbedder(client *api.Client, model string) *Embedder {
	if model == "" {
		model = DefaultEmbedModel
	}
	return &Embedder{client: client, model: model}
}

// Embed returns one normalized vector per text, in order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += embedBatchSize {
		end := min(i+embedBatchSize, len(texts))
		batch := texts[i:end]

		resp, err := e.client.Embed(ctx, &api.EmbedRequest{
			Model: e.model,
			Input: batch,
		})
		if err != nil {
			return nil, ragkb.Errorf(ragkb.EUNAVAILABLE, "ollama embed: %v", err)
		}
		if len(resp.Embeddings) != len(batch) {
			return nil, ragkb.Errorf(ragkb.EINTERNAL, "ollama returned %d embeddings for %d inputs", len(resp.Embeddings), len(batch))
		}
		for _, v := range resp.Embeddings {
			if err := e.checkDimension(len(v)); err != nil {
				return nil, err
			}
			results = append(results, ragkb.NormalizeVector(v))
		}
	}
	return results, nil
}

// EmbedSingle embeds one text.
func (e *Embedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Dimension returns the vector length learned from the first response,
// or 0 before any call succeeded.
func (e *Embedder) Dimension() int {
	return int(e.dim.Load())
}

func (e *Embedder) checkDimension(n int) error {
	if n == 0 {
		return ragkb.Errorf(ragkb.EINTERNAL, "ollama returned an empty embedding")
	}
	if e.dim.CompareAndSwap(0, int64(n)) {
		return nil
	}
	if d := e.dim.Load(); d != int64(n) {
		return fmt.Errorf("embedding dimension changed from %d to %d", d, n)
	}
	return nil
}
