package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fwojciec/ragkb"
	"github.com/fwojciec/ragkb/ollama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestEmbedder_Embed(t *testing.T) {
	t.Parallel()

	var requests int
	host := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		requests++

		embeddings := make([][]float32, len(req.Input))
		for i := range req.Input {
			embeddings[i] = []float32{3, 4}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"model": req.Model, "embeddings": embeddings})
	})

	client, err := ollama.NewClient(host)
	require.NoError(t, err)
	e := ollama.NewEmbedder(client, "")

	texts := make([]string, 12)
	for i := range texts {
		texts[i] = "text"
	}
	vecs, err := e.Embed(context.Background(), texts)

	require.NoError(t, err)
	assert.Equal(t, 2, requests, "inputs are sent in batches of 10")
	require.Len(t, vecs, 12)
	assert.InDelta(t, 0.6, vecs[0][0], 1e-6)
	assert.InDelta(t, 0.8, vecs[0][1], 1e-6)
	assert.Equal(t, 2, e.Dimension())
}

func TestEmbedder_EmbedSingle_ServerError(t *testing.T) {
	t.Parallel()

	host := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	})
	client, err := ollama.NewClient(host)
	require.NoError(t, err)

	_, err = ollama.NewEmbedder(client, "missing").EmbedSingle(context.Background(), "q")

	require.Error(t, err)
	assert.Equal(t, ragkb.EUNAVAILABLE, ragkb.ErrorCode(err))
	assert.Equal(t, 0, ollama.NewEmbedder(client, "missing").Dimension())
}

func TestGenerator_Generate(t *testing.T) {
	t.Parallel()

	var got map[string]any
	host := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = w.Write([]byte(`{"model":"llama3.1:8b","response":"  {\"ok\":true}  ","done":true}` + "\n"))
	})
	client, err := ollama.NewClient(host)
	require.NoError(t, err)
	g := ollama.NewGenerator(client, "")

	out, err := g.Generate(context.Background(), ragkb.GenerateRequest{
		System:      "be brief",
		Prompt:      "hello",
		Temperature: 0.3,
		MaxTokens:   300,
		JSON:        true,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
	assert.Equal(t, "llama3.1:8b", got["model"])
	assert.Equal(t, "be brief", got["system"])
	assert.Equal(t, false, got["stream"])
	assert.Equal(t, "json", got["format"])
	opts, ok := got["options"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 0.3, opts["temperature"], 1e-9)
	assert.InDelta(t, 300, opts["num_predict"], 1e-9)
}

func TestGenerator_Generate_RequiresPrompt(t *testing.T) {
	t.Parallel()

	g := ollama.NewGenerator(nil, "")
	_, err := g.Generate(context.Background(), ragkb.GenerateRequest{})

	assert.Equal(t, ragkb.EINVALID, ragkb.ErrorCode(err))
}

func TestAvailable(t *testing.T) {
	t.Parallel()

	host := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version":"0.13.5"}`))
	})
	client, err := ollama.NewClient(host)
	require.NoError(t, err)

	assert.True(t, ollama.Available(context.Background(), client))
}
