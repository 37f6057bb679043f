// Package ollama implements ragkb.Embedder and ragkb.Generator on a local
// Ollama server.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

// DefaultHost is the address of a local Ollama server.
const DefaultHost = "http://localhost:11434"

// NewClient returns an API client for host.
func NewClient(host string) (*api.Client, error) {
	if host == "" {
		host = DefaultHost
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}
	return api.NewClient(u, http.DefaultClient), nil
}

// Available reports whether the server answers within two seconds.
func Available(ctx context.Context, client *api.Client) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, err := client.Version(ctx)
	return err == nil
}
