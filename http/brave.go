package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fwojciec/ragkb"
)

var _ ragkb.WebSearcher = (*BraveSearcher)(nil)

// Brave Search API defaults.
const (
	DefaultBraveEndpoint = "https://api.search.brave.com/res/v1/web/search"
	DefaultBraveTimeout  = 10 * time.Second
	MaxBraveCount        = 20
)

// BraveSearcher queries the Brave Search web API.
type BraveSearcher struct {
	apiKey   string
	client   *http.Client
	Endpoint string
	Country  string
}

// NewBraveSearcher creates a BraveSearcher. A nil client gets one with
// DefaultBraveTimeout.
func NewBraveSearcher(apiKey string, client *http.Client) *BraveSearcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultBraveTimeout}
	}
	return &BraveSearcher{
		apiKey:   apiKey,
		client:   client,
		Endpoint: DefaultBraveEndpoint,
		Country:  "US",
	}
}

type braveResponse struct {
	Web struct {
		Results []struct {
			URL         string `json:"url"`
			Title       string `json:"title"`
			Description string `json:"description"`
			Age         string `json:"age"`
		} `json:"results"`
	} `json:"web"`
}

// Search returns up to count web results for query. count is capped at
// MaxBraveCount.
func (b *BraveSearcher) Search(ctx context.Context, query string, count int) ([]ragkb.WebResult, error) {
	if b.apiKey == "" {
		return nil, ragkb.Errorf(ragkb.EINVALID, "brave API key required")
	}
	if strings.TrimSpace(query) == "" {
		return nil, ragkb.Errorf(ragkb.EINVALID, "search query required")
	}
	count = min(max(count, 1), MaxBraveCount)

	params := url.Values{
		"q":       {query},
		"count":   {strconv.Itoa(count)},
		"country": {b.Country},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("brave request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ragkb.Errorf(ragkb.EUNAVAILABLE, "brave search: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, ragkb.Errorf(ragkb.EUNAVAILABLE, "brave search: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, ragkb.Errorf(ragkb.EINTERNAL, "decode brave response: %v", err)
	}

	results := make([]ragkb.WebResult, 0, len(out.Web.Results))
	for _, r := range out.Web.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, ragkb.WebResult{
			URL:         r.URL,
			Title:       r.Title,
			Description: r.Description,
			Age:         r.Age,
		})
	}
	return results, nil
}
