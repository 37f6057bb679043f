// Package mcp exposes the knowledge base to MCP clients over stdio or
// streamable HTTP.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fwojciec/ragkb"
	"github.com/fwojciec/ragkb/discover"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version is the MCP server version.
const Version = "0.1.0"

// SourceAdder queues sources from user input.
type SourceAdder interface {
	AddSources(ctx context.Context, input string) (*discover.AddReport, error)
}

// BatchProcessor processes queued sources.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context) (ragkb.BatchReport, error)
}

// Server is the MCP server for the knowledge base.
type Server struct {
	Search   ragkb.SearchService
	Sources  SourceAdder
	Registry ragkb.URLRegistry
	Index    ragkb.VectorIndex

	// Queue processes sources when add_source asks for it. May be nil.
	Queue BatchProcessor

	// Defaults fills options the caller leaves unset.
	Defaults ragkb.SearchOptions

	Logger *slog.Logger

	server *mcp.Server
}

// NewServer creates a Server and registers its tools.
func NewServer(search ragkb.SearchService, sources SourceAdder, registry ragkb.URLRegistry, index ragkb.VectorIndex, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		Search:   search,
		Sources:  sources,
		Registry: registry,
		Index:    index,
		Defaults: ragkb.SearchOptions{NResults: ragkb.DefaultNResults, Rerank: true},
		Logger:   logger,
		server:   mcp.NewServer(&mcp.Implementation{Name: "ragkb", Version: Version}, nil),
	}
	s.registerTools()
	return s
}

// Run serves MCP over stdio until ctx is canceled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Handler returns the streamable HTTP handler.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

// RunHTTP serves MCP over streamable HTTP on addr until ctx is canceled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.Logger.Info("mcp http server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Connect attaches the server to an arbitrary transport.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_rag",
		Description: "Search the knowledge base for relevant technical information",
	}, s.SearchRAG)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "add_source",
		Description: "Add sources (URLs or a search prompt) to the knowledge base",
	}, s.AddSource)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_status",
		Description: "Get knowledge base status and statistics",
	}, s.GetStatus)
}

// SearchArgs are the arguments of the search_rag tool.
type SearchArgs struct {
	Query      string   `json:"query" jsonschema:"search query or question"`
	NResults   int      `json:"n_results,omitempty" jsonschema:"number of results to return (default 5)"`
	SourceType string   `json:"source_type,omitempty" jsonschema:"filter by source type: documentation, youtube, github or all"`
	Difficulty string   `json:"difficulty,omitempty" jsonschema:"filter by difficulty level: beginner, intermediate, advanced or all"`
	Hybrid     *bool    `json:"hybrid,omitempty" jsonschema:"combine semantic and keyword retrieval"`
	Rerank     *bool    `json:"rerank,omitempty" jsonschema:"rerank results with the cross-encoder (default true)"`
	Expand     *bool    `json:"expand,omitempty" jsonschema:"expand the query with related terms"`
	Threshold  *float64 `json:"threshold,omitempty" jsonschema:"maximum cosine distance when reranking is off"`
}

// friendlyTypes maps tool-facing source names to source types.
var friendlyTypes = map[string]ragkb.SourceType{
	"documentation": ragkb.SourceWebsite,
	"youtube":       ragkb.SourceYouTubeVideo,
	"github":        ragkb.SourceGitHub,
}

// SearchRAG handles the search_rag tool call.
func (s *Server) SearchRAG(ctx context.Context, _ *mcp.CallToolRequest, args SearchArgs) (*mcp.CallToolResult, any, error) {
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return nil, nil, fmt.Errorf("query is required")
	}

	opts := s.Defaults
	if args.NResults > 0 {
		opts.NResults = args.NResults
	}
	if args.Hybrid != nil {
		opts.Hybrid = *args.Hybrid
	}
	if args.Rerank != nil {
		opts.Rerank = *args.Rerank
	}
	if args.Expand != nil {
		opts.Expand = *args.Expand
	}
	if args.Threshold != nil {
		opts.Threshold = *args.Threshold
	}
	if t := strings.TrimSpace(args.SourceType); t != "" && t != "all" {
		st, ok := friendlyTypes[t]
		if !ok {
			parsed, err := ragkb.ParseSourceType(t)
			if err != nil {
				return nil, nil, errors.New(ragkb.ErrorMessage(err))
			}
			st = parsed
		}
		opts.Filter.SourceType = &st
	}
	if d := strings.TrimSpace(args.Difficulty); d != "" && d != "all" {
		opts.Filter.Difficulty = &d
	}

	s.Logger.Debug("search_rag", "query", query, "n", opts.NResults, "hybrid", opts.Hybrid, "rerank", opts.Rerank)

	resp, err := s.Search.Search(ctx, query, opts)
	if err != nil {
		return nil, nil, errors.New(ragkb.ErrorMessage(err))
	}
	return textResult(FormatResults(resp)), nil, nil
}

// FormatResults renders a search response as markdown.
func FormatResults(resp *ragkb.SearchResponse) string {
	if len(resp.Results) == 0 {
		return "No results found in the knowledge base."
	}

	var b strings.Builder
	for i, r := range resp.Results {
		c := r.Chunk
		fmt.Fprintf(&b, "### Result %d (Score: %.2f, %s)\n\n", i+1, r.Score(), r.Stage)
		fmt.Fprintf(&b, "**Source:** %s\n", c.SourceURL)
		fmt.Fprintf(&b, "**Type:** %s | **Difficulty:** %s\n", c.SourceType, orNA(c.Enrichment.Difficulty))
		if len(c.Enrichment.Topics) > 0 {
			fmt.Fprintf(&b, "**Topics:** %s\n", strings.Join(c.Enrichment.Topics, ", "))
		}
		if v := c.Source.Video; v != nil && v.TimestampStart != "" {
			fmt.Fprintf(&b, "**Timestamp:** %s-%s\n", v.TimestampStart, v.TimestampEnd)
		}
		fmt.Fprintf(&b, "\n%s\n\n---\n\n", c.Content)
	}
	if len(resp.Degraded) > 0 {
		fmt.Fprintf(&b, "_Degraded: %s_\n", strings.Join(resp.Degraded, ", "))
	}
	return b.String()
}

// AddSourceArgs are the arguments of the add_source tool.
type AddSourceArgs struct {
	Input   string `json:"input" jsonschema:"URLs (one per line) or a search prompt"`
	Process bool   `json:"process_immediately,omitempty" jsonschema:"process the added sources right away (default false)"`
}

// AddSource handles the add_source tool call.
func (s *Server) AddSource(ctx context.Context, _ *mcp.CallToolRequest, args AddSourceArgs) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Input) == "" {
		return nil, nil, fmt.Errorf("input is required")
	}

	report, err := s.Sources.AddSources(ctx, args.Input)
	if err != nil {
		return nil, nil, errors.New(ragkb.ErrorMessage(err))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Sources added**\n\n")
	fmt.Fprintf(&b, "- Input type: %s\n", report.Kind)
	fmt.Fprintf(&b, "- URLs discovered: %d\n", report.Discovered)
	fmt.Fprintf(&b, "- URLs added: %d\n", report.Added)
	fmt.Fprintf(&b, "- URLs skipped: %d (duplicates)\n", report.Skipped)

	if args.Process && report.Added > 0 && s.Queue != nil {
		batch, err := s.Queue.ProcessBatch(ctx)
		if err != nil {
			return nil, nil, errors.New(ragkb.ErrorMessage(err))
		}
		fmt.Fprintf(&b, "\n**Processing complete**\n\n")
		fmt.Fprintf(&b, "- Processed: %d\n- Succeeded: %d\n- Failed: %d\n", batch.Processed, batch.Succeeded, batch.Failed)
	} else {
		fmt.Fprintf(&b, "\nSources queued. Run processing to extract their content.\n")
	}
	return textResult(b.String()), nil, nil
}

// StatusArgs are the (empty) arguments of the get_status tool.
type StatusArgs struct{}

// GetStatus handles the get_status tool call.
func (s *Server) GetStatus(ctx context.Context, _ *mcp.CallToolRequest, _ StatusArgs) (*mcp.CallToolResult, any, error) {
	reg, err := s.Registry.Stats(ctx)
	if err != nil {
		return nil, nil, errors.New(ragkb.ErrorMessage(err))
	}
	idx, err := s.Index.Stats(ctx)
	if err != nil {
		return nil, nil, errors.New(ragkb.ErrorMessage(err))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Knowledge base status**\n\n")
	fmt.Fprintf(&b, "Registry:\n- Total URLs: %d\n- Scraped: %d\n- Pending: %d\n- Failed: %d\n\n",
		reg.Total, reg.Scraped, reg.Pending, reg.Failed)
	fmt.Fprintf(&b, "Index:\n- Total chunks: %d\n- Documents: %d\n\n", idx.TotalChunks, idx.Documents)
	fmt.Fprintf(&b, "Chunks by source type:\n")
	for _, t := range ragkb.SourceTypes {
		if n := idx.BySourceType[t]; n > 0 {
			fmt.Fprintf(&b, "- %s: %d\n", t, n)
		}
	}
	return textResult(b.String()), nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
