package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/fwojciec/ragkb"
	"github.com/fwojciec/ragkb/discover"
	"github.com/fwojciec/ragkb/refresh"
)

// SourceService adds sources to the queue.
type SourceService interface {
	AddSources(ctx context.Context, input string) (*discover.AddReport, error)
	Preview(ctx context.Context, input string) (discover.InputKind, []string, error)
}

// QueueRunner drains the pending queue.
type QueueRunner interface {
	ProcessAll(ctx context.Context, maxBatches int) (ragkb.BatchReport, error)
}

// RefreshScheduler runs refresh passes now or on a schedule.
type RefreshScheduler interface {
	RunNow(ctx context.Context) (*refresh.Report, error)
	NextRun(now time.Time) time.Time
	Start(ctx context.Context)
	Stop()
}

// MCPServer serves the MCP tools.
type MCPServer interface {
	Run(ctx context.Context) error
	RunHTTP(ctx context.Context, addr string) error
}

// Dependencies holds all services and configuration for command execution.
// Services a command does not need are left nil.
type Dependencies struct {
	Ctx        context.Context
	Stdout     io.Writer
	Stderr     io.Writer
	Logger     *slog.Logger
	Config     ragkb.Config
	ConfigPath string

	Registry ragkb.URLRegistry
	Index    ragkb.VectorIndex
	Sources  SourceService
	Queue    QueueRunner
	Search   ragkb.SearchService
	Refresh  RefreshScheduler
	MCP      MCPServer
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	ConfigFile string `name:"config" short:"c" type:"path" help:"Config file path (default ~/.ragkb/config.toml)"`
	Verbose    bool   `short:"v" help:"Log debug output and per-call timings to stderr"`

	Add      AddCmd      `cmd:"" help:"Add sources from URLs or a search prompt"`
	Process  ProcessCmd  `cmd:"" help:"Scrape and index pending sources"`
	Search   SearchCmd   `cmd:"" help:"Search the knowledge base"`
	Stats    StatsCmd    `cmd:"" help:"Show registry and index statistics"`
	Refresh  RefreshCmd  `cmd:"" help:"Re-check sources that are due and re-index changed ones"`
	Schedule ScheduleCmd `cmd:"" help:"Run refreshes on the configured schedule until interrupted"`
	Clear    ClearCmd    `cmd:"" help:"Remove queued sources from the registry"`
	Reset    ResetCmd    `cmd:"" help:"Delete every source and indexed chunk"`
	Serve    ServeCmd    `cmd:"" help:"Serve the knowledge base over MCP"`
	Config   ConfigCmd   `cmd:"" help:"Manage the configuration file"`
}

// AddCmd is the "add" subcommand.
type AddCmd struct {
	Input   []string `arg:"" help:"URLs or a natural-language search prompt"`
	Preview bool     `short:"p" help:"Show the URLs that would be added without adding them"`
}

// ProcessCmd is the "process" subcommand.
type ProcessCmd struct {
	Batches int `short:"b" default:"0" help:"Maximum number of batches (0 processes until the queue is empty)"`
}

// SearchCmd is the "search" subcommand.
type SearchCmd struct {
	Query     []string `arg:"" help:"Search query"`
	N         int      `name:"results" short:"n" default:"0" help:"Number of results (default from config)"`
	Hybrid    bool     `help:"Combine semantic and keyword retrieval"`
	NoRerank  bool     `name:"no-rerank" help:"Skip cross-encoder reranking"`
	Expand    bool     `help:"Expand the query with related terms"`
	Type      string   `short:"t" help:"Filter by source type (website, github, youtube_video, youtube_channel)"`
	Threshold float64  `help:"Maximum cosine distance when reranking is off (default from config)"`
}

// StatsCmd is the "stats" subcommand.
type StatsCmd struct{}

// RefreshCmd is the "refresh" subcommand.
type RefreshCmd struct{}

// ScheduleCmd is the "schedule" subcommand.
type ScheduleCmd struct{}

// ClearCmd is the "clear" subcommand.
type ClearCmd struct {
	Status string `short:"s" enum:"queued,pending,failed,scraped,all" default:"queued" help:"Which rows to remove: queued (pending and failed), pending, failed, scraped or all"`
}

// ResetCmd is the "reset" subcommand.
type ResetCmd struct {
	Force bool `help:"Confirm deletion"`
}

// ServeCmd is the "serve" subcommand.
type ServeCmd struct {
	HTTP string `name:"http" placeholder:"ADDR" help:"Serve streamable HTTP on ADDR instead of stdio"`
}

// ConfigCmd groups configuration subcommands.
type ConfigCmd struct {
	Init ConfigInitCmd `cmd:"" help:"Write a config file with the default settings"`
}

// ConfigInitCmd is the "config init" subcommand.
type ConfigInitCmd struct {
	Force bool `short:"f" help:"Overwrite an existing file"`
}
