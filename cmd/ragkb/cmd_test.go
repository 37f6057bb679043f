package main_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fwojciec/ragkb"
	main "github.com/fwojciec/ragkb/cmd/ragkb"
	"github.com/fwojciec/ragkb/discover"
	"github.com/fwojciec/ragkb/mock"
	"github.com/fwojciec/ragkb/refresh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDeps(ctx context.Context) (*main.Dependencies, *bytes.Buffer, *bytes.Buffer) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	return &main.Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
		Config: ragkb.DefaultConfig(),
	}, stdout, stderr
}

type sourceService struct {
	addFn     func(ctx context.Context, input string) (*discover.AddReport, error)
	previewFn func(ctx context.Context, input string) (discover.InputKind, []string, error)
}

func (s *sourceService) AddSources(ctx context.Context, input string) (*discover.AddReport, error) {
	return s.addFn(ctx, input)
}

func (s *sourceService) Preview(ctx context.Context, input string) (discover.InputKind, []string, error) {
	return s.previewFn(ctx, input)
}

type queueRunner func(ctx context.Context, maxBatches int) (ragkb.BatchReport, error)

func (f queueRunner) ProcessAll(ctx context.Context, maxBatches int) (ragkb.BatchReport, error) {
	return f(ctx, maxBatches)
}

type scheduler struct {
	runNowFn func(ctx context.Context) (*refresh.Report, error)
	started  bool
	stopped  bool
}

func (s *scheduler) RunNow(ctx context.Context) (*refresh.Report, error) { return s.runNowFn(ctx) }
func (s *scheduler) NextRun(now time.Time) time.Time                     { return now.Add(time.Hour) }
func (s *scheduler) Start(context.Context)                               { s.started = true }
func (s *scheduler) Stop()                                               { s.stopped = true }

type mcpServer struct {
	stdio bool
	addr  string
}

func (s *mcpServer) Run(context.Context) error { s.stdio = true; return nil }

func (s *mcpServer) RunHTTP(_ context.Context, addr string) error { s.addr = addr; return nil }

func TestCLI_ParsesFlags(t *testing.T) {
	t.Parallel()

	cli := &main.CLI{}
	parser, err := kong.New(cli, kong.Exit(func(int) {}))
	require.NoError(t, err)

	_, err = parser.Parse([]string{"-v", "search", "-n", "3", "--hybrid", "--no-rerank", "--type", "github", "error", "wrapping"})

	require.NoError(t, err)
	assert.True(t, cli.Verbose)
	assert.Equal(t, 3, cli.Search.N)
	assert.True(t, cli.Search.Hybrid)
	assert.True(t, cli.Search.NoRerank)
	assert.Equal(t, "github", cli.Search.Type)
	assert.Equal(t, []string{"error", "wrapping"}, cli.Search.Query)
}

func TestAddCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("joins words into one input", func(t *testing.T) {
		t.Parallel()

		var got string
		deps, stdout, _ := newDeps(context.Background())
		deps.Sources = &sourceService{addFn: func(_ context.Context, input string) (*discover.AddReport, error) {
			got = input
			return &discover.AddReport{Kind: discover.InputPrompt, Discovered: 12, Added: 9, Skipped: 3}, nil
		}}

		err := (&main.AddCmd{Input: []string{"learn", "htmx"}}).Run(deps)

		require.NoError(t, err)
		assert.Equal(t, "learn htmx", got)
		assert.Contains(t, stdout.String(), "Discovered:  12")
		assert.Contains(t, stdout.String(), "Added:       9")
		assert.Contains(t, stdout.String(), "ragkb process")
	})

	t.Run("preview lists urls", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := newDeps(context.Background())
		deps.Sources = &sourceService{previewFn: func(context.Context, string) (discover.InputKind, []string, error) {
			return discover.InputPrompt, []string{"https://github.com/bigskysoftware/htmx"}, nil
		}}

		err := (&main.AddCmd{Input: []string{"htmx"}, Preview: true}).Run(deps)

		require.NoError(t, err)
		assert.Contains(t, stdout.String(), "[github] https://github.com/bigskysoftware/htmx")
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()

		deps, _, _ := newDeps(context.Background())

		err := (&main.AddCmd{Input: []string{" "}}).Run(deps)

		assert.Equal(t, ragkb.EINVALID, ragkb.ErrorCode(err))
	})
}

func TestProcessCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("reports batch totals", func(t *testing.T) {
		t.Parallel()

		var batches int
		deps, stdout, _ := newDeps(context.Background())
		deps.Queue = queueRunner(func(_ context.Context, n int) (ragkb.BatchReport, error) {
			batches = n
			return ragkb.BatchReport{Processed: 5, Succeeded: 4, Failed: 1}, nil
		})

		err := (&main.ProcessCmd{Batches: 2}).Run(deps)

		require.NoError(t, err)
		assert.Equal(t, 2, batches)
		assert.Contains(t, stdout.String(), "Succeeded: 4")
		assert.Contains(t, stdout.String(), "Failed:    1")
	})

	t.Run("empty queue", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := newDeps(context.Background())
		deps.Queue = queueRunner(func(context.Context, int) (ragkb.BatchReport, error) {
			return ragkb.BatchReport{}, nil
		})

		require.NoError(t, (&main.ProcessCmd{}).Run(deps))
		assert.Contains(t, stdout.String(), "Nothing to process")
	})
}

func TestSearchCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("merges flags over config", func(t *testing.T) {
		t.Parallel()

		var got ragkb.SearchOptions
		deps, stdout, stderr := newDeps(context.Background())
		deps.Search = &mock.SearchService{
			SearchFn: func(_ context.Context, query string, opts ragkb.SearchOptions) (*ragkb.SearchResponse, error) {
				got = opts
				return &ragkb.SearchResponse{
					Query:         query,
					ExpandedQuery: query + " mutex channel",
					Results: []ragkb.SearchResult{{
						Rank:   1,
						Stage:  ragkb.StageFused,
						Scores: ragkb.Scores{Fused: ragkb.F64(0.0321)},
						Chunk: &ragkb.Chunk{
							SourceURL:  "https://go.dev/blog/race-detector",
							SourceType: ragkb.SourceWebsite,
							Content:    "The race\n\ndetector finds data races.",
						},
					}},
					Degraded: []string{"rerank"},
				}, nil
			},
		}

		err := (&main.SearchCmd{Query: []string{"data", "race"}, N: 3, Hybrid: true, NoRerank: true, Type: "website"}).Run(deps)

		require.NoError(t, err)
		assert.Equal(t, 3, got.NResults)
		assert.True(t, got.Hybrid)
		assert.False(t, got.Rerank)
		assert.Equal(t, ragkb.DefaultThreshold, got.Threshold)
		require.NotNil(t, got.Filter.SourceType)
		assert.Equal(t, ragkb.SourceWebsite, *got.Filter.SourceType)

		out := stdout.String()
		assert.Contains(t, out, "Expanded query: data race mutex channel")
		assert.Contains(t, out, "1. [0.032 fused]")
		assert.Contains(t, out, "https://go.dev/blog/race-detector (website)")
		assert.Contains(t, out, "The race detector finds data races.")
		assert.Contains(t, stderr.String(), "warning: skipped rerank")
	})

	t.Run("uses config defaults", func(t *testing.T) {
		t.Parallel()

		var got ragkb.SearchOptions
		deps, stdout, _ := newDeps(context.Background())
		deps.Config.Search.Hybrid = true
		deps.Search = &mock.SearchService{
			SearchFn: func(_ context.Context, _ string, opts ragkb.SearchOptions) (*ragkb.SearchResponse, error) {
				got = opts
				return &ragkb.SearchResponse{}, nil
			},
		}

		require.NoError(t, (&main.SearchCmd{Query: []string{"q"}}).Run(deps))

		assert.Equal(t, ragkb.DefaultNResults, got.NResults)
		assert.True(t, got.Hybrid)
		assert.True(t, got.Rerank)
		assert.Nil(t, got.Filter.SourceType)
		assert.Contains(t, stdout.String(), "No results found.")
	})
}

func TestStatsCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("prints both stores", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := newDeps(context.Background())
		deps.Registry = &mock.URLRegistry{
			StatsFn: func(context.Context) (*ragkb.RegistryStats, error) {
				return &ragkb.RegistryStats{Total: 4, Scraped: 3, Failed: 1, BySourceType: map[ragkb.SourceType]int{ragkb.SourceGitHub: 4}}, nil
			},
		}
		deps.Index = &mock.VectorIndex{
			StatsFn: func(context.Context) (*ragkb.IndexStats, error) {
				return &ragkb.IndexStats{TotalChunks: 120, Documents: 3, BySourceType: map[ragkb.SourceType]int{ragkb.SourceGitHub: 120}}, nil
			},
		}

		require.NoError(t, (&main.StatsCmd{}).Run(deps))

		out := stdout.String()
		assert.Contains(t, out, "scraped  3")
		assert.Contains(t, out, "chunks     120")
		assert.Contains(t, out, "github")
	})

	t.Run("registry error", func(t *testing.T) {
		t.Parallel()

		deps, _, _ := newDeps(context.Background())
		deps.Registry = &mock.URLRegistry{
			StatsFn: func(context.Context) (*ragkb.RegistryStats, error) {
				return nil, errors.New("disk I/O error")
			},
		}

		assert.Error(t, (&main.StatsCmd{}).Run(deps))
	})
}

func TestClearCmd_Run(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		status string
		check  func(t *testing.T, f ragkb.ClearFilter)
	}{
		{"queued", func(t *testing.T, f ragkb.ClearFilter) {
			assert.Nil(t, f.Status)
			assert.False(t, f.All)
		}},
		{"all", func(t *testing.T, f ragkb.ClearFilter) {
			assert.True(t, f.All)
		}},
		{"scraped", func(t *testing.T, f ragkb.ClearFilter) {
			require.NotNil(t, f.Status)
			assert.Equal(t, ragkb.StatusScraped, *f.Status)
		}},
	} {
		t.Run(tc.status, func(t *testing.T) {
			t.Parallel()

			var got ragkb.ClearFilter
			deps, stdout, _ := newDeps(context.Background())
			deps.Registry = &mock.URLRegistry{
				ClearFn: func(_ context.Context, f ragkb.ClearFilter) (int, error) {
					got = f
					return 2, nil
				},
			}

			require.NoError(t, (&main.ClearCmd{Status: tc.status}).Run(deps))

			tc.check(t, got)
			assert.Contains(t, stdout.String(), "Removed 2 sources")
		})
	}
}

func TestResetCmd_Run(t *testing.T) {
	t.Parallel()

	var reset, cleared bool
	deps, stdout, _ := newDeps(context.Background())
	deps.Index = &mock.VectorIndex{
		CountFn: func(context.Context) (int, error) { return 50, nil },
		ResetFn: func(context.Context) error { reset = true; return nil },
	}
	deps.Registry = &mock.URLRegistry{
		ClearFn: func(_ context.Context, f ragkb.ClearFilter) (int, error) {
			cleared = f.All
			return 7, nil
		},
	}

	require.NoError(t, (&main.ResetCmd{Force: true}).Run(deps))

	assert.True(t, reset)
	assert.True(t, cleared)
	assert.Contains(t, stdout.String(), "Deleted 50 chunks and 7 sources")
}

func TestRefreshCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("prints the report", func(t *testing.T) {
		t.Parallel()

		deps, stdout, _ := newDeps(context.Background())
		deps.Refresh = &scheduler{runNowFn: func(context.Context) (*refresh.Report, error) {
			return &refresh.Report{Candidates: 6, Updated: 2, Unchanged: 2, Skipped: 1, Failed: 1}, nil
		}}

		require.NoError(t, (&main.RefreshCmd{}).Run(deps))

		out := stdout.String()
		assert.Contains(t, out, "Candidates: 6")
		assert.Contains(t, out, "Updated:    2")
		assert.Contains(t, out, "Skipped:    1")
	})

	t.Run("conflict", func(t *testing.T) {
		t.Parallel()

		deps, _, _ := newDeps(context.Background())
		deps.Refresh = &scheduler{runNowFn: func(context.Context) (*refresh.Report, error) {
			return nil, ragkb.Errorf(ragkb.ECONFLICT, "a refresh is already running")
		}}

		err := (&main.RefreshCmd{}).Run(deps)

		assert.Equal(t, ragkb.ECONFLICT, ragkb.ErrorCode(err))
	})
}

func TestScheduleCmd_Run(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	deps, stdout, _ := newDeps(ctx)
	s := &scheduler{}
	deps.Refresh = s

	require.NoError(t, (&main.ScheduleCmd{}).Run(deps))

	assert.True(t, s.started)
	assert.True(t, s.stopped)
	assert.Contains(t, stdout.String(), "Refresh scheduled (0 3 * * 1)")
}

func TestServeCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("stdio", func(t *testing.T) {
		t.Parallel()

		deps, _, _ := newDeps(context.Background())
		srv := &mcpServer{}
		deps.MCP = srv

		require.NoError(t, (&main.ServeCmd{}).Run(deps))
		assert.True(t, srv.stdio)
	})

	t.Run("http", func(t *testing.T) {
		t.Parallel()

		deps, _, _ := newDeps(context.Background())
		srv := &mcpServer{}
		deps.MCP = srv

		require.NoError(t, (&main.ServeCmd{HTTP: "127.0.0.1:8765"}).Run(deps))
		assert.Equal(t, "127.0.0.1:8765", srv.addr)
		assert.False(t, srv.stdio)
	})
}
