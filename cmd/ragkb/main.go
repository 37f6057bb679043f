package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fwojciec/ragkb"
	"github.com/fwojciec/ragkb/chunk"
	"github.com/fwojciec/ragkb/crawl"
	"github.com/fwojciec/ragkb/discover"
	"github.com/fwojciec/ragkb/gemini"
	"github.com/fwojciec/ragkb/github"
	"github.com/fwojciec/ragkb/goquery"
	"github.com/fwojciec/ragkb/htmltomarkdown"
	ragkbhttp "github.com/fwojciec/ragkb/http"
	"github.com/fwojciec/ragkb/ingest"
	"github.com/fwojciec/ragkb/keyword"
	"github.com/fwojciec/ragkb/llm"
	"github.com/fwojciec/ragkb/mcp"
	"github.com/fwojciec/ragkb/ollama"
	"github.com/fwojciec/ragkb/readability"
	"github.com/fwojciec/ragkb/refresh"
	"github.com/fwojciec/ragkb/rod"
	"github.com/fwojciec/ragkb/scrape"
	"github.com/fwojciec/ragkb/search"
	ragslog "github.com/fwojciec/ragkb/slog"
	"github.com/fwojciec/ragkb/sqlite"
	"github.com/fwojciec/ragkb/toml"
	"github.com/fwojciec/ragkb/trafilatura"
	"github.com/fwojciec/ragkb/youtube"
	"golang.org/x/time/rate"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := NewMain()
	if err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		stop()
		os.Exit(1)
	}
}

// webSearchInterval paces Brave Search requests.
const webSearchInterval = time.Second

// Main represents the program.
type Main struct {
	// Config file path. Overridden by --config.
	ConfigPath string

	// Config, when set, is used instead of loading ConfigPath.
	Config *ragkb.Config

	// SQLite database used by SQLite service implementations.
	DB *sqlite.DB

	// Model backends. When nil they are built from the config; tests set
	// them to avoid a model server.
	Embedder    ragkb.Embedder
	Generator   ragkb.Generator
	WebSearcher ragkb.WebSearcher

	closers []io.Closer
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	path, err := toml.DefaultPath()
	if err != nil {
		path = "ragkb.toml"
	}
	return &Main{ConfigPath: path}
}

// Close releases the browser and database.
func (m *Main) Close() error {
	for i := len(m.closers) - 1; i >= 0; i-- {
		_ = m.closers[i].Close()
	}
	m.closers = nil
	if m.DB != nil {
		return m.DB.Close()
	}
	return nil
}

// Run executes the CLI with the given arguments. Errors are reported on
// stderr before being returned.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if err := m.run(ctx, args, stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "error: %s\n", ragkb.ErrorMessage(err))
		return err
	}
	return nil
}

func (m *Main) run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("ragkb"),
		kong.Description("Local knowledge base over documentation, repositories and videos."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}),
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return ragkb.Errorf(ragkb.EINVALID, "no command specified. Run 'ragkb --help' to see available commands")
	}
	if cmd := args[0]; cmd == "help" || cmd == "--help" || cmd == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return ragkb.Errorf(ragkb.EINVALID, "%v", err)
	}
	cmd := strings.Fields(kongCtx.Command())[0]

	level := slog.LevelWarn
	if cli.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	deps.Logger = logger

	if cli.ConfigFile != "" {
		m.ConfigPath = cli.ConfigFile
	}
	deps.ConfigPath = m.ConfigPath

	cfg, err := m.loadConfig()
	if err != nil && cmd != "config" {
		return err
	}
	deps.Config = cfg

	if cmd == "config" {
		return kongCtx.Run(deps)
	}

	if err := m.openDB(cfg.Database.Path); err != nil {
		fmt.Fprintf(stderr, "Hint: set %s or [database] path to use a different database\n", toml.EnvDB)
		return err
	}
	defer m.Close()

	w := &wiring{m: m, cfg: cfg, logger: logger, verbose: cli.Verbose}
	if err := w.core(ctx, deps); err != nil {
		return err
	}

	switch cmd {
	case "add":
		deps.Sources = w.sources()
	case "search":
		deps.Search = w.search()
	case "process":
		queue, _, err := w.pipeline(ctx)
		if err != nil {
			return err
		}
		deps.Queue = queue
	case "refresh", "schedule":
		_, job, err := w.pipeline(ctx)
		if err != nil {
			return err
		}
		sched, err := refresh.NewScheduler(job, cfg.Refresh.Schedule, logger)
		if err != nil {
			return err
		}
		deps.Refresh = sched
	case "serve":
		queue, _, err := w.pipeline(ctx)
		if err != nil {
			return err
		}
		srv := mcp.NewServer(w.search(), w.sources(), deps.Registry, deps.Index, logger)
		srv.Queue = queue
		srv.Defaults = ragkb.SearchOptions{
			NResults:  cfg.Search.NResults,
			Hybrid:    cfg.Search.Hybrid,
			Rerank:    cfg.Search.Rerank,
			Expand:    cfg.Search.Expand,
			Threshold: cfg.Search.Threshold,
		}
		deps.MCP = srv
	}

	return kongCtx.Run(deps)
}

func (m *Main) loadConfig() (ragkb.Config, error) {
	if m.Config != nil {
		return *m.Config, nil
	}
	cfg, err := toml.Load(m.ConfigPath)
	if err != nil {
		return ragkb.DefaultConfig(), err
	}
	return cfg, nil
}

func (m *Main) openDB(path string) error {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create database dir: %w", err)
		}
	}
	m.DB = sqlite.NewDB(path)
	if err := m.DB.Open(); err != nil {
		return fmt.Errorf("failed to open database at %q: %w", path, err)
	}
	return nil
}

// wiring builds the services a command needs from the config.
type wiring struct {
	m       *Main
	cfg     ragkb.Config
	logger  *slog.Logger
	verbose bool

	registry ragkb.URLRegistry
	index    ragkb.VectorIndex
	embedder ragkb.Embedder
	gen      ragkb.Generator
	metaGen  ragkb.Generator
	rankGen  ragkb.Generator
}

// core wires storage and the model backends. Building the clients does not
// contact the servers.
func (w *wiring) core(ctx context.Context, deps *Dependencies) error {
	store := sqlite.NewURLRegistry(w.m.DB)
	store.MaxRetries = w.cfg.Queue.MaxRetries
	var registry ragkb.URLRegistry = store
	if w.verbose {
		registry = ragslog.NewLoggingURLRegistry(registry, w.logger)
	}
	w.registry = registry
	w.index = sqlite.NewChunkStore(w.m.DB, w.logger)
	deps.Registry = w.registry
	deps.Index = w.index

	client, err := ollama.NewClient(w.cfg.Ollama.Host)
	if err != nil {
		return err
	}

	w.embedder = w.m.Embedder
	if w.embedder == nil {
		w.embedder = ollama.NewEmbedder(client, w.cfg.Ollama.EmbedModel)
		if w.verbose && !ollama.Available(ctx, client) {
			w.logger.Warn("ollama not reachable", "host", w.cfg.Ollama.Host)
		}
	}
	if w.verbose {
		w.embedder = ragslog.NewLoggingEmbedder(w.embedder, w.logger)
	}

	if w.m.Generator != nil {
		w.gen, w.metaGen, w.rankGen = w.m.Generator, w.m.Generator, w.m.Generator
		return nil
	}
	w.gen = ollama.NewGenerator(client, w.cfg.Ollama.Model)
	if w.cfg.Gemini.APIKey != "" {
		gc, err := gemini.NewClient(ctx, w.cfg.Gemini.APIKey)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Hint: check that GEMINI_API_KEY is valid")
			return err
		}
		w.gen = gemini.NewGenerator(gc, w.cfg.Gemini.Model)
	}
	w.metaGen = ollama.NewGenerator(client, w.cfg.Ollama.MetadataModel)
	w.rankGen = ollama.NewGenerator(client, w.cfg.Ollama.RerankModel)
	return nil
}

func (w *wiring) search() ragkb.SearchService {
	engine := search.NewEngine(w.cfg.Search, w.index, keyword.NewSearcher(w.index, w.logger), w.embedder, w.logger)

	expander := llm.NewExpander(w.gen, w.logger)
	expander.MaxTerms = w.cfg.Search.MaxExpansionTerms
	expander.Timeout = w.cfg.Search.ExpansionTimeout.D()
	engine.Expander = expander

	reranker := llm.NewReranker(w.rankGen)
	if w.cfg.Search.RerankConcurrency > 0 {
		reranker.Concurrency = w.cfg.Search.RerankConcurrency
	}
	engine.Reranker = reranker

	if w.verbose {
		return ragslog.NewLoggingSearchService(engine, w.logger)
	}
	return engine
}

func (w *wiring) sources() *discover.Orchestrator {
	planner := llm.NewPlanner(w.gen, w.logger)
	planner.Competitors = w.cfg.Discovery.CompetitorQueries

	o := &discover.Orchestrator{
		Registry:           w.registry,
		Planner:            planner,
		UserPriority:       w.cfg.Discovery.UserPriority,
		DiscoveredPriority: w.cfg.Discovery.DiscoveredPriority,
		Logger:             w.logger,
	}
	switch {
	case w.m.WebSearcher != nil:
		o.Search = w.m.WebSearcher
	case w.cfg.Brave.APIKey != "":
		o.Search = ragkbhttp.NewBraveSearcher(w.cfg.Brave.APIKey, nil)
		o.Limiter = rate.NewLimiter(rate.Every(webSearchInterval), 1)
	}
	return o
}

// pipeline wires scraping and ingestion. A headless browser is started only
// when the config asks for one.
func (w *wiring) pipeline(ctx context.Context) (*ingest.Queue, *refresh.Job, error) {
	cfg := w.cfg

	var httpFetcher ragkb.Fetcher = ragkbhttp.NewFetcher(ragkbhttp.WithTimeout(cfg.Crawl.FetchTimeout.D()))
	var browser ragkb.Fetcher
	if cfg.Crawl.Browser {
		f, err := rod.NewFetcher(rod.WithTimeout(cfg.Crawl.FetchTimeout.D()))
		if err != nil {
			fmt.Fprintln(os.Stderr, "Hint: Chrome or Chromium must be installed, or set [crawl] browser = false")
			return nil, nil, fmt.Errorf("failed to start browser: %w", err)
		}
		w.m.closers = append(w.m.closers, f)
		browser = f
	}
	var sitemaps ragkb.SitemapService = ragkbhttp.NewSitemapService(nil)
	if w.verbose {
		httpFetcher = ragslog.NewLoggingFetcher(httpFetcher, w.logger)
		sitemaps = ragslog.NewLoggingSitemapService(sitemaps, w.logger)
		if browser != nil {
			browser = ragslog.NewLoggingFetcher(browser, w.logger)
		}
	}

	pageFetcher := httpFetcher
	if browser != nil {
		pageFetcher = browser
	}
	limiter := crawl.NewDomainLimiter(cfg.Crawl.RateLimitPerDomain)
	limiter.Rates = cfg.Crawl.DomainRates
	head := ragkbhttp.NewHeadChecker(nil)
	extractor := trafilatura.NewExtractor()

	website := &scrape.Website{
		Fetcher:     pageFetcher,
		Extractor:   extractor,
		Fallback:    readability.NewExtractor(),
		Converter:   htmltomarkdown.NewConverter(),
		Meta:        goquery.NewMetaReader(),
		Head:        head,
		RateLimiter: limiter,
		Logger:      w.logger,
	}
	filter, err := ragkb.NewURLFilter(cfg.Crawl.Include, cfg.Crawl.Exclude)
	if err != nil {
		return nil, nil, err
	}
	pages := &crawl.Discoverer{
		Filter:      filter,
		Sitemaps:    sitemaps,
		HTTPFetcher: httpFetcher,
		Extractor:   extractor,
		Links:       goquery.NewLinkExtractor(),
		RateLimiter: limiter,
		Logger:      w.logger,
	}
	if browser != nil {
		pages.BrowserFetcher = browser
	}

	repos := github.NewScraper(ctx, cfg.GitHub.Token, github.WithLogger(w.logger))

	yt, err := youtube.NewService(ctx, cfg.YouTube.APIKey)
	if err != nil {
		return nil, nil, err
	}
	videos := youtube.NewVideoScraper(yt, httpFetcher, cfg.YouTube.Languages, w.logger)
	channels := youtube.NewChannelCrawler(yt, httpFetcher, w.logger)

	scrapers := ragkb.Scrapers{Website: website, GitHub: repos, YouTubeVideo: videos}
	if w.verbose {
		scrapers = ragslog.WrapScrapers(scrapers, w.logger)
	}

	var tokens ragkb.TokenCounter
	if cfg.Chunking.ExactTokens {
		tc, err := gemini.NewTokenCounter(cfg.Gemini.TokenizerModel)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create token counter: %w", err)
		}
		tokens = tc
	}

	processor := ingest.NewProcessor(
		chunk.NewChunker(cfg.Chunking, tokens, w.logger),
		llm.NewEnricher(w.metaGen, w.logger),
		w.embedder,
		w.index,
		w.logger,
	)

	queue := &ingest.Queue{
		Registry:            w.registry,
		Scrapers:            scrapers,
		Processor:           processor,
		Channels:            channels,
		Pages:               pages,
		Config:              cfg.Queue,
		MaxVideosPerChannel: cfg.Crawl.MaxVideosPerChannel,
		MaxPagesPerSite:     cfg.Crawl.MaxPagesPerSite,
		DiscoveredPriority:  cfg.Discovery.DiscoveredPriority,
		Logger:              w.logger,
	}
	job := &refresh.Job{
		Registry:            w.registry,
		Index:               w.index,
		Scrapers:            scrapers,
		Processor:           processor,
		Head:                head,
		Commits:             repos,
		Channels:            channels,
		MaxVideosPerChannel: cfg.Crawl.MaxVideosPerChannel,
		DiscoveredPriority:  cfg.Discovery.DiscoveredPriority,
		BatchLimit:          cfg.Refresh.BatchLimit,
		DelayBetweenItems:   cfg.Refresh.DelayBetweenItems.D(),
		Logger:              w.logger,
	}
	return queue, job, nil
}
