package ragkb

import (
	"time"
)

// Duration is a time.Duration that round-trips through text as "30s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return Errorf(EINVALID, "invalid duration %q", string(b))
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// Config is the complete runtime configuration. It is built once at startup
// and passed explicitly to the components that need it.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Chunking  ChunkingConfig  `toml:"chunking"`
	Queue     QueueConfig     `toml:"queue"`
	Crawl     CrawlConfig     `toml:"crawl"`
	Search    SearchConfig    `toml:"search"`
	Refresh   RefreshConfig   `toml:"refresh"`
	Discovery DiscoveryConfig `toml:"discovery"`
	Ollama    OllamaConfig    `toml:"ollama"`
	Gemini    GeminiConfig    `toml:"gemini"`
	Brave     BraveConfig     `toml:"brave"`
	GitHub    GitHubConfig    `toml:"github"`
	YouTube   YouTubeConfig   `toml:"youtube"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// ChunkingConfig sizes chunks. Token counts are approximate unless
// ExactTokens selects the model tokenizer.
type ChunkingConfig struct {
	MaxTokens                 int  `toml:"max_tokens"`
	MinTokens                 int  `toml:"min_tokens"`
	OverlapTokens             int  `toml:"overlap_tokens"`
	TranscriptOverlapSegments int  `toml:"transcript_overlap_segments"`
	ExactTokens               bool `toml:"exact_tokens"`
}

// QueueConfig controls batch processing and retry.
type QueueConfig struct {
	BatchSize                int      `toml:"batch_size"`
	ConcurrentWorkers        int      `toml:"concurrent_workers"`
	MaxRetries               int      `toml:"max_retries"`
	DelayBetweenBatches      Duration `toml:"delay_between_batches"`
	RetryBase                Duration `toml:"retry_base"`
	RetryFactor              int      `toml:"retry_factor"`
	RateSensitiveConcurrency int      `toml:"rate_sensitive_concurrency"`
	RateSensitiveDelay       Duration `toml:"rate_sensitive_delay"`
}

// CrawlConfig controls fetching.
type CrawlConfig struct {
	RateLimitPerDomain  float64            `toml:"rate_limit_per_domain"`
	DomainRates         map[string]float64 `toml:"domain_rates,omitempty"`
	Include             []string           `toml:"include,omitempty"`
	Exclude             []string           `toml:"exclude,omitempty"`
	MaxPagesPerSite     int                `toml:"max_pages_per_site"`
	MaxVideosPerChannel int                `toml:"max_videos_per_channel"`
	Browser             bool               `toml:"browser"`
	FetchTimeout        Duration           `toml:"fetch_timeout"`
}

// SearchConfig holds search defaults and fusion parameters.
type SearchConfig struct {
	NResults          int      `toml:"n_results"`
	Threshold         float64  `toml:"threshold"`
	SemanticWeight    float64  `toml:"semantic_weight"`
	KeywordWeight     float64  `toml:"keyword_weight"`
	RRFK              int      `toml:"rrf_k"`
	Rerank            bool     `toml:"rerank"`
	Hybrid            bool     `toml:"hybrid"`
	Expand            bool     `toml:"expand"`
	MaxExpansionTerms int      `toml:"max_expansion_terms"`
	ExpansionTimeout  Duration `toml:"expansion_timeout"`
	RerankConcurrency int      `toml:"rerank_concurrency"`
}

// RefreshConfig controls the change-detection scheduler.
type RefreshConfig struct {
	Enabled           bool     `toml:"enabled"`
	Schedule          string   `toml:"schedule"`
	BatchLimit        int      `toml:"batch_limit"`
	DelayBetweenItems Duration `toml:"delay_between_items"`
}

// DiscoveryConfig controls source discovery.
type DiscoveryConfig struct {
	CompetitorQueries  bool `toml:"competitor_queries"`
	UserPriority       int  `toml:"user_priority"`
	DiscoveredPriority int  `toml:"discovered_priority"`
}

// OllamaConfig locates the local model server.
type OllamaConfig struct {
	Host          string `toml:"host"`
	Model         string `toml:"model"`
	EmbedModel    string `toml:"embed_model"`
	MetadataModel string `toml:"metadata_model"`
	RerankModel   string `toml:"rerank_model"`
}

// GeminiConfig enables Gemini as the text generator when APIKey is set.
type GeminiConfig struct {
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TokenizerModel string `toml:"tokenizer_model"`
}

// BraveConfig holds the Brave Search credential.
type BraveConfig struct {
	APIKey string `toml:"api_key"`
}

// GitHubConfig holds the optional GitHub token.
type GitHubConfig struct {
	Token string `toml:"token"`
}

// YouTubeConfig holds the optional Data API key and transcript languages.
type YouTubeConfig struct {
	APIKey    string   `toml:"api_key"`
	Languages []string `toml:"languages"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Chunking: ChunkingConfig{
			MaxTokens:                 512,
			MinTokens:                 100,
			OverlapTokens:             50,
			TranscriptOverlapSegments: 3,
		},
		Queue: QueueConfig{
			BatchSize:                10,
			ConcurrentWorkers:        3,
			MaxRetries:               3,
			DelayBetweenBatches:      Duration(30 * time.Second),
			RetryBase:                Duration(60 * time.Second),
			RetryFactor:              5,
			RateSensitiveConcurrency: 1,
			RateSensitiveDelay:       Duration(2 * time.Second),
		},
		Crawl: CrawlConfig{
			RateLimitPerDomain:  1.0,
			MaxPagesPerSite:     1000,
			MaxVideosPerChannel: 50,
			FetchTimeout:        Duration(30 * time.Second),
		},
		Search: SearchConfig{
			NResults:          DefaultNResults,
			Threshold:         DefaultThreshold,
			SemanticWeight:    0.7,
			KeywordWeight:     0.3,
			RRFK:              60,
			Rerank:            true,
			MaxExpansionTerms: 10,
			ExpansionTimeout:  Duration(10 * time.Second),
			RerankConcurrency: 4,
		},
		Refresh: RefreshConfig{
			Enabled:           true,
			Schedule:          "0 3 * * 1",
			BatchLimit:        100,
			DelayBetweenItems: Duration(2 * time.Second),
		},
		Discovery: DiscoveryConfig{
			UserPriority:       100,
			DiscoveredPriority: 50,
		},
		Ollama: OllamaConfig{
			Host:          "http://localhost:11434",
			Model:         "llama3.1:8b",
			EmbedModel:    "nomic-embed-text",
			MetadataModel: "llama3.1:8b",
			RerankModel:   "llama3.1:8b",
		},
		Gemini: GeminiConfig{
			Model:          "gemini-2.5-flash",
			TokenizerModel: "gemini-2.5-flash",
		},
		YouTube: YouTubeConfig{
			Languages: []string{"fr", "en", "es", "de", "it"},
		},
	}
}

// Validate returns EINVALID if the configuration is internally inconsistent.
func (c *Config) Validate() error {
	ch := c.Chunking
	switch {
	case ch.MaxTokens <= 0:
		return Errorf(EINVALID, "chunking.max_tokens must be positive")
	case ch.MinTokens < 0 || ch.MinTokens > ch.MaxTokens:
		return Errorf(EINVALID, "chunking.min_tokens must be between 0 and max_tokens")
	case ch.OverlapTokens < 0 || ch.OverlapTokens >= ch.MaxTokens:
		return Errorf(EINVALID, "chunking.overlap_tokens must be smaller than max_tokens")
	case ch.TranscriptOverlapSegments < 0:
		return Errorf(EINVALID, "chunking.transcript_overlap_segments must not be negative")
	}

	q := c.Queue
	switch {
	case q.BatchSize <= 0:
		return Errorf(EINVALID, "queue.batch_size must be positive")
	case q.ConcurrentWorkers <= 0:
		return Errorf(EINVALID, "queue.concurrent_workers must be positive")
	case q.MaxRetries <= 0:
		return Errorf(EINVALID, "queue.max_retries must be positive")
	case q.RetryFactor < 1:
		return Errorf(EINVALID, "queue.retry_factor must be at least 1")
	case q.RateSensitiveConcurrency <= 0:
		return Errorf(EINVALID, "queue.rate_sensitive_concurrency must be positive")
	}

	s := c.Search
	switch {
	case s.NResults <= 0:
		return Errorf(EINVALID, "search.n_results must be positive")
	case s.SemanticWeight < 0 || s.KeywordWeight < 0:
		return Errorf(EINVALID, "search weights must not be negative")
	case s.RRFK <= 0:
		return Errorf(EINVALID, "search.rrf_k must be positive")
	case s.Threshold < 0 || s.Threshold > 2:
		return Errorf(EINVALID, "search.threshold must be a cosine distance in [0,2]")
	}

	if c.Crawl.RateLimitPerDomain <= 0 {
		return Errorf(EINVALID, "crawl.rate_limit_per_domain must be positive")
	}
	if _, err := NewURLFilter(c.Crawl.Include, c.Crawl.Exclude); err != nil {
		return err
	}
	for domain, rps := range c.Crawl.DomainRates {
		if rps <= 0 {
			return Errorf(EINVALID, "crawl.domain_rates[%q] must be positive", domain)
		}
	}
	if c.Refresh.BatchLimit <= 0 {
		return Errorf(EINVALID, "refresh.batch_limit must be positive")
	}
	return nil
}

// RequireBrave returns EINVALID if web search is not configured.
func (c *Config) RequireBrave() error {
	if c.Brave.APIKey == "" {
		return Errorf(EINVALID, "BRAVE_API_KEY not set; web search needs a Brave Search API key")
	}
	return nil
}
