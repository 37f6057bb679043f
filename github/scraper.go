// Package github scrapes repositories through the GitHub REST API. It reads
// the repository tree at the default branch head and pulls the README plus
// a capped set of documentation and source files.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/fwojciec/ragkb"
	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

var (
	_ ragkb.Scraper       = (*Scraper)(nil)
	_ ragkb.CommitChecker = (*Scraper)(nil)
)

const (
	// DefaultTimeout is the HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRate keeps unauthenticated use under the hourly API quota.
	DefaultRate = 1.2

	// MaxFileSize is the largest file pulled from a repository, in bytes.
	MaxFileSize = 100_000

	// MaxFiles caps the files pulled per repository, README excluded.
	MaxFiles = 50
)

// supportedExtensions maps the file extensions worth indexing to the
// language recorded for the chunker.
var supportedExtensions = map[string]string{
	".py":   "python",
	".md":   "markdown",
	".rst":  "rst",
	".txt":  "text",
	".yaml": "yaml",
	".yml":  "yaml",
	".json": "json",
	".toml": "toml",
	".cfg":  "ini",
	".ini":  "ini",
	".sh":   "shell",
	".js":   "javascript",
	".ts":   "typescript",
}

var ignoredDirs = map[string]bool{
	".git": true, "__pycache__": true, "node_modules": true, ".venv": true,
	"venv": true, "dist": true, "build": true, ".pytest_cache": true,
	".tox": true, "htmlcov": true, "coverage": true, ".mypy_cache": true,
	".eggs": true,
}

// Scraper reads repositories through the GitHub API.
type Scraper struct {
	client  *gh.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithBaseURL points the client at another API root, such as a GitHub
// Enterprise server or a test server.
func WithBaseURL(rawURL string) Option {
	return func(s *Scraper) {
		if !strings.HasSuffix(rawURL, "/") {
			rawURL += "/"
		}
		if u, err := url.Parse(rawURL); err == nil {
			s.client.BaseURL = u
		}
	}
}

// WithRate sets the API request rate in requests per second.
func WithRate(rps float64) Option {
	return func(s *Scraper) {
		s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scraper) {
		s.logger = logger
	}
}

// NewScraper creates a Scraper. An empty token uses anonymous access.
func NewScraper(ctx context.Context, token string, opts ...Option) *Scraper {
	httpClient := &http.Client{Timeout: DefaultTimeout}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, ts)
		httpClient.Timeout = DefaultTimeout
	}

	s := &Scraper{
		client:  gh.NewClient(httpClient),
		limiter: rate.NewLimiter(rate.Limit(DefaultRate), 1),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape returns the README and supported files of the repository at
// repoURL, with repository metadata and the default branch commit.
func (s *Scraper) Scrape(ctx context.Context, repoURL string) (*ragkb.ScrapeResult, error) {
	owner, name, err := ragkb.GitHubRepo(repoURL)
	if err != nil {
		return nil, &ragkb.ScrapeError{URL: repoURL, Err: err}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	repo, _, err := s.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, s.classify(ctx, repoURL, "get repository", err)
	}

	sha, err := s.headCommit(ctx, owner, name, repo.GetDefaultBranch())
	if err != nil {
		return nil, s.classify(ctx, repoURL, "get head commit", err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	tree, _, err := s.client.Git.GetTree(ctx, owner, name, sha, true)
	if err != nil {
		return nil, s.classify(ctx, repoURL, "get tree", err)
	}
	if tree.GetTruncated() {
		s.logger.Warn("repository tree truncated", "repo", owner+"/"+name)
	}

	readmeEntry, entries := selectEntries(tree.Entries)

	var files []ragkb.SourceFile
	var readme string
	if readmeEntry != nil {
		content, err := s.blob(ctx, owner, name, readmeEntry.GetSHA())
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("could not read README", "repo", owner+"/"+name, "err", err)
		} else if strings.TrimSpace(content) != "" {
			readme = content
			files = append(files, ragkb.SourceFile{Path: readmeEntry.GetPath(), Language: "markdown", Content: content})
		}
	}

	for _, entry := range entries {
		content, err := s.blob(ctx, owner, name, entry.GetSHA())
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Debug("skipping unreadable file", "path", entry.GetPath(), "err", err)
			continue
		}
		files = append(files, ragkb.SourceFile{
			Path:     entry.GetPath(),
			Language: languageFor(entry.GetPath()),
			Content:  content,
		})
	}

	content := formatContent(readme, files)
	if strings.TrimSpace(content) == "" {
		return nil, &ragkb.ScrapeError{URL: repoURL, Err: errors.New("no supported files found")}
	}

	res := &ragkb.ScrapeResult{
		URL:         repoURL,
		Content:     content,
		Title:       repo.GetFullName(),
		Description: repo.GetDescription(),
		Domain:      "github.com",
		Repo: &ragkb.RepoInfo{
			Name:       repo.GetFullName(),
			Stars:      repo.GetStargazersCount(),
			Language:   repo.GetLanguage(),
			CommitHash: sha,
			Files:      files,
		},
		Extra: map[string]string{
			"default_branch": repo.GetDefaultBranch(),
			"files_scraped":  fmt.Sprint(len(files)),
		},
	}
	if pushed := repo.GetPushedAt(); !pushed.IsZero() {
		t := pushed.UTC()
		res.PublishedAt = &t
	}
	return res, nil
}

// CommitHash returns the head commit of the repository's default branch.
// It costs two API calls and no file downloads.
func (s *Scraper) CommitHash(ctx context.Context, repoURL string) (string, error) {
	owner, name, err := ragkb.GitHubRepo(repoURL)
	if err != nil {
		return "", err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}
	repo, _, err := s.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return "", s.classify(ctx, repoURL, "get repository", err)
	}
	sha, err := s.headCommit(ctx, owner, name, repo.GetDefaultBranch())
	if err != nil {
		return "", s.classify(ctx, repoURL, "get head commit", err)
	}
	return sha, nil
}

func (s *Scraper) headCommit(ctx context.Context, owner, name, branch string) (string, error) {
	if branch == "" {
		branch = "HEAD"
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}
	sha, _, err := s.client.Repositories.GetCommitSHA1(ctx, owner, name, branch, "")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(sha), nil
}

func (s *Scraper) blob(ctx context.Context, owner, name, sha string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}
	raw, _, err := s.client.Git.GetBlobRaw(ctx, owner, name, sha)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// classify wraps an API error in a ScrapeError. Missing repositories and
// other client errors are permanent; rate limits and server errors are not.
func (s *Scraper) classify(ctx context.Context, repoURL, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	wrapped := fmt.Errorf("%s: %w", op, err)

	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return &ragkb.ScrapeError{URL: repoURL, Temporary: true, Err: wrapped}
	}
	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		code := respErr.Response.StatusCode
		temporary := code == http.StatusTooManyRequests || code >= 500
		return &ragkb.ScrapeError{URL: repoURL, Temporary: temporary, Err: wrapped}
	}
	return ragkb.NewScrapeError(repoURL, wrapped)
}

// selectEntries picks the root README and up to MaxFiles supported blobs
// outside ignored directories, in path order.
func selectEntries(entries []*gh.TreeEntry) (*gh.TreeEntry, []*gh.TreeEntry) {
	var readme *gh.TreeEntry
	var files []*gh.TreeEntry
	for _, e := range entries {
		if e.GetType() != "blob" || e.GetSize() > MaxFileSize {
			continue
		}
		p := e.GetPath()
		if readme == nil && isRootReadme(p) {
			readme = e
			continue
		}
		if inIgnoredDir(p) {
			continue
		}
		if _, ok := supportedExtensions[strings.ToLower(path.Ext(p))]; !ok {
			continue
		}
		files = append(files, e)
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].GetPath() < files[j].GetPath() })
	if len(files) > MaxFiles {
		files = files[:MaxFiles]
	}
	return readme, files
}

func isRootReadme(p string) bool {
	if strings.Contains(p, "/") {
		return false
	}
	base := strings.ToLower(p)
	return base == "readme" || strings.HasPrefix(base, "readme.")
}

func inIgnoredDir(p string) bool {
	dirs := strings.Split(p, "/")
	for _, d := range dirs[:len(dirs)-1] {
		if ignoredDirs[d] || strings.HasSuffix(d, ".egg-info") {
			return true
		}
	}
	return false
}

func languageFor(p string) string {
	return supportedExtensions[strings.ToLower(path.Ext(p))]
}

// formatContent renders the README and files as one markdown document.
// files may begin with the README, which is not repeated.
func formatContent(readme string, files []ragkb.SourceFile) string {
	var parts []string
	if readme != "" {
		parts = append(parts, "# README\n\n"+readme+"\n\n")
		files = files[1:]
	}
	for _, f := range files {
		parts = append(parts, "# File: "+f.Path+"\n\n"+f.Content+"\n\n")
	}
	return strings.Join(parts, "\n")
}
