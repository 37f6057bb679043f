package http

import (
	"bufio"
	"cmp"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/fwojciec/ragkb"
)

var _ ragkb.SitemapService = (*SitemapService)(nil)

// maxSitemaps bounds how many sitemap documents one discovery reads,
// including those reached through sitemap indexes.
const maxSitemaps = 50

// SitemapService discovers page URLs from robots.txt and sitemap XML.
type SitemapService struct {
	client *http.Client
}

// NewSitemapService creates a SitemapService. A nil client uses
// http.DefaultClient.
func NewSitemapService(client *http.Client) *SitemapService {
	if client == nil {
		client = http.DefaultClient
	}
	return &SitemapService{client: client}
}

// DiscoverURLs returns the sitemap URLs of baseURL's host that fall under
// baseURL's path and pass filter. A site without sitemaps yields an empty
// slice and no error.
func (s *SitemapService) DiscoverURLs(ctx context.Context, baseURL string, filter *ragkb.URLFilter) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil, ragkb.Errorf(ragkb.EINVALID, "invalid base URL %q", baseURL)
	}
	prefix := strings.TrimSuffix(base.Path, "/")
	root := &url.URL{Scheme: base.Scheme, Host: base.Host}

	locations, err := s.sitemapLocations(ctx, root)
	if err != nil {
		return nil, err
	}

	w := &sitemapWalk{svc: s, visited: make(map[string]bool)}
	for _, loc := range locations {
		if err := w.visit(ctx, loc); err != nil {
			return nil, err
		}
	}

	rank(w.pages)

	urls := []string{}
	seen := make(map[string]bool, len(w.pages))
	for _, page := range w.pages {
		if seen[page.loc] || !UnderPath(page.loc, prefix) || !filter.Match(page.loc) {
			continue
		}
		seen[page.loc] = true
		urls = append(urls, page.loc)
	}
	return urls, nil
}

// defaultPriority is the sitemap protocol's value for entries without one.
const defaultPriority = 0.5

// sitemapEntry is one <url> element.
type sitemapEntry struct {
	loc      string
	lastmod  time.Time
	priority float64
}

// rank orders entries by declared priority, then most recently modified, so
// callers that keep only the first N pages keep the ones the site cares
// about. Entries that tie keep document order.
func rank(entries []sitemapEntry) {
	slices.SortStableFunc(entries, func(a, b sitemapEntry) int {
		if c := cmp.Compare(b.priority, a.priority); c != 0 {
			return c
		}
		return b.lastmod.Compare(a.lastmod)
	})
}

var lastmodLayouts = []string{time.RFC3339, "2006-01-02T15:04Z07:00", "2006-01-02"}

func parseLastmod(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range lastmodLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// UnderPath reports whether rawURL's path equals prefix or lies below it
// on a segment boundary. An empty prefix matches everything.
func UnderPath(rawURL, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := strings.TrimSuffix(u.Path, "/")
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// sitemapLocations reads Sitemap: directives from robots.txt, falling back
// to /sitemap.xml when robots.txt names none.
func (s *SitemapService) sitemapLocations(ctx context.Context, root *url.URL) ([]string, error) {
	robots := root.ResolveReference(&url.URL{Path: "/robots.txt"}).String()
	if locs, err := s.robotsSitemaps(ctx, robots); err == nil && len(locs) > 0 {
		return locs, nil
	} else if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	fallback := root.ResolveReference(&url.URL{Path: "/sitemap.xml"}).String()
	ok, err := s.exists(ctx, fallback)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil || !ok {
		return nil, nil
	}
	return []string{fallback}, nil
}

func (s *SitemapService) robotsSitemaps(ctx context.Context, robotsURL string) ([]string, error) {
	resp, err := get(ctx, s.client, robotsURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var locs []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		key, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "sitemap") {
			continue
		}
		if loc := strings.TrimSpace(value); loc != "" {
			locs = append(locs, loc)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read robots.txt: %w", err)
	}
	return locs, nil
}

func (s *SitemapService) exists(ctx context.Context, target string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", UserAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// sitemapWalk follows sitemap indexes depth-first, visiting each document once.
type sitemapWalk struct {
	svc     *SitemapService
	visited map[string]bool
	pages   []sitemapEntry
}

func (w *sitemapWalk) visit(ctx context.Context, loc string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.visited[loc] || len(w.visited) >= maxSitemaps {
		return nil
	}
	w.visited[loc] = true

	doc, err := w.svc.document(ctx, loc)
	if err != nil {
		return err
	}
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("empty sitemap %s", loc)
	}

	if root.Tag == "sitemapindex" {
		for _, child := range entries(root, "sitemap") {
			if err := w.visit(ctx, child.loc); err != nil {
				return err
			}
		}
		return nil
	}
	w.pages = append(w.pages, entries(root, "url")...)
	return nil
}

// document fetches and parses one sitemap. Gzipped sitemaps are inflated.
func (s *SitemapService) document(ctx context.Context, loc string) (*etree.Document, error) {
	resp, err := get(ctx, s.client, loc)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var r io.Reader = io.LimitReader(resp.Body, DefaultMaxBodyBytes)
	if strings.HasSuffix(strings.ToLower(loc), ".gz") || resp.Header.Get("Content-Type") == "application/x-gzip" {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("inflate sitemap %s: %w", loc, err)
		}
		defer gz.Close()
		r = gz
	}

	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("parse sitemap %s: %w", loc, err)
	}
	return doc, nil
}

// locs returns the trimmed <loc> text of every tag child of root.
func entries(root *etree.Element, tag string) []sitemapEntry {
	var out []sitemapEntry
	for _, el := range root.SelectElements(tag) {
		loc := el.SelectElement("loc")
		if loc == nil {
			continue
		}
		v := strings.TrimSpace(loc.Text())
		if v == "" {
			continue
		}
		e := sitemapEntry{loc: v, priority: defaultPriority}
		if lm := el.SelectElement("lastmod"); lm != nil {
			e.lastmod = parseLastmod(lm.Text())
		}
		if pr := el.SelectElement("priority"); pr != nil {
			if p, err := strconv.ParseFloat(strings.TrimSpace(pr.Text()), 64); err == nil && p >= 0 && p <= 1 {
				e.priority = p
			}
		}
		out = append(out, e)
	}
	return out
}
