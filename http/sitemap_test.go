package http_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/fwojciec/ragkb"
	rkbhttp "github.com/fwojciec/ragkb/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const urlset = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">%s</urlset>`

func pages(paths ...string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString("<url><loc>{{BASE}}" + p + "</loc></url>")
	}
	return strings.Replace(urlset, "%s", b.String(), 1)
}

func TestSitemapService_DiscoverURLs(t *testing.T) {
	t.Parallel()

	t.Run("reads sitemaps named in robots.txt", func(t *testing.T) {
		t.Parallel()

		srv := newSiteServer(t, map[string]string{
			"/robots.txt":  "User-agent: *\nDisallow: /private/\nsitemap: {{BASE}}/a.xml\nSitemap: {{BASE}}/b.xml\n",
			"/a.xml":       pages("/docs/intro"),
			"/b.xml":       pages("/docs/guide", "/docs/intro"),
			"/sitemap.xml": pages("/ignored"),
		})

		urls, err := rkbhttp.NewSitemapService(srv.Client()).DiscoverURLs(context.Background(), srv.URL, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{srv.URL + "/docs/intro", srv.URL + "/docs/guide"}, urls)
	})

	t.Run("ranks by priority then recency", func(t *testing.T) {
		t.Parallel()

		srv := newSiteServer(t, map[string]string{
			"/sitemap.xml": strings.Replace(urlset, "%s", `
<url><loc>{{BASE}}/old</loc><lastmod>2019-03-01</lastmod></url>
<url><loc>{{BASE}}/plain</loc></url>
<url><loc>{{BASE}}/new</loc><lastmod>2024-06-30T08:00:00+00:00</lastmod></url>
<url><loc>{{BASE}}/home</loc><priority>1.0</priority></url>
<url><loc>{{BASE}}/archive</loc><priority>0.1</priority><lastmod>2025-01-01</lastmod></url>
<url><loc>{{BASE}}/bogus</loc><priority>7</priority></url>`, 1),
		})

		urls, err := rkbhttp.NewSitemapService(srv.Client()).DiscoverURLs(context.Background(), srv.URL, nil)

		require.NoError(t, err)
		assert.Equal(t, []string{
			srv.URL + "/home",
			srv.URL + "/new",
			srv.URL + "/old",
			srv.URL + "/plain",
			srv.URL + "/bogus",
			srv.URL + "/archive",
		}, urls)
	})

	t.Run("falls back to /sitemap.xml", func(t *testing.T) {
		t.Parallel()

		srv := newSiteServer(t, map[string]string{"/sitemap.xml": pages("/page1")})

		urls, err := rkbhttp.NewSitemapService(srv.Client()).DiscoverURLs(context.Background(), srv.URL, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{srv.URL + "/page1"}, urls)
	})

	t.Run("follows sitemap indexes", func(t *testing.T) {
		t.Parallel()

		srv := newSiteServer(t, map[string]string{
			"/sitemap.xml": `<sitemapindex><sitemap><loc>{{BASE}}/docs.xml</loc></sitemap>` +
				`<sitemap><loc>{{BASE}}/sitemap.xml</loc></sitemap></sitemapindex>`,
			"/docs.xml": pages("/docs/intro", "/api/reference"),
		})

		urls, err := rkbhttp.NewSitemapService(srv.Client()).DiscoverURLs(context.Background(), srv.URL, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{srv.URL + "/docs/intro", srv.URL + "/api/reference"}, urls)
	})

	t.Run("scopes to the base path on segment boundaries", func(t *testing.T) {
		t.Parallel()

		srv := newSiteServer(t, map[string]string{
			"/sitemap.xml": pages("/docs", "/docs/intro", "/documentation", "/blog"),
		})

		urls, err := rkbhttp.NewSitemapService(srv.Client()).DiscoverURLs(context.Background(), srv.URL+"/docs/", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{srv.URL + "/docs", srv.URL + "/docs/intro"}, urls)
	})

	t.Run("applies include and exclude filters", func(t *testing.T) {
		t.Parallel()

		srv := newSiteServer(t, map[string]string{
			"/sitemap.xml": pages("/docs/intro", "/docs/internal/debug", "/blog/post"),
		})
		filter := &ragkb.URLFilter{
			Include: []*regexp.Regexp{regexp.MustCompile(`/docs/`)},
			Exclude: []*regexp.Regexp{regexp.MustCompile(`/internal/`)},
		}

		urls, err := rkbhttp.NewSitemapService(srv.Client()).DiscoverURLs(context.Background(), srv.URL, filter)
		require.NoError(t, err)
		assert.Equal(t, []string{srv.URL + "/docs/intro"}, urls)
	})

	t.Run("inflates gzipped sitemaps", func(t *testing.T) {
		t.Parallel()

		var srv *httptest.Server
		srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/robots.txt":
				_, _ = w.Write([]byte("Sitemap: " + srv.URL + "/sitemap.xml.gz\n"))
			case "/sitemap.xml.gz":
				var buf bytes.Buffer
				gz := gzip.NewWriter(&buf)
				_, _ = gz.Write([]byte(strings.ReplaceAll(pages("/zipped"), "{{BASE}}", srv.URL)))
				_ = gz.Close()
				_, _ = w.Write(buf.Bytes())
			default:
				http.NotFound(w, r)
			}
		}))
		t.Cleanup(srv.Close)

		urls, err := rkbhttp.NewSitemapService(srv.Client()).DiscoverURLs(context.Background(), srv.URL, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{srv.URL + "/zipped"}, urls)
	})

	t.Run("returns empty slice without sitemaps", func(t *testing.T) {
		t.Parallel()

		srv := newSiteServer(t, map[string]string{})

		urls, err := rkbhttp.NewSitemapService(srv.Client()).DiscoverURLs(context.Background(), srv.URL, nil)
		require.NoError(t, err)
		assert.NotNil(t, urls)
		assert.Empty(t, urls)
	})

	t.Run("honors cancellation", func(t *testing.T) {
		t.Parallel()

		srv := newSiteServer(t, map[string]string{"/sitemap.xml": pages("/page1")})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := rkbhttp.NewSitemapService(srv.Client()).DiscoverURLs(ctx, srv.URL, nil)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("rejects relative base URL", func(t *testing.T) {
		t.Parallel()

		_, err := rkbhttp.NewSitemapService(nil).DiscoverURLs(context.Background(), "/docs", nil)
		assert.Equal(t, ragkb.EINVALID, ragkb.ErrorCode(err))
	})
}

func TestUnderPath(t *testing.T) {
	t.Parallel()

	assert.True(t, rkbhttp.UnderPath("https://x.dev/docs/a", "/docs/"))
	assert.True(t, rkbhttp.UnderPath("https://x.dev/docs", "/docs"))
	assert.True(t, rkbhttp.UnderPath("https://x.dev/anything", ""))
	assert.False(t, rkbhttp.UnderPath("https://x.dev/documentation", "/docs"))
}

// newSiteServer serves path->body, replacing {{BASE}} with the server URL.
func newSiteServer(t *testing.T, content map[string]string) *httptest.Server {
	t.Helper()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := content[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(strings.ReplaceAll(body, "{{BASE}}", srv.URL)))
	}))
	t.Cleanup(srv.Close)
	return srv
}
