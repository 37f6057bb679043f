// Package goquery implements HTML inspection with goquery: same-site link
// extraction for website crawls and head metadata for scraped pages.
package goquery

import (
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/ragkb"
)

var _ ragkb.LinkExtractor = (*LinkExtractor)(nil)

// linkRegion ties a CSS selector to the priority of the links inside it.
type linkRegion struct {
	selector string
	priority ragkb.LinkPriority
	source   string
}

// regions are scanned in order; a URL keeps the highest priority it was
// seen with.
var regions = []linkRegion{
	{".toc a[href], .table-of-contents a[href], .sidebar a[href], aside a[href]", ragkb.PriorityTOC, "toc"},
	{`nav a[href], [role="navigation"] a[href], .menu a[href], .navbar a[href]`, ragkb.PriorityNavigation, "nav"},
	{"main a[href], article a[href], .content a[href]", ragkb.PriorityContent, "content"},
	{"footer a[href], .footer a[href]", ragkb.PriorityFooter, "footer"},
	{"a[href]", ragkb.PriorityFallback, "fallback"},
}

// assetExts are link targets that never hold page content.
var assetExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".webp": true, ".ico": true,
	".css": true, ".js": true, ".pdf": true, ".zip": true, ".gz": true, ".tar": true,
	".mp4": true, ".mp3": true, ".woff": true, ".woff2": true, ".xml": true,
}

// LinkExtractor finds crawlable same-host links in a page.
type LinkExtractor struct{}

// NewLinkExtractor creates a new LinkExtractor.
func NewLinkExtractor() *LinkExtractor {
	return &LinkExtractor{}
}

// ExtractLinks returns same-host page links from html resolved against
// baseURL, grouped by region and in document order within a region. Fragments are dropped and
// self links, non-HTTP schemes and static assets are skipped.
func (e *LinkExtractor) ExtractLinks(html string, baseURL string) ([]ragkb.DiscoveredLink, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil, ragkb.Errorf(ragkb.EINVALID, "invalid base URL %q", baseURL)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, ragkb.Errorf(ragkb.EINVALID, "parse HTML: %v", err)
	}

	self := *base
	self.Fragment = ""
	seen := make(map[string]int)
	var links []ragkb.DiscoveredLink

	for _, r := range regions {
		doc.Find(r.selector).Each(func(_ int, sel *goquery.Selection) {
			href, _ := sel.Attr("href")
			resolved, ok := resolve(base, href)
			if !ok || resolved == self.String() {
				return
			}
			if idx, dup := seen[resolved]; dup {
				if r.priority > links[idx].Priority {
					links[idx].Priority = r.priority
					links[idx].Source = r.source
				}
				return
			}
			seen[resolved] = len(links)
			links = append(links, ragkb.DiscoveredLink{
				URL:      resolved,
				Priority: r.priority,
				Text:     strings.Join(strings.Fields(sel.Text()), " "),
				Source:   r.source,
			})
		})
	}
	return links, nil
}

// resolve turns href into an absolute same-host http(s) URL without a
// fragment.
func resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host != base.Host {
		return "", false
	}
	if assetExts[strings.ToLower(path.Ext(u.Path))] {
		return "", false
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), true
}
