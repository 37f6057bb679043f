package ragkb

import "context"

// LinkPriority orders links in a crawl frontier (higher = visited sooner).
type LinkPriority int

// Link priority levels.
const (
	PriorityFallback   LinkPriority = 10
	PriorityFooter     LinkPriority = 20
	PriorityContent    LinkPriority = 50
	PriorityNavigation LinkPriority = 100
	PriorityTOC        LinkPriority = 110
)

// DiscoveredLink is a URL found on a page while crawling a site.
type DiscoveredLink struct {
	URL      string
	Priority LinkPriority
	Text     string
	Source   string // "nav", "toc", "content", "footer"

	// Depth counts link hops from the crawl's start page, which is 0.
	Depth int
}

// LinkExtractor extracts same-host links from HTML.
type LinkExtractor interface {
	// ExtractLinks parses HTML and returns links resolved against baseURL.
	ExtractLinks(html string, baseURL string) ([]DiscoveredLink, error)
}

// URLFrontier is the queue of pages a site crawl has yet to visit. Each URL
// is admitted at most once.
type URLFrontier interface {
	// Push queues a link. It returns false for a URL seen before or when
	// the frontier is full.
	Push(link DiscoveredLink) bool

	// Pop returns the next link by priority. Returns false if empty.
	Pop() (DiscoveredLink, bool)

	// Len returns the number of queued links.
	Len() int

	// Seen returns true if the URL has been queued before.
	Seen(url string) bool
}

// DomainLimiter spaces requests to the same host. Domains are host names
// as returned by Domain.
type DomainLimiter interface {
	// Wait blocks until a request to the domain is allowed or ctx is done.
	Wait(ctx context.Context, domain string) error
}
