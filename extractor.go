package ragkb

import "time"

// ExtractResult holds the main content extracted from an HTML page.
type ExtractResult struct {
	Title       string
	Description string
	Language    string
	PublishedAt *time.Time

	// ContentHTML is the main content with boilerplate removed.
	ContentHTML string
}

// Extractor strips navigation, footers and other boilerplate from HTML.
type Extractor interface {
	Extract(html string) (*ExtractResult, error)
}

// PageMeta is document-level metadata read from an HTML head.
type PageMeta struct {
	Title       string
	Description string
	Language    string
	Published   string
}

// MetaReader reads document-level metadata from HTML.
type MetaReader interface {
	ReadMeta(html string) (PageMeta, error)
}
