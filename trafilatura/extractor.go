// Package trafilatura implements ragkb.Extractor with go-trafilatura, the
// primary main-content extractor for website sources.
package trafilatura

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/fwojciec/ragkb"
	"github.com/markusmobius/go-trafilatura"
	"golang.org/x/net/html"
)

var _ ragkb.Extractor = (*Extractor)(nil)

// DefaultMinTextChars is the least main-content text worth indexing. Pages
// below it are reported as empty so the website scraper tries its fallback.
const DefaultMinTextChars = 80

// Extractor finds a page's main content and metadata with trafilatura.
// Links are kept in the content so converted Markdown still points at
// related pages; comment sections are dropped.
type Extractor struct {
	// Fallback enables trafilatura's internal readability and
	// dom-distiller comparison.
	Fallback bool

	// MinTextChars is the threshold below which content is discarded.
	MinTextChars int
}

// NewExtractor returns an Extractor with internal fallback enabled and the
// default content threshold.
func NewExtractor() *Extractor {
	return &Extractor{Fallback: true, MinTextChars: DefaultMinTextChars}
}

// Extract returns the main content of rawHTML. A page with no content worth
// indexing yields an empty ContentHTML and no error; metadata is still
// filled in.
func (e *Extractor) Extract(rawHTML string) (*ragkb.ExtractResult, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return nil, ragkb.Errorf(ragkb.EINVALID, "empty HTML input")
	}

	res, err := trafilatura.Extract(strings.NewReader(rawHTML), trafilatura.Options{
		EnableFallback:  e.Fallback,
		ExcludeComments: true,
		IncludeLinks:    true,
		Deduplicate:     true,
	})
	if err != nil {
		return nil, err
	}

	meta := res.Metadata
	out := &ragkb.ExtractResult{
		Title:       meta.Title,
		Description: meta.Description,
		Language:    meta.Language,
	}
	if !meta.Date.IsZero() {
		d := meta.Date
		out.PublishedAt = &d
	}
	if res.ContentNode == nil || utf8.RuneCountInString(strings.TrimSpace(res.ContentText)) < e.MinTextChars {
		return out, nil
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, res.ContentNode); err != nil {
		return nil, err
	}
	out.ContentHTML = buf.String()
	return out, nil
}
