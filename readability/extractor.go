// Package readability implements ragkb.Extractor with go-readability. The
// website scraper tries it when trafilatura finds no content.
package readability

import (
	"strings"
	"unicode/utf8"

	"github.com/fwojciec/ragkb"
	"github.com/go-shiori/go-readability"
)

var _ ragkb.Extractor = (*Extractor)(nil)

// Extractor finds a page's article with Mozilla's readability rules.
type Extractor struct {
	// MinTextChars discards articles with less text than this.
	MinTextChars int
}

// NewExtractor returns an Extractor that keeps any non-empty article.
func NewExtractor() *Extractor {
	return &Extractor{MinTextChars: 1}
}

// Extract returns the article content of rawHTML. The excerpt doubles as the
// description when the page declares none.
func (e *Extractor) Extract(rawHTML string) (*ragkb.ExtractResult, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return nil, ragkb.Errorf(ragkb.EINVALID, "empty HTML input")
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), nil)
	if err != nil {
		return nil, err
	}

	out := &ragkb.ExtractResult{
		Title:       strings.TrimSpace(article.Title),
		Description: strings.TrimSpace(article.Excerpt),
		Language:    article.Language,
		PublishedAt: article.PublishedTime,
	}
	if utf8.RuneCountInString(strings.TrimSpace(article.TextContent)) >= e.MinTextChars {
		out.ContentHTML = article.Content
	}
	return out, nil
}
