package goquery

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/ragkb"
)

var _ ragkb.MetaReader = (*MetaReader)(nil)

// MetaReader reads title, description, language and publish date from an
// HTML head, preferring OpenGraph values.
type MetaReader struct{}

// NewMetaReader creates a new MetaReader.
func NewMetaReader() *MetaReader {
	return &MetaReader{}
}

// ReadMeta parses html and returns its document metadata. Missing values
// are left empty.
func (m *MetaReader) ReadMeta(html string) (ragkb.PageMeta, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ragkb.PageMeta{}, ragkb.Errorf(ragkb.EINVALID, "parse HTML: %v", err)
	}

	meta := ragkb.PageMeta{
		Title: first(
			content(doc, `meta[property="og:title"]`),
			strings.TrimSpace(doc.Find("title").First().Text()),
		),
		Description: first(
			content(doc, `meta[property="og:description"]`),
			content(doc, `meta[name="description"]`),
		),
		Language: first(
			attr(doc, "html", "lang"),
			content(doc, `meta[http-equiv="content-language"]`),
		),
		Published: first(
			content(doc, `meta[property="article:published_time"]`),
			content(doc, `meta[itemprop="datePublished"]`),
			attr(doc, "time[datetime]", "datetime"),
		),
	}
	if i := strings.IndexAny(meta.Language, "-_"); i > 0 {
		meta.Language = meta.Language[:i]
	}
	meta.Language = strings.ToLower(meta.Language)
	return meta, nil
}

// Attr returns the trimmed value of attribute name on the first element
// matching selector in html.
func Attr(html, selector, name string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return attr(doc, selector, name)
}

func content(doc *goquery.Document, selector string) string {
	return attr(doc, selector, "content")
}

func attr(doc *goquery.Document, selector, name string) string {
	v, _ := doc.Find(selector).First().Attr(name)
	return strings.TrimSpace(v)
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
