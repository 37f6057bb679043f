// Package htmltomarkdown implements ragkb.Converter with html-to-markdown.
package htmltomarkdown

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/strikethrough"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/ragkb"
)

var _ ragkb.Converter = (*Converter)(nil)

var (
	blankRuns     = regexp.MustCompile(`\n{3,}`)
	trailingSpace = regexp.MustCompile(`(?m)[ \t]+$`)
)

// Converter renders extracted page content as GitHub-flavoured Markdown:
// CommonMark plus tables and strikethrough. Chunking splits on the headings
// and fences it produces.
type Converter struct {
	conv *converter.Converter
}

// NewConverter returns a ready Converter. It is safe for concurrent use.
func NewConverter() *Converter {
	return &Converter{conv: converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
			strikethrough.NewStrikethroughPlugin(),
		),
	)}
}

// Convert transforms html into Markdown. Link and image targets are resolved
// against pageURL, so "../api" on /docs/guide/intro becomes an absolute URL
// into /docs/api. Trailing whitespace is dropped and blank line runs
// collapse to one.
func (c *Converter) Convert(html string, pageURL string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", ragkb.Errorf(ragkb.EINVALID, "empty HTML input")
	}

	if base, err := url.Parse(pageURL); err == nil && base.IsAbs() {
		html = absolutize(html, base)
	}

	md, err := c.conv.ConvertString(html)
	if err != nil {
		return "", err
	}
	md = trailingSpace.ReplaceAllString(md, "")
	return strings.TrimSpace(blankRuns.ReplaceAllString(md, "\n\n")), nil
}

// absolutize rewrites relative href and src attributes. On a parse failure
// the input is returned unchanged.
func absolutize(html string, base *url.URL) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	for _, attr := range []string{"href", "src"} {
		doc.Find("[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
			v, _ := s.Attr(attr)
			if v == "" || strings.HasPrefix(v, "#") {
				return
			}
			ref, err := url.Parse(strings.TrimSpace(v))
			if err != nil || ref.IsAbs() {
				return
			}
			s.SetAttr(attr, base.ResolveReference(ref).String())
		})
	}
	out, err := doc.Find("body").Html()
	if err != nil {
		return html
	}
	return out
}
