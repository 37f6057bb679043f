package crawl

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/ragkb"
)

// DefaultBrowserGain is how many times more words a rendered page must
// carry before the walk switches to the browser fetcher.
const DefaultBrowserGain = 1.5

// NeedsBrowser extracts the main content of a plain and a rendered fetch of
// the same page and reports whether rendering adds enough words to be worth
// the browser's cost. A page whose extraction fails either way is assumed to
// need rendering.
func NeedsBrowser(plainHTML, renderedHTML string, ex ragkb.Extractor, gain float64) bool {
	plain, err := contentWords(plainHTML, ex)
	if err != nil {
		return true
	}
	rendered, err := contentWords(renderedHTML, ex)
	if err != nil {
		return true
	}
	if plain == 0 {
		return rendered > 0
	}
	return float64(rendered) > float64(plain)*gain
}

func contentWords(html string, ex ragkb.Extractor) (int, error) {
	res, err := ex.Extract(html)
	if err != nil {
		return 0, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.ContentHTML))
	if err != nil {
		return 0, err
	}
	return len(strings.Fields(doc.Text())), nil
}
