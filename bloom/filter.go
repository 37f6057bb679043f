// Package bloom remembers which URLs a site crawl has already queued.
package bloom

import (
	"github.com/bits-and-blooms/bloom/v3"
	"github.com/fwojciec/ragkb"
)

// Filter is a probabilistic set of URLs compared in normalized form.
// An unseen answer is always right; a seen answer is wrong at roughly the
// configured false positive rate, which only costs a skipped page.
// Filter is not safe for concurrent use.
type Filter struct {
	f *bloom.BloomFilter
	n uint
}

// NewFilter sizes a filter for expected URLs at the given false positive rate.
func NewFilter(expected uint, fpRate float64) *Filter {
	return &Filter{f: bloom.NewWithEstimates(expected, fpRate)}
}

// Visit records url and reports whether it was new.
func (f *Filter) Visit(url string) bool {
	if f.f.TestOrAddString(key(url)) {
		return false
	}
	f.n++
	return true
}

// Seen reports whether url was visited before.
func (f *Filter) Seen(url string) bool {
	return f.f.TestString(key(url))
}

// Len returns how many URLs Visit accepted as new.
func (f *Filter) Len() uint {
	return f.n
}

func key(url string) string {
	if normalized, err := ragkb.NormalizeURL(url); err == nil {
		return normalized
	}
	return url
}
