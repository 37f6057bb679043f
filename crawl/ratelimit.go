package crawl

import (
	"context"
	"strings"
	"sync"

	"github.com/fwojciec/ragkb"
	"golang.org/x/time/rate"
)

var _ ragkb.DomainLimiter = (*DomainLimiter)(nil)

// DomainLimiter spaces out requests to the same host with one token bucket
// per domain. Hosts are keyed case-insensitively with any "www." prefix
// dropped, so www.go.dev and go.dev share a bucket. A per-domain rate in
// Rates replaces the default for that host and its subdomains.
type DomainLimiter struct {
	// Rates overrides the default requests per second for specific hosts.
	// Set before the first Wait.
	Rates map[string]float64

	// Burst is the bucket size for every domain. Zero means 1.
	Burst int

	rps float64

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewDomainLimiter returns a limiter allowing rps requests per second to
// each domain.
func NewDomainLimiter(rps float64) *DomainLimiter {
	return &DomainLimiter{
		rps:     rps,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a request to domain is allowed or ctx is done.
func (d *DomainLimiter) Wait(ctx context.Context, domain string) error {
	return d.bucket(domainKey(domain)).Wait(ctx)
}

// WaitURL waits on the bucket for rawURL's host.
func (d *DomainLimiter) WaitURL(ctx context.Context, rawURL string) error {
	return d.Wait(ctx, ragkb.Domain(rawURL))
}

// Limit reports the requests per second applied to domain.
func (d *DomainLimiter) Limit(domain string) float64 {
	return d.rateFor(domainKey(domain))
}

// Domains returns the number of hosts with a bucket.
func (d *DomainLimiter) Domains() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buckets)
}

func (d *DomainLimiter) bucket(key string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()

	if b, ok := d.buckets[key]; ok {
		return b
	}
	burst := d.Burst
	if burst <= 0 {
		burst = 1
	}
	b := rate.NewLimiter(rate.Limit(d.rateFor(key)), burst)
	d.buckets[key] = b
	return b
}

// rateFor picks the most specific override: "docs.github.com" matches an
// entry for "github.com" unless "docs.github.com" has its own.
func (d *DomainLimiter) rateFor(key string) float64 {
	for host := key; host != ""; {
		if rps, ok := d.Rates[host]; ok {
			return rps
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			break
		}
		host = host[i+1:]
	}
	return d.rps
}

func domainKey(domain string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "www.")
}
