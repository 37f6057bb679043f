package crawl

import (
	"container/heap"
	"sync"

	"github.com/fwojciec/ragkb"
	"github.com/fwojciec/ragkb/bloom"
)

// Compile-time interface verification.
var _ ragkb.URLFrontier = (*Frontier)(nil)

// Frontier holds the pages a site walk has found but not yet fetched.
// URLs are remembered in normalized form, so spellings that differ only by
// fragment, trailing slash or query order are admitted once. Navigation and
// table-of-contents links pop before content and footer links; ties pop in
// the order they were found. Safe for concurrent use.
type Frontier struct {
	// Cap bounds how many links are ever admitted. Zero means no bound.
	Cap int

	mu       sync.Mutex
	seen     *bloom.Filter
	queue    *linkHeap
	admitted int
	dropped  int
}

// NewFrontier returns a frontier whose dedup filter is sized for n URLs at
// the given false positive rate.
func NewFrontier(n uint, fpRate float64) *Frontier {
	h := &linkHeap{}
	heap.Init(h)
	return &Frontier{
		seen:  bloom.NewFilter(n, fpRate),
		queue: h,
	}
}

// Push queues link unless its URL was admitted before or Cap is reached.
func (f *Frontier) Push(link ragkb.DiscoveredLink) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.seen.Seen(link.URL) {
		return false
	}
	if f.Cap > 0 && f.admitted >= f.Cap {
		f.dropped++
		return false
	}
	f.seen.Visit(link.URL)
	f.admitted++
	heap.Push(f.queue, queuedLink{link: link, seq: uint64(f.admitted)})
	return true
}

// Dropped returns how many new URLs were refused because Cap was reached.
func (f *Frontier) Dropped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// Pop returns the next link by priority.
// The bool result is false if the frontier is empty.
func (f *Frontier) Pop() (ragkb.DiscoveredLink, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.queue.Len() == 0 {
		return ragkb.DiscoveredLink{}, false
	}
	q, _ := heap.Pop(f.queue).(queuedLink)
	return q.link, true
}

// Len returns the number of URLs in the queue.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Len()
}

// Seen returns true if the URL has been queued before.
func (f *Frontier) Seen(rawURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen.Seen(rawURL)
}

type queuedLink struct {
	link ragkb.DiscoveredLink
	seq  uint64
}

// linkHeap is a max-heap on priority, FIFO within a priority.
type linkHeap []queuedLink

func (h linkHeap) Len() int { return len(h) }

func (h linkHeap) Less(i, j int) bool {
	if h[i].link.Priority != h[j].link.Priority {
		return h[i].link.Priority > h[j].link.Priority
	}
	return h[i].seq < h[j].seq
}

func (h linkHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *linkHeap) Push(x any) {
	q, _ := x.(queuedLink)
	*h = append(*h, q)
}

func (h *linkHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}
