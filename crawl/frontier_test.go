package crawl_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/fwojciec/ragkb"
	"github.com/fwojciec/ragkb/crawl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(f *crawl.Frontier) []ragkb.DiscoveredLink {
	var out []ragkb.DiscoveredLink
	for {
		link, ok := f.Pop()
		if !ok {
			return out
		}
		out = append(out, link)
	}
}

func TestFrontier_Admission(t *testing.T) {
	t.Parallel()

	t.Run("a URL is admitted once", func(t *testing.T) {
		t.Parallel()

		f := crawl.NewFrontier(100, 0.01)
		link := ragkb.DiscoveredLink{URL: "https://go.dev/doc/tutorial/", Priority: ragkb.PriorityNavigation}

		assert.True(t, f.Push(link))
		assert.False(t, f.Push(link))
		assert.Equal(t, 1, f.Len())
	})

	t.Run("normalized spellings collide", func(t *testing.T) {
		t.Parallel()

		f := crawl.NewFrontier(100, 0.01)
		require.True(t, f.Push(ragkb.DiscoveredLink{URL: "https://pkg.go.dev/search/?q=http&m=package"}))

		for _, u := range []string{
			"https://pkg.go.dev/search?m=package&q=http",
			"https://PKG.go.dev/search/?q=http&m=package#results",
		} {
			assert.False(t, f.Push(ragkb.DiscoveredLink{URL: u}), u)
		}
	})

	t.Run("popped URLs stay seen", func(t *testing.T) {
		t.Parallel()

		f := crawl.NewFrontier(100, 0.01)
		assert.False(t, f.Seen("https://go.dev/blog"))

		f.Push(ragkb.DiscoveredLink{URL: "https://go.dev/blog"})
		f.Pop()

		assert.True(t, f.Seen("https://go.dev/blog/"))
		assert.False(t, f.Push(ragkb.DiscoveredLink{URL: "https://go.dev/blog"}))
	})

	t.Run("cap refuses new URLs and counts them", func(t *testing.T) {
		t.Parallel()

		f := crawl.NewFrontier(100, 0.01)
		f.Cap = 2

		assert.True(t, f.Push(ragkb.DiscoveredLink{URL: "https://go.dev/a"}))
		assert.True(t, f.Push(ragkb.DiscoveredLink{URL: "https://go.dev/b"}))
		f.Pop()
		assert.False(t, f.Push(ragkb.DiscoveredLink{URL: "https://go.dev/c"}), "cap counts admissions, not queue length")
		assert.False(t, f.Push(ragkb.DiscoveredLink{URL: "https://go.dev/a"}))

		assert.Equal(t, 1, f.Dropped(), "duplicates are not drops")
		assert.False(t, f.Seen("https://go.dev/c"))
	})
}

func TestFrontier_Order(t *testing.T) {
	t.Parallel()

	t.Run("structural links pop before content", func(t *testing.T) {
		t.Parallel()

		f := crawl.NewFrontier(100, 0.01)
		for _, l := range []ragkb.DiscoveredLink{
			{URL: "https://go.dev/privacy", Priority: ragkb.PriorityFooter},
			{URL: "https://go.dev/doc/", Priority: ragkb.PriorityNavigation},
			{URL: "https://go.dev/doc/faq", Priority: ragkb.PriorityContent},
			{URL: "https://go.dev/ref/spec", Priority: ragkb.PriorityTOC},
			{URL: "https://go.dev/x", Priority: ragkb.PriorityFallback},
		} {
			f.Push(l)
		}

		var got []string
		for _, l := range drain(f) {
			got = append(got, l.URL)
		}
		assert.Equal(t, []string{
			"https://go.dev/ref/spec",
			"https://go.dev/doc/",
			"https://go.dev/doc/faq",
			"https://go.dev/privacy",
			"https://go.dev/x",
		}, got)
	})

	t.Run("ties pop in discovery order with depth intact", func(t *testing.T) {
		t.Parallel()

		f := crawl.NewFrontier(100, 0.01)
		for i := range 4 {
			f.Push(ragkb.DiscoveredLink{URL: fmt.Sprintf("https://go.dev/doc/%d", i), Depth: i})
		}

		links := drain(f)
		require.Len(t, links, 4)
		for i, l := range links {
			assert.Equal(t, fmt.Sprintf("https://go.dev/doc/%d", i), l.URL)
			assert.Equal(t, i, l.Depth)
		}
	})

	t.Run("pop on empty", func(t *testing.T) {
		t.Parallel()

		_, ok := crawl.NewFrontier(10, 0.01).Pop()
		assert.False(t, ok)
	})
}

func TestFrontier_Concurrent(t *testing.T) {
	t.Parallel()

	f := crawl.NewFrontier(5000, 0.01)

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := range 50 {
				f.Push(ragkb.DiscoveredLink{URL: fmt.Sprintf("https://go.dev/w%d/p%d", w, i)})
			}
		}()
		go func() {
			defer wg.Done()
			for range 50 {
				f.Pop()
				_ = f.Len()
			}
		}()
	}
	wg.Wait()

	for w := range 8 {
		for i := range 50 {
			assert.True(t, f.Seen(fmt.Sprintf("https://go.dev/w%d/p%d", w, i)))
		}
	}
}
