package bloom_test

import (
	"fmt"
	"testing"

	"github.com/fwojciec/ragkb/bloom"
	"github.com/stretchr/testify/assert"
)

func TestFilter_Visit(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)

	assert.True(t, f.Visit("https://go.dev/doc/effective_go"))
	assert.False(t, f.Visit("https://go.dev/doc/effective_go"))
	assert.True(t, f.Visit("https://go.dev/doc/faq"))
	assert.Equal(t, uint(2), f.Len())
}

func TestFilter_ComparesNormalizedURLs(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)
	f.Visit("https://GO.dev/doc/")

	assert.True(t, f.Seen("https://go.dev/doc"))
	assert.True(t, f.Seen("https://go.dev/doc#install"))
	assert.False(t, f.Visit("https://go.dev/doc/#top"))
	assert.Equal(t, uint(1), f.Len())
}

func TestFilter_SeenDoesNotRecord(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)

	assert.False(t, f.Seen("https://pkg.go.dev/net/http"))
	assert.True(t, f.Visit("https://pkg.go.dev/net/http"))
}

func TestFilter_NoFalseNegatives(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(500, 0.01)
	for i := range 500 {
		f.Visit(fmt.Sprintf("https://docs.acme.dev/page/%d", i))
	}

	for i := range 500 {
		assert.True(t, f.Seen(fmt.Sprintf("https://docs.acme.dev/page/%d", i)))
	}
}
