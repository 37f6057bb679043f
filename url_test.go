package ragkb_test

import (
	"testing"

	"github.com/fwojciec/ragkb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"drops fragment", "https://example.com/docs#intro", "https://example.com/docs"},
		{"strips trailing slash", "https://example.com/docs/", "https://example.com/docs"},
		{"lowercases scheme and host", "HTTPS://Example.COM/Docs", "https://example.com/Docs"},
		{"keeps only v on watch urls", "https://www.youtube.com/watch?v=abc123&t=42&list=PL1", "https://www.youtube.com/watch?v=abc123"},
		{"drops query on channel urls", "https://www.youtube.com/@fireship?sub=1", "https://www.youtube.com/@fireship"},
		{"sorts query parameters", "https://example.com/search?b=2&a=1", "https://example.com/search?a=1&b=2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ragkb.NormalizeURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("rejects relative urls", func(t *testing.T) {
		t.Parallel()

		_, err := ragkb.NormalizeURL("/docs/intro")
		require.Error(t, err)
		assert.Equal(t, ragkb.EINVALID, ragkb.ErrorCode(err))
	})
}

func TestHashURL(t *testing.T) {
	t.Parallel()

	t.Run("equivalent urls share a hash", func(t *testing.T) {
		t.Parallel()

		a := ragkb.HashURL("https://Example.com/docs/?b=2&a=1#top")
		b := ragkb.HashURL("https://example.com/docs?a=1&b=2")
		assert.Equal(t, a, b)
		assert.Len(t, a, 16)
	})

	t.Run("distinct urls differ", func(t *testing.T) {
		t.Parallel()

		assert.NotEqual(t, ragkb.HashURL("https://example.com/a"), ragkb.HashURL("https://example.com/b"))
	})
}

func TestExtractURLs(t *testing.T) {
	t.Parallel()

	text := `Check https://fastapi.tiangolo.com/tutorial/ and (https://github.com/tiangolo/fastapi). Also "http://x.io/a".`
	got := ragkb.ExtractURLs(text)

	assert.Equal(t, []string{
		"https://fastapi.tiangolo.com/tutorial/",
		"https://github.com/tiangolo/fastapi",
		"http://x.io/a",
	}, got)
}

func TestIsValidURL(t *testing.T) {
	t.Parallel()

	assert.True(t, ragkb.IsValidURL("https://example.com"))
	assert.True(t, ragkb.IsValidURL("http://example.com/a"))
	assert.False(t, ragkb.IsValidURL("ftp://example.com"))
	assert.False(t, ragkb.IsValidURL("example.com"))
	assert.False(t, ragkb.IsValidURL(""))
}

func TestYouTubeVideoID(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ": "dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ":                "dQw4w9WgXcQ",
		"https://www.youtube.com/shorts/abcDEF":       "abcDEF",
	} {
		id, ok := ragkb.YouTubeVideoID(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, id, in)
	}

	_, ok := ragkb.YouTubeVideoID("https://www.youtube.com/@channel")
	assert.False(t, ok)
}

func TestGitHubRepo(t *testing.T) {
	t.Parallel()

	owner, repo, err := ragkb.GitHubRepo("https://github.com/tiangolo/fastapi/tree/master/docs")
	require.NoError(t, err)
	assert.Equal(t, "tiangolo", owner)
	assert.Equal(t, "fastapi", repo)

	_, _, err = ragkb.GitHubRepo("https://github.com/tiangolo")
	assert.Equal(t, ragkb.EINVALID, ragkb.ErrorCode(err))
}

func TestDomain(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "docs.python.org", ragkb.Domain("https://www.docs.python.org/3/"))
	assert.Equal(t, "github.com", ragkb.Domain("https://github.com/a/b"))
}
