package main_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fwojciec/ragkb"
	main "github.com/fwojciec/ragkb/cmd/ragkb"
	"github.com/fwojciec/ragkb/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMain returns a Main backed by a temporary database and stub models.
func newMain(t *testing.T) *main.Main {
	t.Helper()

	dir := t.TempDir()
	cfg := ragkb.DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "kb.db")

	return &main.Main{
		ConfigPath: filepath.Join(dir, "config.toml"),
		Config:     &cfg,
		Embedder: &mock.Embedder{
			EmbedSingleFn: func(context.Context, string) ([]float32, error) {
				return []float32{1, 0, 0}, nil
			},
			DimensionFn: func() int { return 3 },
		},
		Generator: &mock.Generator{
			GenerateFn: func(context.Context, ragkb.GenerateRequest) (string, error) {
				return "", ragkb.Errorf(ragkb.EUNAVAILABLE, "no model in tests")
			},
		},
	}
}

func run(t *testing.T, m *main.Main, args ...string) (string, string, error) {
	t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	err := m.Run(context.Background(), args, stdout, stderr)
	return stdout.String(), stderr.String(), err
}

func TestMain_NoArgs(t *testing.T) {
	t.Parallel()

	stdout, stderr, err := run(t, newMain(t))

	require.Error(t, err)
	assert.Contains(t, stdout, "Usage:")
	assert.Contains(t, stderr, "error: no command specified")
}

func TestMain_Help(t *testing.T) {
	t.Parallel()

	stdout, _, err := run(t, newMain(t), "--help")

	require.NoError(t, err)
	for _, cmd := range []string{"add", "process", "search", "stats", "refresh", "schedule", "clear", "reset", "serve", "config"} {
		assert.Contains(t, stdout, cmd, "help should mention %s", cmd)
	}
}

func TestMain_AddAndStats(t *testing.T) {
	t.Parallel()

	m := newMain(t)

	stdout, _, err := run(t, m, "add", "https://go.dev/doc/", "https://github.com/golang/go")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Input type:  urls")
	assert.Contains(t, stdout, "Added:       2")

	stdout, _, err = run(t, m, "add", "https://go.dev/doc")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Added:       0")
	assert.Contains(t, stdout, "Skipped:     1")

	stdout, _, err = run(t, m, "stats")
	require.NoError(t, err)
	assert.Contains(t, stdout, "total    2")
	assert.Contains(t, stdout, "pending  2")
	assert.Contains(t, stdout, "website")
	assert.Contains(t, stdout, "github")
	assert.Contains(t, stdout, "chunks     0")
}

func TestMain_AddPreview(t *testing.T) {
	t.Parallel()

	m := newMain(t)

	stdout, _, err := run(t, m, "add", "--preview", "https://www.youtube.com/watch?v=abc123")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Would add 1 URLs")
	assert.Contains(t, stdout, "[youtube_video] https://www.youtube.com/watch?v=abc123")

	stdout, _, err = run(t, m, "stats")
	require.NoError(t, err)
	assert.Contains(t, stdout, "total    0")
}

func TestMain_AddPromptWithoutWebSearch(t *testing.T) {
	t.Parallel()

	_, stderr, err := run(t, newMain(t), "add", "learn", "go", "generics")

	assert.Equal(t, ragkb.EUNAVAILABLE, ragkb.ErrorCode(err))
	assert.Contains(t, stderr, "error: web search is not configured")
}

func TestMain_AddPromptWithWebSearch(t *testing.T) {
	t.Parallel()

	m := newMain(t)
	m.WebSearcher = &mock.WebSearcher{
		SearchFn: func(context.Context, string, int) ([]ragkb.WebResult, error) {
			return []ragkb.WebResult{{URL: "https://go.dev/doc/tutorial/generics"}}, nil
		},
	}

	stdout, _, err := run(t, m, "add", "learn", "go", "generics")

	require.NoError(t, err)
	assert.Contains(t, stdout, "Input type:  prompt")
	assert.Contains(t, stdout, "Added:       1")
}

func TestMain_SearchEmptyIndex(t *testing.T) {
	t.Parallel()

	stdout, _, err := run(t, newMain(t), "search", "goroutine", "leaks")

	require.NoError(t, err)
	assert.Contains(t, stdout, "No results found.")
}

func TestMain_SearchRejectsUnknownType(t *testing.T) {
	t.Parallel()

	_, stderr, err := run(t, newMain(t), "search", "--type", "podcast", "q")

	assert.Equal(t, ragkb.EINVALID, ragkb.ErrorCode(err))
	assert.Contains(t, stderr, "error: ")
}

func TestMain_ClearAndReset(t *testing.T) {
	t.Parallel()

	m := newMain(t)
	_, _, err := run(t, m, "add", "https://go.dev/doc", "https://pkg.go.dev")
	require.NoError(t, err)

	_, stderr, err := run(t, m, "reset")
	assert.Equal(t, ragkb.EINVALID, ragkb.ErrorCode(err))
	assert.Contains(t, stderr, "use --force")

	stdout, _, err := run(t, m, "clear", "--status", "failed")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Removed 0 sources")

	stdout, _, err = run(t, m, "clear")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Removed 2 sources")

	_, _, err = run(t, m, "add", "https://go.dev/blog")
	require.NoError(t, err)

	stdout, _, err = run(t, m, "reset", "--force")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Deleted 0 chunks and 1 sources")
}

func TestMain_ConfigInit(t *testing.T) {
	t.Parallel()

	m := newMain(t)

	stdout, _, err := run(t, m, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Wrote "+m.ConfigPath)

	data, err := os.ReadFile(m.ConfigPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[queue]")
	assert.Contains(t, string(data), "kb.db")

	_, _, err = run(t, m, "config", "init")
	assert.Equal(t, ragkb.ECONFLICT, ragkb.ErrorCode(err))

	_, _, err = run(t, m, "config", "init", "--force")
	require.NoError(t, err)
}

func TestMain_ConfigFlag(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte("[database]\npath = \""+filepath.ToSlash(filepath.Join(dir, "custom.db"))+"\"\n"), 0o600))

	m := main.NewMain()
	m.Embedder = &mock.Embedder{}
	m.Generator = &mock.Generator{}

	_, _, err := run(t, m, "--config", path, "stats")

	require.NoError(t, err)
	assert.Equal(t, path, m.ConfigPath)
	_, err = os.Stat(filepath.Join(dir, "custom.db"))
	assert.NoError(t, err)
}
