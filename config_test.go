package ragkb_test

import (
	"testing"
	"time"

	"github.com/fwojciec/ragkb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := ragkb.DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10, cfg.Queue.BatchSize)
	assert.Equal(t, 3, cfg.Queue.ConcurrentWorkers)
	assert.Equal(t, 3, cfg.Queue.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Queue.DelayBetweenBatches.D())
	assert.Equal(t, 60, cfg.Search.RRFK)
	assert.InDelta(t, 0.7, cfg.Search.SemanticWeight, 1e-9)
	assert.Equal(t, "0 3 * * 1", cfg.Refresh.Schedule)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := map[string]func(*ragkb.Config){
		"min above max":     func(c *ragkb.Config) { c.Chunking.MinTokens = 1000 },
		"overlap too large": func(c *ragkb.Config) { c.Chunking.OverlapTokens = c.Chunking.MaxTokens },
		"zero batch":        func(c *ragkb.Config) { c.Queue.BatchSize = 0 },
		"zero workers":      func(c *ragkb.Config) { c.Queue.ConcurrentWorkers = 0 },
		"negative weight":   func(c *ragkb.Config) { c.Search.KeywordWeight = -1 },
		"threshold above 2": func(c *ragkb.Config) { c.Search.Threshold = 3 },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := ragkb.DefaultConfig()
			mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, ragkb.EINVALID, ragkb.ErrorCode(err))
		})
	}
}

func TestConfig_RequireBrave(t *testing.T) {
	t.Parallel()

	cfg := ragkb.DefaultConfig()
	assert.Equal(t, ragkb.EINVALID, ragkb.ErrorCode(cfg.RequireBrave()))

	cfg.Brave.APIKey = "key"
	assert.NoError(t, cfg.RequireBrave())
}

func TestDuration_Text(t *testing.T) {
	t.Parallel()

	var d ragkb.Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.D())

	b, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(b))

	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
