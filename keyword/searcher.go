package keyword

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/fwojciec/ragkb"
	"golang.org/x/sync/singleflight"
)

// Compile-time interface verification.
var _ ragkb.KeywordIndex = (*Searcher)(nil)

// Searcher serves BM25 queries over the contents of a vector index. The BM25
// index is rebuilt lazily whenever the vector index version changes, so
// deleted chunks never surface.
type Searcher struct {
	source ragkb.VectorIndex
	logger *slog.Logger

	group singleflight.Group

	mu      sync.RWMutex
	index   *Index
	version int64
	built   bool
}

// NewSearcher returns a Searcher reading from source.
func NewSearcher(source ragkb.VectorIndex, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Searcher{source: source, logger: logger}
}

// Search returns up to k chunks matching query and filter, best first.
func (s *Searcher) Search(ctx context.Context, query string, k int, filter ragkb.ChunkFilter) ([]ragkb.KeywordMatch, error) {
	idx, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Search(query, k, func(c *ragkb.Chunk) bool {
		return filter.Matches(c)
	}), nil
}

// current returns an index built from the latest version of the source.
func (s *Searcher) current(ctx context.Context) (*Index, error) {
	version, err := s.source.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("read index version: %w", err)
	}

	s.mu.RLock()
	if s.built && s.version == version {
		idx := s.index
		s.mu.RUnlock()
		return idx, nil
	}
	s.mu.RUnlock()

	// The rebuild outlives any one caller: waiters share it, so it runs
	// without the first caller's cancellation.
	rebuildCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(strconv.FormatInt(version, 10), func() (any, error) {
		chunks, err := s.source.Get(rebuildCtx, ragkb.ChunkFilter{})
		if err != nil {
			return nil, fmt.Errorf("load chunks for keyword index: %w", err)
		}
		idx := NewIndex(chunks)

		s.mu.Lock()
		if !s.built || version >= s.version {
			s.index, s.version, s.built = idx, version, true
		}
		s.mu.Unlock()

		s.logger.Debug("keyword index rebuilt", "chunks", idx.Len(), "version", version)
		return idx, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Index), nil
	}
}
