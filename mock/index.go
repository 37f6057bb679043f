package mock

import (
	"context"

	"github.com/fwojciec/ragkb"
)

var (
	_ ragkb.VectorIndex  = (*VectorIndex)(nil)
	_ ragkb.KeywordIndex = (*KeywordIndex)(nil)
)

// VectorIndex is a mock implementation of ragkb.VectorIndex.
type VectorIndex struct {
	AddFn               func(ctx context.Context, chunks []*ragkb.Chunk) error
	QueryFn             func(ctx context.Context, vec []float32, k int, filter ragkb.ChunkFilter) ([]ragkb.VectorMatch, error)
	ReplaceDocumentFn   func(ctx context.Context, documentID string, chunks []*ragkb.Chunk) (int, error)
	GetFn               func(ctx context.Context, filter ragkb.ChunkFilter) ([]*ragkb.Chunk, error)
	DeleteFn            func(ctx context.Context, ids []string) error
	DeleteByDocumentFn  func(ctx context.Context, documentID string) (int, error)
	DeleteBySourceURLFn func(ctx context.Context, sourceURL string) (int, error)
	CountFn             func(ctx context.Context) (int, error)
	StatsFn             func(ctx context.Context) (*ragkb.IndexStats, error)
	ResetFn             func(ctx context.Context) error
	VersionFn           func(ctx context.Context) (int64, error)
}

func (v *VectorIndex) Add(ctx context.Context, chunks []*ragkb.Chunk) error {
	return v.AddFn(ctx, chunks)
}

func (v *VectorIndex) Query(ctx context.Context, vec []float32, k int, filter ragkb.ChunkFilter) ([]ragkb.VectorMatch, error) {
	return v.QueryFn(ctx, vec, k, filter)
}

func (v *VectorIndex) ReplaceDocument(ctx context.Context, documentID string, chunks []*ragkb.Chunk) (int, error) {
	return v.ReplaceDocumentFn(ctx, documentID, chunks)
}

func (v *VectorIndex) Get(ctx context.Context, filter ragkb.ChunkFilter) ([]*ragkb.Chunk, error) {
	return v.GetFn(ctx, filter)
}

func (v *VectorIndex) Delete(ctx context.Context, ids []string) error {
	return v.DeleteFn(ctx, ids)
}

func (v *VectorIndex) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	return v.DeleteByDocumentFn(ctx, documentID)
}

func (v *VectorIndex) DeleteBySourceURL(ctx context.Context, sourceURL string) (int, error) {
	return v.DeleteBySourceURLFn(ctx, sourceURL)
}

func (v *VectorIndex) Count(ctx context.Context) (int, error) {
	return v.CountFn(ctx)
}

func (v *VectorIndex) Stats(ctx context.Context) (*ragkb.IndexStats, error) {
	return v.StatsFn(ctx)
}

func (v *VectorIndex) Reset(ctx context.Context) error {
	return v.ResetFn(ctx)
}

func (v *VectorIndex) Version(ctx context.Context) (int64, error) {
	return v.VersionFn(ctx)
}

// KeywordIndex is a mock implementation of ragkb.KeywordIndex.
type KeywordIndex struct {
	SearchFn func(ctx context.Context, query string, k int, filter ragkb.ChunkFilter) ([]ragkb.KeywordMatch, error)
}

func (k *KeywordIndex) Search(ctx context.Context, query string, n int, filter ragkb.ChunkFilter) ([]ragkb.KeywordMatch, error) {
	return k.SearchFn(ctx, query, n, filter)
}
