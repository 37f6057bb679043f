package mock

import (
	"context"
	"time"

	"github.com/fwojciec/ragkb"
)

var _ ragkb.URLRegistry = (*URLRegistry)(nil)

// URLRegistry is a mock implementation of ragkb.URLRegistry.
type URLRegistry struct {
	ExistsFn        func(ctx context.Context, urlHash string) (bool, error)
	InsertFn        func(ctx context.Context, u *ragkb.DiscoveredURL) (int64, bool, error)
	FindURLFn       func(ctx context.Context, urlHash string) (*ragkb.DiscoveredURL, error)
	PendingFn       func(ctx context.Context, limit int) ([]*ragkb.DiscoveredURL, error)
	MarkScrapedFn   func(ctx context.Context, urlHash string, v ragkb.Validators) error
	MarkFailedFn    func(ctx context.Context, urlHash string, message string) error
	MarkAbandonedFn func(ctx context.Context, urlHash string, message string) error
	DueForRefreshFn func(ctx context.Context, now time.Time, limit int) ([]*ragkb.DiscoveredURL, error)
	UpdateRefreshFn func(ctx context.Context, urlHash string, upd ragkb.RefreshUpdate) error
	StatsFn         func(ctx context.Context) (*ragkb.RegistryStats, error)
	ClearFn         func(ctx context.Context, filter ragkb.ClearFilter) (int, error)
}

func (r *URLRegistry) Exists(ctx context.Context, urlHash string) (bool, error) {
	return r.ExistsFn(ctx, urlHash)
}

func (r *URLRegistry) Insert(ctx context.Context, u *ragkb.DiscoveredURL) (int64, bool, error) {
	return r.InsertFn(ctx, u)
}

func (r *URLRegistry) FindURL(ctx context.Context, urlHash string) (*ragkb.DiscoveredURL, error) {
	return r.FindURLFn(ctx, urlHash)
}

func (r *URLRegistry) Pending(ctx context.Context, limit int) ([]*ragkb.DiscoveredURL, error) {
	return r.PendingFn(ctx, limit)
}

func (r *URLRegistry) MarkScraped(ctx context.Context, urlHash string, v ragkb.Validators) error {
	return r.MarkScrapedFn(ctx, urlHash, v)
}

func (r *URLRegistry) MarkFailed(ctx context.Context, urlHash string, message string) error {
	return r.MarkFailedFn(ctx, urlHash, message)
}

func (r *URLRegistry) MarkAbandoned(ctx context.Context, urlHash string, message string) error {
	return r.MarkAbandonedFn(ctx, urlHash, message)
}

func (r *URLRegistry) DueForRefresh(ctx context.Context, now time.Time, limit int) ([]*ragkb.DiscoveredURL, error) {
	return r.DueForRefreshFn(ctx, now, limit)
}

func (r *URLRegistry) UpdateRefresh(ctx context.Context, urlHash string, upd ragkb.RefreshUpdate) error {
	return r.UpdateRefreshFn(ctx, urlHash, upd)
}

func (r *URLRegistry) Stats(ctx context.Context) (*ragkb.RegistryStats, error) {
	return r.StatsFn(ctx)
}

func (r *URLRegistry) Clear(ctx context.Context, filter ragkb.ClearFilter) (int, error) {
	return r.ClearFn(ctx, filter)
}
