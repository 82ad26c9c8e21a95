// Package prices acquires, caches and normalizes daily price histories and
// assembles them into a single date-aligned price table.
package prices

import (
	"context"
	"time"

	"github.com/aristath/etfscope/internal/domain"
)

// Source fetches the price history of one ticker over an inclusive date range.
// Implementations expose two retrieval strategies that the builder tries in order.
type Source interface {
	// History is the primary, detailed single-ticker request.
	History(ctx context.Context, ticker string, start, end time.Time) (domain.RawHistory, error)

	// Download is the fallback, batch-style request.
	Download(ctx context.Context, ticker string, start, end time.Time) (domain.RawHistory, error)
}

// Cache persists one raw history per ticker.
// Load returns domain.ErrCacheMiss when nothing is stored and wraps
// domain.ErrCacheRead when a stored entry cannot be decoded.
type Cache interface {
	Load(ctx context.Context, ticker string) (domain.RawHistory, error)
	Save(ctx context.Context, ticker string, raw domain.RawHistory) error
}
