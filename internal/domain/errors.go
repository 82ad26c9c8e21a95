package domain

import "errors"

// Price acquisition and analytics errors. Callers test them with errors.Is;
// producers wrap them with context via fmt.Errorf("...: %w", err).
var (
	// ErrTransientFetch means a single retrieval attempt failed.
	ErrTransientFetch = errors.New("price fetch failed")

	// ErrEmptyResult means a provider answered but returned no rows.
	ErrEmptyResult = errors.New("price source returned no rows")

	// ErrNormalization means no closing-price field could be identified.
	ErrNormalization = errors.New("no closing price field")

	// ErrCacheMiss means the cache holds nothing for the ticker.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheRead means a cache entry exists but could not be read or decoded.
	ErrCacheRead = errors.New("cache read failed")

	// ErrNoData means no ticker produced a usable series.
	ErrNoData = errors.New("no data downloaded, check connectivity or ticker symbols")

	// ErrDimensionMismatch means a weight vector does not match the asset count.
	ErrDimensionMismatch = errors.New("weight vector length does not match asset count")

	// ErrInsufficientData means there are too few observations for a statistic.
	ErrInsufficientData = errors.New("insufficient data")
)
