package prices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/etfscope/internal/domain"
	"github.com/aristath/etfscope/pkg/logger"
)

// SkipReason explains why a ticker is missing from the price table.
type SkipReason string

const (
	SkipFetchFailed  SkipReason = "fetch_failed"
	SkipNoPriceField SkipReason = "no_price_field"
)

// Origin records where a ticker's series came from.
type Origin string

const (
	OriginCache      Origin = "cache"
	OriginCacheDelta Origin = "cache+delta"
	OriginPrimary    Origin = "primary"
	OriginFallback   Origin = "fallback"
)

// TickerResult is the per-ticker outcome of a build: a series or a skip reason.
type TickerResult struct {
	Ticker string
	Series domain.Series
	Origin Origin
	Skip   SkipReason
	Err    error
}

// OK reports whether the ticker produced a usable series.
func (r TickerResult) OK() bool { return r.Skip == "" }

// BuildReport lists every ticker outcome in request order.
type BuildReport struct {
	Results []TickerResult
}

// Loaded returns the tickers that made it into the price table.
func (r *BuildReport) Loaded() []string {
	var out []string
	for _, res := range r.Results {
		if res.OK() {
			out = append(out, res.Ticker)
		}
	}
	return out
}

// Skipped returns the outcomes of tickers that were dropped.
func (r *BuildReport) Skipped() []TickerResult {
	var out []TickerResult
	for _, res := range r.Results {
		if !res.OK() {
			out = append(out, res)
		}
	}
	return out
}

// BuildRequest describes one price table build.
type BuildRequest struct {
	Tickers      []string
	Start        time.Time
	End          time.Time
	ForceRefresh bool
	Pause        time.Duration // courtesy delay after each fresh download
}

// Builder orchestrates the price source, the cache and normalization.
type Builder struct {
	source Source
	cache  Cache
	log    zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewBuilder creates a price table builder. cache may be nil to disable caching.
func NewBuilder(source Source, cache Cache, log zerolog.Logger) *Builder {
	return &Builder{
		source: source,
		cache:  cache,
		log:    logger.Component(log, "price_builder"),
		sleep:  sleepContext,
	}
}

// Build produces the date-aligned price table for the requested tickers.
//
// Tickers are processed sequentially in request order. A ticker that cannot be
// fetched or normalized is skipped and reported; only a build where no ticker
// yields data fails, with domain.ErrNoData.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (*domain.Frame, *BuildReport, error) {
	start := domain.Day(req.Start)
	end := domain.Day(req.End)
	if end.Before(start) {
		return nil, nil, fmt.Errorf("invalid date range: end %s before start %s",
			end.Format(domain.DateLayout), start.Format(domain.DateLayout))
	}

	report := &BuildReport{}
	var series []domain.Series

	for _, ticker := range uniqueTickers(req.Tickers) {
		if err := ctx.Err(); err != nil {
			return nil, report, fmt.Errorf("price build interrupted: %w", err)
		}

		res := b.buildTicker(ctx, ticker, start, end, req)
		report.Results = append(report.Results, res)
		if res.OK() {
			series = append(series, res.Series)
		}
	}

	if len(series) == 0 {
		b.log.Error().Int("tickers", len(report.Results)).Msg("No ticker produced usable prices")
		return nil, report, domain.ErrNoData
	}

	prices := domain.OuterJoin(series...)
	b.log.Info().
		Int("tickers", len(series)).
		Int("skipped", len(report.Results)-len(series)).
		Int("rows", prices.Len()).
		Msg("Built price table")

	return prices, report, nil
}

func (b *Builder) buildTicker(ctx context.Context, ticker string, start, end time.Time, req BuildRequest) TickerResult {
	log := logger.Ticker(b.log, ticker)

	if !req.ForceRefresh && b.cache != nil {
		if series, origin, ok := b.fromCache(ctx, log, ticker, end); ok {
			log.Debug().Str("stage", "cache").Str("outcome", string(origin)).Int("rows", series.Len()).Msg("Using cached prices")
			return TickerResult{Ticker: ticker, Series: series, Origin: origin}
		}
	}

	log.Info().Str("stage", "fetch").Msg("Downloading prices")
	raw, origin, err := b.fetch(ctx, log, ticker, start, end)
	if err != nil {
		log.Warn().Err(err).Str("stage", "fetch").Str("outcome", string(SkipFetchFailed)).Msg("No data for ticker, skipping")
		return TickerResult{Ticker: ticker, Skip: SkipFetchFailed, Err: err}
	}

	if b.cache != nil {
		if err := b.cache.Save(ctx, ticker, raw); err != nil {
			log.Warn().Err(err).Str("stage", "persist").Msg("Could not cache prices")
		}
	}

	if err := b.sleep(ctx, req.Pause); err != nil {
		log.Debug().Err(err).Msg("Pause interrupted")
	}

	series, err := Normalize(raw, ticker)
	if err != nil {
		log.Warn().Err(err).Str("stage", "normalize").Str("outcome", string(SkipNoPriceField)).Msg("Could not locate a close column, skipping")
		return TickerResult{Ticker: ticker, Skip: SkipNoPriceField, Err: err}
	}

	return TickerResult{Ticker: ticker, Series: series, Origin: origin}
}

// fromCache returns the cached series, topped up with rows after its last date
// when the cache ends before the requested end. Any cache problem is a miss.
func (b *Builder) fromCache(ctx context.Context, log zerolog.Logger, ticker string, end time.Time) (domain.Series, Origin, bool) {
	raw, err := b.cache.Load(ctx, ticker)
	if err != nil {
		if errors.Is(err, domain.ErrCacheMiss) {
			log.Debug().Str("stage", "cache").Str("outcome", "miss").Msg("No cached prices")
		} else {
			log.Warn().Err(err).Str("stage", "cache").Str("outcome", "miss").Msg("Failed to load cached prices")
		}
		return domain.Series{}, "", false
	}

	cached, err := Normalize(raw, ticker)
	if err != nil {
		log.Warn().Err(err).Str("stage", "cache").Str("outcome", "miss").Msg("Cached prices unusable")
		return domain.Series{}, "", false
	}
	last, ok := cached.LastDate()
	if !ok {
		return domain.Series{}, "", false
	}
	if !last.Before(end) {
		return cached, OriginCache, true
	}

	from := last.AddDate(0, 0, 1)
	log.Info().
		Str("stage", "delta").
		Str("from", from.Format(domain.DateLayout)).
		Str("to", end.Format(domain.DateLayout)).
		Msg("Fetching new rows for cached ticker")

	deltaRaw, _, err := b.fetch(ctx, log, ticker, from, end)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyResult) {
			log.Debug().Str("stage", "delta").Str("outcome", "unchanged").Msg("No new rows")
		} else {
			log.Warn().Err(err).Str("stage", "delta").Str("outcome", "stale").Msg("Delta fetch failed, using cached prices")
		}
		return cached, OriginCache, true
	}

	delta, err := Normalize(deltaRaw, ticker)
	if err != nil {
		log.Warn().Err(err).Str("stage", "delta").Str("outcome", "stale").Msg("Delta rows unusable, using cached prices")
		return cached, OriginCache, true
	}

	merged := cached.Append(delta)
	toSave, ok := domain.MergeFlat(raw, deltaRaw)
	if !ok {
		toSave = domain.NewSingleSeries(merged)
	}
	if err := b.cache.Save(ctx, ticker, toSave); err != nil {
		log.Warn().Err(err).Str("stage", "persist").Msg("Could not update cached prices")
	}

	return merged, OriginCacheDelta, true
}

// fetch tries the primary strategy, then the fallback. An empty answer counts
// as a failed attempt.
func (b *Builder) fetch(ctx context.Context, log zerolog.Logger, ticker string, start, end time.Time) (domain.RawHistory, Origin, error) {
	raw, err := b.source.History(ctx, ticker, start, end)
	if err == nil && raw.Empty() {
		err = domain.ErrEmptyResult
	}
	if err == nil {
		return raw, OriginPrimary, nil
	}
	log.Debug().Err(err).Str("stage", "fetch").Msg("Primary request failed, trying fallback")

	raw, fallbackErr := b.source.Download(ctx, ticker, start, end)
	if fallbackErr == nil && raw.Empty() {
		fallbackErr = domain.ErrEmptyResult
	}
	if fallbackErr == nil {
		log.Debug().Str("stage", "fallback").Str("outcome", "ok").Msg("Fallback request succeeded")
		return raw, OriginFallback, nil
	}

	return domain.RawHistory{}, "", fmt.Errorf("%w for %s: primary: %w; fallback: %w",
		domain.ErrTransientFetch, ticker, err, fallbackErr)
}

func uniqueTickers(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
