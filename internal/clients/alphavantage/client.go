// Package alphavantage provides a price source backed by the Alpha Vantage
// daily time series API.
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/etfscope/internal/domain"
)

const (
	// DailyRequestLimit is the free-tier request budget per day.
	DailyRequestLimit = 25

	functionDaily         = "TIME_SERIES_DAILY"
	functionDailyAdjusted = "TIME_SERIES_DAILY_ADJUSTED"

	// compact responses carry the latest 100 trading days
	compactWindow = 140 * 24 * time.Hour
	cacheTTL      = time.Hour
)

// ErrRateLimitExceeded is returned once the daily request budget is spent.
type ErrRateLimitExceeded struct {
	Limit int
}

func (e ErrRateLimitExceeded) Error() string {
	return fmt.Sprintf("alpha vantage daily request limit of %d reached", e.Limit)
}

// DailyPrice is one row of a daily time series.
type DailyPrice struct {
	Date          time.Time
	Open          float64
	High          float64
	Low           float64
	Close         float64
	AdjustedClose float64
	Volume        int64
}

type cacheEntry struct {
	data      interface{}
	expiresAt time.Time
}

// Client for the Alpha Vantage API
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     zerolog.Logger
	now     func() time.Time

	mu           sync.Mutex
	requestCount int
	counterDay   time.Time
	cache        map[string]cacheEntry
}

// NewClient creates a new Alpha Vantage client
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    "https://www.alphavantage.co/query",
		apiKey:     apiKey,
		client:     &http.Client{Timeout: 30 * time.Second},
		log:        log.With().Str("client", "alphavantage").Logger(),
		now:        time.Now,
		counterDay: domain.Day(time.Now()),
		cache:      make(map[string]cacheEntry),
	}
}

// History fetches the adjusted daily series. Both ends of the range are inclusive.
func (c *Client) History(ctx context.Context, ticker string, start, end time.Time) (domain.RawHistory, error) {
	prices, err := c.dailySeries(ctx, functionDailyAdjusted, ticker, start)
	if err != nil {
		return domain.RawHistory{}, err
	}
	return toFlatTable(prices, start, end, true), nil
}

// Download fetches the unadjusted daily series.
func (c *Client) Download(ctx context.Context, ticker string, start, end time.Time) (domain.RawHistory, error) {
	prices, err := c.dailySeries(ctx, functionDaily, ticker, start)
	if err != nil {
		return domain.RawHistory{}, err
	}
	return toFlatTable(prices, start, end, false), nil
}

// GetRemainingRequests returns how many requests are left today.
func (c *Client) GetRemainingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollDayLocked()
	return DailyRequestLimit - c.requestCount
}

// ResetDailyCounter restores the full daily budget.
func (c *Client) ResetDailyCounter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestCount = 0
	c.counterDay = domain.Day(c.now())
}

// ClearCache drops all cached responses.
func (c *Client) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]cacheEntry)
}

func (c *Client) dailySeries(ctx context.Context, function, ticker string, start time.Time) ([]DailyPrice, error) {
	outputSize := "compact"
	if c.now().Sub(start) > compactWindow {
		outputSize = "full"
	}
	params := map[string]string{
		"symbol":     strings.ToUpper(ticker),
		"outputsize": outputSize,
	}

	key := buildCacheKey(function, params)
	if cached, ok := c.getFromCache(key); ok {
		c.log.Debug().Str("ticker", ticker).Str("function", function).Msg("Cache hit")
		return cached.([]DailyPrice), nil
	}

	body, err := c.doRequest(ctx, function, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", domain.ErrTransientFetch, function, ticker, err)
	}

	prices, err := parseDailyTimeSeries(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", domain.ErrTransientFetch, function, ticker, err)
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("%w for %s", domain.ErrEmptyResult, ticker)
	}

	c.setCache(key, prices, cacheTTL)
	c.log.Debug().Str("ticker", ticker).Str("function", function).Int("rows", len(prices)).Msg("Fetched daily series")
	return prices, nil
}

func (c *Client) doRequest(ctx context.Context, function string, params map[string]string) ([]byte, error) {
	if err := c.checkRateLimit(); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("function", function)
	q.Set("apikey", c.apiKey)
	for k, v := range params {
		q.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if err := checkAPIError(body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkAPIError detects the error envelopes Alpha Vantage returns with status 200.
func checkAPIError(body []byte) error {
	var envelope struct {
		ErrorMessage string `json:"Error Message"`
		Note         string `json:"Note"`
		Information  string `json:"Information"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}
	switch {
	case envelope.ErrorMessage != "":
		return fmt.Errorf("API error: %s", envelope.ErrorMessage)
	case envelope.Note != "":
		return fmt.Errorf("API note: %s", envelope.Note)
	case envelope.Information != "":
		return fmt.Errorf("API information: %s", envelope.Information)
	}
	return nil
}

func (c *Client) checkRateLimit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollDayLocked()
	if c.requestCount >= DailyRequestLimit {
		return ErrRateLimitExceeded{Limit: DailyRequestLimit}
	}
	c.requestCount++
	return nil
}

func (c *Client) rollDayLocked() {
	today := domain.Day(c.now())
	if today.After(c.counterDay) {
		c.counterDay = today
		c.requestCount = 0
	}
}

func (c *Client) getFromCache(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.cache, key)
		return nil, false
	}
	return entry.data, true
}

func (c *Client) setCache(key string, data interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{data: data, expiresAt: time.Now().Add(ttl)}
}

// buildCacheKey builds a stable key from the function and its parameters,
// leaving out the API key.
func buildCacheKey(function string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "apikey" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(function)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(params[k])
	}
	return b.String()
}

// parseDailyTimeSeries parses both the plain and the adjusted daily payloads.
// Rows are returned newest first.
func parseDailyTimeSeries(body []byte) ([]DailyPrice, error) {
	var resp struct {
		TimeSeries map[string]map[string]string `json:"Time Series (Daily)"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse time series: %w", err)
	}

	prices := make([]DailyPrice, 0, len(resp.TimeSeries))
	for date, row := range resp.TimeSeries {
		d := parseDate(date)
		if d.IsZero() {
			continue
		}
		p := DailyPrice{
			Date:          d,
			Open:          parsePrice(row["1. open"]),
			High:          parsePrice(row["2. high"]),
			Low:           parsePrice(row["3. low"]),
			Close:         parsePrice(row["4. close"]),
			AdjustedClose: math.NaN(),
		}
		if adj, ok := row["5. adjusted close"]; ok {
			p.AdjustedClose = parsePrice(adj)
			p.Volume = parseInt64(row["6. volume"])
		} else {
			p.Volume = parseInt64(row["5. volume"])
		}
		prices = append(prices, p)
	}

	sort.Slice(prices, func(i, j int) bool { return prices[i].Date.After(prices[j].Date) })
	return prices, nil
}

// toFlatTable converts newest-first rows inside [start, end] to an ascending table.
func toFlatTable(prices []DailyPrice, start, end time.Time, adjusted bool) domain.RawHistory {
	from, to := domain.Day(start), domain.Day(end)
	var dates []time.Time
	var open, high, low, closes, adj, volume []float64
	hasAdjusted := false
	for i := len(prices) - 1; i >= 0; i-- {
		p := prices[i]
		if p.Date.Before(from) || p.Date.After(to) {
			continue
		}
		dates = append(dates, p.Date)
		open = append(open, p.Open)
		high = append(high, p.High)
		low = append(low, p.Low)
		closes = append(closes, p.Close)
		adj = append(adj, p.AdjustedClose)
		if !math.IsNaN(p.AdjustedClose) {
			hasAdjusted = true
		}
		volume = append(volume, float64(p.Volume))
	}

	fields := []domain.Field{
		{Name: "Open", Values: open},
		{Name: "High", Values: high},
		{Name: "Low", Values: low},
		{Name: "Close", Values: closes},
	}
	if adjusted && hasAdjusted {
		fields = append(fields, domain.Field{Name: "Adjusted Close", Values: adj})
	}
	fields = append(fields, domain.Field{Name: "Volume", Values: volume})
	return domain.NewFlatTable(dates, fields...)
}

// parsePrice returns NaN for missing or malformed cells so a gap never
// reads as a zero close.
func parsePrice(s string) float64 {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	switch s {
	case "", "None", "null", "-":
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

// parseInt64 parses volume-like counts; missing values count as zero.
func parseInt64(s string) int64 {
	v := parsePrice(s)
	if math.IsNaN(v) {
		return 0
	}
	return int64(v)
}

func parseDate(s string) time.Time {
	t, err := domain.ParseDay(s)
	if err != nil {
		return time.Time{}
	}
	return t
}
