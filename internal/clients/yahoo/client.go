// Package yahoo provides a price source backed by the public Yahoo Finance
// chart and spark endpoints.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/aristath/etfscope/internal/domain"
)

const (
	userAgent    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15"
	previewBytes = 120
)

// DefaultHosts are tried in order on every attempt.
var DefaultHosts = []string{
	"https://query1.finance.yahoo.com",
	"https://query2.finance.yahoo.com",
}

// Client fetches daily price history from Yahoo Finance.
// History uses the chart endpoint; Download uses the spark endpoint.
type Client struct {
	hosts    []string
	client   *http.Client
	backoffs []time.Duration
	chart    *gobreaker.CircuitBreaker
	spark    *gobreaker.CircuitBreaker
	log      zerolog.Logger
	now      func() time.Time
}

// NewClient creates a new Yahoo Finance client
func NewClient(log zerolog.Logger) *Client {
	c := &Client{
		hosts:    DefaultHosts,
		client:   &http.Client{Timeout: 30 * time.Second},
		backoffs: []time.Duration{200 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second},
		log:      log.With().Str("client", "yahoo").Logger(),
		now:      time.Now,
	}
	c.chart = c.newBreaker("yahoo-chart")
	c.spark = c.newBreaker("yahoo-spark")
	return c
}

func (c *Client) newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrEmptyResult) || errors.Is(err, errNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})
}

var errNotFound = errors.New("symbol not found")

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol    string `json:"symbol"`
				GmtOffset int64  `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"chart"`
}

type sparkResponse struct {
	Spark struct {
		Result []struct {
			Symbol   string `json:"symbol"`
			Response []struct {
				Meta struct {
					GmtOffset int64 `json:"gmtoffset"`
				} `json:"meta"`
				Timestamp  []int64    `json:"timestamp"`
				Close      []*float64 `json:"close"`
				Indicators struct {
					Quote []struct {
						Close []*float64 `json:"close"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"response"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"spark"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// History fetches the full daily OHLCV table including adjusted close.
// Both ends of the range are inclusive.
func (c *Client) History(ctx context.Context, ticker string, start, end time.Time) (domain.RawHistory, error) {
	params := rangeParams(start, end)
	params.Set("interval", "1d")
	params.Set("events", "div,splits")

	body, err := c.fetch(ctx, c.chart, ticker, "/v8/finance/chart/"+url.PathEscape(ticker), params)
	if err != nil {
		return domain.RawHistory{}, err
	}

	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.RawHistory{}, fmt.Errorf("%w: failed to parse chart response for %s: %w", domain.ErrTransientFetch, ticker, err)
	}
	if resp.Chart.Error != nil {
		return domain.RawHistory{}, fmt.Errorf("%w: %s: %s", domain.ErrTransientFetch, resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Timestamp) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return domain.RawHistory{}, fmt.Errorf("%w for %s", domain.ErrEmptyResult, ticker)
	}

	result := resp.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	dates := toDates(result.Timestamp, result.Meta.GmtOffset)
	n := len(dates)

	fields := []domain.Field{
		{Name: "Open", Values: toValues(quote.Open, n)},
		{Name: "High", Values: toValues(quote.High, n)},
		{Name: "Low", Values: toValues(quote.Low, n)},
		{Name: "Close", Values: toValues(quote.Close, n)},
	}
	if len(result.Indicators.AdjClose) > 0 {
		fields = append(fields, domain.Field{Name: "Adjusted Close", Values: toValues(result.Indicators.AdjClose[0].AdjClose, n)})
	}
	fields = append(fields, domain.Field{Name: "Volume", Values: toValues(quote.Volume, n)})

	raw := clip(domain.NewFlatTable(dates, fields...), start, end)
	c.log.Debug().Str("ticker", ticker).Int("rows", len(raw.Dates)).Msg("Fetched chart history")
	return raw, nil
}

// Download fetches closing prices through the batch spark endpoint. The result
// is grouped by field, then ticker.
//
// spark only takes a named lookback, so the smallest range reaching back to
// start is requested and the rows are clipped to [start, end] afterwards.
func (c *Client) Download(ctx context.Context, ticker string, start, end time.Time) (domain.RawHistory, error) {
	params := url.Values{}
	params.Set("symbols", strings.ToUpper(ticker))
	params.Set("range", sparkRange(start, c.now()))
	params.Set("interval", "1d")

	body, err := c.fetch(ctx, c.spark, ticker, "/v7/finance/spark", params)
	if err != nil {
		return domain.RawHistory{}, err
	}

	var resp sparkResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.RawHistory{}, fmt.Errorf("%w: failed to parse spark response for %s: %w", domain.ErrTransientFetch, ticker, err)
	}
	if resp.Spark.Error != nil {
		return domain.RawHistory{}, fmt.Errorf("%w: %s: %s", domain.ErrTransientFetch, resp.Spark.Error.Code, resp.Spark.Error.Description)
	}

	var series []domain.Series
	for _, result := range resp.Spark.Result {
		if len(result.Response) == 0 {
			continue
		}
		r := result.Response[0]
		closes := r.Close
		if len(closes) == 0 && len(r.Indicators.Quote) > 0 {
			closes = r.Indicators.Quote[0].Close
		}
		dates := toDates(r.Timestamp, r.Meta.GmtOffset)
		name := result.Symbol
		if name == "" {
			name = ticker
		}
		s := domain.NewSeries(name, dates, toValues(closes, len(dates)))
		series = append(series, clipSeries(s, start, end))
	}
	if len(series) == 0 {
		return domain.RawHistory{}, fmt.Errorf("%w for %s", domain.ErrEmptyResult, ticker)
	}

	c.log.Debug().Str("ticker", ticker).Int("rows", series[0].Len()).Msg("Fetched spark history")
	return domain.NewGroupedTable(domain.Group{Field: "Close", Series: series}), nil
}

// fetch runs the request through the breaker, rotating hosts and backing off
// between rounds.
func (c *Client) fetch(ctx context.Context, cb *gobreaker.CircuitBreaker, ticker, path string, params url.Values) ([]byte, error) {
	out, err := cb.Execute(func() (interface{}, error) {
		return c.fetchWithRetry(ctx, ticker, path, params)
	})
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, fmt.Errorf("%w for %s: %w", domain.ErrEmptyResult, ticker, err)
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrTransientFetch, cb.Name(), err)
		}
		return nil, err
	}
	return out.([]byte), nil
}

func (c *Client) fetchWithRetry(ctx context.Context, ticker, path string, params url.Values) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= len(c.backoffs); attempt++ {
		for _, host := range c.hosts {
			body, retry, err := c.get(ctx, ticker, host+path+"?"+params.Encode())
			if err == nil {
				return body, nil
			}
			lastErr = err
			if !retry {
				return nil, fmt.Errorf("%w: %s: %w", domain.ErrTransientFetch, ticker, err)
			}
			c.log.Debug().Err(err).Str("ticker", ticker).Str("host", host).Int("attempt", attempt).Msg("Yahoo request failed")
		}
		if attempt < len(c.backoffs) {
			if err := sleep(ctx, c.backoffs[attempt]); err != nil {
				return nil, fmt.Errorf("%w: %w", domain.ErrTransientFetch, err)
			}
		}
	}
	return nil, fmt.Errorf("%w: %s: %w", domain.ErrTransientFetch, ticker, lastErr)
}

// get performs one request. retry reports whether another host or attempt may help.
func (c *Client) get(ctx context.Context, ticker, rawURL string) (body []byte, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", fmt.Sprintf("https://finance.yahoo.com/quote/%s/history", strings.ToUpper(ticker)))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	text := string(body)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || strings.HasPrefix(text, "Edge: Too Many Requests"):
		return nil, true, fmt.Errorf("rate limited (429): %s", preview(text))
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, fmt.Errorf("%w: %s", errNotFound, preview(text))
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("status %d: %s", resp.StatusCode, preview(text))
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("status %d: %s", resp.StatusCode, preview(text))
	case strings.HasPrefix(text, "<") || strings.HasPrefix(text, "Edge:"):
		return nil, true, fmt.Errorf("non-json body: %s", preview(text))
	}
	return body, false, nil
}

func rangeParams(start, end time.Time) url.Values {
	params := url.Values{}
	params.Set("period1", strconv.FormatInt(domain.Day(start).Unix(), 10))
	// period2 is exclusive upstream
	params.Set("period2", strconv.FormatInt(domain.Day(end).AddDate(0, 0, 1).Unix(), 10))
	return params
}

// sparkRanges are the lookbacks the spark endpoint accepts, shortest first.
var sparkRanges = []struct {
	name          string
	years, months int
}{
	{"1mo", 0, 1},
	{"3mo", 0, 3},
	{"6mo", 0, 6},
	{"1y", 1, 0},
	{"2y", 2, 0},
	{"5y", 5, 0},
	{"10y", 10, 0},
}

// sparkRange picks the shortest lookback from now that still covers start.
func sparkRange(start, now time.Time) string {
	from, today := domain.Day(start), domain.Day(now)
	for _, r := range sparkRanges {
		if !from.Before(today.AddDate(-r.years, -r.months, 0)) {
			return r.name
		}
	}
	return "max"
}

// toDates converts exchange timestamps to calendar days in the exchange's zone.
func toDates(timestamps []int64, gmtOffset int64) []time.Time {
	dates := make([]time.Time, len(timestamps))
	for i, ts := range timestamps {
		dates[i] = domain.Day(time.Unix(ts+gmtOffset, 0).UTC())
	}
	return dates
}

func toValues(raw []*float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i < len(raw) && raw[i] != nil {
			out[i] = *raw[i]
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// clip drops rows outside [start, end]; the endpoints sometimes pad the range.
func clip(raw domain.RawHistory, start, end time.Time) domain.RawHistory {
	from, to := domain.Day(start), domain.Day(end)
	keep := make([]int, 0, len(raw.Dates))
	for i, d := range raw.Dates {
		if !d.Before(from) && !d.After(to) {
			keep = append(keep, i)
		}
	}
	if len(keep) == len(raw.Dates) {
		return raw
	}
	dates := make([]time.Time, len(keep))
	for k, i := range keep {
		dates[k] = raw.Dates[i]
	}
	fields := make([]domain.Field, len(raw.Fields))
	for j, f := range raw.Fields {
		values := make([]float64, len(keep))
		for k, i := range keep {
			values[k] = f.Values[i]
		}
		fields[j] = domain.Field{Name: f.Name, Values: values}
	}
	return domain.NewFlatTable(dates, fields...)
}

func clipSeries(s domain.Series, start, end time.Time) domain.Series {
	from, to := domain.Day(start), domain.Day(end)
	out := domain.Series{Name: s.Name}
	for i, d := range s.Dates {
		if d.Before(from) || d.After(to) {
			continue
		}
		out.Dates = append(out.Dates, d)
		out.Values = append(out.Values, s.Values[i])
	}
	return out
}

func preview(text string) string {
	if len(text) > previewBytes {
		return text[:previewBytes]
	}
	return text
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
