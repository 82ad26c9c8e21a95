// Package domain provides core domain models and types.
package domain

import (
	"math"
	"sort"
	"time"
)

// DateLayout is the calendar-day format used for cache files, reports and API params.
const DateLayout = "2006-01-02"

// TradingDaysPerYear is the annualization convention for daily data.
const TradingDaysPerYear = 252

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// Series is a single named, date-indexed column of prices or returns.
// NaN marks a missing observation.
type Series struct {
	Name   string
	Dates  []time.Time
	Values []float64
}

// NewSeries builds a series sorted by date. Duplicate dates keep the last value.
func NewSeries(name string, dates []time.Time, values []float64) Series {
	n := len(dates)
	if len(values) < n {
		n = len(values)
	}
	type point struct {
		date  time.Time
		value float64
		seq   int
	}
	points := make([]point, n)
	for i := 0; i < n; i++ {
		points[i] = point{date: Day(dates[i]), value: values[i], seq: i}
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].date.Before(points[j].date)
	})

	s := Series{Name: name, Dates: make([]time.Time, 0, n), Values: make([]float64, 0, n)}
	for _, p := range points {
		if last := len(s.Dates) - 1; last >= 0 && s.Dates[last].Equal(p.date) {
			s.Values[last] = p.value
			continue
		}
		s.Dates = append(s.Dates, p.date)
		s.Values = append(s.Values, p.value)
	}
	return s
}

// Len returns the number of observations.
func (s Series) Len() int { return len(s.Dates) }

// Rename returns a copy of the series carrying a new label.
func (s Series) Rename(name string) Series {
	return Series{
		Name:   name,
		Dates:  append([]time.Time(nil), s.Dates...),
		Values: append([]float64(nil), s.Values...),
	}
}

// DropNaN returns the series without missing observations.
func (s Series) DropNaN() Series {
	out := Series{Name: s.Name}
	for i, v := range s.Values {
		if math.IsNaN(v) {
			continue
		}
		out.Dates = append(out.Dates, s.Dates[i])
		out.Values = append(out.Values, v)
	}
	return out
}

// LastDate returns the most recent date in the series.
func (s Series) LastDate() (time.Time, bool) {
	if len(s.Dates) == 0 {
		return time.Time{}, false
	}
	return s.Dates[len(s.Dates)-1], true
}

// Append merges newer observations into the series. On overlapping dates the
// newer value wins unless it is missing.
func (s Series) Append(newer Series) Series {
	dates := make([]time.Time, 0, s.Len()+newer.Len())
	values := make([]float64, 0, s.Len()+newer.Len())
	dates = append(dates, s.Dates...)
	values = append(values, s.Values...)
	for i, d := range newer.Dates {
		if math.IsNaN(newer.Values[i]) && s.has(d) {
			continue
		}
		dates = append(dates, d)
		values = append(values, newer.Values[i])
	}
	return NewSeries(s.Name, dates, values)
}

func (s Series) has(d time.Time) bool {
	i := sort.Search(len(s.Dates), func(i int) bool { return !s.Dates[i].Before(d) })
	return i < len(s.Dates) && s.Dates[i].Equal(d)
}

// Frame is a date-indexed table with one column per ticker.
// Dates are strictly ascending; Values is row-major (Values[row][column]).
type Frame struct {
	Dates   []time.Time
	Columns []string
	Values  [][]float64
}

// OuterJoin aligns series on the union of their dates, sorted ascending.
// Cells a series has no observation for are NaN.
func OuterJoin(series ...Series) *Frame {
	seen := make(map[time.Time]struct{})
	for _, s := range series {
		for _, d := range s.Dates {
			seen[d] = struct{}{}
		}
	}
	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	index := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		index[d] = i
	}

	f := &Frame{
		Dates:   dates,
		Columns: make([]string, len(series)),
		Values:  make([][]float64, len(dates)),
	}
	for i := range f.Values {
		row := make([]float64, len(series))
		for j := range row {
			row[j] = math.NaN()
		}
		f.Values[i] = row
	}
	for j, s := range series {
		f.Columns[j] = s.Name
		for k, d := range s.Dates {
			f.Values[index[d]][j] = s.Values[k]
		}
	}
	return f
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Dates)
}

// Width returns the number of columns.
func (f *Frame) Width() int {
	if f == nil {
		return 0
	}
	return len(f.Columns)
}

// ColumnIndex returns the position of a column, or -1.
func (f *Frame) ColumnIndex(name string) int {
	for j, c := range f.Columns {
		if c == name {
			return j
		}
	}
	return -1
}

// ColumnAt copies column j out of the frame.
func (f *Frame) ColumnAt(j int) []float64 {
	out := make([]float64, len(f.Values))
	for i, row := range f.Values {
		out[i] = row[j]
	}
	return out
}

// Series extracts a named column as a series.
func (f *Frame) Series(name string) (Series, bool) {
	j := f.ColumnIndex(name)
	if j < 0 {
		return Series{}, false
	}
	return Series{
		Name:   name,
		Dates:  append([]time.Time(nil), f.Dates...),
		Values: f.ColumnAt(j),
	}, true
}

// Clone returns a deep copy so downstream consumers never share rows.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	out := &Frame{
		Dates:   append([]time.Time(nil), f.Dates...),
		Columns: append([]string(nil), f.Columns...),
		Values:  make([][]float64, len(f.Values)),
	}
	for i, row := range f.Values {
		out.Values[i] = append([]float64(nil), row...)
	}
	return out
}

// Slice returns the rows whose dates fall in [from, to]. Zero bounds are open.
func (f *Frame) Slice(from, to time.Time) *Frame {
	out := &Frame{Columns: append([]string(nil), f.Columns...)}
	for i, d := range f.Dates {
		if !from.IsZero() && d.Before(from) {
			continue
		}
		if !to.IsZero() && d.After(to) {
			continue
		}
		out.Dates = append(out.Dates, d)
		out.Values = append(out.Values, append([]float64(nil), f.Values[i]...))
	}
	return out
}

// MetricsRow holds the per-asset statistics derived from one price column.
// Sharpe and MaxDrawdown may be NaN or infinite; they are reported as-is.
type MetricsRow struct {
	Ticker               string
	AnnualizedReturn     float64
	AnnualizedVolatility float64
	Sharpe               float64
	MaxDrawdown          float64
}

// MetricsTable has one row per ticker, in price-table column order.
type MetricsTable struct {
	Rows []MetricsRow
}

// Get returns the row for a ticker.
func (m *MetricsTable) Get(ticker string) (MetricsRow, bool) {
	for _, r := range m.Rows {
		if r.Ticker == ticker {
			return r, true
		}
	}
	return MetricsRow{}, false
}

// SimulationRow is one sampled portfolio.
type SimulationRow struct {
	Return     float64
	Volatility float64
	Sharpe     float64
	Weights    []float64
}

// SimulationResults collects Monte Carlo samples. Row order carries no meaning.
type SimulationResults struct {
	Tickers []string
	Rows    []SimulationRow
}
