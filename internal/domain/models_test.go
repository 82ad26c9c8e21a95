package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	d, err := ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestNewSeries_SortsAndDeduplicates(t *testing.T) {
	s := NewSeries("SPY",
		[]time.Time{day("2024-01-03"), day("2024-01-02"), day("2024-01-03")},
		[]float64{3, 2, 4},
	)

	require.Equal(t, 2, s.Len())
	assert.Equal(t, day("2024-01-02"), s.Dates[0])
	assert.Equal(t, []float64{2, 4}, s.Values)
}

func TestNewSeries_TruncatesToDay(t *testing.T) {
	ts := time.Date(2024, 1, 2, 14, 30, 0, 0, time.FixedZone("EST", -5*3600))
	s := NewSeries("SPY", []time.Time{ts}, []float64{1})

	assert.Equal(t, day("2024-01-02"), s.Dates[0])
}

func TestSeries_Append(t *testing.T) {
	cached := NewSeries("SPY",
		[]time.Time{day("2024-01-09"), day("2024-01-10")},
		[]float64{100, 101},
	)
	delta := NewSeries("SPY",
		[]time.Time{day("2024-01-10"), day("2024-01-11"), day("2024-01-12")},
		[]float64{math.NaN(), 102, 103},
	)

	merged := cached.Append(delta)

	require.Equal(t, 4, merged.Len())
	assert.Equal(t, []float64{100, 101, 102, 103}, merged.Values)
	last, ok := merged.LastDate()
	require.True(t, ok)
	assert.Equal(t, day("2024-01-12"), last)
}

func TestSeries_DropNaNAndRename(t *testing.T) {
	s := NewSeries("Close",
		[]time.Time{day("2024-01-02"), day("2024-01-03")},
		[]float64{math.NaN(), 5},
	)

	clean := s.DropNaN().Rename("QQQ")

	assert.Equal(t, "QQQ", clean.Name)
	assert.Equal(t, []float64{5}, clean.Values)
	assert.Equal(t, "Close", s.Name, "rename must not mutate the source")
}

func TestOuterJoin(t *testing.T) {
	a := NewSeries("AAA", []time.Time{day("2024-01-02"), day("2024-01-04")}, []float64{1, 3})
	b := NewSeries("BBB", []time.Time{day("2024-01-03"), day("2024-01-04")}, []float64{20, 30})

	f := OuterJoin(a, b)

	assert.Equal(t, []string{"AAA", "BBB"}, f.Columns)
	require.Equal(t, 3, f.Len())
	for i := 1; i < f.Len(); i++ {
		assert.True(t, f.Dates[i-1].Before(f.Dates[i]), "dates must be ascending")
	}
	assert.Equal(t, 1.0, f.Values[0][0])
	assert.True(t, math.IsNaN(f.Values[0][1]))
	assert.True(t, math.IsNaN(f.Values[1][0]))
	assert.Equal(t, []float64{3, 30}, f.Values[2])
}

func TestFrame_CloneIsIndependent(t *testing.T) {
	f := OuterJoin(NewSeries("AAA", []time.Time{day("2024-01-02")}, []float64{1}))
	c := f.Clone()
	c.Values[0][0] = 99

	assert.Equal(t, 1.0, f.Values[0][0])
}

func TestFrame_SeriesAndSlice(t *testing.T) {
	f := OuterJoin(NewSeries("AAA",
		[]time.Time{day("2024-01-02"), day("2024-01-03"), day("2024-01-04")},
		[]float64{1, 2, 3},
	))

	s, ok := f.Series("AAA")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2, 3}, s.Values)

	_, ok = f.Series("ZZZ")
	assert.False(t, ok)

	sliced := f.Slice(day("2024-01-03"), time.Time{})
	assert.Equal(t, 2, sliced.Len())
}

func TestMetricsTable_Get(t *testing.T) {
	m := &MetricsTable{Rows: []MetricsRow{{Ticker: "SPY", Sharpe: 1.2}}}

	row, ok := m.Get("SPY")
	require.True(t, ok)
	assert.Equal(t, 1.2, row.Sharpe)

	_, ok = m.Get("QQQ")
	assert.False(t, ok)
}
