package domain

import (
	"math"
	"time"
)

// RawKind tags the shape of a provider or cache response.
type RawKind int

const (
	// KindSingleSeries is a bare price series.
	KindSingleSeries RawKind = iota + 1
	// KindFlatTable is a table of named fields ("Open", "Close", ...).
	KindFlatTable
	// KindGroupedTable groups sub-series by field type, then ticker.
	KindGroupedTable
)

func (k RawKind) String() string {
	switch k {
	case KindSingleSeries:
		return "series"
	case KindFlatTable:
		return "flat"
	case KindGroupedTable:
		return "grouped"
	default:
		return "unknown"
	}
}

// Field is one named column of a flat table, aligned with RawHistory.Dates.
type Field struct {
	Name   string
	Values []float64
}

// Group is one first-level entry of a grouped table, e.g. "Close" over tickers.
type Group struct {
	Field  string
	Series []Series
}

// RawHistory is the per-ticker price history as a provider or cache returned
// it. Exactly one payload is populated, according to Kind.
type RawHistory struct {
	Kind RawKind

	// KindSingleSeries
	Series Series

	// KindFlatTable
	Dates  []time.Time
	Fields []Field

	// KindGroupedTable
	Groups []Group
}

// NewSingleSeries wraps a bare series.
func NewSingleSeries(s Series) RawHistory {
	return RawHistory{Kind: KindSingleSeries, Series: s}
}

// NewFlatTable wraps date-aligned fields.
func NewFlatTable(dates []time.Time, fields ...Field) RawHistory {
	return RawHistory{Kind: KindFlatTable, Dates: dates, Fields: fields}
}

// NewGroupedTable wraps grouped sub-series.
func NewGroupedTable(groups ...Group) RawHistory {
	return RawHistory{Kind: KindGroupedTable, Groups: groups}
}

// Field returns the flat-table field with the given name.
func (r RawHistory) Field(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames lists the first-level labels: fields, group keys or the series name.
func (r RawHistory) FieldNames() []string {
	switch r.Kind {
	case KindSingleSeries:
		return []string{r.Series.Name}
	case KindFlatTable:
		names := make([]string, len(r.Fields))
		for i, f := range r.Fields {
			names[i] = f.Name
		}
		return names
	case KindGroupedTable:
		names := make([]string, len(r.Groups))
		for i, g := range r.Groups {
			names[i] = g.Field
		}
		return names
	}
	return nil
}

// Empty reports whether the history holds no usable observation.
func (r RawHistory) Empty() bool {
	switch r.Kind {
	case KindSingleSeries:
		return !anyFinite(r.Series.Values)
	case KindFlatTable:
		if len(r.Dates) == 0 {
			return true
		}
		for _, f := range r.Fields {
			if anyFinite(f.Values) {
				return false
			}
		}
		return true
	case KindGroupedTable:
		for _, g := range r.Groups {
			for _, s := range g.Series {
				if anyFinite(s.Values) {
					return false
				}
			}
		}
		return true
	}
	return true
}

// Rows returns the number of dated rows.
func (r RawHistory) Rows() int {
	switch r.Kind {
	case KindSingleSeries:
		return r.Series.Len()
	case KindFlatTable:
		return len(r.Dates)
	case KindGroupedTable:
		n := 0
		for _, g := range r.Groups {
			for _, s := range g.Series {
				if s.Len() > n {
					n = s.Len()
				}
			}
		}
		return n
	}
	return 0
}

// LastDate returns the most recent date present in the history.
func (r RawHistory) LastDate() (time.Time, bool) {
	var last time.Time
	found := false
	consider := func(dates []time.Time) {
		for _, d := range dates {
			if !found || d.After(last) {
				last = d
				found = true
			}
		}
	}
	switch r.Kind {
	case KindSingleSeries:
		consider(r.Series.Dates)
	case KindFlatTable:
		consider(r.Dates)
	case KindGroupedTable:
		for _, g := range r.Groups {
			for _, s := range g.Series {
				consider(s.Dates)
			}
		}
	}
	return last, found
}

// MergeFlat appends the rows of newer to older when both are flat tables with
// the same field set. Newer finite values win on overlapping dates.
// It reports false when the shapes differ and a merge would mix fields.
func MergeFlat(older, newer RawHistory) (RawHistory, bool) {
	if older.Kind != KindFlatTable || newer.Kind != KindFlatTable {
		return RawHistory{}, false
	}
	if len(older.Fields) != len(newer.Fields) {
		return RawHistory{}, false
	}
	for _, f := range older.Fields {
		if _, ok := newer.Field(f.Name); !ok {
			return RawHistory{}, false
		}
	}

	merged := make([]Series, len(older.Fields))
	for i, f := range older.Fields {
		nf, _ := newer.Field(f.Name)
		a := NewSeries(f.Name, older.Dates, f.Values)
		b := NewSeries(f.Name, newer.Dates, nf.Values)
		merged[i] = a.Append(b)
	}
	frame := OuterJoin(merged...)
	fields := make([]Field, len(frame.Columns))
	for j, name := range frame.Columns {
		fields[j] = Field{Name: name, Values: frame.ColumnAt(j)}
	}
	return NewFlatTable(frame.Dates, fields...), true
}

func anyFinite(values []float64) bool {
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			return true
		}
	}
	return false
}
