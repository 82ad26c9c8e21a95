// Package pricecache persists raw price histories, one entry per ticker.
// Entries live in a CSV directory, a SQLite table or an S3 bucket.
package pricecache

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/etfscope/internal/domain"
)

const (
	indexHeader    = "Date"
	groupSeparator = "|"
)

// priceFields are the column names a one-column file is read back as a flat
// table for; any other lone column is a bare series.
var priceFields = map[string]bool{
	"Adjusted Close": true,
	"Adj Close":      true,
	"Adjusted_Close": true,
	"Adj_Close":      true,
	"Close":          true,
}

// EncodeCSV writes a raw history as a CSV table indexed by date.
// Grouped tables use "Field|Ticker" column headers; missing values are empty cells.
func EncodeCSV(w io.Writer, raw domain.RawHistory) error {
	var (
		dates   []time.Time
		headers []string
		columns [][]float64
	)

	switch raw.Kind {
	case domain.KindSingleSeries:
		dates = raw.Series.Dates
		headers = []string{raw.Series.Name}
		columns = [][]float64{raw.Series.Values}

	case domain.KindFlatTable:
		dates = raw.Dates
		for _, f := range raw.Fields {
			headers = append(headers, f.Name)
			columns = append(columns, f.Values)
		}

	case domain.KindGroupedTable:
		var series []domain.Series
		for _, g := range raw.Groups {
			for _, s := range g.Series {
				series = append(series, s.Rename(g.Field+groupSeparator+s.Name))
			}
		}
		frame := domain.OuterJoin(series...)
		dates = frame.Dates
		headers = frame.Columns
		for j := range frame.Columns {
			columns = append(columns, frame.ColumnAt(j))
		}

	default:
		return fmt.Errorf("cannot encode raw history of kind %s", raw.Kind)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{indexHeader}, headers...)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(headers)+1)
	for i, d := range dates {
		record[0] = d.Format(domain.DateLayout)
		for j, col := range columns {
			record[j+1] = formatValue(col, i)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// DecodeCSV reads a table written by EncodeCSV. Any malformed content is
// reported as domain.ErrCacheRead.
func DecodeCSV(r io.Reader) (domain.RawHistory, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return domain.RawHistory{}, fmt.Errorf("%w: %w", domain.ErrCacheRead, err)
	}
	if len(records) == 0 || len(records[0]) < 2 {
		return domain.RawHistory{}, fmt.Errorf("%w: missing header", domain.ErrCacheRead)
	}

	headers := records[0][1:]
	dates := make([]time.Time, 0, len(records)-1)
	columns := make([][]float64, len(headers))
	for i, rec := range records[1:] {
		if len(rec) != len(headers)+1 {
			return domain.RawHistory{}, fmt.Errorf("%w: row %d has %d cells, want %d", domain.ErrCacheRead, i+2, len(rec), len(headers)+1)
		}
		d, err := domain.ParseDay(strings.TrimSpace(rec[0]))
		if err != nil {
			return domain.RawHistory{}, fmt.Errorf("%w: row %d: %w", domain.ErrCacheRead, i+2, err)
		}
		dates = append(dates, d)
		for j, cell := range rec[1:] {
			v, err := parseValue(cell)
			if err != nil {
				return domain.RawHistory{}, fmt.Errorf("%w: row %d column %q: %w", domain.ErrCacheRead, i+2, headers[j], err)
			}
			columns[j] = append(columns[j], v)
		}
	}

	if isGrouped(headers) {
		return decodeGrouped(headers, dates, columns)
	}
	if len(headers) == 1 && !priceFields[headers[0]] {
		return domain.NewSingleSeries(domain.NewSeries(headers[0], dates, columns[0])), nil
	}

	fields := make([]domain.Field, len(headers))
	for j, h := range headers {
		fields[j] = domain.Field{Name: h, Values: columns[j]}
	}
	return domain.NewFlatTable(dates, fields...), nil
}

// MarshalCSV is EncodeCSV into a byte slice.
func MarshalCSV(raw domain.RawHistory) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeCSV(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isGrouped(headers []string) bool {
	for _, h := range headers {
		if !strings.Contains(h, groupSeparator) {
			return false
		}
	}
	return true
}

func decodeGrouped(headers []string, dates []time.Time, columns [][]float64) (domain.RawHistory, error) {
	var groups []domain.Group
	index := make(map[string]int)
	for j, h := range headers {
		field, ticker, _ := strings.Cut(h, groupSeparator)
		if field == "" || ticker == "" {
			return domain.RawHistory{}, fmt.Errorf("%w: malformed grouped header %q", domain.ErrCacheRead, h)
		}
		gi, ok := index[field]
		if !ok {
			gi = len(groups)
			index[field] = gi
			groups = append(groups, domain.Group{Field: field})
		}
		groups[gi].Series = append(groups[gi].Series, domain.NewSeries(ticker, dates, columns[j]).DropNaN())
	}
	return domain.NewGroupedTable(groups...), nil
}

func formatValue(col []float64, i int) string {
	if i >= len(col) || math.IsNaN(col[i]) {
		return ""
	}
	return strconv.FormatFloat(col[i], 'f', -1, 64)
}

func parseValue(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(cell, 64)
}
