package pricecache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/etfscope/internal/domain"
)

const blobVersion = 1

// blob is the msgpack layout of a cached raw history. Dates are unix seconds
// so they decode back to UTC calendar days.
type blob struct {
	Version int         `msgpack:"v"`
	Kind    int         `msgpack:"k"`
	Name    string      `msgpack:"n,omitempty"`
	Dates   []int64     `msgpack:"d,omitempty"`
	Values  []float64   `msgpack:"x,omitempty"`
	Fields  []blobField `msgpack:"f,omitempty"`
	Groups  []blobGroup `msgpack:"g,omitempty"`
}

type blobField struct {
	Name   string    `msgpack:"n"`
	Values []float64 `msgpack:"x"`
}

type blobGroup struct {
	Field  string       `msgpack:"f"`
	Series []blobSeries `msgpack:"s"`
}

type blobSeries struct {
	Name   string    `msgpack:"n"`
	Dates  []int64   `msgpack:"d"`
	Values []float64 `msgpack:"x"`
}

// SQLiteStore keeps msgpack-encoded histories in the price_cache table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a store over a database migrated with the cache schema.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Load reads the cached history for a ticker.
func (s *SQLiteStore) Load(ctx context.Context, ticker string) (domain.RawHistory, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM price_cache WHERE ticker = ?", ticker).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RawHistory{}, domain.ErrCacheMiss
	}
	if err != nil {
		return domain.RawHistory{}, fmt.Errorf("%w: failed to query price_cache: %w", domain.ErrCacheRead, err)
	}

	raw, err := unmarshalBlob(data)
	if err != nil {
		return domain.RawHistory{}, fmt.Errorf("%w: %s: %w", domain.ErrCacheRead, ticker, err)
	}
	return raw, nil
}

// Save upserts the history for a ticker.
func (s *SQLiteStore) Save(ctx context.Context, ticker string, raw domain.RawHistory) error {
	data, err := marshalBlob(raw)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", ticker, err)
	}

	var lastDate interface{}
	if last, ok := raw.LastDate(); ok {
		lastDate = last.Format(domain.DateLayout)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO price_cache (ticker, data, rows, last_date, updated_at) VALUES (?, ?, ?, ?, ?)",
		ticker, data, raw.Rows(), lastDate, s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store %s in price_cache: %w", ticker, err)
	}
	return nil
}

// Tickers lists the cached tickers in alphabetical order.
func (s *SQLiteStore) Tickers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT ticker FROM price_cache ORDER BY ticker")
	if err != nil {
		return nil, fmt.Errorf("failed to list price_cache: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

// Delete removes a ticker from the cache.
func (s *SQLiteStore) Delete(ctx context.Context, ticker string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM price_cache WHERE ticker = ?", ticker); err != nil {
		return fmt.Errorf("failed to delete %s from price_cache: %w", ticker, err)
	}
	return nil
}

func marshalBlob(raw domain.RawHistory) ([]byte, error) {
	b := blob{Version: blobVersion, Kind: int(raw.Kind)}
	switch raw.Kind {
	case domain.KindSingleSeries:
		b.Name = raw.Series.Name
		b.Dates = unixDays(raw.Series.Dates)
		b.Values = raw.Series.Values
	case domain.KindFlatTable:
		b.Dates = unixDays(raw.Dates)
		for _, f := range raw.Fields {
			b.Fields = append(b.Fields, blobField{Name: f.Name, Values: f.Values})
		}
	case domain.KindGroupedTable:
		for _, g := range raw.Groups {
			bg := blobGroup{Field: g.Field}
			for _, s := range g.Series {
				bg.Series = append(bg.Series, blobSeries{Name: s.Name, Dates: unixDays(s.Dates), Values: s.Values})
			}
			b.Groups = append(b.Groups, bg)
		}
	default:
		return nil, fmt.Errorf("cannot encode raw history of kind %s", raw.Kind)
	}
	return msgpack.Marshal(&b)
}

func unmarshalBlob(data []byte) (domain.RawHistory, error) {
	var b blob
	if err := msgpack.Unmarshal(data, &b); err != nil {
		return domain.RawHistory{}, fmt.Errorf("failed to decode blob: %w", err)
	}
	if b.Version != blobVersion {
		return domain.RawHistory{}, fmt.Errorf("unsupported blob version %d", b.Version)
	}

	switch domain.RawKind(b.Kind) {
	case domain.KindSingleSeries:
		return domain.NewSingleSeries(domain.NewSeries(b.Name, fromUnixDays(b.Dates), b.Values)), nil
	case domain.KindFlatTable:
		fields := make([]domain.Field, len(b.Fields))
		for i, f := range b.Fields {
			if len(f.Values) != len(b.Dates) {
				return domain.RawHistory{}, fmt.Errorf("field %q has %d values for %d dates", f.Name, len(f.Values), len(b.Dates))
			}
			fields[i] = domain.Field{Name: f.Name, Values: f.Values}
		}
		return domain.NewFlatTable(fromUnixDays(b.Dates), fields...), nil
	case domain.KindGroupedTable:
		groups := make([]domain.Group, len(b.Groups))
		for i, g := range b.Groups {
			groups[i] = domain.Group{Field: g.Field}
			for _, s := range g.Series {
				groups[i].Series = append(groups[i].Series, domain.NewSeries(s.Name, fromUnixDays(s.Dates), s.Values))
			}
		}
		return domain.NewGroupedTable(groups...), nil
	}
	return domain.RawHistory{}, fmt.Errorf("unknown raw kind %d", b.Kind)
}

func unixDays(dates []time.Time) []int64 {
	out := make([]int64, len(dates))
	for i, d := range dates {
		out[i] = domain.Day(d).Unix()
	}
	return out
}

func fromUnixDays(values []int64) []time.Time {
	out := make([]time.Time, len(values))
	for i, v := range values {
		out[i] = time.Unix(v, 0).UTC()
	}
	return out
}
