package pricecache

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/etfscope/internal/domain"
	"github.com/aristath/etfscope/internal/modules/prices"
)

// Compile-time checks that every backend is a price cache
var (
	_ prices.Cache = (*FileStore)(nil)
	_ prices.Cache = (*SQLiteStore)(nil)
	_ prices.Cache = (*S3Store)(nil)
)

const testSchema = `
CREATE TABLE price_cache (
    ticker TEXT PRIMARY KEY,
    data BLOB NOT NULL,
    rows INTEGER NOT NULL DEFAULT 0,
    last_date TEXT,
    updated_at INTEGER NOT NULL
);
`

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	return db
}

// memS3 is an in-memory S3API
type memS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemS3() *memS3 {
	return &memS3{objects: make(map[string][]byte)}
}

func (m *memS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("not found")}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (m *memS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *memS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	bucket := aws.ToString(in.Bucket) + "/"
	for key := range m.objects {
		if len(key) <= len(bucket) || key[:len(bucket)] != bucket {
			continue
		}
		name := key[len(bucket):]
		if prefix := aws.ToString(in.Prefix); len(name) < len(prefix) || name[:len(prefix)] != prefix {
			continue
		}
		out.Contents = append(out.Contents, types.Object{Key: aws.String(name)})
	}
	return out, nil
}

type store interface {
	prices.Cache
	Tickers(ctx context.Context) ([]string, error)
}

func backends(t *testing.T) map[string]store {
	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })

	return map[string]store{
		"file":   NewFileStore(filepath.Join(t.TempDir(), "data")),
		"sqlite": NewSQLiteStore(db),
		"s3":     NewS3StoreWithClient(newMemS3(), "prices", "cache/v1"),
	}
}

func TestStores_MissThenRoundTrip(t *testing.T) {
	ctx := context.Background()
	fixtures := map[string]domain.RawHistory{
		"flat": flatFixture(),
		"grouped": domain.NewGroupedTable(domain.Group{Field: "Close", Series: []domain.Series{
			domain.NewSeries("QQQ", days("2024-01-02", "2024-01-03"), []float64{401.5, 399.1}),
		}}),
		"series": domain.NewSingleSeries(domain.NewSeries("VTI", days("2024-01-02"), []float64{235.2})),
	}

	for name, cache := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := cache.Load(ctx, "SPY")
			assert.ErrorIs(t, err, domain.ErrCacheMiss)

			for kind, raw := range fixtures {
				ticker := "T" + kind
				require.NoError(t, cache.Save(ctx, ticker, raw))

				loaded, err := cache.Load(ctx, ticker)
				require.NoError(t, err)
				assert.Equal(t, raw.Kind, loaded.Kind)
				assert.Equal(t, raw.Rows(), loaded.Rows())

				wantLast, _ := raw.LastDate()
				gotLast, ok := loaded.LastDate()
				require.True(t, ok)
				assert.True(t, wantLast.Equal(gotLast))
			}

			tickers, err := cache.Tickers(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"Tflat", "Tgrouped", "Tseries"}, tickers)
		})
	}
}

func TestStores_TickersKeepSymbolsWithSeparators(t *testing.T) {
	ctx := context.Background()
	for name, cache := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, cache.Save(ctx, "BRK/B", flatFixture()))
			require.NoError(t, cache.Save(ctx, "SPY", flatFixture()))

			tickers, err := cache.Tickers(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"BRK/B", "SPY"}, tickers)
		})
	}
}

func TestStores_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	for name, cache := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, cache.Save(ctx, "SPY", flatFixture()))
			longer := domain.NewFlatTable(days("2024-01-02", "2024-01-03", "2024-01-04"),
				domain.Field{Name: "Close", Values: []float64{1, 2, 3}},
			)
			require.NoError(t, cache.Save(ctx, "SPY", longer))

			loaded, err := cache.Load(ctx, "SPY")
			require.NoError(t, err)
			f, ok := loaded.Field("Close")
			require.True(t, ok)
			assert.Equal(t, []float64{1, 2, 3}, f.Values)
		})
	}
}

func TestFileStore_CorruptFileIsReadError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SPY.csv"), []byte("Date,Close\nnot-a-date,1\n"), 0644))

	_, err := NewFileStore(dir).Load(context.Background(), "SPY")
	assert.ErrorIs(t, err, domain.ErrCacheRead)
}

func TestFileStore_EscapesTicker(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	require.NoError(t, s.Save(context.Background(), "BRK/B", flatFixture()))

	_, err := os.Stat(filepath.Join(dir, "BRK%2FB.csv"))
	assert.NoError(t, err)

	_, err = s.Load(context.Background(), "BRK/B")
	assert.NoError(t, err)
}

func TestFileStore_TickersRoundTripEscapedNames(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	ctx := context.Background()
	for _, ticker := range []string{"BRK/B", "BRK_B", "EUR:USD", "SPY"} {
		require.NoError(t, s.Save(ctx, ticker, flatFixture()))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad%zz.csv"), []byte("Date,Close\n"), 0644))

	tickers, err := s.Tickers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"BRK/B", "BRK_B", "EUR:USD", "SPY"}, tickers)

	for _, ticker := range tickers {
		_, err := s.Load(ctx, ticker)
		assert.NoError(t, err, ticker)
	}
}

func TestSQLiteStore_CorruptBlobIsReadError(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	_, err := db.Exec("INSERT INTO price_cache (ticker, data, rows, updated_at) VALUES (?, ?, 0, 0)", "SPY", []byte{0xc1, 0x00})
	require.NoError(t, err)

	_, err = NewSQLiteStore(db).Load(context.Background(), "SPY")
	assert.ErrorIs(t, err, domain.ErrCacheRead)
}

func TestSQLiteStore_TracksMetadataAndDeletes(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	s := NewSQLiteStore(db)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "SPY", flatFixture()))

	var rows int
	var lastDate string
	var updatedAt int64
	err := db.QueryRow("SELECT rows, last_date, updated_at FROM price_cache WHERE ticker = 'SPY'").Scan(&rows, &lastDate, &updatedAt)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
	assert.Equal(t, "2024-01-03", lastDate)
	assert.Equal(t, int64(1700000000), updatedAt)

	require.NoError(t, s.Delete(ctx, "SPY"))
	_, err = s.Load(ctx, "SPY")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestBlob_PreservesNaN(t *testing.T) {
	data, err := marshalBlob(flatFixture())
	require.NoError(t, err)

	raw, err := unmarshalBlob(data)
	require.NoError(t, err)
	closes, _ := raw.Field("Close")
	assert.Equal(t, 472.65, closes.Values[0])
	assert.True(t, closes.Values[1] != closes.Values[1], "NaN survives encoding")
	assert.Equal(t, days("2024-01-02", "2024-01-03"), raw.Dates)
}

func TestS3Store_Key(t *testing.T) {
	s := NewS3StoreWithClient(newMemS3(), "bucket", "/cache/")
	assert.Equal(t, "cache/SPY.csv", s.key("SPY"))

	s = NewS3StoreWithClient(newMemS3(), "bucket", "")
	assert.Equal(t, "SPY.csv", s.key("SPY"))
	assert.Equal(t, "BRK%2FB.csv", s.key("BRK/B"))
}
