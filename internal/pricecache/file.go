package pricecache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aristath/etfscope/internal/domain"
)

const csvExt = ".csv"

// fileNameEscaper percent-encodes the characters a ticker may carry that are
// unsafe in a file name. Tickers decodes the stems with url.PathUnescape.
var fileNameEscaper = strings.NewReplacer("%", "%25", "/", "%2F", "\\", "%5C", ":", "%3A")

// FileStore keeps one "<TICKER>.csv" file per ticker in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed cache rooted at dir.
// The directory is created on first save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the cache directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Load reads the cached history for a ticker.
func (s *FileStore) Load(_ context.Context, ticker string) (domain.RawHistory, error) {
	f, err := os.Open(s.path(ticker))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.RawHistory{}, domain.ErrCacheMiss
		}
		return domain.RawHistory{}, fmt.Errorf("%w: %w", domain.ErrCacheRead, err)
	}
	defer f.Close()

	raw, err := DecodeCSV(f)
	if err != nil {
		return domain.RawHistory{}, fmt.Errorf("failed to decode %s: %w", f.Name(), err)
	}
	return raw, nil
}

// Save writes the history atomically, replacing any previous file.
func (s *FileStore) Save(_ context.Context, ticker string, raw domain.RawHistory) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*"+csvExt)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := EncodeCSV(tmp, raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode %s: %w", ticker, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(ticker)); err != nil {
		return fmt.Errorf("failed to replace cache file for %s: %w", ticker, err)
	}
	return nil
}

// Tickers lists the cached tickers in alphabetical order.
func (s *FileStore) Tickers(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list cache directory: %w", err)
	}

	var tickers []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != csvExt {
			continue
		}
		ticker, err := url.PathUnescape(strings.TrimSuffix(name, csvExt))
		if err != nil {
			continue
		}
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	return tickers, nil
}

func (s *FileStore) path(ticker string) string {
	return filepath.Join(s.dir, fileNameEscaper.Replace(ticker)+csvExt)
}
