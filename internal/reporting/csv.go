// Package reporting writes analysis results as CSV tables for external tools.
package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/aristath/etfscope/internal/domain"
	"github.com/aristath/etfscope/internal/modules/analysis"
	"github.com/aristath/etfscope/internal/modules/analytics"
)

// Report file names.
const (
	FilePrices            = "prices.csv"
	FileReturns           = "returns.csv"
	FileMetrics           = "metrics.csv"
	FileSimulation        = "simulation.csv"
	FileCorrelation       = "correlation.csv"
	FileRollingVolatility = "rolling_volatility.csv"
)

// Writer writes report files into one directory.
type Writer struct {
	dir string
	log zerolog.Logger
}

// NewWriter creates a report writer. The directory is created on first write.
func NewWriter(dir string, log zerolog.Logger) *Writer {
	return &Writer{
		dir: dir,
		log: log.With().Str("component", "reporting").Logger(),
	}
}

// Write stores every table of an analysis result and returns the paths written.
// Tables the run did not produce are skipped.
func (w *Writer) Write(res *analysis.Result) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	type table struct {
		name  string
		write func(io.Writer) error
	}
	tables := []table{
		{FilePrices, func(out io.Writer) error { return WriteFrame(out, res.Prices) }},
		{FileReturns, func(out io.Writer) error { return WriteFrame(out, res.Returns) }},
		{FileMetrics, func(out io.Writer) error { return WriteMetrics(out, res.Metrics) }},
		{FileRollingVolatility, func(out io.Writer) error { return WriteFrame(out, res.RollingVolatility) }},
	}
	if res.Correlation != nil {
		tables = append(tables, table{FileCorrelation, func(out io.Writer) error { return WriteMatrix(out, res.Correlation) }})
	}
	if res.Simulation != nil {
		tables = append(tables, table{FileSimulation, func(out io.Writer) error { return WriteSimulation(out, res.Simulation) }})
	}

	var paths []string
	for _, t := range tables {
		path := filepath.Join(w.dir, t.name)
		if err := writeFile(path, t.write); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	w.log.Info().Str("dir", w.dir).Int("files", len(paths)).Str("run_id", res.RunID).Msg("Reports written")
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

// WriteFrame writes a date-indexed table with a leading Date column.
func WriteFrame(out io.Writer, f *domain.Frame) error {
	cw := csv.NewWriter(out)
	header := append([]string{"Date"}, f.Columns...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, d := range f.Dates {
		record := make([]string, 0, len(header))
		record = append(record, d.Format(domain.DateLayout))
		for _, v := range f.Values[i] {
			record = append(record, FormatFloat(v))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMetrics writes one row per ticker.
func WriteMetrics(out io.Writer, m *domain.MetricsTable) error {
	cw := csv.NewWriter(out)
	if err := cw.Write([]string{"Ticker", "AnnualizedReturn", "AnnualizedVolatility", "Sharpe", "MaxDrawdown"}); err != nil {
		return err
	}
	for _, r := range m.Rows {
		err := cw.Write([]string{
			r.Ticker,
			FormatFloat(r.AnnualizedReturn),
			FormatFloat(r.AnnualizedVolatility),
			FormatFloat(r.Sharpe),
			FormatFloat(r.MaxDrawdown),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSimulation writes the sampled portfolios with one weight column per ticker.
func WriteSimulation(out io.Writer, s *domain.SimulationResults) error {
	cw := csv.NewWriter(out)
	header := []string{"Return", "Volatility", "Sharpe"}
	for _, t := range s.Tickers {
		header = append(header, "w_"+t)
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range s.Rows {
		record := []string{FormatFloat(r.Return), FormatFloat(r.Volatility), FormatFloat(r.Sharpe)}
		for _, w := range r.Weights {
			record = append(record, FormatFloat(w))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMatrix writes a labeled square matrix.
func WriteMatrix(out io.Writer, m *analytics.Matrix) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(append([]string{"Ticker"}, m.Labels...)); err != nil {
		return err
	}
	for i, row := range m.Values {
		record := []string{m.Labels[i]}
		for _, v := range row {
			record = append(record, FormatFloat(v))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatFloat renders a number for CSV output. NaN becomes an empty cell.
func FormatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return ""
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
