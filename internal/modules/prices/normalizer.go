package prices

import (
	"fmt"

	"github.com/aristath/etfscope/internal/domain"
)

// Field names providers use for closing prices.
const (
	FieldAdjustedClose           = "Adjusted Close"
	FieldAdjustedCloseUnderscore = "Adjusted_Close"
	FieldClose                   = "Close"
)

// flatPreference is the selection order for flat tables. Adjusted close always
// wins over raw close; "Adj Close"/"Adj_Close" are the yfinance spellings.
var flatPreference = []string{
	FieldAdjustedClose,
	"Adj Close",
	FieldAdjustedCloseUnderscore,
	"Adj_Close",
	FieldClose,
}

// groupedFields are the first-level labels accepted in grouped tables.
var groupedFields = map[string]bool{
	FieldAdjustedClose:           true,
	FieldClose:                   true,
	FieldAdjustedCloseUnderscore: true,
	"Adj Close":                  true,
	"Adj_Close":                  true,
}

// Normalize selects the best available closing-price column of a raw history
// and labels it with the ticker symbol.
//
// Bare series are used directly. Flat tables prefer adjusted close, then the
// underscore spelling, then raw close. Grouped tables take the first group whose
// label is a closing-price field and use its first sub-series.
func Normalize(raw domain.RawHistory, ticker string) (domain.Series, error) {
	switch raw.Kind {
	case domain.KindSingleSeries:
		return raw.Series.Rename(ticker), nil

	case domain.KindFlatTable:
		for _, name := range flatPreference {
			if f, ok := raw.Field(name); ok {
				return domain.NewSeries(ticker, raw.Dates, f.Values), nil
			}
		}

	case domain.KindGroupedTable:
		for _, g := range raw.Groups {
			if !groupedFields[g.Field] || len(g.Series) == 0 {
				continue
			}
			return g.Series[0].Rename(ticker), nil
		}
	}

	return domain.Series{}, fmt.Errorf("%w for %s (%s table, fields %v)",
		domain.ErrNormalization, ticker, raw.Kind, raw.FieldNames())
}
