package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"backsim/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for bar data. Prices are stored as float64;
// precision-sensitive arithmetic happens on decimals after loading.
type BarRecord struct {
	Symbol      string  `parquet:"symbol"`
	Timestamp   int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open        float64 `parquet:"open"`
	High        float64 `parquet:"high"`
	Low         float64 `parquet:"low"`
	Close       float64 `parquet:"close"`
	Volume      float64 `parquet:"volume"`
	QuoteVolume float64 `parquet:"quote_volume"`
	TradeCount  int64   `parquet:"trade_count"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files organized by venue, timeframe,
// symbol, and year. Each combination produces a separate file at:
//
//	<DataDir>/<venue>/<timeframe>/<SYMBOL>/<YYYY>.parquet
//
// Existing records in a file are merged with the incoming batch, newest
// winning on (symbol, timestamp) collisions.
func (s *ParquetStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		pair domain.TradingPair
		tf   domain.Timeframe
		year int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{pair: b.Pair, tf: b.Timeframe, year: b.Timestamp.Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:      b.Pair.Compact(),
			Timestamp:   b.Timestamp.UnixMilli(),
			Open:        b.Open.InexactFloat64(),
			High:        b.High.InexactFloat64(),
			Low:         b.Low.InexactFloat64(),
			Close:       b.Close.InexactFloat64(),
			Volume:      b.Volume.InexactFloat64(),
			QuoteVolume: b.QuoteVolume.InexactFloat64(),
			TradeCount:  b.TradeCount,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.pair, k.tf, k.year)

		// Read existing records to merge.
		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.pair.Compact(), k.year, err)
		}
	}
	return nil
}

// ReadBars reads bar data from Parquet files for the given pair, timeframe,
// and time range. Year files that do not exist are skipped.
func (s *ParquetStore) ReadBars(_ context.Context, pair domain.TradingPair, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.Year(); year <= end.Year(); year++ {
		path := s.barPath(pair, tf, year)

		records, err := readParquetFile[BarRecord](path)
		if err != nil {
			continue
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			bars = append(bars, domain.Bar{
				Pair:        pair,
				Timeframe:   tf,
				Timestamp:   ts,
				Open:        decimal.NewFromFloat(r.Open),
				High:        decimal.NewFromFloat(r.High),
				Low:         decimal.NewFromFloat(r.Low),
				Close:       decimal.NewFromFloat(r.Close),
				Volume:      decimal.NewFromFloat(r.Volume),
				QuoteVolume: decimal.NewFromFloat(r.QuoteVolume),
				TradeCount:  r.TradeCount,
			})
		}
	}

	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	return bars, nil
}

// ListPairs lists all compact symbols that have bar data for the venue and
// timeframe.
func (s *ParquetStore) ListPairs(_ context.Context, venue string, tf domain.Timeframe) ([]string, error) {
	dir := filepath.Join(s.DataDir, venue, tf.String())
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// Path and file helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<venue>/<timeframe>/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(pair domain.TradingPair, tf domain.Timeframe, year int) string {
	return filepath.Join(s.DataDir, pair.Venue, tf.String(), pair.Compact(), fmt.Sprintf("%d.parquet", year))
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// incoming records over existing ones. Results are sorted by timestamp.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
