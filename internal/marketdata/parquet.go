package marketdata

import (
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/alanyoungcy/lobsim/internal/domain"
)

// BarRecord is the Parquet schema for bar files.
type BarRecord struct {
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

func readParquetFile(path string) ([]domain.Bar, error) {
	rows, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return nil, err
	}
	return recordsToBars(rows), nil
}

func readParquet(r io.ReaderAt, size int64) ([]domain.Bar, error) {
	rows, err := parquet.Read[BarRecord](r, size)
	if err != nil {
		return nil, err
	}
	return recordsToBars(rows), nil
}

// WriteParquetFile stores bars in the layout readParquetFile expects.
func WriteParquetFile(path string, bars []domain.Bar) error {
	rows := make([]BarRecord, len(bars))
	for i, b := range bars {
		rows[i] = BarRecord{
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	return parquet.WriteFile(path, rows)
}

func recordsToBars(rows []BarRecord) []domain.Bar {
	bars := make([]domain.Bar, len(rows))
	for i, r := range rows {
		bars[i] = domain.Bar{
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		}
	}
	return bars
}
