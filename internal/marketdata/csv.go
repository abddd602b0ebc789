package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/lobsim/internal/domain"
)

var timeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"01/02/2006",
}

// csvColumns maps a lower-cased header to its index.
type csvColumns map[string]int

func (c csvColumns) find(names ...string) (int, bool) {
	for _, n := range names {
		if i, ok := c[n]; ok {
			return i, true
		}
	}
	return -1, false
}

// readCSV parses OHLCV rows. Headers are matched case-insensitively; the
// timestamp column may be named date, datetime, timestamp or time. Close is
// required, the other price columns default to close and volume to zero.
func readCSV(r io.Reader) ([]domain.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(csvColumns, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	closeIdx, ok := cols.find("close", "adj close", "adj_close")
	if !ok {
		return nil, fmt.Errorf("missing close column in header %v", header)
	}
	tsIdx, hasTS := cols.find("date", "datetime", "timestamp", "time")
	openIdx, hasOpen := cols.find("open")
	highIdx, hasHigh := cols.find("high")
	lowIdx, hasLow := cols.find("low")
	volIdx, hasVol := cols.find("volume")

	var bars []domain.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		field := func(i int) string {
			if i < 0 || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		closePx, err := strconv.ParseFloat(field(closeIdx), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: close: %w", line, err)
		}
		b := domain.Bar{Open: closePx, High: closePx, Low: closePx, Close: closePx}

		if hasTS {
			if b.Timestamp, err = parseTime(field(tsIdx)); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		for _, f := range []struct {
			ok  bool
			idx int
			dst *float64
			nm  string
		}{
			{hasOpen, openIdx, &b.Open, "open"},
			{hasHigh, highIdx, &b.High, "high"},
			{hasLow, lowIdx, &b.Low, "low"},
			{hasVol, volIdx, &b.Volume, "volume"},
		} {
			if !f.ok || field(f.idx) == "" {
				continue
			}
			v, err := strconv.ParseFloat(field(f.idx), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, f.nm, err)
			}
			*f.dst = v
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
