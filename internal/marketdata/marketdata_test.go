package marketdata

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lobsim/internal/domain"
)

const sampleCSV = `Date,Open,High,Low,Close,Volume
2024-01-02,187.15,188.44,183.89,185.64,82488700
2024-01-03,184.22,185.88,183.43,184.25,58414500
2024-01-04,182.15,183.09,180.88,181.91,71983600
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadCSV(t *testing.T) {
	p := writeTemp(t, "aapl.csv", sampleCSV)

	s, err := Load(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
	assert.Equal(t, p, s.Source())

	st, err := s.StateAt(1)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Index)
	assert.Equal(t, 184.25, st.Close)
	assert.Equal(t, st.Close, st.Price)
	assert.Equal(t, 58414500.0, st.Volume)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), st.Timestamp)
}

func TestReadCSVHeaderVariants(t *testing.T) {
	bars, err := readCSV(strings.NewReader("timestamp,close\n1700000000,10\n1700000060,11\n"))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 11.0, bars[1].Close)
	assert.Equal(t, 11.0, bars[1].Open)
	assert.Equal(t, int64(1700000060), bars[1].Timestamp.Unix())

	_, err = readCSV(strings.NewReader("date,open\n2024-01-01,1\n"))
	assert.Error(t, err)

	_, err = readCSV(strings.NewReader("date,close\n2024-01-01,abc\n"))
	assert.Error(t, err)

	bars, err = readCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestStateAtOutOfRange(t *testing.T) {
	s := NewSeries("mem", []domain.Bar{{Close: 1}})
	for _, i := range []int{-1, 1, 5} {
		_, err := s.StateAt(i)
		assert.ErrorIs(t, err, domain.ErrOutOfRange, "index %d", i)
	}
}

func TestWithSMA(t *testing.T) {
	bars := make([]domain.Bar, 6)
	for i := range bars {
		bars[i] = domain.Bar{Close: float64(i + 1)}
	}
	base := NewSeries("mem", bars)
	s := base.WithSMA(3, 0, -2)

	_, ok := s.SMA(3, 1)
	assert.False(t, ok, "warm-up")

	v, ok := s.SMA(3, 2)
	require.True(t, ok)
	assert.Equal(t, 2.0, v)

	v, ok = s.SMA(3, 5)
	require.True(t, ok)
	assert.Equal(t, 5.0, v)

	_, ok = s.SMA(5, 5)
	assert.False(t, ok, "window not computed")
	_, ok = base.SMA(3, 5)
	assert.False(t, ok, "receiver unchanged")
	assert.Equal(t, []int{3}, s.Windows())
}

func TestParquetRoundTrip(t *testing.T) {
	bars := []domain.Bar{
		{Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100},
		{Timestamp: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 200},
	}
	p := filepath.Join(t.TempDir(), "bars.parquet")
	require.NoError(t, WriteParquetFile(p, bars))

	s, err := Load(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	got, err := s.Bar(1)
	require.NoError(t, err)
	assert.Equal(t, bars[1], got)
}

func TestLoadUnsupported(t *testing.T) {
	_, err := Load(context.Background(), writeTemp(t, "bars.json", "[]"))
	assert.Error(t, err)

	_, err = Load(context.Background(), "")
	assert.Error(t, err)
}

type memBlob struct {
	objects map[string][]byte
}

func (m *memBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlob) List(context.Context, string) ([]domain.BlobInfo, error) { return nil, nil }

func (m *memBlob) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

func TestLoaderS3(t *testing.T) {
	blob := &memBlob{objects: map[string][]byte{"data/aapl.csv": []byte(sampleCSV)}}
	l := NewLoader(blob, "bars")

	s, err := l.Load(context.Background(), "s3://bars/data/aapl.csv")
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())

	_, err = l.Load(context.Background(), "s3://other/data/aapl.csv")
	assert.Error(t, err)

	_, err = l.Load(context.Background(), "s3://bars/data/missing.csv")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = Load(context.Background(), "s3://bars/data/aapl.csv")
	assert.Error(t, err)
}
