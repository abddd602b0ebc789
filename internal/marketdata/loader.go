package marketdata

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/alanyoungcy/lobsim/internal/domain"
)

const s3Scheme = "s3://"

// Loader resolves a data source to a Series. Local paths are read from disk;
// s3://bucket/key sources go through the configured blob reader.
type Loader struct {
	blob   domain.BlobReader
	bucket string
}

// NewLoader returns a loader. blob may be nil, in which case s3:// sources
// fail.
func NewLoader(blob domain.BlobReader, bucket string) *Loader {
	return &Loader{blob: blob, bucket: bucket}
}

// Load reads bars from a local file path. The format is chosen by extension.
func Load(ctx context.Context, source string) (*Series, error) {
	return NewLoader(nil, "").Load(ctx, source)
}

// Load reads source into a Series. The format is chosen by extension: .csv or
// .parquet.
func (l *Loader) Load(ctx context.Context, source string) (*Series, error) {
	if source == "" {
		return nil, fmt.Errorf("marketdata: load: empty source")
	}

	var (
		bars []domain.Bar
		err  error
	)
	if strings.HasPrefix(source, s3Scheme) {
		bars, err = l.loadBlob(ctx, source)
	} else {
		bars, err = loadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("marketdata: load %s: %w", source, err)
	}
	return NewSeries(source, bars), nil
}

func loadFile(p string) ([]domain.Bar, error) {
	switch strings.ToLower(path.Ext(p)) {
	case ".csv":
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return readCSV(f)
	case ".parquet":
		return readParquetFile(p)
	default:
		return nil, fmt.Errorf("unsupported extension %q", path.Ext(p))
	}
}

func (l *Loader) loadBlob(ctx context.Context, source string) ([]domain.Bar, error) {
	if l.blob == nil {
		return nil, fmt.Errorf("object storage is not configured")
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(source, s3Scheme), "/")
	if !ok || key == "" {
		return nil, fmt.Errorf("malformed s3 source")
	}
	if l.bucket != "" && bucket != l.bucket {
		return nil, fmt.Errorf("bucket %q does not match configured bucket %q", bucket, l.bucket)
	}

	rc, err := l.blob.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	switch strings.ToLower(path.Ext(key)) {
	case ".csv":
		return readCSV(rc)
	case ".parquet":
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, err
		}
		return readParquet(bytes.NewReader(data), int64(len(data)))
	default:
		return nil, fmt.Errorf("unsupported extension %q", path.Ext(key))
	}
}
