// Package codec reads and writes single-spectrum files: a small fixed
// header, a BLAKE3 digest and a CBOR body compressed with zstd or lz4.
package codec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/franz/speclib/internal/meta"
	"github.com/franz/speclib/internal/spectrum"
	"github.com/franz/speclib/internal/util"
	"github.com/sourcegraph/conc/pool"
)

// Options configures a Codec
type Options struct {
	Compression Compression
	Workers     int               // Parallel decodes per batch, 0 = GOMAXPROCS
	Retry       *util.RetryConfig // File I/O retry policy, nil = local disk defaults
}

// Codec persists spectra as individual files
type Codec struct {
	compression Compression
	workers     int
	retry       *util.RetryConfig
}

// New creates a Codec
func New(opts Options) *Codec {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	retry := opts.Retry
	if retry == nil {
		retry = util.DefaultRetryConfig()
	}
	return &Codec{compression: opts.Compression, workers: workers, retry: retry}
}

// Serialize writes s to path and returns its intrinsic metadata. Without
// overwrite an existing file is left alone and ErrCollision is returned.
func (c *Codec) Serialize(s *spectrum.Spectrum, path string, overwrite bool) (meta.Map, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	data, err := encode(s, c.compression)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	tmp, err := writeTemp(filepath.Dir(path), data)
	if err != nil {
		return nil, err
	}
	defer util.RetryableRemove(ctx, tmp, c.retry)

	if overwrite {
		if err := util.RetryableRename(ctx, tmp, path, c.retry); err != nil {
			return nil, fmt.Errorf("failed to publish %s: %w", path, err)
		}
	} else {
		err := util.RetryableLink(ctx, tmp, path, c.retry)
		if errors.Is(err, os.ErrExist) {
			return nil, util.Collision(filepath.Base(path))
		}
		if err != nil {
			return nil, fmt.Errorf("failed to publish %s: %w", path, err)
		}
	}

	return s.Metadata.Clone(), nil
}

// ReadFile loads one spectrum file
func (c *Codec) ReadFile(path string) (*spectrum.Spectrum, error) {
	data, err := util.RetryableReadFile(context.Background(), path, c.retry)
	if errors.Is(err, os.ErrNotExist) {
		return nil, util.Fail(util.ErrNotFound, []any{"path", path}, "spectrum file %s is missing", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	s, err := decode(data)
	if err != nil {
		return nil, util.Fail(util.ErrCorrupt, []any{"path", path}, "spectrum file %s is damaged: %v", path, err)
	}
	return s, nil
}

// Deserialize loads paths into one Array. metadata, when given, replaces
// the metadata stored in each file. All files must share one raster.
func (c *Codec) Deserialize(paths []string, metadata []meta.Map, shared bool) (*spectrum.Array, error) {
	if metadata != nil && len(metadata) != len(paths) {
		return nil, util.Precondition("got %d metadata maps for %d files", len(metadata), len(paths))
	}
	if len(paths) == 0 {
		return nil, util.Precondition("no spectrum files to load")
	}

	loaded := make([]*spectrum.Spectrum, len(paths))
	p := pool.New().WithErrors().WithFirstError().WithMaxGoroutines(c.workers)
	for i, path := range paths {
		p.Go(func() error {
			s, err := c.ReadFile(path)
			if err != nil {
				return err
			}
			loaded[i] = s
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	arr, err := spectrum.NewArray(loaded[0].Wavelengths, len(loaded), shared)
	if err != nil {
		return nil, err
	}
	for i, s := range loaded {
		if !spectrum.SameRaster(arr.Wavelengths, s.Wavelengths) {
			arr.Release()
			return nil, util.Fail(util.ErrPrecondition, []any{"path", paths[i]},
				"%s is not on the wavelength raster of %s", paths[i], paths[0])
		}
		if metadata != nil {
			s.Metadata = metadata[i]
		}
		if err := arr.Set(i, s); err != nil {
			arr.Release()
			return nil, err
		}
	}
	return arr, nil
}

// Verify checks that path holds an intact spectrum file
func (c *Codec) Verify(path string) error {
	_, err := c.ReadFile(path)
	return err
}

// IsSpectrumFile reports whether path starts with a spectrum file header
func IsSpectrumFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return false
	}
	_, err = parseHeader(buf)
	return err == nil
}

func writeTemp(dir string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, ".speclib-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	name := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("failed to close %s: %w", name, err)
	}
	return name, nil
}
