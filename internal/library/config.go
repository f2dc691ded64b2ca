package library

import (
	"context"
	"path/filepath"

	"github.com/franz/speclib/internal/codec"
	"github.com/franz/speclib/internal/meta"
	"github.com/franz/speclib/internal/metrics"
	"github.com/franz/speclib/internal/report"
	"github.com/franz/speclib/internal/spectrum"
	"github.com/franz/speclib/internal/store"
	"github.com/franz/speclib/internal/util"
)

// Flavor selects the database engine behind a library
type Flavor string

const (
	FlavorSQLite   Flavor = "sqlite"
	FlavorPostgres Flavor = "postgres"
)

// Type tags written to the type_id sidecar, one per flavor
const (
	TagSQLite   = "SpectrumLibrarySqlite"
	TagPostgres = "SpectrumLibraryPostgres"
)

// ParseFlavor parses a flavor name; the empty name selects SQLite
func ParseFlavor(name string) (Flavor, error) {
	switch Flavor(name) {
	case "", FlavorSQLite:
		return FlavorSQLite, nil
	case FlavorPostgres:
		return FlavorPostgres, nil
	default:
		return "", util.Fail(util.ErrUnsupported, []any{"flavor", name},
			"unknown library flavor %q (want sqlite or postgres)", name)
	}
}

// TypeTag returns the sidecar tag identifying libraries of flavor f
func (f Flavor) TypeTag() string {
	if f == FlavorPostgres {
		return TagPostgres
	}
	return TagSQLite
}

func (f Flavor) dialect() store.Dialect {
	if f == FlavorPostgres {
		return store.Postgres
	}
	return store.SQLite
}

// Codec persists spectrum payloads as files
type Codec interface {
	// Serialize writes s to path and returns its intrinsic metadata
	Serialize(s *spectrum.Spectrum, path string, overwrite bool) (meta.Map, error)
	// Deserialize loads paths in order, attaching metadata[i] to spectrum i
	Deserialize(paths []string, metadata []meta.Map, shared bool) (*spectrum.Array, error)
}

// verifier is implemented by codecs that can check a file without loading it
type verifier interface {
	Verify(path string) error
}

// PostgresConfig holds connection settings of the postgres flavor
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// CodecConfig holds settings of the built-in file codec
type CodecConfig struct {
	Compression string `mapstructure:"compression"` // none, lz4 or zstd
	Workers     int    `mapstructure:"workers"`     // Parallel decodes, 0 = GOMAXPROCS
}

// Config holds library settings
type Config struct {
	Flavor           Flavor         `mapstructure:"flavor"`
	Postgres         PostgresConfig `mapstructure:"postgres"`
	Codec            CodecConfig    `mapstructure:"codec"`
	NetworkOptimized bool           `mapstructure:"network_optimized"` // Forces network pragmas, otherwise detected

	Metrics   *metrics.Metrics    `mapstructure:"-"`
	Events    *report.EventLogger `mapstructure:"-"`
	FileCodec Codec               `mapstructure:"-"` // Replaces the built-in codec when set
}

// newCodec returns the payload codec for a library rooted at root
func (c *Config) newCodec(root string) (Codec, error) {
	if c.FileCodec != nil {
		return c.FileCodec, nil
	}
	compression, err := codec.ParseCompression(c.Codec.Compression)
	if err != nil {
		return nil, util.Fail(util.ErrPrecondition, []any{"compression", c.Codec.Compression}, "%v", err)
	}
	return codec.New(codec.Options{
		Compression: compression,
		Workers:     c.Codec.Workers,
		Retry:       util.RetryConfigFor(root),
	}), nil
}

// openStore opens the index database of a library rooted at root
func (c *Config) openStore(ctx context.Context, root string) (*store.Store, error) {
	flavor, err := ParseFlavor(string(c.Flavor))
	if err != nil {
		return nil, err
	}

	opts := &store.OpenOptions{Dialect: flavor.dialect()}
	target := filepath.Join(root, indexFile)
	switch flavor {
	case FlavorSQLite:
		opts.NetworkOptimized = c.NetworkOptimized || util.IsNetworkPath(root)
		if opts.NetworkOptimized {
			util.DebugLog("Using network-optimized settings for %s", root)
		}
	case FlavorPostgres:
		if c.Postgres.DSN == "" {
			return nil, util.Precondition("postgres flavor needs a connection string (postgres.dsn)")
		}
		target = c.Postgres.DSN
		opts.MaxOpenConns = c.Postgres.MaxConns
	}

	return store.OpenWithOptions(ctx, target, opts)
}
