package library

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/franz/speclib/internal/meta"
	"github.com/franz/speclib/internal/spectrum"
	"github.com/franz/speclib/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLibrary(t *testing.T) *Library {
	t.Helper()
	lib, err := Create(context.Background(), filepath.Join(t.TempDir(), "L"), Config{})
	require.NoError(t, err)
	t.Cleanup(func() { lib.Close() })
	return lib
}

// postgresConfig returns a postgres flavor config, skipping the test
// unless a server is configured
func postgresConfig(t *testing.T) Config {
	t.Helper()
	dsn := os.Getenv("SPECLIB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SPECLIB_TEST_POSTGRES_DSN not set")
	}
	return Config{Flavor: FlavorPostgres, Postgres: PostgresConfig{DSN: dsn}}
}

func testSpectrum(scale float64, m meta.Map) *spectrum.Spectrum {
	return &spectrum.Spectrum{
		Wavelengths: []float64{5000, 5001, 5002, 5003},
		Values:      []float64{1 * scale, 2 * scale, 3 * scale, 4 * scale},
		ValueErrors: []float64{0.1, 0.1, 0.2, 0.2},
		Metadata:    m,
	}
}

func TestParseFlavor(t *testing.T) {
	testCases := []struct {
		name    string
		want    Flavor
		wantErr bool
	}{
		{"", FlavorSQLite, false},
		{"sqlite", FlavorSQLite, false},
		{"postgres", FlavorPostgres, false},
		{"mysql", "", true},
	}
	for _, tc := range testCases {
		got, err := ParseFlavor(tc.name)
		if tc.wantErr {
			assert.ErrorIs(t, err, util.ErrUnsupported, tc.name)
			continue
		}
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, got)
	}
	assert.Equal(t, TagSQLite, FlavorSQLite.TypeTag())
	assert.Equal(t, TagPostgres, FlavorPostgres.TypeTag())
}

func TestCreateWritesLayout(t *testing.T) {
	lib := newTestLibrary(t)

	tag, err := os.ReadFile(filepath.Join(lib.Path(), "type_id"))
	require.NoError(t, err)
	assert.Equal(t, "SpectrumLibrarySqlite", string(tag))

	token, err := os.ReadFile(filepath.Join(lib.Path(), "unique_id"))
	require.NoError(t, err)
	assert.Equal(t, lib.UniqueID(), string(token))
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), lib.UniqueID())

	assert.FileExists(t, filepath.Join(lib.Path(), "index.db"))
	assert.Equal(t, TagSQLite, lib.TypeTag())
	assert.Positive(t, lib.ID())
}

func TestCreatePreconditions(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	existing := filepath.Join(root, "taken")
	require.NoError(t, os.Mkdir(existing, 0755))
	_, err := Create(ctx, existing, Config{})
	assert.ErrorIs(t, err, util.ErrPrecondition)

	orphan := filepath.Join(root, "missing", "L")
	_, err = Create(ctx, orphan, Config{})
	assert.ErrorIs(t, err, util.ErrPrecondition)
	assert.NoDirExists(t, filepath.Join(root, "missing"))

	_, err = Create(ctx, filepath.Join(root, "L"), Config{Codec: CodecConfig{Compression: "brotli"}})
	assert.ErrorIs(t, err, util.ErrPrecondition)
	assert.NoDirExists(t, filepath.Join(root, "L"))
}

func TestCreateCleansUpOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "L")

	// The postgres flavor cannot connect without a DSN
	_, err := Create(context.Background(), path, Config{Flavor: FlavorPostgres})
	assert.ErrorIs(t, err, util.ErrPrecondition)
	assert.NoDirExists(t, path)
}

func TestOpenRoundTrip(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)
	path, token, id := lib.Path(), lib.UniqueID(), lib.ID()

	_, err := lib.InsertOne(ctx, testSpectrum(1, nil), "a.dat", meta.Map{"Teff": meta.Num(5000)}, InsertOptions{})
	require.NoError(t, err)
	require.NoError(t, lib.Close())

	reopened, err := Open(ctx, path, Config{})
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, token, reopened.UniqueID())
	assert.Equal(t, id, reopened.ID())

	records, err := reopened.Search(ctx, meta.Query{"Teff": meta.Exact(meta.Num(5000))})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a.dat", records[0].Filename)
}

func TestOpenFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("missing path", func(t *testing.T) {
		_, err := Open(ctx, filepath.Join(t.TempDir(), "nope"), Config{})
		assert.ErrorIs(t, err, util.ErrNotFound)
	})

	t.Run("missing type_id", func(t *testing.T) {
		lib := newTestLibrary(t)
		lib.Close()
		require.NoError(t, os.Remove(filepath.Join(lib.Path(), "type_id")))
		_, err := Open(ctx, lib.Path(), Config{})
		assert.ErrorIs(t, err, util.ErrCorrupt)
	})

	t.Run("missing unique_id", func(t *testing.T) {
		lib := newTestLibrary(t)
		lib.Close()
		require.NoError(t, os.Remove(filepath.Join(lib.Path(), "unique_id")))
		_, err := Open(ctx, lib.Path(), Config{})
		assert.ErrorIs(t, err, util.ErrCorrupt)
	})

	t.Run("missing index", func(t *testing.T) {
		lib := newTestLibrary(t)
		lib.Close()
		for _, name := range []string{"index.db", "index.db-wal", "index.db-shm"} {
			os.Remove(filepath.Join(lib.Path(), name))
		}
		_, err := Open(ctx, lib.Path(), Config{})
		assert.ErrorIs(t, err, util.ErrCorrupt)
	})

	t.Run("flavor mismatch", func(t *testing.T) {
		lib := newTestLibrary(t)
		lib.Close()
		require.NoError(t, os.WriteFile(filepath.Join(lib.Path(), "type_id"), []byte(TagPostgres), 0644))
		_, err := Open(ctx, lib.Path(), Config{})
		assert.ErrorIs(t, err, util.ErrPrecondition)
	})

	t.Run("unregistered library", func(t *testing.T) {
		lib := newTestLibrary(t)
		lib.Close()
		require.NoError(t, os.WriteFile(filepath.Join(lib.Path(), "unique_id"), []byte("0123456789abcdef"), 0644))
		_, err := Open(ctx, lib.Path(), Config{})
		assert.ErrorIs(t, err, util.ErrNotFound)
	})

	t.Run("plain file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
		_, err := Open(ctx, path, Config{})
		assert.ErrorIs(t, err, util.ErrPrecondition)
	})
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)
	path := lib.Path()

	_, err := lib.Insert(ctx,
		[]*spectrum.Spectrum{testSpectrum(1, nil), testSpectrum(2, nil)},
		[]string{"a.dat", "b.dat"}, nil, InsertOptions{Origin: "ting"})
	require.NoError(t, err)

	require.NoError(t, lib.Purge(ctx))
	assert.NoDirExists(t, path)

	_, err = lib.List(ctx)
	assert.ErrorIs(t, err, util.ErrPrecondition, "purged handle must be unusable")

	_, err = Open(ctx, path, Config{})
	assert.ErrorIs(t, err, util.ErrNotFound)

	again, err := Create(ctx, path, Config{})
	require.NoError(t, err)
	defer again.Close()
	records, err := again.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestPurgeKeepsForeignFiles(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)
	path := lib.Path()

	_, err := lib.InsertOne(ctx, testSpectrum(1, nil), "a.dat", nil, InsertOptions{})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(path, "notes.txt"), []byte("keep"), 0644))

	require.NoError(t, lib.Purge(ctx))

	assert.FileExists(t, filepath.Join(path, "notes.txt"))
	for _, name := range []string{"a.dat", "type_id", "unique_id", "index.db"} {
		assert.NoFileExists(t, filepath.Join(path, name))
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	lib := newTestLibrary(t)
	assert.NoError(t, lib.Close())
	assert.NoError(t, lib.Close())

	_, err := lib.Search(context.Background(), nil)
	assert.ErrorIs(t, err, util.ErrPrecondition)
}

func TestCleanFilename(t *testing.T) {
	testCases := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"a.dat", "a.dat", false},
		{"  b.dat ", "b.dat", false},
		{"", "", true},
		{"..", "", true},
		{"sub/a.dat", "", true},
		{`sub\a.dat`, "", true},
		{"type_id", "", true},
		{"unique_id", "", true},
		{"index.db-wal", "", true},
		{".speclib-123.tmp", "", true},
	}
	for _, tc := range testCases {
		got, err := cleanFilename(tc.name)
		if tc.wantErr {
			assert.ErrorIs(t, err, util.ErrPrecondition, "filename %q", tc.name)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestPostgresLibraries(t *testing.T) {
	cfg := postgresConfig(t)
	ctx := context.Background()
	root := t.TempDir()

	first, err := Create(ctx, filepath.Join(root, "L1"), cfg)
	require.NoError(t, err)
	second, err := Create(ctx, filepath.Join(root, "L2"), cfg)
	require.NoError(t, err)
	defer first.Purge(ctx)
	defer second.Purge(ctx)

	_, err = first.InsertOne(ctx, testSpectrum(1, nil), "a.dat", meta.Map{"Teff": meta.Num(5000)}, InsertOptions{Origin: "ting"})
	require.NoError(t, err)
	_, err = second.InsertOne(ctx, testSpectrum(1, nil), "a.dat", meta.Map{"Teff": meta.Num(5000)}, InsertOptions{Origin: "ting"})
	require.NoError(t, err, "filenames are unique per library only")

	q := meta.Query{"Teff": meta.Between(meta.Num(4000), meta.Num(6000))}
	for _, lib := range []*Library{first, second} {
		records, err := lib.Search(ctx, q)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "a.dat", records[0].Filename)
	}

	ids, err := first.IDs(ctx, []string{"a.dat"})
	require.NoError(t, err)
	_, err = second.Filenames(ctx, ids)
	assert.ErrorIs(t, err, util.ErrNotFound)

	_, err = Open(ctx, first.Path(), Config{})
	assert.ErrorIs(t, err, util.ErrPrecondition, "sqlite config must not open a postgres library")
}
