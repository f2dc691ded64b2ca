package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/franz/speclib/internal/meta"
	"github.com/franz/speclib/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seedLibrary(t *testing.T, s *Store, name string) (libID, originID int64) {
	t.Helper()
	ctx := context.Background()
	libID, err := s.LibraryID(ctx, name, true)
	require.NoError(t, err)
	originID, err = s.OriginID(ctx, "ting")
	require.NoError(t, err)
	return libID, originID
}

func insertRecords(t *testing.T, s *Store, libID, originID int64, names ...string) []int64 {
	t.Helper()
	ids := make([]int64, len(names))
	for i, name := range names {
		id, err := s.ReplaceRecord(context.Background(), libID, name, originID, testTime)
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

func registerFields(t *testing.T, s *Store, m meta.Map) map[string]int64 {
	t.Helper()
	for name := range m {
		_, err := s.FieldID(context.Background(), name)
		require.NoError(t, err)
	}
	fields, err := s.Fields(context.Background())
	require.NoError(t, err)
	return fields
}

func TestLibraryID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LibraryID(ctx, "lib", false)
	assert.ErrorIs(t, err, util.ErrNotFound)

	id, err := s.LibraryID(ctx, "lib", true)
	require.NoError(t, err)

	_, err = s.LibraryID(ctx, "lib", true)
	assert.ErrorIs(t, err, util.ErrPrecondition)

	again, err := s.LibraryID(ctx, "lib", false)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	_, err = s.LibraryID(ctx, "  ", true)
	assert.ErrorIs(t, err, util.ErrPrecondition)
}

func TestAllocateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.OriginID(ctx, "ting")
	require.NoError(t, err)
	second, err := s.OriginID(ctx, " ting ")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := s.OriginID(ctx, "synth")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	// Decomposed and precomposed spellings share one field
	a, err := s.FieldID(ctx, "\u00e9")
	require.NoError(t, err)
	b, err := s.FieldID(ctx, "e\u0301")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	fields, err := s.Fields(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"\u00e9": a}, fields)
}

func TestTranslationIsScopedBijection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	libA, origin := seedLibrary(t, s, "a")
	libB, err := s.LibraryID(ctx, "b", true)
	require.NoError(t, err)

	names := []string{"x.dat", "y.dat", "z.dat"}
	ids := insertRecords(t, s, libA, origin, names...)
	insertRecords(t, s, libB, origin, "x.dat")

	byID, err := s.IDsToFilenames(ctx, libA, ids)
	require.NoError(t, err)
	back := make([]string, len(ids))
	for i, id := range ids {
		back[i] = byID[id]
	}
	assert.Equal(t, names, back)

	byName, err := s.FilenamesToIDs(ctx, libA, back)
	require.NoError(t, err)
	for i, name := range names {
		assert.Equal(t, ids[i], byName[name])
	}

	// Library b's x.dat is a different record; its y.dat does not exist
	inB, err := s.FilenamesToIDs(ctx, libB, []string{"x.dat"})
	require.NoError(t, err)
	assert.NotEqual(t, byName["x.dat"], inB["x.dat"])

	_, err = s.FilenamesToIDs(ctx, libB, []string{"x.dat", "y.dat"})
	assert.ErrorIs(t, err, util.ErrNotFound)
	assert.Equal(t, "y.dat", util.ContextOf(err)["filename"])

	_, err = s.IDsToFilenames(ctx, libB, ids[:1])
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestTranslationChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	libID, origin := seedLibrary(t, s, "lib")

	names := make([]string, chunkSize+7)
	for i := range names {
		names[i] = fmt.Sprintf("s%04d.dat", i)
	}
	ids := insertRecords(t, s, libID, origin, names...)

	byID, err := s.IDsToFilenames(ctx, libID, ids)
	require.NoError(t, err)
	assert.Len(t, byID, len(names))

	values, err := s.GetMetadata(ctx, libID, ids)
	require.NoError(t, err)
	assert.Len(t, values, len(ids))
}

func TestReplaceRecordDropsOldMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	libID, origin := seedLibrary(t, s, "lib")

	ids := insertRecords(t, s, libID, origin, "a.dat")
	values := meta.Map{"Teff": meta.Num(5000), "note": meta.Str("old")}
	require.NoError(t, s.SetMetadata(ctx, libID, ids, values, registerFields(t, s, values)))

	newID, err := s.ReplaceRecord(ctx, libID, "a.dat", origin, testTime.Add(time.Hour))
	require.NoError(t, err)
	assert.NotEqual(t, ids[0], newID)

	got, err := s.GetMetadata(ctx, libID, []int64{newID})
	require.NoError(t, err)
	assert.Empty(t, got[newID])

	exists, err := s.RecordExists(ctx, libID, "a.dat")
	require.NoError(t, err)
	assert.True(t, exists)

	records, err := s.ListRecords(ctx, libID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ting", records[0].Origin)
	assert.True(t, testTime.Add(time.Hour).Equal(records[0].ImportTime), records[0].ImportTime)
}

func TestSetMetadataUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	libID, origin := seedLibrary(t, s, "lib")
	ids := insertRecords(t, s, libID, origin, "a.dat", "b.dat")

	first := meta.Map{"Teff": meta.Num(5000), "star": meta.Str("sun")}
	fields := registerFields(t, s, first)
	require.NoError(t, s.SetMetadata(ctx, libID, ids, first, fields))

	// Kind changes replace the value rather than adding a second column
	second := meta.Map{"Teff": meta.Str("hot")}
	require.NoError(t, s.SetMetadata(ctx, libID, ids[:1], second, fields))

	got, err := s.GetMetadata(ctx, libID, ids)
	require.NoError(t, err)
	assert.Equal(t, meta.Map{"Teff": meta.Str("hot"), "star": meta.Str("sun")}, got[ids[0]])
	assert.Equal(t, first, got[ids[1]])

	err = s.SetMetadata(ctx, libID, ids, meta.Map{"unregistered": meta.Num(1)}, fields)
	assert.ErrorIs(t, err, util.ErrPrecondition)

	err = s.SetMetadata(ctx, libID, ids, meta.Map{"Teff": {}}, fields)
	assert.ErrorIs(t, err, util.ErrPrecondition)
}

func TestSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	libID, origin := seedLibrary(t, s, "lib")
	ids := insertRecords(t, s, libID, origin, "a.dat", "b.dat", "c.dat")

	values := []meta.Map{
		{"Teff": meta.Num(5000), "logg": meta.Num(4.4), "star": meta.Str("sun")},
		{"Teff": meta.Num(6500), "logg": meta.Num(4.0), "star": meta.Str("procyon")},
		{"Teff": meta.Num(3500), "star": meta.Str("barnard")},
	}
	fields := registerFields(t, s, values[0])
	for i, m := range values {
		require.NoError(t, s.SetMetadata(ctx, libID, ids[i:i+1], m, fields))
	}

	// A second library with matching values stays invisible
	otherLib, err := s.LibraryID(ctx, "other", true)
	require.NoError(t, err)
	otherIDs := insertRecords(t, s, otherLib, origin, "a.dat")
	require.NoError(t, s.SetMetadata(ctx, otherLib, otherIDs, values[0], fields))

	tests := []struct {
		name     string
		query    meta.Query
		expected []string
	}{
		{"empty query lists everything", nil, []string{"a.dat", "b.dat", "c.dat"}},
		{"range", meta.Query{"Teff": meta.Between(meta.Num(4000), meta.Num(6000))}, []string{"a.dat"}},
		{"reversed range", meta.Query{"Teff": meta.Between(meta.Num(6000), meta.Num(4000))}, []string{"a.dat"}},
		{"inclusive bounds", meta.Query{"Teff": meta.Between(meta.Num(5000), meta.Num(6500))}, []string{"a.dat", "b.dat"}},
		{"empty range", meta.Query{"Teff": meta.Between(meta.Num(6600), meta.Num(7000))}, nil},
		{"exact number", meta.Query{"logg": meta.Exact(meta.Num(4))}, []string{"b.dat"}},
		{"exact string", meta.Query{"star": meta.Exact(meta.Str("sun"))}, []string{"a.dat"}},
		{"string range", meta.Query{"star": meta.Between(meta.Str("z"), meta.Str("b"))}, []string{"a.dat", "b.dat", "c.dat"}},
		{"conjunction", meta.Query{
			"Teff": meta.Between(meta.Num(3000), meta.Num(7000)),
			"logg": meta.Between(meta.Num(4.2), meta.Num(5)),
		}, []string{"a.dat"}},
		{"missing field excludes", meta.Query{"logg": meta.Between(meta.Num(0), meta.Num(10))}, []string{"a.dat", "b.dat"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := s.Search(ctx, libID, tt.query, fields)
			require.NoError(t, err)
			var got []string
			for _, rec := range records {
				got = append(got, rec.Filename)
				assert.Equal(t, "ting", rec.Origin)
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSearchRejectsBadConstraints(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	libID, _ := seedLibrary(t, s, "lib")
	fields := registerFields(t, s, meta.Map{"Teff": meta.Num(1)})

	_, err := s.Search(ctx, libID, meta.Query{"vsini": meta.Exact(meta.Num(1))}, fields)
	assert.ErrorIs(t, err, util.ErrPrecondition)
	assert.Equal(t, "vsini", util.ContextOf(err)["field"])

	_, err = s.Search(ctx, libID, meta.Query{"Teff": meta.Between(meta.Num(1), meta.Str("x"))}, fields)
	assert.ErrorIs(t, err, util.ErrPrecondition)

	_, err = s.Search(ctx, libID, meta.Query{"Teff": meta.Exact(meta.Value{})}, fields)
	assert.ErrorIs(t, err, util.ErrPrecondition)
}

func TestCompileSearch(t *testing.T) {
	fields := map[string]int64{"a": 1, "b": 2}
	q := meta.Query{
		"b": meta.Exact(meta.Str("x")),
		"a": meta.Between(meta.Num(9), meta.Num(10)),
	}

	query, args, err := compileSearch(7, q, fields)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(query, "EXISTS"))
	assert.Equal(t, strings.Count(query, "?"), len(args))

	// Field a (id 1) is compiled first; numeric and textual bounds are
	// each ordered for their own column
	require.Len(t, args, 1+6+4)
	assert.Equal(t, int64(7), args[0])
	assert.Equal(t, int64(1), args[2])
	assert.Equal(t, "10", args[5])
	assert.Equal(t, "9", args[6])
	assert.Equal(t, int64(2), args[8])

	again, _, err := compileSearch(7, q, fields)
	require.NoError(t, err)
	assert.Equal(t, query, again)
}

func TestDeleteLibrary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	libID, origin := seedLibrary(t, s, "lib")
	ids := insertRecords(t, s, libID, origin, "a.dat")
	values := meta.Map{"Teff": meta.Num(5000)}
	require.NoError(t, s.SetMetadata(ctx, libID, ids, values, registerFields(t, s, values)))

	stats, err := s.GetStats(ctx, libID)
	require.NoError(t, err)
	assert.Equal(t, &Stats{Spectra: 1, Origins: 1, Values: 1}, stats)

	require.NoError(t, s.DeleteLibrary(ctx, libID))

	_, err = s.LibraryID(ctx, "lib", false)
	assert.ErrorIs(t, err, util.ErrNotFound)

	var n int
	require.NoError(t, s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM spectra").Scan(&n))
	assert.Zero(t, n)

	// The name is free again
	_, err = s.LibraryID(ctx, "lib", true)
	assert.NoError(t, err)
}

func TestPostgresScenario(t *testing.T) {
	s := postgresStore(t)
	ctx := context.Background()

	name := "speclib-test-" + time.Now().Format("150405.000000000")
	libID, err := s.LibraryID(ctx, name, true)
	require.NoError(t, err)
	defer s.DeleteLibrary(ctx, libID)

	origin, err := s.OriginID(ctx, "ting")
	require.NoError(t, err)
	id, err := s.ReplaceRecord(ctx, libID, "a.dat", origin, testTime)
	require.NoError(t, err)

	values := meta.Map{"Teff": meta.Num(5000)}
	fields := registerFields(t, s, values)
	require.NoError(t, s.SetMetadata(ctx, libID, []int64{id}, values, fields))

	hits, err := s.Search(ctx, libID, meta.Query{"Teff": meta.Between(meta.Num(6000), meta.Num(4000))}, fields)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a.dat", hits[0].Filename)

	hits, err = s.Search(ctx, libID, meta.Query{"Teff": meta.Between(meta.Num(6000), meta.Num(7000))}, fields)
	require.NoError(t, err)
	assert.Empty(t, hits)

	got, err := s.GetMetadata(ctx, libID, []int64{id})
	require.NoError(t, err)
	assert.Equal(t, values, got[id])

	_, err = s.LibraryID(ctx, name, true)
	assert.ErrorIs(t, err, util.ErrPrecondition)
}

func TestUsageCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	libID, origin := seedLibrary(t, s, "lib")
	synth, err := s.OriginID(ctx, "synth")
	require.NoError(t, err)

	ids := insertRecords(t, s, libID, origin, "a.dat", "b.dat")
	insertRecords(t, s, libID, synth, "c.dat")

	values := meta.Map{"Teff": meta.Num(5000)}
	fields := registerFields(t, s, values)
	require.NoError(t, s.SetMetadata(ctx, libID, ids, values, fields))

	byField, err := s.FieldUsage(ctx, libID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Teff": 2}, byField)

	byOrigin, err := s.OriginUsage(ctx, libID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"ting": 2, "synth": 1}, byOrigin)
}
