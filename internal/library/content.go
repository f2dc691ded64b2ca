package library

import (
	"context"
	"errors"
	"maps"
	"path/filepath"
	"slices"
	"time"

	"github.com/franz/speclib/internal/meta"
	"github.com/franz/speclib/internal/spectrum"
	"github.com/franz/speclib/internal/store"
	"github.com/franz/speclib/internal/util"
)

// DefaultOrigin is recorded for spectra inserted without an origin
const DefaultOrigin = "Undefined"

// InsertOptions controls Insert
type InsertOptions struct {
	Origin    string // Provenance label, DefaultOrigin when empty
	Overwrite bool   // Replace spectra whose filename is taken
}

// OpenOptions controls Open
type OpenOptions struct {
	SharedMemory bool // Back the returned array with shared memory
}

// InsertOne inserts a single spectrum
func (l *Library) InsertOne(ctx context.Context, s *spectrum.Spectrum, filename string, m meta.Map, opts InsertOptions) (int64, error) {
	var metadata []meta.Map
	if m != nil {
		metadata = []meta.Map{m}
	}
	ids, err := l.Insert(ctx, []*spectrum.Spectrum{s}, []string{filename}, metadata, opts)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// Insert stores spectra under filenames and returns their new ids.
// metadata is nil or holds one map per spectrum; its values override the
// intrinsic metadata of the payload. Each spectrum file is written before
// its record, so a failure midway leaves at most an orphaned file. On
// failure the ids inserted so far are returned with the error.
func (l *Library) Insert(ctx context.Context, spectra []*spectrum.Spectrum, filenames []string, metadata []meta.Map, opts InsertOptions) (ids []int64, err error) {
	start := time.Now()
	defer func() { l.metrics.Observe("insert", start, err) }()

	if err := l.ready(); err != nil {
		return nil, err
	}
	if len(filenames) != len(spectra) {
		return nil, util.Precondition("got %d filenames for %d spectra", len(filenames), len(spectra))
	}
	if metadata != nil && len(metadata) != len(spectra) {
		return nil, util.Precondition("got %d metadata maps for %d spectra", len(metadata), len(spectra))
	}

	names := make([]string, len(spectra))
	overrides := make([]meta.Map, len(spectra))
	seen := make(map[string]bool, len(spectra))
	for i, s := range spectra {
		name, err := cleanFilename(filenames[i])
		if err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, util.Fail(util.ErrPrecondition, []any{"filename", name}, "filename %q appears twice in one insert", name)
		}
		seen[name] = true
		names[i] = name

		if s == nil {
			return nil, util.Fail(util.ErrPrecondition, []any{"filename", name}, "spectrum for %q is nil", name)
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, err := s.Metadata.Normalized(); err != nil {
			return nil, err
		}
		if metadata != nil {
			if overrides[i], err = metadata[i].Normalized(); err != nil {
				return nil, err
			}
		}
	}

	origin := opts.Origin
	if origin == "" {
		origin = DefaultOrigin
	}
	originID, err := l.db.OriginID(ctx, origin)
	if err != nil {
		return nil, err
	}

	ids = make([]int64, 0, len(spectra))
	for i, s := range spectra {
		id, err := l.insert(ctx, s, names[i], overrides[i], origin, originID, opts.Overwrite)
		if err != nil {
			if !errors.Is(err, util.ErrCollision) {
				l.events.LogError(l.uniqueID, names[i], err)
			}
			l.metrics.AddWritten(len(ids))
			return ids, err
		}
		ids = append(ids, id)
	}

	l.metrics.AddWritten(len(ids))
	util.DebugLog("Inserted %d spectra into %s (origin %s)", len(ids), l.path, origin)
	return ids, nil
}

func (l *Library) insert(ctx context.Context, s *spectrum.Spectrum, name string, override meta.Map, origin string, originID int64, overwrite bool) (int64, error) {
	began := time.Now()

	exists, err := l.db.RecordExists(ctx, l.id, name)
	if err != nil {
		return 0, err
	}
	if exists && !overwrite {
		l.events.LogCollision(l.uniqueID, name)
		return 0, util.Collision(name)
	}

	intrinsic, err := l.codec.Serialize(s, filepath.Join(l.path, name), overwrite)
	if err != nil {
		if errors.Is(err, util.ErrCollision) {
			l.events.LogCollision(l.uniqueID, name)
		}
		return 0, err
	}
	intrinsic, err = intrinsic.Normalized()
	if err != nil {
		return 0, err
	}

	id, err := l.db.ReplaceRecord(ctx, l.id, name, originID, time.Now())
	if err != nil {
		return 0, err
	}
	if err := l.writeMetadata(ctx, []int64{id}, meta.Merge(intrinsic, override)); err != nil {
		return 0, err
	}

	l.events.LogInsert(l.uniqueID, name, origin, id, exists, time.Since(began))
	return id, nil
}

// writeMetadata registers any new fields of values and writes values
// onto every spectrum in ids
func (l *Library) writeMetadata(ctx context.Context, ids []int64, values meta.Map) error {
	if len(values) == 0 {
		return nil
	}
	fieldIDs, err := l.ensureFields(ctx, values.Keys())
	if err != nil {
		return err
	}
	return l.db.SetMetadata(ctx, l.id, ids, values, fieldIDs)
}

// Open loads the selected spectra with their stored metadata, in
// selector order
func (l *Library) Open(ctx context.Context, sel Selector, opts OpenOptions) (arr *spectrum.Array, err error) {
	start := time.Now()
	defer func() { l.metrics.Observe("open", start, err) }()

	if err := l.ready(); err != nil {
		return nil, err
	}
	ids, names, err := l.resolve(ctx, sel)
	if err != nil {
		return nil, err
	}

	stored, err := l.db.GetMetadata(ctx, l.id, ids)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(ids))
	metadata := make([]meta.Map, len(ids))
	for i, id := range ids {
		paths[i] = filepath.Join(l.path, names[i])
		metadata[i] = stored[id].Clone()
	}

	arr, err = l.codec.Deserialize(paths, metadata, opts.SharedMemory)
	if err != nil {
		return nil, err
	}
	l.metrics.AddRead(arr.Len())
	return arr, nil
}

// GetMetadata returns the stored metadata of the selected spectra in
// selector order
func (l *Library) GetMetadata(ctx context.Context, sel Selector) ([]meta.Map, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	ids, _, err := l.resolve(ctx, sel)
	if err != nil {
		return nil, err
	}

	stored, err := l.db.GetMetadata(ctx, l.id, ids)
	if err != nil {
		return nil, err
	}
	out := make([]meta.Map, len(ids))
	for i, id := range ids {
		out[i] = stored[id].Clone()
	}
	return out, nil
}

// SetMetadata writes m onto every selected spectrum, registering new
// fields as needed. Fields not named in m keep their values.
func (l *Library) SetMetadata(ctx context.Context, sel Selector, m meta.Map) (err error) {
	start := time.Now()
	defer func() { l.metrics.Observe("set_metadata", start, err) }()

	if err := l.ready(); err != nil {
		return err
	}
	values, err := m.Normalized()
	if err != nil {
		return err
	}
	ids, _, err := l.resolve(ctx, sel)
	if err != nil {
		return err
	}

	if err := l.writeMetadata(ctx, ids, values); err != nil {
		return err
	}
	l.events.LogMetadata(l.uniqueID, values.Keys(), len(ids))
	return nil
}

// Search returns the records whose metadata satisfies every constraint
// of q. Searching on a field that was never registered is an error.
func (l *Library) Search(ctx context.Context, q meta.Query) (records []store.Record, err error) {
	start := time.Now()
	defer func() { l.metrics.Observe("search", start, err) }()

	if err := l.ready(); err != nil {
		return nil, err
	}

	query, err := q.Normalized()
	if err != nil {
		return nil, err
	}
	names := slices.Collect(maps.Keys(query))

	fieldIDs, complete := l.cachedFields(names)
	if !complete {
		// Another process may have registered the field since we loaded
		if err := l.reloadFields(ctx); err != nil {
			return nil, err
		}
		fieldIDs, _ = l.cachedFields(names)
	}

	records, err = l.db.Search(ctx, l.id, query, fieldIDs)
	if err != nil {
		return nil, err
	}
	l.metrics.ObserveSearch(len(records))
	return records, nil
}

// List returns every record of the library ordered by id
func (l *Library) List(ctx context.Context) ([]store.Record, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.db.ListRecords(ctx, l.id)
}

// Filenames translates ids into filenames, preserving order
func (l *Library) Filenames(ctx context.Context, ids []int64) ([]string, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int64{}
	}
	_, names, err := l.resolve(ctx, Selector{IDs: ids})
	return names, err
}

// IDs translates filenames into ids, preserving order
func (l *Library) IDs(ctx context.Context, filenames []string) ([]int64, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	if filenames == nil {
		filenames = []string{}
	}
	ids, _, err := l.resolve(ctx, Selector{Filenames: filenames})
	return ids, err
}
