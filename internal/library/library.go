// Package library manages spectrum libraries: a directory of spectrum
// files, two identity sidecars and a metadata index in SQLite or Postgres.
package library

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/franz/speclib/internal/meta"
	"github.com/franz/speclib/internal/metrics"
	"github.com/franz/speclib/internal/report"
	"github.com/franz/speclib/internal/store"
	"github.com/franz/speclib/internal/util"
	"github.com/google/uuid"
)

// Files every library root may hold besides spectra
const (
	typeIDFile   = "type_id"
	uniqueIDFile = "unique_id"
	indexFile    = "index.db"
	tempPrefix   = ".speclib-"
)

var reservedNames = map[string]bool{
	typeIDFile:             true,
	uniqueIDFile:           true,
	indexFile:              true,
	indexFile + "-wal":     true,
	indexFile + "-shm":     true,
	indexFile + "-journal": true,
}

// Library is an open spectrum library. It is safe for concurrent use.
type Library struct {
	path     string
	uniqueID string
	flavor   Flavor
	id       int64

	db      *store.Store
	codec   Codec
	events  *report.EventLogger
	metrics *metrics.Metrics
	retry   *util.RetryConfig

	mu     sync.RWMutex
	fields map[string]int64 // field name -> fieldId

	closed atomic.Bool
}

// Create makes a new empty library at path. The parent directory must
// exist and path itself must not.
func Create(ctx context.Context, path string, cfg Config) (lib *Library, err error) {
	flavor, err := ParseFlavor(string(cfg.Flavor))
	if err != nil {
		return nil, err
	}
	path = filepath.Clean(path)

	if _, err := os.Lstat(path); err == nil {
		return nil, util.Fail(util.ErrPrecondition, []any{"path", path}, "%s already exists", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	parent := filepath.Dir(path)
	if info, err := os.Stat(parent); err != nil || !info.IsDir() {
		return nil, util.Fail(util.ErrPrecondition, []any{"path", parent}, "parent directory %s does not exist", parent)
	}

	fileCodec, err := cfg.newCodec(path)
	if err != nil {
		return nil, err
	}

	if err := os.Mkdir(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create library directory: %w", err)
	}
	lib = &Library{
		path:     path,
		uniqueID: strings.ReplaceAll(uuid.NewString(), "-", ""),
		flavor:   flavor,
		codec:    fileCodec,
		events:   eventsOrNull(cfg.Events),
		metrics:  cfg.Metrics,
		retry:    util.RetryConfigFor(path),
	}
	defer func() {
		if err != nil {
			lib.abandon(ctx)
			lib = nil
		}
	}()

	if err := writeSidecar(path, typeIDFile, flavor.TypeTag()); err != nil {
		return lib, err
	}
	if err := writeSidecar(path, uniqueIDFile, lib.uniqueID); err != nil {
		return lib, err
	}

	if lib.db, err = cfg.openStore(ctx, path); err != nil {
		return lib, err
	}
	if lib.id, err = lib.db.LibraryID(ctx, lib.uniqueID, true); err != nil {
		return lib, err
	}
	if err := lib.reloadFields(ctx); err != nil {
		return lib, err
	}

	util.InfoLog("Created %s library %s", flavor, path)
	lib.events.LogLifecycle(report.EventCreate, lib.uniqueID, path)
	return lib, nil
}

// abandon undoes a failed Create
func (l *Library) abandon(ctx context.Context) {
	if l.db != nil {
		if l.id != 0 {
			if err := l.db.DeleteLibrary(ctx, l.id); err != nil {
				util.WarnLog("Failed to unregister library %s: %v", l.uniqueID, err)
			}
		}
		l.db.Close()
	}
	if err := os.RemoveAll(l.path); err != nil {
		util.WarnLog("Failed to remove %s: %v", l.path, err)
	}
}

// Open opens the existing library at path. The library must have been
// created with the flavor cfg selects.
func Open(ctx context.Context, path string, cfg Config) (*Library, error) {
	flavor, err := ParseFlavor(string(cfg.Flavor))
	if err != nil {
		return nil, err
	}
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, util.Fail(util.ErrNotFound, []any{"path", path}, "no library at %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return nil, util.Fail(util.ErrPrecondition, []any{"path", path}, "%s is not a directory", path)
	}

	tag, err := readSidecar(path, typeIDFile)
	if err != nil {
		return nil, err
	}
	uniqueID, err := readSidecar(path, uniqueIDFile)
	if err != nil {
		return nil, err
	}
	if tag != flavor.TypeTag() {
		return nil, util.Fail(util.ErrPrecondition, []any{"path", path, "type", tag},
			"%s holds a %s, not a %s", path, tag, flavor.TypeTag())
	}
	if flavor == FlavorSQLite {
		if _, err := os.Stat(filepath.Join(path, indexFile)); err != nil {
			return nil, util.Fail(util.ErrCorrupt, []any{"path", path}, "library %s has no index database", path)
		}
	}

	fileCodec, err := cfg.newCodec(path)
	if err != nil {
		return nil, err
	}

	db, err := cfg.openStore(ctx, path)
	if err != nil {
		if flavor == FlavorSQLite {
			return nil, util.Fail(util.ErrCorrupt, []any{"path", path}, "index database of %s is unusable: %v", path, err)
		}
		return nil, err
	}

	id, err := db.LibraryID(ctx, uniqueID, false)
	if err != nil {
		db.Close()
		return nil, err
	}

	lib := &Library{
		path:     path,
		uniqueID: uniqueID,
		flavor:   flavor,
		id:       id,
		db:       db,
		codec:    fileCodec,
		events:   eventsOrNull(cfg.Events),
		metrics:  cfg.Metrics,
		retry:    util.RetryConfigFor(path),
	}
	if err := lib.reloadFields(ctx); err != nil {
		db.Close()
		return nil, err
	}

	util.DebugLog("Opened library %s (id %d)", path, id)
	lib.events.LogLifecycle(report.EventOpen, uniqueID, path)
	return lib, nil
}

// Purge deletes the library: its index row with every record and value,
// every spectrum file and both sidecars. The directory itself goes too
// when nothing else is left in it. The Library is closed afterwards.
func (l *Library) Purge(ctx context.Context) error {
	if err := l.ready(); err != nil {
		return err
	}
	defer l.Close()

	names, err := l.db.LibraryFilenames(ctx, l.id)
	if err != nil {
		return err
	}
	if err := l.db.DeleteLibrary(ctx, l.id); err != nil {
		return fmt.Errorf("failed to delete library %s: %w", l.uniqueID, err)
	}

	for _, name := range names {
		if err := l.removeFile(ctx, name); err != nil {
			return err
		}
	}
	for _, name := range []string{typeIDFile, uniqueIDFile} {
		if err := l.removeFile(ctx, name); err != nil {
			return err
		}
	}

	l.events.LogLifecycle(report.EventPurge, l.uniqueID, l.path)

	if l.flavor == FlavorSQLite {
		l.Close()
		for name := range reservedNames {
			if err := l.removeFile(ctx, name); err != nil {
				return err
			}
		}
	}

	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		util.WarnLog("Left %s in place: %v", l.path, err)
	}
	util.InfoLog("Purged library %s (%d spectra)", l.path, len(names))
	return nil
}

func (l *Library) removeFile(ctx context.Context, name string) error {
	err := util.RetryableRemove(ctx, filepath.Join(l.path, name), l.retry)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return nil
}

// Close releases the index connection. It is safe to call more than once.
func (l *Library) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	return l.db.Close()
}

// Path returns the library root directory
func (l *Library) Path() string { return l.path }

// ID returns the library's row id in the index
func (l *Library) ID() int64 { return l.id }

// UniqueID returns the random token naming the library in the index
func (l *Library) UniqueID() string { return l.uniqueID }

// TypeTag returns the flavor tag stored in the type_id sidecar
func (l *Library) TypeTag() string { return l.flavor.TypeTag() }

// Flavor returns the database flavor of the library
func (l *Library) Flavor() Flavor { return l.flavor }

// Store exposes the underlying index for diagnostics
func (l *Library) Store() *store.Store { return l.db }

func (l *Library) ready() error {
	if l.closed.Load() {
		return util.Fail(util.ErrPrecondition, []any{"path", l.path}, "library %s is closed", l.path)
	}
	return nil
}

// reloadFields replaces the field cache with the registry contents
func (l *Library) reloadFields(ctx context.Context) error {
	fields, err := l.db.Fields(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.fields = fields
	l.mu.Unlock()
	return nil
}

// cachedFields returns the cached ids of names and whether all were known
func (l *Library) cachedFields(names []string) (map[string]int64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]int64, len(names))
	complete := true
	for _, name := range names {
		id, ok := l.fields[name]
		if !ok {
			complete = false
			continue
		}
		out[name] = id
	}
	return out, complete
}

// ensureFields returns ids for names, registering unknown fields
func (l *Library) ensureFields(ctx context.Context, names []string) (map[string]int64, error) {
	ids, complete := l.cachedFields(names)
	if complete {
		return ids, nil
	}

	for _, name := range names {
		if _, ok := ids[name]; ok {
			continue
		}
		id, err := l.db.FieldID(ctx, name)
		if err != nil {
			return nil, err
		}
		ids[name] = id

		l.mu.Lock()
		l.fields[name] = id
		l.mu.Unlock()
	}
	return ids, nil
}

func writeSidecar(root, name, value string) error {
	if err := os.WriteFile(filepath.Join(root, name), []byte(value), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// readSidecar reads an identity file; a missing or empty one means the
// directory is a damaged library
func readSidecar(root, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(root, name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", util.Fail(util.ErrCorrupt, []any{"path", root, "file", name}, "library %s has no %s file", root, name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", util.Fail(util.ErrCorrupt, []any{"path", root, "file", name}, "%s of library %s is empty", name, root)
	}
	return value, nil
}

// cleanFilename canonicalizes a spectrum filename and rejects names that
// would leave the library directory or shadow its own files
func cleanFilename(name string) (string, error) {
	name, err := meta.Name("filename", name)
	if err != nil {
		return "", err
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", util.Fail(util.ErrPrecondition, []any{"filename", name}, "filename %q must be a plain file name", name)
	}
	if reservedNames[name] || strings.HasPrefix(name, tempPrefix) {
		return "", util.Fail(util.ErrPrecondition, []any{"filename", name}, "filename %q is reserved", name)
	}
	return name, nil
}

func eventsOrNull(events *report.EventLogger) *report.EventLogger {
	if events == nil {
		return report.NullLogger()
	}
	return events
}
