package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/franz/speclib/internal/meta"
	"github.com/franz/speclib/internal/util"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// maxAllocAttempts bounds the lookup/insert loop of the registry. A row
// inserted by a concurrent writer is found on the next lookup, so more than
// a couple of rounds means the database is misbehaving.
const maxAllocAttempts = 3

// pgUniqueViolation is the SQLSTATE for unique_violation
const pgUniqueViolation = "23505"

// registry describes one name -> id table
type registry struct {
	kind  string
	table string
	idCol string
}

var (
	librariesRegistry = registry{kind: "library", table: "libraries", idCol: "libraryId"}
	originsRegistry   = registry{kind: "origin", table: "origins", idCol: "originId"}
	fieldsRegistry    = registry{kind: "metadata field", table: "metadata_fields", idCol: "fieldId"}
)

// LibraryID resolves the id of the library called name. With create the
// library must not exist yet and a new row is made; without it the row
// must already exist.
func (s *Store) LibraryID(ctx context.Context, name string, create bool) (int64, error) {
	name, err := meta.Name(librariesRegistry.kind, name)
	if err != nil {
		return 0, err
	}

	if !create {
		id, found, err := s.lookup(ctx, librariesRegistry, name)
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, util.Fail(util.ErrNotFound, []any{"library", name}, "library %q is not registered", name)
		}
		return id, nil
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		s.rebind("INSERT INTO libraries (name) VALUES (?) RETURNING libraryId"), name).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, util.Fail(util.ErrPrecondition, []any{"library", name}, "library %q already exists", name)
		}
		return 0, fmt.Errorf("failed to register library %q: %w", name, err)
	}
	return id, nil
}

// OriginID returns the id of the origin called name, registering it if needed
func (s *Store) OriginID(ctx context.Context, name string) (int64, error) {
	return s.allocate(ctx, originsRegistry, name)
}

// FieldID returns the id of the metadata field called name, registering it if needed
func (s *Store) FieldID(ctx context.Context, name string) (int64, error) {
	return s.allocate(ctx, fieldsRegistry, name)
}

// Fields returns every registered metadata field by name
func (s *Store) Fields(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, fieldId FROM metadata_fields")
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata fields: %w", err)
	}
	defer rows.Close()

	fields := make(map[string]int64)
	for rows.Next() {
		var name string
		var id int64
		if err := rows.Scan(&name, &id); err != nil {
			return nil, fmt.Errorf("failed to scan metadata field: %w", err)
		}
		fields[name] = id
	}
	return fields, rows.Err()
}

// allocate implements lookup-or-create: the SELECT is the source of truth
// and the conflict-ignoring INSERT only ever adds a missing row.
func (s *Store) allocate(ctx context.Context, reg registry, name string) (int64, error) {
	name, err := meta.Name(reg.kind, name)
	if err != nil {
		return 0, err
	}

	insert := s.rebind(fmt.Sprintf("INSERT INTO %s (name) VALUES (?) ON CONFLICT (name) DO NOTHING", reg.table))

	for attempt := 1; attempt <= maxAllocAttempts; attempt++ {
		id, found, err := s.lookup(ctx, reg, name)
		if err != nil {
			return 0, err
		}
		if found {
			return id, nil
		}

		if _, err := s.db.ExecContext(ctx, insert, name); err != nil {
			return 0, fmt.Errorf("failed to register %s %q: %w", reg.kind, name, err)
		}
		util.DebugLog("Registered %s %q (attempt %d)", reg.kind, name, attempt)
	}

	return 0, fmt.Errorf("failed to allocate id for %s %q after %d attempts", reg.kind, name, maxAllocAttempts)
}

func (s *Store) lookup(ctx context.Context, reg registry, name string) (int64, bool, error) {
	query := s.rebind(fmt.Sprintf("SELECT %s FROM %s WHERE name = ?", reg.idCol, reg.table))

	var id int64
	err := s.db.QueryRowContext(ctx, query, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up %s %q: %w", reg.kind, name, err)
	}
	return id, true, nil
}

// isUniqueViolation recognizes unique-constraint failures of both engines
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
