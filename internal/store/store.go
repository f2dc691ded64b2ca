package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver
)

const (
	currentSchemaVersion = 1
)

// Dialect selects the SQL engine behind a Store
type Dialect string

const (
	// SQLite keeps the index in a single database file next to the spectra
	SQLite Dialect = "sqlite"
	// Postgres keeps the index on a server shared by many libraries
	Postgres Dialect = "postgres"
)

// Driver returns the database/sql driver name for d
func (d Dialect) Driver() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

// Store is the relational index of one or more spectrum libraries
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// OpenOptions holds options for opening a database
type OpenOptions struct {
	Dialect          Dialect // Defaults to SQLite
	NetworkOptimized bool    // Apply network-optimized pragmas (SQLite only)
	MaxOpenConns     int     // Postgres pool size, 0 = driver default
}

// Open opens or creates a SQLite database at the given path with default options
func Open(ctx context.Context, path string) (*Store, error) {
	return OpenWithOptions(ctx, path, nil)
}

// OpenWithOptions opens the database named by target (a file path for
// SQLite, a DSN for Postgres) and migrates it to the current schema.
func OpenWithOptions(ctx context.Context, target string, opts *OpenOptions) (*Store, error) {
	if opts == nil {
		opts = &OpenOptions{}
	}
	dialect := opts.Dialect
	if dialect == "" {
		dialect = SQLite
	}

	dsn := target
	if dialect == SQLite {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", target)
	}

	db, err := sql.Open(dialect.Driver(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	switch dialect {
	case SQLite:
		db.SetMaxOpenConns(1) // SQLite works best with a single writer
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	case Postgres:
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
	}

	store := &Store{db: db, dialect: dialect}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if opts.NetworkOptimized && dialect == SQLite {
		if err := store.applyNetworkPragmas(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply network pragmas: %w", err)
		}
	}

	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return store, nil
}

// applyNetworkPragmas applies SQLite optimizations for network filesystems
func (s *Store) applyNetworkPragmas(ctx context.Context) error {
	pragmas := []string{
		// NORMAL is safe with WAL: fsync only at checkpoints
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		// Negative value = KB (~64 MB)
		"PRAGMA cache_size = -64000",
		// Only takes effect before the first table is created
		"PRAGMA page_size = 8192",
	}

	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for custom queries
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the engine behind s
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// SQLiteVersion returns the SQLite version string
func SQLiteVersion() string {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return ""
	}
	defer db.Close()

	var version string
	err = db.QueryRow("SELECT sqlite_version()").Scan(&version)
	if err != nil {
		return ""
	}
	return version
}

// ServerVersion returns the version reported by the connected engine
func (s *Store) ServerVersion(ctx context.Context) (string, error) {
	query := "SELECT sqlite_version()"
	if s.dialect == Postgres {
		query = "SHOW server_version"
	}
	var version string
	if err := s.db.QueryRowContext(ctx, query).Scan(&version); err != nil {
		return "", fmt.Errorf("failed to query server version: %w", err)
	}
	return version, nil
}

// CheckIntegrity verifies the database file (SQLite) and that every
// table of the schema is present
func (s *Store) CheckIntegrity(ctx context.Context) error {
	if s.dialect == SQLite {
		var result string
		err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result)
		if err != nil {
			return fmt.Errorf("integrity check query failed: %w", err)
		}
		if result != "ok" {
			return fmt.Errorf("integrity check failed: %s", result)
		}
	}

	for _, table := range tables {
		ok, err := s.tableExists(ctx, table)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("integrity check failed: table %s is missing", table)
		}
	}
	return nil
}

// migrate applies database migrations
func (s *Store) migrate(ctx context.Context) error {
	version, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	if version >= currentSchemaVersion {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaVersionTable); err != nil {
		return fmt.Errorf("failed to create schema_version: %w", err)
	}

	if version < 1 {
		schema := sqliteSchemaV1
		if s.dialect == Postgres {
			schema = postgresSchemaV1
		}
		for _, stmt := range splitStatements(schema) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply schema v1: %w", err)
			}
		}
		if err := s.setSchemaVersion(ctx, tx, 1); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}

// getSchemaVersion returns the current schema version
func (s *Store) getSchemaVersion(ctx context.Context) (int, error) {
	exists, err := s.tableExists(ctx, "schema_version")
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}

	return version, nil
}

// setSchemaVersion records a schema version in a transaction. Several
// libraries may race to migrate a shared server; the first one wins.
func (s *Store) setSchemaVersion(ctx context.Context, tx *sql.Tx, version int) error {
	_, err := tx.ExecContext(ctx, s.rebind("INSERT INTO schema_version (version) VALUES (?) ON CONFLICT (version) DO NOTHING"), version)
	return err
}

func (s *Store) tableExists(ctx context.Context, table string) (bool, error) {
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?"
	if s.dialect == Postgres {
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?"
	}
	var n int
	if err := s.db.QueryRowContext(ctx, s.rebind(query), strings.ToLower(table)).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to look up table %s: %w", table, err)
	}
	return n > 0, nil
}

// Transaction executes a function within a transaction
func (s *Store) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// rebind rewrites ? placeholders into the dialect's positional form
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// splitStatements breaks a schema script into single statements, dropping
// comment lines
func splitStatements(script string) []string {
	var kept []string
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}

	var stmts []string
	for _, stmt := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// placeholders returns "?, ?, ..." with n markers
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
