package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/franz/speclib/internal/util"
)

// chunkSize bounds the number of bound parameters in IN (...) lists
const chunkSize = 500

// Record is one spectrum row of a library
type Record struct {
	ID         int64     `json:"id"`
	Filename   string    `json:"filename"`
	Origin     string    `json:"origin"`
	ImportTime time.Time `json:"import_time"`
}

// Stats summarizes a library's index
type Stats struct {
	Spectra int64
	Origins int64
	Values  int64
}

const recordColumns = `s.specId, s.filename, o.name, s.importTime`

// ReplaceRecord makes filename a fresh record of libID, dropping any
// previous record (and through the cascade its metadata) in the same
// transaction. It returns the new spectrum id.
func (s *Store) ReplaceRecord(ctx context.Context, libID int64, filename string, originID int64, importTime time.Time) (int64, error) {
	var id int64
	err := s.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			s.rebind("DELETE FROM spectra WHERE libraryId = ? AND filename = ?"), libID, filename)
		if err != nil {
			return fmt.Errorf("failed to delete previous record: %w", err)
		}

		err = tx.QueryRowContext(ctx, s.rebind(`
			INSERT INTO spectra (libraryId, filename, originId, importTime)
			VALUES (?, ?, ?, ?)
			RETURNING specId
		`), libID, filename, originID, unixSeconds(importTime)).Scan(&id)
		if err != nil {
			if isUniqueViolation(err) {
				return util.Collision(filename)
			}
			return fmt.Errorf("failed to insert record: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// RecordExists reports whether filename has a record in libID
func (s *Store) RecordExists(ctx context.Context, libID int64, filename string) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT specId FROM spectra WHERE libraryId = ? AND filename = ?"), libID, filename).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up record %q: %w", filename, err)
	}
	return true, nil
}

// FilenamesToIDs translates filenames of libID into spectrum ids. Every
// name must be known; the first unknown one is reported.
func (s *Store) FilenamesToIDs(ctx context.Context, libID int64, names []string) (map[string]int64, error) {
	out := make(map[string]int64, len(names))
	for start := 0; start < len(names); start += chunkSize {
		chunk := names[start:min(start+chunkSize, len(names))]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, libID)
		for _, name := range chunk {
			args = append(args, name)
		}

		query := s.rebind(fmt.Sprintf(
			"SELECT filename, specId FROM spectra WHERE libraryId = ? AND filename IN (%s)", placeholders(len(chunk))))
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to translate filenames: %w", err)
		}
		for rows.Next() {
			var name string
			var id int64
			if err := rows.Scan(&name, &id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan record: %w", err)
			}
			out[name] = id
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}

	for _, name := range names {
		if _, ok := out[name]; !ok {
			return nil, util.Fail(util.ErrNotFound, []any{"filename", name}, "spectrum %q is not in the library", name)
		}
	}
	return out, nil
}

// IDsToFilenames translates spectrum ids of libID into filenames. Ids of
// other libraries are treated as unknown.
func (s *Store) IDsToFilenames(ctx context.Context, libID int64, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	for start := 0; start < len(ids); start += chunkSize {
		chunk := ids[start:min(start+chunkSize, len(ids))]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, libID)
		for _, id := range chunk {
			args = append(args, id)
		}

		query := s.rebind(fmt.Sprintf(
			"SELECT specId, filename FROM spectra WHERE libraryId = ? AND specId IN (%s)", placeholders(len(chunk))))
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to translate ids: %w", err)
		}
		for rows.Next() {
			var id int64
			var name string
			if err := rows.Scan(&id, &name); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan record: %w", err)
			}
			out[id] = name
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}

	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, util.Fail(util.ErrNotFound, []any{"id", id}, "spectrum id %d is not in the library", id)
		}
	}
	return out, nil
}

// ListRecords returns every record of libID ordered by id
func (s *Store) ListRecords(ctx context.Context, libID int64) ([]Record, error) {
	return s.Search(ctx, libID, nil, nil)
}

// LibraryFilenames returns the filenames of every record in libID
func (s *Store) LibraryFilenames(ctx context.Context, libID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT filename FROM spectra WHERE libraryId = ? ORDER BY specId"), libID)
	if err != nil {
		return nil, fmt.Errorf("failed to list filenames: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan filename: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteLibrary removes the library row; records and metadata values
// follow through ON DELETE CASCADE
func (s *Store) DeleteLibrary(ctx context.Context, libID int64) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM spectrum_metadata WHERE libraryId = ?"), libID); err != nil {
			return fmt.Errorf("failed to delete metadata: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM spectra WHERE libraryId = ?"), libID); err != nil {
			return fmt.Errorf("failed to delete records: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM libraries WHERE libraryId = ?"), libID); err != nil {
			return fmt.Errorf("failed to delete library: %w", err)
		}
		return nil
	})
}

// GetStats returns record and value counts for libID
func (s *Store) GetStats(ctx context.Context, libID int64) (*Stats, error) {
	stats := &Stats{}
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*), COUNT(DISTINCT originId) FROM spectra WHERE libraryId = ?
	`), libID).Scan(&stats.Spectra, &stats.Origins)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		s.rebind("SELECT COUNT(*) FROM spectrum_metadata WHERE libraryId = ?"), libID).Scan(&stats.Values)
	if err != nil {
		return nil, fmt.Errorf("failed to count metadata values: %w", err)
	}
	return stats, nil
}

// FieldUsage returns, per metadata field used in libID, the number of
// spectra carrying a value for it
func (s *Store) FieldUsage(ctx context.Context, libID int64) (map[string]int64, error) {
	return s.countBy(ctx, `
		SELECT f.name, COUNT(*)
		FROM spectrum_metadata m
		JOIN metadata_fields f ON f.fieldId = m.fieldId
		WHERE m.libraryId = ?
		GROUP BY f.name
	`, libID)
}

// OriginUsage returns, per origin used in libID, the number of spectra it imported
func (s *Store) OriginUsage(ctx context.Context, libID int64) (map[string]int64, error) {
	return s.countBy(ctx, `
		SELECT o.name, COUNT(*)
		FROM spectra s
		JOIN origins o ON o.originId = s.originId
		WHERE s.libraryId = ?
		GROUP BY o.name
	`, libID)
}

func (s *Store) countBy(ctx context.Context, query string, libID int64) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), libID)
	if err != nil {
		return nil, fmt.Errorf("failed to count: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(v sql.NullFloat64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	sec, frac := math.Modf(v.Float64)
	return time.Unix(int64(sec), int64(frac*1e9))
}
