package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/franz/speclib/internal/meta"
	"github.com/franz/speclib/internal/util"
)

// SetMetadata writes values onto every spectrum in ids. fieldIDs must
// resolve every key of values; the whole batch commits in one transaction.
func (s *Store) SetMetadata(ctx context.Context, libID int64, ids []int64, values meta.Map, fieldIDs map[string]int64) error {
	if len(ids) == 0 || len(values) == 0 {
		return nil
	}

	return s.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.rebind(`
			INSERT INTO spectrum_metadata (specId, fieldId, libraryId, valueFloat, valueString)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (specId, fieldId) DO UPDATE SET
				valueFloat = excluded.valueFloat,
				valueString = excluded.valueString
		`))
		if err != nil {
			return fmt.Errorf("failed to prepare metadata upsert: %w", err)
		}
		defer stmt.Close()

		for _, name := range values.Keys() {
			v := values[name]
			fieldID, ok := fieldIDs[name]
			if !ok {
				return util.Fail(util.ErrPrecondition, []any{"field", name}, "metadata field %q is not registered", name)
			}
			num, str, err := columns(v)
			if err != nil {
				return fmt.Errorf("field %q: %w", name, err)
			}

			for _, id := range ids {
				if _, err := stmt.ExecContext(ctx, id, fieldID, libID, num, str); err != nil {
					return fmt.Errorf("failed to set %q on spectrum %d: %w", name, id, err)
				}
			}
		}
		return nil
	})
}

// GetMetadata returns the stored metadata of every spectrum in ids. Each
// id is present in the result, with an empty Map when nothing is stored.
func (s *Store) GetMetadata(ctx context.Context, libID int64, ids []int64) (map[int64]meta.Map, error) {
	out := make(map[int64]meta.Map, len(ids))
	for _, id := range ids {
		out[id] = meta.Map{}
	}

	for start := 0; start < len(ids); start += chunkSize {
		chunk := ids[start:min(start+chunkSize, len(ids))]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, libID)
		for _, id := range chunk {
			args = append(args, id)
		}

		query := s.rebind(fmt.Sprintf(`
			SELECT m.specId, f.name, m.valueFloat, m.valueString
			FROM spectrum_metadata m
			JOIN metadata_fields f ON f.fieldId = m.fieldId
			WHERE m.libraryId = ? AND m.specId IN (%s)
		`, placeholders(len(chunk))))

		if err := s.scanValues(ctx, query, args, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) scanValues(ctx context.Context, query string, args []any, out map[int64]meta.Map) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			name string
			num  sql.NullFloat64
			str  sql.NullString
		)
		if err := rows.Scan(&id, &name, &num, &str); err != nil {
			return fmt.Errorf("failed to scan metadata: %w", err)
		}

		switch {
		case num.Valid:
			out[id][name] = meta.Num(num.Float64)
		case str.Valid:
			out[id][name] = meta.Str(str.String)
		default:
			return util.Fail(util.ErrCorrupt, []any{"field", name, "id", id},
				"metadata field %q of spectrum %d has no value", name, id)
		}
	}
	return rows.Err()
}

// columns splits v into its (valueFloat, valueString) column pair
func columns(v meta.Value) (sql.NullFloat64, sql.NullString, error) {
	if err := v.Validate(); err != nil {
		return sql.NullFloat64{}, sql.NullString{}, err
	}
	if v.IsNum() {
		f, _ := v.Float()
		return sql.NullFloat64{Float64: f, Valid: true}, sql.NullString{}, nil
	}
	return sql.NullFloat64{}, sql.NullString{String: v.Text(), Valid: true}, nil
}
