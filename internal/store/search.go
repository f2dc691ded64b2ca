package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/franz/speclib/internal/meta"
	"github.com/franz/speclib/internal/util"
)

const searchBase = `SELECT ` + recordColumns + `
FROM spectra s
JOIN origins o ON o.originId = s.originId
WHERE s.libraryId = ?`

const existsClause = `EXISTS (SELECT 1 FROM spectrum_metadata i
	WHERE i.specId = s.specId AND i.libraryId = ? AND i.fieldId = ? AND (%s))`

// Search returns the records of libID satisfying every constraint of q.
// Each field of q must appear in fieldIDs.
func (s *Store) Search(ctx context.Context, libID int64, q meta.Query, fieldIDs map[string]int64) ([]Record, error) {
	query, args, err := compileSearch(libID, q, fieldIDs)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search library: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var imported sql.NullFloat64
		if err := rows.Scan(&rec.ID, &rec.Filename, &rec.Origin, &imported); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.ImportTime = fromUnixSeconds(imported)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// compileSearch turns q into one query with an existence test per field.
// Fields are compiled in sorted order so equal queries give equal SQL.
func compileSearch(libID int64, q meta.Query, fieldIDs map[string]int64) (string, []any, error) {
	names := make([]string, 0, len(q))
	for name := range q {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(searchBase)
	args := []any{libID}

	for _, name := range names {
		fieldID, ok := fieldIDs[name]
		if !ok {
			return "", nil, util.Fail(util.ErrPrecondition, []any{"field", name},
				"cannot search on unknown metadata field %q", name)
		}

		test, operands, err := compileConstraint(q[name])
		if err != nil {
			return "", nil, fmt.Errorf("field %q: %w", name, err)
		}

		b.WriteString("\n  AND ")
		fmt.Fprintf(&b, existsClause, test)
		args = append(args, libID, fieldID)
		args = append(args, operands...)
	}

	b.WriteString("\nORDER BY s.specId")
	return b.String(), args, nil
}

// compileConstraint returns the value test of c against both typed
// columns, with each column bound to an operand of its own type
func compileConstraint(c meta.Constraint) (string, []any, error) {
	if !c.IsRange() {
		v := c.Value()
		if err := v.Validate(); err != nil {
			return "", nil, err
		}
		return "i.valueFloat = ? OR i.valueString = ?", []any{floatOperand(v), v.Text()}, nil
	}

	lo, hi, err := c.Bounds()
	if err != nil {
		return "", nil, err
	}

	floLo, floHi := floatOperand(lo), floatOperand(hi)
	if !floLo.Valid || !floHi.Valid {
		floLo, floHi = sql.NullFloat64{}, sql.NullFloat64{}
	} else if floLo.Float64 > floHi.Float64 {
		floLo, floHi = floHi, floLo
	}

	strLo, strHi := lo.Text(), hi.Text()
	if strLo > strHi {
		strLo, strHi = strHi, strLo
	}

	return "i.valueFloat BETWEEN ? AND ? OR i.valueString BETWEEN ? AND ?",
		[]any{floLo, floHi, strLo, strHi}, nil
}

// floatOperand is v as a float, or NULL when v has no numeric reading
func floatOperand(v meta.Value) sql.NullFloat64 {
	f, ok := v.Float()
	return sql.NullFloat64{Float64: f, Valid: ok}
}
