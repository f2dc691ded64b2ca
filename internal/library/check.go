package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/franz/speclib/internal/codec"
	"github.com/franz/speclib/internal/report"
)

// CheckResult lists the problems Check found
type CheckResult struct {
	Records int
	Missing []string // records without a spectrum file
	Damaged []string // spectrum files failing verification
	Orphans []string // spectrum files without a record
}

// OK reports whether the library is consistent
func (r *CheckResult) OK() bool {
	return len(r.Missing) == 0 && len(r.Damaged) == 0 && len(r.Orphans) == 0
}

// Check verifies the index database and cross-checks records against
// the spectrum files in the library directory
func (l *Library) Check(ctx context.Context) (*CheckResult, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	if err := l.db.CheckIntegrity(ctx); err != nil {
		return nil, err
	}

	names, err := l.db.LibraryFilenames(ctx, l.id)
	if err != nil {
		return nil, err
	}
	result := &CheckResult{Records: len(names)}

	known := make(map[string]bool, len(names))
	v, canVerify := l.codec.(verifier)
	for _, name := range names {
		known[name] = true
		path := filepath.Join(l.path, name)
		if _, err := os.Stat(path); err != nil {
			result.Missing = append(result.Missing, name)
			continue
		}
		if canVerify {
			if err := v.Verify(path); err != nil {
				result.Damaged = append(result.Damaged, name)
			}
		}
	}

	entries, err := os.ReadDir(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", l.path, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || known[name] || reservedNames[name] || strings.HasPrefix(name, tempPrefix) {
			continue
		}
		if codec.IsSpectrumFile(filepath.Join(l.path, name)) {
			result.Orphans = append(result.Orphans, name)
		}
	}
	return result, nil
}

// Summary gathers statistics about the library contents
func (l *Library) Summary(ctx context.Context) (*report.SummaryReport, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	summary, err := report.GenerateSummaryReport(ctx, l.db, l.id, l.path)
	if err != nil {
		return nil, err
	}
	summary.UniqueID = l.uniqueID
	summary.TypeTag = l.TypeTag()
	summary.EventLogPath = l.events.Path()
	return summary, nil
}
