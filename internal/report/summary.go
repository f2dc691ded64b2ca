package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/speclib/internal/store"
	"github.com/franz/speclib/internal/util"
)

// SummaryReport describes the contents of one library
type SummaryReport struct {
	GeneratedAt time.Time

	Path     string
	UniqueID string
	TypeTag  string

	Spectra     int64
	Values      int64
	DiskBytes   int64
	MissingData int // records whose file is gone

	Fields  []Usage
	Origins []Usage

	EventLogPath string
}

// Usage is a name with the number of spectra referring to it
type Usage struct {
	Name  string
	Count int64
}

// GenerateSummaryReport gathers statistics for library libID stored under root
func GenerateSummaryReport(ctx context.Context, db *store.Store, libID int64, root string) (*SummaryReport, error) {
	report := &SummaryReport{
		GeneratedAt: time.Now(),
		Path:        root,
	}

	stats, err := db.GetStats(ctx, libID)
	if err != nil {
		return nil, err
	}
	report.Spectra = stats.Spectra
	report.Values = stats.Values

	fields, err := db.FieldUsage(ctx, libID)
	if err != nil {
		return nil, err
	}
	report.Fields = sortedUsage(fields)

	origins, err := db.OriginUsage(ctx, libID)
	if err != nil {
		return nil, err
	}
	report.Origins = sortedUsage(origins)

	names, err := db.LibraryFilenames(ctx, libID)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		size, err := util.FileSize(filepath.Join(root, name))
		if err != nil {
			report.MissingData++
			continue
		}
		report.DiskBytes += size
	}

	return report, nil
}

// sortedUsage orders counts by descending count, then name
func sortedUsage(counts map[string]int64) []Usage {
	out := make([]Usage, 0, len(counts))
	for name, n := range counts {
		out = append(out, Usage{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// WriteMarkdownReport renders report as Markdown to outputPath
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(outputPath, []byte(RenderMarkdown(report)), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// RenderMarkdown renders report as Markdown
func RenderMarkdown(report *SummaryReport) string {
	var md strings.Builder

	md.WriteString("# Spectrum Library - Summary Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))
	md.WriteString(fmt.Sprintf("**Library:** `%s`\n\n", truncatePath(report.Path, 80)))
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}

	md.WriteString("---\n\n")

	md.WriteString("## Overview\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	if report.TypeTag != "" {
		md.WriteString(fmt.Sprintf("| Type | %s |\n", report.TypeTag))
	}
	if report.UniqueID != "" {
		md.WriteString(fmt.Sprintf("| Unique ID | `%s` |\n", report.UniqueID))
	}
	md.WriteString(fmt.Sprintf("| Spectra | %s |\n", humanize.Comma(report.Spectra)))
	md.WriteString(fmt.Sprintf("| Metadata Values | %s |\n", humanize.Comma(report.Values)))
	md.WriteString(fmt.Sprintf("| Disk Usage | %s |\n", humanize.Bytes(uint64(report.DiskBytes))))
	if report.MissingData > 0 {
		md.WriteString(fmt.Sprintf("| Missing Files | %d |\n", report.MissingData))
	}
	md.WriteString("\n")

	if len(report.Fields) > 0 {
		md.WriteString("## Metadata Fields\n\n")
		md.WriteString("| Field | Spectra |\n")
		md.WriteString("|-------|---------|\n")
		for _, u := range report.Fields {
			md.WriteString(fmt.Sprintf("| %s | %d |\n", u.Name, u.Count))
		}
		md.WriteString("\n")
	}

	if len(report.Origins) > 0 {
		md.WriteString("## Origins\n\n")
		md.WriteString("| Origin | Spectra |\n")
		md.WriteString("|--------|---------|\n")
		for _, u := range report.Origins {
			md.WriteString(fmt.Sprintf("| %s | %d |\n", u.Name, u.Count))
		}
		md.WriteString("\n")
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by speclib*\n")
	return md.String()
}

// truncatePath truncates a file path to a maximum length
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	// Truncate from the middle, keeping start and end
	start := maxLen/2 - 2
	end := len(path) - (maxLen/2 - 2)
	return path[:start] + "..." + path[end:]
}
