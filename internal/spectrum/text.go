package spectrum

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/franz/speclib/internal/meta"
	"github.com/franz/speclib/internal/util"
)

// ParseText reads a whitespace-separated column spectrum:
//
//	# Teff = 5000
//	# object = HD 10700
//	4000.0  0.93  0.01
//	4000.5  0.94  0.01
//
// Columns are wavelength, value and an optional error. Comment lines of
// the form "# field = value" become metadata; other comments are skipped.
func ParseText(r io.Reader) (*Spectrum, error) {
	s := &Spectrum{Metadata: meta.Map{}}
	withErrors := -1

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if comment, ok := strings.CutPrefix(line, "#"); ok {
			if strings.Contains(comment, "=") {
				field, v, err := meta.ParseAssignment(comment)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				s.Metadata[field] = v
			}
			continue
		}

		cols := strings.Fields(line)
		if len(cols) < 2 || len(cols) > 3 {
			return nil, util.Precondition("line %d: expected 2 or 3 columns, got %d", lineNo, len(cols))
		}
		if withErrors == -1 {
			withErrors = len(cols) - 2
		} else if len(cols)-2 != withErrors {
			return nil, util.Precondition("line %d: inconsistent column count", lineNo)
		}

		var row [3]float64
		for i, col := range cols {
			f, err := strconv.ParseFloat(col, 64)
			if err != nil {
				return nil, util.Precondition("line %d: column %d: %v", lineNo, i+1, err)
			}
			row[i] = f
		}
		s.Wavelengths = append(s.Wavelengths, row[0])
		s.Values = append(s.Values, row[1])
		if withErrors == 1 {
			s.ValueErrors = append(s.ValueErrors, row[2])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read spectrum: %w", err)
	}

	if len(s.Metadata) == 0 {
		s.Metadata = nil
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// WriteText writes s in the format ParseText reads
func WriteText(w io.Writer, s *Spectrum) error {
	bw := bufio.NewWriter(w)
	for _, name := range s.Metadata.Keys() {
		fmt.Fprintf(bw, "# %s = %s\n", name, s.Metadata[name].Text())
	}
	for i, wl := range s.Wavelengths {
		bw.WriteString(strconv.FormatFloat(wl, 'g', -1, 64))
		bw.WriteByte(' ')
		bw.WriteString(strconv.FormatFloat(s.Values[i], 'g', -1, 64))
		if s.ValueErrors != nil {
			bw.WriteByte(' ')
			bw.WriteString(strconv.FormatFloat(s.ValueErrors[i], 'g', -1, 64))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
