package library

import (
	"context"

	"github.com/franz/speclib/internal/util"
)

// Selector picks spectra either by id or by filename. Exactly one of
// the two lists must be set.
type Selector struct {
	IDs       []int64
	Filenames []string
}

// ByIDs selects spectra by id
func ByIDs(ids ...int64) Selector {
	return Selector{IDs: ids}
}

// ByFilenames selects spectra by filename
func ByFilenames(names ...string) Selector {
	return Selector{Filenames: names}
}

// Validate checks that s names spectra one way only
func (s Selector) Validate() error {
	switch {
	case s.IDs != nil && s.Filenames != nil:
		return util.Precondition("select spectra by ids or by filenames, not both")
	case s.IDs == nil && s.Filenames == nil:
		return util.Precondition("no spectra selected")
	}
	return nil
}

// Len returns the number of selected spectra
func (s Selector) Len() int {
	if s.IDs != nil {
		return len(s.IDs)
	}
	return len(s.Filenames)
}

// resolve returns ids and filenames of the selection in selector order
func (l *Library) resolve(ctx context.Context, sel Selector) ([]int64, []string, error) {
	if err := sel.Validate(); err != nil {
		return nil, nil, err
	}

	if sel.IDs != nil {
		byID, err := l.db.IDsToFilenames(ctx, l.id, sel.IDs)
		if err != nil {
			return nil, nil, err
		}
		names := make([]string, len(sel.IDs))
		for i, id := range sel.IDs {
			names[i] = byID[id]
		}
		return sel.IDs, names, nil
	}

	names := make([]string, len(sel.Filenames))
	for i, name := range sel.Filenames {
		clean, err := cleanFilename(name)
		if err != nil {
			return nil, nil, err
		}
		names[i] = clean
	}
	byName, err := l.db.FilenamesToIDs(ctx, l.id, names)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]int64, len(names))
	for i, name := range names {
		ids[i] = byName[name]
	}
	return ids, names, nil
}
