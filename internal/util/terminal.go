package util

import (
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether f is attached to a terminal
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// ShowProgress reports whether progress bars should be drawn on f
func ShowProgress(f *os.File) bool {
	return IsTerminal(f) && !IsQuiet()
}
