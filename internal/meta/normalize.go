package meta

import (
	"strings"
	"unicode/utf8"

	"github.com/franz/speclib/internal/util"
	"golang.org/x/text/unicode/norm"
)

// MaxNameLength bounds field, origin and filename lengths (VARCHAR(256))
const MaxNameLength = 256

// Name canonicalizes a registry name: NFC normalized and trimmed, so
// "Fe/H" typed on different systems maps to one id.
func Name(kind, name string) (string, error) {
	name = strings.TrimSpace(norm.NFC.String(name))
	if name == "" {
		return "", util.Precondition("%s name is empty", kind)
	}
	if !utf8.ValidString(name) {
		return "", util.Precondition("%s name %q is not valid UTF-8", kind, name)
	}
	if len(name) > MaxNameLength {
		return "", util.Precondition("%s name %q exceeds %d bytes", kind, name, MaxNameLength)
	}
	return name, nil
}

// FieldName canonicalizes a metadata field name
func FieldName(name string) (string, error) {
	return Name("metadata field", name)
}
