package util

import (
	"errors"

	"github.com/samber/oops"
)

// Sentinel errors for the store's failure taxonomy
var (
	// ErrPrecondition indicates a caller violated an operation's contract
	// (missing path, mismatched batch lengths, unknown search field, ...)
	ErrPrecondition = errors.New("precondition violated")

	// ErrCorrupt indicates a library or payload exists but is damaged
	ErrCorrupt = errors.New("corrupt library")

	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrCollision indicates a spectrum filename is already taken
	ErrCollision = errors.New("filename collision")

	// ErrUnsupported indicates a format or flavor is not supported
	ErrUnsupported = errors.New("unsupported")
)

// Error codes attached to oops errors, one per sentinel
const (
	CodePrecondition = "precondition_violation"
	CodeCorrupt      = "integrity_corruption"
	CodeNotFound     = "not_found"
	CodeCollision    = "collision_violation"
	CodeUnsupported  = "unsupported"
)

var sentinelCodes = map[error]string{
	ErrPrecondition: CodePrecondition,
	ErrCorrupt:      CodeCorrupt,
	ErrNotFound:     CodeNotFound,
	ErrCollision:    CodeCollision,
	ErrUnsupported:  CodeUnsupported,
}

// Fail builds an error wrapping sentinel with a formatted message.
// kv are alternating key/value pairs attached as structured context.
func Fail(sentinel error, kv []any, format string, args ...any) error {
	builder := oops.Code(sentinelCodes[sentinel])
	if len(kv) > 0 {
		builder = builder.With(kv...)
	}
	return builder.Wrapf(sentinel, format, args...)
}

// Precondition returns an ErrPrecondition failure
func Precondition(format string, args ...any) error {
	return Fail(ErrPrecondition, nil, format, args...)
}

// Corrupt returns an ErrCorrupt failure
func Corrupt(format string, args ...any) error {
	return Fail(ErrCorrupt, nil, format, args...)
}

// NotFound returns an ErrNotFound failure
func NotFound(format string, args ...any) error {
	return Fail(ErrNotFound, nil, format, args...)
}

// Collision returns an ErrCollision failure for filename
func Collision(filename string) error {
	return Fail(ErrCollision, []any{"filename", filename},
		"spectrum %q already exists (use overwrite to replace it)", filename)
}

// CodeOf returns the taxonomy code of err, or "" for foreign errors
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code, ok := oopsErr.Code().(string); ok && code != "" {
			return code
		}
	}
	for sentinel, code := range sentinelCodes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ""
}

// ContextOf returns the structured context attached to err
func ContextOf(err error) map[string]any {
	if oopsErr, ok := oops.AsOops(err); ok {
		return oopsErr.Context()
	}
	return nil
}
