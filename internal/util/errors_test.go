package util

import (
	"errors"
	"fmt"
	"testing"
)

func TestTaxonomyErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		code     string
	}{
		{"precondition", Precondition("library %s already exists", "x"), ErrPrecondition, CodePrecondition},
		{"corrupt", Corrupt("missing unique_id"), ErrCorrupt, CodeCorrupt},
		{"not found", NotFound("no library %q", "abc"), ErrNotFound, CodeNotFound},
		{"collision", Collision("a.dat"), ErrCollision, CodeCollision},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.sentinel)
			}
			if got := CodeOf(tt.err); got != tt.code {
				t.Errorf("CodeOf = %q, expected %q", got, tt.code)
			}

			wrapped := fmt.Errorf("failed to insert: %w", tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Error("sentinel lost through fmt.Errorf wrapping")
			}
			if got := CodeOf(wrapped); got != tt.code {
				t.Errorf("CodeOf(wrapped) = %q, expected %q", got, tt.code)
			}
		})
	}
}

func TestCollisionContext(t *testing.T) {
	err := Collision("a.dat")
	ctx := ContextOf(err)
	if ctx["filename"] != "a.dat" {
		t.Errorf("expected filename context, got %v", ctx)
	}
}

func TestCodeOfForeignError(t *testing.T) {
	if got := CodeOf(errors.New("boom")); got != "" {
		t.Errorf("expected empty code, got %q", got)
	}
	if got := CodeOf(nil); got != "" {
		t.Errorf("expected empty code for nil, got %q", got)
	}
}
