package util

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func fastRetry() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		InitialWait: 5 * time.Millisecond,
		MaxWait:     20 * time.Millisecond,
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"EAGAIN", syscall.EAGAIN, true},
		{"ETIMEDOUT", syscall.ETIMEDOUT, true},
		{"ESTALE", syscall.ESTALE, true},
		{"ENOENT (not retryable)", syscall.ENOENT, false},
		{"EEXIST (not retryable)", syscall.EEXIST, false},
		{"PathError with EIO", &os.PathError{Op: "open", Path: "/x", Err: syscall.EIO}, true},
		{"LinkError with EEXIST", &os.LinkError{Op: "link", Old: "a", New: "b", Err: syscall.EEXIST}, false},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"generic error", errors.New("invalid argument"), false},
		{"taxonomy error", Precondition("timeout is not a valid field"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.expected {
				t.Errorf("IsRetryableError(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestRetryWithBackoff_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	result, err := RetryWithBackoff(context.Background(), fastRetry(), "test operation", func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", syscall.ETIMEDOUT
		}
		return "success", nil
	})

	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if result != "success" {
		t.Errorf("expected result 'success', got: %s", result)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got: %d", attempts)
	}
}

func TestRetryWithBackoff_FailureAfterMaxRetries(t *testing.T) {
	attempts := 0
	_, err := RetryWithBackoff(context.Background(), fastRetry(), "test operation", func() (int, error) {
		attempts++
		return 0, syscall.ETIMEDOUT
	})

	if err == nil {
		t.Fatal("expected error after max retries, got nil")
	}
	if !errors.Is(err, syscall.ETIMEDOUT) {
		t.Errorf("expected wrapped ETIMEDOUT, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got: %d", attempts)
	}
}

func TestRetryWithBackoff_NonRetryableError(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetry(), "test operation", func() error {
		attempts++
		return syscall.ENOENT
	})

	if !errors.Is(err, syscall.ENOENT) {
		t.Errorf("expected ENOENT, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got: %d", attempts)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := &RetryConfig{MaxAttempts: 5, InitialWait: time.Second, MaxWait: time.Second}
	attempts := 0
	err := Retry(ctx, cfg, "test operation", func() error {
		attempts++
		return syscall.EAGAIN
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt before cancellation, got: %d", attempts)
	}
}

func TestRetryableLink_NoClobber(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	if err := os.WriteFile(src, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := RetryableLink(context.Background(), src, dst, fastRetry())
	if !errors.Is(err, os.ErrExist) {
		t.Fatalf("expected os.ErrExist, got: %v", err)
	}

	data, _ := os.ReadFile(dst)
	if string(data) != "b" {
		t.Errorf("destination was clobbered: %q", data)
	}
}

func TestRetryableRemove_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing")
	if err := RetryableRemove(context.Background(), path, fastRetry()); err != nil {
		t.Errorf("removing a missing file should succeed, got: %v", err)
	}
}

func TestNetworkRetryConfig(t *testing.T) {
	local := DefaultRetryConfig()
	network := NetworkRetryConfig()

	if network.MaxAttempts <= local.MaxAttempts {
		t.Errorf("expected more attempts on network mounts, got %d <= %d", network.MaxAttempts, local.MaxAttempts)
	}
	if network.InitialWait <= local.InitialWait {
		t.Errorf("expected longer initial wait on network mounts")
	}
}
