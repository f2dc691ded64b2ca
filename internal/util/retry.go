package util

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxAttempts int           // Maximum number of attempts, including the first
	InitialWait time.Duration // Initial wait duration (doubled each retry)
	MaxWait     time.Duration // Maximum wait duration between retries
}

// DefaultRetryConfig returns the retry configuration for local disks
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		InitialWait: 50 * time.Millisecond,
		MaxWait:     2 * time.Second,
	}
}

// NetworkRetryConfig returns retry config for libraries on NFS/SMB mounts
func NetworkRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 5,
		InitialWait: 200 * time.Millisecond,
		MaxWait:     10 * time.Second,
	}
}

var retryableErrnos = map[syscall.Errno]bool{
	syscall.EAGAIN:       true,
	syscall.ETIMEDOUT:    true,
	syscall.ECONNRESET:   true,
	syscall.ECONNABORTED: true,
	syscall.ENETDOWN:     true,
	syscall.ENETUNREACH:  true,
	syscall.EHOSTUNREACH: true,
	syscall.EIO:          true,
	syscall.ESTALE:       true,
}

var transientPatterns = []string{
	"timed out",
	"timeout",
	"connection reset",
	"resource temporarily unavailable",
	"stale file handle",
	"database is locked",
	"sqlite_busy",
}

// IsRetryableError reports whether err is a transient filesystem or
// database-lock failure. Taxonomy errors are never retryable.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if CodeOf(err) != "" {
		return false
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return retryableErrnos[errno]
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// RetryWithBackoff runs operation until it succeeds, fails permanently,
// runs out of attempts or ctx is done
func RetryWithBackoff[T any](ctx context.Context, cfg *RetryConfig, operationName string, operation func() (T, error)) (T, error) {
	var result T
	var err error

	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	wait := cfg.InitialWait

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err = operation()
		if err == nil {
			if attempt > 1 {
				DebugLog("Retry: %s succeeded on attempt %d/%d", operationName, attempt, cfg.MaxAttempts)
			}
			return result, nil
		}

		if !IsRetryableError(err) {
			return result, err
		}

		if attempt == cfg.MaxAttempts {
			WarnLog("Retry: %s failed after %d attempts: %v", operationName, cfg.MaxAttempts, err)
			return result, fmt.Errorf("max retries exceeded (%d attempts): %w", cfg.MaxAttempts, err)
		}

		DebugLog("Retry: %s failed (attempt %d/%d), retrying in %v: %v",
			operationName, attempt, cfg.MaxAttempts, wait, err)

		select {
		case <-ctx.Done():
			return result, fmt.Errorf("%s: %w", operationName, ctx.Err())
		case <-time.After(wait):
		}

		wait *= 2
		if wait > cfg.MaxWait {
			wait = cfg.MaxWait
		}
	}

	return result, err
}

// Retry is RetryWithBackoff for operations without a result
func Retry(ctx context.Context, cfg *RetryConfig, operationName string, operation func() error) error {
	_, err := RetryWithBackoff(ctx, cfg, operationName, func() (struct{}, error) {
		return struct{}{}, operation()
	})
	return err
}

// RetryableRemove removes a file, treating an already-missing file as success
func RetryableRemove(ctx context.Context, path string, cfg *RetryConfig) error {
	return Retry(ctx, cfg, fmt.Sprintf("remove(%s)", path), func() error {
		err := os.Remove(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	})
}

// RetryableRename renames a file with retry logic
func RetryableRename(ctx context.Context, oldpath, newpath string, cfg *RetryConfig) error {
	return Retry(ctx, cfg, fmt.Sprintf("rename(%s -> %s)", oldpath, newpath), func() error {
		return os.Rename(oldpath, newpath)
	})
}

// RetryableLink hard-links oldpath to newpath. It fails with os.ErrExist
// when newpath is present, which makes it a no-clobber publish.
func RetryableLink(ctx context.Context, oldpath, newpath string, cfg *RetryConfig) error {
	return Retry(ctx, cfg, fmt.Sprintf("link(%s -> %s)", oldpath, newpath), func() error {
		return os.Link(oldpath, newpath)
	})
}

// RetryableReadFile reads a whole file with retry logic
func RetryableReadFile(ctx context.Context, path string, cfg *RetryConfig) ([]byte, error) {
	return RetryWithBackoff(ctx, cfg, fmt.Sprintf("read(%s)", path), func() ([]byte, error) {
		return os.ReadFile(path)
	})
}
