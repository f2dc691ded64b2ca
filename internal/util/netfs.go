package util

import (
	"fmt"
	"path/filepath"
)

// MountInfo describes the filesystem a library root lives on
type MountInfo struct {
	IsNetwork bool   // NFS/SMB/sshfs and friends
	Protocol  string // filesystem type name, empty when unknown
	MountPath string // longest mount point containing the path
}

// DetectMount inspects the filesystem holding path. Libraries on network
// mounts get relaxed SQLite pragmas and a more patient retry policy.
func DetectMount(path string) (*MountInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	return detectMount(absPath)
}

// IsNetworkPath reports whether path is on a network filesystem.
// Detection failures count as local.
func IsNetworkPath(path string) bool {
	info, err := DetectMount(path)
	if err != nil {
		DebugLog("Mount detection failed for %s: %v", path, err)
		return false
	}
	return info.IsNetwork
}

// RetryConfigFor picks the retry policy for files under path
func RetryConfigFor(path string) *RetryConfig {
	if IsNetworkPath(path) {
		return NetworkRetryConfig()
	}
	return DefaultRetryConfig()
}
