//go:build unix

package spectrum

import (
	"golang.org/x/sys/unix"
)

const sharedSupported = true

// allocShared maps size bytes of anonymous memory that survives fork
// and is visible to every process holding the mapping
func allocShared(size int) ([]byte, func() error, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, nil, err
	}
	return data, func() error { return unix.Munmap(data) }, nil
}
