//go:build !unix

package spectrum

const sharedSupported = false

// allocShared falls back to the Go heap where anonymous shared
// mappings are unavailable
func allocShared(size int) ([]byte, func() error, error) {
	return make([]byte, size), nil, nil
}
