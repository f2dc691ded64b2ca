package spectrum

import (
	"fmt"
	"math"
	"sync"
	"unsafe"

	"github.com/franz/speclib/internal/meta"
	"github.com/franz/speclib/internal/util"
)

// Array is a batch of spectra on one wavelength raster. Fluxes and their
// errors live in two flat row-major buffers of Len() x Pixels() floats.
//
// A shared Array keeps both buffers in an anonymous MAP_SHARED mapping so
// forked workers see the same pages. Release must be called to unmap it;
// after Release the Array must not be used.
type Array struct {
	Wavelengths []float64
	Metadata    []meta.Map

	n         int
	values    []float64
	errors    []float64
	hasErrors []bool

	shared   bool
	mu       sync.Mutex
	release  func() error
	released bool
}

// NewArray allocates room for n spectra on wavelengths. With shared the
// flux buffers come from shared memory where the platform offers it.
func NewArray(wavelengths []float64, n int, shared bool) (*Array, error) {
	if len(wavelengths) == 0 {
		return nil, util.Precondition("array needs a non-empty wavelength raster")
	}
	if n < 0 {
		return nil, util.Precondition("array size %d is negative", n)
	}

	a := &Array{
		Wavelengths: append([]float64(nil), wavelengths...),
		Metadata:    make([]meta.Map, n),
		n:           n,
		hasErrors:   make([]bool, n),
	}

	count := n * len(wavelengths)
	if shared && count > 0 {
		buf, release, err := allocShared(2 * count * 8)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate shared memory: %w", err)
		}
		floats := unsafe.Slice((*float64)(unsafe.Pointer(&buf[0])), 2*count)
		a.values = floats[:count:count]
		a.errors = floats[count:]
		a.release = release
		a.shared = sharedSupported
	} else {
		a.values = make([]float64, count)
		a.errors = make([]float64, count)
	}
	return a, nil
}

// Len returns the number of spectra
func (a *Array) Len() int { return a.n }

// Pixels returns the raster length
func (a *Array) Pixels() int { return len(a.Wavelengths) }

// Shared reports whether the buffers live in shared memory
func (a *Array) Shared() bool { return a.shared }

// Values returns the flux row of spectrum i. The slice aliases the array.
func (a *Array) Values(i int) []float64 {
	p := a.Pixels()
	return a.values[i*p : (i+1)*p : (i+1)*p]
}

// ValueErrors returns the error row of spectrum i, or nil when the
// spectrum was stored without errors. The slice aliases the array.
func (a *Array) ValueErrors(i int) []float64 {
	if !a.hasErrors[i] {
		return nil
	}
	p := a.Pixels()
	return a.errors[i*p : (i+1)*p : (i+1)*p]
}

// Set copies s into slot i. s must be on the array's raster.
func (a *Array) Set(i int, s *Spectrum) error {
	if i < 0 || i >= a.n {
		return util.Precondition("index %d out of range [0, %d)", i, a.n)
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if !SameRaster(a.Wavelengths, s.Wavelengths) {
		return util.Precondition("spectrum %d is not on the array's wavelength raster", i)
	}

	copy(a.Values(i), s.Values)
	p := a.Pixels()
	row := a.errors[i*p : (i+1)*p]
	if s.ValueErrors != nil {
		copy(row, s.ValueErrors)
		a.hasErrors[i] = true
	} else {
		for j := range row {
			row[j] = math.NaN()
		}
		a.hasErrors[i] = false
	}
	a.Metadata[i] = s.Metadata.Clone()
	return nil
}

// Item returns a heap copy of spectrum i
func (a *Array) Item(i int) *Spectrum {
	s := &Spectrum{
		Wavelengths: append([]float64(nil), a.Wavelengths...),
		Values:      append([]float64(nil), a.Values(i)...),
		Metadata:    a.Metadata[i].Clone(),
	}
	if errs := a.ValueErrors(i); errs != nil {
		s.ValueErrors = append([]float64(nil), errs...)
	}
	return s
}

// Release unmaps shared buffers. It is safe to call more than once and
// is a no-op for heap arrays.
func (a *Array) Release() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.released || a.release == nil {
		a.released = true
		return nil
	}
	a.released = true
	a.values, a.errors = nil, nil
	return a.release()
}
