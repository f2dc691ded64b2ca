// Package spectrum holds the in-memory form of spectra: a single
// Spectrum as read from a file, and an Array of spectra sharing one
// wavelength raster, optionally backed by memory other processes can map.
package spectrum

import (
	"math"

	"github.com/franz/speclib/internal/meta"
	"github.com/franz/speclib/internal/util"
)

// Spectrum is one flux measurement on a wavelength raster
type Spectrum struct {
	Wavelengths []float64
	Values      []float64
	ValueErrors []float64 // nil when uncertainties are unknown
	Metadata    meta.Map
}

// Pixels returns the number of raster points
func (s *Spectrum) Pixels() int {
	return len(s.Wavelengths)
}

// Validate checks that the columns line up and the metadata is storable
func (s *Spectrum) Validate() error {
	if s == nil {
		return util.Precondition("spectrum is nil")
	}
	if len(s.Wavelengths) == 0 {
		return util.Precondition("spectrum has no pixels")
	}
	if len(s.Values) != len(s.Wavelengths) {
		return util.Precondition("spectrum has %d values for %d wavelengths", len(s.Values), len(s.Wavelengths))
	}
	if s.ValueErrors != nil && len(s.ValueErrors) != len(s.Wavelengths) {
		return util.Precondition("spectrum has %d errors for %d wavelengths", len(s.ValueErrors), len(s.Wavelengths))
	}
	for i, w := range s.Wavelengths {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return util.Precondition("wavelength %d is not finite", i)
		}
	}
	return s.Metadata.Validate()
}

// Clone returns a deep copy of s
func (s *Spectrum) Clone() *Spectrum {
	out := &Spectrum{
		Wavelengths: append([]float64(nil), s.Wavelengths...),
		Values:      append([]float64(nil), s.Values...),
		Metadata:    s.Metadata.Clone(),
	}
	if s.ValueErrors != nil {
		out.ValueErrors = append([]float64(nil), s.ValueErrors...)
	}
	return out
}

// SameRaster reports whether a and b are sampled at identical wavelengths
func SameRaster(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
