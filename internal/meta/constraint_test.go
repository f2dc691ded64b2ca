package meta

import (
	"errors"
	"testing"

	"github.com/franz/speclib/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBetweenOrderInsensitive(t *testing.T) {
	lo, hi, err := Between(Num(6000), Num(4000)).Bounds()
	require.NoError(t, err)
	assert.True(t, lo.Equal(Num(4000)))
	assert.True(t, hi.Equal(Num(6000)))

	lo, hi, err = Between(Str("M"), Str("A")).Bounds()
	require.NoError(t, err)
	assert.True(t, lo.Equal(Str("A")))
	assert.True(t, hi.Equal(Str("M")))
}

func TestBetweenMixedKinds(t *testing.T) {
	_, _, err := Between(Num(1), Str("z")).Bounds()
	assert.True(t, errors.Is(err, util.ErrPrecondition))

	_, _, err = Between(Value{}, Num(1)).Bounds()
	assert.True(t, errors.Is(err, util.ErrPrecondition))
}

func TestParseConstraint(t *testing.T) {
	tests := []struct {
		in      string
		field   string
		isRange bool
		lo, hi  Value
	}{
		{"Teff=5000", "Teff", false, Num(5000), Num(5000)},
		{"Teff=4000..6000", "Teff", true, Num(4000), Num(6000)},
		{"[Fe/H]=-0.5..-1.5", "[Fe/H]", true, Num(-1.5), Num(-0.5)},
		{"type=G2V", "type", false, Str("G2V"), Str("G2V")},
		{"type=A..M", "type", true, Str("A"), Str("M")},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			field, c, err := ParseConstraint(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.field, field)
			assert.Equal(t, tt.isRange, c.IsRange())
			if !tt.isRange {
				assert.True(t, c.Value().Equal(tt.lo))
				return
			}
			lo, hi, err := c.Bounds()
			require.NoError(t, err)
			assert.True(t, lo.Equal(tt.lo), "lo = %v", lo)
			assert.True(t, hi.Equal(tt.hi), "hi = %v", hi)
		})
	}
}

func TestParseQueryRejectsDuplicates(t *testing.T) {
	_, err := ParseQuery([]string{"Teff=1", "Teff=2"})
	assert.True(t, errors.Is(err, util.ErrPrecondition))

	_, err = ParseQuery([]string{"no-equals-sign"})
	assert.True(t, errors.Is(err, util.ErrPrecondition))
}

func TestParseValue(t *testing.T) {
	assert.True(t, ParseValue("5000").Equal(Num(5000)))
	assert.True(t, ParseValue(" 1e3 ").Equal(Num(1000)))
	assert.True(t, ParseValue("nan").Equal(Str("nan")))
	assert.True(t, ParseValue("inf").Equal(Str("inf")))
	assert.True(t, ParseValue("ting").Equal(Str("ting")))
}

func TestParseAssignments(t *testing.T) {
	m, err := ParseAssignments([]string{"Teff=5000", "origin note=from ting"})
	require.NoError(t, err)
	assert.True(t, m["Teff"].Equal(Num(5000)))
	assert.True(t, m["origin note"].Equal(Str("from ting")))

	_, err = ParseAssignments([]string{"Teff=5000", " Teff =6000"})
	assert.ErrorIs(t, err, util.ErrPrecondition)
}
