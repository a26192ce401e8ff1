package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"02-05-00", "02-05-00"},
		{"02 05 00", "02-05-00"},
		{"020500", "02-05-00"},
		{"9b-01-00", "9B-01-00"},
		{"  9B 01  00 ", "9B-01-00"},
		{"", ""},
		{"A", "A"},
		{"ABC", "AB-C"},
	}

	for _, tc := range tests {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"02-05-00", "9b0100", "C8 3B", "00-00-00-00", "f", ""}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
}

func TestNormalizeBytes(t *testing.T) {
	assert.Equal(t, "9B-01-00", NormalizeBytes([]byte{0x9B, 0x01, 0x00}))
	assert.Equal(t, "00", NormalizeBytes([]byte{0x00}))
	assert.Equal(t, "", NormalizeBytes(nil))
	// Byte and string normalization agree.
	assert.Equal(t, Normalize("c83b"), NormalizeBytes([]byte{0xC8, 0x3B}))
}

func TestParseSpec(t *testing.T) {
	spec, err := ParseSpec("")
	require.NoError(t, err)
	assert.Nil(t, spec)

	spec, err = ParseSpec("02 05 00")
	require.NoError(t, err)
	require.NotNil(t, spec)
	assert.Equal(t, "02-05-00", spec.Press)
	assert.False(t, spec.HasRelease())
	assert.Equal(t, "02-05-00", spec.String())

	spec, err = ParseSpec("9b-01-00, 9b-00-00")
	require.NoError(t, err)
	require.NotNil(t, spec)
	assert.Equal(t, "9B-01-00", spec.Press)
	assert.Equal(t, "9B-00-00", spec.Release)
	assert.True(t, spec.HasRelease())
	assert.Equal(t, "9B-01-00,9B-00-00", spec.String())

	_, err = ParseSpec("01,02,03")
	assert.Error(t, err)

	_, err = ParseSpec(",02")
	assert.Error(t, err)
}

func TestMatchSinglePrefixTolerance(t *testing.T) {
	spec := &Spec{Press: "02-05-00"}

	tests := []struct {
		candidate string
		want      MatchResult
	}{
		{"02-05-00", IsPress},
		{"02-05", IsPress},       // shorter firmware payload
		{"02-05-00-00", IsPress}, // zero-padded firmware payload
		{"02-05-01", NoMatch},
		{"03-05-00", NoMatch},
		{"", NoMatch},
	}

	for _, tc := range tests {
		if got := spec.Match(tc.candidate); got != tc.want {
			t.Errorf("Match(%q) = %v, want %v", tc.candidate, got, tc.want)
		}
	}
}

func TestMatchPressReleaseOrdering(t *testing.T) {
	spec := &Spec{Press: "9B-01-00", Release: "9B-00-00"}

	assert.Equal(t, IsPress, spec.Match("9B-01-00"))
	assert.Equal(t, IsRelease, spec.Match("9B-00-00"))

	// A release pattern that prefixes the press pattern must win, otherwise a
	// badly chosen pair would trigger twice per physical press.
	overlap := &Spec{Press: "9B-01-00", Release: "9B"}
	assert.Equal(t, IsRelease, overlap.Match("9B-01-00"))
}

func TestMatchNilSpec(t *testing.T) {
	var spec *Spec
	assert.Equal(t, NoMatch, spec.Match("02-05-00"))
	assert.False(t, spec.HasRelease())
	assert.Equal(t, "", spec.String())
}
