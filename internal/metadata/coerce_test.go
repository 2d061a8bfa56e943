package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoerceScalar(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
	}{
		{"empty", "", ""},
		{"true", "true", true},
		{"true mixed case", "True", true},
		{"false upper", "FALSE", false},
		{"int", "42", int64(42)},
		{"negative int", "-17", int64(-17)},
		{"plus int", "+3", int64(3)},
		{"float", "2.5", 2.5},
		{"leading dot", ".5", 0.5},
		{"trailing dot", "1.", 1.0},
		{"exponent", "1e3", 1000.0},
		{"signed exponent", "-1.5E-2", -0.015},
		{"word", "DAPI", "DAPI"},
		{"word with e", "edge", "edge"},
		{"padded int stays string", "42 ", "42 "},
		{"version string", "1.2.3", "1.2.3"},
		{"hex stays string", "0x1F", "0x1F"},
		{"overflow stays string", "92233720368547758089", "92233720368547758089"},
		{"lone dot", ".", "."},
		{"lone sign", "-", "-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CoerceScalar(tt.in))
		})
	}
}
