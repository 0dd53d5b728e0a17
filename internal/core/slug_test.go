package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatID(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Alfa Romeo", "alfa-romeo"},
		{"Citroën C4", "citroen-c4"},
		{"Škoda", "skoda"},
		{"  --Mercedes-Benz!! ", "mercedes-benz"},
		{"124 GT MULTIAIR 1.4l Petrol", "124-gt-multiair-1-4l-petrol"},
		{"DS 3 / Crossback", "ds-3-crossback"},
		{"!!!", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatID(tt.name)
			assert.Equal(t, tt.want, got)
			if got != "" {
				assert.True(t, IsSlug(got), "FormatID output %q is not a slug", got)
			}
		})
	}
}

func TestIsSlug(t *testing.T) {
	assert.True(t, IsSlug("abarth-124"))
	assert.True(t, IsSlug("3-series"))
	assert.False(t, IsSlug("Abarth"))
	assert.False(t, IsSlug("abarth 124"))
	assert.False(t, IsSlug("citroën"))
	assert.False(t, IsSlug(""))
}
