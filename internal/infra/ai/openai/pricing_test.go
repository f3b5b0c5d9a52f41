package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateCost(t *testing.T) {
	cases := []struct {
		name  string
		model string
		in    int
		out   int
		want  float64
	}{
		{"gpt-4o-mini", "gpt-4o-mini", 1000, 1000, 0.00015 + 0.0006},
		{"mini matched before base model", "gpt-4o-mini-2024-07-18", 1000, 0, 0.00015},
		{"dated gpt-4o", "gpt-4o-2024-08-06", 1000, 1000, 0.0025 + 0.01},
		{"o4-mini", "o4-mini", 2000, 500, 2*0.0011 + 0.5*0.0044},
		{"unknown model falls back", "some-future-model", 1000, 1000, 0.0025 + 0.01},
		{"zero tokens", "gpt-4o", 0, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CalculateCost(tc.model, tc.in, tc.out)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestCalculateCostScalesLinearly(t *testing.T) {
	one := CalculateCost("gpt-4o", 1000, 1000)
	ten := CalculateCost("gpt-4o", 10000, 10000)
	assert.InDelta(t, one*10, ten, 1e-9)
}
