package similarity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestThresholdStepFunction(t *testing.T) {
	p := Policy{ShortThreshold: 0.86, LongThreshold: 0.92, LengthCutoff: 48}

	require.Equal(t, 0.86, p.Threshold(0))
	require.Equal(t, 0.86, p.Threshold(47))
	require.Equal(t, 0.92, p.Threshold(48))
	require.Equal(t, 0.92, p.Threshold(49))
	require.Equal(t, 0.92, p.Threshold(10000))
}

func TestAccepts(t *testing.T) {
	p := Policy{ShortThreshold: 0.86, LongThreshold: 0.92, LengthCutoff: 48}

	require.True(t, p.Accepts(0.95, 0.92))
	require.True(t, p.Accepts(0.92, 0.92))
	require.False(t, p.Accepts(0.9199, 0.92))
	require.False(t, p.Accepts(-1, 0.86))
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "zero vector guarded", a: []float32{0, 0, 0}, b: []float32{1, 2, 3}, want: 0},
		{name: "length mismatch", a: []float32{1, 2}, b: []float32{1, 2, 3}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-9)
		})
	}
}

func TestIsZero(t *testing.T) {
	require.True(t, IsZero(nil))
	require.True(t, IsZero([]float32{0, 0, 0}))
	require.False(t, IsZero([]float32{0, 1e-9, 0}))
}
