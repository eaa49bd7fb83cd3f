// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package similarity

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 2, 3}, []float32{-1, -2, -3}, -1.0},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1.0},
		{"partial", []float32{1, 1}, []float32{1, 0}, 1 / math.Sqrt2},
		{"empty", []float32{}, []float32{}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim, err := Cosine(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, sim, 1e-9)
		})
	}
}

func TestCosine_ExactForUnitVectors(t *testing.T) {
	sim, err := Cosine([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.Equal(t, 1.0, sim)
}

func TestCosine_ZeroVector(t *testing.T) {
	zero := []float32{0, 0, 0}

	sim, err := Cosine([]float32{3, 4, 5}, zero)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim)

	sim, err = Cosine(zero, zero)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim)
}

func TestCosine_DimensionMismatch(t *testing.T) {
	_, err := Cosine([]float32{1, 2}, []float32{1, 2, 3})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestCosine_SymmetricAndBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		dim := 1 + rng.Intn(64)
		a := make([]float32, dim)
		b := make([]float32, dim)
		for j := 0; j < dim; j++ {
			a[j] = float32(rng.NormFloat64() * 10)
			b[j] = float32(rng.NormFloat64() * 10)
		}
		if i%7 == 0 {
			copy(b, a)
		}

		ab, err := Cosine(a, b)
		require.NoError(t, err)
		ba, err := Cosine(b, a)
		require.NoError(t, err)

		assert.Equal(t, ab, ba)
		assert.GreaterOrEqual(t, ab, -1.0)
		assert.LessOrEqual(t, ab, 1.0)
	}
}
