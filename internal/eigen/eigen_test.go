/*
Copyright (C) 2024 Especia Contributors.
This file is part of Especia.

Especia is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Especia is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Especia.  If not, see <http://www.gnu.org/licenses/>.
*/

package eigen

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"pgregory.net/rapid"
)

func TestDecomposeIdentity(t *testing.T) {
	a := mat.NewSymDense(3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	b, w, err := Decompose(a)
	require.NoError(t, err)
	for _, wi := range w {
		assert.InDelta(t, 1.0, wi, 1e-12)
	}
	assertOrthogonal(t, b)
}

func TestDecomposeDiagonal(t *testing.T) {
	a := mat.NewSymDense(3, []float64{3, 0, 0, 0, 1, 0, 0, 0, 2})
	_, w, err := Decompose(a)
	require.NoError(t, err)
	sorted := append([]float64(nil), w...)
	sort.Float64s(sorted)
	assert.InDeltaSlice(t, []float64{1, 2, 3}, sorted, 1e-12)
}

// TestDecomposeReferenceScenario reproduces the documented 3x3 symmetric
// eigenvalue scenario.
func TestDecomposeReferenceScenario(t *testing.T) {
	a := mat.NewSymDense(3, []float64{
		1, 2, 3,
		2, 4, 5,
		3, 5, 6,
	})
	_, w, err := Decompose(a)
	require.NoError(t, err)
	sorted := append([]float64(nil), w...)
	sort.Float64s(sorted)
	assert.InDeltaSlice(t, []float64{-0.515729, 0.170915, 11.34480}, sorted, 1e-5)
}

// TestDecomposeReconstructsInput checks that B * diag(w) * B^T reproduces the
// input matrix, and that B is orthogonal, for randomly generated symmetric
// matrices.
func TestDecomposeReconstructsInput(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(rt, "n")
		data := make([]float64, n*n)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				v := rapid.Float64Range(-10, 10).Draw(rt, "v")
				data[i*n+j] = v
				data[j*n+i] = v
			}
		}
		a := mat.NewSymDense(n, data)

		b, w, err := Decompose(a)
		require.NoError(rt, err)

		var diag mat.Dense
		diag.Apply(func(i, j int, _ float64) float64 {
			if i == j {
				return w[i]
			}
			return 0
		}, mat.NewDense(n, n, nil))

		var bw, recon mat.Dense
		bw.Mul(b, &diag)
		recon.Mul(&bw, b.T())

		var maxAbs, maxDiff float64
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				maxAbs = math.Max(maxAbs, math.Abs(a.At(i, j)))
				maxDiff = math.Max(maxDiff, math.Abs(recon.At(i, j)-a.At(i, j)))
			}
		}
		if maxAbs == 0 {
			maxAbs = 1
		}
		assert.Less(rt, maxDiff, 1e-10*maxAbs)

		assertOrthogonal(rt, b)
	})
}

func assertOrthogonal(t require.TestingT, b *mat.Dense) {
	n, _ := b.Dims()
	var gram mat.Dense
	gram.Mul(b.T(), b)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			assert.InDelta(t, want, gram.At(i, j), 1e-9)
		}
	}
}
