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

package cmaes

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniform(n int, v float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = v
	}
	return x
}

func sphere(x []float64) float64 {
	var s float64
	for _, xi := range x {
		s += xi * xi
	}
	return s
}

func ellipsoid(x []float64) float64 {
	n := len(x)
	var s float64
	for i, xi := range x {
		a := math.Pow(1.0e+06, float64(i)/float64(n-1))
		s += a * xi * xi
	}
	return s
}

func cigar(x []float64) float64 {
	s := x[0] * x[0]
	for _, xi := range x[1:] {
		s += 1.0e+06 * xi * xi
	}
	return s
}

func tablet(x []float64) float64 {
	s := 1.0e+06 * x[0] * x[0]
	for _, xi := range x[1:] {
		s += xi * xi
	}
	return s
}

func rosenbrock(x []float64) float64 {
	var s float64
	for i := 0; i+1 < len(x); i++ {
		d := x[i]*x[i] - x[i+1]
		s += 100.0*d*d + (x[i]-1.0)*(x[i]-1.0)
	}
	return s
}

func differentPowers(x []float64) float64 {
	n := len(x)
	var s float64
	for i, xi := range x {
		p := 2.0 + 8.0*float64(i)/float64(n-1)
		s += math.Pow(math.Abs(xi), p)
	}
	return s
}

func TestMinimizeQuadraticFamilies(t *testing.T) {
	const n = 10
	cases := []struct {
		name string
		f    Func
	}{
		{"sphere", sphere},
		{"ellipsoid", ellipsoid},
		{"cigar", cigar},
		{"tablet", tablet},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			opt := NewBuilder().
				WithProblemDimension(n).
				WithRandomSeed(31415).
				WithStopGeneration(400).
				WithAccuracyGoal(1.0e-06).
				Build()

			result, err := opt.Minimize(c.f, uniform(n, 1.0), uniform(n, 1.0), 1.0, NoConstraint{}, NoTracer{})
			require.NoError(t, err)
			assert.True(t, result.Optimized, "expected convergence")
			assert.Less(t, result.Y, 1.0e-10)
		})
	}
}

func TestMinimizeRosenbrock(t *testing.T) {
	const n = 10
	opt := NewBuilder().
		WithProblemDimension(n).
		WithRandomSeed(31415).
		WithStopGeneration(400).
		WithAccuracyGoal(1.0e-06).
		Build()

	result, err := opt.Minimize(rosenbrock, uniform(n, 0.0), uniform(n, 1.0), 0.1, NoConstraint{}, NoTracer{})
	require.NoError(t, err)
	assert.True(t, result.Optimized)

	var maxAbs float64
	for _, xi := range result.X {
		if d := math.Abs(xi - 1.0); d > maxAbs {
			maxAbs = d
		}
	}
	assert.Less(t, maxAbs, 1.0e-06)
}

func TestMinimizeDifferentPowers(t *testing.T) {
	const n = 10
	opt := NewBuilder().
		WithProblemDimension(n).
		WithRandomSeed(31415).
		WithStopGeneration(400).
		WithAccuracyGoal(1.0e-06).
		Build()

	result, err := opt.Minimize(differentPowers, uniform(n, 1.0), uniform(n, 1.0), 1.0, NoConstraint{}, NoTracer{})
	require.NoError(t, err)
	assert.True(t, result.Optimized)
	assert.Less(t, result.Y, 1.0e-10)
}

func TestMinimizeParallelMatchesSequential(t *testing.T) {
	const n = 6
	f := sphere

	seq := NewBuilder().WithProblemDimension(n).WithRandomSeed(271828).WithStopGeneration(200).Build()
	par := NewBuilder().WithProblemDimension(n).WithRandomSeed(271828).WithStopGeneration(200).WithWorkers(4).Build()

	rs, err := seq.Minimize(f, uniform(n, 1.0), uniform(n, 1.0), 1.0, NoConstraint{}, NoTracer{})
	require.NoError(t, err)
	rp, err := par.Minimize(f, uniform(n, 1.0), uniform(n, 1.0), 1.0, NoConstraint{}, NoTracer{})
	require.NoError(t, err)

	// Sampling stays sequential even when fitness evaluation is dispatched
	// to a worker pool, so both runs must reach the same state.
	assert.Equal(t, rs.Generation, rp.Generation)
	for i := range rs.X {
		assert.InDelta(t, rs.X[i], rp.X[i], 1.0e-12)
	}
}

func TestMinimizeUnderflow(t *testing.T) {
	const n = 4
	constant := func(x []float64) float64 { return 1.0 }

	opt := NewBuilder().WithProblemDimension(n).WithRandomSeed(1).WithStopGeneration(50).Build()
	result, err := opt.Minimize(constant, uniform(n, 0.0), uniform(n, 1.0), 1.0, NoConstraint{}, NoTracer{})
	require.NoError(t, err)
	assert.True(t, result.Underflow)
	assert.False(t, result.Optimized)
}
