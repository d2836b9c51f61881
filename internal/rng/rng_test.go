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

package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// TestMT19937_64ReferenceVector reproduces the well-known reference test
// vector for mt19937-64 seeded with init_by_array64({0x12345, 0x23456,
// 0x34567, 0x45678}): the first output must be 7266447313870364031.
func TestMT19937_64ReferenceVector(t *testing.T) {
	keys := []uint64{0x12345, 0x23456, 0x34567, 0x45678}
	m := NewMT19937_64Array(keys)

	require.Equal(t, uint64(7266447313870364031), m.Uint64())
}

// TestPCG32ReferenceVector reproduces the standard pcg32 demo vector for
// state=42, stream=54: the first 32-bit output must be 0xa15c02b7.
func TestPCG32ReferenceVector(t *testing.T) {
	p := NewPCG32(42, 54)

	require.Equal(t, uint32(0xa15c02b7), p.Uint32())
}

func TestMT19937_64IsDeterministic(t *testing.T) {
	a := NewMT19937_64Array([]uint64{1, 2, 3})
	b := NewMT19937_64Array([]uint64{1, 2, 3})

	for i := 0; i < 1000; i++ {
		assert.Equal(t, a.Uint64(), b.Uint64())
	}
}

func TestFloat64InUnitInterval(t *testing.T) {
	m := NewMT19937_64(1)
	p := NewPCG32(1, 1)

	for i := 0; i < 10000; i++ {
		f := m.Float64()
		assert.GreaterOrEqual(t, f, 0.0)
		assert.Less(t, f, 1.0)

		g := p.Float64()
		assert.GreaterOrEqual(t, g, 0.0)
		assert.Less(t, g, 1.0)
	}
}

func TestNormalDeviateMeanAndVariance(t *testing.T) {
	d := NewNormalDeviate(NewMT19937_64(31415))

	const n = 200000
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = d.Next()
	}
	mean, variance := stat.MeanVariance(samples, nil)

	assert.InDelta(t, 0.0, mean, 0.02)
	assert.InDelta(t, 1.0, variance, 0.05)
}

// TestUniformBucketsMatchIndependentGenerator buckets draws from each of
// this package's sources and from golang.org/x/exp/rand, an unrelated
// generator, into deciles of the unit interval and checks that each
// histogram's chi-squared statistic against the uniform expectation stays
// below the same loose bound: a coarse cross-check that Float64 is not
// biased toward any sub-range, without asserting bit-exact agreement
// between unrelated algorithms.
func TestUniformBucketsMatchIndependentGenerator(t *testing.T) {
	const n = 100000
	const buckets = 10

	reference := rand.New(rand.NewSource(31415))

	bucketOf := func(f float64) int {
		b := int(f * buckets)
		if b >= buckets {
			b = buckets - 1
		}
		return b
	}

	for _, source := range []Source{NewMT19937_64(2718), NewPCG32(2718, 1)} {
		counts := make([]float64, buckets)
		referenceCounts := make([]float64, buckets)
		for i := 0; i < n; i++ {
			counts[bucketOf(source.Float64())]++
			referenceCounts[bucketOf(reference.Float64())]++
		}

		expected := make([]float64, buckets)
		for i := range expected {
			expected[i] = n / buckets
		}

		chi2 := distuv.ChiSquared{K: float64(buckets - 1)}
		statistic := stat.ChiSquare(counts, expected)
		referenceStatistic := stat.ChiSquare(referenceCounts, expected)

		// Both histograms should sit well inside the bulk of the
		// reference chi-squared distribution for a uniform source;
		// this is a sanity bound, not a formal hypothesis test.
		assert.Less(t, statistic, chi2.Quantile(0.999))
		assert.Less(t, referenceStatistic, chi2.Quantile(0.999))
	}
}
