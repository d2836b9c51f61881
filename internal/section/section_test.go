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

package section

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// zeroModel is an optical depth model with no absorption anywhere.
type zeroModel struct{}

func (zeroModel) OpticalDepth(x float64) float64 { return 0.0 }

func sampleWavelengths(n int, lo, hi float64) []float64 {
	wav := make([]float64, n)
	for i := range wav {
		wav[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return wav
}

func TestGetParsesDataAndFiltersRange(t *testing.T) {
	data := "# comment\n" +
		"4000.0 1.0 0.1 true\n" +
		"4001.0 0.9 0.1\n" +
		"5000.0 0.8\n"

	s, err := Get(strings.NewReader(data), 0, 4500)
	require.NoError(t, err)
	assert.Equal(t, 2, s.DataCount())
	assert.Equal(t, 2, s.ValidDataCount())
	assert.InDelta(t, 0.1, s.unc[1], 1e-9)
}

func TestGetStopsAtBlankLine(t *testing.T) {
	data := "4000.0 1.0\n4001.0 0.9\n\n5000.0 0.8\n"
	s, err := Get(strings.NewReader(data), 0, math.MaxFloat64)
	require.NoError(t, err)
	assert.Equal(t, 2, s.DataCount())
}

func TestGetEmptySectionIsError(t *testing.T) {
	_, err := Get(strings.NewReader(""), 0, 1)
	require.Error(t, err)
}

func TestMaskExcludesInterval(t *testing.T) {
	wav := sampleWavelengths(5, 4000, 4004)
	flx := make([]float64, 5)
	unc := make([]float64, 5)
	for i := range unc {
		unc[i] = 1.0
	}
	s := New(wav, flx, unc)
	s.Mask(4001, 4002)
	assert.Equal(t, 3, s.ValidDataCount())
}

func TestContinuumConstantFitsFlatFlux(t *testing.T) {
	n := 50
	wav := sampleWavelengths(n, 4000, 4010)
	flx := make([]float64, n)
	unc := make([]float64, n)
	for i := range flx {
		flx[i] = 2.0
		unc[i] = 1.0
	}
	s := New(wav, flx, unc)

	require.NoError(t, s.Apply(1, 50000, zeroModel{}))
	for i := 0; i < n; i++ {
		assert.InDelta(t, 2.0, s.cfl[i], 1e-6)
		assert.InDelta(t, 0.0, s.res[i], 1e-6)
	}
}

func TestCostMatchesCostOf(t *testing.T) {
	n := 80
	wav := sampleWavelengths(n, 4000, 4010)
	flx := make([]float64, n)
	unc := make([]float64, n)
	for i := range flx {
		flx[i] = 1.0 + 0.01*float64(i%5)
		unc[i] = 1.0
	}
	s := New(wav, flx, unc)

	require.NoError(t, s.Apply(2, 20000, zeroModel{}))
	want := s.CostOf(zeroModel{}, 20000, 2)
	assert.InDelta(t, want, s.Cost(), 1e-9)
}

func TestCostOfReturnsPenaltyOnSingularContinuum(t *testing.T) {
	n := 20
	wav := sampleWavelengths(n, 4000, 4010)
	flx := make([]float64, n)
	unc := make([]float64, n)
	for i := range flx {
		flx[i] = 1.0
		unc[i] = 1.0
	}
	s := New(wav, flx, unc)
	s.Mask(0, math.MaxFloat64)

	got := s.CostOf(zeroModel{}, 20000, 2)
	assert.Equal(t, singularContinuumPenalty, got)
}

func TestSupersampleReproducesEndpoints(t *testing.T) {
	source := []float64{1, 2, 4}
	target := make([]float64, (len(source)-1)*3+1)
	Supersample(source, 3, target)
	assert.InDelta(t, 1.0, target[0], 1e-12)
	assert.InDelta(t, 2.0, target[3], 1e-12)
	assert.InDelta(t, 4.0, target[6], 1e-12)
	assert.InDelta(t, 1.0+1.0/3.0, target[1], 1e-9)
}

func TestPutWritesOneLinePerDataPoint(t *testing.T) {
	wav := sampleWavelengths(10, 4000, 4009)
	flx := make([]float64, 10)
	unc := make([]float64, 10)
	for i := range flx {
		flx[i] = 1.0
		unc[i] = 1.0
	}
	s := New(wav, flx, unc)
	require.NoError(t, s.Apply(0, 50000, zeroModel{}))

	var sb strings.Builder
	require.NoError(t, s.Put(&sb, 0, math.MaxFloat64))
	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	assert.Len(t, lines, 10)
}
