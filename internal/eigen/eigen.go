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

// Package eigen provides the symmetric eigendecomposition contract the
// CMA-ES optimiser depends on to maintain its covariance matrix's
// eigenbasis.
package eigen

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Decompose solves the symmetric eigenproblem A = B * diag(w) * B^T for an
// n x n symmetric matrix a (only the upper triangle is read), returning the
// orthogonal eigenvector matrix b and the eigenvalues w in ascending order.
//
// A thin-LAPACK binding, a native tridiagonalisation plus QL, or an
// equivalent relatively-robust-representations routine all satisfy this
// contract; here it is grounded on gonum's pure-Go mat.EigenSym.
func Decompose(a *mat.SymDense) (b *mat.Dense, w []float64, err error) {
	var es mat.EigenSym
	if ok := es.Factorize(a, true); !ok {
		return nil, nil, fmt.Errorf("eigen: decomposition failed to converge")
	}

	n, _ := a.Dims()
	w = make([]float64, n)
	copy(w, es.Values(nil))

	var vectors mat.Dense
	es.VectorsTo(&vectors)

	return &vectors, w, nil
}
