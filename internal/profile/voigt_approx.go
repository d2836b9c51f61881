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

package profile

import (
	"math"

	"github.com/especia-go/especia/internal/physics"
)

// The pseudo-Voigt and extended pseudo-Voigt approximations below follow
// Ida, Ando & Toraya (2000), J. Appl. Cryst. 33, 1311: a Voigt profile is
// approximated by a weighted sum of shape functions sharing a common
// center, with widths and mixing weights fitted as polynomials of the
// ratio between Lorentzian and combined width.

// lorentzian is the normalized Lorentzian line shape.
func lorentzian(x, gamma float64) float64 {
	return 1.0 / ((physics.Pi * gamma) * (1.0 + physics.Sqr(x/gamma)))
}

// irrational is the auxiliary shape used by the extended pseudo-Voigt
// approximation.
func irrational(x, gamma float64) float64 {
	return 1.0 / ((2.0 * gamma) * math.Pow(1.0+physics.Sqr(x/gamma), 1.5))
}

// squaredSecant is the squared hyperbolic-secant auxiliary shape used by the
// extended pseudo-Voigt approximation.
func squaredSecant(x, gamma float64) float64 {
	return 1.0 / (2.0 * gamma * physics.Sqr(math.Cosh(x/gamma)))
}

// poly evaluates a degree-6 polynomial in Horner form.
func poly(x, h0, h1, h2, h3, h4, h5, h6 float64) float64 {
	return h0 + x*(h1+x*(h2+x*(h3+x*(h4+x*(h5+x*h6)))))
}

func polyWG(r float64) float64 {
	return 1.0 - r*poly(r, 0.66000, 0.15021, -1.24984, 4.74052, -9.48291, 8.48252, -2.95553)
}

func polyWL(r float64) float64 {
	return 1.0 - (1.0-r)*poly(r, -0.42179, -1.25693, 10.30003, -23.45651, 29.14158, -16.50453, 3.19974)
}

func polyWI(r float64) float64 {
	return poly(r, 1.19913, 1.43021, -15.36331, 47.06071, -73.61822, 57.92559, -17.80614)
}

func polyWP(r float64) float64 {
	return poly(r, 1.10186, -0.47745, -0.68688, 2.76622, -4.55466, 4.05475, -1.26571)
}

func polyEtaL(r float64) float64 {
	return r * (1.0 + (1.0-r)*poly(r, -0.30165, -1.38927, 9.31550, -24.10743, 34.96491, -21.18862, 3.70290))
}

func polyEtaI(r float64) float64 {
	return (r * (1.0 - r)) * poly(r, 0.25437, -0.14107, 3.23653, -11.09215, 22.10544, -24.12407, 9.76947)
}

func polyEtaP(r float64) float64 {
	return (r * (1.0 - r)) * poly(r, 1.01579, 1.50429, -9.21815, 23.59717, -39.71134, 32.83023, -10.02142)
}

// Shared width-ratio constants, following the reference constructors.
var (
	cG = 2.0 * math.Sqrt(math.Log(2.0))
	cL = 2.0
	cI = 2.0 * math.Sqrt(math.Pow(2.0, 2.0/3.0)-1.0)
	cP = 2.0 * math.Log(math.Sqrt(2.0)+1.0)
)

// PseudoVoigt approximates a Voigt profile as a weighted sum of a Gaussian
// and a Lorentzian sharing a common center (Ida-Ando-Toraya 2000, two-term
// form).
type PseudoVoigt struct {
	gammaG, gammaL, eta float64
}

// NewPseudoVoigt builds a pseudo-Voigt approximation from a Gaussian width b
// and a Lorentzian width d.
func NewPseudoVoigt(b, d float64) VoigtApproximation {
	u := (cG * b) / (cL * d)
	r := 1.0 / math.Pow(1.0+u*(0.07842+u*(4.47163+u*(2.42843+u*(u+2.69269)))), 0.2)
	return &PseudoVoigt{
		gammaG: (cL * d) / (cG * r),
		gammaL: (cL * d) / (cL * r),
		eta:    r * (1.36603 - r*(0.47719-r*0.11116)),
	}
}

func (p *PseudoVoigt) Value(x float64) float64 {
	return (1.0-p.eta)*gaussian(x, p.gammaG) + p.eta*lorentzian(x, p.gammaL)
}

// ExtendedPseudoVoigt approximates a Voigt profile as a weighted sum of four
// shapes sharing a common center (Ida-Ando-Toraya 2000, four-term form),
// matching Voigt area and peak height more closely than the two-term form.
type ExtendedPseudoVoigt struct {
	gammaG, gammaL, gammaI, gammaP float64
	etaL, etaI, etaP               float64
}

// NewExtendedPseudoVoigt builds an extended pseudo-Voigt approximation from
// a Gaussian width b and a Lorentzian width d.
func NewExtendedPseudoVoigt(b, d float64) VoigtApproximation {
	u := cG*b + cL*d
	r := cL * d / u
	return &ExtendedPseudoVoigt{
		gammaG: u * polyWG(r) / cG,
		gammaL: u * polyWL(r) / cL,
		gammaI: u * polyWI(r) / cI,
		gammaP: u * polyWP(r) / cP,
		etaL:   polyEtaL(r),
		etaI:   polyEtaI(r),
		etaP:   polyEtaP(r),
	}
}

func (p *ExtendedPseudoVoigt) Value(x float64) float64 {
	eta := p.etaL + p.etaI + p.etaP
	return (1.0-eta)*gaussian(x, p.gammaG) +
		p.etaL*lorentzian(x, p.gammaL) +
		p.etaI*irrational(x, p.gammaI) +
		p.etaP*squaredSecant(x, p.gammaP)
}
