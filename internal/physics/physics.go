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

// Package physics collects the physical and mathematical constants shared by
// the profile library and section evaluator, and the auxiliary air/vacuum
// wavelength conversions used outside the optimisation core.
package physics

import "math"

// Fundamental constants, SI units unless noted.
const (
	Pi      = 3.14159265358979323846264338327950288419717
	SqrtPi  = 1.77245385090551602729816748334114518279755
	SqrtLn2 = 0.832554611157697756353164644093791052455

	ElectricConstant = 8.854187817e-12  // vacuum permittivity, F/m
	ElectronMass     = 9.10938356e-31   // kg
	ElementaryCharge = 1.6021766208e-19 // C
	SpeedOfLight     = 299792458.0      // m/s

	Kilo  = 1.0e+03
	Micro = 1.0e-06
)

// Sqr returns x squared.
func Sqr(x float64) float64 {
	return x * x
}

// Doppler returns the relativistic Doppler factor for a radial velocity v
// (km/s, positive receding).
func Doppler(v float64) float64 {
	beta := Kilo * v / SpeedOfLight
	return math.Sqrt((1.0+beta)/(1.0-beta)) - 1.0
}

// Birch94 converts a vacuum wavelength (Angstrom) to an air wavelength using
// the dispersion formula of Birch & Downs (1994).
func Birch94(lambdaVac float64) float64 {
	s2 := 1.0 / Sqr(lambdaVac*1e-4)
	n := 1.0 + 1e-8*(8342.54+2406147.0/(130.0-s2)+15998.0/(38.9-s2))
	return lambdaVac / n
}

// Edlen53 converts a vacuum wavelength (Angstrom) to an air wavelength using
// the dispersion formula of Edlén (1953).
func Edlen53(lambdaVac float64) float64 {
	sigma2 := 1.0 / Sqr(lambdaVac*1e-4)
	n := 1.0 + 1e-8*(6432.8+2949810.0/(146.0-sigma2)+25540.0/(41.0-sigma2))
	return lambdaVac / n
}

// Edlen66 converts a vacuum wavelength (Angstrom) to an air wavelength using
// the revised dispersion formula of Edlén (1966).
func Edlen66(lambdaVac float64) float64 {
	sigma2 := 1.0 / Sqr(lambdaVac * 1e-4)
	n := 1.0 + 1e-8*(8342.13+2406030.0/(130.0-sigma2)+15997.0/(38.9-sigma2))
	return lambdaVac / n
}
