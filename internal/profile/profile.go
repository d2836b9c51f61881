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

// Package profile computes the optical depth of individual absorption
// lines: the Doppler, many-multiplet and (pseudo-)Voigt profile variants,
// and their superposition.
package profile

import (
	"fmt"
	"math"

	"github.com/especia-go/especia/internal/physics"
)

// Kind identifies a profile variant and its parameter arity, replacing the
// per-line C++ template instantiation with a tagged-variant dispatch.
type Kind int

const (
	// Doppler is the intergalactic Doppler profile: lambda0, f, z, v, b, logN (6 parameters).
	Doppler Kind = iota
	// ManyMultiplet is the many-multiplet profile: lambda0, f, z, v, b, logN, q, dalpha (8 parameters).
	ManyMultiplet
	// Voigt is the intergalactic Voigt profile: lambda0, f, z, v, b, logN, gamma (7 parameters).
	Voigt
)

// ParameterCount returns the number of per-line parameter slots consumed by
// a profile variant.
func (k Kind) ParameterCount() int {
	switch k {
	case Doppler:
		return 6
	case ManyMultiplet:
		return 8
	case Voigt:
		return 7
	default:
		panic(fmt.Sprintf("profile: unknown kind %d", k))
	}
}

func (k Kind) String() string {
	switch k {
	case Doppler:
		return "doppler"
	case ManyMultiplet:
		return "many-multiplet"
	case Voigt:
		return "voigt"
	default:
		return "unknown"
	}
}

// Profile is the contract every line-profile variant satisfies.
type Profile interface {
	// OpticalDepth returns the optical depth of the profile at wavelength x (Angstrom).
	OpticalDepth(x float64) float64
	// Center returns the central (observed-frame) wavelength of the profile (Angstrom).
	Center() float64
	// RedshiftFactor returns the combined cosmological and kinematic redshift factor.
	RedshiftFactor() float64
}

// c0 and c1 are the shared rescaled constants used by every profile
// variant: c0 converts a km/s velocity into the same relative units as a
// cosmological redshift, c1 is the classical-oscillator amplitude prefactor
// rescaled into (Angstrom, cm^-2) units.
var (
	c0 = 1.0e-03 * physics.SpeedOfLight
	c1 = 1.0e-06 * physics.Sqr(physics.ElementaryCharge) /
		(4.0 * physics.ElectricConstant * physics.ElectronMass * physics.Sqr(physics.SpeedOfLight))
	c2 = 1.0e-10 / (4.0 * physics.Pi * physics.SpeedOfLight)
)

// gaussian is the normalized Gaussian line shape, G(x; gamma) = exp(-(x/gamma)^2) / (sqrt(pi)*gamma).
func gaussian(x, gamma float64) float64 {
	return (1.0 / (physics.SqrtPi * gamma)) * math.Exp(-physics.Sqr(x/gamma))
}

// truncate zeroes a shape function beyond a given number of widths from
// center, an optimisation that does not alter the cost to machine precision
// when the width is much smaller than the section extent.
func truncate(shape func(x, gamma float64) float64, x, gamma, widths float64) float64 {
	if math.Abs(x) > widths*gamma {
		return 0.0
	}
	return shape(x, gamma)
}

// DopplerProfile is the intergalactic Doppler (pure Gaussian) optical-depth
// profile.
type DopplerProfile struct {
	z, c, b, a float64
}

// NewDoppler constructs a Doppler profile from its six parameters:
// lambda0 (Angstrom), f (oscillator strength), z (redshift), v (km/s),
// b (km/s), logN (log10 column density, cm^-2).
func NewDoppler(lambda0, f, z, v, b, logN float64) *DopplerProfile {
	zEff := (1.0 + z) * (1.0 + v/c0)
	c := lambda0 * zEff
	return &DopplerProfile{
		z: zEff,
		c: c,
		b: b * c / c0,
		a: c1 * f * math.Pow(10.0, logN) * (lambda0 * c),
	}
}

func (p *DopplerProfile) OpticalDepth(x float64) float64 {
	return p.a * truncate(gaussian, x-p.c, p.b, 4.0)
}

func (p *DopplerProfile) Center() float64         { return p.c }
func (p *DopplerProfile) RedshiftFactor() float64 { return p.z }

// ManyMultipletProfile is the many-multiplet optical-depth profile used to
// probe a putative variation of the fine-structure constant from the
// relative shift of atomic transitions with different relativistic
// sensitivity coefficients.
type ManyMultipletProfile struct {
	z, c, b, a float64
}

// NewManyMultiplet constructs a many-multiplet profile from its eight
// parameters: lambda0, f, z, v, b, logN, q (relativistic sensitivity
// coefficient), dalpha (Delta alpha / alpha, in units of 1e-6).
func NewManyMultiplet(lambda0, f, z, v, b, logN, q, dalpha float64) *ManyMultipletProfile {
	mu := dalpha * physics.Micro
	u := 1.0e+08 / (1.0e+08/lambda0 + q*mu*(mu+2.0))
	zEff := (1.0 + z) * (1.0 + v/c0)
	c := u * zEff
	return &ManyMultipletProfile{
		z: zEff,
		c: c,
		b: b * c / c0,
		a: c1 * f * math.Pow(10.0, logN) * (u * c),
	}
}

func (p *ManyMultipletProfile) OpticalDepth(x float64) float64 {
	return p.a * truncate(gaussian, x-p.c, p.b, 4.0)
}

func (p *ManyMultipletProfile) Center() float64        { return p.c }
func (p *ManyMultipletProfile) RedshiftFactor() float64 { return p.z }

// VoigtApproximation is the shape used to approximate the Voigt profile
// given a Gaussian width b and a Lorentzian width d.
type VoigtApproximation interface {
	// Value returns the approximation's value at x, given Gaussian width b
	// and Lorentzian width d supplied at construction.
	Value(x float64) float64
}

// VoigtProfile is the intergalactic Voigt optical-depth profile: a Doppler
// core with a damping-constant-driven Lorentzian wing, approximated by a
// pseudo-Voigt (or extended pseudo-Voigt) shape.
type VoigtProfile struct {
	z, c, a float64
	approx  VoigtApproximation
}

// NewVoigt constructs a Voigt profile from its seven parameters: lambda0,
// f, z, v, b, logN, gamma (the damping constant, s^-1). newApprox builds the
// pseudo-Voigt approximation from the profile's Gaussian and Lorentzian
// widths.
func NewVoigt(lambda0, f, z, v, b, logN, gamma float64, newApprox func(b, d float64) VoigtApproximation) *VoigtProfile {
	zEff := (1.0 + z) * (1.0 + v/c0)
	c := lambda0 * zEff
	bLambda := b * c / c0
	dLambda := c2 * gamma * (lambda0 * c)
	return &VoigtProfile{
		z:      zEff,
		c:      c,
		a:      c1 * f * math.Pow(10.0, logN) * (lambda0 * c),
		approx: newApprox(bLambda, dLambda),
	}
}

func (p *VoigtProfile) OpticalDepth(x float64) float64 {
	return p.a * p.approx.Value(x-p.c)
}

func (p *VoigtProfile) Center() float64        { return p.c }
func (p *VoigtProfile) RedshiftFactor() float64 { return p.z }

// NewApprox builds a VoigtApproximation from a Gaussian width b and a
// Lorentzian width d, e.g. NewPseudoVoigt or NewExtendedPseudoVoigt.
type NewApprox func(b, d float64) VoigtApproximation

// NewFromValues constructs a profile of the given kind from a flat slice of
// exactly kind.ParameterCount() values, in the declaration order documented
// for each kind's constructor. newApprox is only consulted for Voigt.
func NewFromValues(kind Kind, values []float64, newApprox NewApprox) (Profile, error) {
	if len(values) != kind.ParameterCount() {
		return nil, fmt.Errorf("profile: %s: expected %d parameters, got %d", kind, kind.ParameterCount(), len(values))
	}

	switch kind {
	case Doppler:
		return NewDoppler(values[0], values[1], values[2], values[3], values[4], values[5]), nil
	case ManyMultiplet:
		return NewManyMultiplet(values[0], values[1], values[2], values[3], values[4], values[5], values[6], values[7]), nil
	case Voigt:
		return NewVoigt(values[0], values[1], values[2], values[3], values[4], values[5], values[6], newApprox), nil
	default:
		return nil, fmt.Errorf("profile: unknown kind %d", kind)
	}
}

// Superposition sums the optical depth of a collection of profiles, the
// forward model's source term before instrumental convolution.
type Superposition []Profile

// OpticalDepth returns the summed optical depth of every profile in the
// superposition at wavelength x.
func (s Superposition) OpticalDepth(x float64) float64 {
	tau := 0.0
	for _, p := range s {
		tau += p.OpticalDepth(x)
	}
	return tau
}
