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

// Package section models a contiguous section of observed spectroscopic
// data: its wavelength, flux and uncertainty samples, the convolution of a
// candidate optical depth model with the instrumental line spread function,
// the optimized background continuum, and the resulting cost.
package section

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/especia-go/especia/internal/errs"
	"github.com/especia-go/especia/internal/physics"
)

// Model is the optical depth model a section is fitted against. Any line
// profile or superposition of profiles satisfies this contract.
type Model interface {
	OpticalDepth(x float64) float64
}

// Section holds the observed data of a spectroscopic section together with
// the most recently evaluated model quantities.
type Section struct {
	wav, flx, unc                    []float64
	msk                               []bool
	opt, atm, cat, cfl, tfl, fit, res []float64
}

// New constructs a section from wavelength, flux and uncertainty samples,
// all data points initially selected (unmasked).
func New(wav, flx, unc []float64) *Section {
	n := len(wav)
	s := &Section{
		wav: append([]float64(nil), wav...),
		flx: append([]float64(nil), flx...),
		unc: append([]float64(nil), unc...),
		msk: make([]bool, n),
	}
	for i := range s.msk {
		s.msk[i] = true
	}
	s.opt = make([]float64, n)
	s.atm = make([]float64, n)
	s.cat = make([]float64, n)
	s.cfl = make([]float64, n)
	s.tfl = make([]float64, n)
	s.fit = make([]float64, n)
	s.res = make([]float64, n)
	return s
}

// DataCount returns the number of data points in this section.
func (s *Section) DataCount() int { return len(s.wav) }

// ValidDataCount returns the number of unmasked (selected) data points.
func (s *Section) ValidDataCount() int {
	count := 0
	for _, m := range s.msk {
		if m {
			count++
		}
	}
	return count
}

// LowerBound returns the lower wavelength bound of this section.
func (s *Section) LowerBound() float64 {
	if len(s.wav) > 0 {
		return s.wav[0]
	}
	return 0.0
}

// UpperBound returns the upper wavelength bound of this section.
func (s *Section) UpperBound() float64 {
	if n := len(s.wav); n > 0 {
		return s.wav[n-1]
	}
	return 0.0
}

// Center returns the central wavelength of this section.
func (s *Section) Center() float64 {
	return 0.5 * (s.LowerBound() + s.UpperBound())
}

// Width returns the wavelength width of this section.
func (s *Section) Width() float64 {
	return s.UpperBound() - s.LowerBound()
}

// Mask marks the data in the wavelength interval [a, b] as invalid.
func (s *Section) Mask(a, b float64) {
	for i, w := range s.wav {
		if a <= w && w <= b {
			s.msk[i] = false
		}
	}
}

// Cost returns the value of the cost function last computed by Apply.
func (s *Section) Cost() float64 {
	var cost float64
	for i, m := range s.msk {
		if m {
			cost += s.res[i] * s.res[i]
		}
	}
	return 0.5 * cost
}

// singularContinuumPenalty is the finite cost substituted for a candidate
// whose background continuum cannot be resolved (a numerically singular
// normal-equations matrix). Keeping the penalty finite, rather than
// propagating the failure as an error, lets an optimiser's generation loop
// treat the candidate as simply very unfit instead of plumbing an error
// through every concurrent fitness evaluation.
const singularContinuumPenalty = 1.0e+100

// CostOf evaluates the cost function for a given optical depth model, a
// spectral resolution r and a background continuum of m Legendre terms,
// without mutating this section's stored state. CostOf is safe to call
// concurrently, provided the supplied model is.
func (s *Section) CostOf(tau Model, r float64, m int) float64 {
	_, _, cat := s.convolve(tau, r)
	cfl, err := s.continuum(m, cat)
	if err != nil {
		return singularContinuumPenalty
	}

	var cost float64
	for i, msk := range s.msk {
		if !msk {
			continue
		}
		fit := cfl[i] * cat[i]
		res := (s.flx[i] - fit) / s.unc[i]
		cost += res * res
	}
	return 0.5 * cost
}

// Apply evaluates a background continuum of m Legendre terms against a
// given optical depth model tau, convolved with an instrumental line spread
// function of spectral resolution r, and stores the result in this section.
func (s *Section) Apply(m int, r float64, tau Model) error {
	opt, atm, cat := s.convolve(tau, r)
	cfl, err := s.continuum(m, cat)
	if err != nil {
		return err
	}

	s.opt, s.atm, s.cat, s.cfl = opt, atm, cat, cfl
	for i := range s.wav {
		s.tfl[i] = cfl[i] * atm[i]
		s.fit[i] = cfl[i] * cat[i]
		s.res[i] = (s.flx[i] - s.fit[i]) / s.unc[i]
	}
	return nil
}

// convolve evaluates the optical depth, the resulting absorption term and
// its convolution with the (Gaussian) instrumental line spread function, at
// every data point of this section.
func (s *Section) convolve(tau Model, r float64) (opt, atm, cat []float64) {
	n := len(s.wav)
	opt = make([]float64, n)
	atm = make([]float64, n)
	cat = make([]float64, n)

	if n <= 2 {
		return opt, atm, cat
	}

	// The half width at half maximum (HWHM) of the instrumental profile.
	h := 0.5 * s.Center() / (r * physics.Kilo)
	// The sample spacing.
	w := s.Width() / float64(n-1)
	// The Gaussian line spread function is truncated at 4 HWHM, where it has
	// fallen to 2^-16 (about 1.5e-5) of its peak value.
	m := int(4.0*(h/w)) + 1
	// A kernel narrower than the sample spacing still spans one interval on
	// either side of each sample, so the convolution reduces to (nearly) the
	// identity instead of vanishing.
	if m < 2 {
		m = 2
	}

	p := make([]float64, m)
	q := make([]float64, m)
	for i := 0; i < m; i++ {
		p[i], q[i] = primitive(float64(i)*w, h)
	}

	for i, x := range s.wav {
		opt[i] = tau.OpticalDepth(x)
	}
	for i, o := range opt {
		atm[i] = math.Exp(-o)
	}

	for i := 0; i < n; i++ {
		var a, b float64

		for j := 0; j+1 < m; j++ {
			k := i - j - 1
			if i < j+1 {
				k = 0
			}
			l := i + j
			if i+j+2 > n {
				l = n - 2
			}
			d := (atm[l+1] - atm[l]) - (atm[k+1] - atm[k])

			a += (p[j+1] - p[j]) * (atm[k+1] + atm[l] - float64(j)*d)
			b += (q[j+1] - q[j]) * d
		}

		cat[i] = a + b/w
	}

	return opt, atm, cat
}

// primitive evaluates the primitive functions of g(x) and x*g(x), where g is
// the Gaussian line spread function of the instrument with half width at
// half maximum h.
func primitive(x, h float64) (p, q float64) {
	b := h / physics.SqrtLn2
	d := b / physics.SqrtPi

	p = 0.5 * math.Erf(x/b)
	q = 0.5 * math.Exp(-physics.Sqr(x/b)) * (-d)
	return p, q
}

// continuum fits a background continuum of m Legendre basis polynomials
// against a convolved absorption term cat, by solving the normal equations
// of the underlying linear least-squares problem via a Cholesky
// decomposition.
func (s *Section) continuum(m int, cat []float64) ([]float64, error) {
	n := len(s.wav)
	cfl := make([]float64, n)

	if m <= 0 {
		for i := range cfl {
			cfl[i] = 1.0
		}
		return cfl, nil
	}

	l := make([][]float64, m)
	for k := range l {
		l[k] = make([]float64, n)
	}
	for i := range l[0] {
		l[0][i] = 1.0
	}
	if m > 1 {
		lower, width := s.LowerBound(), s.Width()
		for i, x := range s.wav {
			l[1][i] = 2.0*(x-lower)/width - 1.0
		}
		// Bonnet's recursion formula.
		for j := 1; j+1 < m; j++ {
			for i := 0; i < n; i++ {
				l[j+1][i] = (float64(2*j+1)*l[1][i]*l[j][i] - float64(j)*l[j-1][i]) / float64(j+1)
			}
		}
	}

	p := make([]float64, n)
	for i, u := range s.unc {
		p[i] = cat[i] / physics.Sqr(u)
	}

	a := mat.NewSymDense(m, nil)
	b := mat.NewVecDense(m, nil)
	for j := 0; j < m; j++ {
		for k := j; k < m; k++ {
			var sum float64
			for i := 0; i < n; i++ {
				if s.msk[i] {
					sum += cat[i] * p[i] * l[j][i] * l[k][i]
				}
			}
			a.SetSym(j, k, sum)
		}
		var sum float64
		for i := 0; i < n; i++ {
			if s.msk[i] {
				sum += s.flx[i] * p[i] * l[j][i]
			}
		}
		b.SetVec(j, sum)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, fmt.Errorf("section: continuum: %w: normal equations are numerically singular", errs.ErrNumericalFailure)
	}

	var c mat.VecDense
	if err := c.SolveVec(a, b); err != nil {
		return nil, fmt.Errorf("section: continuum: %w: %v", errs.ErrNumericalFailure, err)
	}

	for i := range cfl {
		cfl[i] = c.AtVec(0)
	}
	for k := 1; k < m; k++ {
		ck := c.AtVec(k)
		for i := range cfl {
			cfl[i] += ck * l[k][i]
		}
	}

	return cfl, nil
}

// Supersample linearly interpolates source onto a target grid k times
// finer, writing the result into target, which must have length
// k*(len(source)-1) + 1.
func Supersample(source []float64, k int, target []float64) {
	for is, it := 0, 0; is < len(source); is, it = is+1, it+k {
		target[it] = source[is]
	}
	for j := 1; j < k; j++ {
		w := float64(j) / float64(k)
		for is, it := 0, j; is+1 < len(source); is, it = is+1, it+k {
			target[it] = source[is] + w*(source[is+1]-source[is])
		}
	}
}

// Get reads a data section from r, keeping only the data points whose
// wavelength lies in [a, b]. Lines beginning with '#', '%' or '!' are
// skipped as comments; reading stops at the first blank line. Each
// remaining line supplies a wavelength and a flux value, with an optional
// third (uncertainty, default 1.0) and fourth (selection mask, default
// true) column.
func Get(r io.Reader, a, b float64) (*Section, error) {
	var wav, flx, unc []float64
	var msk []bool

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "%") || strings.HasPrefix(line, "!") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("section: get: %w: malformed data line %q", errs.ErrIoFailure, line)
		}

		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("section: get: %w: %v", errs.ErrIoFailure, err)
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("section: get: %w: %v", errs.ErrIoFailure, err)
		}
		if x < a || x > b {
			continue
		}

		z := 1.0
		if len(fields) >= 3 {
			if z, err = strconv.ParseFloat(fields[2], 64); err != nil {
				return nil, fmt.Errorf("section: get: %w: %v", errs.ErrIoFailure, err)
			}
		}
		sel := true
		if len(fields) >= 4 {
			if sel, err = strconv.ParseBool(fields[3]); err != nil {
				return nil, fmt.Errorf("section: get: %w: %v", errs.ErrIoFailure, err)
			}
		}

		wav = append(wav, x)
		flx = append(flx, y)
		unc = append(unc, z)
		msk = append(msk, sel)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("section: get: %w: %v", errs.ErrIoFailure, err)
	}
	if len(wav) == 0 {
		return nil, fmt.Errorf("section: get: %w: empty data section", errs.ErrIoFailure)
	}

	s := New(wav, flx, unc)
	copy(s.msk, msk)

	return s, nil
}

// Put writes the data points of this section whose wavelength lies in
// [a, b] as a 13-column scientific-notation table: wavelength, flux,
// uncertainty, selection mask, optical depth, absorption term, convolved
// absorption term, continuum flux, model flux before convolution (continuum
// times absorption term), fitted flux, residual,
// and the continuum-normalized flux and its uncertainty.
func (s *Section) Put(w io.Writer, a, b float64) error {
	bw := bufio.NewWriter(w)
	for i, x := range s.wav {
		if x < a || x > b {
			continue
		}
		nfl := s.flx[i] / s.cfl[i]
		nun := s.unc[i] / s.cfl[i]

		sel := 0
		if s.msk[i] {
			sel = 1
		}

		if _, err := fmt.Fprintf(bw,
			"%16.8e%16.8e%16.8e%3d%16.8e%16.8e%16.8e%16.8e%16.8e%16.8e%16.8e%16.8e%16.8e\n",
			x, s.flx[i], s.unc[i], sel,
			s.opt[i], s.atm[i], s.cat[i], s.cfl[i], s.tfl[i], s.fit[i], s.res[i], nfl, nun,
		); err != nil {
			return fmt.Errorf("section: put: %w", err)
		}
	}
	return bw.Flush()
}
