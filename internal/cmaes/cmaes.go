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

// Package cmaes implements a derandomised evolution strategy with
// covariance matrix adaptation (CMA-ES), after Hansen & Ostermeier (2001)
// and Hansen (2014, purecmaes.m). The optimiser thread owns all mutable
// strategy state; candidate fitness evaluations within one generation are
// independent and may be dispatched to a worker pool.
package cmaes

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/alitto/pond"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/especia-go/especia/internal/eigen"
	"github.com/especia-go/especia/internal/errs"
	"github.com/especia-go/especia/internal/rng"
)

// maxCovarianceMatrixCondition is the condition number at which the
// covariance matrix eigenvalues are clipped on each re-decomposition.
const maxCovarianceMatrixCondition = 1.0e+14

// Func is the objective function an Optimizer minimises. It must be safe
// to call concurrently from multiple goroutines: the optimiser evaluates
// an entire generation's candidates in parallel.
type Func func(x []float64) float64

// Constraint is a box constraint on the parameter vector; it rejects
// values outside the prior bounds and contributes an associated cost.
type Constraint interface {
	// IsViolated reports whether x falls outside the constraint.
	IsViolated(x []float64) bool
	// Cost returns the cost associated with x under this constraint.
	Cost(x []float64) float64
}

// NoConstraint is a Constraint that never rejects a candidate and
// contributes no cost.
type NoConstraint struct{}

func (NoConstraint) IsViolated(x []float64) bool { return false }
func (NoConstraint) Cost(x []float64) float64    { return 0.0 }

// Tracer receives periodic progress callbacks during optimisation.
type Tracer interface {
	// IsTracing reports whether generation g should be traced.
	IsTracing(g int) bool
	// Trace records the state of generation g.
	Trace(g int, y, minStep, maxStep float64)
}

// NoTracer is a Tracer that never fires.
type NoTracer struct{}

func (NoTracer) IsTracing(g int) bool                        { return false }
func (NoTracer) Trace(g int, y, minStep, maxStep float64) {}

// LogTracer is a Tracer that logs generation state via logrus every
// modulus generations (modulus <= 0 disables tracing).
type LogTracer struct {
	Log     logrus.FieldLogger
	Modulus int
}

func (t LogTracer) IsTracing(g int) bool {
	return t.Modulus > 0 && g%t.Modulus == 0
}

func (t LogTracer) Trace(g int, y, minStep, maxStep float64) {
	if t.Log == nil {
		return
	}
	t.Log.WithFields(logrus.Fields{
		"generation": g,
		"fitness":    y,
		"min_step":   minStep,
		"max_step":   maxStep,
	}).Info("cmaes generation")
}

// Builder assembles an Optimizer's strategy configuration. Strategy
// parameters (recombination weights, cumulation rates, covariance
// learning rates, step-size damping) are recomputed from the problem
// dimension and parent number every time one of those two is set, matching
// the source's Builder::set_strategy_parameters being invoked from every
// with_problem_dimension/with_parent_number call; setting the population
// size does not recompute them.
type Builder struct {
	n               int
	parentNumber    int
	populationSize  int
	updateModulus   int
	accuracyGoal    float64
	randomSeed      uint64
	stopGeneration  int
	workers         int

	weights []float64
	cs, cc  float64
	acov    float64
	ccov    float64
	stepSizeDamping float64
}

// NewBuilder returns a Builder configured with the defaults of §4.5:
// parent number 4, population size 2*parent number, update modulus 1,
// accuracy goal 1e-4, random seed 27182, stop generation 1000.
func NewBuilder() *Builder {
	b := &Builder{
		n:              1,
		parentNumber:   4,
		populationSize: 8,
		updateModulus:  1,
		accuracyGoal:   1.0e-04,
		randomSeed:     27182,
		stopGeneration: 1000,
	}
	b.setStrategyParameters()
	return b
}

// WithProblemDimension sets the number of free parameters.
func (b *Builder) WithProblemDimension(n int) *Builder {
	b.n = n
	b.setStrategyParameters()
	return b
}

// WithParentNumber sets the number of parents selected per generation and
// resets the population size to twice that number, matching the source's
// coupling of the two.
func (b *Builder) WithParentNumber(mu int) *Builder {
	b.parentNumber = mu
	b.populationSize = 2 * mu
	b.setStrategyParameters()
	return b
}

// WithPopulationSize overrides the population size independently of the
// parent number (must be called after WithParentNumber to take effect).
func (b *Builder) WithPopulationSize(lambda int) *Builder {
	b.populationSize = lambda
	return b
}

// WithCovarianceUpdateModulus sets the number of generations between
// eigen-decompositions of the covariance matrix.
func (b *Builder) WithCovarianceUpdateModulus(m int) *Builder {
	b.updateModulus = m
	return b
}

// WithAccuracyGoal sets the relative per-axis convergence tolerance.
func (b *Builder) WithAccuracyGoal(goal float64) *Builder {
	b.accuracyGoal = goal
	return b
}

// WithRandomSeed sets the seed of the optimiser's deterministic random
// source.
func (b *Builder) WithRandomSeed(seed uint64) *Builder {
	b.randomSeed = seed
	return b
}

// WithStopGeneration sets the generation budget.
func (b *Builder) WithStopGeneration(g int) *Builder {
	b.stopGeneration = g
	return b
}

// WithWorkers sets the worker-pool size used to dispatch concurrent
// fitness evaluations within one generation. A value <= 1 evaluates
// candidates sequentially.
func (b *Builder) WithWorkers(workers int) *Builder {
	b.workers = workers
	return b
}

// setStrategyParameters recomputes the recombination weights and the
// cumulation/adaption/damping rates from n and parentNumber, after
// Hansen & Ostermeier (2001) and Hansen (2014).
func (b *Builder) setStrategyParameters() {
	mu := b.parentNumber
	n := float64(b.n)

	w := make([]float64, mu)
	for i := 0; i < mu; i++ {
		w[i] = math.Log((float64(mu) + 0.5) / float64(i+1))
	}
	b.weights = w

	sum := floats.Sum(w)
	sumSq := 0.0
	for _, wi := range w {
		sumSq += wi * wi
	}
	muEff := sum * sum / sumSq

	b.cs = (2.0 + muEff) / (5.0 + n + muEff)
	b.cc = (4.0 + muEff/n) / (4.0 + n + 2.0*muEff/n)
	b.acov = 2.0 / (sq(n+1.3) + muEff)
	b.ccov = math.Min(1.0-b.acov, 2.0*(muEff-2.0+1.0/muEff)/(sq(n+2.0)+muEff))
	b.stepSizeDamping = b.cs + 1.0 + 2.0*math.Max(0.0, math.Sqrt((muEff-1.0)/(n+1.0))-1.0)
}

// Build returns an Optimizer with this Builder's configuration.
func (b *Builder) Build() *Optimizer {
	config := *b
	config.weights = append([]float64(nil), b.weights...)
	return &Optimizer{
		config: config,
		source: rng.NewSource(b.randomSeed),
	}
}

// Optimizer performs derandomised CMA-ES minimisation. An Optimizer owns
// its random source and is not safe for concurrent use by multiple
// goroutines calling Minimize at once (the sampling step is inherently
// sequential); candidate fitness evaluations dispatched from a single
// Minimize call are independent and run in parallel.
type Optimizer struct {
	config Builder
	source rng.Source
}

// Result is the outcome of a minimisation run: the final distribution
// state together with the parameter values, fitness, status flags and (if
// optimized) per-parameter uncertainties.
type Result struct {
	Generation int

	X []float64 // parameter values (mean of final generation)
	D []float64 // local (per-axis) step sizes
	S float64   // global step size
	Z []float64 // parameter uncertainties (computed only if Optimized)

	B  *mat.Dense    // rotation matrix
	C  *mat.SymDense // covariance matrix
	PC []float64     // distribution cumulation path
	PS []float64     // step size cumulation path

	Y float64 // fitness at X

	Optimized bool
	Underflow bool
}

// NewResult builds the initial Result state for a run starting at mean x
// with local step sizes d and global step size s: B = I, C = diag(d^2),
// paths zeroed.
func NewResult(n int, x, d []float64, s float64) *Result {
	b := mat.NewDense(n, n, nil)
	c := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		b.Set(i, i, 1.0)
		c.SetSym(i, i, d[i]*d[i])
	}
	return &Result{
		X:  append([]float64(nil), x...),
		D:  append([]float64(nil), d...),
		S:  s,
		Z:  make([]float64, n),
		B:  b,
		C:  c,
		PC: make([]float64, n),
		PS: make([]float64, n),
	}
}

// Minimize runs the CMA-ES algorithm of §4.5 against f, starting the
// search distribution at mean x with initial local step sizes d and
// global step size s, subject to constraint, reporting progress to
// tracer. Candidate fitness evaluations within a generation are
// dispatched to a worker pool when the builder was configured with
// WithWorkers(k) for k > 1; the random source is used only by the
// (sequential) sampling step, so the run remains deterministic in either
// mode.
func (o *Optimizer) Minimize(f Func, x, d []float64, s float64, constraint Constraint, tracer Tracer) (*Result, error) {
	n := o.config.n
	mu := o.config.parentNumber
	lambda := o.config.populationSize
	w := o.config.weights
	ws := floats.Sum(w)
	sumSq := 0.0
	for _, wi := range w {
		sumSq += wi * wi
	}
	cw := ws / math.Sqrt(sumSq)

	cs, cc := o.config.cs, o.config.cc
	acov, ccov := o.config.acov, o.config.ccov
	dSigma := o.config.stepSizeDamping
	updateModulus := o.config.updateModulus
	accuracyGoal := o.config.accuracyGoal
	stopGeneration := o.config.stopGeneration

	expectedNorm := (float64(n) - 0.25 + 1.0/(21.0*float64(n))) / math.Sqrt(float64(n))
	csu := math.Sqrt(cs * (2.0 - cs))
	ccu := math.Sqrt(cc * (2.0 - cc))

	if constraint == nil {
		constraint = NoConstraint{}
	}
	if tracer == nil {
		tracer = NoTracer{}
	}

	result := NewResult(n, x, d, s)
	deviate := rng.NewNormalDeviate(o.source)

	u := make([][]float64, lambda)
	v := make([][]float64, lambda)
	xk := make([][]float64, lambda)
	for k := range u {
		u[k] = make([]float64, n)
		v[k] = make([]float64, n)
		xk[k] = make([]float64, n)
	}
	y := make([]float64, lambda)
	idx := make([]int, lambda)

	var pool *pond.WorkerPool
	if o.config.workers > 1 {
		pool = pond.New(o.config.workers, 0, pond.MinWorkers(o.config.workers))
		defer pool.StopAndWait()
	}

	g := 0
	for g < stopGeneration {
		// Sample a new population, rejecting (per axis) candidates that
		// violate the box constraint.
		for k := 0; k < lambda; k++ {
			uw := make([]float64, n)
			vw := make([]float64, n)
			for j := 0; j < n; j++ {
				for {
					z := deviate.Next()
					for i := 0; i < n; i++ {
						bij := result.B.At(i, j)
						u[k][i] = uw[i] + z*bij*result.D[j]
						v[k][i] = vw[i] + z*bij
						xk[k][i] = result.X[i] + u[k][i]*result.S
					}
					if !constraint.IsViolated(xk[k]) {
						break
					}
				}
				copy(uw, u[k])
				copy(vw, v[k])
			}
		}

		// Evaluate fitness, independently and (optionally) in parallel.
		if pool != nil {
			var wg sync.WaitGroup
			wg.Add(lambda)
			for k := 0; k < lambda; k++ {
				k := k
				pool.Submit(func() {
					defer wg.Done()
					y[k] = f(xk[k]) + constraint.Cost(xk[k])
				})
			}
			wg.Wait()
		} else {
			for k := 0; k < lambda; k++ {
				y[k] = f(xk[k]) + constraint.Cost(xk[k])
			}
		}
		for k := range idx {
			idx[k] = k
		}
		sort.SliceStable(idx, func(a, b int) bool { return y[idx[a]] < y[idx[b]] })
		g++

		// Mutation variance underflow: the best mu+1 candidates collapsed
		// to the same fitness.
		result.Underflow = y[idx[0]] == y[idx[mu]]
		if result.Underflow {
			break
		}

		// Recombine the mu best individuals.
		uw := make([]float64, n)
		vw := make([]float64, n)
		xw := make([]float64, n)
		for i := 0; i < n; i++ {
			for k := 0; k < mu; k++ {
				uw[i] += w[k] * u[idx[k]][i]
				vw[i] += w[k] * v[idx[k]][i]
				xw[i] += w[k] * xk[idx[k]][i]
			}
			uw[i] /= ws
			vw[i] /= ws
			xw[i] /= ws
		}
		result.X = xw

		// Adapt the covariance matrix and the step size.
		if acov > 0.0 || ccov > 0.0 {
			for j := 0; j < n; j++ {
				result.PC[j] = (1.0-cc)*result.PC[j] + (ccu*cw)*uw[j]
				for i := 0; i <= j; i++ {
					var z float64
					for k := 0; k < mu; k++ {
						z += w[k] * (u[idx[k]][i] * u[idx[k]][j])
					}
					cOld := result.C.At(i, j)
					cNew := (cOld + acov*(result.PC[i]*result.PC[j]-cOld)) + ccov*(z/ws-cOld)
					result.C.SetSym(i, j, cNew)
				}
			}
			if g%updateModulus == 0 {
				b, dvec, err := eigen.Decompose(result.C)
				if err != nil {
					return nil, fmt.Errorf("cmaes: %w: %v", errs.ErrNumericalFailure, err)
				}
				result.B = b
				t := dvec[n-1]/maxCovarianceMatrixCondition - dvec[0]
				if t > 0.0 {
					for i := 0; i < n; i++ {
						result.C.SetSym(i, i, result.C.At(i, i)+t)
						dvec[i] += t
					}
				}
				for i := range dvec {
					dvec[i] = math.Sqrt(dvec[i])
				}
				result.D = dvec
			}
		}
		for i := 0; i < n; i++ {
			result.PS[i] = (1.0-cs)*result.PS[i] + (csu*cw)*vw[i]
		}
		result.S *= math.Exp((cs / dSigma) * (norm(result.PS) / expectedNorm - 1.0))

		// Per-axis convergence test.
		result.Optimized = true
		for i := 0; i < n; i++ {
			cii := result.C.At(i, i)
			if !(sq(result.S)*cii < sq(accuracyGoal*result.X[i])+1.0/maxCovarianceMatrixCondition) {
				result.Optimized = false
				break
			}
		}
		if result.Optimized || tracer.IsTracing(g) {
			tracer.Trace(g, f(result.X)+constraint.Cost(result.X), result.S*floats.Min(result.D), result.S*floats.Max(result.D))
		}
		if result.Optimized {
			break
		}
	}

	result.Generation = g
	result.Y = f(result.X) + constraint.Cost(result.X)

	if result.Optimized {
		z, err := o.postOptimize(f, constraint, result)
		if err != nil {
			return nil, err
		}
		result.Z = z
	}

	return result, nil
}

// postOptimize estimates per-axis parameter uncertainties from the
// curvature of the cost function along each principal axis of the
// covariance matrix, per §4.5: for each axis, a golden-section-like
// bracket search locates a computation step whose cost increase is close
// to the chi-squared one-sigma unit (0.5), then rescales the global step
// size by the geometric mean of the per-axis rescaled steps.
func (o *Optimizer) postOptimize(f Func, constraint Constraint, result *Result) ([]float64, error) {
	n := o.config.n
	zx := f(result.X) + constraint.Cost(result.X)

	g := make([]float64, n)
	for j := range g {
		g[j] = result.S
	}

	for j := 0; j < n; j++ {
		var a, b float64
		c := g[j]

		for a == 0.0 || b == 0.0 {
			p := append([]float64(nil), result.X...)
			q := append([]float64(nil), result.X...)
			for i := 0; i < n; i++ {
				bij := result.B.At(i, j)
				p[i] += c * bij * result.D[j]
				q[i] -= c * bij * result.D[j]
			}

			var zp, zq float64
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				zp = f(p) + constraint.Cost(p)
			}()
			go func() {
				defer wg.Done()
				zq = f(q) + constraint.Cost(q)
			}()
			wg.Wait()

			g[j] = c / math.Sqrt(math.Abs((zp+zq)-2.0*zx))

			if math.Abs(0.5*(zp+zq)-zx) < 0.5 {
				a = c
				c = c * 1.618
			} else {
				b = c
				c = c * 0.618
			}
		}
	}

	h := 0.0
	for _, gj := range g {
		h += math.Log(gj)
	}
	h = math.Exp(h / float64(n))

	z := make([]float64, n)
	for i := 0; i < n; i++ {
		z[i] = h * math.Sqrt(result.C.At(i, i))
	}
	return z, nil
}

func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func sq(x float64) float64 { return x * x }
