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

// Package cmd implements the especia command-line driver: the §6 CLI
// contract (positional seed/parents/population/step/accuracy/stop/trace
// arguments, a model definition read from standard input, an HTML result
// document written to standard output) on top of a cobra root command,
// plus a named-flag variant for the profile variant and worker pool size
// that are properties of this CLI front-end, not of the core library.
package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/especia-go/especia/internal/cmaes"
	"github.com/especia-go/especia/internal/errs"
	"github.com/especia-go/especia/internal/param"
	"github.com/especia-go/especia/internal/profile"
	"github.com/especia-go/especia/internal/result"
)

var (
	profileFlag  string
	commentFlag  string
	workersFlag  int
	logLevelFlag string
	manifestFlag string
	plotFlag     string
)

func init() {
	Root.Flags().StringVar(&profileFlag, "profile", "doppler", "line profile variant: doppler, many-multiplet, voigt")
	Root.Flags().StringVar(&commentFlag, "comment", "%", "model definition comment mark")
	Root.Flags().IntVar(&workersFlag, "workers", 1, "worker pool size for concurrent fitness evaluation (1 = sequential)")
	Root.Flags().StringVar(&logLevelFlag, "log-level", "info", "logrus level for the driver's diagnostic messages on standard error")
	Root.Flags().StringVar(&manifestFlag, "manifest", "", "optional path to write a TOML run manifest")
	Root.Flags().StringVar(&plotFlag, "plot", "", "optional path to write a PNG convergence plot")

	viper.BindPFlag("profile", Root.Flags().Lookup("profile"))
	viper.BindPFlag("comment", Root.Flags().Lookup("comment"))
	viper.BindPFlag("workers", Root.Flags().Lookup("workers"))
}

// Root is the especia CLI root command: `especia <seed> <parents>
// <population> <step> <accuracy> <stop> <trace>`, reading a model
// definition from standard input and writing the HTML result document to
// standard output.
var Root = &cobra.Command{
	Use:   "especia <seed> <parents> <population> <step> <accuracy> <stop> <trace>",
	Short: "Fit a parametric absorption-line model to spectroscopic data by CMA-ES.",
	Long: `especia minimizes a weighted least-squares cost between an observed spectrum
and a superposition of absorption-line profiles, convolved with the instrument's
line spread function, by a derandomized evolution strategy with covariance
matrix adaption (CMA-ES). The model definition is read from standard input;
the fitted parameters, their uncertainties, and the optimization trace are
written as a single HTML document to standard output.`,
	Args:              exactPositionalArgs(7),
	SilenceUsage:      true,
	DisableAutoGenTag: true,
	RunE:              runEspecia,
}

// exactPositionalArgs mirrors cobra.ExactArgs but reports a mismatch as
// errs.ErrInvalidArgument, so the CLI driver's exit-code mapping (§6, code
// 8) applies uniformly to every argument-parsing failure.
func exactPositionalArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("%w: expected %d positional arguments, got %d", errs.ErrInvalidArgument, n, len(args))
		}
		return nil
	}
}

func parseArgs(args []string) (seed uint64, parents, population int, step, accuracy float64, stop, traceModulus int, err error) {
	if seed, err = strconv.ParseUint(args[0], 10, 64); err != nil {
		return
	}
	if parents, err = strconv.Atoi(args[1]); err != nil {
		return
	}
	if population, err = strconv.Atoi(args[2]); err != nil {
		return
	}
	if step, err = strconv.ParseFloat(args[3], 64); err != nil {
		return
	}
	if accuracy, err = strconv.ParseFloat(args[4], 64); err != nil {
		return
	}
	if stop, err = strconv.Atoi(args[5]); err != nil {
		return
	}
	if traceModulus, err = strconv.Atoi(args[6]); err != nil {
		return
	}
	return
}

func profileKind(name string) (profile.Kind, profile.NewApprox, error) {
	switch name {
	case "doppler":
		return profile.Doppler, nil, nil
	case "many-multiplet", "mm":
		return profile.ManyMultiplet, nil, nil
	case "voigt":
		return profile.Voigt, profile.NewPseudoVoigt, nil
	case "voigt-extended":
		return profile.Voigt, profile.NewExtendedPseudoVoigt, nil
	default:
		return 0, nil, fmt.Errorf("%w: unknown profile variant %q", errs.ErrInvalidArgument, name)
	}
}

// boxConstraint rejects parameter vectors outside the model's prior
// bounds. Rejection itself happens inside the optimiser's per-axis
// sampling loop (§4.5); this constraint only needs to answer whether a
// fully-assembled candidate still lies inside the box, as a defensive
// check against floating point drift at the boundary.
type boxConstraint struct {
	lower, upper []float64
}

func (c boxConstraint) IsViolated(x []float64) bool {
	for i, xi := range x {
		if xi < c.lower[i] || xi > c.upper[i] {
			return true
		}
	}
	return false
}

func (c boxConstraint) Cost(x []float64) float64 { return 0.0 }

func runEspecia(cmd *cobra.Command, args []string) error {
	seed, parents, population, step, accuracy, stop, traceModulus, err := parseArgs(args)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInvalidArgument, err)
	}

	kind, newApprox, err := profileKind(profileFlag)
	if err != nil {
		return err
	}

	level, err := logrus.ParseLevel(logLevelFlag)
	if err != nil {
		level = logrus.InfoLevel
	}
	log := logrus.New()
	log.SetLevel(level)
	log.SetOutput(os.Stderr)

	var modelSource fmtBuffer
	model, err := param.Parse(io.TeeReader(os.Stdin, &modelSource), io.Discard, commentFlag[0], kind, newApprox)
	if err != nil {
		return err
	}

	n := model.ParameterCount()
	trace := result.NewLog(traceModulus)

	status := result.Status{}

	if n == 0 {
		// Every parameter is fixed: §8's idempotence property. There is
		// nothing to optimize; report the model's own cost as converged.
		status.Optimized = true
		status.Fitness = model.Cost(nil)
		if err := model.Apply(nil, nil); err != nil {
			status.Err = err
		}
	} else {
		lower, upper := model.Constraint()
		opt := cmaes.NewBuilder().
			WithProblemDimension(n).
			WithParentNumber(parents).
			WithPopulationSize(population).
			WithRandomSeed(seed).
			WithAccuracyGoal(accuracy).
			WithStopGeneration(stop).
			WithWorkers(workersFlag).
			Build()

		log.WithFields(logrus.Fields{"parameters": n, "parents": parents, "population": population}).Info("starting optimization")

		res, err := opt.Minimize(model.Cost, model.InitialValues(), model.InitialStepSizes(), step,
			boxConstraint{lower, upper}, trace)
		if err != nil {
			return err
		}

		log.WithFields(logrus.Fields{"generation": res.Generation, "optimized": res.Optimized, "underflow": res.Underflow}).Info("optimization finished")

		status.Generation = res.Generation
		status.Fitness = res.Y
		status.Optimized = res.Optimized
		status.Underflow = res.Underflow

		if applyErr := model.Apply(res.X, res.Z); applyErr != nil {
			status.Err = applyErr
		}
	}

	if err := result.Document(os.Stdout, os.Args, modelSource.String(), trace, model, status); err != nil {
		return err
	}

	if manifestFlag != "" {
		f, err := os.Create(manifestFlag)
		if err != nil {
			return fmt.Errorf("%w: %v", errs.ErrIoFailure, err)
		}
		defer f.Close()
		manifest := result.Manifest{
			Command:        os.Args,
			Seed:           seed,
			ParentNumber:   parents,
			PopulationSize: population,
			AccuracyGoal:   accuracy,
			StopGeneration: stop,
			Generation:     status.Generation,
			Fitness:        status.Fitness,
			Optimized:      status.Optimized,
			Underflow:      status.Underflow,
		}
		if err := result.WriteManifest(f, manifest); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrIoFailure, err)
		}
	}

	if plotFlag != "" {
		if err := result.PlotConvergence(plotFlag, trace); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrIoFailure, err)
		}
	}

	switch {
	case status.Err != nil:
		return status.Err
	case status.Underflow:
		return errs.ErrOptimizationUnderflow
	case !status.Optimized:
		return errs.ErrOptimizationIncomplete
	default:
		return nil
	}
}

// fmtBuffer is a minimal io.Writer + String() sink, avoiding a bytes.Buffer
// import solely for that pair of methods.
type fmtBuffer struct {
	data []byte
}

func (b *fmtBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *fmtBuffer) String() string { return string(b.data) }
