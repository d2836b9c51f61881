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

// Package result assembles the single HTML document a run emits: the
// command-line invocation, the model definition as read, the
// optimisation trace, the fitted data and parameter tables, and a status
// message, per the external interface of §6.
package result

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/especia-go/especia/internal/cmaes"
	"github.com/especia-go/especia/internal/param"
)

// point is one traced generation's fitness, kept alongside the formatted
// log line so PlotConvergence can reuse what Trace already recorded
// without reparsing the <log> block.
type point struct {
	generation int
	fitness    float64
}

// Log collects per-generation trace lines and satisfies cmaes.Tracer. It
// is handed to the optimiser so the <log> block can be written after
// optimisation completes, once the final message is known.
type Log struct {
	Modulus int
	lines   []string
	points  []point
}

// NewLog returns a Log that records a line every modulus generations
// (modulus <= 0 disables tracing).
func NewLog(modulus int) *Log {
	return &Log{Modulus: modulus}
}

func (l *Log) IsTracing(g int) bool {
	return l.Modulus > 0 && g%l.Modulus == 0
}

func (l *Log) Trace(g int, y, minStep, maxStep float64) {
	l.lines = append(l.lines, fmt.Sprintf("%d %.6e %.6e %.6e", g, y, minStep, maxStep))
	l.points = append(l.points, point{generation: g, fitness: y})
}

var _ cmaes.Tracer = (*Log)(nil)

// PlotConvergence renders the traced fitness-versus-generation curve to a
// PNG at path, analogous to the teacher's field plots but over the
// optimiser's own trace rather than a spatial grid. It is a no-op
// producing no file when the log holds fewer than two points.
func PlotConvergence(path string, log *Log) error {
	if log == nil || len(log.points) < 2 {
		return nil
	}

	pts := make(plotter.XYs, len(log.points))
	for i, pt := range log.points {
		pts[i].X = float64(pt.generation)
		pts[i].Y = pt.fitness
	}

	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = "convergence"
	p.X.Label.Text = "generation"
	p.Y.Label.Text = "cost"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	p.Add(line)

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

// Manifest is a small TOML sidecar recording the run's configuration,
// written alongside (not instead of) the HTML document.
type Manifest struct {
	Command        []string `toml:"command"`
	Seed           uint64   `toml:"seed"`
	ParentNumber   int      `toml:"parent_number"`
	PopulationSize int      `toml:"population_size"`
	AccuracyGoal   float64  `toml:"accuracy_goal"`
	StopGeneration int      `toml:"stop_generation"`
	Generation     int      `toml:"generation"`
	Fitness        float64  `toml:"fitness"`
	Optimized      bool     `toml:"optimized"`
	Underflow      bool     `toml:"underflow"`
}

// WriteManifest writes m as a TOML document to w.
func WriteManifest(w io.Writer, m Manifest) error {
	return toml.NewEncoder(w).Encode(m)
}

// Status summarizes the outcome of a run for the <message> block and the
// process exit code; see internal/errs.ExitCode for the mapping applied
// by the CLI driver.
type Status struct {
	Optimized  bool
	Underflow  bool
	Generation int
	Fitness    float64
	Err        error
}

// Message renders a one-line human-readable status.
func (s Status) Message() string {
	switch {
	case s.Err != nil:
		return fmt.Sprintf("error: %v", s.Err)
	case s.Underflow:
		return fmt.Sprintf("mutation variance underflow at generation %d", s.Generation)
	case s.Optimized:
		return fmt.Sprintf("optimization completed at generation %d, cost = %.6e", s.Generation, s.Fitness)
	default:
		return fmt.Sprintf("optimization stopped without convergence after %d generations, cost = %.6e", s.Generation, s.Fitness)
	}
}

// Document writes the single HTML result document: a <command> block
// echoing the CLI invocation, a <model> block echoing the raw model
// source, a <log> block with the optimisation trace, the model's <data>
// block and parameter tables, and a <message> block with the run status.
func Document(w io.Writer, args []string, modelSource string, log *Log, m *param.Model, status Status) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, `<!DOCTYPE html PUBLIC "-//W3C//DTD HTML 4.01 Transitional//EN">`)
	fmt.Fprintln(bw, "<html>")

	fmt.Fprintln(bw, "<!--")
	fmt.Fprintln(bw, "<command>")
	fmt.Fprintln(bw, strings.Join(args, " "))
	fmt.Fprintln(bw, "</command>")
	fmt.Fprintln(bw, "-->")

	fmt.Fprintln(bw, "<!--")
	fmt.Fprintln(bw, "<model>")
	fmt.Fprint(bw, modelSource)
	if !strings.HasSuffix(modelSource, "\n") {
		fmt.Fprintln(bw)
	}
	fmt.Fprintln(bw, "</model>")
	fmt.Fprintln(bw, "-->")

	fmt.Fprintln(bw, "<!--")
	fmt.Fprintln(bw, "<log>")
	if log != nil {
		for _, line := range log.lines {
			fmt.Fprintln(bw, line)
		}
	}
	fmt.Fprintln(bw, "</log>")
	fmt.Fprintln(bw, "-->")

	if m != nil {
		if err := m.WriteBody(bw); err != nil {
			return err
		}
	}

	fmt.Fprintln(bw, "<p><message>")
	fmt.Fprintln(bw, status.Message())
	fmt.Fprintln(bw, "</message></p>")

	fmt.Fprintln(bw, "</html>")
	return bw.Flush()
}
