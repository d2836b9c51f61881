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

// Package errs defines the typed error taxonomy the core and its CLI driver
// communicate through, and the mapping from those errors to process exit
// codes.
package errs

import "errors"

// Sentinel errors. Wrap with fmt.Errorf("...: %w", ErrX) to attach context
// while keeping errors.Is/errors.As working against these values.
var (
	// ErrInvalidArgument signals a CLI argument count or parse failure.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidModel signals a model-definition syntax error, duplicate
	// identifier, or an unresolved/self alias reference.
	ErrInvalidModel = errors.New("invalid model")
	// ErrIoFailure signals a file-not-found or read error on a data file.
	ErrIoFailure = errors.New("i/o failure")
	// ErrNumericalFailure signals an eigen-decomposition or Cholesky failure
	// that could not be absorbed as a finite penalty.
	ErrNumericalFailure = errors.New("numerical failure")
	// ErrOptimizationUnderflow signals a zero fitness spread among the best
	// mu+1 candidates of a generation.
	ErrOptimizationUnderflow = errors.New("optimization underflow")
	// ErrOptimizationIncomplete signals that the generation budget was
	// exhausted before the accuracy goal was reached.
	ErrOptimizationIncomplete = errors.New("optimization incomplete")
)

// Exit codes, matching the application's documented CLI contract.
const (
	ExitOK                   = 0
	ExitUnderflow            = 1
	ExitStopped              = 2
	ExitLogicError           = 8
	ExitRuntimeError         = 16
	ExitUnspecificException  = 64
)

// ExitCode maps an error returned by a run to a process exit code. A nil
// error maps to ExitOK.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrOptimizationUnderflow):
		return ExitUnderflow
	case errors.Is(err, ErrOptimizationIncomplete):
		return ExitStopped
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrInvalidModel):
		return ExitLogicError
	case errors.Is(err, ErrIoFailure), errors.Is(err, ErrNumericalFailure):
		return ExitRuntimeError
	default:
		return ExitUnspecificException
	}
}
