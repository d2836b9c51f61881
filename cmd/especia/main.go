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

// Command especia fits a parametric absorption-line model to observed
// spectroscopic data by CMA-ES. See internal/cmd for the command
// implementation.
package main

import (
	"fmt"
	"os"

	"github.com/especia-go/especia/internal/cmd"
	"github.com/especia-go/especia/internal/errs"
)

func main() {
	if err := cmd.Root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(errs.ExitCode(err))
	}
}
