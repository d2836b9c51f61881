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

// Command especia-extract filters the lines between a pair of matching
// tags out of an especia HTML result document, equivalent to a simple sed
// slice. It replaces the five single-purpose extractor scripts (ecom,
// edat, elog, emes, emod) of the original command-line suite with one
// binary selecting the tag by subcommand.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/especia-go/especia/internal/errs"
)

func extract(r *bufio.Scanner, w *bufio.Writer, tag string) error {
	open, shut := "<"+tag+">", "</"+tag+">"
	inside := false
	for r.Scan() {
		line := r.Text()
		switch {
		case !inside && strings.Contains(line, open):
			inside = true
		case inside && strings.Contains(line, shut):
			inside = false
		case inside:
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return r.Err()
}

func newExtractCmd(use, tag, short string) *cobra.Command {
	return &cobra.Command{
		Use:               use,
		Short:             short,
		Args:              cobra.NoArgs,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			scanner := bufio.NewScanner(os.Stdin)
			scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
			writer := bufio.NewWriter(os.Stdout)
			if err := extract(scanner, writer, tag); err != nil {
				return fmt.Errorf("%w: %v", errs.ErrIoFailure, err)
			}
			return writer.Flush()
		},
	}
}

var root = &cobra.Command{
	Use:               "especia-extract",
	Short:             "Extract a tagged block from an especia HTML result document read on standard input.",
	DisableAutoGenTag: true,
}

func init() {
	root.AddCommand(newExtractCmd("command", "command", "Extract the <command> block (equivalent to ecom)."))
	root.AddCommand(newExtractCmd("data", "data", "Extract the <data> block (equivalent to edat)."))
	root.AddCommand(newExtractCmd("log", "log", "Extract the <log> block (equivalent to elog)."))
	root.AddCommand(newExtractCmd("message", "message", "Extract the <message> block (equivalent to emes)."))
	root.AddCommand(newExtractCmd("model", "model", "Extract the <model> block (equivalent to emod)."))
}

func main() {
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(errs.ExitCode(err))
	}
}
