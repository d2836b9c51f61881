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

// Package param resolves a textual model definition into a flat parameter
// space: a table of value/bound slots, some free and subject to
// optimisation, some fixed, and some aliased to another slot, together with
// the section list each slot's line or resolution parameter belongs to.
package param

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff"

	"github.com/especia-go/especia/internal/errs"
	"github.com/especia-go/especia/internal/physics"
	"github.com/especia-go/especia/internal/profile"
	"github.com/especia-go/especia/internal/section"
)

// openDataFile opens a section's data file with a short bounded retry,
// tolerating the kind of transient failure a slow or networked filesystem
// (e.g. an NFS mount feeding a batch cluster) produces on an otherwise
// valid path; it does not mask a genuinely missing file; it simply is not
// the hot path of any cost evaluation, so the extra latency is harmless.
func openDataFile(filename string) (*os.File, error) {
	var f *os.File
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4)
	err := backoff.Retry(func() error {
		var openErr error
		f, openErr = os.Open(filename)
		return openErr
	}, policy)
	return f, err
}

// sectionEntry records where a section's slots begin in the flat slot
// table, and how it is to be evaluated.
type sectionEntry struct {
	slotOffset    int // index of the section's resolution slot
	legendreCount int // number of Legendre background-continuum terms
	lineCount     int // number of spectral lines in the section
}

// Model is a fully resolved parameter space: a flat table of value/bound
// slots (one per section resolution and per profile parameter), the
// section list each belongs to, and the free-slot optimisation index
// assigned to each.
type Model struct {
	kind      profile.Kind
	newApprox profile.NewApprox

	sections []*section.Section
	entries  []sectionEntry

	val, lo, up, errv []float64
	free              []bool
	index             []int

	sectionIndex map[string]int
	lineIndex    map[string]int
}

// slotRecord is a single parsed "value lower upper" / "value" / "=id"
// record, prior to alias resolution.
type slotRecord struct {
	value, lower, upper float64
	free                bool
	ref                 string
}

// NewModel returns an empty parameter space for profiles of the given kind,
// using newApprox to build Voigt profile approximations. newApprox may be
// nil for models that use no Voigt lines.
func NewModel(kind profile.Kind, newApprox profile.NewApprox) *Model {
	return &Model{
		kind:         kind,
		newApprox:    newApprox,
		sectionIndex: make(map[string]int),
		lineIndex:    make(map[string]int),
	}
}

// Parse reads a model definition from r, echoing every line read (before
// comment stripping) to log as an HTML comment block, and resolves it into
// a parameter space. commentMark (typically '%') introduces end-of-line
// comments.
func Parse(r io.Reader, log io.Writer, commentMark byte, kind profile.Kind, newApprox profile.NewApprox) (*Model, error) {
	m := NewModel(kind, newApprox)

	fmt.Fprintln(log, `<!DOCTYPE html PUBLIC "-//W3C//DTD HTML 4.01 Transitional//EN">`)
	fmt.Fprintln(log, "<html>")
	fmt.Fprintln(log, "<!--")
	fmt.Fprintln(log, "<model>")

	var raw []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		raw = append(raw, line)
		fmt.Fprintln(log, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("param: parse: %w: %v", errs.ErrIoFailure, err)
	}

	fmt.Fprintln(log, "</model>")
	fmt.Fprintln(log, "-->")
	fmt.Fprintln(log, "</html>")

	var records []slotRecord
	var refs []string     // parallel to records, alias target (may be empty)
	var groupOffset []int // parallel to records, offset within its section/line group

	body := stripComments(raw, commentMark)
	blocks := splitSections(body)

	for _, block := range blocks {
		fields := strings.Fields(block.header)
		if len(fields) < 5 {
			return nil, fmt.Errorf("param: parse: %w: malformed section header %q", errs.ErrInvalidModel, block.header)
		}
		sid := fields[0]
		filename := fields[1]
		a, err1 := strconv.ParseFloat(fields[2], 64)
		b, err2 := strconv.ParseFloat(fields[3], 64)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("param: parse: %w: malformed section bounds in %q", errs.ErrInvalidModel, block.header)
		}
		p, err3 := strconv.Atoi(fields[4])
		if err3 != nil {
			return nil, fmt.Errorf("param: parse: %w: malformed Legendre order in %q", errs.ErrInvalidModel, block.header)
		}
		if _, exists := m.sectionIndex[sid]; exists {
			return nil, fmt.Errorf("param: parse: %w: duplicate section identifier %q", errs.ErrInvalidModel, sid)
		}

		f, err := openDataFile(filename)
		if err != nil {
			return nil, fmt.Errorf("param: parse: %w: %v", errs.ErrIoFailure, err)
		}
		sec, err := section.Get(f, a, b)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("param: parse: %w: %s: %v", errs.ErrIoFailure, filename, err)
		}
		maskFields := fields[5:]
		for i := 0; i+1 < len(maskFields); i += 2 {
			ma, e1 := strconv.ParseFloat(maskFields[i], 64)
			mb, e2 := strconv.ParseFloat(maskFields[i+1], 64)
			if e1 != nil || e2 != nil {
				return nil, fmt.Errorf("param: parse: %w: malformed mask interval in %q", errs.ErrInvalidModel, block.header)
			}
			sec.Mask(ma, mb)
		}

		entry := sectionEntry{slotOffset: len(records), legendreCount: p}
		m.sectionIndex[sid] = len(m.sections)
		m.sections = append(m.sections, sec)

		if len(block.lines) == 0 {
			return nil, fmt.Errorf("param: parse: %w: section %q has no resolution record", errs.ErrInvalidModel, sid)
		}
		rec, ref, err := parseSlotRecord(block.lines[0])
		if err != nil {
			return nil, fmt.Errorf("param: parse: %w: section %q: %v", errs.ErrInvalidModel, sid, err)
		}
		records = append(records, rec)
		refs = append(refs, ref)
		groupOffset = append(groupOffset, 0)

		lineIDCount := 0
		i := 1
		for i < len(block.lines) {
			lid := strings.TrimSpace(block.lines[i])
			if lid == "" {
				i++
				continue
			}
			if _, exists := m.lineIndex[lid]; exists {
				return nil, fmt.Errorf("param: parse: %w: duplicate line identifier %q", errs.ErrInvalidModel, lid)
			}
			m.lineIndex[lid] = len(records)
			i++

			arity := kind.ParameterCount()
			for k := 0; k < arity; k++ {
				if i >= len(block.lines) {
					return nil, fmt.Errorf("param: parse: %w: line %q: missing parameter record", errs.ErrInvalidModel, lid)
				}
				rec, ref, err := parseSlotRecord(block.lines[i])
				if err != nil {
					return nil, fmt.Errorf("param: parse: %w: line %q: %v", errs.ErrInvalidModel, lid, err)
				}
				records = append(records, rec)
				refs = append(refs, ref)
				groupOffset = append(groupOffset, k)
				i++
			}
			lineIDCount++
		}
		entry.lineCount = lineIDCount
		m.entries = append(m.entries, entry)
	}

	n := len(records)
	m.val = make([]float64, n)
	m.lo = make([]float64, n)
	m.up = make([]float64, n)
	m.free = make([]bool, n)
	m.index = make([]int, n)
	m.errv = make([]float64, n)

	// Step 1: assign a consecutive optimisation index to each free,
	// non-aliased slot; fixed and aliased slots get sentinel index 0 and
	// zero bounds.
	next := 0
	for i, rec := range records {
		m.val[i] = rec.value
		if rec.free && refs[i] == "" {
			lo, up := rec.lower, rec.upper
			if lo > up {
				lo, up = up, lo
			}
			m.lo[i], m.up[i] = lo, up
			m.free[i] = true
			m.index[i] = next
			next++
		}
	}

	// Step 2: dereference alias chains. The group offset (position within
	// its section's or line's own parameter group) of the slot being
	// resolved is fixed for the whole chain walk: "=other-line" on the
	// k-th parameter record always means "the k-th parameter of
	// other-line", however many hops the alias chain takes to get there.
	for i := range records {
		offset := groupOffset[i]
		visited := map[int]bool{i: true}
		k := i
		for refs[k] != "" {
			target, ok := m.resolveRef(refs[k], offset)
			if !ok {
				return nil, fmt.Errorf("param: parse: %w: reference %q not found", errs.ErrInvalidModel, refs[k])
			}
			if target == i {
				return nil, fmt.Errorf("param: parse: %w: self reference", errs.ErrInvalidModel)
			}
			if visited[target] {
				return nil, fmt.Errorf("param: parse: %w: circular reference", errs.ErrInvalidModel)
			}
			visited[target] = true
			if refs[target] == "" {
				m.val[i] = m.val[target]
				m.lo[i] = m.lo[target]
				m.up[i] = m.up[target]
				m.free[i] = m.free[target]
				m.index[i] = m.index[target]
				break
			}
			k = target
		}
	}

	return m, nil
}

// resolveRef finds the slot index a reference token names: either a
// section identifier (resolving to its resolution slot, offset must be 0)
// or a line identifier (resolving to its offset-th parameter slot).
func (m *Model) resolveRef(name string, offset int) (int, bool) {
	if si, ok := m.sectionIndex[name]; ok {
		return m.entries[si].slotOffset + offset, true
	}
	if li, ok := m.lineIndex[name]; ok {
		return li + offset, true
	}
	return 0, false
}

// sectionBlock is a section header line plus its body lines (resolution
// record, then line-id/parameter-record groups), comments already
// stripped.
type sectionBlock struct {
	header string
	lines  []string
}

// stripComments removes everything from commentMark to end of line on
// every input line, discarding lines that become empty.
func stripComments(raw []string, commentMark byte) []string {
	var out []string
	for _, line := range raw {
		if j := strings.IndexByte(line, commentMark); j >= 0 {
			line = line[:j]
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// splitSections groups comment-stripped lines into `{ ... }`-delimited
// section blocks.
func splitSections(lines []string) []sectionBlock {
	var blocks []sectionBlock
	var cur *sectionBlock

	for _, line := range lines {
		if j := strings.IndexByte(line, '{'); j >= 0 {
			blocks = append(blocks, sectionBlock{header: strings.TrimSpace(line[j+1:])})
			cur = &blocks[len(blocks)-1]
			continue
		}
		if strings.IndexByte(line, '}') >= 0 {
			cur = nil
			continue
		}
		if cur != nil {
			cur.lines = append(cur.lines, strings.TrimSpace(line))
		}
	}
	return blocks
}

// parseSlotRecord parses one of the three slot record forms: "value lower
// upper" (free, bounded), "value" (fixed), or "=id" (alias).
func parseSlotRecord(line string) (slotRecord, string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return slotRecord{}, "", fmt.Errorf("empty parameter record")
	}
	if strings.HasPrefix(fields[0], "=") {
		return slotRecord{}, fields[0][1:], nil
	}

	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return slotRecord{}, "", fmt.Errorf("malformed value %q", fields[0])
	}
	if len(fields) == 1 {
		return slotRecord{value: v}, "", nil
	}
	if len(fields) != 3 {
		return slotRecord{}, "", fmt.Errorf("malformed parameter record %q", line)
	}
	lo, err1 := strconv.ParseFloat(fields[1], 64)
	up, err2 := strconv.ParseFloat(fields[2], 64)
	if err1 != nil || err2 != nil {
		return slotRecord{}, "", fmt.Errorf("malformed bounds in %q", line)
	}
	return slotRecord{value: v, lower: lo, upper: up, free: true}, "", nil
}

// ParameterCount returns the number of distinct optimisation variables:
// the count of distinct optimisation indices assigned to free slots, zero
// if no slot is free.
func (m *Model) ParameterCount() int {
	seen := make(map[int]bool)
	for i, free := range m.free {
		if free {
			seen[m.index[i]] = true
		}
	}
	return len(seen)
}

// InitialValues returns the midpoint of each free parameter's bound
// interval, in optimisation-index order.
func (m *Model) InitialValues() []float64 {
	x := make([]float64, m.ParameterCount())
	seen := make(map[int]bool)
	for i, free := range m.free {
		if free && !seen[m.index[i]] {
			seen[m.index[i]] = true
			x[m.index[i]] = 0.5 * (m.lo[i] + m.up[i])
		}
	}
	return x
}

// InitialStepSizes returns half the width of each free parameter's bound
// interval, in optimisation-index order.
func (m *Model) InitialStepSizes() []float64 {
	z := make([]float64, m.ParameterCount())
	seen := make(map[int]bool)
	for i, free := range m.free {
		if free && !seen[m.index[i]] {
			seen[m.index[i]] = true
			z[m.index[i]] = 0.5 * (m.up[i] - m.lo[i])
		}
	}
	return z
}

// Constraint returns the lower and upper bounds of the free parameters, in
// optimisation-index order.
func (m *Model) Constraint() (lower, upper []float64) {
	n := m.ParameterCount()
	lower = make([]float64, n)
	upper = make([]float64, n)
	seen := make(map[int]bool)
	for i, free := range m.free {
		if free && !seen[m.index[i]] {
			seen[m.index[i]] = true
			lower[m.index[i]] = m.lo[i]
			upper[m.index[i]] = m.up[i]
		}
	}
	return lower, upper
}

// project substitutes free slot values by x, leaving fixed and aliased
// slots untouched, and returns the resulting flat slot-value slice.
func (m *Model) project(x []float64) []float64 {
	y := append([]float64(nil), m.val...)
	for i, free := range m.free {
		if free {
			y[i] = x[m.index[i]]
		}
	}
	return y
}

// Cost evaluates the sum of section costs with free slot values replaced
// by x. Cost is safe to call concurrently.
func (m *Model) Cost(x []float64) float64 {
	y := m.project(x)

	var total float64
	for i, entry := range m.entries {
		lines, r := m.superposition(y, entry)
		total += m.sections[i].CostOf(lines, r, entry.legendreCount)
	}
	return total
}

// Apply substitutes free slot values by x, records per-slot uncertainties
// z (zero for fixed slots; an aliased slot gets the uncertainty of the slot
// its alias chain resolves to), and applies each section's resolved model.
func (m *Model) Apply(x, z []float64) error {
	for i, free := range m.free {
		if free {
			m.val[i] = x[m.index[i]]
			m.errv[i] = z[m.index[i]]
		} else {
			m.errv[i] = 0.0
		}
	}
	for i, entry := range m.entries {
		lines, r := m.superposition(m.val, entry)
		if err := m.sections[i].Apply(entry.legendreCount, r, lines); err != nil {
			return fmt.Errorf("param: apply: %w", err)
		}
	}
	return nil
}

// superposition builds the line superposition and resolution value for a
// section from a flat slot-value slice y.
func (m *Model) superposition(y []float64, entry sectionEntry) (profile.Superposition, float64) {
	arity := m.kind.ParameterCount()
	lines := make(profile.Superposition, entry.lineCount)
	base := entry.slotOffset + 1
	for k := 0; k < entry.lineCount; k++ {
		start := base + k*arity
		p, err := profile.NewFromValues(m.kind, y[start:start+arity], m.newApprox)
		if err != nil {
			// Arity is validated at parse time; this cannot happen for a
			// model successfully returned by Parse.
			panic(err)
		}
		lines[k] = p
	}
	return lines, y[entry.slotOffset]
}

// Sections returns the section list owned by this parameter space, in
// declaration order.
func (m *Model) Sections() []*section.Section { return m.sections }

// Put writes a standalone HTML result document: the raw section data
// tables, a per-section summary (wavelength range, resolution, cost), and
// a per-line parameter table with observed wavelength and its propagated
// uncertainty. Callers assembling a larger document (command echo, model
// echo, optimisation log alongside this data) should use WriteBody
// instead and supply their own DOCTYPE/html wrapper.
func (m *Model) Put(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, `<!DOCTYPE html PUBLIC "-//W3C//DTD HTML 4.01 Transitional//EN">`)
	fmt.Fprintln(bw, "<html>")
	if err := m.WriteBody(bw); err != nil {
		return err
	}
	fmt.Fprintln(bw, "</html>")
	return bw.Flush()
}

// WriteBody writes the <data> comment block and the parameter tables of
// this model (everything Put writes except the outer DOCTYPE/html
// wrapper), so a caller can embed it alongside other result blocks in a
// single document.
func (m *Model) WriteBody(w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "<!--")
	fmt.Fprintln(bw, "<data>")
	for _, sec := range m.sections {
		if err := sec.Put(bw, 0, sec.UpperBound()); err != nil {
			return err
		}
	}
	fmt.Fprintln(bw, "</data>")
	fmt.Fprintln(bw, "-->")

	fmt.Fprintln(bw, "<head>")
	fmt.Fprintln(bw, "  <title>Parameter Table</title>")
	fmt.Fprintln(bw, "</head>")
	fmt.Fprintln(bw, "<body>")
	fmt.Fprintln(bw, `<table border="1" cellspacing="2" cellpadding="2" width="100%">`)
	fmt.Fprintln(bw, `  <thead align="center" valign="middle">`)
	fmt.Fprintln(bw, "    <tr>")
	fmt.Fprintln(bw, "      <td>Section</td>")
	fmt.Fprintln(bw, "      <td>Start Wavelength (&Aring;)</td>")
	fmt.Fprintln(bw, "      <td>End Wavelength (&Aring;)</td>")
	fmt.Fprintln(bw, "      <td>Legendre Basis Polynomials</td>")
	fmt.Fprintln(bw, "      <td>Resolution (10<sup>3</sup>)</td>")
	fmt.Fprintln(bw, "      <td>Data Points</td>")
	fmt.Fprintln(bw, "      <td>Cost</td>")
	fmt.Fprintln(bw, "      <td>Cost per Data Point</td>")
	fmt.Fprintln(bw, "    </tr>")
	fmt.Fprintln(bw, "  </thead>")
	fmt.Fprintln(bw, "  <tbody align=\"left\">")

	for _, sid := range m.orderedSectionIDs() {
		si := m.sectionIndex[sid]
		sec := m.sections[si]
		entry := m.entries[si]

		px := sec.ValidDataCount()
		cost := sec.Cost()

		fmt.Fprintln(bw, "    <tr>")
		fmt.Fprintf(bw, "      <td>%s</td>\n", sid)
		fmt.Fprintf(bw, "      <td>%.2f</td>\n", sec.LowerBound())
		fmt.Fprintf(bw, "      <td>%.2f</td>\n", sec.UpperBound())
		fmt.Fprintf(bw, "      <td>%d</td>\n", entry.legendreCount)
		fmt.Fprintf(bw, "      <td>%s</td>\n", m.formatParameter(entry.slotOffset, "%.2f"))
		fmt.Fprintf(bw, "      <td>%d</td>\n", px)
		fmt.Fprintf(bw, "      <td><strong>%.2f</strong></td>\n", cost)
		if px > 0 {
			fmt.Fprintf(bw, "      <td>%.2f</td>\n", cost/float64(px))
		} else {
			fmt.Fprintln(bw, "      <td>0</td>")
		}
		fmt.Fprintln(bw, "    </tr>")
	}

	fmt.Fprintln(bw, "  </tbody>")
	fmt.Fprintln(bw, "</table>")
	fmt.Fprintln(bw, "<br>")
	fmt.Fprintln(bw, `<table border="1" cellspacing="2" cellpadding="2" width="100%">`)
	fmt.Fprintln(bw, `  <thead align="center" valign="middle">`)
	fmt.Fprintln(bw, "    <tr>")
	fmt.Fprintln(bw, "      <td>Line</td>")
	fmt.Fprintln(bw, "      <td>Observed Wavelength (&Aring;)</td>")
	fmt.Fprintln(bw, "      <td>Rest Wavelength (&Aring;)</td>")
	fmt.Fprintln(bw, "      <td>Oscillator Strength</td>")
	fmt.Fprintln(bw, "      <td>Redshift</td>")
	fmt.Fprintln(bw, "      <td>Radial Velocity (km s<sup>-1</sup>)</td>")
	fmt.Fprintln(bw, "      <td>Broadening Velocity (km s<sup>-1</sup>)</td>")
	fmt.Fprintln(bw, "      <td>Log. Column Density (cm<sup>-2</sup>)</td>")
	fmt.Fprintln(bw, "    </tr>")
	fmt.Fprintln(bw, "  </thead>")
	fmt.Fprintln(bw, "  <tbody align=\"left\">")

	c := 1.0e-03 * physics.SpeedOfLight
	for _, lid := range m.orderedLineIDs() {
		j := m.lineIndex[lid]

		x := m.val[j]
		z := m.val[j+2]
		v := m.val[j+3]
		wObs := x * (1.0 + z) * (1.0 + v/c)

		dx := m.errv[j]
		dz := m.errv[j+2]
		dv := m.errv[j+3]
		dw := dx + x*math.Sqrt(physics.Sqr((1.0+v/c)*dz)+physics.Sqr((1.0+z)*dv/c))

		fmt.Fprintln(bw, "    <tr>")
		fmt.Fprintf(bw, "      <td>%s</td>\n", lid)
		fmt.Fprintf(bw, "      <td>%.4f &plusmn; %.4f</td>\n", wObs, dw)
		fmt.Fprintf(bw, "      <td>%s</td>\n", m.formatParameter(j, "%.4f"))
		fmt.Fprintf(bw, "      <td>%s</td>\n", m.formatParameter(j+1, "%.3e"))
		fmt.Fprintf(bw, "      <td>%s</td>\n", m.formatParameter(j+2, "%.7f"))
		fmt.Fprintf(bw, "      <td>%s</td>\n", m.formatParameter(j+3, "%.3f"))
		fmt.Fprintf(bw, "      <td>%s</td>\n", m.formatParameter(j+4, "%.3f"))
		fmt.Fprintf(bw, "      <td>%s</td>\n", m.formatParameter(j+5, "%.3f"))
		fmt.Fprintln(bw, "    </tr>")
	}

	fmt.Fprintln(bw, "  </tbody>")
	fmt.Fprintln(bw, "</table>")
	fmt.Fprintln(bw, "</body>")

	return bw.Flush()
}

// formatParameter renders a slot's value, with its uncertainty appended
// when the slot is free.
func (m *Model) formatParameter(i int, format string) string {
	s := fmt.Sprintf(format, m.val[i])
	if m.free[i] {
		s += " &plusmn; " + fmt.Sprintf(format, m.errv[i])
	}
	return s
}

// orderedSectionIDs returns section identifiers in declaration order.
func (m *Model) orderedSectionIDs() []string {
	ids := make([]string, len(m.sections))
	for id, i := range m.sectionIndex {
		ids[i] = id
	}
	return ids
}

// orderedLineIDs returns line identifiers in declaration (slot) order.
func (m *Model) orderedLineIDs() []string {
	type kv struct {
		id  string
		idx int
	}
	kvs := make([]kv, 0, len(m.lineIndex))
	for id, idx := range m.lineIndex {
		kvs = append(kvs, kv{id, idx})
	}
	for i := 1; i < len(kvs); i++ {
		for j := i; j > 0 && kvs[j-1].idx > kvs[j].idx; j-- {
			kvs[j-1], kvs[j] = kvs[j], kvs[j-1]
		}
	}
	ids := make([]string, len(kvs))
	for i, e := range kvs {
		ids[i] = e.id
	}
	return ids
}
