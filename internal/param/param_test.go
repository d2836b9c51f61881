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

package param

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/especia-go/especia/internal/profile"
)

func writeDataFile(t *testing.T, dir, name string, n int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	var sb strings.Builder
	for i := 0; i < n; i++ {
		x := 4000.0 + float64(i)
		fmt.Fprintf(&sb, "%f %f %f\n", x, 1.0, 1.0)
	}
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func TestParseResolvesFreeFixedAndAliasedSlots(t *testing.T) {
	dir := t.TempDir()
	data := writeDataFile(t, dir, "a.dat", 200)

	model := fmt.Sprintf(`{ a %s 4000 4199 2
50000 40000 60000
line1
4010 0 1
0.1
0.0 -0.05 0.05
0.0
15.0 10.0 20.0
13.0 10.0 18.0
line2
=line1
0.2
=line1
=line1
=line1
=line1
}
`, data)

	var log bytes.Buffer
	m, err := Parse(strings.NewReader(model), &log, '%', profile.Doppler, nil)
	require.NoError(t, err)

	assert.Contains(t, log.String(), "<model>")
	assert.Greater(t, m.ParameterCount(), 0)

	x := m.InitialValues()
	z := m.InitialStepSizes()
	assert.Equal(t, len(x), len(z))

	lower, upper := m.Constraint()
	for i := range lower {
		assert.LessOrEqual(t, lower[i], upper[i])
	}

	cost := m.Cost(x)
	assert.GreaterOrEqual(t, cost, 0.0)

	require.NoError(t, m.Apply(x, z))
}

// TestParseAliasesSinglePositionAcrossLines checks that an alias on one
// parameter position of a line resolves to the *same* position of the
// referenced line, leaving that line's other positions independently free,
// pinning down the per-offset alias-resolution rule.
func TestParseAliasesSinglePositionAcrossLines(t *testing.T) {
	dir := t.TempDir()
	data := writeDataFile(t, dir, "a.dat", 200)

	model := fmt.Sprintf(`{ a %s 4000 4199 0
50000
line1
4010 0 1
0.1
0.0
0.0
15.0 10.0 20.0
13.0 10.0 18.0
line2
4020 0 1
0.2
0.0
0.0
=line1
13.5 10.0 18.0
}
`, data)

	var log bytes.Buffer
	m, err := Parse(strings.NewReader(model), &log, '%', profile.Doppler, nil)
	require.NoError(t, err)

	line1 := m.lineIndex["line1"]
	line2 := m.lineIndex["line2"]

	// line2's b parameter (offset 4) aliases line1's b parameter (offset 4),
	// not line1's lambda0 (offset 0).
	assert.Equal(t, m.index[line1+4], m.index[line2+4])
	assert.True(t, m.free[line2+4])

	// line2's other free parameters keep their own, distinct indices.
	assert.NotEqual(t, m.index[line1], m.index[line2])
	assert.NotEqual(t, m.index[line1+5], m.index[line2+5])
}

func TestParseRejectsSelfReference(t *testing.T) {
	dir := t.TempDir()
	data := writeDataFile(t, dir, "a.dat", 50)

	model := fmt.Sprintf(`{ a %s 4000 4049 0
50000 40000 60000
line1
=line1
0.1
0.0
0.0
15.0 10.0 20.0
13.0 10.0 18.0
}
`, data)

	_, err := Parse(strings.NewReader(model), &bytes.Buffer{}, '%', profile.Doppler, nil)
	require.Error(t, err)
}

func TestParseRejectsUnresolvedReference(t *testing.T) {
	dir := t.TempDir()
	data := writeDataFile(t, dir, "a.dat", 50)

	model := fmt.Sprintf(`{ a %s 4000 4049 0
50000 40000 60000
line1
=nosuchline
0.1
0.0
0.0
15.0 10.0 20.0
13.0 10.0 18.0
}
`, data)

	_, err := Parse(strings.NewReader(model), &bytes.Buffer{}, '%', profile.Doppler, nil)
	require.Error(t, err)
}

func TestParseRejectsDuplicateSectionIdentifier(t *testing.T) {
	dir := t.TempDir()
	data := writeDataFile(t, dir, "a.dat", 50)

	model := fmt.Sprintf(`{ a %s 4000 4049 0
50000 40000 60000
line1
4010 0 1
0.1
0.0
0.0
15.0 10.0 20.0
13.0 10.0 18.0
}
{ a %s 4000 4049 0
50000 40000 60000
line2
4010 0 1
0.1
0.0
0.0
15.0 10.0 20.0
13.0 10.0 18.0
}
`, data, data)

	_, err := Parse(strings.NewReader(model), &bytes.Buffer{}, '%', profile.Doppler, nil)
	require.Error(t, err)
}

func TestParameterCountZeroWhenAllFixed(t *testing.T) {
	dir := t.TempDir()
	data := writeDataFile(t, dir, "a.dat", 50)

	model := fmt.Sprintf(`{ a %s 4000 4049 0
50000
line1
4010
0.1
0.0
0.0
15.0
13.0
}
`, data)

	m, err := Parse(strings.NewReader(model), &bytes.Buffer{}, '%', profile.Doppler, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, m.ParameterCount())
	assert.Empty(t, m.InitialValues())
}
