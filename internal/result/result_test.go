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

package result

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/especia-go/especia/internal/param"
	"github.com/especia-go/especia/internal/profile"
)

const oneLineModel = `
{ s1 /dev/null 5889.0 5891.0 0
  30.0 20.0 40.0
  line-a
  5889.9 0.32 0.0 0.0 0.0 20.0 14.5 14.0 15.0
}
`

func TestDocumentContainsAllBlocks(t *testing.T) {
	var modelLog bytes.Buffer
	r := strings.NewReader(strings.ReplaceAll(oneLineModel, "/dev/null", "testdata_nonexistent"))
	_, err := param.Parse(r, &modelLog, '%', profile.Doppler, nil)
	require.Error(t, err) // the data file does not exist; we only need the echoed source text

	log := NewLog(1)
	log.Trace(1, 0.5, 0.1, 0.2)

	var doc bytes.Buffer
	err = Document(&doc, []string{"especia", "1", "4", "8"}, modelLog.String(), log, nil, Status{
		Optimized:  true,
		Generation: 1,
		Fitness:    0.5,
	})
	require.NoError(t, err)

	out := doc.String()
	assert.Contains(t, out, "<command>")
	assert.Contains(t, out, "</command>")
	assert.Contains(t, out, "<model>")
	assert.Contains(t, out, "<log>")
	assert.Contains(t, out, "1 5.000000e-01 1.000000e-01 2.000000e-01")
	assert.Contains(t, out, "<message>")
	assert.Contains(t, out, "optimization completed")
}

func TestStatusMessage(t *testing.T) {
	assert.Contains(t, Status{Underflow: true, Generation: 3}.Message(), "underflow")
	assert.Contains(t, Status{Generation: 7, Fitness: 1.2}.Message(), "stopped without convergence")
}
