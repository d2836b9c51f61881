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

package rng

// pcgMultiplier is the 64-bit LCG multiplier used by the reference pcg32
// generator (O'Neill 2014).
const pcgMultiplier = 6364136223846793005

// PCG32 is the XSH-RR 64/32 permuted congruential generator: a 64-bit linear
// congruential state advanced with pcgMultiplier, output-permuted by a
// xorshift-high followed by a variable rotation. Bit-exact with the
// pcg-random.org reference implementation and demo test vector
// (state=42, stream=54 -> 0xa15c02b7).
type PCG32 struct {
	state uint64
	inc   uint64
}

// NewPCG32 constructs a generator from an initial state and a stream
// selector, following the reference pcg32_srandom_r seeding sequence: the
// increment is derived from the stream selector, the state is zeroed and
// advanced once, the requested seed is added in, and the state is advanced
// once more.
func NewPCG32(seed, streamSeq uint64) *PCG32 {
	p := &PCG32{}
	p.inc = (streamSeq << 1) | 1
	p.state = 0
	p.next()
	p.state += seed
	p.next()
	return p
}

func (p *PCG32) next() uint32 {
	old := p.state
	p.state = old*pcgMultiplier + p.inc

	xorshifted := uint32(((old >> 18) ^ old) >> 27)
	rot := uint32(old >> 59)
	return (xorshifted >> rot) | (xorshifted << ((-rot) & 31))
}

// Uint32 returns the next 32-bit pseudo-random integer.
func (p *PCG32) Uint32() uint32 {
	return p.next()
}

// Uint64 returns the next 64-bit pseudo-random integer, assembled from two
// consecutive 32-bit outputs.
func (p *PCG32) Uint64() uint64 {
	hi := uint64(p.next())
	lo := uint64(p.next())
	return hi<<32 | lo
}

// Float64 returns a pseudo-random number in [0, 1).
func (p *PCG32) Float64() float64 {
	return float64(p.Uint32()) / 4294967296.0
}
