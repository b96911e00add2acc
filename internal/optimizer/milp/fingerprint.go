package milp

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/zeebo/xxh3"
)

// Fingerprint identifies a model's structure independently of the order of its
// variables, terms and constraints.
type Fingerprint uint64

func (f Fingerprint) String() string { return fmt.Sprintf("%016x", uint64(f)) }

// Fingerprint hashes variables by name and kind, objective terms by variable
// name and coefficient, and constraints by tag, sense, rhs and their term set.
func (m *Model) Fingerprint() Fingerprint {
	vars := make([]uint64, len(m.Variables))
	for i, v := range m.Variables {
		vars[i] = xxh3.HashStringSeed(v.Name, uint64(v.Kind))
	}

	rows := make([]uint64, len(m.Constraints))
	for i, c := range m.Constraints {
		seed := uint64(c.Tag)<<8 | uint64(c.Sense)
		seed = seed<<48 ^ math.Float64bits(c.RHS)
		rows[i] = combine(seed, m.termHashes(c.Terms))
	}

	var sense uint64
	if m.Maximize {
		sense = 1
	}
	parts := []uint64{
		combine(1, vars),
		combine(2, m.termHashes(m.Objective)),
		combine(3, rows),
		sense,
	}
	return Fingerprint(combine(0, parts))
}

func (m *Model) termHashes(terms []Term) []uint64 {
	out := make([]uint64, len(terms))
	for i, t := range terms {
		name := ""
		if t.Var >= 0 && int(t.Var) < len(m.Variables) {
			name = m.Variables[t.Var].Name
		}
		out[i] = xxh3.HashStringSeed(name, math.Float64bits(t.Coef))
	}
	return out
}

// combine hashes a multiset of hashes; the input slice is sorted in place.
func combine(seed uint64, hashes []uint64) uint64 {
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	buf := make([]byte, 8*len(hashes))
	for i, h := range hashes {
		binary.LittleEndian.PutUint64(buf[i*8:], h)
	}
	return xxh3.HashSeed(buf, seed)
}
