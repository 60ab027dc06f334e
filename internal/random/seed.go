// Package random provides cryptographic seed helpers.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
)

// NewSeed returns a uniform float in [0,1) built from 53 bits of crypto/rand.
func NewSeed() (float64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return float64(binary.LittleEndian.Uint64(b[:])>>11) * (1.0 / (1 << 53)), nil
}

// SeedSource produces item seeds. Tests substitute fixed sequences.
type SeedSource func() (float64, error)

// Fixed returns a SeedSource cycling through vals.
func Fixed(vals ...float64) SeedSource {
	i := 0
	return func() (float64, error) {
		if len(vals) == 0 {
			return 0, fmt.Errorf("random: empty fixed source")
		}
		v := vals[i%len(vals)]
		i++
		return v, nil
	}
}
