package allocator

import (
	crand "crypto/rand"
	"fmt"

	"somnarium.ai/internal/concoction"
)

// CodeGenerator produces candidate codes. Swapped out in tests to force collisions.
type CodeGenerator func() (string, error)

// RandomCode draws concoction.CodeLen symbols uniformly from the alphabet
// using crypto/rand. Bytes at or above the largest multiple of the alphabet
// size are discarded so that every symbol is equally likely.
func RandomCode() (string, error) {
	const n = len(concoction.Alphabet)
	const limit = 256 - 256%n
	out := make([]byte, 0, concoction.CodeLen)
	buf := make([]byte, concoction.CodeLen*2)
	for len(out) < concoction.CodeLen {
		if _, err := crand.Read(buf); err != nil {
			return "", fmt.Errorf("read random code: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, concoction.Alphabet[int(b)%n])
			if len(out) == concoction.CodeLen {
				break
			}
		}
	}
	return string(out), nil
}

// Sequence returns a generator that yields codes in order, then errors.
func Sequence(codes ...string) CodeGenerator {
	i := 0
	return func() (string, error) {
		if i >= len(codes) {
			return "", fmt.Errorf("code sequence exhausted after %d", len(codes))
		}
		c := codes[i]
		i++
		return c, nil
	}
}
