package params

import "math"

const (
	// SeedScale quantizes a [0,1) seed into the integer that seeds the stream.
	// Seeds closer than 1/SeedScale share a stream.
	SeedScale = 100000

	golden = 0x9e3779b97f4a7c15
)

// Stream is a SplitMix64 generator. It carries no global state, so two
// streams built from the same seed yield the same sequence regardless of
// what else the process has drawn.
type Stream struct {
	state uint64
}

func NewStream(seed float64) *Stream {
	return &Stream{state: uint64(int64(math.Floor(seed * SeedScale)))}
}

func (s *Stream) Uint64() uint64 {
	s.state += golden
	z := s.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Float64 returns a value in [0,1) from the top 53 bits.
func (s *Stream) Float64() float64 {
	return float64(s.Uint64()>>11) * (1.0 / (1 << 53))
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }
