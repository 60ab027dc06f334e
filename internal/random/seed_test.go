package random

import "testing"

func TestNewSeedRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		s, err := NewSeed()
		if err != nil {
			t.Fatalf("NewSeed: %v", err)
		}
		if s < 0 || s >= 1 {
			t.Fatalf("seed out of range: %v", s)
		}
	}
}

func TestFixed(t *testing.T) {
	src := Fixed(0.1, 0.2)
	for i, want := range []float64{0.1, 0.2, 0.1} {
		got, err := src()
		if err != nil || got != want {
			t.Fatalf("draw %d: got %v,%v want %v", i, got, err, want)
		}
	}
	if _, err := Fixed()(); err == nil {
		t.Fatalf("expected error from empty source")
	}
}
