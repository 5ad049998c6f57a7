package dice

import "testing"

func TestFaceStaysOnDie(t *testing.T) {
	roller := New(42)
	for i := 0; i < 1000; i++ {
		face := roller.Face()
		if face < 1 || face > 6 {
			t.Fatalf("face = %d, want 1..6", face)
		}
	}
}

func TestSameSeedSameSequence(t *testing.T) {
	first := New(7)
	second := New(7)
	for i := 0; i < 100; i++ {
		if a, b := first.Face(), second.Face(); a != b {
			t.Fatalf("roll %d diverged: %d vs %d", i, a, b)
		}
	}
}

func TestPairReturnsTwoFaces(t *testing.T) {
	roller := New(1)
	a, b := roller.Pair()
	if a < 1 || a > 6 || b < 1 || b > 6 {
		t.Fatalf("pair = (%d, %d), want faces in 1..6", a, b)
	}
}

func TestNewSeedVaries(t *testing.T) {
	first, err := NewSeed()
	if err != nil {
		t.Fatalf("new seed: %v", err)
	}
	second, err := NewSeed()
	if err != nil {
		t.Fatalf("new seed: %v", err)
	}
	if first == second {
		t.Fatalf("two seeds both %d; crypto source is not varying", first)
	}
}

func TestNewRandom(t *testing.T) {
	roller, err := NewRandom()
	if err != nil {
		t.Fatalf("new random roller: %v", err)
	}
	if face := roller.Face(); face < 1 || face > 6 {
		t.Fatalf("face = %d, want 1..6", face)
	}
}
