package weightinit

import "testing"

func TestRandNWithinBounds(t *testing.T) {
	gen := New(0, 0.5, -1, 1, 7)
	for i, v := range gen.RandN(1000) {
		if v < gen.Min() || v > gen.Max() {
			t.Fatalf("draw %d = %v outside [%v, %v]", i, v, gen.Min(), gen.Max())
		}
	}
}

func TestSameSeedSameSequence(t *testing.T) {
	a := New(0, 0.1, -0.5, 0.5, 42).RandN(100)
	b := New(0, 0.1, -0.5, 0.5, 42).RandN(100)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sequences diverge at draw %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestDifferentSeedsDiffer(t *testing.T) {
	a := New(0, 0.1, -0.5, 0.5, 1).RandN(10)
	b := New(0, 0.1, -0.5, 0.5, 2).RandN(10)
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical sequences")
	}
}

func TestInvalidBoundsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for min >= max")
		}
	}()
	New(0, 1, 2, 2, 0)
}
