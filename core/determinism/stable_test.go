package determinism

import (
	"testing"
)

func TestSortedKeys(t *testing.T) {
	m := map[string]int{"c": 3, "a": 1, "b": 2}
	keys := SortedKeys(m)
	expected := []string{"a", "b", "c"}
	for i, k := range expected {
		if keys[i] != k {
			t.Fatalf("expected %v, got %v", expected, keys)
		}
	}
}

func TestRangeMapSortedStopsEarly(t *testing.T) {
	m := map[string]int{"x": 1, "y": 2, "z": 3}
	var seen []string
	RangeMapSorted(m, func(k string, _ int) bool {
		seen = append(seen, k)
		return k != "y"
	})
	if len(seen) != 2 || seen[0] != "x" || seen[1] != "y" {
		t.Errorf("unexpected iteration %v", seen)
	}
}

func TestComputeHashIsStable(t *testing.T) {
	a := ComputeHash([]byte("node \"a\" {}"))
	b := ComputeHash([]byte("node \"a\" {}"))
	if a != b {
		t.Error("hash of identical content differs")
	}
	if len(a.Hex()) != 64 {
		t.Errorf("unexpected hex length %d", len(a.Hex()))
	}
}
