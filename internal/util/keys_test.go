package util

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestUniqSortedDropsDuplicatesAndEmpty(t *testing.T) {
	got := UniqSorted([]string{"b", "", "a", "b", "c", "a"})
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Fatalf("UniqSorted mismatch (-want +got):\n%s", diff)
	}
	if UniqSorted(nil) != nil {
		t.Fatalf("UniqSorted(nil) should be nil")
	}
}

func TestUniqSortedDoesNotMutateInput(t *testing.T) {
	in := []string{"z", "a"}
	_ = UniqSorted(in)
	if in[0] != "z" || in[1] != "a" {
		t.Fatalf("input mutated: %v", in)
	}
}

func TestWithout(t *testing.T) {
	got := Without([]string{"a", "b", "c"}, "b", "x")
	if diff := cmp.Diff([]string{"a", "c"}, got); diff != "" {
		t.Fatalf("Without mismatch (-want +got):\n%s", diff)
	}
}

func TestHashKeyStable(t *testing.T) {
	if HashKey("k") != HashKey("k") {
		t.Fatalf("hash not deterministic")
	}
	if HashKey("a") == HashKey("b") {
		t.Fatalf("distinct keys collided")
	}
	if len(HashKey("k")) != 64 {
		t.Fatalf("unexpected hash length %d", len(HashKey("k")))
	}
}

func TestCoalesce(t *testing.T) {
	if Coalesce(0, 5) != 5 || Coalesce(3, 5) != 3 {
		t.Fatalf("Coalesce int")
	}
	if Coalesce("", "d") != "d" {
		t.Fatalf("Coalesce string")
	}
}
