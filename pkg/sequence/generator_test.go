package sequence

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateDeterministic(t *testing.T) {
	a, err := Generate("test", "node-A", 144)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate("test", "node-A", 144)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("same inputs produced different sequences:\n%s\n%s", a, b)
	}
}

func TestGenerateLengthAndAlphabet(t *testing.T) {
	for _, length := range []int{1, 2, 31, 32, 33, 144, 500} {
		seq, err := Generate("seed", "ident", length)
		if err != nil {
			t.Fatal(err)
		}
		if len(seq) != length {
			t.Fatalf("length %d: got %d chars", length, len(seq))
		}
		if strings.Trim(seq, "ATCG") != "" {
			t.Fatalf("length %d: sequence contains symbols outside ATCG: %s", length, seq)
		}
	}
}

func TestGenerateDistinctInputsDiffer(t *testing.T) {
	a, _ := Generate("test", "node-A", 144)
	b, _ := Generate("test", "node-B", 144)
	c, _ := Generate("other", "node-A", 144)
	if a == b || a == c {
		t.Fatal("different inputs should produce different sequences")
	}
}

func TestGenerateSeparatorMatters(t *testing.T) {
	// "ab"+"c" and "a"+"bc" must not collide through concatenation.
	a, _ := Generate("ab", "c", 64)
	b, _ := Generate("a", "bc", 64)
	if a == b {
		t.Fatal("separator failed to disambiguate seed/identifier boundary")
	}
}

func TestGenerateInvalidLength(t *testing.T) {
	for _, length := range []int{0, -1, -144} {
		if _, err := Generate("seed", "ident", length); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("length %d: expected ErrInvalidArgument, got %v", length, err)
		}
	}
}

func TestGenerateDefault(t *testing.T) {
	seq, err := GenerateDefault("test", "node-A")
	if err != nil {
		t.Fatal(err)
	}
	if len(seq) != DefaultLength {
		t.Fatalf("expected %d chars, got %d", DefaultLength, len(seq))
	}
}

func TestValid(t *testing.T) {
	if !Valid("ATCG") {
		t.Fatal("ATCG should be valid")
	}
	if Valid("") {
		t.Fatal("empty sequence should be invalid")
	}
	if Valid("ATXG") {
		t.Fatal("X should be rejected")
	}
}
