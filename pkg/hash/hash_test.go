package hash

import (
	"fmt"
	"testing"
)

// TestSum32_Deterministic verifies the digest is stable for a given input.
// Persisted segments depend on this: a filter written yesterday must answer
// the same way today.
func TestSum32_Deterministic(t *testing.T) {
	inputs := [][]byte{
		[]byte(""),
		[]byte("a"),
		[]byte("term1"),
		[]byte("the quick brown fox"),
		make([]byte, 4096),
	}

	for _, in := range inputs {
		first := Sum32(in)
		for i := 0; i < 10; i++ {
			if got := Sum32(in); got != first {
				t.Fatalf("Sum32(%q) not deterministic: %08x then %08x", in, first, got)
			}
		}
	}
}

// TestSum32_KnownVectors pins the digest values so a dependency upgrade that
// changes the function is caught before it silently breaks segment filters.
func TestSum32_KnownVectors(t *testing.T) {
	cases := []struct {
		in   string
		want uint32
	}{
		{"", 0x00000000},
		{"hello", 0x248bfa47},
		{"hello, world", 0x149bbb7f},
	}

	for _, c := range cases {
		if got := Sum32String(c.in); got != c.want {
			t.Errorf("Sum32String(%q) = %08x, want %08x", c.in, got, c.want)
		}
	}
}

// TestSum32Seed_IndependentFamilies checks that different seeds disagree on
// most inputs, which double hashing assumes.
func TestSum32Seed_IndependentFamilies(t *testing.T) {
	same := 0
	total := 1000

	for i := 0; i < total; i++ {
		data := []byte(fmt.Sprintf("key-%d", i))
		if Sum32Seed(data, 0) == Sum32Seed(data, 0x9747b28c) {
			same++
		}
	}

	// A handful of coincidental collisions is fine, wholesale agreement is not.
	if same > total/100 {
		t.Errorf("seeded hashes agreed on %d/%d inputs", same, total)
	}
}

// TestSum32_Dispersion does a coarse bucket-balance check.
func TestSum32_Dispersion(t *testing.T) {
	const buckets = 16
	counts := make([]int, buckets)
	const n = 16000

	for i := 0; i < n; i++ {
		h := Sum32String(fmt.Sprintf("item-%d", i))
		counts[h%buckets]++
	}

	expected := n / buckets
	for b, c := range counts {
		if c < expected/2 || c > expected*2 {
			t.Errorf("bucket %d has %d items, expected around %d", b, c, expected)
		}
	}
}
