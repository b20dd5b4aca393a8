package keys

import (
	"bytes"
	"sort"
	"testing"
)

// TestKey_CompareWithinKind checks natural ordering inside each variant.
func TestKey_CompareWithinKind(t *testing.T) {
	cases := []struct {
		a, b Key
		want int
	}{
		{Int64(-5), Int64(3), -1},
		{Int64(3), Int64(3), 0},
		{Int64(10), Int64(-10), 1},
		{String("apple"), String("banana"), -1},
		{String("same"), String("same"), 0},
		{Bytes([]byte{0x01}), Bytes([]byte{0x02}), -1},
		{Bytes([]byte{0xff}), Bytes([]byte{0x00, 0x01}), 1},
	}

	for _, c := range cases {
		if got := Compare(c.a, c.b); got != c.want {
			t.Errorf("Compare(%s, %s) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

// TestKey_CompareAcrossKinds checks the kind-tag ordering that makes the
// total order transitive.
func TestKey_CompareAcrossKinds(t *testing.T) {
	ordered := []Key{Int64(1 << 62), String(""), Bytes(nil)}
	for i := 0; i < len(ordered)-1; i++ {
		if Compare(ordered[i], ordered[i+1]) >= 0 {
			t.Errorf("expected %s < %s", ordered[i], ordered[i+1])
		}
	}
}

// TestKey_EncodeOrderPreserving verifies that encoded bytes sort exactly like
// Compare. The segment's binary search depends on this agreement.
func TestKey_EncodeOrderPreserving(t *testing.T) {
	ks := []Key{
		Int64(-1 << 62), Int64(-1), Int64(0), Int64(1), Int64(1 << 62),
		String(""), String("a"), String("ab"), String("b"),
		Bytes([]byte{}), Bytes([]byte{0x00}), Bytes([]byte{0xff}),
	}

	sorted := make([]Key, len(ks))
	copy(sorted, ks)
	sort.Slice(sorted, func(i, j int) bool { return Compare(sorted[i], sorted[j]) < 0 })

	encSorted := make([][]byte, len(ks))
	for i, k := range ks {
		encSorted[i] = k.Encode()
	}
	sort.Slice(encSorted, func(i, j int) bool { return bytes.Compare(encSorted[i], encSorted[j]) < 0 })

	for i := range sorted {
		if !bytes.Equal(sorted[i].Encode(), encSorted[i]) {
			t.Fatalf("position %d: key order and encoded order disagree", i)
		}
	}
}

// TestKey_EncodeDecodeRoundTrip exercises every variant.
func TestKey_EncodeDecodeRoundTrip(t *testing.T) {
	ks := []Key{
		Int64(0), Int64(-9000000000), Int64(42),
		String(""), String("term1"), String("日本語"),
		Bytes(nil), Bytes([]byte{0x00, 0x01, 0xff}),
	}

	for _, k := range ks {
		got, err := Decode(k.Encode())
		if err != nil {
			t.Fatalf("Decode(%s): %v", k, err)
		}
		if Compare(got, k) != 0 || got.Kind() != k.Kind() {
			t.Errorf("round trip changed key: %s -> %s", k, got)
		}
	}
}

// TestKey_DecodeRejectsGarbage checks malformed encodings fail loudly.
func TestKey_DecodeRejectsGarbage(t *testing.T) {
	bad := [][]byte{
		nil,
		{},
		{0x00},             // unknown kind
		{0x99, 0x01},       // unknown kind
		{byte(KindInt64)},  // truncated int64
		{byte(KindInt64), 1, 2, 3}, // short int64
	}

	for _, b := range bad {
		if _, err := Decode(b); err == nil {
			t.Errorf("Decode(%x) succeeded, want error", b)
		}
	}
}

// TestKey_UsableAsMapKey ensures Key stays comparable; the batched lookup API
// returns map[Key][]byte.
func TestKey_UsableAsMapKey(t *testing.T) {
	m := map[Key]int{
		Int64(1):              1,
		String("1"):           2,
		Bytes([]byte("1")):    3,
	}
	if len(m) != 3 {
		t.Fatalf("expected 3 distinct keys, got %d", len(m))
	}
	if m[String("1")] != 2 {
		t.Error("string key lookup failed")
	}
}
