// Package bloom implements the probabilistic membership filter embedded in
// every segment. A filter answers "possibly present" or "definitely absent":
// false positives happen at a bounded rate, false negatives never.
package bloom

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/hadro-db/hadro/pkg/hash"
)

const (
	// maxBits caps the bit array to keep a bad expectedItems input from
	// exhausting memory. 1 << 30 bits is 128 MiB.
	maxBits = 1 << 30
	// maxHashCount bounds k; beyond this more hashing only burns CPU.
	maxHashCount = 32

	// DefaultFalsePositiveRate is used when the caller passes a rate outside
	// (0, 1).
	DefaultFalsePositiveRate = 0.01

	// secondHashSeed seeds the second murmur3 family for double hashing.
	secondHashSeed = 0x9747b28c
)

// ErrBadFilterEncoding reports a serialized filter that cannot be decoded.
var ErrBadFilterEncoding = errors.New("bloom: bad filter encoding")

// Filter is a fixed-size bit array with k positions derived per item by
// double hashing a single 32-bit item hash. Additive inserts only; a filter
// embedded in a segment is sealed and never mutated again.
type Filter struct {
	bits      []byte
	bitCount  uint32
	hashCount uint32
}

// New sizes a filter for the expected item count and target false-positive
// rate using the standard formulas m = -n*ln(p)/ln(2)^2 and k = (m/n)*ln(2).
// Out-of-range inputs fall back to n=1 and p=DefaultFalsePositiveRate rather
// than failing; filter construction is total.
func New(expectedItems int, falsePositiveRate float64) *Filter {
	if expectedItems <= 0 {
		expectedItems = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = DefaultFalsePositiveRate
	}

	m := int(math.Ceil(-float64(expectedItems) * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2)))
	k := int(math.Round(float64(m) / float64(expectedItems) * math.Ln2))

	if m < 8 {
		m = 8
	}
	if m > maxBits {
		m = maxBits
	}
	if k < 1 {
		k = 1
	}
	if k > maxHashCount {
		k = maxHashCount
	}

	return &Filter{
		bits:      make([]byte, (m+7)/8),
		bitCount:  uint32(m),
		hashCount: uint32(k),
	}
}

// positions derives the k bit positions for an item hash. The second hash is
// a seeded murmur3 digest of the item hash's bytes, forced odd so the stride
// stays coprime with power-of-two bit counts.
func (f *Filter) positions(itemHash uint32, fn func(pos uint32) bool) {
	var hb [4]byte
	binary.LittleEndian.PutUint32(hb[:], itemHash)

	h1 := uint64(itemHash)
	h2 := uint64(hash.Sum32Seed(hb[:], secondHashSeed)) | 1

	for i := uint64(0); i < uint64(f.hashCount); i++ {
		pos := uint32((h1 + i*h2) % uint64(f.bitCount))
		if !fn(pos) {
			return
		}
	}
}

// Add records an item hash in the filter.
func (f *Filter) Add(itemHash uint32) {
	f.positions(itemHash, func(pos uint32) bool {
		f.bits[pos/8] |= 1 << (pos % 8)
		return true
	})
}

// PossiblyContains reports whether the item hash may have been added. A false
// return is definitive: the hash was never added.
func (f *Filter) PossiblyContains(itemHash uint32) bool {
	all := true
	f.positions(itemHash, func(pos uint32) bool {
		if f.bits[pos/8]&(1<<(pos%8)) == 0 {
			all = false
			return false
		}
		return true
	})
	return all
}

// AddKey hashes raw key bytes and adds them.
func (f *Filter) AddKey(key []byte) {
	f.Add(hash.Sum32(key))
}

// PossiblyContainsKey hashes raw key bytes and tests them.
func (f *Filter) PossiblyContainsKey(key []byte) bool {
	return f.PossiblyContains(hash.Sum32(key))
}

// BitCount returns the size of the bit array.
func (f *Filter) BitCount() int { return int(f.bitCount) }

// HashCount returns k, the number of derived positions per item.
func (f *Filter) HashCount() int { return int(f.hashCount) }

// EstimateFalsePositiveRate returns the expected false-positive rate after
// itemCount inserts: (1 - e^(-k*n/m))^k.
func (f *Filter) EstimateFalsePositiveRate(itemCount int) float64 {
	k := float64(f.hashCount)
	n := float64(itemCount)
	m := float64(f.bitCount)
	return math.Pow(1.0-math.Exp(-k*n/m), k)
}

// MarshalBinary serializes the filter as
// [bitCount u32][hashCount u32][bit bytes], little-endian. The byte form
// preserves exact bit state, so every PossiblyContains answer survives a
// round trip.
func (f *Filter) MarshalBinary() []byte {
	out := make([]byte, 8+len(f.bits))
	binary.LittleEndian.PutUint32(out[0:4], f.bitCount)
	binary.LittleEndian.PutUint32(out[4:8], f.hashCount)
	copy(out[8:], f.bits)
	return out
}

// UnmarshalBinary reconstructs a filter from its serialized form.
func UnmarshalBinary(data []byte) (*Filter, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the parameter header", ErrBadFilterEncoding, len(data))
	}
	bitCount := binary.LittleEndian.Uint32(data[0:4])
	hashCount := binary.LittleEndian.Uint32(data[4:8])

	if bitCount == 0 || bitCount > maxBits {
		return nil, fmt.Errorf("%w: bit count %d out of range", ErrBadFilterEncoding, bitCount)
	}
	if hashCount == 0 || hashCount > maxHashCount {
		return nil, fmt.Errorf("%w: hash count %d out of range", ErrBadFilterEncoding, hashCount)
	}
	wantBytes := int(bitCount+7) / 8
	if len(data)-8 != wantBytes {
		return nil, fmt.Errorf("%w: %d bit-array bytes, want %d", ErrBadFilterEncoding, len(data)-8, wantBytes)
	}

	bits := make([]byte, wantBytes)
	copy(bits, data[8:])
	return &Filter{bits: bits, bitCount: bitCount, hashCount: hashCount}, nil
}
