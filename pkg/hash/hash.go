// Package hash provides the 32-bit non-cryptographic hash used across the
// engine for Bloom filter bit derivation and key digesting.
//
// Murmur3 is used because persisted segments must stay readable: for a given
// input and seed the digest is identical across runs, platforms and
// architectures. No cryptographic resistance is needed here, only dispersion.
package hash

import (
	"github.com/spaolacci/murmur3"
)

// Sum32 returns the seedless 32-bit digest of data.
func Sum32(data []byte) uint32 {
	return murmur3.Sum32(data)
}

// Sum32Seed returns the 32-bit digest of data under the given seed.
// Different seeds yield independent hash families, which is what the Bloom
// filter's double hashing relies on.
func Sum32Seed(data []byte, seed uint32) uint32 {
	return murmur3.Sum32WithSeed(data, seed)
}

// Sum32String hashes a string without forcing the caller to convert.
func Sum32String(s string) uint32 {
	return murmur3.Sum32([]byte(s))
}
