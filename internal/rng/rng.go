// Package rng implements the cryptographic PRNG/hash contract that
// spec.md §9 Design Notes leaves "specified only by contract":
// get_uint64, get_bytes, sha256, scramble32, scramble64. Every pass in
// this toolkit draws randomness through a *Source so a single pass
// instance never shares PRNG state with another module compilation
// (spec.md §5).
package rng

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	mrand "math/rand"
)

// Source is a process-local PRNG. It is not safe for concurrent use by
// design: spec.md §5 requires one PRNG per pass instance, never shared.
type Source struct {
	r *mrand.Rand
}

// NewSource seeds a Source from 32 bytes of caller-supplied seed material
// (typically OptionsBundle.RandomSeed), collapsing it to an int64 seed the
// way this codebase's literal-obfuscation reference collapses random state
// into a *math/rand.Rand.
func NewSource(seed [32]byte) *Source {
	s := int64(binary.LittleEndian.Uint64(seed[:8]))
	return &Source{r: mrand.New(mrand.NewSource(s))}
}

// NewCryptoSeeded builds a Source from crypto/rand, for callers that have
// no caller-supplied seed. Nothing else in this module calls it; config
// loading and the CLI never draw a random seed.
func NewCryptoSeeded() *Source {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("rng: crypto/rand failed: %v", err))
	}
	return NewSource(buf)
}

// GetUint64 draws a uniformly distributed 64-bit value.
func (s *Source) GetUint64() uint64 { return s.r.Uint64() }

// GetBytes fills buf with random bytes.
func (s *Source) GetBytes(buf []byte) {
	for i := range buf {
		buf[i] = byte(s.r.Intn(256))
	}
}

// Intn draws a uniform value in [0, n).
func (s *Source) Intn(n int) int { return s.r.Intn(n) }

// Shuffle permutes n elements via swap(i, j), matching math/rand.Shuffle's
// Fisher-Yates contract — the page-table engine's object reshuffling
// (spec.md §4.C step 3a) is built directly on this.
func (s *Source) Shuffle(n int, swap func(i, j int)) { s.r.Shuffle(n, swap) }

// SHA256 hashes msg and writes the 32-byte digest into out.
func SHA256(msg []byte, out *[32]byte) {
	*out = sha256.Sum256(msg)
}

// ScrambleKey is the 128-bit key type the flattener draws once per function
// (spec.md §4.F step 4).
type ScrambleKey [16]byte

// NewScrambleKey draws a fresh 128-bit scrambling key.
func (s *Source) NewScrambleKey() ScrambleKey {
	var k ScrambleKey
	s.GetBytes(k[:])
	return k
}

// Scramble32 is a deterministic, keyed permutation of index given key:
// same (key, index) always yields the same output, and distinct indices
// under the same key are (with overwhelming probability) distinct outputs.
// The exact construction is not specified beyond this contract (spec.md
// §4.F step 4); this is a SipHash-style mix built from the same primitives
// the mask cipher itself uses (rotate, xor, byteswap), grounded in that
// shared vocabulary rather than inventing unrelated machinery.
func Scramble32(index uint32, key ScrambleKey) uint32 {
	k0 := binary.LittleEndian.Uint32(key[0:4])
	k1 := binary.LittleEndian.Uint32(key[4:8])
	k2 := binary.LittleEndian.Uint32(key[8:12])
	k3 := binary.LittleEndian.Uint32(key[12:16])
	x := index ^ k0
	x = bits32RotL(x, 7) ^ k1
	x = bits32ByteSwap(x) + k2
	x = bits32RotL(x, 13) ^ k3
	return x
}

// Scramble64 is the 64-bit-state analog of Scramble32, used when the host
// pointer size is 64 bits (spec.md §4.F step 4).
func Scramble64(index uint64, key ScrambleKey) uint64 {
	lo := Scramble32(uint32(index), key)
	var key2 ScrambleKey
	copy(key2[:], key[:])
	key2[0] ^= byte(lo)
	hi := Scramble32(uint32(index>>32)^lo, key2)
	return uint64(hi)<<32 | uint64(lo)
}

func bits32RotL(x uint32, s uint) uint32 { s %= 32; return x<<s | x>>(32-s) }

func bits32ByteSwap(x uint32) uint32 {
	return x<<24 | (x&0xFF00)<<8 | (x>>8)&0xFF00 | x>>24
}
