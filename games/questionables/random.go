/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package questionables

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

const (
	// CodeLength is the length of generated join codes.
	CodeLength = 4

	// CodeChars excludes characters that are easy to confuse when read aloud.
	CodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	refLength = 8
	refChars  = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Random is the source of all non-cryptographic randomness in a session:
// join codes, ballot references and ballot order. Tests supply a seeded
// implementation so ballots come out in a known order.
type Random interface {
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

// NewRandom returns a Random backed by a PCG generator with the given seed.
// It is not safe for concurrent use; the Store only calls it under its lock.
func NewRandom(seed uint64) Random {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewSeed reads a seed from crypto/rand.
func NewSeed() (uint64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}

	return binary.LittleEndian.Uint64(b[:]), nil
}

func randomString(r Random, alphabet string, n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = alphabet[r.IntN(len(alphabet))]
	}

	return string(out)
}

func newCode(r Random) string {
	return randomString(r, CodeChars, CodeLength)
}

func newRef(r Random) string {
	return randomString(r, refChars, refLength)
}
