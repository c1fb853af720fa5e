/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package party

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

// Rand is the random source used to deal impostors, words and roles.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

// NewRand returns a deterministic source for seed.
func NewRand(seed int64) Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}

// NewSeed reads a seed from crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}

	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Shuffle permutes n items in place with Fisher-Yates, drawing from rng.
func Shuffle(rng Rand, n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		swap(i, j)
	}
}
