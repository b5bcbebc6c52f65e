// Package internal holds small helpers shared by the engine's internal
// subsystems.
package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// DrawPair selects two distinct indexes in [0, n) uniformly at random
// without replacement.
func DrawPair(n int) ([2]int, error) {
	var out [2]int
	if n < 2 {
		return out, errors.New("draw pool too small")
	}

	first, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return out, err
	}
	second, err := rand.Int(rand.Reader, big.NewInt(int64(n-1)))
	if err != nil {
		return out, err
	}

	out[0] = int(first.Int64())
	out[1] = int(second.Int64())
	if out[1] >= out[0] {
		out[1]++
	}
	return out, nil
}
