//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package prg

import (
	"fmt"
	"io"
)

// Permutation creates a uniformly random permutation of the values
// 0..n-1 using the Fisher-Yates shuffle. The random indices are drawn
// from random with rejection sampling so every permutation is equally
// likely.
func Permutation(random io.Reader, n int) ([]uint32, error) {
	if n < 0 {
		return nil, fmt.Errorf("prg: negative permutation size %d", n)
	}
	perm := make([]uint32, n)
	for i := 0; i < n; i++ {
		perm[i] = uint32(i)
	}
	for i := n - 1; i > 0; i-- {
		j, err := uniform(random, uint32(i)+1)
		if err != nil {
			return nil, err
		}
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm, nil
}

// uniform returns a uniformly distributed value in [0, bound). Values
// from the biased tail of the 32-bit range are rejected and redrawn.
func uniform(random io.Reader, bound uint32) (uint32, error) {
	if bound == 0 {
		return 0, fmt.Errorf("prg: zero bound")
	}
	// The largest multiple of bound representable in 33 bits.
	limit := (uint64(1) << 32) / uint64(bound) * uint64(bound)

	var buf [4]byte
	for {
		if _, err := io.ReadFull(random, buf[:]); err != nil {
			return 0, err
		}
		v := uint32(buf[0])<<24 | uint32(buf[1])<<16 |
			uint32(buf[2])<<8 | uint32(buf[3])
		if uint64(v) < limit {
			return v % bound, nil
		}
	}
}
