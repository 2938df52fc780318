//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package prg implements a seeded pseudo-random generator and secure
// uniform permutations for the input processing pipeline.
package prg

import (
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20"
)

// SeedSize is the size of a PRG seed in bytes.
const SeedSize = chacha20.KeySize

// PRG is a deterministic pseudo-random generator expanding a seed
// into a ChaCha20 keystream. It implements io.Reader and can be used
// as the entropy source of env.Config. Callers must ensure domain
// separation via unique seeds.
type PRG struct {
	cipher *chacha20.Cipher
}

// NewPRG creates a new PRG from the seed. The seed must be SeedSize
// bytes long.
func NewPRG(seed []byte) (*PRG, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("prg: invalid seed length %d, expected %d",
			len(seed), SeedSize)
	}
	nonce := make([]byte, chacha20.NonceSize)
	cipher, err := chacha20.NewUnauthenticatedCipher(seed, nonce)
	if err != nil {
		return nil, err
	}
	return &PRG{
		cipher: cipher,
	}, nil
}

// NewFromRandom creates a new PRG seeded from the random source. The
// resulting generator is deterministic for its seed but the seed
// itself is not recoverable from the caller.
func NewFromRandom(random io.Reader) (*PRG, error) {
	seed := make([]byte, SeedSize)
	if _, err := io.ReadFull(random, seed); err != nil {
		return nil, err
	}
	return NewPRG(seed)
}

// Read fills p with keystream bytes. It never fails and always
// returns len(p), nil.
func (prg *PRG) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	prg.cipher.XORKeyStream(p, p)
	return len(p), nil
}
