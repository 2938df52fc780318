//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package share implements XOR secret shares of byte strings and the
// transposed bit-plane layout used when batches of shared strings are
// exchanged between parties.
package share

import (
	"fmt"
	"io"
)

// Split splits data into two XOR shares: a uniformly random mask and
// data XOR mask. Either share alone is indistinguishable from random
// bytes.
func Split(random io.Reader, data []byte) (mask, masked []byte, err error) {
	mask = make([]byte, len(data))
	if _, err := io.ReadFull(random, mask); err != nil {
		return nil, nil, err
	}
	masked = make([]byte, len(data))
	for i, b := range data {
		masked[i] = b ^ mask[i]
	}
	return mask, masked, nil
}

// Combine recombines two XOR shares into the shared value.
func Combine(a, b []byte) ([]byte, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("share: length mismatch %d vs %d",
			len(a), len(b))
	}
	data := make([]byte, len(a))
	for i := range a {
		data[i] = a[i] ^ b[i]
	}
	return data, nil
}
