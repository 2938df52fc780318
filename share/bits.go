//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package share

import (
	"fmt"
)

// ToBits expands data into a bit sequence. Bit 8*i+k of the result is
// bit k of byte i, least significant bit first.
func ToBits(data []byte) []bool {
	bits := make([]bool, len(data)*8)
	for i, b := range data {
		for k := 0; k < 8; k++ {
			bits[i*8+k] = (b>>k)&1 == 1
		}
	}
	return bits
}

// FromBits packs a bit sequence into bytes, least significant bit
// first. A final partial byte is zero-extended.
func FromBits(bits []bool) []byte {
	data := make([]byte, (len(bits)+7)/8)
	for i, bit := range bits {
		if bit {
			data[i/8] |= 1 << (i % 8)
		}
	}
	return data
}

// Transpose converts a row-major bit matrix into column-major order:
// result[c][r] == rows[r][c]. All input rows must have equal length.
func Transpose(rows [][]bool) ([][]bool, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	width := len(rows[0])
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("share: row %d length %d, expected %d",
				i, len(row), width)
		}
	}
	cols := make([][]bool, width)
	for c := 0; c < width; c++ {
		col := make([]bool, len(rows))
		for r := range rows {
			col[r] = rows[r][c]
		}
		cols[c] = col
	}
	return cols, nil
}
