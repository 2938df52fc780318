//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package share

import (
	"fmt"
)

// StringBatch holds a batch of equal-width secret-shared byte strings
// in bit-plane order: plane p holds bit p of every row, bits numbered
// least significant bit first within each byte. The transposed layout
// lets downstream circuits operate on one bit position of all rows at
// a time.
type StringBatch struct {
	rowBytes int
	rows     int
	planes   [][]bool
}

// NewStringBatch builds a batch from row-major share strings. Every
// row must be rowBytes long.
func NewStringBatch(rowBytes int, rowShares [][]byte) (*StringBatch, error) {
	if rowBytes < 0 {
		return nil, fmt.Errorf("share: negative row width %d", rowBytes)
	}
	bitRows := make([][]bool, len(rowShares))
	for i, row := range rowShares {
		if len(row) != rowBytes {
			return nil, fmt.Errorf("share: row %d is %d bytes, expected %d",
				i, len(row), rowBytes)
		}
		bitRows[i] = ToBits(row)
	}
	planes, err := Transpose(bitRows)
	if err != nil {
		return nil, err
	}
	if planes == nil {
		planes = make([][]bool, rowBytes*8)
		for i := range planes {
			planes[i] = []bool{}
		}
	}
	return &StringBatch{
		rowBytes: rowBytes,
		rows:     len(rowShares),
		planes:   planes,
	}, nil
}

// Size returns the number of rows in the batch.
func (b *StringBatch) Size() int {
	return b.rows
}

// RowBytes returns the width of each row in bytes.
func (b *StringBatch) RowBytes() int {
	return b.rowBytes
}

// Planes returns the bit-plane representation of the batch. The
// result is the batch's internal storage and must not be modified.
func (b *StringBatch) Planes() [][]bool {
	return b.planes
}

// Rows returns the batch in row-major order, one share string per
// row.
func (b *StringBatch) Rows() [][]byte {
	rows := make([][]byte, b.rows)
	for r := 0; r < b.rows; r++ {
		bits := make([]bool, len(b.planes))
		for p, plane := range b.planes {
			bits[p] = plane[r]
		}
		rows[r] = FromBits(bits)
	}
	return rows
}

// CombineStrings recombines two share batches into cleartext rows.
// The batches must have the same shape.
func CombineStrings(a, b *StringBatch) ([][]byte, error) {
	if a.Size() != b.Size() || a.RowBytes() != b.RowBytes() {
		return nil, fmt.Errorf("share: batch shape mismatch %dx%d vs %dx%d",
			a.Size(), a.RowBytes(), b.Size(), b.RowBytes())
	}
	aRows := a.Rows()
	bRows := b.Rows()
	rows := make([][]byte, len(aRows))
	for i := range aRows {
		row, err := Combine(aRows[i], bRows[i])
		if err != nil {
			return nil, err
		}
		rows[i] = row
	}
	return rows, nil
}
