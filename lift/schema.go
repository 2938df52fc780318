//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package lift

import (
	"fmt"
)

// Kind classifies the encoding of a schema field.
type Kind int8

// Field encodings.
const (
	// KindBit is a boolean packed into a shared flag byte.
	KindBit Kind = iota
	// KindUint is an unsigned little-endian integer.
	KindUint
	// KindInt is a signed little-endian integer in two's complement.
	KindInt
)

func (k Kind) String() string {
	switch k {
	case KindBit:
		return "bit"
	case KindUint:
		return "uint"
	case KindInt:
		return "int"
	default:
		return fmt.Sprintf("{Kind %d}", int8(k))
	}
}

// Field describes one field of a row layout.
type Field struct {
	Name  string
	Kind  Kind
	Bytes int

	offset int
	bit    int
}

// Offset returns the field's byte offset within the encoded row.
func (f *Field) Offset() int {
	return f.offset
}

// Bit returns the field's bit position within its flag byte. It is
// meaningful for KindBit fields only.
func (f *Field) Bit() int {
	return f.bit
}

// Schema is the ordered field layout of one row encoding.
// Consecutive bit fields pack into shared flag bytes, eight per byte;
// integer fields start at the next free byte. All integers are
// little-endian and encoded byte by byte, so the layout is identical
// on every architecture. Field offsets are computed once here and
// shared by the encode and decode paths.
type Schema struct {
	fields   []Field
	rowBytes int
}

// NewSchema computes the layout of the fields.
func NewSchema(fields []Field) (*Schema, error) {
	schema := &Schema{
		fields: make([]Field, len(fields)),
	}
	copy(schema.fields, fields)

	var next int
	flagBits := 8

	for i := range schema.fields {
		f := &schema.fields[i]
		switch f.Kind {
		case KindBit:
			if flagBits == 8 {
				f.offset = next
				next++
				flagBits = 0
			} else {
				f.offset = next - 1
			}
			f.bit = flagBits
			flagBits++

		case KindUint, KindInt:
			if f.Bytes < 1 || f.Bytes > 8 {
				return nil, fmt.Errorf(
					"lift: field %s: invalid width %d bytes",
					f.Name, f.Bytes)
			}
			flagBits = 8
			f.offset = next
			next += f.Bytes

		default:
			return nil, fmt.Errorf("lift: field %s: unknown kind %s",
				f.Name, f.Kind)
		}
	}
	schema.rowBytes = next
	return schema, nil
}

// RowBytes returns the encoded row width in bytes.
func (s *Schema) RowBytes() int {
	return s.rowBytes
}

// NumFields returns the number of fields in the schema.
func (s *Schema) NumFields() int {
	return len(s.fields)
}

// Field returns the field at index i.
func (s *Schema) Field(i int) *Field {
	return &s.fields[i]
}

// Pack encodes values into buf following the schema layout. Values
// are given in field order: booleans as 0 or 1, signed integers in
// two's complement truncated to the field width. The buffer must be
// exactly RowBytes long.
func (s *Schema) Pack(values []uint64, buf []byte) error {
	if len(values) != len(s.fields) {
		return fmt.Errorf("lift: %d values for %d fields",
			len(values), len(s.fields))
	}
	if len(buf) != s.rowBytes {
		return fmt.Errorf("lift: buffer is %d bytes, row is %d",
			len(buf), s.rowBytes)
	}
	for i := range buf {
		buf[i] = 0
	}
	for i := range s.fields {
		f := &s.fields[i]
		v := values[i]
		switch f.Kind {
		case KindBit:
			if v != 0 {
				buf[f.offset] |= 1 << f.bit
			}

		default:
			for b := 0; b < f.Bytes; b++ {
				buf[f.offset+b] = byte(v >> (8 * b))
			}
		}
	}
	return nil
}

// Unpack decodes buf into values in field order. Bit fields decode to
// 0 or 1, unsigned fields zero-extend, and signed fields sign-extend
// to 64 bits. Unpack uses the same offsets as Pack so the two cannot
// disagree on the layout.
func (s *Schema) Unpack(buf []byte, values []uint64) error {
	if len(values) != len(s.fields) {
		return fmt.Errorf("lift: %d values for %d fields",
			len(values), len(s.fields))
	}
	if len(buf) != s.rowBytes {
		return fmt.Errorf("lift: buffer is %d bytes, row is %d",
			len(buf), s.rowBytes)
	}
	for i := range s.fields {
		f := &s.fields[i]
		switch f.Kind {
		case KindBit:
			values[i] = uint64(buf[f.offset]>>f.bit) & 1

		default:
			var v uint64
			for b := f.Bytes - 1; b >= 0; b-- {
				v = v<<8 | uint64(buf[f.offset+b])
			}
			if f.Kind == KindInt && f.Bytes < 8 {
				shift := 64 - 8*f.Bytes
				v = uint64(int64(v<<shift) >> shift)
			}
			values[i] = v
		}
	}
	return nil
}
