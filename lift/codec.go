//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package lift

import (
	"fmt"
)

// Codec serializes one role's rows into the canonical fixed layout
// and decodes encoded buffers back into typed rows. The decode path
// works on cleartext and on XOR share buffers alike: it only moves
// bits by the schema offsets, so decoding each party's share of an
// encoded row yields that party's share of every field.
type Codec interface {
	// Role returns the role whose rows the codec handles.
	Role() Role

	// RowBytes returns the encoded row width in bytes.
	RowBytes() int

	// EncodeInput encodes the row at the index of the input dataset
	// into buf, computing the derived fields.
	EncodeInput(in *InputData, row int, buf []byte) error
}

// PublisherCodec implements the publisher row layout: one packed flag
// byte holding breakdownId (bit 0), controlPopulation (bit 1),
// isValidOpportunityTimestamp (bit 2) and testReach (bit 3), followed
// by the four little-endian bytes of opportunityTimestamp.
type PublisherCodec struct {
	schema *Schema
}

// NewPublisherCodec creates a codec for publisher rows.
func NewPublisherCodec() *PublisherCodec {
	schema, err := NewSchema([]Field{
		{Name: "breakdownId", Kind: KindBit},
		{Name: "controlPopulation", Kind: KindBit},
		{Name: "isValidOpportunityTimestamp", Kind: KindBit},
		{Name: "testReach", Kind: KindBit},
		{Name: "opportunityTimestamp", Kind: KindUint, Bytes: 4},
	})
	if err != nil {
		panic(err)
	}
	return &PublisherCodec{
		schema: schema,
	}
}

// Role implements Codec.Role.
func (c *PublisherCodec) Role() Role {
	return Publisher
}

// RowBytes implements Codec.RowBytes.
func (c *PublisherCodec) RowBytes() int {
	return c.schema.RowBytes()
}

// Encode encodes the row into buf.
func (c *PublisherCodec) Encode(row PublisherRow, buf []byte) error {
	return c.schema.Pack([]uint64{
		boolBit(row.BreakdownID),
		boolBit(row.ControlPopulation),
		boolBit(row.IsValidOpportunityTimestamp),
		boolBit(row.TestReach),
		uint64(row.OpportunityTimestamp),
	}, buf)
}

// EncodeInput implements Codec.EncodeInput.
func (c *PublisherCodec) EncodeInput(in *InputData, row int, buf []byte) error {
	if in.Role() != Publisher {
		return fmt.Errorf("lift: %s codec for %s input", Publisher, in.Role())
	}
	if row < 0 || row >= in.NumRows() {
		return fmt.Errorf("lift: row %d out of range [0...%d[",
			row, in.NumRows())
	}
	return c.Encode(NewPublisherRow(
		boolAt(in.breakdownIDs, row),
		boolAt(in.controlPopulation, row),
		boolAt(in.testPopulation, row),
		i64At(in.numImpressions, row),
		u32At(in.opportunityTimestamps, row)), buf)
}

// Decode decodes buf into a publisher row. The stored flags are
// returned as encoded, not re-derived.
func (c *PublisherCodec) Decode(buf []byte) (PublisherRow, error) {
	values := make([]uint64, c.schema.NumFields())
	if err := c.schema.Unpack(buf, values); err != nil {
		return PublisherRow{}, err
	}
	return PublisherRow{
		BreakdownID:                 values[0] != 0,
		ControlPopulation:           values[1] != 0,
		IsValidOpportunityTimestamp: values[2] != 0,
		TestReach:                   values[3] != 0,
		OpportunityTimestamp:        uint32(values[4]),
	}, nil
}

// PartnerCodec implements the partner row layout: one flag byte
// holding anyValidPurchaseTimestamp (bit 0) and the four little-
// endian bytes of cohortGroupId, followed by one fixed 20-byte block
// per conversion slot: purchaseTimestamp u32, thresholdTimestamp u32,
// purchaseValue i32 and purchaseValueSquared i64, all little-endian.
type PartnerCodec struct {
	schema      *Schema
	conversions int
	window      uint32
}

// NewPartnerCodec creates a codec for partner rows with the given
// number of conversion slots per row. The window is the attribution
// window added to set purchase timestamps when deriving threshold
// timestamps.
func NewPartnerCodec(conversionsPerUser int, window uint32) (*PartnerCodec, error) {
	if conversionsPerUser < 0 {
		return nil, fmt.Errorf("lift: negative conversions per user %d",
			conversionsPerUser)
	}
	fields := []Field{
		{Name: "anyValidPurchaseTimestamp", Kind: KindBit},
		{Name: "cohortGroupId", Kind: KindUint, Bytes: 4},
	}
	for j := 0; j < conversionsPerUser; j++ {
		fields = append(fields,
			Field{
				Name:  fmt.Sprintf("purchaseTimestamp.%d", j),
				Kind:  KindUint,
				Bytes: 4,
			},
			Field{
				Name:  fmt.Sprintf("thresholdTimestamp.%d", j),
				Kind:  KindUint,
				Bytes: 4,
			},
			Field{
				Name:  fmt.Sprintf("purchaseValue.%d", j),
				Kind:  KindInt,
				Bytes: 4,
			},
			Field{
				Name:  fmt.Sprintf("purchaseValueSquared.%d", j),
				Kind:  KindInt,
				Bytes: 8,
			})
	}
	schema, err := NewSchema(fields)
	if err != nil {
		return nil, err
	}
	return &PartnerCodec{
		schema:      schema,
		conversions: conversionsPerUser,
		window:      window,
	}, nil
}

// Role implements Codec.Role.
func (c *PartnerCodec) Role() Role {
	return Partner
}

// RowBytes implements Codec.RowBytes.
func (c *PartnerCodec) RowBytes() int {
	return c.schema.RowBytes()
}

// Conversions returns the number of conversion slots per row.
func (c *PartnerCodec) Conversions() int {
	return c.conversions
}

// Encode encodes the row into buf. Rows with fewer conversions than
// the codec's slot count pad with zero conversions; rows with more
// are an error.
func (c *PartnerCodec) Encode(row PartnerRow, buf []byte) error {
	if len(row.Conversions) > c.conversions {
		return fmt.Errorf("lift: row has %d conversions, capacity %d",
			len(row.Conversions), c.conversions)
	}
	values := make([]uint64, 0, c.schema.NumFields())
	values = append(values,
		boolBit(row.AnyValidPurchaseTimestamp),
		uint64(row.CohortGroupID))
	for j := 0; j < c.conversions; j++ {
		var conv PartnerConversionRow
		if j < len(row.Conversions) {
			conv = row.Conversions[j]
		}
		values = append(values,
			uint64(conv.PurchaseTimestamp),
			uint64(conv.ThresholdTimestamp),
			uint64(uint32(conv.PurchaseValue)),
			uint64(conv.PurchaseValueSquared))
	}
	return c.schema.Pack(values, buf)
}

// EncodeInput implements Codec.EncodeInput.
func (c *PartnerCodec) EncodeInput(in *InputData, row int, buf []byte) error {
	if in.Role() != Partner {
		return fmt.Errorf("lift: %s codec for %s input", Partner, in.Role())
	}
	if row < 0 || row >= in.NumRows() {
		return fmt.Errorf("lift: row %d out of range [0...%d[",
			row, in.NumRows())
	}
	tss := u32SliceAt(in.purchaseTimestamps, row)
	vals := i64SliceAt(in.purchaseValues, row)
	squared := i64SliceAt(in.purchaseValuesSquared, row)
	if len(tss) > c.conversions || len(vals) > c.conversions ||
		len(squared) > c.conversions {
		return fmt.Errorf("lift: row %d has %d conversions, capacity %d",
			row, maxLen(tss, vals, squared), c.conversions)
	}
	convs := make([]PartnerConversionRow, c.conversions)
	for j := 0; j < c.conversions; j++ {
		convs[j] = NewPartnerConversionRow(
			u32Elem(tss, j), c.window,
			int32(i64Elem(vals, j)),
			i64Elem(squared, j))
	}
	return c.Encode(NewPartnerRow(u32At(in.cohortGroupIDs, row), convs), buf)
}

// Decode decodes buf into a partner row with the codec's number of
// conversion slots. The stored flags are returned as encoded, not
// re-derived.
func (c *PartnerCodec) Decode(buf []byte) (PartnerRow, error) {
	values := make([]uint64, c.schema.NumFields())
	if err := c.schema.Unpack(buf, values); err != nil {
		return PartnerRow{}, err
	}
	row := PartnerRow{
		AnyValidPurchaseTimestamp: values[0] != 0,
		CohortGroupID:             uint32(values[1]),
		Conversions:               make([]PartnerConversionRow, c.conversions),
	}
	for j := 0; j < c.conversions; j++ {
		base := 2 + j*4
		row.Conversions[j] = PartnerConversionRow{
			PurchaseTimestamp:    uint32(values[base]),
			ThresholdTimestamp:   uint32(values[base+1]),
			PurchaseValue:        int32(values[base+2]),
			PurchaseValueSquared: int64(values[base+3]),
		}
	}
	return row, nil
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func maxLen(a []uint32, b, c []int64) int {
	max := len(a)
	if len(b) > max {
		max = len(b)
	}
	if len(c) > max {
		max = len(c)
	}
	return max
}
