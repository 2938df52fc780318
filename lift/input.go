//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package lift

import (
	"fmt"
)

// PublisherColumns carries the publisher dataset columns. Columns may
// be shorter than the dataset's row count; missing entries read as
// zero values.
type PublisherColumns struct {
	BreakdownIDs          []bool
	ControlPopulation     []bool
	TestPopulation        []bool
	NumImpressions        []int64
	OpportunityTimestamps []uint32
}

// PartnerColumns carries the partner dataset columns. The conversion
// columns hold one array per row; arrays shorter than the configured
// conversions per user pad with zero conversions.
type PartnerColumns struct {
	CohortGroupIDs        []uint32
	PurchaseTimestamps    [][]uint32
	PurchaseValues        [][]int64
	PurchaseValuesSquared [][]int64
}

// InputData is one party's dataset: the typed column arrays of its
// role plus the dummy-row flags produced by the upstream identity
// match. A column longer than the row count is a precondition
// violation; shorter columns read as zero values beyond their length.
type InputData struct {
	role    Role
	numRows int

	dummyRows []bool

	breakdownIDs          []bool
	controlPopulation     []bool
	testPopulation        []bool
	numImpressions        []int64
	opportunityTimestamps []uint32

	cohortGroupIDs        []uint32
	purchaseTimestamps    [][]uint32
	purchaseValues        [][]int64
	purchaseValuesSquared [][]int64
}

// NewPublisherInput creates a publisher dataset of numRows rows.
func NewPublisherInput(numRows int, dummyRows []bool,
	cols PublisherColumns) (*InputData, error) {

	in := &InputData{
		role:                  Publisher,
		numRows:               numRows,
		breakdownIDs:          cols.BreakdownIDs,
		controlPopulation:     cols.ControlPopulation,
		testPopulation:        cols.TestPopulation,
		numImpressions:        cols.NumImpressions,
		opportunityTimestamps: cols.OpportunityTimestamps,
	}
	if err := in.init(dummyRows); err != nil {
		return nil, err
	}
	if err := in.checkLen("breakdownIds", len(cols.BreakdownIDs)); err != nil {
		return nil, err
	}
	if err := in.checkLen("controlPopulation",
		len(cols.ControlPopulation)); err != nil {
		return nil, err
	}
	if err := in.checkLen("testPopulation",
		len(cols.TestPopulation)); err != nil {
		return nil, err
	}
	if err := in.checkLen("numImpressions",
		len(cols.NumImpressions)); err != nil {
		return nil, err
	}
	if err := in.checkLen("opportunityTimestamps",
		len(cols.OpportunityTimestamps)); err != nil {
		return nil, err
	}
	return in, nil
}

// NewPartnerInput creates a partner dataset of numRows rows.
func NewPartnerInput(numRows int, dummyRows []bool,
	cols PartnerColumns) (*InputData, error) {

	in := &InputData{
		role:                  Partner,
		numRows:               numRows,
		cohortGroupIDs:        cols.CohortGroupIDs,
		purchaseTimestamps:    cols.PurchaseTimestamps,
		purchaseValues:        cols.PurchaseValues,
		purchaseValuesSquared: cols.PurchaseValuesSquared,
	}
	if err := in.init(dummyRows); err != nil {
		return nil, err
	}
	if err := in.checkLen("cohortGroupIds",
		len(cols.CohortGroupIDs)); err != nil {
		return nil, err
	}
	if err := in.checkLen("purchaseTimestamps",
		len(cols.PurchaseTimestamps)); err != nil {
		return nil, err
	}
	if err := in.checkLen("purchaseValues",
		len(cols.PurchaseValues)); err != nil {
		return nil, err
	}
	if err := in.checkLen("purchaseValuesSquared",
		len(cols.PurchaseValuesSquared)); err != nil {
		return nil, err
	}
	return in, nil
}

func (in *InputData) init(dummyRows []bool) error {
	if in.numRows < 0 {
		return fmt.Errorf("lift: negative row count %d", in.numRows)
	}
	if len(dummyRows) > in.numRows {
		return fmt.Errorf("lift: dummyRows has %d entries for %d rows",
			len(dummyRows), in.numRows)
	}
	in.dummyRows = make([]bool, in.numRows)
	copy(in.dummyRows, dummyRows)
	return nil
}

func (in *InputData) checkLen(name string, length int) error {
	if length > in.numRows {
		return fmt.Errorf("lift: column %s has %d entries for %d rows",
			name, length, in.numRows)
	}
	return nil
}

// Role returns the dataset's role.
func (in *InputData) Role() Role {
	return in.role
}

// NumRows returns the dataset's row count, including dummy rows.
func (in *InputData) NumRows() int {
	return in.numRows
}

// DummyRows returns the per-row dummy flags, padded to the row count.
// The result must not be modified.
func (in *InputData) DummyRows() []bool {
	return in.dummyRows
}

// Validate checks the dataset against the configured conversion
// capacity. Conversion arrays longer than conversionsPerUser are a
// precondition violation; publisher datasets always validate.
func (in *InputData) Validate(conversionsPerUser int) error {
	if in.role != Partner {
		return nil
	}
	for row := 0; row < in.numRows; row++ {
		n := maxLen(u32SliceAt(in.purchaseTimestamps, row),
			i64SliceAt(in.purchaseValues, row),
			i64SliceAt(in.purchaseValuesSquared, row))
		if n > conversionsPerUser {
			return fmt.Errorf(
				"lift: row %d has %d conversions, capacity %d",
				row, n, conversionsPerUser)
		}
	}
	return nil
}

// Padded column access. Reads beyond a column's length yield the zero
// value, realizing the fixed 0/false padding of the row capacity.

func boolAt(col []bool, i int) bool {
	if i < len(col) {
		return col[i]
	}
	return false
}

func u32At(col []uint32, i int) uint32 {
	if i < len(col) {
		return col[i]
	}
	return 0
}

func i64At(col []int64, i int) int64 {
	if i < len(col) {
		return col[i]
	}
	return 0
}

func u32SliceAt(col [][]uint32, i int) []uint32 {
	if i < len(col) {
		return col[i]
	}
	return nil
}

func i64SliceAt(col [][]int64, i int) []int64 {
	if i < len(col) {
		return col[i]
	}
	return nil
}

func u32Elem(arr []uint32, i int) uint32 {
	if i < len(arr) {
		return arr[i]
	}
	return 0
}

func i64Elem(arr []int64, i int) int64 {
	if i < len(arr) {
		return arr[i]
	}
	return 0
}
