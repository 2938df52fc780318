//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package lift

// ProcessedData is the pipeline output: one XOR share column per
// logical field of both roles, each of length NumRows. The columns
// hold this party's shares; XORing the two's-complement bit patterns
// with the peer's columns recovers the cleartext values. Conversion-
// indexed fields hold one column per conversion slot, indexed
// [conversion][row].
type ProcessedData struct {
	NumRows int

	// Publisher fields.
	BreakdownIDs                []bool
	ControlPopulation           []bool
	IsValidOpportunityTimestamp []bool
	TestReach                   []bool
	OpportunityTimestamps       []uint32

	// Partner fields.
	AnyValidPurchaseTimestamp []bool
	CohortGroupIDs            []uint32
	PurchaseTimestamps        [][]uint32
	ThresholdTimestamps       [][]uint32
	PurchaseValues            [][]int32
	PurchaseValuesSquared     [][]int64
}

// NewProcessedData allocates share columns for numRows aligned rows
// and conversionsPerUser conversion slots.
func NewProcessedData(numRows, conversionsPerUser int) *ProcessedData {
	data := &ProcessedData{
		NumRows:                     numRows,
		BreakdownIDs:                make([]bool, numRows),
		ControlPopulation:           make([]bool, numRows),
		IsValidOpportunityTimestamp: make([]bool, numRows),
		TestReach:                   make([]bool, numRows),
		OpportunityTimestamps:       make([]uint32, numRows),
		AnyValidPurchaseTimestamp:   make([]bool, numRows),
		CohortGroupIDs:              make([]uint32, numRows),
		PurchaseTimestamps:          make([][]uint32, conversionsPerUser),
		ThresholdTimestamps:         make([][]uint32, conversionsPerUser),
		PurchaseValues:              make([][]int32, conversionsPerUser),
		PurchaseValuesSquared:       make([][]int64, conversionsPerUser),
	}
	for j := 0; j < conversionsPerUser; j++ {
		data.PurchaseTimestamps[j] = make([]uint32, numRows)
		data.ThresholdTimestamps[j] = make([]uint32, numRows)
		data.PurchaseValues[j] = make([]int32, numRows)
		data.PurchaseValuesSquared[j] = make([]int64, numRows)
	}
	return data
}

// SetPublisherRow stores the publisher fields of the share row at the
// index.
func (data *ProcessedData) SetPublisherRow(i int, row PublisherRow) {
	data.BreakdownIDs[i] = row.BreakdownID
	data.ControlPopulation[i] = row.ControlPopulation
	data.IsValidOpportunityTimestamp[i] = row.IsValidOpportunityTimestamp
	data.TestReach[i] = row.TestReach
	data.OpportunityTimestamps[i] = row.OpportunityTimestamp
}

// SetPartnerRow stores the partner fields of the share row at the
// index.
func (data *ProcessedData) SetPartnerRow(i int, row PartnerRow) {
	data.AnyValidPurchaseTimestamp[i] = row.AnyValidPurchaseTimestamp
	data.CohortGroupIDs[i] = row.CohortGroupID
	for j, conv := range row.Conversions {
		if j >= len(data.PurchaseTimestamps) {
			break
		}
		data.PurchaseTimestamps[j][i] = conv.PurchaseTimestamp
		data.ThresholdTimestamps[j][i] = conv.ThresholdTimestamp
		data.PurchaseValues[j][i] = conv.PurchaseValue
		data.PurchaseValuesSquared[j][i] = conv.PurchaseValueSquared
	}
}
