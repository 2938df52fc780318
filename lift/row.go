//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package lift

// PublisherRow is one publisher-side opportunity row with its derived
// flags.
type PublisherRow struct {
	BreakdownID                 bool
	ControlPopulation           bool
	IsValidOpportunityTimestamp bool
	TestReach                   bool
	OpportunityTimestamp        uint32
}

// NewPublisherRow computes the derived publisher flags from the raw
// opportunity attributes. An opportunity is valid when its timestamp
// is set and the row belongs to the control or test population. Test
// reach additionally requires recorded impressions.
func NewPublisherRow(breakdownID, control, test bool, impressions int64,
	ts uint32) PublisherRow {

	return PublisherRow{
		BreakdownID:                 breakdownID,
		ControlPopulation:           control,
		IsValidOpportunityTimestamp: ts > 0 && (control || test),
		TestReach:                   test && impressions > 0,
		OpportunityTimestamp:        ts,
	}
}

// PartnerConversionRow is one conversion event attached to a partner
// row.
type PartnerConversionRow struct {
	PurchaseTimestamp    uint32
	ThresholdTimestamp   uint32
	PurchaseValue        int32
	PurchaseValueSquared int64
}

// NewPartnerConversionRow computes the threshold timestamp of a
// conversion: the purchase timestamp plus the attribution window when
// the timestamp is set, and zero otherwise. The addition wraps at the
// uint32 boundary for timestamps near the end of the range.
func NewPartnerConversionRow(ts, window uint32, value int32,
	valueSquared int64) PartnerConversionRow {

	var threshold uint32
	if ts > 0 {
		threshold = ts + window
	}
	return PartnerConversionRow{
		PurchaseTimestamp:    ts,
		ThresholdTimestamp:   threshold,
		PurchaseValue:        value,
		PurchaseValueSquared: valueSquared,
	}
}

// PartnerRow is one partner-side row with its conversion events.
type PartnerRow struct {
	AnyValidPurchaseTimestamp bool
	CohortGroupID             uint32
	Conversions               []PartnerConversionRow
}

// NewPartnerRow computes the derived any-valid flag: the logical OR
// over the conversions' purchase timestamps being set.
func NewPartnerRow(cohort uint32, conversions []PartnerConversionRow) PartnerRow {
	var anyValid bool
	for _, c := range conversions {
		if c.PurchaseTimestamp > 0 {
			anyValid = true
		}
	}
	return PartnerRow{
		AnyValidPurchaseTimestamp: anyValid,
		CohortGroupID:             cohort,
		Conversions:               conversions,
	}
}
