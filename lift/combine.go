//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package lift

import (
	"fmt"
)

// Combine recombines the two parties' share columns into cleartext
// columns by XORing the bit patterns element-wise. Both arguments
// must come from the same run so that their shapes match. Combining
// defeats the secret sharing and is meant for tests and for runs
// where both parties agree to open the output.
func Combine(a, b *ProcessedData) (*ProcessedData, error) {
	if a.NumRows != b.NumRows {
		return nil, fmt.Errorf("lift: combining %d rows with %d rows",
			a.NumRows, b.NumRows)
	}
	if len(a.PurchaseTimestamps) != len(b.PurchaseTimestamps) {
		return nil, fmt.Errorf("lift: combining %d conversions with %d",
			len(a.PurchaseTimestamps), len(b.PurchaseTimestamps))
	}
	result := NewProcessedData(a.NumRows, len(a.PurchaseTimestamps))
	for i := 0; i < a.NumRows; i++ {
		result.BreakdownIDs[i] = a.BreakdownIDs[i] != b.BreakdownIDs[i]
		result.ControlPopulation[i] =
			a.ControlPopulation[i] != b.ControlPopulation[i]
		result.IsValidOpportunityTimestamp[i] =
			a.IsValidOpportunityTimestamp[i] !=
				b.IsValidOpportunityTimestamp[i]
		result.TestReach[i] = a.TestReach[i] != b.TestReach[i]
		result.OpportunityTimestamps[i] =
			a.OpportunityTimestamps[i] ^ b.OpportunityTimestamps[i]

		result.AnyValidPurchaseTimestamp[i] =
			a.AnyValidPurchaseTimestamp[i] != b.AnyValidPurchaseTimestamp[i]
		result.CohortGroupIDs[i] = a.CohortGroupIDs[i] ^ b.CohortGroupIDs[i]
	}
	for j := range result.PurchaseTimestamps {
		for i := 0; i < a.NumRows; i++ {
			result.PurchaseTimestamps[j][i] =
				a.PurchaseTimestamps[j][i] ^ b.PurchaseTimestamps[j][i]
			result.ThresholdTimestamps[j][i] =
				a.ThresholdTimestamps[j][i] ^ b.ThresholdTimestamps[j][i]
			result.PurchaseValues[j][i] =
				a.PurchaseValues[j][i] ^ b.PurchaseValues[j][i]
			result.PurchaseValuesSquared[j][i] =
				a.PurchaseValuesSquared[j][i] ^ b.PurchaseValuesSquared[j][i]
		}
	}
	return result, nil
}
