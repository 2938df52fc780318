//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package exchange

import (
	"fmt"
	"strings"
	"testing"

	"github.com/slaxman1978/fbpcs/align"
	"github.com/slaxman1978/fbpcs/env"
	"github.com/slaxman1978/fbpcs/lift"
	"github.com/slaxman1978/fbpcs/p2p"
	"github.com/slaxman1978/fbpcs/prg"
)

func testConfig(conversions int, seed byte) (*env.Config, error) {
	key := make([]byte, prg.SeedSize)
	key[0] = seed
	random, err := prg.NewPRG(key)
	if err != nil {
		return nil, err
	}
	return &env.Config{
		Rand:               random,
		ConversionsPerUser: conversions,
		AttributionWindow:  10,
	}, nil
}

func checkAlignment(t *testing.T, name string, got, want align.AlignmentMap) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: alignment has %d entries, expected %d",
			name, len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s: entry %d is %d, expected %d",
				name, i, got[i], want[i])
		}
	}
}

func TestMapCodec(t *testing.T) {
	m := align.CompactionMap{2, align.Discard, 0, 1}
	decoded, err := decodeMap(encodeMap(m))
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != len(m) {
		t.Fatalf("decoded %d entries, expected %d", len(decoded), len(m))
	}
	for i := range m {
		if decoded[i] != m[i] {
			t.Errorf("entry %d is %d, expected %d", i, decoded[i], m[i])
		}
	}
	if _, err := decodeMap(make([]byte, 7)); err == nil {
		t.Error("truncated map accepted")
	}
}

func TestPartyAlignment(t *testing.T) {
	pubMap := align.CompactionMap{2, align.Discard, 0, 3, 1}
	partMap := align.CompactionMap{0, 3, 1, align.Discard, 2}

	pipe, otherPipe := p2p.Pipe()
	var partAlignment align.AlignmentMap
	done := make(chan error)

	go func() {
		config, err := testConfig(0, 1)
		if err != nil {
			done <- err
			return
		}
		party, err := NewParty(config, lift.Partner, pipe)
		if err != nil {
			done <- err
			return
		}
		alignment, err := party.Adapt(partMap)
		if err != nil {
			done <- err
			return
		}
		partAlignment = alignment
		done <- nil
	}()

	config, err := testConfig(0, 2)
	if err != nil {
		t.Fatal(err)
	}
	party, err := NewParty(config, lift.Publisher, otherPipe)
	if err != nil {
		t.Fatal(err)
	}
	pubAlignment, err := party.Adapt(pubMap)
	if err != nil {
		t.Fatalf("publisher: %s", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("partner: %s", err)
	}

	checkAlignment(t, "publisher", pubAlignment,
		align.AlignmentMap{0, 1, 2, align.Unmatched})
	checkAlignment(t, "partner", partAlignment,
		align.AlignmentMap{2, 0, 1, align.Unmatched})
	if pubAlignment.MatchedCount() != 3 {
		t.Errorf("publisher matched %d rows, expected 3",
			pubAlignment.MatchedCount())
	}
	if partAlignment.MatchedCount() != 3 {
		t.Errorf("partner matched %d rows, expected 3",
			partAlignment.MatchedCount())
	}

	// ProcessMyData argument validation after a completed match.
	rows := make([][]byte, 4)
	for i := range rows {
		rows[i] = make([]byte, 5)
	}
	if _, err := party.ProcessMyData(rows, 2); err == nil {
		t.Error("output size mismatch accepted")
	}
	if _, err := party.ProcessMyData(rows[:2], 3); err == nil {
		t.Error("row count mismatch accepted")
	}
}

func TestPartyCount(t *testing.T) {
	pipe, otherPipe := p2p.Pipe()
	done := make(chan error)

	go func() {
		config, err := testConfig(0, 3)
		if err != nil {
			done <- err
			return
		}
		party, err := NewParty(config, lift.Partner, pipe)
		if err != nil {
			done <- err
			return
		}
		count, err := party.ShareRowCount(lift.Publisher, 0)
		if err != nil {
			done <- err
			return
		}
		if count != 12345 {
			done <- fmt.Errorf("opened %d, expected 12345", count)
			return
		}
		if _, err := party.ShareRowCount(lift.Partner, 77); err != nil {
			done <- err
			return
		}
		done <- nil
	}()

	config, err := testConfig(0, 4)
	if err != nil {
		t.Fatal(err)
	}
	party, err := NewParty(config, lift.Publisher, otherPipe)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := party.ShareRowCount(lift.Publisher, 12345); err != nil {
		t.Fatalf("publisher: %s", err)
	}
	count, err := party.ShareRowCount(lift.Partner, 0)
	if err != nil {
		t.Fatalf("publisher: %s", err)
	}
	if count != 77 {
		t.Errorf("opened %d, expected 77", count)
	}
	if err := <-done; err != nil {
		t.Fatalf("partner: %s", err)
	}

	if _, err := party.ShareRowCount(lift.Publisher, -1); err == nil {
		t.Error("negative count accepted")
	}
}

func TestPartyRoleMismatch(t *testing.T) {
	pipe, otherPipe := p2p.Pipe()
	done := make(chan error)

	go func() {
		config, err := testConfig(0, 5)
		if err != nil {
			done <- err
			return
		}
		party, err := NewParty(config, lift.Publisher, pipe)
		if err != nil {
			done <- err
			return
		}
		if _, err := party.Adapt(align.CompactionMap{0, 1}); err == nil {
			done <- fmt.Errorf("duplicate publisher accepted")
			return
		}
		done <- nil
	}()

	config, err := testConfig(0, 6)
	if err != nil {
		t.Fatal(err)
	}
	party, err := NewParty(config, lift.Publisher, otherPipe)
	if err != nil {
		t.Fatal(err)
	}
	_, err = party.Adapt(align.CompactionMap{1, 0})
	if err == nil {
		t.Fatal("duplicate publisher accepted")
	}
	if !strings.Contains(err.Error(), "role") {
		t.Errorf("unexpected error: %s", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("peer: %s", err)
	}
}

func TestPartyRowCountMismatch(t *testing.T) {
	pipe, otherPipe := p2p.Pipe()
	done := make(chan error)

	go func() {
		config, err := testConfig(0, 7)
		if err != nil {
			done <- err
			return
		}
		party, err := NewParty(config, lift.Partner, pipe)
		if err != nil {
			done <- err
			return
		}
		if _, err := party.Adapt(align.CompactionMap{0, 1, 2}); err == nil {
			done <- fmt.Errorf("dataset size mismatch accepted")
			return
		}
		done <- nil
	}()

	config, err := testConfig(0, 8)
	if err != nil {
		t.Fatal(err)
	}
	party, err := NewParty(config, lift.Publisher, otherPipe)
	if err != nil {
		t.Fatal(err)
	}
	_, err = party.Adapt(align.CompactionMap{0, 1})
	if err == nil {
		t.Fatal("dataset size mismatch accepted")
	}
	if !strings.Contains(err.Error(), "not aligned") {
		t.Errorf("unexpected error: %s", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("partner: %s", err)
	}
}

func TestPartyProcessBeforeAdapt(t *testing.T) {
	pipe, _ := p2p.Pipe()
	config, err := testConfig(0, 9)
	if err != nil {
		t.Fatal(err)
	}
	party, err := NewParty(config, lift.Publisher, pipe)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := party.ProcessMyData(nil, 0); err == nil {
		t.Error("exchange before match accepted")
	}
}

func TestPartyPeerRowChecks(t *testing.T) {
	// Announced row width disagrees with the local layout.
	pipe, otherPipe := p2p.Pipe()
	done := make(chan error)
	go func() {
		conn := pipe
		if err := conn.SendUint32(2); err != nil {
			done <- err
			return
		}
		if err := conn.SendUint32(7); err != nil {
			done <- err
			return
		}
		if err := conn.SendData(make([]byte, 14)); err != nil {
			done <- err
			return
		}
		done <- conn.Flush()
	}()
	config, err := testConfig(0, 10)
	if err != nil {
		t.Fatal(err)
	}
	party, err := NewParty(config, lift.Partner, otherPipe)
	if err != nil {
		t.Fatal(err)
	}
	alignment := align.AlignmentMap{0, 1, align.Unmatched}
	_, err = party.ProcessPeersData(3, alignment, 5)
	if err == nil {
		t.Error("row width mismatch accepted")
	}
	if err := <-done; err != nil {
		t.Fatalf("sender: %s", err)
	}

	// Peer announces more rows than it shared during counting.
	pipe, otherPipe = p2p.Pipe()
	go func() {
		conn := pipe
		if err := conn.SendUint32(5); err != nil {
			done <- err
			return
		}
		if err := conn.SendUint32(5); err != nil {
			done <- err
			return
		}
		if err := conn.SendData(make([]byte, 25)); err != nil {
			done <- err
			return
		}
		done <- conn.Flush()
	}()
	party, err = NewParty(config, lift.Partner, otherPipe)
	if err != nil {
		t.Fatal(err)
	}
	_, err = party.ProcessPeersData(2, alignment, 5)
	if err == nil {
		t.Error("inflated peer row count accepted")
	}
	if err := <-done; err != nil {
		t.Fatalf("sender: %s", err)
	}
}

func e2ePublisherInput() (*lift.InputData, error) {
	return lift.NewPublisherInput(4, []bool{false, true, false, false},
		lift.PublisherColumns{
			BreakdownIDs:          []bool{false, false, false, true},
			ControlPopulation:     []bool{false, false, true, true},
			TestPopulation:        []bool{true, false, false, false},
			NumImpressions:        []int64{5, 0, 2, 0},
			OpportunityTimestamps: []uint32{100, 0, 90, 200},
		})
}

func e2ePartnerInput() (*lift.InputData, error) {
	return lift.NewPartnerInput(4, []bool{false, false, true, false},
		lift.PartnerColumns{
			CohortGroupIDs: []uint32{7, 1, 0, 9},
			PurchaseTimestamps: [][]uint32{
				{50}, {20, 30}, nil, {200},
			},
			PurchaseValues: [][]int64{
				{3}, {1, 2}, nil, {-4},
			},
			PurchaseValuesSquared: [][]int64{
				{9}, {1, 4}, nil, {16},
			},
		})
}

// TestPartyEndToEnd runs the full two-party pipeline over an
// in-memory connection pair and recombines both parties' share
// columns into cleartext. Rows 0 and 3 are real on both sides; row 1
// is padding for the publisher and row 2 for the partner.
func TestPartyEndToEnd(t *testing.T) {
	var partnerData *lift.ProcessedData

	pipe, otherPipe := p2p.Pipe()
	done := make(chan error)

	go func() {
		in, err := e2ePartnerInput()
		if err != nil {
			done <- err
			return
		}
		config, err := testConfig(2, 11)
		if err != nil {
			done <- err
			return
		}
		party, err := NewParty(config, lift.Partner, pipe)
		if err != nil {
			done <- err
			return
		}
		proc, err := align.NewInputProcessor(config, lift.Partner, in,
			party, party)
		if err != nil {
			done <- err
			return
		}
		data, err := proc.Run()
		if err != nil {
			done <- err
			return
		}
		partnerData = data
		done <- nil
	}()

	in, err := e2ePublisherInput()
	if err != nil {
		t.Fatal(err)
	}
	config, err := testConfig(2, 12)
	if err != nil {
		t.Fatal(err)
	}
	party, err := NewParty(config, lift.Publisher, otherPipe)
	if err != nil {
		t.Fatal(err)
	}
	proc, err := align.NewInputProcessor(config, lift.Publisher, in,
		party, party)
	if err != nil {
		t.Fatal(err)
	}
	publisherData, err := proc.Run()
	if err != nil {
		t.Fatalf("publisher: %s", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("partner: %s", err)
	}

	revealed, err := lift.Combine(publisherData, partnerData)
	if err != nil {
		t.Fatal(err)
	}
	if revealed.NumRows != 2 {
		t.Fatalf("aligned %d rows, expected 2", revealed.NumRows)
	}

	type row struct {
		breakdown, control, valid, reach bool
		cohort                           uint32
		anyValid                         bool
		convTs, convThreshold            uint32
		convValue                        int32
		convSq                           int64
	}
	expected := map[uint32]row{
		100: {false, false, true, true, 7, true, 50, 60, 3, 9},
		200: {true, true, true, false, 9, true, 200, 210, -4, 16},
	}
	seen := make(map[uint32]bool)
	for i := 0; i < revealed.NumRows; i++ {
		ts := revealed.OpportunityTimestamps[i]
		want, ok := expected[ts]
		if !ok {
			t.Fatalf("row %d: unexpected opportunity timestamp %d", i, ts)
		}
		if seen[ts] {
			t.Fatalf("row %d: timestamp %d aligned twice", i, ts)
		}
		seen[ts] = true

		if revealed.BreakdownIDs[i] != want.breakdown {
			t.Errorf("row %d: breakdown %v", i, revealed.BreakdownIDs[i])
		}
		if revealed.ControlPopulation[i] != want.control {
			t.Errorf("row %d: control %v", i, revealed.ControlPopulation[i])
		}
		if revealed.IsValidOpportunityTimestamp[i] != want.valid {
			t.Errorf("row %d: valid %v", i,
				revealed.IsValidOpportunityTimestamp[i])
		}
		if revealed.TestReach[i] != want.reach {
			t.Errorf("row %d: reach %v", i, revealed.TestReach[i])
		}
		if revealed.AnyValidPurchaseTimestamp[i] != want.anyValid {
			t.Errorf("row %d: any valid %v", i,
				revealed.AnyValidPurchaseTimestamp[i])
		}
		if revealed.CohortGroupIDs[i] != want.cohort {
			t.Errorf("row %d: cohort %d, expected %d", i,
				revealed.CohortGroupIDs[i], want.cohort)
		}
		if revealed.PurchaseTimestamps[0][i] != want.convTs {
			t.Errorf("row %d: purchase ts %d, expected %d", i,
				revealed.PurchaseTimestamps[0][i], want.convTs)
		}
		if revealed.ThresholdTimestamps[0][i] != want.convThreshold {
			t.Errorf("row %d: threshold %d, expected %d", i,
				revealed.ThresholdTimestamps[0][i], want.convThreshold)
		}
		if revealed.PurchaseValues[0][i] != want.convValue {
			t.Errorf("row %d: value %d, expected %d", i,
				revealed.PurchaseValues[0][i], want.convValue)
		}
		if revealed.PurchaseValuesSquared[0][i] != want.convSq {
			t.Errorf("row %d: value squared %d, expected %d", i,
				revealed.PurchaseValuesSquared[0][i], want.convSq)
		}

		// The second conversion slot is zero padding on both rows.
		if revealed.PurchaseTimestamps[1][i] != 0 ||
			revealed.ThresholdTimestamps[1][i] != 0 ||
			revealed.PurchaseValues[1][i] != 0 ||
			revealed.PurchaseValuesSquared[1][i] != 0 {
			t.Errorf("row %d: padding conversion not zero", i)
		}
	}
	for ts := range expected {
		if !seen[ts] {
			t.Errorf("timestamp %d not aligned", ts)
		}
	}
}
