//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package align

import (
	"errors"
	"strings"
	"testing"

	"github.com/slaxman1978/fbpcs/env"
	"github.com/slaxman1978/fbpcs/lift"
	"github.com/slaxman1978/fbpcs/share"
)

type testMatcher struct {
	adapt func(CompactionMap) (AlignmentMap, error)
}

func (m *testMatcher) Adapt(c CompactionMap) (AlignmentMap, error) {
	return m.adapt(c)
}

type testExchanger struct {
	shareRowCount func(lift.Role, int) (int, error)
	processMine   func([][]byte, int) (*share.StringBatch, error)
	processPeers  func(int, AlignmentMap, int) (*share.StringBatch, error)
}

func (e *testExchanger) ShareRowCount(owner lift.Role, count int) (int, error) {
	return e.shareRowCount(owner, count)
}

func (e *testExchanger) ProcessMyData(rows [][]byte, outputSize int) (
	*share.StringBatch, error) {
	return e.processMine(rows, outputSize)
}

func (e *testExchanger) ProcessPeersData(peerRowCount int,
	alignment AlignmentMap, rowBytes int) (*share.StringBatch, error) {
	return e.processPeers(peerRowCount, alignment, rowBytes)
}

// fullMatch matches every compacted row in compacted order.
func fullMatch(c CompactionMap) (AlignmentMap, error) {
	m := make(AlignmentMap, c.CompactedSize())
	for i := range m {
		m[i] = int32(i)
	}
	return m, nil
}

// passthroughMine reorders the caller's rows into aligned order and
// hands them back as the caller's share batch.
func passthroughMine(alignment *AlignmentMap) func([][]byte, int) (
	*share.StringBatch, error) {

	return func(rows [][]byte, outputSize int) (*share.StringBatch, error) {
		var width int
		if len(rows) > 0 {
			width = len(rows[0])
		}
		aligned := make([][]byte, outputSize)
		for i := range aligned {
			aligned[i] = make([]byte, width)
		}
		for i, pos := range *alignment {
			if pos != Unmatched {
				aligned[pos] = rows[i]
			}
		}
		return share.NewStringBatch(width, aligned)
	}
}

// zeroPeers fabricates an all-zero share batch of the matched size.
func zeroPeers(peerRowCount int, alignment AlignmentMap, rowBytes int) (
	*share.StringBatch, error) {

	rows := make([][]byte, alignment.MatchedCount())
	for i := range rows {
		rows[i] = make([]byte, rowBytes)
	}
	return share.NewStringBatch(rowBytes, rows)
}

func scenarioPublisherInput(t *testing.T, dummy []bool) *lift.InputData {
	in, err := lift.NewPublisherInput(len(dummy), dummy, lift.PublisherColumns{
		BreakdownIDs:          []bool{false, true, false},
		ControlPopulation:     []bool{true, false, true},
		TestPopulation:        []bool{false, true, false},
		NumImpressions:        []int64{0, 5, 0},
		OpportunityTimestamps: []uint32{100, 200, 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	return in
}

func TestProcessorPublisherRun(t *testing.T) {
	in := scenarioPublisherInput(t, []bool{false, false, false})
	config := &env.Config{
		Rand: testRand(t, 5),
	}

	var compaction CompactionMap
	var alignment AlignmentMap
	matcher := &testMatcher{
		adapt: func(c CompactionMap) (AlignmentMap, error) {
			compaction = c
			m, err := fullMatch(c)
			alignment = m
			return m, err
		},
	}
	exchanger := &testExchanger{
		shareRowCount: func(owner lift.Role, count int) (int, error) {
			if owner == lift.Publisher {
				return count, nil
			}
			return 7, nil
		},
		processMine:  passthroughMine(&alignment),
		processPeers: zeroPeers,
	}

	p, err := NewInputProcessor(config, lift.Publisher, in, matcher,
		exchanger)
	if err != nil {
		t.Fatal(err)
	}
	if p.ID() == "" {
		t.Errorf("empty run ID")
	}
	result, err := p.Run()
	if err != nil {
		t.Fatal(err)
	}
	if result.NumRows != 3 {
		t.Fatalf("NumRows: got %d, expected 3", result.NumRows)
	}

	// The exchanger stub passes shares through unmasked, so the
	// publisher columns must equal the cleartext values in compacted
	// order.
	reverse, err := compaction.Reverse()
	if err != nil {
		t.Fatal(err)
	}
	expectedValid := []bool{true, true, false}
	expectedReach := []bool{false, true, false}
	expectedTs := []uint32{100, 200, 0}
	for pos, orig := range reverse {
		if result.OpportunityTimestamps[pos] != expectedTs[orig] {
			t.Errorf("row %d: timestamp %d, expected %d",
				pos, result.OpportunityTimestamps[pos], expectedTs[orig])
		}
		if result.IsValidOpportunityTimestamp[pos] != expectedValid[orig] {
			t.Errorf("row %d: isValidOpportunityTimestamp %v",
				pos, result.IsValidOpportunityTimestamp[pos])
		}
		if result.TestReach[pos] != expectedReach[orig] {
			t.Errorf("row %d: testReach %v", pos, result.TestReach[pos])
		}
	}

	// The fabricated partner batch is all zeros.
	for i := 0; i < result.NumRows; i++ {
		if result.AnyValidPurchaseTimestamp[i] ||
			result.CohortGroupIDs[i] != 0 {
			t.Errorf("row %d: partner fields not zero", i)
		}
	}
}

func TestProcessorPartnerRun(t *testing.T) {
	in, err := lift.NewPartnerInput(3, []bool{false, true, false},
		lift.PartnerColumns{
			CohortGroupIDs: []uint32{10, 11, 12},
			PurchaseTimestamps: [][]uint32{
				{0, 50},
				{90},
				{70},
			},
			PurchaseValues: [][]int64{
				{0, 5},
				{2},
				{3},
			},
			PurchaseValuesSquared: [][]int64{
				{0, 25},
				{4},
				{9},
			},
		})
	if err != nil {
		t.Fatal(err)
	}
	config := &env.Config{
		Rand:               testRand(t, 6),
		ConversionsPerUser: 2,
		AttributionWindow:  10,
	}

	var compaction CompactionMap
	var alignment AlignmentMap
	matcher := &testMatcher{
		adapt: func(c CompactionMap) (AlignmentMap, error) {
			compaction = c
			m, err := fullMatch(c)
			alignment = m
			return m, err
		},
	}
	exchanger := &testExchanger{
		shareRowCount: func(owner lift.Role, count int) (int, error) {
			if owner == lift.Partner {
				return count, nil
			}
			return 4, nil
		},
		processMine:  passthroughMine(&alignment),
		processPeers: zeroPeers,
	}

	p, err := NewInputProcessor(config, lift.Partner, in, matcher, exchanger)
	if err != nil {
		t.Fatal(err)
	}
	result, err := p.Run()
	if err != nil {
		t.Fatal(err)
	}
	if result.NumRows != 2 {
		t.Fatalf("NumRows: got %d, expected 2", result.NumRows)
	}

	// Row 1 is a dummy; rows 0 and 2 survive compaction. Threshold
	// timestamps derive from the attribution window.
	type expect struct {
		cohort     uint32
		anyValid   bool
		ts         [2]uint32
		thresholds [2]uint32
	}
	expected := map[int32]expect{
		0: {10, true, [2]uint32{0, 50}, [2]uint32{0, 60}},
		2: {12, true, [2]uint32{70, 0}, [2]uint32{80, 0}},
	}
	reverse, err := compaction.Reverse()
	if err != nil {
		t.Fatal(err)
	}
	for pos, orig := range reverse {
		e, ok := expected[orig]
		if !ok {
			t.Fatalf("row %d: unexpected original row %d", pos, orig)
		}
		if result.CohortGroupIDs[pos] != e.cohort {
			t.Errorf("row %d: cohort %d, expected %d",
				pos, result.CohortGroupIDs[pos], e.cohort)
		}
		if result.AnyValidPurchaseTimestamp[pos] != e.anyValid {
			t.Errorf("row %d: anyValidPurchaseTimestamp %v",
				pos, result.AnyValidPurchaseTimestamp[pos])
		}
		for j := 0; j < 2; j++ {
			if result.PurchaseTimestamps[j][pos] != e.ts[j] {
				t.Errorf("row %d conversion %d: timestamp %d, expected %d",
					pos, j, result.PurchaseTimestamps[j][pos], e.ts[j])
			}
			if result.ThresholdTimestamps[j][pos] != e.thresholds[j] {
				t.Errorf("row %d conversion %d: threshold %d, expected %d",
					pos, j, result.ThresholdTimestamps[j][pos],
					e.thresholds[j])
			}
		}
	}
}

func TestProcessorSizeMismatch(t *testing.T) {
	in := scenarioPublisherInput(t, []bool{false, false, false})
	config := &env.Config{
		Rand: testRand(t, 7),
	}

	var alignment AlignmentMap
	matcher := &testMatcher{
		adapt: func(c CompactionMap) (AlignmentMap, error) {
			m, err := fullMatch(c)
			alignment = m
			return m, err
		},
	}

	// The exchanger returns one row fewer than the expected aligned
	// size for the caller's own data.
	exchanger := &testExchanger{
		shareRowCount: func(owner lift.Role, count int) (int, error) {
			return count, nil
		},
		processMine: func(rows [][]byte, outputSize int) (
			*share.StringBatch, error) {

			short := make([][]byte, outputSize-1)
			for i := range short {
				short[i] = make([]byte, len(rows[0]))
			}
			return share.NewStringBatch(len(rows[0]), short)
		},
		processPeers: zeroPeers,
	}

	p, err := NewInputProcessor(config, lift.Publisher, in, matcher,
		exchanger)
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Run()
	if err == nil {
		t.Fatal("undersized publisher batch accepted")
	}
	msg := err.Error()
	if !strings.Contains(msg, "publisher") ||
		!strings.Contains(msg, "expected 3") ||
		!strings.Contains(msg, "got 2") {
		t.Errorf("mismatch message lacks details: %v", err)
	}

	// The same defect in the peer direction names the partner.
	exchanger.processMine = passthroughMine(&alignment)
	exchanger.processPeers = func(peerRowCount int, alignment AlignmentMap,
		rowBytes int) (*share.StringBatch, error) {

		rows := make([][]byte, alignment.MatchedCount()-1)
		for i := range rows {
			rows[i] = make([]byte, rowBytes)
		}
		return share.NewStringBatch(rowBytes, rows)
	}
	p, err = NewInputProcessor(config, lift.Publisher, in, matcher,
		exchanger)
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Run()
	if err == nil {
		t.Fatal("undersized partner batch accepted")
	}
	msg = err.Error()
	if !strings.Contains(msg, "partner") ||
		!strings.Contains(msg, "expected 3") ||
		!strings.Contains(msg, "got 2") {
		t.Errorf("mismatch message lacks details: %v", err)
	}
}

func TestProcessorCollaboratorErrors(t *testing.T) {
	in := scenarioPublisherInput(t, []bool{false, false, false})
	config := &env.Config{
		Rand: testRand(t, 8),
	}

	matchErr := errors.New("matching failed")
	matcher := &testMatcher{
		adapt: func(c CompactionMap) (AlignmentMap, error) {
			return nil, matchErr
		},
	}
	exchanger := &testExchanger{}

	p, err := NewInputProcessor(config, lift.Publisher, in, matcher,
		exchanger)
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Run()
	if !errors.Is(err, matchErr) {
		t.Errorf("matcher error not propagated: %v", err)
	}

	// A malformed alignment map is rejected before any exchange.
	matcher.adapt = func(c CompactionMap) (AlignmentMap, error) {
		return AlignmentMap{0}, nil
	}
	_, err = p.Run()
	if err == nil {
		t.Errorf("alignment of wrong length accepted")
	}

	matcher.adapt = func(c CompactionMap) (AlignmentMap, error) {
		return AlignmentMap{0, 0, 0}, nil
	}
	_, err = p.Run()
	if err == nil {
		t.Errorf("alignment with duplicate positions accepted")
	}
}

func TestProcessorPreconditions(t *testing.T) {
	in := scenarioPublisherInput(t, []bool{false, false, false})
	config := &env.Config{}

	matcher := &testMatcher{}
	exchanger := &testExchanger{}

	_, err := NewInputProcessor(config, lift.Partner, in, matcher, exchanger)
	if err == nil {
		t.Errorf("partner processor accepted publisher input")
	}

	config.ConversionsPerUser = -1
	_, err = NewInputProcessor(config, lift.Publisher, in, matcher,
		exchanger)
	if err == nil {
		t.Errorf("negative conversions per user accepted")
	}

	partnerIn, err := lift.NewPartnerInput(1, nil, lift.PartnerColumns{
		PurchaseTimestamps: [][]uint32{{1, 2, 3}},
	})
	if err != nil {
		t.Fatal(err)
	}
	config.ConversionsPerUser = 2
	_, err = NewInputProcessor(config, lift.Partner, partnerIn, matcher,
		exchanger)
	if err == nil {
		t.Errorf("oversized conversion arrays accepted")
	}
}
