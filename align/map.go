//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package align implements the oblivious record alignment pipeline:
// per-party shuffle and compaction, the matching and row exchange
// collaborator contracts, the orchestrator sequencing them, and the
// extraction of typed secret-shared columns from the exchanged rows.
package align

import (
	"fmt"
	"io"

	"github.com/slaxman1978/fbpcs/prg"
)

// Discard marks a padding row in a CompactionMap.
const Discard = -1

// Unmatched marks an unmatched row in an AlignmentMap.
const Unmatched = -1

// CompactionMap maps each original row index to its compacted
// position, or Discard for padding rows. The non-discard entries form
// the dense range [0,k) for k non-padding rows, in an order
// randomized by the shuffle.
type CompactionMap []int32

// BuildCompactionMap reorders and compacts the rows in one pass: a
// uniformly random permutation assigns the compacted positions in
// permuted order, skipping padding rows, so the compacted order
// reveals nothing about the original row order.
func BuildCompactionMap(random io.Reader, dummyRows []bool) (
	CompactionMap, error) {

	perm, err := prg.Permutation(random, len(dummyRows))
	if err != nil {
		return nil, err
	}
	m := make(CompactionMap, len(dummyRows))
	var counter int32
	for i := 0; i < len(dummyRows); i++ {
		p := perm[i]
		if dummyRows[p] {
			m[p] = Discard
		} else {
			m[p] = counter
			counter++
		}
	}
	return m, nil
}

// CompactedSize returns the number of non-padding rows.
func (m CompactionMap) CompactedSize() int {
	var n int
	for _, v := range m {
		if v != Discard {
			n++
		}
	}
	return n
}

// Reverse inverts the map: the result maps each compacted position to
// its original row index. A map whose entries are not dense and
// unique is a precondition violation.
func (m CompactionMap) Reverse() ([]int32, error) {
	size := m.CompactedSize()
	reverse := make([]int32, size)
	seen := make([]bool, size)
	for i, v := range m {
		if v == Discard {
			continue
		}
		if v < 0 || int(v) >= size {
			return nil, fmt.Errorf(
				"align: compacted index %d out of range [0...%d[", v, size)
		}
		if seen[v] {
			return nil, fmt.Errorf("align: duplicate compacted index %d", v)
		}
		seen[v] = true
		reverse[v] = int32(i)
	}
	return reverse, nil
}

// AlignmentMap maps each compacted local row to its position in the
// final aligned output, or Unmatched. It is produced by the Matcher;
// the matched entries form an injective map into [0,m) where m is the
// aligned size both parties agree on.
type AlignmentMap []int32

// MatchedCount returns the number of matched entries, the local view
// of the aligned size.
func (m AlignmentMap) MatchedCount() int {
	var n int
	for _, v := range m {
		if v != Unmatched {
			n++
		}
	}
	return n
}

// Validate checks that the matched entries form an injective map into
// [0,m) for m matched entries.
func (m AlignmentMap) Validate() error {
	size := m.MatchedCount()
	seen := make([]bool, size)
	for _, v := range m {
		if v == Unmatched {
			continue
		}
		if v < 0 || int(v) >= size {
			return fmt.Errorf(
				"align: aligned position %d out of range [0...%d[", v, size)
		}
		if seen[v] {
			return fmt.Errorf("align: duplicate aligned position %d", v)
		}
		seen[v] = true
	}
	return nil
}
