//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package align

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/slaxman1978/fbpcs/env"
	"github.com/slaxman1978/fbpcs/lift"
	"github.com/slaxman1978/fbpcs/share"
)

// Matcher derives the aligned sequence from this party's compaction
// map, cooperating with the peer's matcher. Implementations run a
// private matching protocol; the pipeline relies only on the output
// contract: the result has one entry per compacted local row, matched
// entries form an injective map into [0,m), and both parties derive
// the same aligned size m.
type Matcher interface {
	Adapt(compaction CompactionMap) (AlignmentMap, error)
}

// Exchanger secret-shares rows between the parties. Implementations
// perform the oblivious filtering and reordering; the pipeline sees
// only share batches of the agreed aligned size.
type Exchanger interface {
	// ShareRowCount shares the owner's compacted row count between
	// the parties as XOR shares and returns the opened count. The
	// count argument is the caller's value when the caller owns the
	// count and ignored otherwise.
	ShareRowCount(owner lift.Role, count int) (int, error)

	// ProcessMyData secret-shares the caller's encoded rows,
	// obliviously reordered into the final aligned order, and returns
	// the caller's share batch of outputSize rows.
	ProcessMyData(rows [][]byte, outputSize int) (*share.StringBatch, error)

	// ProcessPeersData obliviously fetches the matched subset of the
	// peer's rows, selected via the alignment map, and returns the
	// caller's share batch. rowBytes is the caller's expectation of
	// the peer's encoded row width.
	ProcessPeersData(peerRowCount int, alignment AlignmentMap,
		rowBytes int) (*share.StringBatch, error)
}

// InputProcessor runs the alignment pipeline for one party. A
// processor executes one run: it owns its maps and buffers for the
// run's duration and is not safe for concurrent use. Concurrent runs
// construct independent processors with independent randomness
// sources.
type InputProcessor struct {
	Config    *env.Config
	Role      lift.Role
	In        *lift.InputData
	Matcher   Matcher
	Exchanger Exchanger
	Timing    *Timing

	id             string
	myCodec        lift.Codec
	peerCodec      lift.Codec
	publisherCodec *lift.PublisherCodec
	partnerCodec   *lift.PartnerCodec
}

// NewInputProcessor creates an input processor for the party's role
// and dataset.
func NewInputProcessor(config *env.Config, role lift.Role,
	in *lift.InputData, matcher Matcher, exchanger Exchanger) (
	*InputProcessor, error) {

	if config.ConversionsPerUser < 0 {
		return nil, fmt.Errorf("align: negative conversions per user %d",
			config.ConversionsPerUser)
	}
	if in.Role() != role {
		return nil, fmt.Errorf("align: %s processor for %s input",
			role, in.Role())
	}
	if err := in.Validate(config.ConversionsPerUser); err != nil {
		return nil, err
	}

	publisher := lift.NewPublisherCodec()
	partner, err := lift.NewPartnerCodec(config.ConversionsPerUser,
		config.GetAttributionWindow())
	if err != nil {
		return nil, err
	}

	p := &InputProcessor{
		Config:         config,
		Role:           role,
		In:             in,
		Matcher:        matcher,
		Exchanger:      exchanger,
		Timing:         NewTiming(),
		id:             uuid.New().String(),
		publisherCodec: publisher,
		partnerCodec:   partner,
	}
	if role == lift.Publisher {
		p.myCodec = publisher
		p.peerCodec = partner
	} else {
		p.myCodec = partner
		p.peerCodec = publisher
	}
	return p, nil
}

// ID returns the processor's run identifier.
func (p *InputProcessor) ID() string {
	return p.id
}

// Debugf prints a progress message if verbose output is enabled.
func (p *InputProcessor) Debugf(format string, a ...interface{}) {
	if !p.Config.Verbose {
		return
	}
	fmt.Printf("["+p.id[:8]+" "+p.Role.String()+"] "+format, a...)
}

// Run executes the alignment pipeline and returns this party's share
// columns of the aligned rows. A consistency failure or a
// collaborator error aborts the run; no partial output is returned.
func (p *InputProcessor) Run() (*lift.ProcessedData, error) {
	numRows := p.In.NumRows()
	p.Debugf("aligning %d rows\n", numRows)

	compaction, err := BuildCompactionMap(p.Config.GetRandom(),
		p.In.DummyRows())
	if err != nil {
		return nil, err
	}
	p.Timing.Sample("Shuffle", []string{fmt.Sprintf("%d rows", numRows)})

	alignment, err := p.Matcher.Adapt(compaction)
	if err != nil {
		return nil, err
	}
	if len(alignment) != compaction.CompactedSize() {
		return nil, fmt.Errorf(
			"align: alignment has %d entries for %d compacted rows",
			len(alignment), compaction.CompactedSize())
	}
	if err := alignment.Validate(); err != nil {
		return nil, err
	}
	expectedAlignedSize := alignment.MatchedCount()
	p.Timing.Sample("Match", []string{
		fmt.Sprintf("%d aligned", expectedAlignedSize),
	})
	p.Debugf("compacted %d rows, aligned size %d\n",
		compaction.CompactedSize(), expectedAlignedSize)

	rows, err := p.encodeCompacted(compaction)
	if err != nil {
		return nil, err
	}
	p.Timing.Sample("Encode", []string{
		FileSize(uint64(len(rows)) * uint64(p.myCodec.RowBytes())).String(),
	})

	myCount := len(rows)
	var peerCount int
	if p.Role == lift.Publisher {
		if _, err := p.Exchanger.ShareRowCount(lift.Publisher,
			myCount); err != nil {
			return nil, err
		}
		peerCount, err = p.Exchanger.ShareRowCount(lift.Partner, 0)
		if err != nil {
			return nil, err
		}
	} else {
		peerCount, err = p.Exchanger.ShareRowCount(lift.Publisher, 0)
		if err != nil {
			return nil, err
		}
		if _, err := p.Exchanger.ShareRowCount(lift.Partner,
			myCount); err != nil {
			return nil, err
		}
	}
	p.Timing.Sample("Counts", nil)
	p.Debugf("row counts: mine %d, peer %d\n", myCount, peerCount)

	// The publisher processes its own data first; the partner
	// processes the peer's first. The fixed order keeps the two
	// parties' exchanges paired up.
	var myBatch, peerBatch *share.StringBatch
	if p.Role == lift.Publisher {
		myBatch, err = p.Exchanger.ProcessMyData(rows, expectedAlignedSize)
		if err != nil {
			return nil, err
		}
		peerBatch, err = p.Exchanger.ProcessPeersData(peerCount, alignment,
			p.peerCodec.RowBytes())
		if err != nil {
			return nil, err
		}
	} else {
		peerBatch, err = p.Exchanger.ProcessPeersData(peerCount, alignment,
			p.peerCodec.RowBytes())
		if err != nil {
			return nil, err
		}
		myBatch, err = p.Exchanger.ProcessMyData(rows, expectedAlignedSize)
		if err != nil {
			return nil, err
		}
	}
	p.Timing.Sample("Exchange", nil)

	var publisherBatch, partnerBatch *share.StringBatch
	if p.Role == lift.Publisher {
		publisherBatch = myBatch
		partnerBatch = peerBatch
	} else {
		publisherBatch = peerBatch
		partnerBatch = myBatch
	}
	if publisherBatch.Size() != expectedAlignedSize {
		return nil, fmt.Errorf("align: %s rows do not match up expected "+
			"intersection size: expected %d but got %d rows",
			lift.Publisher, expectedAlignedSize, publisherBatch.Size())
	}
	if partnerBatch.Size() != expectedAlignedSize {
		return nil, fmt.Errorf("align: %s rows do not match up expected "+
			"intersection size: expected %d but got %d rows",
			lift.Partner, expectedAlignedSize, partnerBatch.Size())
	}

	result, err := p.extract(publisherBatch, partnerBatch,
		expectedAlignedSize)
	if err != nil {
		return nil, err
	}
	p.Timing.Sample("Extract", []string{
		fmt.Sprintf("%d rows", expectedAlignedSize),
	})
	p.Debugf("extracted %d aligned rows\n", expectedAlignedSize)

	return result, nil
}

// encodeCompacted serializes the local rows in compacted order by
// inverting the compaction map.
func (p *InputProcessor) encodeCompacted(compaction CompactionMap) (
	[][]byte, error) {

	reverse, err := compaction.Reverse()
	if err != nil {
		return nil, err
	}
	rows := make([][]byte, len(reverse))
	for pos, orig := range reverse {
		buf := make([]byte, p.myCodec.RowBytes())
		if err := p.myCodec.EncodeInput(p.In, int(orig), buf); err != nil {
			return nil, err
		}
		rows[pos] = buf
	}
	return rows, nil
}
