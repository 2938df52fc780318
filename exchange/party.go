//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package exchange implements reference collaborators for the
// alignment pipeline: one party's matcher and row exchanger running
// over a protocol connection. The reference matching protocol
// exchanges the parties' compaction maps in cleartext, so each party
// learns the peer's dummy-row pattern; production deployments
// substitute MPC-backed collaborators behind the same contracts.
package exchange

import (
	"fmt"
	"io"
	"sort"

	"github.com/markkurossi/text/superscript"
	"github.com/slaxman1978/fbpcs/align"
	"github.com/slaxman1978/fbpcs/env"
	"github.com/slaxman1978/fbpcs/lift"
	"github.com/slaxman1978/fbpcs/p2p"
	"github.com/slaxman1978/fbpcs/share"
)

// Party implements one side of the reference matching and row
// exchange protocols. The publisher always sends first and the
// partner receives first, so the two sides pair up without deadlock
// over synchronous connections.
type Party struct {
	Verbose bool

	role      lift.Role
	conn      *p2p.Conn
	random    io.Reader
	myCodec   lift.Codec
	peerCodec lift.Codec
	alignment align.AlignmentMap
}

// NewParty creates the collaborator bundle for one party.
func NewParty(config *env.Config, role lift.Role, conn *p2p.Conn) (
	*Party, error) {

	publisher := lift.NewPublisherCodec()
	partner, err := lift.NewPartnerCodec(config.ConversionsPerUser,
		config.GetAttributionWindow())
	if err != nil {
		return nil, err
	}
	p := &Party{
		Verbose: config.Verbose,
		role:    role,
		conn:    conn,
		random:  config.GetRandom(),
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

// IDString returns the party ID as string.
func (p *Party) IDString() string {
	return superscript.Itoa(int(p.role))
}

// Debugf prints a debugging message if verbose output is enabled for
// this party.
func (p *Party) Debugf(format string, a ...interface{}) {
	if !p.Verbose {
		return
	}
	fmt.Printf(format, a...)
}

// Adapt implements align.Matcher. The parties exchange their
// compaction maps, derive the intersection as the rows that are
// non-padding on both sides, and assign aligned positions by the
// publisher's compacted order. Both parties compute the identical
// aligned size and positions from the same two maps.
func (p *Party) Adapt(compaction align.CompactionMap) (
	align.AlignmentMap, error) {

	p.Debugf("P%s adapt: %d rows\n", p.IDString(), len(compaction))

	peerMap, err := p.exchangeMaps(compaction)
	if err != nil {
		return nil, err
	}
	if len(peerMap) != len(compaction) {
		return nil, fmt.Errorf(
			"exchange: peer has %d rows, expected %d: datasets not aligned",
			len(peerMap), len(compaction))
	}

	var pubMap, myMap align.CompactionMap
	myMap = compaction
	if p.role == lift.Publisher {
		pubMap = compaction
	} else {
		pubMap = peerMap
	}

	var intersect []int
	for i := range compaction {
		if compaction[i] != align.Discard && peerMap[i] != align.Discard {
			intersect = append(intersect, i)
		}
	}
	sort.Slice(intersect, func(a, b int) bool {
		return pubMap[intersect[a]] < pubMap[intersect[b]]
	})

	alignment := make(align.AlignmentMap, myMap.CompactedSize())
	for i := range alignment {
		alignment[i] = align.Unmatched
	}
	for rank, orig := range intersect {
		pos := myMap[orig]
		if pos < 0 || int(pos) >= len(alignment) {
			return nil, fmt.Errorf(
				"exchange: compacted index %d out of range [0...%d[",
				pos, len(alignment))
		}
		alignment[pos] = int32(rank)
	}

	p.alignment = alignment
	p.Debugf("P%s adapt: %d aligned rows\n", p.IDString(), len(intersect))
	return alignment, nil
}

// exchangeMaps sends this party's compaction map to the peer and
// receives the peer's, publisher first. A leading role byte catches
// two parties configured with the same role.
func (p *Party) exchangeMaps(compaction align.CompactionMap) (
	align.CompactionMap, error) {

	send := func() error {
		if err := p.conn.SendByte(byte(p.role)); err != nil {
			return err
		}
		if err := p.conn.SendData(encodeMap(compaction)); err != nil {
			return err
		}
		return p.conn.Flush()
	}
	receive := func() (align.CompactionMap, error) {
		role, err := p.conn.ReceiveByte()
		if err != nil {
			return nil, err
		}
		if lift.Role(role) != p.role.Peer() {
			return nil, fmt.Errorf("exchange: peer claims role %s, "+
				"expected %s", lift.Role(role), p.role.Peer())
		}
		data, err := p.conn.ReceiveData()
		if err != nil {
			return nil, err
		}
		return decodeMap(data)
	}

	if p.role == lift.Publisher {
		if err := send(); err != nil {
			return nil, err
		}
		return receive()
	}
	peerMap, err := receive()
	if err != nil {
		return nil, err
	}
	if err := send(); err != nil {
		return nil, err
	}
	return peerMap, nil
}

// ShareRowCount implements align.Exchanger. The owner splits its
// count into two uint32 XOR shares and sends both; the peer
// recombines them. The opened count is returned to both sides.
func (p *Party) ShareRowCount(owner lift.Role, count int) (int, error) {
	if owner == p.role {
		if count < 0 || int64(count) > int64(^uint32(0)) {
			return 0, fmt.Errorf("exchange: row count %d out of range",
				count)
		}
		var buf [4]byte
		if _, err := io.ReadFull(p.random, buf[:]); err != nil {
			return 0, err
		}
		pad := uint32(buf[0])<<24 | uint32(buf[1])<<16 |
			uint32(buf[2])<<8 | uint32(buf[3])
		if err := p.conn.SendUint32(int(pad)); err != nil {
			return 0, err
		}
		if err := p.conn.SendUint32(int(uint32(count) ^ pad)); err != nil {
			return 0, err
		}
		if err := p.conn.Flush(); err != nil {
			return 0, err
		}
		p.Debugf("P%s count: own %d shared\n", p.IDString(), count)
		return count, nil
	}

	a, err := p.conn.ReceiveUint32()
	if err != nil {
		return 0, err
	}
	b, err := p.conn.ReceiveUint32()
	if err != nil {
		return 0, err
	}
	opened := int(uint32(a) ^ uint32(b))
	p.Debugf("P%s count: peer %d opened\n", p.IDString(), opened)
	return opened, nil
}

// ProcessMyData implements align.Exchanger. The caller's compacted
// rows are placed into the aligned order derived during matching and
// XOR-split: the local shares are returned as a batch and the peer
// shares are sent over the connection.
func (p *Party) ProcessMyData(rows [][]byte, outputSize int) (
	*share.StringBatch, error) {

	if p.alignment == nil {
		return nil, fmt.Errorf("exchange: no alignment: Adapt not run")
	}
	if len(rows) != len(p.alignment) {
		return nil, fmt.Errorf("exchange: %d rows for %d alignment entries",
			len(rows), len(p.alignment))
	}
	if outputSize != p.alignment.MatchedCount() {
		return nil, fmt.Errorf("exchange: output size %d, alignment has "+
			"%d matched rows", outputSize, p.alignment.MatchedCount())
	}
	width := p.myCodec.RowBytes()
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("exchange: row %d is %d bytes, "+
				"layout has %d", i, len(row), width)
		}
	}

	aligned := make([][]byte, outputSize)
	for i, pos := range p.alignment {
		if pos != align.Unmatched {
			aligned[pos] = rows[i]
		}
	}

	mine := make([][]byte, outputSize)
	sendBuf := make([]byte, 0, outputSize*width)
	for i, row := range aligned {
		mask, masked, err := share.Split(p.random, row)
		if err != nil {
			return nil, err
		}
		mine[i] = mask
		sendBuf = append(sendBuf, masked...)
	}

	if err := p.conn.SendUint32(outputSize); err != nil {
		return nil, err
	}
	if err := p.conn.SendUint32(width); err != nil {
		return nil, err
	}
	if err := p.conn.SendData(sendBuf); err != nil {
		return nil, err
	}
	if err := p.conn.Flush(); err != nil {
		return nil, err
	}
	p.Debugf("P%s sent %d own rows\n", p.IDString(), outputSize)

	return share.NewStringBatch(width, mine)
}

// ProcessPeersData implements align.Exchanger. The peer-generated
// share rows are received and the announced row width is checked
// against the caller's layout expectation: a width disagreement means
// the parties' codecs disagree and the shares would decode to
// garbage.
func (p *Party) ProcessPeersData(peerRowCount int,
	alignment align.AlignmentMap, rowBytes int) (*share.StringBatch, error) {

	count, err := p.conn.ReceiveUint32()
	if err != nil {
		return nil, err
	}
	width, err := p.conn.ReceiveUint32()
	if err != nil {
		return nil, err
	}
	if width != rowBytes {
		return nil, fmt.Errorf("exchange: peer rows are %d bytes, "+
			"expected %d", width, rowBytes)
	}
	if count > peerRowCount {
		return nil, fmt.Errorf("exchange: peer sent %d rows but has "+
			"only %d", count, peerRowCount)
	}
	data, err := p.conn.ReceiveData()
	if err != nil {
		return nil, err
	}
	if len(data) != count*width {
		return nil, fmt.Errorf("exchange: peer payload is %d bytes, "+
			"expected %d", len(data), count*width)
	}
	rows := make([][]byte, count)
	for i := 0; i < count; i++ {
		rows[i] = data[i*width : (i+1)*width]
	}
	p.Debugf("P%s received %d peer rows\n", p.IDString(), count)

	return share.NewStringBatch(width, rows)
}

func encodeMap(m []int32) []byte {
	buf := make([]byte, 4*len(m))
	for i, v := range m {
		buf[i*4+0] = byte(uint32(v) >> 24)
		buf[i*4+1] = byte(uint32(v) >> 16)
		buf[i*4+2] = byte(uint32(v) >> 8)
		buf[i*4+3] = byte(uint32(v))
	}
	return buf
}

func decodeMap(data []byte) (align.CompactionMap, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("exchange: truncated map: %d bytes",
			len(data))
	}
	m := make(align.CompactionMap, len(data)/4)
	for i := range m {
		v := uint32(data[i*4+0])<<24 | uint32(data[i*4+1])<<16 |
			uint32(data[i*4+2])<<8 | uint32(data[i*4+3])
		m[i] = int32(v)
	}
	return m, nil
}
