//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package pid implements the private identity match that produces the
// row-aligned union consumed by the alignment pipeline. The parties
// run a Diffie-Hellman double-masking protocol over the P-256 group:
// each party hashes its keys to group elements, masks them with a
// per-run secret scalar, and the peer masks them again, so equal keys
// map to equal double-masked points while single-masked values reveal
// nothing. The canonical union order is the lexicographic order of
// the double-masked point encodings, which both parties compute
// identically. The protocol is semi-honest and reveals the match
// pattern and both set sizes to both parties.
package pid

import (
	"fmt"
	"sort"

	circl "github.com/cloudflare/circl/group"
	"github.com/slaxman1978/fbpcs/env"
	"github.com/slaxman1978/fbpcs/lift"
	"github.com/slaxman1978/fbpcs/p2p"
)

var group = circl.P256

// Domain separation tag for hashing keys to group elements.
var dst = []byte("pid-dh-match")

var pointSize = mustPointSize()

func mustPointSize() int {
	data, err := group.Generator().MarshalBinaryCompress()
	if err != nil {
		panic(err)
	}
	return len(data)
}

// Unknown marks union rows held only by the peer.
const Unknown = -1

// Union describes the row-aligned union of the two parties' keys from
// one party's view. Positions maps union rows to this party's input
// rows, with Unknown marking rows the party must fill with padding.
// Both parties derive the same union size and the same per-row
// identities.
type Union struct {
	Rows      int
	Positions []int32
}

// DummyRows returns the padding flags of the union rows: true for
// rows held only by the peer. The result feeds the alignment
// pipeline's dataset constructors.
func (u *Union) DummyRows() []bool {
	dummy := make([]bool, u.Rows)
	for i, pos := range u.Positions {
		dummy[i] = pos == Unknown
	}
	return dummy
}

// Match runs the identity match over the connection and returns this
// party's view of the row-aligned union. Keys match on exact bytes.
// Duplicate keys are a precondition violation since a row-aligned
// union has no natural row for the second occurrence. The publisher
// sends first on every protocol round so that the two parties' sends
// and receives pair up over synchronous connections.
func Match(config *env.Config, role lift.Role, conn *p2p.Conn,
	keys []string) (*Union, error) {

	seen := make(map[string]bool)
	for i, key := range keys {
		if seen[key] {
			return nil, fmt.Errorf("pid: duplicate key at row %d", i)
		}
		seen[key] = true
	}

	secret := group.RandomScalar(config.GetRandom())

	mine := make([]circl.Element, len(keys))
	for i, key := range keys {
		e := group.HashToElement([]byte(key), dst)
		mine[i] = group.NewElement().Mul(e, secret)
	}

	var peerMasked []circl.Element
	var err error
	if role == lift.Publisher {
		if err = sendPoints(conn, mine); err != nil {
			return nil, err
		}
		peerMasked, err = receivePoints(conn)
	} else {
		peerMasked, err = receivePoints(conn)
		if err != nil {
			return nil, err
		}
		err = sendPoints(conn, mine)
	}
	if err != nil {
		return nil, err
	}

	// The peer's points double-masked with our secret, in the peer's
	// row order. Sending them back opens the peer's double-masked
	// values to the peer without opening the single-masked ones.
	peerDouble := make([]circl.Element, len(peerMasked))
	for i, e := range peerMasked {
		peerDouble[i] = group.NewElement().Mul(e, secret)
	}

	var myDouble []circl.Element
	if role == lift.Publisher {
		if err = sendPoints(conn, peerDouble); err != nil {
			return nil, err
		}
		myDouble, err = receivePoints(conn)
	} else {
		myDouble, err = receivePoints(conn)
		if err != nil {
			return nil, err
		}
		err = sendPoints(conn, peerDouble)
	}
	if err != nil {
		return nil, err
	}
	if len(myDouble) != len(keys) {
		return nil, fmt.Errorf("pid: peer returned %d keys, expected %d",
			len(myDouble), len(keys))
	}

	return buildUnion(myDouble, peerDouble)
}

// buildUnion computes the canonical union of the double-masked
// encodings: lexicographically sorted with equal values merged into
// one row.
func buildUnion(mine, peers []circl.Element) (*Union, error) {
	myIndex := make(map[string]int32)
	encodings := make([]string, 0, len(mine)+len(peers))
	for i, e := range mine {
		data, err := e.MarshalBinaryCompress()
		if err != nil {
			return nil, err
		}
		myIndex[string(data)] = int32(i)
		encodings = append(encodings, string(data))
	}
	for _, e := range peers {
		data, err := e.MarshalBinaryCompress()
		if err != nil {
			return nil, err
		}
		encodings = append(encodings, string(data))
	}
	sort.Strings(encodings)

	union := new(Union)
	for i, enc := range encodings {
		if i > 0 && enc == encodings[i-1] {
			continue
		}
		pos, ok := myIndex[enc]
		if !ok {
			pos = Unknown
		}
		union.Positions = append(union.Positions, pos)
	}
	union.Rows = len(union.Positions)
	return union, nil
}

func sendPoints(conn *p2p.Conn, points []circl.Element) error {
	if err := conn.SendUint32(len(points)); err != nil {
		return err
	}
	buf := make([]byte, 0, len(points)*pointSize)
	for _, e := range points {
		data, err := e.MarshalBinaryCompress()
		if err != nil {
			return err
		}
		buf = append(buf, data...)
	}
	if err := conn.SendData(buf); err != nil {
		return err
	}
	return conn.Flush()
}

func receivePoints(conn *p2p.Conn) ([]circl.Element, error) {
	count, err := conn.ReceiveUint32()
	if err != nil {
		return nil, err
	}
	data, err := conn.ReceiveData()
	if err != nil {
		return nil, err
	}
	if len(data) != count*pointSize {
		return nil, fmt.Errorf("pid: points payload is %d bytes, expected %d",
			len(data), count*pointSize)
	}
	points := make([]circl.Element, count)
	for i := 0; i < count; i++ {
		e := group.NewElement()
		err := e.UnmarshalBinary(data[i*pointSize : (i+1)*pointSize])
		if err != nil {
			return nil, fmt.Errorf("pid: invalid point %d: %s", i, err)
		}
		points[i] = e
	}
	return points, nil
}
