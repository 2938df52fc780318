//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package lift implements the data model of the private lift input
// processing stage: the two party roles, their row schemas with
// derived fields, the canonical byte-level row codecs, and the typed
// secret-shared column output.
package lift

import (
	"fmt"
)

// Role identifies one of the two parties of the lift computation.
type Role int

// Party roles.
const (
	Publisher Role = iota
	Partner
)

func (role Role) String() string {
	switch role {
	case Publisher:
		return "publisher"
	case Partner:
		return "partner"
	default:
		return fmt.Sprintf("{Role %d}", int(role))
	}
}

// Peer returns the opposite role.
func (role Role) Peer() Role {
	if role == Publisher {
		return Partner
	}
	return Publisher
}
