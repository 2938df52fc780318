//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package env implements global environment for the lift input
// processing system.
package env

import (
	"crypto/rand"
	"io"
)

// DefaultAttributionWindow is the attribution window, in seconds,
// added to valid purchase timestamps when computing threshold
// timestamps.
const DefaultAttributionWindow = 10

// Config defines the global system configuration for the input
// processing pipeline. It configures operation for all pipeline
// modules. Config must not be modified after being passed to any
// module. It is safe for concurrent use by multiple modules as they
// do not modify it.
type Config struct {
	// Rand is the source of entropy for secret sharing, shuffling,
	// and other cryptography operations. If Rand is nil, the
	// system-wide crypto/rand is used.
	Rand io.Reader

	// ConversionsPerUser defines the number of conversion slots each
	// partner row is padded or capped to.
	ConversionsPerUser int

	// AttributionWindow is the window, in seconds, for threshold
	// timestamps. A zero value selects DefaultAttributionWindow.
	AttributionWindow uint32

	// Verbose enables progress output.
	Verbose bool
}

// GetRandom returns the source of entropy for secret sharing,
// shuffling, and other cryptography operations.
func (config *Config) GetRandom() io.Reader {
	if config.Rand != nil {
		return config.Rand
	}
	return rand.Reader
}

// GetAttributionWindow returns the attribution window in seconds.
func (config *Config) GetAttributionWindow() uint32 {
	if config.AttributionWindow != 0 {
		return config.AttributionWindow
	}
	return DefaultAttributionWindow
}
