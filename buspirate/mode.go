// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package buspirate

// Mode is the protocol mode the adapter is believed to be in.
type Mode int

const (
	ModeRaw Mode = iota
	ModeBitBang
	ModeUART
	ModeConfigured
	ModeBridging
	ModeClosed
)

func (m Mode) String() string {
	switch m {
	case ModeRaw:
		return "raw"
	case ModeBitBang:
		return "bitbang"
	case ModeUART:
		return "uart"
	case ModeConfigured:
		return "configured"
	case ModeBridging:
		return "bridging"
	case ModeClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Next returns the mode that follows m on the way to bridging. Bridging and
// Closed have no successor.
func (m Mode) Next() (Mode, bool) {
	if m >= ModeBridging {
		return m, false
	}
	return m + 1, true
}
