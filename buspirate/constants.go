// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package buspirate holds the binary command set of a Bus Pirate compatible
// adapter: the raw bitbang entry sequence, the binary UART mode commands and
// the transparent bridge. Only the subset needed to bring the adapter into
// UART bridge mode is implemented.
package buspirate

import "time"

// Raw bitbang mode.
const (
	// CmdReset is written repeatedly to leave the user terminal and enter
	// raw bitbang mode. In UART mode it drops back to bitbang.
	CmdReset byte = 0x00
	// CmdEnterUART switches bitbang mode into binary UART mode.
	CmdEnterUART byte = 0x03
	// CmdResetDevice leaves bitbang mode and resets the adapter to the
	// user terminal.
	CmdResetDevice byte = 0x0F
)

// Binary UART mode.
const (
	// CmdStartBridge enters transparent UART bridge mode. The adapter stays in
	// bridge mode until it is power cycled or reset.
	CmdStartBridge byte = 0x0F

	cmdSetSpeed    byte = 0x60 // 0110xxxx
	cmdConfigure   byte = 0x80 // 100wxxyz
	cmdPeripherals byte = 0x40 // 0100wxyz

	// AckOK is the single byte success reply to every UART mode setting.
	AckOK byte = 0x01
)

// Acknowledgement markers and the response windows they must appear in.
var (
	MarkerBitBang = []byte("BBIO")
	MarkerUART    = []byte("ART1")
)

const (
	SyncBytes         = 20
	BitBangWindowSize = 5
	UARTWindowSize    = 4
	AckSize           = 1

	// ResponseTimeout bounds the wait for a full response window.
	ResponseTimeout = 250 * time.Millisecond
)
