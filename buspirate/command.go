// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package buspirate

import "fmt"

// Command is a single UART mode setting: one byte written, one byte expected
// back.
type Command struct {
	Name string
	Byte byte
	Ack  byte
}

func (c Command) String() string {
	return fmt.Sprintf("%s (0x%02X)", c.Name, c.Byte)
}

// speedCodes maps a UART baud rate to the low nibble of the set speed command.
var speedCodes = map[int]byte{
	300:    0x0,
	1200:   0x1,
	2400:   0x2,
	4800:   0x3,
	9600:   0x4,
	19200:  0x5,
	31250:  0x6,
	38400:  0x7,
	57600:  0x8,
	115200: 0xA,
}

// SpeedCode returns the set speed nibble for baud.
func SpeedCode(baud int) (byte, error) {
	code, ok := speedCodes[baud]
	if !ok {
		return 0, fmt.Errorf("unsupported uart baud rate %d", baud)
	}
	return code, nil
}

// UARTSettings describes the UART peripheral setup applied before bridging.
// Data format is always 8N1 with idle-high RX.
type UARTSettings struct {
	Baud      int  // baud rate of the device behind the adapter
	Output3V3 bool // drive outputs at 3.3V instead of open drain (HiZ)
	Power     bool // enable the on-board power supply
	Pullups   bool // enable the on-board pull-up resistors
}

// DefaultUARTSettings is 9600 baud, 3.3V outputs, power supply on.
func DefaultUARTSettings() UARTSettings {
	return UARTSettings{Baud: 9600, Output3V3: true, Power: true}
}

// Setup builds the ordered configuration list: baud rate, output voltage,
// power supply.
func Setup(s UARTSettings) ([]Command, error) {
	code, err := SpeedCode(s.Baud)
	if err != nil {
		return nil, err
	}

	cfg := cmdConfigure
	if s.Output3V3 {
		cfg |= 0x10
	}

	per := cmdPeripherals
	if s.Power {
		per |= 0x08
	}
	if s.Pullups {
		per |= 0x04
	}

	return []Command{
		{Name: fmt.Sprintf("set baud rate %d", s.Baud), Byte: cmdSetSpeed | code, Ack: AckOK},
		{Name: "set output voltage", Byte: cfg, Ack: AckOK},
		{Name: "enable power supply", Byte: per, Ack: AckOK},
	}, nil
}

// DefaultSetup returns Setup(DefaultUARTSettings()), i.e. 0x64, 0x90, 0x48.
func DefaultSetup() []Command {
	cmds, _ := Setup(DefaultUARTSettings())
	return cmds
}
