// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package buspirate

import (
	"errors"
	"testing"
)

func TestDefaultSetup(t *testing.T) {
	cmds := DefaultSetup()
	want := []byte{0x64, 0x90, 0x48}
	if len(cmds) != len(want) {
		t.Fatalf("got %d commands, want %d", len(cmds), len(want))
	}
	for i, c := range cmds {
		if c.Byte != want[i] {
			t.Errorf("command %d (%s): got 0x%02X, want 0x%02X", i, c.Name, c.Byte, want[i])
		}
		if c.Ack != AckOK {
			t.Errorf("command %d: ack 0x%02X, want 0x01", i, c.Ack)
		}
	}
}

func TestSetup(t *testing.T) {
	tests := []struct {
		name     string
		settings UARTSettings
		want     []byte
		wantErr  bool
	}{
		{"4800_HiZ_NoPower", UARTSettings{Baud: 4800}, []byte{0x63, 0x80, 0x40}, false},
		{"115200_3V3_Power_Pullups", UARTSettings{Baud: 115200, Output3V3: true, Power: true, Pullups: true}, []byte{0x6A, 0x90, 0x4C}, false},
		{"38400", UARTSettings{Baud: 38400, Output3V3: true, Power: true}, []byte{0x67, 0x90, 0x48}, false},
		{"UnsupportedBaud", UARTSettings{Baud: 14400}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmds, err := Setup(tt.settings)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Setup() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			for i, c := range cmds {
				if c.Byte != tt.want[i] {
					t.Errorf("command %d: got 0x%02X, want 0x%02X", i, c.Byte, tt.want[i])
				}
			}
		})
	}
}

func TestModeNext(t *testing.T) {
	order := []Mode{ModeRaw, ModeBitBang, ModeUART, ModeConfigured, ModeBridging}
	for i := 0; i < len(order)-1; i++ {
		next, ok := order[i].Next()
		if !ok || next != order[i+1] {
			t.Errorf("%s.Next() = %s, %v; want %s", order[i], next, ok, order[i+1])
		}
	}
	if _, ok := ModeBridging.Next(); ok {
		t.Error("bridging must have no successor")
	}
	if _, ok := ModeClosed.Next(); ok {
		t.Error("closed must have no successor")
	}
}

func TestProtocolError_Is(t *testing.T) {
	cmd := DefaultSetup()[1]
	tests := []struct {
		err  *ProtocolError
		want error
	}{
		{&ProtocolError{Kind: EnterBitBangFailed, Response: []byte("xx")}, ErrEnterBitBang},
		{&ProtocolError{Kind: EnterUARTFailed}, ErrEnterUART},
		{&ProtocolError{Kind: ConfigurationRejected, Command: cmd, Response: []byte{0x00}}, ErrConfigurationRejected},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.want) {
			t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.want)
		}
		if tt.err.Error() == "" {
			t.Error("empty error message")
		}
	}
}
