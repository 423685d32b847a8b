// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package buspirate

import (
	"errors"
	"fmt"
)

var (
	ErrEnterBitBang          = errors.New("buspirate: failed to enter bitbang")
	ErrEnterUART             = errors.New("buspirate: failed to enter uart")
	ErrConfigurationRejected = errors.New("buspirate: failed to configure settings")
)

// ProtocolErrorKind identifies the handshake step whose acknowledgement check
// failed.
type ProtocolErrorKind int

const (
	EnterBitBangFailed ProtocolErrorKind = iota + 1
	EnterUARTFailed
	ConfigurationRejected
)

// ProtocolError reports an acknowledgement that was wrong or missing.
type ProtocolError struct {
	Kind     ProtocolErrorKind
	Command  Command // set for ConfigurationRejected
	Response []byte  // bytes actually received
}

func (e *ProtocolError) Error() string {
	switch e.Kind {
	case ConfigurationRejected:
		return fmt.Sprintf("%v: %s, got % X", ErrConfigurationRejected, e.Command, e.Response)
	default:
		return fmt.Sprintf("%v: got %q", e.Unwrap(), e.Response)
	}
}

func (e *ProtocolError) Unwrap() error {
	switch e.Kind {
	case EnterBitBangFailed:
		return ErrEnterBitBang
	case EnterUARTFailed:
		return ErrEnterUART
	default:
		return ErrConfigurationRejected
	}
}
