// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Port is an exclusive, ordered byte channel to the adapter.
//
// Read blocks for at most the port's short read timeout. When the timeout
// expires without data it returns (0, nil); callers treat that as "nothing
// yet" and retry. Any non-nil error is a link failure, except io.EOF which
// marks the end of a finite replay source.
type Port interface {
	io.ReadWriteCloser
}

// Opener is implemented by ports that connect on demand.
type Opener interface {
	Open(ctx context.Context) error
}

// Error is a failure of the underlying link (disconnect, I/O fault).
type Error struct {
	Op  string // "open", "read", "write", "close"
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns err as a *Error for op. Nil, io.EOF and errors that already
// are transport errors pass through unchanged.
func Wrap(op string, err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return err
	}
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// IsError reports whether err is (or wraps) a transport error.
func IsError(err error) bool {
	var te *Error
	return errors.As(err, &te)
}
