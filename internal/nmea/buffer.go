// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package nmea

import (
	"bytes"
	"context"
	"errors"
	"io"
)

const (
	// MaxLineLength caps an unterminated line. Longer runs are emitted as one
	// line so the buffer stays bounded.
	MaxLineLength = 4096

	readChunk = 512
)

// Buffer splits a byte stream into newline terminated lines. Bytes after the
// last newline stay buffered until the rest of the line arrives.
type Buffer struct {
	r     io.Reader
	buf   []byte
	chunk []byte
	eof   bool
}

// NewBuffer returns a Buffer reading from r. Reads returning no data are
// retried, so r may be a port with a short read timeout.
func NewBuffer(r io.Reader) *Buffer {
	return &Buffer{r: r, chunk: make([]byte, readChunk)}
}

// Next returns the next line without its '\n'. A trailing '\r' is kept.
// The reader is only consulted when no complete line is buffered. The
// context is checked before every read.
//
// When r reports io.EOF, a buffered partial line is returned first and
// io.EOF on the following call. Other read errors are returned unchanged
// and the buffered bytes are kept.
func (b *Buffer) Next(ctx context.Context) (string, error) {
	for {
		if i := bytes.IndexByte(b.buf, '\n'); i >= 0 {
			return b.take(i, i+1), nil
		}
		if len(b.buf) >= MaxLineLength {
			return b.take(MaxLineLength, MaxLineLength), nil
		}
		if b.eof {
			if len(b.buf) > 0 {
				return b.take(len(b.buf), len(b.buf)), nil
			}
			return "", io.EOF
		}

		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := b.r.Read(b.chunk)
		b.buf = append(b.buf, b.chunk[:n]...)
		if errors.Is(err, io.EOF) {
			b.eof = true
		} else if err != nil {
			return "", err
		}
	}
}

// Buffered returns the number of bytes held for an incomplete line.
func (b *Buffer) Buffered() int {
	return len(b.buf)
}

// take returns buf[:end] as a line and drops buf[:skip].
func (b *Buffer) take(end, skip int) string {
	line := string(b.buf[:end])
	n := copy(b.buf, b.buf[skip:])
	b.buf = b.buf[:n]
	return line
}
