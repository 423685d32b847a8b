// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package nmea

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// chunkReader returns one queued chunk per Read. An empty chunk is a read
// timeout; err is returned once the chunks run out.
type chunkReader struct {
	chunks []string
	reads  int
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	r.reads++
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, nil
	}
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func nextLines(t *testing.T, b *Buffer, n int) []string {
	t.Helper()
	var lines []string
	for i := 0; i < n; i++ {
		line, err := b.Next(context.Background())
		if err != nil {
			t.Fatalf("Next() #%d failed: %v", i, err)
		}
		lines = append(lines, line)
	}
	return lines
}

func TestBuffer_LineSplitAcrossReads(t *testing.T) {
	r := &chunkReader{chunks: []string{"$GPG", "GA,1", "23\r\n"}}
	b := NewBuffer(r)

	got := nextLines(t, b, 1)
	if got[0] != "$GPGGA,123\r" {
		t.Errorf("line = %q", got[0])
	}
	if b.Buffered() != 0 {
		t.Errorf("buffered %d bytes", b.Buffered())
	}
}

func TestBuffer_TwoLinesAndPartial(t *testing.T) {
	r := &chunkReader{chunks: []string{"A\nB\nC", "D\n"}}
	b := NewBuffer(r)

	got := nextLines(t, b, 2)
	if got[0] != "A" || got[1] != "B" {
		t.Fatalf("lines = %q", got)
	}
	// Both complete lines came from the first read.
	if r.reads != 1 {
		t.Errorf("reads = %d, want 1", r.reads)
	}
	if b.Buffered() != 1 {
		t.Errorf("buffered %d bytes, want the partial \"C\"", b.Buffered())
	}

	got = nextLines(t, b, 1)
	if got[0] != "CD" {
		t.Errorf("line = %q, want CD", got[0])
	}
}

func TestBuffer_EmptyReadsRetried(t *testing.T) {
	r := &chunkReader{chunks: []string{"", "", "$GP", "", "", "GGA\n"}}
	b := NewBuffer(r)

	got := nextLines(t, b, 1)
	if got[0] != "$GPGGA" {
		t.Errorf("line = %q", got[0])
	}
}

func TestBuffer_LongLineEmitted(t *testing.T) {
	long := strings.Repeat("x", MaxLineLength+10)
	r := &chunkReader{chunks: []string{long, "\n"}}
	b := NewBuffer(r)

	got := nextLines(t, b, 2)
	if len(got[0]) != MaxLineLength {
		t.Errorf("first line length %d, want %d", len(got[0]), MaxLineLength)
	}
	if got[1] != strings.Repeat("x", 10) {
		t.Errorf("remainder %q", got[1])
	}
}

func TestBuffer_EOF(t *testing.T) {
	r := &chunkReader{chunks: []string{"A\nB"}, err: io.EOF}
	b := NewBuffer(r)

	got := nextLines(t, b, 2)
	if got[0] != "A" || got[1] != "B" {
		t.Fatalf("lines = %q", got)
	}
	if _, err := b.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after end = %v, want io.EOF", err)
	}
}

func TestBuffer_ReadError(t *testing.T) {
	boom := errors.New("device unplugged")
	r := &chunkReader{chunks: []string{"$GP"}, err: boom}
	b := NewBuffer(r)

	if _, err := b.Next(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Next() = %v, want %v", err, boom)
	}
	if b.Buffered() != 3 {
		t.Errorf("buffered %d bytes, want 3", b.Buffered())
	}
}

func TestBuffer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &chunkReader{chunks: []string{"A\n"}}
	b := NewBuffer(r)

	if _, err := b.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Next() = %v, want context.Canceled", err)
	}
	if r.reads != 0 {
		t.Errorf("read after cancellation")
	}
}
