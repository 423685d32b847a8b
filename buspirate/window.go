// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package buspirate

import (
	"context"
	"fmt"
	"io"
	"time"
)

// ReadWindow reads from r until size bytes have arrived or the deadline
// passes. Reads returning zero bytes (port timeouts) are retried. It always
// performs at least one read, so a zero deadline still samples the port.
// The bytes received so far are returned together with any read error.
func ReadWindow(ctx context.Context, r io.Reader, size int, deadline time.Time) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("reader is nil")
	}

	data := make([]byte, size)
	n := 0
	for n < size {
		if err := ctx.Err(); err != nil {
			return data[:n], err
		}

		k, err := r.Read(data[n:])
		n += k
		if err != nil {
			return data[:n], err
		}

		if time.Now().After(deadline) {
			break
		}
	}
	return data[:n], nil
}
