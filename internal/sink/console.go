// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package sink

import (
	"fmt"
	"io"
	"sync"
)

// Console echoes records to the operator, one per line.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole returns a Console writing to w (usually os.Stdout).
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Echo writes record. Write failures are ignored.
func (c *Console) Echo(record string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, record)
}
