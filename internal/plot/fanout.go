// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package plot

import (
	"errors"
	"io"
)

// Updater receives fix positions.
type Updater interface {
	Update(lat, lon float64) error
}

// Fanout forwards every fix to all of its members, even when some fail.
type Fanout []Updater

// Update calls every member and joins their errors.
func (f Fanout) Update(lat, lon float64) error {
	var errs []error
	for _, u := range f {
		if err := u.Update(lat, lon); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes the members that are io.Closers.
func (f Fanout) Close() error {
	var errs []error
	for _, u := range f {
		if c, ok := u.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
