// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"github.com/spf13/pflag"
)

// newFlagSet defines the command line. Flags left unset fall back to the
// configuration file and then to the built-in defaults.
func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringP("config", "c", "", "Configuration file path.")

	// Link to the adapter.
	fs.StringP("type", "t", "", "Device link type: serial, tcp or capture (default serial).")
	fs.StringP("device", "p", "", "Serial port device name (default /dev/ttyUSB0).")
	fs.IntP("baud_rate", "s", 0, "Serial port speed towards the adapter (default 115200).")
	fs.String("address", "", "Serial server address for the tcp link, e.g. 192.168.1.100:3001.")
	fs.String("capture", "", "Recorded receiver output to replay for the capture link.")

	// Adapter and receiver.
	fs.Int("uart_baud", 0, "Baud rate of the GPS receiver behind the adapter (default 9600).")

	// Outputs.
	fs.StringP("fixlog", "o", "", "Fix log path (default logs/<start time>).")
	fs.String("map", "", "PNG map rewritten on every fix (default gps_map.png).")
	fs.Float64Slice("bbox", nil, "Map extent as lon_min,lon_max,lat_min,lat_max.")
	fs.String("live", "", "Listen address of the websocket live feed, e.g. :8080.")

	// Diagnostics.
	fs.StringP("log_level", "v", "", "Log verbosity level (debug, info, warn, error).")
	fs.StringP("log_file", "L", "", "Log file name ('-' for logging to STDERR only).")
	return fs
}
