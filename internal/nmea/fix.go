// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package nmea turns the bridged receiver output into fix records: it splits
// the byte stream into sentences, parses them and dispatches GGA fixes.
package nmea

import (
	"fmt"
	"strconv"
	"strings"

	gonmea "github.com/adrianmo/go-nmea"
)

// Fix is the part of a GGA sentence the processor acts on.
type Fix struct {
	Talker     string
	Time       string  // hh:mm:ss.sss UTC
	Latitude   float64 // decimal degrees, south negative
	Longitude  float64 // decimal degrees, west negative
	Quality    int     // 0 means no fix
	Satellites int64
	HDOP       float64
	Altitude   float64 // metres above mean sea level
}

func (f Fix) String() string {
	return fmt.Sprintf("GGA(talker=%s, time=%s, lat=%.6f, lon=%.6f, quality=%d, sats=%d, hdop=%.1f, alt=%.1f)",
		f.Talker, f.Time, f.Latitude, f.Longitude, f.Quality, f.Satellites, f.HDOP, f.Altitude)
}

// ParseError is a line that could not be parsed as a supported sentence.
// It is recoverable: processing continues with the next line.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.Line)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseFix parses one sentence. It reports ok=false without error for valid
// sentences of other types. Malformed lines, bad checksums and sentence
// types the parser does not know are a *ParseError.
func ParseFix(line string) (Fix, bool, error) {
	line = strings.TrimSpace(line)

	s, err := gonmea.Parse(line)
	if err != nil {
		return Fix{}, false, &ParseError{Line: line, Err: err}
	}
	if s.DataType() != gonmea.TypeGGA {
		return Fix{}, false, nil
	}

	gga, ok := s.(gonmea.GGA)
	if !ok {
		return Fix{}, false, &ParseError{Line: line, Err: fmt.Errorf("unexpected sentence %T", s)}
	}

	quality := 0
	if gga.FixQuality != "" {
		quality, err = strconv.Atoi(gga.FixQuality)
		if err != nil {
			return Fix{}, false, &ParseError{Line: line, Err: fmt.Errorf("fix quality: %w", err)}
		}
	}

	return Fix{
		Talker:     gga.Talker,
		Time:       gga.Time.String(),
		Latitude:   gga.Latitude,
		Longitude:  gga.Longitude,
		Quality:    quality,
		Satellites: gga.NumSatellites,
		HDOP:       gga.HDOP,
		Altitude:   gga.Altitude,
	}, true, nil
}
