// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package nmea

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Echoer shows records to the operator.
type Echoer interface {
	Echo(record string)
}

// Logger appends records to the durable fix log.
type Logger interface {
	Append(record string) error
}

// Visualizer receives the position of every valid fix.
type Visualizer interface {
	Update(lat, lon float64) error
}

// LineSource yields complete lines; *Buffer implements it.
type LineSource interface {
	Next(ctx context.Context) (string, error)
}

// Stats counts what the processor has seen.
type Stats struct {
	Lines       uint64 // non-blank lines handled
	Fixes       uint64 // GGA sentences parsed
	Echoed      uint64 // fixes with satellites in view
	Recorded    uint64 // fixes with a valid position
	Ignored     uint64 // valid sentences of other types
	ParseErrors uint64
}

// Processor dispatches GGA fixes: fixes with satellites are echoed, fixes
// with a valid position are logged and visualized. The two rules are
// independent.
type Processor struct {
	echo Echoer
	log  Logger
	vis  Visualizer

	stats Stats
}

// NewProcessor wires the three sinks. vis may be nil.
func NewProcessor(echo Echoer, log Logger, vis Visualizer) *Processor {
	return &Processor{echo: echo, log: log, vis: vis}
}

// Stats returns a snapshot of the counters.
func (p *Processor) Stats() Stats {
	return p.stats
}

// Handle processes one line. A *ParseError is recoverable; any other error
// (a failed log append) is fatal.
func (p *Processor) Handle(line string) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	p.stats.Lines++

	fix, ok, err := ParseFix(line)
	if err != nil {
		p.stats.ParseErrors++
		return err
	}
	if !ok {
		p.stats.Ignored++
		return nil
	}
	p.stats.Fixes++

	record := fix.String()
	if fix.Satellites != 0 {
		p.stats.Echoed++
		p.echo.Echo(record)
	}
	if fix.Quality != 0 {
		if err := p.log.Append(record); err != nil {
			return fmt.Errorf("append fix: %w", err)
		}
		p.stats.Recorded++
		if p.vis != nil {
			if err := p.vis.Update(fix.Latitude, fix.Longitude); err != nil {
				slog.Warn("visualizer update failed", "lat", fix.Latitude, "lon", fix.Longitude, "err", err)
			}
		}
	}
	return nil
}

// Run handles lines from src until ctx is cancelled, which returns nil, or
// until a fatal error, which is returned. Parse errors are reported to the
// operator and the fix log, then skipped. Cancellation is checked once per
// line.
func (p *Processor) Run(ctx context.Context, src LineSource) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		}

		err = p.Handle(line)
		var pe *ParseError
		if errors.As(err, &pe) {
			if err := p.reportParseError(pe); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
	}
}

func (p *Processor) reportParseError(pe *ParseError) error {
	record := "Parse error: " + pe.Error()
	slog.Debug("unparseable line", "line", pe.Line, "err", pe.Err)
	p.echo.Echo(record)
	if err := p.log.Append(record); err != nil {
		return fmt.Errorf("append parse error: %w", err)
	}
	return nil
}
