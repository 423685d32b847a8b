// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package plot holds the position visualizers: a PNG map, a websocket live
// feed and an MQTT publisher.
package plot

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ffutop/bpnmea/internal/config"
)

// Title is drawn above the plot area.
const Title = "GPS coordinates received"

const (
	titleHeight = 20
	pointRadius = 3
)

var (
	pointColor = color.NRGBA{R: 0, G: 0, B: 255, A: 51} // blue, alpha 0.2
	frameColor = color.Gray{Y: 96}
	textColor  = color.Black
)

// BBox is the geographic extent of the plot. LatMin is drawn at the bottom
// edge and LatMax at the top; either may be the larger value.
type BBox struct {
	LonMin, LonMax float64
	LatMin, LatMax float64
}

// Project maps a position into r. ok is false when the position lies
// outside the box.
func (b BBox) Project(lat, lon float64, r image.Rectangle) (image.Point, bool) {
	fx := (lon - b.LonMin) / (b.LonMax - b.LonMin)
	fy := (lat - b.LatMin) / (b.LatMax - b.LatMin)
	if fx < 0 || fx > 1 || fy < 0 || fy > 1 {
		return image.Point{}, false
	}
	x := r.Min.X + int(fx*float64(r.Dx()-1)+0.5)
	y := r.Max.Y - 1 - int(fy*float64(r.Dy()-1)+0.5)
	return image.Pt(x, y), true
}

// Map accumulates fixes on a background image and rewrites a PNG file
// after every update.
type Map struct {
	bbox   BBox
	output string

	mu      sync.Mutex
	canvas  *image.RGBA
	area    image.Rectangle
	points  int
	clipped int
}

// NewMap builds the canvas: title band, background scaled to the plot area
// (white without one) and a frame.
func NewMap(cfg config.MapConfig) (*Map, error) {
	if cfg.Width <= 0 || cfg.Height <= titleHeight {
		return nil, fmt.Errorf("map size %dx%d too small", cfg.Width, cfg.Height)
	}

	m := &Map{
		bbox:   BBox{LonMin: cfg.BBox.LonMin, LonMax: cfg.BBox.LonMax, LatMin: cfg.BBox.LatMin, LatMax: cfg.BBox.LatMax},
		output: cfg.Output,
		canvas: image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height)),
		area:   image.Rect(0, titleHeight, cfg.Width, cfg.Height),
	}
	draw.Draw(m.canvas, m.canvas.Bounds(), image.White, image.Point{}, draw.Src)

	if cfg.Background != "" {
		bg, err := loadImage(cfg.Background)
		if err != nil {
			return nil, err
		}
		draw.ApproxBiLinear.Scale(m.canvas, m.area, bg, bg.Bounds(), draw.Src, nil)
	}

	m.drawTitle()
	m.drawFrame()
	return m, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open map background: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode map background %s: %w", path, err)
	}
	return img, nil
}

func (m *Map) drawTitle() {
	d := &font.Drawer{
		Dst:  m.canvas,
		Src:  image.NewUniform(textColor),
		Face: basicfont.Face7x13,
	}
	width := d.MeasureString(Title).Round()
	x := (m.canvas.Bounds().Dx() - width) / 2
	if x < 0 {
		x = 0
	}
	d.Dot = fixed.P(x, 15)
	d.DrawString(Title)
}

func (m *Map) drawFrame() {
	r := m.area
	for x := r.Min.X; x < r.Max.X; x++ {
		m.canvas.Set(x, r.Min.Y, frameColor)
		m.canvas.Set(x, r.Max.Y-1, frameColor)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		m.canvas.Set(r.Min.X, y, frameColor)
		m.canvas.Set(r.Max.X-1, y, frameColor)
	}
}

// Update draws one fix and rewrites the output file. Positions outside the
// box are counted and not drawn.
func (m *Map) Update(lat, lon float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.bbox.Project(lat, lon, m.area)
	if !ok {
		m.clipped++
		slog.Debug("fix outside map", "lat", lat, "lon", lon)
		return nil
	}

	d := dot{r: pointRadius}
	r := image.Rect(p.X-pointRadius, p.Y-pointRadius, p.X+pointRadius+1, p.Y+pointRadius+1)
	draw.DrawMask(m.canvas, r, image.NewUniform(pointColor), image.Point{}, d, d.Bounds().Min, draw.Over)
	m.points++

	if m.output == "" {
		return nil
	}
	return m.save()
}

// Points returns the number of fixes drawn and the number clipped.
func (m *Map) Points() (drawn, clipped int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.points, m.clipped
}

// WritePNG encodes the current canvas to w.
func (m *Map) WritePNG(w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return png.Encode(w, m.canvas)
}

// save replaces the output file atomically.
func (m *Map) save() error {
	tmp, err := os.CreateTemp(filepath.Dir(m.output), ".map-*.png")
	if err != nil {
		return fmt.Errorf("failed to create map file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, m.canvas); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode map: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write map: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.output); err != nil {
		return fmt.Errorf("failed to replace map: %w", err)
	}
	return nil
}

// dot is a filled disc mask centred on the origin.
type dot struct {
	r int
}

func (d dot) ColorModel() color.Model { return color.AlphaModel }

func (d dot) Bounds() image.Rectangle {
	return image.Rect(-d.r, -d.r, d.r+1, d.r+1)
}

func (d dot) At(x, y int) color.Color {
	if x*x+y*y <= d.r*d.r {
		return color.Alpha{A: 255}
	}
	return color.Alpha{}
}
