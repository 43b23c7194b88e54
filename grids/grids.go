// Package grids holds target raster definitions and the named registry the
// remapping engine resolves grids from.
package grids

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/ctessum/geom/proj"
)

// ErrUnknownGrid is returned when a grid name cannot be resolved.
var ErrUnknownGrid = errors.New("grids: unknown grid")

// Definition describes one target raster: a projection plus origin, cell
// size, and pixel dimensions. A definition is dynamic when its origin or
// size is unset; the geolocation projector fits those from swath geometry
// on first use.
type Definition struct {
	Name       string
	Proj4      string
	Width      int
	Height     int
	CellWidth  float64 // projection units per pixel, positive
	CellHeight float64 // projection units per pixel, negative for north-up
	OriginX    float64 // top-left corner, NaN when dynamic
	OriginY    float64

	sr      *proj.SR
	cloneID int64
}

var cloneCounter int64

// New parses the projection descriptor and returns a usable definition.
func New(name, proj4 string, width, height int, cellW, cellH, originX, originY float64) (*Definition, error) {
	sr, err := proj.Parse(proj4)
	if err != nil {
		return nil, fmt.Errorf("grids: parsing projection for %q: %w", name, err)
	}
	return &Definition{
		Name:       name,
		Proj4:      proj4,
		Width:      width,
		Height:     height,
		CellWidth:  cellW,
		CellHeight: cellH,
		OriginX:    originX,
		OriginY:    originY,
		sr:         sr,
	}, nil
}

// SR returns the parsed spatial reference.
func (d *Definition) SR() *proj.SR { return d.sr }

// IsGeographic reports whether grid units are degrees rather than meters.
func (d *Definition) IsGeographic() bool {
	return d.sr != nil && d.sr.Name == "longlat"
}

// IsDynamic reports whether origin or size still need to be fit from data.
func (d *Definition) IsDynamic() bool {
	return d.Width <= 0 || d.Height <= 0 || math.IsNaN(d.OriginX) || math.IsNaN(d.OriginY)
}

// Clone returns an independent copy with a distinct cache key. Cloned
// definitions are used in unshared dynamic-grid mode so each swath group
// can fit grid parameters separately; the changed key means projection
// results are never shared across clones, even for identical names.
func (d *Definition) Clone() *Definition {
	c := *d
	c.cloneID = atomic.AddInt64(&cloneCounter, 1)
	return &c
}

// Key identifies this definition for projection caching and intermediate
// file naming. Registry-resolved definitions key by name alone; clones get
// a unique suffix.
func (d *Definition) Key() string {
	if d.cloneID == 0 {
		return d.Name
	}
	return fmt.Sprintf("%s.%d", d.Name, d.cloneID)
}

// GeoTransform returns the GDAL-style affine transform for writers.
func (d *Definition) GeoTransform() [6]float64 {
	return [6]float64{d.OriginX, d.CellWidth, 0, d.OriginY, 0, d.CellHeight}
}
