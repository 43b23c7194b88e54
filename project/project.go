// Package project converts per-pixel swath geolocation into target grid
// coordinates. The remapper only depends on the Projector contract; the
// default implementation runs pure-Go proj4 forward transforms.
package project

import (
	"fmt"
	"math"

	"github.com/ctessum/geom/proj"
	"github.com/sirupsen/logrus"

	"swath2grid/grids"
	"swath2grid/rastore"
)

// Projector writes, for every swath pixel, its (column, row) position in
// grid space into outCols/outRows and returns the number of pixels that
// landed inside grid bounds. Pixels with fill geolocation, or that fail to
// transform, are written as fill in both outputs.
//
// When the grid definition is dynamic, Project fits the grid's origin and
// size from the projected extent before computing coordinates, mutating the
// definition in place.
type Projector interface {
	Project(lon, lat rastore.Array, grid *grids.Definition, fill float64, outCols, outRows rastore.Array) (int, error)
}

const lonlatProj = "+proj=longlat +datum=WGS84 +no_defs"

// Proj4Projector transforms WGS84 lon/lat geolocation through the grid's
// proj4 descriptor.
type Proj4Projector struct{}

var _ Projector = Proj4Projector{}

func (Proj4Projector) Project(lon, lat rastore.Array, grid *grids.Definition, fill float64, outCols, outRows rastore.Array) (int, error) {
	lonVals, err := lon.Load()
	if err != nil {
		return 0, err
	}
	latVals, err := lat.Load()
	if err != nil {
		return 0, err
	}
	if len(lonVals) != len(latVals) {
		return 0, fmt.Errorf("project: longitude has %d pixels, latitude %d", len(lonVals), len(latVals))
	}

	srcSR, err := proj.Parse(lonlatProj)
	if err != nil {
		return 0, err
	}
	trans, err := srcSR.NewTransform(grid.SR())
	if err != nil {
		return 0, fmt.Errorf("project: building transform to grid %q: %w", grid.Name, err)
	}
	if trans == nil {
		// NewTransform returns a nil Transformer when source and
		// destination reference systems match, as for geographic grids.
		trans = func(x, y float64) (float64, float64, error) { return x, y, nil }
	}

	xs := make([]float64, len(lonVals))
	ys := make([]float64, len(lonVals))
	valid := make([]bool, len(lonVals))
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i := range lonVals {
		if isFill(lonVals[i], fill) || isFill(latVals[i], fill) {
			continue
		}
		x, y, err := trans(lonVals[i], latVals[i])
		if err != nil || math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			continue
		}
		xs[i], ys[i], valid[i] = x, y, true
		minX, minY = math.Min(minX, x), math.Min(minY, y)
		maxX, maxY = math.Max(maxX, x), math.Max(maxY, y)
	}
	if math.IsInf(minX, 1) {
		return 0, fmt.Errorf("project: swath has no valid geolocation")
	}

	if grid.IsDynamic() {
		fitGrid(grid, minX, minY, maxX, maxY)
		logrus.Debugf("fit dynamic grid %q: origin (%f, %f), %dx%d",
			grid.Name, grid.OriginX, grid.OriginY, grid.Width, grid.Height)
	}

	cols := make([]float64, len(lonVals))
	rows := make([]float64, len(lonVals))
	count := 0
	for i := range lonVals {
		if !valid[i] {
			cols[i], rows[i] = fill, fill
			continue
		}
		c := (xs[i] - grid.OriginX) / grid.CellWidth
		r := (ys[i] - grid.OriginY) / grid.CellHeight
		cols[i], rows[i] = c, r
		if c >= 0 && c < float64(grid.Width) && r >= 0 && r < float64(grid.Height) {
			count++
		}
	}
	if err := outCols.Put(cols); err != nil {
		return 0, err
	}
	if err := outRows.Put(rows); err != nil {
		return 0, err
	}
	return count, nil
}

// fitGrid derives unset origin and size from the projected extent of the
// swath. CellHeight is negative for north-up grids, so the origin Y is the
// maximum projected Y.
func fitGrid(grid *grids.Definition, minX, minY, maxX, maxY float64) {
	if math.IsNaN(grid.OriginX) {
		grid.OriginX = minX
	}
	if math.IsNaN(grid.OriginY) {
		if grid.CellHeight < 0 {
			grid.OriginY = maxY
		} else {
			grid.OriginY = minY
		}
	}
	if grid.Width <= 0 {
		grid.Width = int(math.Ceil((maxX-grid.OriginX)/grid.CellWidth)) + 1
	}
	if grid.Height <= 0 {
		if grid.CellHeight < 0 {
			grid.Height = int(math.Ceil((grid.OriginY-minY)/-grid.CellHeight)) + 1
		} else {
			grid.Height = int(math.Ceil((maxY-grid.OriginY)/grid.CellHeight)) + 1
		}
	}
}

func isFill(v, fill float64) bool {
	if math.IsNaN(fill) {
		return math.IsNaN(v)
	}
	return v == fill
}
