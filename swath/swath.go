// Package swath defines the data model for satellite swath measurements and
// their gridded counterparts.
package swath

import (
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/s2"

	"swath2grid/grids"
	"swath2grid/rastore"
)

// Definition identifies one geolocation surface: per-pixel longitude and
// latitude arrays shared by every product observed on the same scan
// geometry. Immutable once built; many Products may reference one
// Definition.
type Definition struct {
	Name           string
	Longitude      rastore.Array
	Latitude       rastore.Array
	Rows           int
	Cols           int
	DType          rastore.DType
	Fill           float64
	RowsPerScan    int     // scan grouping factor, 0 when unknown
	LimbResolution float64 // meters at edge of scan, 0 when unknown
	SourceFiles    []string
}

// Validate checks the longitude/latitude shape invariant.
func (d *Definition) Validate() error {
	for _, a := range []rastore.Array{d.Longitude, d.Latitude} {
		if a == nil {
			return fmt.Errorf("swath %q: missing geolocation array", d.Name)
		}
		if a.Rows() != d.Rows || a.Cols() != d.Cols {
			return fmt.Errorf("swath %q: geolocation shape %dx%d does not match %dx%d",
				d.Name, a.Rows(), a.Cols(), d.Rows, d.Cols)
		}
	}
	return nil
}

// BoundingRect accumulates the lat/lng rectangle covered by the swath's
// valid geolocation, for cheap coverage reporting before projection.
func (d *Definition) BoundingRect() (s2.Rect, error) {
	lon, err := d.Longitude.Load()
	if err != nil {
		return s2.EmptyRect(), err
	}
	lat, err := d.Latitude.Load()
	if err != nil {
		return s2.EmptyRect(), err
	}
	rect := s2.EmptyRect()
	for i := range lon {
		if isFill(lon[i], d.Fill) || isFill(lat[i], d.Fill) {
			continue
		}
		ll := s2.LatLngFromDegrees(lat[i], lon[i])
		if !ll.IsValid() {
			continue
		}
		rect = rect.AddPoint(ll)
	}
	return rect, nil
}

func isFill(v, fill float64) bool {
	if math.IsNaN(fill) {
		return math.IsNaN(v)
	}
	return v == fill
}

// Product is one physical quantity measured over one Definition.
type Product struct {
	Name        string
	Description string
	Units       string
	DataKind    string
	Satellite   string
	Instrument  string
	Begin       time.Time
	End         time.Time
	Data        rastore.Array
	DType       rastore.DType
	Fill        float64
	Def         *Definition
}

func (p *Product) Validate() error {
	if p.Def == nil {
		return fmt.Errorf("product %q: no swath definition", p.Name)
	}
	if p.Data == nil {
		return fmt.Errorf("product %q: no data array", p.Name)
	}
	if p.Data.Rows() != p.Def.Rows || p.Data.Cols() != p.Def.Cols {
		return fmt.Errorf("product %q: shape %dx%d does not match swath %q (%dx%d)",
			p.Name, p.Data.Rows(), p.Data.Cols(), p.Def.Name, p.Def.Rows, p.Def.Cols)
	}
	return nil
}

// GriddedProduct is a Product remapped onto a grid. The fill value is the
// grid's uniform no-data sentinel, not the swath's.
type GriddedProduct struct {
	Name        string
	Description string
	Units       string
	DataKind    string
	Satellite   string
	Instrument  string
	Begin       time.Time
	End         time.Time
	Data        rastore.Array
	DType       rastore.DType
	Fill        float64
	Grid        *grids.Definition
}
