package gridio

import (
	"math"

	"github.com/airbusgeo/godal"
	"github.com/sirupsen/logrus"

	"swath2grid/swath"
)

// geotiffNoData replaces NaN fill in integer-unfriendly consumers; GDAL
// handles NaN nodata inconsistently across drivers.
const geotiffNoData = -9999.0

// WriteGeoTIFF renders the product as a single-band float32 GeoTIFF carrying
// the grid's projection and geotransform.
func WriteGeoTIFF(p *swath.GriddedProduct, path string) error {
	godal.RegisterAll()

	vals, err := p.Data.Load()
	if err != nil {
		return err
	}
	grid := p.Grid

	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float32, grid.Width, grid.Height,
		godal.CreationOption("TILED=YES", "COMPRESS=DEFLATE"))
	if err != nil {
		return err
	}
	defer func() {
		if err := ds.Close(); err != nil {
			logrus.Error(err)
		}
	}()

	if err := ds.SetGeoTransform(grid.GeoTransform()); err != nil {
		return err
	}
	sr, err := godal.NewSpatialRefFromProj4(grid.Proj4)
	if err != nil {
		return err
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		return err
	}

	buf := make([]float32, len(vals))
	for i, v := range vals {
		if math.IsNaN(v) || v == p.Fill {
			buf[i] = geotiffNoData
			continue
		}
		buf[i] = float32(v)
	}

	band := ds.Bands()[0]
	if err := band.SetNoData(geotiffNoData); err != nil {
		return err
	}
	return band.Write(0, 0, buf, grid.Width, grid.Height)
}
