package remap

import (
	"math"

	"github.com/sirupsen/logrus"

	"swath2grid/grids"
	"swath2grid/resample"
	"swath2grid/swath"
)

// cellWidthMeters converts the grid's cell width into meters so it can be
// compared against instrument ground resolution.
func cellWidthMeters(g *grids.Definition) float64 {
	w := math.Abs(g.CellWidth)
	if g.IsGeographic() {
		return w * metersPerDegree
	}
	return w
}

// rowsPerScan returns the swath's scan grouping, defaulting when unset.
func rowsPerScan(def *swath.Definition) int {
	if def.RowsPerScan <= 0 {
		return defaultRowsPerScan
	}
	return def.RowsPerScan
}

// deriveWeightDeltaMax sizes the EWA search radius from the instrument's
// edge-of-scan resolution: half the limb footprint, in grid cells. Returns
// false when the limb resolution is unknown, in which case the kernel's own
// default applies.
func deriveWeightDeltaMax(def *swath.Definition, g *grids.Definition) (float64, bool) {
	if def.LimbResolution <= 0 {
		return 0, false
	}
	return (def.LimbResolution / 2) / cellWidthMeters(g), true
}

// deriveDistanceUpperBound applies the same edge-resolution heuristic to
// the nearest-neighbor search radius, with a constant fallback.
func deriveDistanceUpperBound(def *swath.Definition, g *grids.Definition) float64 {
	if v, ok := deriveWeightDeltaMax(def, g); ok {
		return v
	}
	return DefaultDistanceUpperBound
}

// normalizeInterp1D maps the user-facing interpolation name onto the kernel
// method, warning on unrecognized names instead of passing them through.
func normalizeInterp1D(s string) resample.Interp1DMethod {
	switch m := resample.Interp1DMethod(s); m {
	case "", resample.Interp1DLinear:
		return resample.Interp1DLinear
	case resample.Interp1DCubic, resample.Interp1DNearest:
		return m
	}
	logrus.Warnf("1-D interpolation %q not recognized, using linear", s)
	return resample.Interp1DLinear
}
