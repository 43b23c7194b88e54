// Package resample houses the two resampling kernels: nearest-neighbor over
// a static spatial index, and elliptical weighted averaging for scanning
// instruments.
package resample

import (
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"gonum.org/v1/gonum/interp"
)

// Interp1DMethod selects the interpolation used when the source geometry is
// effectively one-dimensional.
type Interp1DMethod string

const (
	Interp1DLinear  Interp1DMethod = "linear"
	Interp1DCubic   Interp1DMethod = "cubic"
	Interp1DNearest Interp1DMethod = "nearest"
)

// NearestParams feeds one nearest-neighbor kernel invocation. Cols and Rows
// are the projected grid-space coordinates of every swath pixel; Values is
// the product data in the same flattened order.
type NearestParams struct {
	Cols       []float64
	Rows       []float64
	CoordFill  float64 // fill marker in Cols/Rows
	Values     []float64
	Fill       float64 // output no-data value
	GridWidth  int
	GridHeight int

	// DistanceUpperBound is the maximum grid-cell distance at which a
	// source pixel may claim a grid cell.
	DistanceUpperBound float64
	Interp1D           Interp1DMethod
}

type indexedPoint struct {
	geom.Point
	idx int
}

// Nearest assigns each grid cell the value of the nearest projected swath
// pixel, or Fill when no pixel lies within DistanceUpperBound. The source
// value slice is extended by one trailing fill entry and every grid cell's
// match index defaults to that synthetic entry, so the final gather needs
// no per-cell branch.
func Nearest(p NearestParams) ([]float64, error) {
	if len(p.Cols) != len(p.Rows) || len(p.Cols) != len(p.Values) {
		return nil, fmt.Errorf("resample: coordinate/value lengths differ: %d/%d/%d",
			len(p.Cols), len(p.Rows), len(p.Values))
	}
	if p.GridWidth <= 0 || p.GridHeight <= 0 {
		return nil, fmt.Errorf("resample: invalid grid shape %dx%d", p.GridWidth, p.GridHeight)
	}
	if p.DistanceUpperBound <= 0 {
		return nil, fmt.Errorf("resample: distance upper bound must be positive, got %f", p.DistanceUpperBound)
	}

	var validIdx []int
	for i := range p.Cols {
		if isFill(p.Cols[i], p.CoordFill) || isFill(p.Rows[i], p.CoordFill) {
			continue
		}
		validIdx = append(validIdx, i)
	}

	size := p.GridWidth * p.GridHeight
	if len(validIdx) == 0 {
		out := make([]float64, size)
		for i := range out {
			out[i] = p.Fill
		}
		return out, nil
	}

	if axis, constant, ok := degenerateAxis(p, validIdx); ok {
		return nearest1D(p, validIdx, axis, constant)
	}

	// One synthetic trailing entry; unmatched cells gather from it.
	values := make([]float64, len(p.Values)+1)
	copy(values, p.Values)
	values[len(values)-1] = p.Fill
	outOfRange := len(values) - 1

	tree := rtree.NewTree(25, 50)
	for _, i := range validIdx {
		tree.Insert(indexedPoint{Point: geom.Point{X: p.Cols[i], Y: p.Rows[i]}, idx: i})
	}

	match := make([]int, size)
	for i := range match {
		match[i] = outOfRange
	}
	for r := 0; r < p.GridHeight; r++ {
		for c := 0; c < p.GridWidth; c++ {
			q := geom.Point{X: float64(c), Y: float64(r)}
			np := tree.NearestNeighbor(q).(indexedPoint)
			if math.Hypot(np.X-q.X, np.Y-q.Y) <= p.DistanceUpperBound {
				match[r*p.GridWidth+c] = np.idx
			}
		}
	}

	out := make([]float64, size)
	for j, m := range match {
		out[j] = values[m]
	}
	return out, nil
}

// degenerateAxis reports whether all valid pixels share one grid-space
// coordinate, leaving the geometry effectively one-dimensional. axis is 0
// when values vary along columns and 1 when they vary along rows; constant
// is the shared coordinate on the other axis.
func degenerateAxis(p NearestParams, validIdx []int) (axis int, constant float64, ok bool) {
	const eps = 1e-9
	sameRow, sameCol := true, true
	first := validIdx[0]
	for _, i := range validIdx[1:] {
		if math.Abs(p.Rows[i]-p.Rows[first]) > eps {
			sameRow = false
		}
		if math.Abs(p.Cols[i]-p.Cols[first]) > eps {
			sameCol = false
		}
		if !sameRow && !sameCol {
			return 0, 0, false
		}
	}
	if sameRow {
		return 0, p.Rows[first], true
	}
	return 1, p.Cols[first], true
}

// nearest1D resamples a single-line source with monotonic 1-D interpolation
// instead of the spatial index. Grid cells outside the source coordinate
// range, or farther than the distance bound from the source line, are fill.
func nearest1D(p NearestParams, validIdx []int, axis int, constant float64) ([]float64, error) {
	xs := make([]float64, 0, len(validIdx))
	ys := make([]float64, 0, len(validIdx))
	for _, i := range validIdx {
		if axis == 0 {
			xs = append(xs, p.Cols[i])
		} else {
			xs = append(xs, p.Rows[i])
		}
		ys = append(ys, p.Values[i])
	}
	xs, ys = sortDedupe(xs, ys)

	var pred interp.FittablePredictor
	switch p.Interp1D {
	case Interp1DCubic:
		pred = &interp.AkimaSpline{}
	case Interp1DNearest:
		pred = &interp.PiecewiseConstant{}
	default:
		pred = &interp.PiecewiseLinear{}
	}
	if len(xs) < 2 {
		// A single sample degenerates to a constant line.
		xs = append(xs, xs[0]+1)
		ys = append(ys, ys[0])
	}
	if err := pred.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("resample: fitting 1-D interpolation: %w", err)
	}

	lo, hi := xs[0], xs[len(xs)-1]
	out := make([]float64, p.GridWidth*p.GridHeight)
	for r := 0; r < p.GridHeight; r++ {
		for c := 0; c < p.GridWidth; c++ {
			j := r*p.GridWidth + c
			along, across := float64(c), float64(r)
			if axis == 1 {
				along, across = float64(r), float64(c)
			}
			if math.Abs(across-constant) > p.DistanceUpperBound || along < lo || along > hi {
				out[j] = p.Fill
				continue
			}
			out[j] = pred.Predict(along)
		}
	}
	return out, nil
}

// sortDedupe orders sample pairs by coordinate and drops duplicates, which
// the gonum predictors require.
func sortDedupe(xs, ys []float64) ([]float64, []float64) {
	order := make([]int, len(xs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return xs[order[a]] < xs[order[b]] })
	outX := make([]float64, 0, len(xs))
	outY := make([]float64, 0, len(ys))
	for _, i := range order {
		if len(outX) > 0 && xs[i] == outX[len(outX)-1] {
			continue
		}
		outX = append(outX, xs[i])
		outY = append(outY, ys[i])
	}
	return outX, outY
}

func isFill(v, fill float64) bool {
	if math.IsNaN(fill) {
		return math.IsNaN(v)
	}
	return v == fill
}
