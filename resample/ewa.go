package resample

import (
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"swath2grid/rastore"
)

const (
	defaultWeightDeltaMax    = 10.0
	defaultWeightDistanceMax = 1.0
	// weightMin is the ellipse-edge weight; weights decay exponentially
	// from 1 at the pixel center to weightMin at the footprint boundary.
	weightMin = 0.01
)

// EWAParams feeds one elliptical-weighted-averaging kernel invocation for a
// whole group of products sharing geolocation. The per-scan geometry setup
// is computed once and amortized across every input.
type EWAParams struct {
	SwathRows   int
	SwathCols   int
	RowsPerScan int
	StartScan   int

	Cols rastore.Array // projected grid-space column per swath pixel
	Rows rastore.Array // projected grid-space row per swath pixel

	Inputs  []rastore.Array // product data, swath-shaped
	Outputs []rastore.Array // grid-shaped, written in place

	GridWidth  int
	GridHeight int
	SwathFill  float64
	GridFill   float64

	// WeightDeltaMax caps the footprint search radius in grid cells;
	// WeightDistanceMax scales the ellipse axes. Zero selects the kernel
	// defaults.
	WeightDeltaMax    float64
	WeightDistanceMax float64
	// MaximumWeight keeps the single highest-weight sample per cell
	// instead of the weighted average.
	MaximumWeight bool

	// Workers bounds the pool fanning per-product accumulation out; zero
	// or one runs synchronously on the calling goroutine.
	Workers int
}

// footprint is the precomputed ellipse for one valid swath pixel: the
// inverse conic coefficients of q = A*dx^2 + B*dx*dy + C*dy^2, with q <= 1
// inside the footprint, plus the grid-space bounding half-widths.
type footprint struct {
	pixel    int
	col, row float64
	a, b, c  float64
	halfW    float64
	halfH    float64
}

// EWA resamples every input product onto the grid by distributing each
// swath pixel's value over the grid cells its scan ellipse overlaps.
func EWA(p EWAParams) error {
	if len(p.Inputs) != len(p.Outputs) {
		return fmt.Errorf("resample: %d inputs but %d outputs", len(p.Inputs), len(p.Outputs))
	}
	if len(p.Inputs) == 0 {
		return nil
	}
	rps := p.RowsPerScan
	if rps <= 0 {
		rps = 2
	}
	deltaMax := p.WeightDeltaMax
	if deltaMax <= 0 {
		deltaMax = defaultWeightDeltaMax
	}
	distanceMax := p.WeightDistanceMax
	if distanceMax <= 0 {
		distanceMax = defaultWeightDistanceMax
	}

	cols, err := p.Cols.Load()
	if err != nil {
		return err
	}
	rows, err := p.Rows.Load()
	if err != nil {
		return err
	}
	if len(cols) != p.SwathRows*p.SwathCols || len(rows) != len(cols) {
		return fmt.Errorf("resample: coordinate arrays do not match swath shape %dx%d", p.SwathRows, p.SwathCols)
	}

	fps := scanFootprints(cols, rows, p, rps, deltaMax, distanceMax)
	logrus.Debugf("ewa: %d usable footprints over %d products", len(fps), len(p.Inputs))

	workers := p.Workers
	if workers <= 1 {
		for i := range p.Inputs {
			if err := ewaProduct(fps, p, p.Inputs[i], p.Outputs[i]); err != nil {
				return err
			}
		}
		return nil
	}
	if workers > len(p.Inputs) {
		workers = len(p.Inputs)
	}

	jobs := make(chan int)
	errCh := make(chan error, len(p.Inputs))
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := ewaProduct(fps, p, p.Inputs[i], p.Outputs[i]); err != nil {
					errCh <- err
				}
			}
		}()
	}
	for i := range p.Inputs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(errCh)
	for err := range errCh {
		return err
	}
	return nil
}

// scanFootprints derives the per-pixel ellipse coefficients from the local
// coordinate derivatives, scan by scan. Pixels with fill coordinates, or in
// scans before StartScan, contribute no footprint.
func scanFootprints(cols, rows []float64, p EWAParams, rps int, deltaMax, distanceMax float64) []footprint {
	var fps []footprint
	fill := p.SwathFill
	at := func(r, c int) (float64, float64, bool) {
		i := r*p.SwathCols + c
		if isFill(cols[i], fill) || isFill(rows[i], fill) {
			return 0, 0, false
		}
		return cols[i], rows[i], true
	}

	for r := p.StartScan * rps; r < p.SwathRows; r++ {
		scanTop := (r / rps) * rps
		scanBot := scanTop + rps - 1
		if scanBot >= p.SwathRows {
			scanBot = p.SwathRows - 1
		}
		for c := 0; c < p.SwathCols; c++ {
			x, y, ok := at(r, c)
			if !ok {
				continue
			}
			// Along-scan derivative from horizontal neighbors.
			ux, uy, ok := derivative(at, r, c, p.SwathCols-1)
			if !ok {
				continue
			}
			// Cross-scan derivative stays inside the scan so ellipses
			// never straddle the inter-scan geometry discontinuity.
			vx, vy, ok := derivativeClamped(at, r, c, scanTop, scanBot)
			if !ok {
				continue
			}
			ux, uy = ux*distanceMax, uy*distanceMax
			vx, vy = vx*distanceMax, vy*distanceMax
			f := ux*vy - uy*vx
			if math.Abs(f) < 1e-12 {
				continue
			}
			ff := f * f
			fp := footprint{
				pixel: r*p.SwathCols + c,
				col:   x,
				row:   y,
				a:     (uy*uy + vy*vy) / ff,
				b:     -2 * (ux*uy + vx*vy) / ff,
				c:     (ux*ux + vx*vx) / ff,
				halfW: math.Min(math.Hypot(ux, vx), deltaMax),
				halfH: math.Min(math.Hypot(uy, vy), deltaMax),
			}
			fps = append(fps, fp)
		}
	}
	return fps
}

// derivative estimates d(coord)/d(index) along columns with a centered
// difference, one-sided at the swath edge.
func derivative(at func(int, int) (float64, float64, bool), r, c, maxC int) (float64, float64, bool) {
	c0, c1 := c-1, c+1
	if c0 < 0 {
		c0 = c
	}
	if c1 > maxC {
		c1 = c
	}
	if c0 == c1 {
		return 0, 0, false
	}
	x0, y0, ok0 := at(r, c0)
	x1, y1, ok1 := at(r, c1)
	if !ok0 || !ok1 {
		return 0, 0, false
	}
	span := float64(c1 - c0)
	return (x1 - x0) / span, (y1 - y0) / span, true
}

// derivativeClamped estimates d(coord)/d(scanline), clamped to one scan.
func derivativeClamped(at func(int, int) (float64, float64, bool), r, c, top, bot int) (float64, float64, bool) {
	r0, r1 := r-1, r+1
	if r0 < top {
		r0 = r
	}
	if r1 > bot {
		r1 = r
	}
	if r0 == r1 {
		// Single-row scan: use a unit-height footprint.
		return 0, 1, true
	}
	x0, y0, ok0 := at(r0, c)
	x1, y1, ok1 := at(r1, c)
	if !ok0 || !ok1 {
		return 0, 0, false
	}
	span := float64(r1 - r0)
	return (x1 - x0) / span, (y1 - y0) / span, true
}

func ewaProduct(fps []footprint, p EWAParams, in, out rastore.Array) error {
	vals, err := in.Load()
	if err != nil {
		return err
	}
	size := p.GridWidth * p.GridHeight
	sumW := make([]float64, size)
	sumWV := make([]float64, size)
	decay := -math.Log(1 / weightMin)

	for _, fp := range fps {
		v := vals[fp.pixel]
		if isFill(v, p.SwathFill) {
			continue
		}
		c0 := int(math.Floor(fp.col - fp.halfW))
		c1 := int(math.Ceil(fp.col + fp.halfW))
		r0 := int(math.Floor(fp.row - fp.halfH))
		r1 := int(math.Ceil(fp.row + fp.halfH))
		if c0 < 0 {
			c0 = 0
		}
		if r0 < 0 {
			r0 = 0
		}
		if c1 >= p.GridWidth {
			c1 = p.GridWidth - 1
		}
		if r1 >= p.GridHeight {
			r1 = p.GridHeight - 1
		}
		for gr := r0; gr <= r1; gr++ {
			dy := float64(gr) - fp.row
			for gc := c0; gc <= c1; gc++ {
				dx := float64(gc) - fp.col
				q := fp.a*dx*dx + fp.b*dx*dy + fp.c*dy*dy
				if q > 1 {
					continue
				}
				w := math.Exp(decay * q)
				j := gr*p.GridWidth + gc
				if p.MaximumWeight {
					if w > sumW[j] {
						sumW[j] = w
						sumWV[j] = w * v
					}
				} else {
					sumW[j] += w
					sumWV[j] += w * v
				}
			}
		}
	}

	grid := make([]float64, size)
	for j := range grid {
		if sumW[j] <= 0 {
			grid[j] = p.GridFill
			continue
		}
		grid[j] = sumWV[j] / sumW[j]
	}
	return out.Put(grid)
}
