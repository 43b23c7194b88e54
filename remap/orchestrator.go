// Package remap drives swath-to-grid resampling: it groups products by
// shared geolocation, caches the expensive geolocation projection per
// (swath, grid) pair, gates on grid coverage, derives kernel parameters,
// and isolates per-group failures.
package remap

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/s2"
	"github.com/sirupsen/logrus"

	"swath2grid/grids"
	"swath2grid/project"
	"swath2grid/rastore"
	"swath2grid/resample"
	"swath2grid/swath"
)

type projKey struct {
	swath string
	grid  string
}

type projection struct {
	cols rastore.Array
	rows rastore.Array
}

// Orchestrator owns one projection cache for its lifetime. It is not safe
// for concurrent RemapScene calls; create one per pipeline run.
type Orchestrator struct {
	store rastore.Store
	reg   *grids.Registry
	prj   project.Projector
	cache map[projKey]projection
}

func New(store rastore.Store, reg *grids.Registry, prj project.Projector) *Orchestrator {
	return &Orchestrator{
		store: store,
		reg:   reg,
		prj:   prj,
		cache: map[projKey]projection{},
	}
}

// GroupResult records the outcome for one geolocation group. Err is nil for
// groups whose products all made it into the output scene.
type GroupResult struct {
	Swath    string
	Products []string
	Err      error
}

// RemapScene resamples every product in the scene onto the named grid.
// Group failures are isolated: unless opts.ExitOnError is set, a failing
// group contributes nothing and the remaining groups still run, so the
// returned scene may hold fewer products than requested (possibly zero).
// Whole-call failures are an unknown method or grid, or a coverage failure
// during the shared-grid warm-up.
func (o *Orchestrator) RemapScene(scene *swath.Scene, gridName string, opts Options) (*swath.GriddedScene, []GroupResult, error) {
	if !opts.Method.valid() {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownMethod, int(opts.Method))
	}
	if scene == nil || scene.Len() == 0 {
		return nil, nil, errors.New("remap: empty scene")
	}
	grid, err := o.reg.Resolve(gridName)
	if err != nil {
		return nil, nil, err
	}
	// Dynamic grid parameters are fit in place by the projector, so work
	// on a copy and leave the registry definition pristine.
	if grid.IsDynamic() && opts.ShareDynamicGrids {
		grid = grid.Clone()
	}

	groups := groupBySwath(scene)

	if opts.ShareDynamicGrids {
		// Warm the cache and run the coverage gates once, against the
		// finest-resolution geolocation. A failure here fails the whole
		// call before any output exists.
		if _, err := o.project(finestSwath(scene), grid, opts); err != nil {
			return nil, nil, err
		}
	}

	out := swath.NewGriddedScene()
	results := make([]GroupResult, 0, len(groups))
	for _, g := range groups {
		ggrid := grid
		if !opts.ShareDynamicGrids {
			ggrid = grid.Clone()
		}
		res := GroupResult{Swath: g.def.Name}
		for _, p := range g.products {
			res.Products = append(res.Products, p.Name)
		}

		gridded, err := o.remapGroup(g.def, g.products, ggrid, opts)
		if err != nil {
			res.Err = err
			results = append(results, res)
			if opts.ExitOnError {
				return nil, results, err
			}
			logrus.Warnf("skipping swath %q on grid %q: %v", g.def.Name, gridName, err)
			continue
		}
		for _, gp := range gridded {
			if err := out.Add(gp); err != nil {
				return nil, results, err
			}
		}
		results = append(results, res)
		logrus.Infof("remapped %d products from swath %q onto grid %q (%s)",
			len(gridded), g.def.Name, gridName, opts.Method)
	}
	return out, results, nil
}

type group struct {
	def      *swath.Definition
	products []*swath.Product
}

// groupBySwath partitions products by geolocation so each projection is
// computed once per group, preserving scene order.
func groupBySwath(scene *swath.Scene) []*group {
	byName := map[string]*group{}
	var ordered []*group
	for _, p := range scene.Products() {
		g, ok := byName[p.Def.Name]
		if !ok {
			g = &group{def: p.Def}
			byName[p.Def.Name] = g
			ordered = append(ordered, g)
		}
		g.products = append(g.products, p)
	}
	return ordered
}

// finestSwath picks the definition with the most columns per scan line, a
// proxy for the finest ground resolution.
func finestSwath(scene *swath.Scene) *swath.Definition {
	var best *swath.Definition
	for _, p := range scene.Products() {
		if best == nil || p.Def.Cols > best.Cols {
			best = p.Def
		}
	}
	return best
}

func projPaths(def *swath.Definition, grid *grids.Definition) (string, string) {
	return fmt.Sprintf("proj_%s_%s_cols.dat", grid.Key(), def.Name),
		fmt.Sprintf("proj_%s_%s_rows.dat", grid.Key(), def.Name)
}

func outputPath(grid *grids.Definition, productName string) string {
	return fmt.Sprintf("grid_%s_%s.dat", grid.Key(), productName)
}

// gridRect returns the lat/lng rectangle a static geographic grid covers.
// Reports false for dynamic or projected grids, and for grids spanning half
// the globe or more, where the two-corner rectangle is ambiguous.
func gridRect(grid *grids.Definition) (s2.Rect, bool) {
	if grid.IsDynamic() || !grid.IsGeographic() {
		return s2.EmptyRect(), false
	}
	lonSpan := float64(grid.Width) * grid.CellWidth
	if math.Abs(lonSpan) >= 180 {
		return s2.EmptyRect(), false
	}
	rect := s2.EmptyRect().AddPoint(s2.LatLngFromDegrees(grid.OriginY, grid.OriginX))
	return rect.AddPoint(s2.LatLngFromDegrees(
		grid.OriginY+float64(grid.Height)*grid.CellHeight,
		grid.OriginX+lonSpan)), true
}

// project returns the cached projection for (swath, grid) or computes it.
// At most one projector run happens per distinct key for the lifetime of
// the Orchestrator; coverage failures are never cached.
func (o *Orchestrator) project(def *swath.Definition, grid *grids.Definition, opts Options) (projection, error) {
	key := projKey{swath: def.Name, grid: grid.Key()}
	if e, ok := o.cache[key]; ok {
		logrus.Debugf("projection cache hit for swath %q on grid %q", def.Name, grid.Key())
		return e, nil
	}

	// A static geographic grid's extent is known up front, so a swath whose
	// bounding rectangle cannot touch it is rejected before the per-pixel
	// transform runs.
	if gr, ok := gridRect(grid); ok {
		rect, err := def.BoundingRect()
		if err != nil {
			return projection{}, err
		}
		if !rect.IsEmpty() && !rect.Intersects(gr) {
			logrus.Debugf("swath %q (lat %v lng %v) misses grid %q entirely",
				def.Name, rect.Lat, rect.Lng, grid.Key())
			return projection{}, &DoesNotFitError{Fraction: 0}
		}
	}

	colsPath, rowsPath := projPaths(def, grid)
	for _, path := range []string{colsPath, rowsPath} {
		if o.store.Exists(path) {
			if !opts.OverwriteExisting {
				return projection{}, fmt.Errorf("%w: %s", ErrIntermediateExists, path)
			}
			logrus.Warnf("overwriting existing intermediate %s", path)
		}
	}

	cols, err := o.store.Create(colsPath, def.DType, def.Rows, def.Cols)
	if err != nil {
		return projection{}, err
	}
	rows, err := o.store.Create(rowsPath, def.DType, def.Rows, def.Cols)
	if err != nil {
		o.removeArrays(cols)
		return projection{}, err
	}

	count, err := o.prj.Project(def.Longitude, def.Latitude, grid, def.Fill, cols, rows)
	if err != nil {
		o.removeArrays(cols, rows)
		return projection{}, err
	}
	fraction := float64(count) / float64(grid.Width*grid.Height)
	if fraction < GridCoverageThreshold {
		o.removeArrays(cols, rows)
		return projection{}, &DoesNotFitError{Fraction: fraction}
	}

	e := projection{cols: cols, rows: rows}
	o.cache[key] = e
	return e, nil
}

// remapGroup runs one geolocation group end to end: projection (cached),
// parameter derivation, one kernel dispatch covering every product, and
// cleanup of the group's intermediates on the way out.
func (o *Orchestrator) remapGroup(def *swath.Definition, products []*swath.Product, grid *grids.Definition, opts Options) ([]*swath.GriddedProduct, error) {
	prj, err := o.project(def, grid, opts)
	if err != nil {
		return nil, err
	}
	if !opts.KeepIntermediate {
		// Projection files leave disk once the group is done, success or
		// not; the cache entry itself stays so the key is never recomputed.
		defer o.removeArrays(prj.cols, prj.rows)
	}

	outs := make([]rastore.Array, len(products))
	for i, p := range products {
		outs[i], err = o.store.Create(outputPath(grid, p.Name), p.DType, grid.Height, grid.Width)
		if err != nil {
			o.removeArrays(outs[:i]...)
			return nil, err
		}
	}

	switch opts.Method {
	case MethodEWA:
		err = o.runEWA(def, products, prj, grid, outs, opts)
	case MethodNearest:
		err = o.runNearest(def, products, prj, grid, outs, opts)
	}
	if err != nil {
		if !opts.KeepIntermediate {
			o.removeArrays(outs...)
		}
		return nil, &KernelError{Method: opts.Method, Err: err}
	}

	gridded := make([]*swath.GriddedProduct, len(products))
	for i, p := range products {
		gridded[i] = &swath.GriddedProduct{
			Name:        p.Name,
			Description: p.Description,
			Units:       p.Units,
			DataKind:    p.DataKind,
			Satellite:   p.Satellite,
			Instrument:  p.Instrument,
			Begin:       p.Begin,
			End:         p.End,
			Data:        outs[i],
			DType:       p.DType,
			Fill:        math.NaN(),
			Grid:        grid,
		}
	}
	return gridded, nil
}

func (o *Orchestrator) runEWA(def *swath.Definition, products []*swath.Product, prj projection, grid *grids.Definition, outs []rastore.Array, opts Options) error {
	deltaMax := opts.WeightDeltaMax
	if deltaMax <= 0 {
		// Zero stays zero when the limb resolution is unknown, selecting
		// the kernel's own default.
		deltaMax, _ = deriveWeightDeltaMax(def, grid)
	}

	inputs := make([]rastore.Array, len(products))
	for i, p := range products {
		inputs[i] = p.Data
	}
	return resample.EWA(resample.EWAParams{
		SwathRows:         def.Rows,
		SwathCols:         def.Cols,
		RowsPerScan:       rowsPerScan(def),
		StartScan:         0,
		Cols:              prj.cols,
		Rows:              prj.rows,
		Inputs:            inputs,
		Outputs:           outs,
		GridWidth:         grid.Width,
		GridHeight:        grid.Height,
		SwathFill:         def.Fill,
		GridFill:          math.NaN(),
		WeightDeltaMax:    deltaMax,
		WeightDistanceMax: opts.WeightDistanceMax,
		MaximumWeight:     opts.MaximumWeight,
		Workers:           opts.Workers,
	})
}

func (o *Orchestrator) runNearest(def *swath.Definition, products []*swath.Product, prj projection, grid *grids.Definition, outs []rastore.Array, opts Options) error {
	bound := opts.DistanceUpperBound
	if bound <= 0 {
		bound = deriveDistanceUpperBound(def, grid)
	}
	interp := normalizeInterp1D(opts.Interp1D)
	cols, err := prj.cols.Load()
	if err != nil {
		return err
	}
	rows, err := prj.rows.Load()
	if err != nil {
		return err
	}

	for i, p := range products {
		vals, err := p.Data.Load()
		if err != nil {
			return err
		}
		// Swath no-data becomes the grid's uniform sentinel up front so
		// matched fill pixels come out as fill, not as a magic number.
		for j, v := range vals {
			if v == p.Fill || (math.IsNaN(p.Fill) && math.IsNaN(v)) {
				vals[j] = math.NaN()
			}
		}
		out, err := resample.Nearest(resample.NearestParams{
			Cols:               cols,
			Rows:               rows,
			CoordFill:          def.Fill,
			Values:             vals,
			Fill:               math.NaN(),
			GridWidth:          grid.Width,
			GridHeight:         grid.Height,
			DistanceUpperBound: bound,
			Interp1D:           interp,
		})
		if err != nil {
			return err
		}
		if err := outs[i].Put(out); err != nil {
			return err
		}
	}
	return nil
}

// removeArrays deletes intermediates from disk. Failed deletions are
// logged, not escalated.
func (o *Orchestrator) removeArrays(arrays ...rastore.Array) {
	for _, a := range arrays {
		if a == nil {
			continue
		}
		if err := o.store.Remove(a.Path()); err != nil {
			logrus.Warnf("could not remove intermediate %s: %v", a.Path(), err)
		}
	}
}
