package remap

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"swath2grid/grids"
	"swath2grid/rastore"
	"swath2grid/swath"
)

// stubProjector treats longitude/latitude as grid column/row directly, so
// fixtures control exactly where pixels land. It fits dynamic grids the
// same way the real projector does.
type stubProjector struct {
	calls int
}

func (p *stubProjector) Project(lon, lat rastore.Array, grid *grids.Definition, fill float64, outCols, outRows rastore.Array) (int, error) {
	p.calls++
	lonV, err := lon.Load()
	if err != nil {
		return 0, err
	}
	latV, err := lat.Load()
	if err != nil {
		return 0, err
	}
	if grid.IsDynamic() {
		maxC, maxR := 0.0, 0.0
		for i := range lonV {
			if lonV[i] == fill || latV[i] == fill {
				continue
			}
			maxC = math.Max(maxC, lonV[i])
			maxR = math.Max(maxR, latV[i])
		}
		grid.OriginX, grid.OriginY = 0, 0
		grid.Width = int(maxC) + 1
		grid.Height = int(maxR) + 1
	}

	cols := make([]float64, len(lonV))
	rows := make([]float64, len(latV))
	count := 0
	for i := range lonV {
		if lonV[i] == fill || latV[i] == fill {
			cols[i], rows[i] = fill, fill
			continue
		}
		cols[i], rows[i] = lonV[i], latV[i]
		if lonV[i] >= 0 && lonV[i] < float64(grid.Width) && latV[i] >= 0 && latV[i] < float64(grid.Height) {
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

const testFill = -999.0

// makeSwath builds a definition whose pixels land on distinct cells of a
// gridW x gridH grid, or entirely outside it when inGrid is false.
func makeSwath(t *testing.T, store rastore.Store, name string, rows, cols, gridW, gridH int, inGrid bool, limb float64) *swath.Definition {
	t.Helper()
	lon := make([]float64, rows*cols)
	lat := make([]float64, rows*cols)
	for i := range lon {
		if !inGrid {
			lon[i], lat[i] = -1000, -1000
			continue
		}
		lon[i] = float64(i % gridW)
		lat[i] = float64((i / gridW) % gridH)
	}
	lonA, err := store.Create(name+"_lon.dat", rastore.Float64, rows, cols)
	if err != nil {
		t.Fatal(err)
	}
	if err := lonA.Put(lon); err != nil {
		t.Fatal(err)
	}
	latA, err := store.Create(name+"_lat.dat", rastore.Float64, rows, cols)
	if err != nil {
		t.Fatal(err)
	}
	if err := latA.Put(lat); err != nil {
		t.Fatal(err)
	}
	return &swath.Definition{
		Name:           name,
		Longitude:      lonA,
		Latitude:       latA,
		Rows:           rows,
		Cols:           cols,
		DType:          rastore.Float64,
		Fill:           testFill,
		RowsPerScan:    2,
		LimbResolution: limb,
	}
}

func makeProduct(t *testing.T, store rastore.Store, name string, def *swath.Definition, value float64) *swath.Product {
	t.Helper()
	vals := make([]float64, def.Rows*def.Cols)
	for i := range vals {
		vals[i] = value
	}
	a, err := store.Create(name+".dat", rastore.Float64, def.Rows, def.Cols)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Put(vals); err != nil {
		t.Fatal(err)
	}
	return &swath.Product{
		Name:  name,
		Data:  a,
		DType: rastore.Float64,
		Fill:  testFill,
		Def:   def,
	}
}

func testRegistry(t *testing.T, gridW, gridH int, cellWidth float64) *grids.Registry {
	t.Helper()
	r := grids.NewRegistry()
	g, err := grids.New("test_grid", testLccProj, gridW, gridH, cellWidth, -cellWidth, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	r.Register(g)
	return r
}

func TestProjectCacheIdempotence(t *testing.T) {
	store := rastore.NewMemStore()
	reg := testRegistry(t, 10, 10, 1000)
	prj := &stubProjector{}
	o := New(store, reg, prj)

	def := makeSwath(t, store, "sw", 4, 8, 10, 10, true, 0)
	grid, err := reg.Resolve("test_grid")
	if err != nil {
		t.Fatal(err)
	}

	first, err := o.project(def, grid, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	second, err := o.project(def, grid, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if prj.calls != 1 {
		t.Errorf("projector ran %d times, want 1", prj.calls)
	}
	if first.cols.Path() != second.cols.Path() || first.rows.Path() != second.rows.Path() {
		t.Error("cache hit must return the identical projection references")
	}
}

func TestProjectFitGate(t *testing.T) {
	store := rastore.NewMemStore()
	reg := testRegistry(t, 100, 100, 1000)
	prj := &stubProjector{}
	o := New(store, reg, prj)

	def := makeSwath(t, store, "sw", 4, 8, 100, 100, false, 0)
	grid, err := reg.Resolve("test_grid")
	if err != nil {
		t.Fatal(err)
	}

	_, err = o.project(def, grid, DefaultOptions())
	var fitErr *DoesNotFitError
	if !errors.As(err, &fitErr) {
		t.Fatalf("got %v, want DoesNotFitError", err)
	}
	if fitErr.Fraction != 0 {
		t.Errorf("fraction = %v, want 0", fitErr.Fraction)
	}

	// Failures are never cached: a retry reruns the projector and the
	// discarded intermediates do not collide.
	_, err = o.project(def, grid, DefaultOptions())
	if !errors.As(err, &fitErr) {
		t.Fatalf("second call: got %v, want DoesNotFitError", err)
	}
	if prj.calls != 2 {
		t.Errorf("projector ran %d times, want 2", prj.calls)
	}

	colsPath, rowsPath := projPaths(def, grid)
	if store.Exists(colsPath) || store.Exists(rowsPath) {
		t.Error("failed projection must not leave intermediates behind")
	}
}

func TestProjectIntermediateExists(t *testing.T) {
	store := rastore.NewMemStore()
	reg := testRegistry(t, 10, 10, 1000)
	o := New(store, reg, &stubProjector{})

	def := makeSwath(t, store, "sw", 4, 8, 10, 10, true, 0)
	grid, err := reg.Resolve("test_grid")
	if err != nil {
		t.Fatal(err)
	}
	colsPath, _ := projPaths(def, grid)
	if _, err := store.Create(colsPath, rastore.Float64, def.Rows, def.Cols); err != nil {
		t.Fatal(err)
	}

	_, err = o.project(def, grid, DefaultOptions())
	if !errors.Is(err, ErrIntermediateExists) {
		t.Fatalf("got %v, want ErrIntermediateExists", err)
	}

	opts := DefaultOptions()
	opts.OverwriteExisting = true
	if _, err := o.project(def, grid, opts); err != nil {
		t.Fatalf("overwrite should succeed, got %v", err)
	}
}

func TestGeographicExtentGate(t *testing.T) {
	store := rastore.NewMemStore()
	reg := grids.NewRegistry()
	far, err := grids.New("far_geo", testLonlatProj, 10, 10, 1, -1, 100, 10)
	if err != nil {
		t.Fatal(err)
	}
	near, err := grids.New("near_geo", testLonlatProj, 10, 10, 1, -1, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	reg.Register(far)
	reg.Register(near)
	prj := &stubProjector{}
	o := New(store, reg, prj)

	// Geolocation spans lon 0..9, lat 0..3: disjoint from far_geo
	// (lon 100..110), overlapping near_geo (lon 0..10).
	def := makeSwath(t, store, "sw", 4, 8, 10, 10, true, 0)

	_, err = o.project(def, far, DefaultOptions())
	var fitErr *DoesNotFitError
	if !errors.As(err, &fitErr) {
		t.Fatalf("got %v, want DoesNotFitError", err)
	}
	if prj.calls != 0 {
		t.Errorf("projector ran %d times for a swath outside the grid extent", prj.calls)
	}
	colsPath, rowsPath := projPaths(def, far)
	if store.Exists(colsPath) || store.Exists(rowsPath) {
		t.Error("extent rejection must not create intermediates")
	}

	if _, err := o.project(def, near, DefaultOptions()); err != nil {
		t.Fatalf("overlapping geographic grid: %v", err)
	}
	if prj.calls != 1 {
		t.Errorf("projector ran %d times, want 1", prj.calls)
	}
}

func TestGroupBySwath(t *testing.T) {
	store := rastore.NewMemStore()
	defA := makeSwath(t, store, "a", 4, 8, 10, 10, true, 0)
	defB := makeSwath(t, store, "b", 4, 6, 10, 10, true, 0)

	scene := swath.NewScene()
	for _, p := range []*swath.Product{
		makeProduct(t, store, "p1", defA, 1),
		makeProduct(t, store, "p2", defB, 2),
		makeProduct(t, store, "p3", defA, 3),
	} {
		if err := scene.Add(p); err != nil {
			t.Fatal(err)
		}
	}

	groups := groupBySwath(scene)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	var names [][]string
	for _, g := range groups {
		var ns []string
		for _, p := range g.products {
			ns = append(ns, p.Name)
		}
		names = append(names, ns)
	}
	want := [][]string{{"p1", "p3"}, {"p2"}}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("got %v, want %v", names, want)
	}
}

func TestRemapSceneSharedSwath(t *testing.T) {
	// Two products sharing one 100x50 swath with limb resolution 20 km,
	// remapped with the nearest method onto a 200x200 grid with 5 km
	// cells: the distance bound derives to 2.0, the projector runs once,
	// and both outputs are 200x200.
	store := rastore.NewMemStore()
	reg := testRegistry(t, 200, 200, 5000)
	prj := &stubProjector{}
	o := New(store, reg, prj)

	def := makeSwath(t, store, "viirs_m", 100, 50, 200, 200, true, 20000)
	scene := swath.NewScene()
	for _, p := range []*swath.Product{
		makeProduct(t, store, "temperature", def, 250),
		makeProduct(t, store, "humidity", def, 80),
	} {
		if err := scene.Add(p); err != nil {
			t.Fatal(err)
		}
	}

	grid, err := reg.Resolve("test_grid")
	if err != nil {
		t.Fatal(err)
	}
	if got := deriveDistanceUpperBound(def, grid); got != 2.0 {
		t.Errorf("derived distance bound %v, want 2.0", got)
	}

	opts := DefaultOptions()
	opts.Method = MethodNearest
	gridded, results, err := o.RemapScene(scene, "test_grid", opts)
	if err != nil {
		t.Fatal(err)
	}
	if prj.calls != 1 {
		t.Errorf("projector ran %d times, want 1", prj.calls)
	}
	if !reflect.DeepEqual(gridded.Names(), []string{"temperature", "humidity"}) {
		t.Errorf("gridded products = %v", gridded.Names())
	}
	for _, res := range results {
		if res.Err != nil {
			t.Errorf("group %q failed: %v", res.Swath, res.Err)
		}
	}
	for _, p := range gridded.Products() {
		if p.Data.Rows() != 200 || p.Data.Cols() != 200 {
			t.Errorf("product %q shape %dx%d, want 200x200", p.Name, p.Data.Rows(), p.Data.Cols())
		}
		if !math.IsNaN(p.Fill) {
			t.Errorf("product %q fill = %v, want NaN", p.Name, p.Fill)
		}
	}

	// Pixel (0,0) projected onto cell (0,0), so the source value survives.
	temp, _ := gridded.Get("temperature")
	vals, err := temp.Data.Load()
	if err != nil {
		t.Fatal(err)
	}
	if vals[0] != 250 {
		t.Errorf("cell (0,0) = %v, want 250", vals[0])
	}
}

func TestPartialFailureIsolation(t *testing.T) {
	store := rastore.NewMemStore()
	reg := testRegistry(t, 10, 10, 1000)

	// The healthy swath has more columns, so the shared-grid warm-up
	// projects it, not the failing one.
	healthy := makeSwath(t, store, "good", 4, 8, 10, 10, true, 0)
	bad := makeSwath(t, store, "bad", 4, 6, 10, 10, false, 0)

	newScene := func() *swath.Scene {
		scene := swath.NewScene()
		for _, p := range []*swath.Product{
			makeProduct(t, store, "p1", healthy, 1),
			makeProduct(t, store, "p2", healthy, 2),
			makeProduct(t, store, "p3", bad, 3),
		} {
			if err := scene.Add(p); err != nil {
				t.Fatal(err)
			}
		}
		return scene
	}

	opts := DefaultOptions()
	opts.Method = MethodNearest
	o := New(store, reg, &stubProjector{})
	gridded, results, err := o.RemapScene(newScene(), "test_grid", opts)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(gridded.Names(), []string{"p1", "p2"}) {
		t.Errorf("gridded products = %v, want healthy group only", gridded.Names())
	}
	var failed []string
	for _, res := range results {
		if res.Err != nil {
			failed = append(failed, res.Swath)
			var fitErr *DoesNotFitError
			if !errors.As(res.Err, &fitErr) {
				t.Errorf("group %q: got %v, want DoesNotFitError", res.Swath, res.Err)
			}
		}
	}
	if !reflect.DeepEqual(failed, []string{"bad"}) {
		t.Errorf("failed groups = %v, want [bad]", failed)
	}

	// With exit-on-error the whole call raises and returns nothing.
	opts.ExitOnError = true
	o = New(store, reg, &stubProjector{})
	gridded, _, err = o.RemapScene(newScene(), "test_grid", opts)
	if err == nil {
		t.Fatal("expected error with ExitOnError")
	}
	if gridded != nil {
		t.Error("no scene should be returned with ExitOnError")
	}
}

func TestCleanupInvariant(t *testing.T) {
	run := func(keep bool) (*rastore.MemStore, *swath.Definition, *grids.Definition) {
		store := rastore.NewMemStore()
		reg := testRegistry(t, 10, 10, 1000)
		o := New(store, reg, &stubProjector{})

		def := makeSwath(t, store, "sw", 4, 8, 10, 10, true, 0)
		scene := swath.NewScene()
		if err := scene.Add(makeProduct(t, store, "p1", def, 5)); err != nil {
			t.Fatal(err)
		}
		opts := DefaultOptions()
		opts.Method = MethodNearest
		opts.KeepIntermediate = keep
		gridded, _, err := o.RemapScene(scene, "test_grid", opts)
		if err != nil {
			t.Fatal(err)
		}
		if gridded.Len() != 1 {
			t.Fatalf("got %d products, want 1", gridded.Len())
		}
		grid, err := reg.Resolve("test_grid")
		if err != nil {
			t.Fatal(err)
		}
		return store, def, grid
	}

	store, def, grid := run(false)
	colsPath, rowsPath := projPaths(def, grid)
	if store.Exists(colsPath) || store.Exists(rowsPath) {
		t.Error("projection intermediates must be removed when not keeping them")
	}
	if !store.Exists(outputPath(grid, "p1")) {
		t.Error("kernel output must survive cleanup")
	}

	store, def, grid = run(true)
	colsPath, rowsPath = projPaths(def, grid)
	if !store.Exists(colsPath) || !store.Exists(rowsPath) {
		t.Error("projection intermediates must remain with KeepIntermediate")
	}
}

func TestCleanupInvariantFileStore(t *testing.T) {
	store, err := rastore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	reg := testRegistry(t, 10, 10, 1000)
	o := New(store, reg, &stubProjector{})

	def := makeSwath(t, store, "sw", 4, 8, 10, 10, true, 0)
	scene := swath.NewScene()
	if err := scene.Add(makeProduct(t, store, "p1", def, 5)); err != nil {
		t.Fatal(err)
	}
	opts := DefaultOptions()
	opts.Method = MethodNearest
	gridded, _, err := o.RemapScene(scene, "test_grid", opts)
	if err != nil {
		t.Fatal(err)
	}
	if gridded.Len() != 1 {
		t.Fatalf("got %d products, want 1", gridded.Len())
	}

	grid, err := reg.Resolve("test_grid")
	if err != nil {
		t.Fatal(err)
	}
	colsPath, rowsPath := projPaths(def, grid)
	if store.Exists(colsPath) || store.Exists(rowsPath) {
		t.Error("projection intermediates must be deleted from disk")
	}
	if !store.Exists(outputPath(grid, "p1")) {
		t.Error("kernel output must survive cleanup")
	}
}

func TestWarmupFitFailureFailsCall(t *testing.T) {
	store := rastore.NewMemStore()
	reg := testRegistry(t, 100, 100, 1000)
	o := New(store, reg, &stubProjector{})

	def := makeSwath(t, store, "sw", 4, 8, 100, 100, false, 0)
	scene := swath.NewScene()
	if err := scene.Add(makeProduct(t, store, "p1", def, 1)); err != nil {
		t.Fatal(err)
	}

	gridded, _, err := o.RemapScene(scene, "test_grid", DefaultOptions())
	var fitErr *DoesNotFitError
	if !errors.As(err, &fitErr) {
		t.Fatalf("got %v, want DoesNotFitError", err)
	}
	if gridded != nil {
		t.Error("warm-up failure must produce no partial output")
	}
}

func TestRemapSceneUnknownGrid(t *testing.T) {
	store := rastore.NewMemStore()
	o := New(store, grids.NewRegistry(), &stubProjector{})

	def := makeSwath(t, store, "sw", 2, 2, 10, 10, true, 0)
	scene := swath.NewScene()
	if err := scene.Add(makeProduct(t, store, "p1", def, 1)); err != nil {
		t.Fatal(err)
	}

	_, _, err := o.RemapScene(scene, "no_such_grid", DefaultOptions())
	if !errors.Is(err, grids.ErrUnknownGrid) {
		t.Errorf("got %v, want ErrUnknownGrid", err)
	}
}

func TestRemapSceneUnknownMethod(t *testing.T) {
	store := rastore.NewMemStore()
	reg := testRegistry(t, 10, 10, 1000)
	o := New(store, reg, &stubProjector{})

	def := makeSwath(t, store, "sw", 2, 2, 10, 10, true, 0)
	scene := swath.NewScene()
	if err := scene.Add(makeProduct(t, store, "p1", def, 1)); err != nil {
		t.Fatal(err)
	}

	opts := DefaultOptions()
	opts.Method = Method(9)
	_, _, err := o.RemapScene(scene, "test_grid", opts)
	if !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("got %v, want ErrUnknownMethod", err)
	}
}

func TestUnsharedDynamicGrids(t *testing.T) {
	store := rastore.NewMemStore()
	reg := grids.NewRegistry()
	g, err := grids.New("dyn", testLccProj, 0, 0, 1, -1, math.NaN(), math.NaN())
	if err != nil {
		t.Fatal(err)
	}
	reg.Register(g)

	// Two swaths with different extents fit different grid sizes.
	small := makeSwath(t, store, "small", 4, 8, 8, 4, true, 0)
	large := makeSwath(t, store, "large", 8, 10, 10, 8, true, 0)

	newScene := func() *swath.Scene {
		scene := swath.NewScene()
		for _, p := range []*swath.Product{
			makeProduct(t, store, "p1", large, 1),
			makeProduct(t, store, "p2", small, 2),
		} {
			if err := scene.Add(p); err != nil {
				t.Fatal(err)
			}
		}
		return scene
	}

	opts := DefaultOptions()
	opts.Method = MethodNearest

	// Shared: both groups use the grid fit from the larger swath.
	o := New(store, reg, &stubProjector{})
	gridded, _, err := o.RemapScene(newScene(), "dyn", opts)
	if err != nil {
		t.Fatal(err)
	}
	p1, _ := gridded.Get("p1")
	p2, _ := gridded.Get("p2")
	if p1.Grid != p2.Grid {
		t.Error("shared mode must reuse one grid definition across groups")
	}

	// Unshared: each group fits its own clone.
	opts.ShareDynamicGrids = false
	o = New(store, reg, &stubProjector{})
	gridded, _, err = o.RemapScene(newScene(), "dyn", opts)
	if err != nil {
		t.Fatal(err)
	}
	p1, _ = gridded.Get("p1")
	p2, _ = gridded.Get("p2")
	if p1.Grid == p2.Grid || p1.Grid.Key() == p2.Grid.Key() {
		t.Error("unshared mode must give each group its own grid clone")
	}
	if p1.Grid.Width == p2.Grid.Width && p1.Grid.Height == p2.Grid.Height {
		t.Error("per-group fitting should produce different grid sizes here")
	}
	// The registry definition stays pristine either way.
	if !g.IsDynamic() {
		t.Error("registry grid must not be mutated by fitting")
	}
}
