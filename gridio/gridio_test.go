package gridio

import (
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/parquet-go/parquet-go"

	"swath2grid/grids"
	"swath2grid/rastore"
	"swath2grid/swath"
)

const lonlatProj = "+proj=longlat +datum=WGS84 +no_defs"

// testProduct builds a 2x3 gridded product with two NaN fill cells.
func testProduct(t *testing.T) *swath.GriddedProduct {
	t.Helper()
	grid, err := grids.New("t", lonlatProj, 3, 2, 1, -1, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	store := rastore.NewMemStore()
	a, err := store.Create("out", rastore.Float64, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	nan := math.NaN()
	if err := a.Put([]float64{1, nan, 3, 4, 5, nan}); err != nil {
		t.Fatal(err)
	}
	return &swath.GriddedProduct{
		Name:  "test_product",
		Data:  a,
		DType: rastore.Float64,
		Fill:  nan,
		Grid:  grid,
	}
}

func TestWriteBinary(t *testing.T) {
	p := testProduct(t)
	path := filepath.Join(t.TempDir(), "out.dat")
	if err := WriteBinary(p, path); err != nil {
		t.Fatal(err)
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	vals, err := rastore.Decode(buf, rastore.Float64)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{1, math.NaN(), 3, 4, 5, math.NaN()}
	if len(vals) != len(want) {
		t.Fatalf("got %d values, want %d", len(vals), len(want))
	}
	for i := range want {
		if math.IsNaN(want[i]) != math.IsNaN(vals[i]) || (!math.IsNaN(want[i]) && vals[i] != want[i]) {
			t.Errorf("value %d = %v, want %v", i, vals[i], want[i])
		}
	}
}

func TestWriteCSV(t *testing.T) {
	p := testProduct(t)
	path := filepath.Join(t.TempDir(), "out.csv")
	if err := WriteCSV(p, path); err != nil {
		t.Fatal(err)
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Split(strings.TrimSpace(string(buf)), "\n")
	want := []string{"row,col,value", "0,0,1", "0,2,3", "1,0,4", "1,1,5"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("csv lines = %v, want %v", got, want)
	}
}

func TestWriteParquet(t *testing.T) {
	p := testProduct(t)
	path := filepath.Join(t.TempDir(), "out.parquet")
	if err := WriteParquet(p, path); err != nil {
		t.Fatal(err)
	}

	rows, err := parquet.ReadFile[cellRow](path)
	if err != nil {
		t.Fatal(err)
	}
	want := []cellRow{
		{Row: 0, Col: 0, Value: 1},
		{Row: 0, Col: 2, Value: 3},
		{Row: 1, Col: 0, Value: 4},
		{Row: 1, Col: 1, Value: 5},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}
}

func TestWriteGeoTIFF(t *testing.T) {
	p := testProduct(t)
	path := filepath.Join(t.TempDir(), "out.tif")
	if err := WriteGeoTIFF(p, path); err != nil {
		t.Fatal(err)
	}

	godal.RegisterAll()
	ds, err := godal.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := ds.Close(); err != nil {
			t.Error(err)
		}
	}()

	st := ds.Structure()
	if st.SizeX != 3 || st.SizeY != 2 {
		t.Errorf("size = %dx%d, want 3x2", st.SizeX, st.SizeY)
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		t.Fatal(err)
	}
	if gt != p.Grid.GeoTransform() {
		t.Errorf("geotransform = %v, want %v", gt, p.Grid.GeoTransform())
	}

	band := ds.Bands()[0]
	nodata, ok := band.NoData()
	if !ok || nodata != geotiffNoData {
		t.Errorf("nodata = %v (%v), want %v", nodata, ok, geotiffNoData)
	}
	buf := make([]float32, 6)
	if err := band.Read(0, 0, buf, 3, 2); err != nil {
		t.Fatal(err)
	}
	want := []float32{1, geotiffNoData, 3, 4, 5, geotiffNoData}
	if !reflect.DeepEqual(buf, want) {
		t.Errorf("pixels = %v, want %v", buf, want)
	}
}
