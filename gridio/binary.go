// Package gridio writes gridded products out for downstream consumers:
// flat binary, GeoTIFF, Parquet, and CSV.
package gridio

import (
	"os"

	"swath2grid/rastore"
	"swath2grid/swath"
)

// WriteBinary dumps the product as a headerless row-major binary array in
// its native data type, the same layout the intermediate store uses, so
// serializers can memory-map it with only the in-memory metadata.
func WriteBinary(p *swath.GriddedProduct, path string) error {
	vals, err := p.Data.Load()
	if err != nil {
		return err
	}
	return os.WriteFile(path, rastore.Encode(vals, p.DType), 0o644)
}
