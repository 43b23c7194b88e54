package gridio

import (
	"math"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/sirupsen/logrus"

	"swath2grid/swath"
)

const rowBufferSize = 1 << 16

type cellRow struct {
	Row   int32   `parquet:"row, type=INT32"`
	Col   int32   `parquet:"col, type=INT32"`
	Value float64 `parquet:"value, type=DOUBLE"`
}

// WriteParquet dumps every non-fill grid cell as a (row, col, value) record,
// flushing in fixed-size batches to bound memory on large grids.
func WriteParquet(p *swath.GriddedProduct, path string) error {
	vals, err := p.Data.Load()
	if err != nil {
		return err
	}

	output, err := os.Create(path)
	if err != nil {
		return err
	}
	schema := parquet.SchemaOf(new(cellRow))
	writer := parquet.NewGenericWriter[cellRow](output, schema, parquet.Compression(&parquet.Snappy))
	defer func() {
		if err := writer.Close(); err != nil {
			logrus.Error(err)
		}
		if err := output.Close(); err != nil {
			logrus.Error(err)
		}
	}()

	width := p.Grid.Width
	buf := make([]cellRow, 0, rowBufferSize)
	for i, v := range vals {
		if math.IsNaN(v) || v == p.Fill {
			continue
		}
		buf = append(buf, cellRow{Row: int32(i / width), Col: int32(i % width), Value: v})
		if len(buf) == rowBufferSize {
			if _, err := writer.Write(buf); err != nil {
				return err
			}
			if err := writer.Flush(); err != nil {
				return err
			}
			buf = buf[:0]
		}
	}
	if len(buf) > 0 {
		if _, err := writer.Write(buf); err != nil {
			return err
		}
	}
	return nil
}
