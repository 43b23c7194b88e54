package gridio

import (
	"fmt"
	"math"
	"os"

	"github.com/sirupsen/logrus"

	"swath2grid/swath"
)

// WriteCSV dumps every non-fill grid cell as a row,col,value line.
func WriteCSV(p *swath.GriddedProduct, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logrus.Error(err)
		}
	}()

	if _, err := f.WriteString("row,col,value\n"); err != nil {
		return err
	}

	vals, err := p.Data.Load()
	if err != nil {
		return err
	}
	width := p.Grid.Width
	written := 0
	for i, v := range vals {
		if math.IsNaN(v) || v == p.Fill {
			continue
		}
		if written%100000 == 0 {
			logrus.Infof("writing cell %d of %q", i, p.Name)
		}
		if _, err := f.WriteString(fmt.Sprintf("%d,%d,%v\n", i/width, i%width, v)); err != nil {
			return err
		}
		written++
	}
	return f.Sync()
}
