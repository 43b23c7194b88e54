package grids

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	lonlatProj = "+proj=longlat +datum=WGS84 +no_defs"
	lccProj    = "+proj=lcc +datum=WGS84 +ellps=WGS84 +lat_0=25 +lat_1=25 +lon_0=-95 +units=m +no_defs"
	stereProj  = "+proj=stere +datum=WGS84 +ellps=WGS84 +lat_0=90 +lat_ts=60 +lon_0=-150 +units=m +no_defs"
	mercProj   = "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +no_defs"
)

// Registry resolves grid names to definitions. It ships with a small set of
// built-in grids and can load more from a YAML file.
type Registry struct {
	defs map[string]*Definition
}

func NewRegistry() *Registry {
	r := &Registry{defs: map[string]*Definition{}}
	nan := math.NaN()
	builtins := []struct {
		name   string
		proj4  string
		w, h   int
		cw, ch float64
		ox, oy float64
	}{
		// Dynamic grids: origin and size fit from swath geometry.
		{"wgs84_fit", lonlatProj, 0, 0, 0.0057, -0.0057, nan, nan},
		{"lcc_fit", lccProj, 0, 0, 1000, -1000, nan, nan},
		{"polar_fit", stereProj, 0, 0, 1000, -1000, nan, nan},
		// Static continental mercator, 4 km cells.
		{"merc_4km", mercProj, 5000, 4000, 4000, -4000, -2e7, 1.6e7},
	}
	for _, b := range builtins {
		d, err := New(b.name, b.proj4, b.w, b.h, b.cw, b.ch, b.ox, b.oy)
		if err != nil {
			// Built-in proj4 strings are fixed at compile time.
			panic(err)
		}
		r.defs[b.name] = d
	}
	return r
}

// Register adds or replaces a definition.
func (r *Registry) Register(d *Definition) {
	r.defs[d.Name] = d
}

// Resolve looks a grid up by name.
func (r *Registry) Resolve(name string) (*Definition, error) {
	d, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGrid, name)
	}
	return d, nil
}

// gridSpec is the YAML shape of one user-supplied grid.
type gridSpec struct {
	Proj4      string   `mapstructure:"proj4"`
	Width      int      `mapstructure:"width"`
	Height     int      `mapstructure:"height"`
	CellWidth  float64  `mapstructure:"cell_width"`
	CellHeight float64  `mapstructure:"cell_height"`
	OriginX    *float64 `mapstructure:"origin_x"`
	OriginY    *float64 `mapstructure:"origin_y"`
}

// LoadFile reads grid definitions from a YAML file keyed under "grids" and
// registers them, replacing built-ins with the same name.
func (r *Registry) LoadFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("grids: reading %s: %w", path, err)
	}
	specs := map[string]gridSpec{}
	if err := v.UnmarshalKey("grids", &specs); err != nil {
		return fmt.Errorf("grids: parsing %s: %w", path, err)
	}
	for name, s := range specs {
		ox, oy := math.NaN(), math.NaN()
		if s.OriginX != nil {
			ox = *s.OriginX
		}
		if s.OriginY != nil {
			oy = *s.OriginY
		}
		d, err := New(name, s.Proj4, s.Width, s.Height, s.CellWidth, s.CellHeight, ox, oy)
		if err != nil {
			return err
		}
		r.Register(d)
		logrus.Debugf("registered grid %q from %s", name, path)
	}
	return nil
}
