package swath

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"swath2grid/rastore"
)

// Scene manifests name the flat binary arrays produced by the per-instrument
// frontends together with enough metadata to open them.

type manifestSwath struct {
	Name           string   `json:"name"`
	Longitude      string   `json:"longitude"`
	Latitude       string   `json:"latitude"`
	Rows           int      `json:"rows"`
	Cols           int      `json:"cols"`
	DType          string   `json:"dtype"`
	Fill           float64  `json:"fill_value"`
	RowsPerScan    int      `json:"rows_per_scan"`
	LimbResolution float64  `json:"limb_resolution"`
	SourceFiles    []string `json:"source_files"`
}

type manifestProduct struct {
	Name        string  `json:"name"`
	Swath       string  `json:"swath"`
	File        string  `json:"file"`
	DType       string  `json:"dtype"`
	Fill        float64 `json:"fill_value"`
	Description string  `json:"description"`
	Units       string  `json:"units"`
	DataKind    string  `json:"data_kind"`
	Satellite   string  `json:"satellite"`
	Instrument  string  `json:"instrument"`
	BeginTime   string  `json:"begin_time"`
	EndTime     string  `json:"end_time"`
}

type manifest struct {
	Swaths   []manifestSwath   `json:"swaths"`
	Products []manifestProduct `json:"products"`
}

// LoadScene reads a scene manifest and opens every referenced array through
// the store. Array paths in the manifest are store keys.
func LoadScene(path string, store rastore.Store) (*Scene, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("scene manifest %s: %w", path, err)
	}

	defs := map[string]*Definition{}
	for _, ms := range m.Swaths {
		dt, err := rastore.ParseDType(ms.DType)
		if err != nil {
			return nil, fmt.Errorf("swath %q: %w", ms.Name, err)
		}
		lon, err := store.Open(ms.Longitude, dt, ms.Rows, ms.Cols)
		if err != nil {
			return nil, fmt.Errorf("swath %q longitude: %w", ms.Name, err)
		}
		lat, err := store.Open(ms.Latitude, dt, ms.Rows, ms.Cols)
		if err != nil {
			return nil, fmt.Errorf("swath %q latitude: %w", ms.Name, err)
		}
		def := &Definition{
			Name:           ms.Name,
			Longitude:      lon,
			Latitude:       lat,
			Rows:           ms.Rows,
			Cols:           ms.Cols,
			DType:          dt,
			Fill:           ms.Fill,
			RowsPerScan:    ms.RowsPerScan,
			LimbResolution: ms.LimbResolution,
			SourceFiles:    ms.SourceFiles,
		}
		if err := def.Validate(); err != nil {
			return nil, err
		}
		defs[ms.Name] = def
	}

	scene := NewScene()
	for _, mp := range m.Products {
		def, ok := defs[mp.Swath]
		if !ok {
			return nil, fmt.Errorf("product %q references unknown swath %q", mp.Name, mp.Swath)
		}
		dt, err := rastore.ParseDType(mp.DType)
		if err != nil {
			return nil, fmt.Errorf("product %q: %w", mp.Name, err)
		}
		data, err := store.Open(mp.File, dt, def.Rows, def.Cols)
		if err != nil {
			return nil, fmt.Errorf("product %q data: %w", mp.Name, err)
		}
		p := &Product{
			Name:        mp.Name,
			Description: mp.Description,
			Units:       mp.Units,
			DataKind:    mp.DataKind,
			Satellite:   mp.Satellite,
			Instrument:  mp.Instrument,
			Begin:       parseTime(mp.BeginTime),
			End:         parseTime(mp.EndTime),
			Data:        data,
			DType:       dt,
			Fill:        mp.Fill,
			Def:         def,
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if err := scene.Add(p); err != nil {
			return nil, err
		}
	}
	return scene, nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
