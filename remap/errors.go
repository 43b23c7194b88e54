package remap

import (
	"errors"
	"fmt"
)

const (
	// GridCoverageThreshold is the minimum fraction of grid cells the
	// projected swath must cover before resampling is attempted. Inherited
	// constant; tunable, no stated derivation.
	GridCoverageThreshold = 0.05

	// DefaultDistanceUpperBound is the nearest-neighbor search radius in
	// grid cells when the swath's limb resolution is unknown. Inherited
	// constant; tunable.
	DefaultDistanceUpperBound = 3.0

	defaultRowsPerScan = 2

	metersPerDegree = 111321.0
)

// ErrUnknownMethod means the requested resampling method is not one of the
// supported kinds. Fatal for the whole call, checked before any work.
var ErrUnknownMethod = errors.New("remap: unknown resampling method")

// ErrIntermediateExists means a projection intermediate already exists on
// disk and overwriting was not permitted. Fatal for the group.
var ErrIntermediateExists = errors.New("remap: intermediate file already exists")

// DoesNotFitError reports that too little of the projected swath landed
// inside the target grid. Fatal for the group, or for the whole call when
// raised during the shared-grid warm-up.
type DoesNotFitError struct {
	Fraction float64
}

func (e *DoesNotFitError) Error() string {
	return fmt.Sprintf("remap: data covers only %.2f%% of the grid (minimum %.0f%%)",
		e.Fraction*100, GridCoverageThreshold*100)
}

// KernelError wraps a resampling kernel failure. Fatal for the group.
type KernelError struct {
	Method Method
	Err    error
}

func (e *KernelError) Error() string {
	return fmt.Sprintf("remap: %s kernel: %v", e.Method, e.Err)
}

func (e *KernelError) Unwrap() error { return e.Err }
