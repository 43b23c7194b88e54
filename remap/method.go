package remap

import "fmt"

// Method selects the resampling strategy. The set is closed: elliptical
// weighted averaging for scanning instruments, nearest-neighbor for
// instruments without well-defined scan ellipses.
type Method int

const (
	MethodEWA Method = iota
	MethodNearest
)

func (m Method) String() string {
	switch m {
	case MethodEWA:
		return "ewa"
	case MethodNearest:
		return "nearest"
	}
	return fmt.Sprintf("method(%d)", int(m))
}

func (m Method) valid() bool {
	return m == MethodEWA || m == MethodNearest
}

// ParseMethod maps a method name from the command line onto the enum.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "ewa":
		return MethodEWA, nil
	case "nearest":
		return MethodNearest, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

// Options tunes one RemapScene call.
type Options struct {
	Method Method

	// KeepIntermediate leaves projection and scratch files on disk.
	KeepIntermediate bool
	// OverwriteExisting permits clobbering a colliding intermediate file
	// instead of failing the group.
	OverwriteExisting bool
	// ExitOnError aborts the whole call on the first group failure instead
	// of continuing with the remaining groups.
	ExitOnError bool
	// ShareDynamicGrids resolves dynamic grid parameters once, from the
	// highest-resolution swath, and shares them across all groups. When
	// false each group gets its own grid clone; the clone changes the
	// projection cache key, so no cross-group cache hits are possible in
	// that mode even for identical swath and grid names.
	ShareDynamicGrids bool

	// EWA tuning. Zero values derive from swath/grid metadata or fall back
	// to kernel defaults.
	WeightDeltaMax    float64
	WeightDistanceMax float64
	MaximumWeight     bool
	// Workers bounds the EWA kernel's per-product fan-out; zero runs the
	// kernel synchronously on the calling goroutine.
	Workers int

	// Nearest tuning. Zero derives from swath/grid metadata.
	DistanceUpperBound float64
	Interp1D           string
}

// DefaultOptions matches the defaults the command line exposes.
func DefaultOptions() Options {
	return Options{
		Method:            MethodEWA,
		ShareDynamicGrids: true,
	}
}
