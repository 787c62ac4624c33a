// Package lidardrv defines the LIDAR hardware collaborator contract
// and a serial-framed reference implementation for a spinning
// single-echo rangefinder.
package lidardrv

import "context"

// Point is one raw range/bearing sample in device units: range in
// millimeters, bearing in the device's own angular unit (the group
// layer converts to robot-frame meters/radians once it knows the
// device's mounting pose).
type Point struct {
	Range   uint16
	Bearing uint16
}

// Scan is one batch of points read off the device, always tagged with
// the section index the device itself assigns (most spinning LIDARs
// report sub-sections of a full rotation as they complete, rather than
// waiting for a full 360°).
type Scan struct {
	Section int
	Points  []Point
}

// FilterFunc is a fast in/out predicate over a raw point, used to
// exclude the angular window where the robot's own body would
// otherwise register as an obstacle.
type FilterFunc func(p Point) bool

// Driver is the LIDAR hardware collaborator, owned exclusively by the
// group supervisor goroutine that opened it.
type Driver interface {
	// Scans returns at once with a channel delivering one Scan per
	// completed section; the channel is closed when ctx is done or the
	// link drops.
	Scans(ctx context.Context) (<-chan Scan, error)
	// SetFilter installs the angular exclusion predicate appropriate
	// to this device's physical mounting.
	SetFilter(fn FilterFunc)
	// Identifier returns a short, stable, device-specific identifier
	// used for index stability across reconnects.
	Identifier() string
	// Close releases the underlying transport.
	Close() error
}
