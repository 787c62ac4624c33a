// Package chassisdrv defines the chassis hardware collaborator
// contract and ships two implementations: a real serial-framed driver
// for a differential-drive controller board, and a simulated driver
// used by tests and by the bench CLI.
package chassisdrv

import (
	"context"
	"time"

	"github.com/itohio/groundctl/internal/physical"
)

// Status mirrors the board's reported state: whether the e-stop /
// power switch is released, the battery voltage it last reported, and
// the physical setpoint it is currently holding.
type Status struct {
	PowerSwitchReleased bool
	BatteryVoltage      float32
	Physical            physical.Physical
}

// EventKind discriminates the payload carried by an Event.
type EventKind int

const (
	// EventOdometry carries a wheel-odometry delta observed since the
	// previous event.
	EventOdometry EventKind = iota
	// EventStatus carries a refreshed Status snapshot.
	EventStatus
)

// Event is one hardware-clock-timestamped notification from a Driver.
type Event struct {
	Time   time.Time
	Kind   EventKind
	Delta  physical.Odometry
	Status Status
}

// Driver is the chassis hardware collaborator. A Driver is owned
// exclusively by the supervisor goroutine that opened it: Events
// starts reading hardware frames on a goroutine of its own, and
// SetTarget is meant to be called from the supervisor's own loop only.
type Driver interface {
	// Events returns at once with a channel of decoded Events (one
	// hardware frame may yield more than one Event); the channel is
	// closed when ctx is done or the underlying link drops.
	Events(ctx context.Context) (<-chan Event, error)
	// SetTarget pushes the desired setpoint to the hardware. Called on
	// every received event, per the "last write wins, pushed on every
	// tick" contract.
	SetTarget(p physical.Physical) error
	// Identifier returns a short, stable, board-specific identifier
	// used for index-stability and log tokens.
	Identifier() string
	// Close releases the underlying transport.
	Close() error
}
