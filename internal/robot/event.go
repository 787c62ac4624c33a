package robot

import (
	"time"

	"github.com/itohio/groundctl/internal/chassisdrv"
	"github.com/itohio/groundctl/internal/devicecode"
	"github.com/itohio/groundctl/internal/physical"
)

// EventKind discriminates the payload carried by an Event, mirroring
// spec.md section 6's wire-level event stream one-to-one.
type EventKind int

const (
	EventConnectionModified EventKind = iota
	EventChassisStatusUpdated
	EventChassisOdometerUpdated
	EventPoseUpdated
	EventRtkStatusUpdated
	EventLidarFrameEncoded
	EventCollisionDetected
)

// RtkStatus summarizes the fix quality behind an EventRtkStatusUpdated
// notification.
type RtkStatus struct {
	PositionState  int
	DirectionState int
	Adequate       bool
}

// Event is one notification published on the robot's event stream. Only
// the fields relevant to Kind are populated; the rest are zero.
type Event struct {
	Time time.Time
	Kind EventKind

	Code          devicecode.Code
	ChassisStatus chassisdrv.Status
	OdomS, OdomA  float32
	Pose          physical.Pose
	Rtk           RtkStatus
	Frame         []byte
	Risk          float32
}
