// Package chassis implements the single-device reconnection
// supervisor that owns the chassis hardware handle, accepts target
// setpoints, and hands out cloned trajectory predictors.
package chassis

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itohio/groundctl/internal/chassisdrv"
	"github.com/itohio/groundctl/internal/kinematics"
	"github.com/itohio/groundctl/internal/physical"
	"github.com/itohio/groundctl/internal/trajectory"
	"github.com/itohio/groundctl/pkg/logging"
)

// reconnectBackoff is how long the supervisor waits after a failed
// open attempt before retrying.
const reconnectBackoff = time.Second

// EventKind discriminates the payload carried by an Event the
// supervisor publishes to the rest of the runtime.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventStatusUpdated
	EventOdometryUpdated
)

// Event is one supervisor-level notification.
type Event struct {
	Time   time.Time
	Kind   EventKind
	Status chassisdrv.Status
	Delta  physical.Odometry
}

// Opener constructs (or re-opens) a Driver on demand. Supplied by the
// caller so the supervisor doesn't need to know whether it's talking
// to a serial board or a simulated rig.
type Opener func(ctx context.Context) (chassisdrv.Driver, error)

// Supervisor owns exactly one chassis hardware handle across its
// lifetime, reopening it on disconnect and publishing every observed
// transition as an Event.
type Supervisor struct {
	open  Opener
	model kinematics.Differential

	rawTarget atomicPhysical

	targetMu sync.Mutex
	target   physical.Physical
	targetAt time.Time

	protoMu sync.Mutex
	proto   *trajectory.Prototype

	events chan Event
}

// New returns a Supervisor that has not yet started its connection
// loop; call Run in its own goroutine to start it.
func New(open Opener, model kinematics.Differential) *Supervisor {
	s := &Supervisor{
		open:   open,
		model:  model,
		target: physical.Released,
		events: make(chan Event, 64),
	}
	s.rawTarget.store(physical.Released)
	return s
}

// Events returns the channel the supervisor publishes on. The channel
// is never closed while the supervisor is running.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// Drive overwrites the target setpoint; the most recent write wins and
// is pushed to the hardware on the very next device event.
func (s *Supervisor) Drive(p physical.Physical) {
	now := time.Now()
	s.targetMu.Lock()
	s.target, s.targetAt = p, now
	s.targetMu.Unlock()
	s.rawTarget.store(p)
}

// StoreRawTarget stashes a provisional target behind the lock-free
// atomic word without touching the timestamped target the hardware
// loop pushes on every event. The drive arbitrator uses this to record
// the raw requested setpoint before collision avoidance adjusts it and
// commits the result via Drive.
func (s *Supervisor) StoreRawTarget(p physical.Physical) {
	s.rawTarget.store(p)
}

// RawTarget returns the last value stashed by StoreRawTarget or Drive,
// whichever happened more recently.
func (s *Supervisor) RawTarget() physical.Physical {
	return s.rawTarget.load()
}

func (s *Supervisor) currentTarget() physical.Physical {
	s.targetMu.Lock()
	defer s.targetMu.Unlock()
	return s.target
}

// Predict returns an independent trajectory predictor seeded with the
// live model and the caller's desired target, or ok=false when no
// chassis is currently connected.
func (s *Supervisor) Predict(target physical.Physical) (trajectory.Predictor, bool) {
	s.protoMu.Lock()
	defer s.protoMu.Unlock()
	if s.proto == nil {
		return trajectory.Predictor{}, false
	}
	return s.proto.Predict(target), true
}

func (s *Supervisor) setPrototype(p *trajectory.Prototype) {
	s.protoMu.Lock()
	s.proto = p
	s.protoMu.Unlock()
}

func (s *Supervisor) setCurrent(p physical.Physical) {
	s.protoMu.Lock()
	if s.proto != nil {
		s.proto.Current = p
	}
	s.protoMu.Unlock()
}

// Run executes the reconnection loop until ctx is cancelled. It is
// meant to be run on its own goroutine — the loop blocks on the
// driver's event channel, which itself blocks on hardware I/O, so Go's
// scheduler parks this goroutine exactly like the dedicated OS thread
// this is ported from, without needing to actually reserve one.
func (s *Supervisor) Run(ctx context.Context) {
	log := logging.Named("chassis")

	for {
		if ctx.Err() != nil {
			return
		}

		drv, err := s.open(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("open failed, backing off")
			select {
			case <-time.After(reconnectBackoff):
				continue
			case <-ctx.Done():
				return
			}
		}

		s.runConnected(ctx, drv)
		log.Info().Msg("chassis disconnected")
		s.setPrototype(nil)
		s.publish(Event{Time: time.Now(), Kind: EventDisconnected})
	}
}

func (s *Supervisor) runConnected(ctx context.Context, drv chassisdrv.Driver) {
	defer drv.Close()

	events, err := drv.Events(ctx)
	if err != nil {
		return
	}

	s.setPrototype(&trajectory.Prototype{Model: s.model, Current: physical.Released})
	s.publish(Event{Time: time.Now(), Kind: EventConnected})

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = drv.SetTarget(s.currentTarget())

			switch ev.Kind {
			case chassisdrv.EventOdometry:
				s.publish(Event{Time: ev.Time, Kind: EventOdometryUpdated, Delta: ev.Delta})
			case chassisdrv.EventStatus:
				s.setCurrent(ev.Status.Physical)
				s.publish(Event{Time: ev.Time, Kind: EventStatusUpdated, Status: ev.Status})
			}
		}
	}
}

func (s *Supervisor) publish(ev Event) {
	select {
	case s.events <- ev:
	default:
		// A full buffer means nothing is draining the event channel;
		// dropping status chatter here is preferable to blocking the
		// reconnection loop that the rest of the system depends on.
	}
}

// atomicPhysical stores a packed Physical behind a lock-free atomic
// word so the hot check-and-drive path never takes the target mutex.
type atomicPhysical struct {
	w atomic.Uint64
}

func (a *atomicPhysical) store(p physical.Physical) {
	a.w.Store(physical.PackPhysical(p))
}

func (a *atomicPhysical) load() physical.Physical {
	return physical.UnpackPhysical(a.w.Load())
}
