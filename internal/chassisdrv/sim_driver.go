package chassisdrv

import (
	"context"
	"sync"
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/groundctl/internal/kinematics"
	"github.com/itohio/groundctl/internal/physical"
)

// wheelPID is a minimal single-axis PID controller, the same shape
// used across this codebase's lineage for wheel-speed tracking: a
// clamped proportional+integral+derivative update over a fixed sample
// period.
type wheelPID struct {
	p, i, d        float32
	min, max       float32
	target, iTerm  float32
	input, lastIn  float32
}

func newWheelPID(p, i, d, min, max float32) wheelPID {
	return wheelPID{p: p, i: i, d: d, min: min, max: max}
}

func (w *wheelPID) update(input, dt float32) float32 {
	w.lastIn, w.input = w.input, input
	e := w.target - w.input
	deriv := w.input - w.lastIn

	w.iTerm = clamp(w.iTerm+w.i*e*dt, w.min, w.max)
	return clamp(w.p*e+w.iTerm-w.d*deriv/dt, w.min, w.max)
}

func clamp(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// SimDriver is a software-only chassis used by tests and the bench
// CLI: two wheel-speed PID loops chase whatever target the kinematic
// model derives from the commanded Physical setpoint, ticking at the
// same 40ms control period as the trajectory predictor so recorded
// behavior is directly comparable to predictions.
type SimDriver struct {
	mu     sync.Mutex
	model  kinematics.Differential
	left   wheelPID
	right  wheelPID
	target physical.Physical
	id     string
}

// NewSimDriver returns a ready-to-run simulated chassis.
func NewSimDriver(model kinematics.Differential) *SimDriver {
	return &SimDriver{
		model: model,
		left:  newWheelPID(4, 2, 0.1, -10, 10),
		right: newWheelPID(4, 2, 0.1, -10, 10),
		id:    "sim-chassis",
	}
}

func (d *SimDriver) Identifier() string { return d.id }

func (d *SimDriver) Close() error { return nil }

func (d *SimDriver) SetTarget(p physical.Physical) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.target = p
	if p.IsReleased() {
		d.left.target, d.right.target = 0, 0
	} else {
		omega := p.Speed * math32.Tan(p.Rudder) / d.model.TrackWidth
		l, r := d.model.Backward(p.Speed, omega)
		d.left.target, d.right.target = l, r
	}
	return nil
}

// Events ticks the PID loops at the control period and reports the
// resulting odometry deltas, exactly as a real board's telemetry
// stream would.
func (d *SimDriver) Events(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event, 16)
	go d.run(ctx, out)
	return out, nil
}

func (d *SimDriver) run(ctx context.Context, out chan<- Event) {
	defer close(out)

	const period = 40 * time.Millisecond
	dt := float32(period) / float32(time.Second)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var leftSpeed, rightSpeed float32

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.mu.Lock()
			leftOut := d.left.update(leftSpeed, dt)
			rightOut := d.right.update(rightSpeed, dt)
			d.mu.Unlock()

			leftSpeed += leftOut * dt
			rightSpeed += rightOut * dt

			speed, omega := d.model.Forward(leftSpeed, rightSpeed)
			delta := kinematics.Integrate(speed, omega, dt)

			ev := Event{Time: time.Now(), Kind: EventOdometry, Delta: delta}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}
