// Package rtk implements the RTK-GNSS receiver collaborator: a serial
// or network link emitting NMEA GGA sentences, gated by fix quality
// before the rest of the runtime ever sees a fix.
package rtk

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/itohio/groundctl/pkg/logging"
)

// Fix is one parsed GGA sentence.
type Fix struct {
	Time           time.Time
	Lat, Lon, Alt  float64
	PositionState  int // GGA fix-quality field (0=invalid,1=GPS,4=RTK fixed,5=RTK float, ...) scaled by 40
	DirectionState int // carried separately from a GST/heading sentence in a real receiver; defaulted to the GGA fix quality * 30 here absent one
	Satellites     int
}

// Adequate reports whether this fix is trustworthy enough to feed the
// pose filter's absolute input, gated against the caller-supplied
// trust-weight thresholds (config.RTK.MinPositionState /
// MinDirectionState — see DESIGN.md).
func (f Fix) Adequate(minPositionState, minDirectionState int) bool {
	return f.PositionState >= minPositionState && f.DirectionState >= minDirectionState
}

// EventKind discriminates the payload carried by an Event.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventFix
)

// Event is one receiver-level notification.
type Event struct {
	Time time.Time
	Kind EventKind
	Fix  Fix
}

// Driver is the RTK hardware collaborator.
type Driver interface {
	Events(ctx context.Context) (<-chan Event, error)
	Close() error
}

const reconnectBackoff = time.Second

// Opener constructs (or re-opens) the receiver link.
type Opener func(ctx context.Context) (io.ReadWriteCloser, error)

// Supervisor is the reconnection loop around a line-oriented NMEA
// link, structured the same way the chassis and LIDAR supervisors are:
// open, stream, back off for a second on failure, repeat.
type Supervisor struct {
	open Opener

	minPositionState  int
	minDirectionState int

	events chan Event
}

// New returns a Supervisor that has not yet started its connection
// loop. minPositionState/minDirectionState are the configured
// trust-weight thresholds (config.RTK.MinPositionState/
// MinDirectionState) a fix must clear for Adequate to trust it.
func New(open Opener, minPositionState, minDirectionState int) *Supervisor {
	return &Supervisor{
		open:              open,
		minPositionState:  minPositionState,
		minDirectionState: minDirectionState,
		events:            make(chan Event, 16),
	}
}

// Events returns the channel the supervisor publishes on.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// Adequate reports whether fix clears this supervisor's configured
// trust-weight thresholds.
func (s *Supervisor) Adequate(fix Fix) bool {
	return fix.Adequate(s.minPositionState, s.minDirectionState)
}

// Run executes the reconnection loop until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	log := logging.Named("rtk")

	for {
		if ctx.Err() != nil {
			return
		}

		link, err := s.open(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("open failed, backing off")
			select {
			case <-time.After(reconnectBackoff):
				continue
			case <-ctx.Done():
				return
			}
		}

		s.publish(Event{Time: time.Now(), Kind: EventConnected})
		s.streamLines(ctx, link)
		link.Close()
		s.publish(Event{Time: time.Now(), Kind: EventDisconnected})
	}
}

func (s *Supervisor) streamLines(ctx context.Context, link io.Reader) {
	scanner := bufio.NewScanner(link)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Text()
		fix, ok := parseGGA(line)
		if !ok {
			continue
		}
		s.publish(Event{Time: time.Now(), Kind: EventFix, Fix: fix})
	}
}

func (s *Supervisor) publish(ev Event) {
	select {
	case s.events <- ev:
	default:
	}
}

// parseGGA decodes a $--GGA NMEA sentence into a Fix. Only the fields
// the runtime actually consumes are extracted; checksum verification
// is intentionally skipped since a malformed line simply fails one of
// the field parses below and is dropped.
func parseGGA(line string) (Fix, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") || !strings.Contains(line, "GGA") {
		return Fix{}, false
	}
	line = strings.SplitN(line, "*", 2)[0]
	fields := strings.Split(line, ",")
	if len(fields) < 10 {
		return Fix{}, false
	}

	lat, errLat := parseLatLon(fields[2], fields[3])
	lon, errLon := parseLatLon(fields[4], fields[5])
	quality, errQ := strconv.Atoi(fields[6])
	sats, errS := strconv.Atoi(fields[7])
	alt, errA := strconv.ParseFloat(fields[9], 64)

	if errLat != nil || errLon != nil || errQ != nil || errS != nil || errA != nil {
		return Fix{}, false
	}

	return Fix{
		Lat:            lat,
		Lon:            lon,
		Alt:            alt,
		PositionState:  quality * 40, // maps GGA's coarse 0..8 scale onto the finer trust-weight scale
		DirectionState: quality * 30,
		Satellites:     sats,
	}, true
}

// parseLatLon decodes an NMEA ddmm.mmmm / hemisphere pair into signed
// decimal degrees.
func parseLatLon(value, hemisphere string) (float64, error) {
	if value == "" {
		return 0, fmt.Errorf("empty coordinate")
	}
	dotIdx := strings.IndexByte(value, '.')
	if dotIdx < 2 {
		return 0, fmt.Errorf("malformed coordinate %q", value)
	}
	degLen := dotIdx - 2
	deg, err := strconv.ParseFloat(value[:degLen], 64)
	if err != nil {
		return 0, err
	}
	min, err := strconv.ParseFloat(value[degLen:], 64)
	if err != nil {
		return 0, err
	}
	decimal := deg + min/60
	if hemisphere == "S" || hemisphere == "W" {
		decimal = -decimal
	}
	return decimal, nil
}
