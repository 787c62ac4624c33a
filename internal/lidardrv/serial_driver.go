package lidardrv

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/mr-tron/base58"

	"github.com/itohio/groundctl/pkg/logging"
)

// Frame layout, mirroring the sync-byte/type/length/CRC framing used
// throughout this codebase's serial devices:
//
//	[0:2)  0x55 0xAA           sync bytes
//	[2]    frame type          0x23 = measurement block
//	[3]    section index
//	[4]    point count (N)
//	[5:]   N * (range u16, bearing u16), little-endian
//	[-2:]  crc16
const (
	syncByte1      = 0x55
	syncByte2      = 0xAA
	frameTypeScan  = 0x23
	headerSize     = 5
	crcSize        = 2
	bytesPerPoint  = 4
)

// SerialDriver decodes a spinning-LIDAR serial stream into Scan
// batches, structured the same way the xwpftb frame parser in this
// codebase's lineage is: accumulate into a growing buffer, resync on
// the two-byte header, validate a CRC, and hand off one frame's worth
// of points per callback.
type SerialDriver struct {
	link   io.ReadWriteCloser
	id     string
	filter FilterFunc
}

// NewSerialDriver wraps an already-open serial link to a spinning
// LIDAR unit. id is the device's reported serial number.
func NewSerialDriver(link io.ReadWriteCloser, id string) *SerialDriver {
	return &SerialDriver{link: link, id: id}
}

func (d *SerialDriver) Identifier() string { return base58.Encode([]byte(d.id)) }

func (d *SerialDriver) Close() error { return d.link.Close() }

func (d *SerialDriver) SetFilter(fn FilterFunc) { d.filter = fn }

func (d *SerialDriver) Scans(ctx context.Context) (<-chan Scan, error) {
	out := make(chan Scan, 8)
	go d.readLoop(ctx, out)
	return out, nil
}

func (d *SerialDriver) readLoop(ctx context.Context, out chan<- Scan) {
	defer close(out)
	log := logging.Named("lidardrv")

	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 512)

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
				consumed, scan, ok := d.consumeFrame(buf)
				if consumed == 0 {
					break
				}
				buf = buf[consumed:]
				if ok {
					select {
					case out <- scan:
					case <-ctx.Done():
						return
					}
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				log.Debug().Msg("lidar link reached EOF")
				return
			}
			log.Debug().Err(err).Msg("transient read error")
		}
	}
}

func (d *SerialDriver) consumeFrame(buf []byte) (consumed int, scan Scan, ok bool) {
	i := 0
	for i+1 < len(buf) && !(buf[i] == syncByte1 && buf[i+1] == syncByte2) {
		i++
	}
	if i > 0 {
		return i, Scan{}, false
	}
	if len(buf) < headerSize {
		return 0, Scan{}, false
	}

	ftype := buf[2]
	section := int(buf[3])
	count := int(buf[4])
	total := headerSize + count*bytesPerPoint + crcSize
	if len(buf) < total {
		return 0, Scan{}, false
	}

	frame := buf[:total]
	wantCRC := binary.LittleEndian.Uint16(frame[total-crcSize:])
	gotCRC := crc16(frame[:total-crcSize])
	if wantCRC != gotCRC {
		return 2, Scan{}, false
	}
	if ftype != frameTypeScan {
		return total, Scan{}, false
	}

	points := make([]Point, 0, count)
	off := headerSize
	for i := 0; i < count; i++ {
		p := Point{
			Range:   binary.LittleEndian.Uint16(frame[off : off+2]),
			Bearing: binary.LittleEndian.Uint16(frame[off+2 : off+4]),
		}
		if d.filter == nil || !d.filter(p) {
			points = append(points, p)
		}
		off += bytesPerPoint
	}

	return total, Scan{Section: section, Points: points}, true
}

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
