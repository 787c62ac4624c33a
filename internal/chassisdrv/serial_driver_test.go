package chassisdrv

import (
	"encoding/binary"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/groundctl/internal/physical"
)

func buildTelemetry(speed, rudder, battery float32, flags byte) []byte {
	payload := make([]byte, telemPayloadLen)
	binary.LittleEndian.PutUint32(payload[0:4], math32.Float32bits(speed))
	binary.LittleEndian.PutUint32(payload[4:8], math32.Float32bits(rudder))
	binary.LittleEndian.PutUint32(payload[8:12], math32.Float32bits(battery))
	payload[12] = flags
	return encodeFrame(frameTypeTelem, payload)
}

func TestConsumeFrameDecodesTelemetry(t *testing.T) {
	frame := buildTelemetry(0.3, -0.1, 12.1, 0x01)
	var odom physical.Odometry

	consumed, odomEv, statusEv, ok := consumeFrame(frame, &odom)
	require.True(t, ok)
	assert.Equal(t, len(frame), consumed)

	assert.Equal(t, EventOdometry, odomEv.Kind)
	assert.InDelta(t, 0.3, odomEv.Delta.S, 1e-4)
	assert.InDelta(t, 0.1, odomEv.Delta.A, 1e-4)

	assert.Equal(t, EventStatus, statusEv.Kind)
	assert.True(t, statusEv.Status.PowerSwitchReleased)
	assert.InDelta(t, 12.1, statusEv.Status.BatteryVoltage, 1e-4)
	assert.InDelta(t, 0.3, statusEv.Status.Physical.Speed, 1e-4)
	assert.InDelta(t, -0.1, statusEv.Status.Physical.Rudder, 1e-4)
}

func TestConsumeFrameAccumulatesOdometry(t *testing.T) {
	var odom physical.Odometry
	frame := buildTelemetry(0.1, 0, 0, 0)

	_, _, _, ok := consumeFrame(frame, &odom)
	require.True(t, ok)
	_, _, _, ok = consumeFrame(frame, &odom)
	require.True(t, ok)

	assert.InDelta(t, 0.2, odom.S, 1e-4)
}

func TestConsumeFrameRejectsBadCRC(t *testing.T) {
	frame := buildTelemetry(1, 1, 1, 0)
	frame[len(frame)-1] ^= 0xFF
	var odom physical.Odometry

	consumed, _, _, ok := consumeFrame(frame, &odom)
	assert.False(t, ok)
	assert.Equal(t, 1, consumed, "a corrupt frame resyncs one byte at a time past the sync byte")
}

func TestConsumeFrameWaitsForMoreData(t *testing.T) {
	frame := buildTelemetry(1, 1, 1, 0)
	var odom physical.Odometry

	consumed, _, _, ok := consumeFrame(frame[:len(frame)-1], &odom)
	assert.False(t, ok)
	assert.Equal(t, 0, consumed)
}

func TestEncodeFrameWritesHeader(t *testing.T) {
	frame := encodeFrame(0x02, []byte{1, 2, 3, 4})
	assert.Equal(t, byte(syncByte), frame[0])
	assert.Equal(t, byte(0x02), frame[1])
	assert.Equal(t, byte(4), frame[2])
}
