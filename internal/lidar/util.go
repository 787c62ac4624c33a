package lidar

import (
	"encoding/binary"

	"github.com/chewxy/math32"
)

func putF32(dst []byte, v float32) {
	binary.LittleEndian.PutUint32(dst, math32.Float32bits(v))
}
