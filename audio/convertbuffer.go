package audio

import (
	"encoding/binary"
	"math"
)

// floatBufferTo16BitLE converts an interleaved float32 buffer to 16-bit
// little-endian PCM, writing into out (growing it if needed) instead of
// allocating a fresh byte slice every block.
func floatBufferTo16BitLE(buf []float32, out []byte) []byte {
	need := len(buf) * 2
	if cap(out) < need {
		out = make([]byte, need)
	}
	out = out[:need]
	for i, v := range buf {
		var uv int16
		switch {
		case v < -1.0:
			uv = -math.MaxInt16
		case v > 1.0:
			uv = math.MaxInt16
		default:
			uv = int16(v * math.MaxInt16)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(uv))
	}
	return out
}
