package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// AudioFrame is a single chunk of captured audio.
type AudioFrame struct {
	// Data is little-endian signed 16-bit PCM.
	Data []byte

	// SampleRate in Hz (16000 for lecture capture).
	SampleRate int

	// Channels: 1 for mono.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Level returns the RMS level of the frame's samples normalised to [0, 1].
// An empty frame has level 0.
func Level(frame AudioFrame) float64 {
	n := len(frame.Data) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(frame.Data[2*i:]))
		v := float64(s) / math.MaxInt16
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(n))
	return min(rms, 1)
}
