// Package audio implements the two-stage buffering layer the streaming
// pipeline sits on: a ByteAccumulator that aligns inbound bytes into int16
// PCM samples, a FrameBuffer that holds the resulting f32 stream, and a
// VADRing that gives the VAD driver a fixed-capacity working window.
package audio

// ByteAccumulator turns an arbitrary-length byte stream into aligned
// little-endian int16 mono PCM samples, converted to f32 in [-1, 1]. It
// holds at most one trailing byte between calls — the odd byte that cannot
// yet form a full sample.
//
// The wire contract (little-endian int16 mono) is enforced by the
// capability interface, not by a runtime endianness check: there is no way
// to detect a big-endian stream from the bytes alone, so a mismatched
// producer is a configuration error, not a data error.
type ByteAccumulator struct {
	pendingByte byte
	hasByte     bool
}

// NewByteAccumulator creates an empty accumulator.
func NewByteAccumulator() *ByteAccumulator {
	return &ByteAccumulator{}
}

// Push consumes the largest even-length prefix of the carried-over byte plus
// b, interprets it as little-endian int16 samples, and returns them
// normalized to f32. Any trailing odd byte is retained for the next call.
func (a *ByteAccumulator) Push(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}

	// Logically prepend the pending byte so indexing stays simple.
	var combined []byte
	if a.hasByte {
		combined = make([]byte, 0, len(b)+1)
		combined = append(combined, a.pendingByte)
		combined = append(combined, b...)
		a.hasByte = false
	} else {
		combined = b
	}

	numSamples := len(combined) / 2
	if len(combined)%2 == 1 {
		a.pendingByte = combined[len(combined)-1]
		a.hasByte = true
	}

	if numSamples == 0 {
		return nil
	}

	samples := make([]float32, numSamples)
	for i := 0; i < numSamples; i++ {
		lo := combined[i*2]
		hi := combined[i*2+1]
		samples[i] = int16ToFloat32(int16(lo) | int16(hi)<<8)
	}
	return samples
}

// HasPendingByte reports whether an odd trailing byte is held over.
func (a *ByteAccumulator) HasPendingByte() bool {
	return a.hasByte
}

func int16ToFloat32(s int16) float32 {
	return float32(s) / 32767.0
}
