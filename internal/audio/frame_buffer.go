package audio

// FrameBuffer is an unbounded FIFO of f32 samples, grounded on the
// chunk-deque pattern of the original service's AudioBuffer: append stores
// a reference to the pushed slice rather than copying into one contiguous
// array, and pop_front walks chunks from the front, splitting the last one
// it touches. This keeps append O(1) and avoids the O(n) re-concatenation a
// single growing slice would need on every append.
type FrameBuffer struct {
	chunks      [][]float32
	totalLength int
}

// NewFrameBuffer creates an empty FrameBuffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{}
}

// Append adds samples to the back of the buffer. The caller must not
// mutate samples afterward; FrameBuffer takes ownership of the slice.
func (f *FrameBuffer) Append(samples []float32) {
	if len(samples) == 0 {
		return
	}
	f.chunks = append(f.chunks, samples)
	f.totalLength += len(samples)
}

// Len returns the number of samples currently resident.
func (f *FrameBuffer) Len() int {
	return f.totalLength
}

// PopFront returns exactly n samples from the front of the buffer in
// order, or false if fewer than n are available. On success the returned
// samples are removed from the buffer.
func (f *FrameBuffer) PopFront(n int) ([]float32, bool) {
	if n <= 0 {
		return nil, n == 0
	}
	if n > f.totalLength {
		return nil, false
	}

	out := make([]float32, 0, n)
	remaining := n
	consumed := 0

	for remaining > 0 {
		chunk := f.chunks[consumed]
		if len(chunk) <= remaining {
			out = append(out, chunk...)
			remaining -= len(chunk)
			consumed++
		} else {
			out = append(out, chunk[:remaining]...)
			f.chunks[consumed] = chunk[remaining:]
			remaining = 0
		}
	}

	if consumed > 0 {
		f.chunks = f.chunks[consumed:]
	}
	f.totalLength -= n
	return out, true
}
