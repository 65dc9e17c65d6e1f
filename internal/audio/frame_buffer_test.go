package audio

import (
	"math/rand"
	"testing"
)

func TestFrameBuffer_AppendLen(t *testing.T) {
	f := NewFrameBuffer()
	if f.Len() != 0 {
		t.Fatalf("expected empty buffer")
	}
	f.Append([]float32{1, 2, 3})
	if f.Len() != 3 {
		t.Fatalf("expected len 3, got %d", f.Len())
	}
}

func TestFrameBuffer_PopFrontInsufficient(t *testing.T) {
	f := NewFrameBuffer()
	f.Append([]float32{1, 2})
	if _, ok := f.PopFront(3); ok {
		t.Fatalf("expected PopFront to fail when insufficient data available")
	}
}

func TestFrameBuffer_PopFrontSpansChunks(t *testing.T) {
	f := NewFrameBuffer()
	f.Append([]float32{1, 2})
	f.Append([]float32{3, 4, 5})
	f.Append([]float32{6})

	out, ok := f.PopFront(4)
	if !ok {
		t.Fatalf("expected success")
	}
	want := []float32{1, 2, 3, 4}
	for i, v := range want {
		if out[i] != v {
			t.Fatalf("got %v want %v", out, want)
		}
	}
	if f.Len() != 2 {
		t.Fatalf("expected 2 remaining samples, got %d", f.Len())
	}

	rest, ok := f.PopFront(2)
	if !ok || rest[0] != 5 || rest[1] != 6 {
		t.Fatalf("unexpected remainder: %v ok=%v", rest, ok)
	}
}

// Concatenating all PopFront outputs must equal the concatenation of all
// Append inputs, up to the residual still resident in the buffer.
func TestFrameBuffer_FIFOProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	f := NewFrameBuffer()
	var pushed []float32
	var popped []float32

	for i := 0; i < 200; i++ {
		if rng.Intn(3) != 0 && f.Len() > 0 {
			n := 1 + rng.Intn(f.Len())
			out, ok := f.PopFront(n)
			if !ok {
				t.Fatalf("PopFront(%d) failed with Len()=%d", n, f.Len())
			}
			popped = append(popped, out...)
		} else {
			chunk := make([]float32, 1+rng.Intn(5))
			for j := range chunk {
				chunk[j] = rng.Float32()
			}
			f.Append(chunk)
			pushed = append(pushed, chunk...)
		}
	}

	remaining, ok := f.PopFront(f.Len())
	if f.Len() > 0 && !ok {
		t.Fatalf("final drain failed")
	}
	popped = append(popped, remaining...)

	if len(popped) != len(pushed) {
		t.Fatalf("length mismatch: popped %d pushed %d", len(popped), len(pushed))
	}
	for i := range pushed {
		if popped[i] != pushed[i] {
			t.Fatalf("order mismatch at %d: %v != %v", i, popped[i], pushed[i])
		}
	}
}
