package audio

import (
	"math/rand"
	"testing"
)

func TestByteAccumulator_AlignedPush(t *testing.T) {
	a := NewByteAccumulator()
	// int16 100 little-endian
	out := a.Push([]byte{100, 0})
	if len(out) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(out))
	}
	want := float32(100) / 32767.0
	if out[0] != want {
		t.Fatalf("got %f want %f", out[0], want)
	}
}

func TestByteAccumulator_TrailingByteCarriesOver(t *testing.T) {
	a := NewByteAccumulator()
	out := a.Push([]byte{1, 2, 3}) // one full sample + 1 trailing byte
	if len(out) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(out))
	}
	if !a.HasPendingByte() {
		t.Fatalf("expected pending byte to be retained")
	}

	out2 := a.Push([]byte{4})
	if len(out2) != 1 {
		t.Fatalf("expected the carried byte plus new byte to form 1 sample, got %d", len(out2))
	}
	if a.HasPendingByte() {
		t.Fatalf("expected no pending byte after forming a sample")
	}
}

// Total samples emitted must equal floor(bytes_in / 2), regardless of how
// bytes are chunked across Push calls.
func TestByteAccumulator_ByteAlignmentProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	totalBytes := 10000
	data := make([]byte, totalBytes)
	rng.Read(data)

	a := NewByteAccumulator()
	emitted := 0
	i := 0
	for i < len(data) {
		chunkLen := 1 + rng.Intn(7)
		if i+chunkLen > len(data) {
			chunkLen = len(data) - i
		}
		out := a.Push(data[i : i+chunkLen])
		emitted += len(out)
		i += chunkLen
	}

	want := totalBytes / 2
	if emitted != want {
		t.Fatalf("emitted %d samples, want %d", emitted, want)
	}
}
