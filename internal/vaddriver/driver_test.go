package vaddriver

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"speechd/internal/capability"
)

// fixedVAD reports a scripted list of transitions per call index; past the
// end of the script it reports no transitions.
type fixedVAD struct {
	script [][]capability.VADSegment
	calls  int
}

func (f *fixedVAD) NewCache() capability.VADCache { return nil }

func (f *fixedVAD) ReleaseCache(capability.VADCache) {}

func (f *fixedVAD) Step(_ context.Context, _ []float32, _ capability.VADCache) ([]capability.VADSegment, error) {
	var out []capability.VADSegment
	if f.calls < len(f.script) {
		out = f.script[f.calls]
	}
	f.calls++
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func chunk(n int) []float32 {
	return make([]float32, n)
}

// S1: silent input produces no segments and never exceeds ring capacity.
func TestDriver_SilentInputProducesNoSegments(t *testing.T) {
	vad := &fixedVAD{}
	cfg := DefaultConfig(16000)
	d := New(cfg, vad, 16000*10, testLogger())

	for i := 0; i < 100; i++ {
		seg, ok := d.Step(context.Background(), chunk(1600))
		if ok {
			t.Fatalf("unexpected segment %+v on silent input", seg)
		}
		if d.RingLen() > 16000*10 {
			t.Fatalf("ring exceeded capacity: %d", d.RingLen())
		}
	}
}

// S2-shaped: a single (beg, end) transition resolves to one segment with
// the expected boundary milliseconds and sample count.
func TestDriver_SingleUtteranceResolves(t *testing.T) {
	// 16000*10 capacity ring; 20 chunks of 1600 samples = 32000 samples fed,
	// comfortably covering the 19200-sample end boundary (1200ms) before
	// the transition is reported.
	script := make([][]capability.VADSegment, 20)
	script[3] = []capability.VADSegment{{BegMS: 100, EndMS: unset}}
	script[19] = []capability.VADSegment{{BegMS: unset, EndMS: 1200}}
	vad := &fixedVAD{script: script}
	cfg := DefaultConfig(16000)
	d := New(cfg, vad, 16000*10, testLogger())

	var resolved *Segment
	for i := 0; i < 20; i++ {
		seg, ok := d.Step(context.Background(), chunk(1600))
		if ok {
			resolved = seg
		}
	}
	if resolved == nil {
		t.Fatalf("expected a resolved segment")
	}
	if resolved.BegMS != 100 || resolved.EndMS != 1200 {
		t.Fatalf("unexpected boundaries: %+v", resolved)
	}
	wantSamples := (1200 - 100) * 16000 / 1000
	if len(resolved.Samples) != wantSamples {
		t.Fatalf("got %d samples, want %d", len(resolved.Samples), wantSamples)
	}
}

// VAD capability errors must leave the cursor untouched and not panic.
func TestDriver_VADErrorIsContained(t *testing.T) {
	cfg := DefaultConfig(16000)
	erroring := &erroringVAD{}
	d := New(cfg, erroring, 16000*10, testLogger())

	seg, ok := d.Step(context.Background(), chunk(1600))
	if ok || seg != nil {
		t.Fatalf("expected no segment from a failing VAD step")
	}
	if d.lastBeg != unset || d.lastEnd != unset {
		t.Fatalf("cursor should remain unset after a VAD error")
	}
}

type erroringVAD struct{}

func (erroringVAD) NewCache() capability.VADCache { return nil }
func (erroringVAD) ReleaseCache(capability.VADCache) {}
func (erroringVAD) Step(context.Context, []float32, capability.VADCache) ([]capability.VADSegment, error) {
	return nil, errStep
}

var errStep = errors.New("vad step failed")

// Time-base conservation: every ms of offset increase corresponds to
// samples actually dropped from the ring, accumulated via the cleanup gate
// under sustained input larger than capacity.
func TestDriver_CleanupGateConservesOffset(t *testing.T) {
	vad := &fixedVAD{}
	cfg := DefaultConfig(16000)
	capacity := 1600 * 5 // small ring to force cleanup quickly
	d := New(cfg, vad, capacity, testLogger())

	for i := 0; i < 50; i++ {
		d.Step(context.Background(), chunk(1600))
		if d.RingLen() > capacity {
			t.Fatalf("ring exceeded capacity %d at step %d: %d", capacity, i, d.RingLen())
		}
	}
	if d.OffsetMS() <= 0 {
		t.Fatalf("expected offset_ms to advance once cleanup has triggered")
	}
}
