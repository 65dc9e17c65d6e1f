package diarize

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"speechd/internal/capability"
)

// scriptedSV returns whatever score the test's scoreFor function computes
// for each (probe, reference) pair.
type scriptedSV struct {
	scoreFor func(a, b []float32) float32
}

func (s scriptedSV) Score(_ context.Context, a, b []float32) (capability.SVResult, error) {
	return capability.SVResult{Score: s.scoreFor(a, b)}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func segment(tag float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		// Non-constant signal so the quality gate's energy/variance checks pass.
		out[i] = tag * float32((i%7)-3) * 0.05
	}
	return out
}

func segmentSamplesForSR(sr int, ms float64) int {
	return int(float64(sr) * ms / 1000)
}

// Gallery monotonicity (property 5): counter never decreases and always
// equals gallery size after every call.
func TestDiarizer_GalleryMonotonicity(t *testing.T) {
	sr := 16000
	sv := scriptedSV{scoreFor: func(a, b []float32) float32 { return 0.1 }}
	cfg := DefaultConfig(sr)
	g := NewGallery()
	d := New(sv, cfg, g, testLogger())

	n := segmentSamplesForSR(sr, 1000)
	for i := 0; i < 5; i++ {
		seg := segment(float32(i+1), n)
		_, err := d.Assign(context.Background(), seg)
		if err != nil {
			t.Fatalf("assign failed: %v", err)
		}
		if g.Counter() != g.Len() {
			t.Fatalf("counter %d != gallery size %d", g.Counter(), g.Len())
		}
	}
}

// S3-shaped: alternating speakers, strong same-speaker / weak cross-speaker
// scores, expect labels 1,2,1,2 and a final gallery size of 2.
func TestDiarizer_TwoSpeakersAlternating(t *testing.T) {
	sr := 16000
	n := segmentSamplesForSR(sr, 1000)

	segA := segment(1, n)
	segB := segment(2, n)

	sv := scriptedSV{scoreFor: func(a, b []float32) float32 {
		if sameSeries(a, b) {
			return 0.9
		}
		return 0.1
	}}

	cfg := DefaultConfig(sr)
	g := NewGallery()
	d := New(sv, cfg, g, testLogger())

	labels := []string{}
	for _, seg := range [][]float32{segA, segB, segA, segB} {
		label, err := d.Assign(context.Background(), seg)
		if err != nil {
			t.Fatalf("assign failed: %v", err)
		}
		labels = append(labels, label)
	}

	if labels[0] != labels[2] || labels[1] != labels[3] || labels[0] == labels[1] {
		t.Fatalf("unexpected label pattern: %v", labels)
	}
	if g.Len() != 2 {
		t.Fatalf("expected gallery size 2, got %d", g.Len())
	}
}

// sameSeries treats two segments as "the same speaker" if their first
// sample matches: segment() derives the whole series from a scalar tag,
// so this recovers which original speaker generated each side safely
// across repeated enrollments (the stored gallery reference is a slice
// built from the same tag as the live segment for a real match).
func sameSeries(a, b []float32) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return a[0] == b[0]
}

// Hysteresis (property 7): a mid-band score for the current speaker
// ([0.6tau, tau)) keeps continuity rather than minting a new speaker.
func TestDiarizer_HysteresisKeepsContinuity(t *testing.T) {
	sr := 16000
	n := segmentSamplesForSR(sr, 1000)
	tau := DefaultConfig(sr).Threshold

	// First assign enrolls speaker 1 via the empty-gallery path (no
	// scoring call at all). Every subsequent call scores 0.65*tau against
	// it, inside the continuity band [0.6*tau, tau).
	sv := scriptedSV{scoreFor: func(a, b []float32) float32 { return 0.65 * tau }}

	cfg := DefaultConfig(sr)
	g := NewGallery()
	d := New(sv, cfg, g, testLogger())

	first, err := d.Assign(context.Background(), segment(1, n))
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	second, err := d.Assign(context.Background(), segment(1, n))
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if second != first {
		t.Fatalf("expected continuity: first=%s second=%s", first, second)
	}
	if g.Len() != 1 {
		t.Fatalf("expected no new speaker minted, gallery size %d", g.Len())
	}
}

// Quality gate rejection returns the current speaker without mutating the
// gallery.
func TestDiarizer_QualityGateRejectsShortAudio(t *testing.T) {
	sr := 16000
	sv := scriptedSV{scoreFor: func(a, b []float32) float32 { return 0.9 }}
	cfg := DefaultConfig(sr)
	g := NewGallery()
	d := New(sv, cfg, g, testLogger())

	n := segmentSamplesForSR(sr, 1000)
	first, err := d.Assign(context.Background(), segment(1, n))
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	tooShort := segment(1, segmentSamplesForSR(sr, 100))
	second, err := d.Assign(context.Background(), tooShort)
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if second != first {
		t.Fatalf("expected current speaker %s on gate rejection, got %s", first, second)
	}
	if g.Len() != 1 {
		t.Fatalf("gate rejection must not mutate gallery, got size %d", g.Len())
	}
}

// Determinism (property 6): identical inputs with a deterministic SV mock
// produce the same label.
func TestDiarizer_Determinism(t *testing.T) {
	sr := 16000
	n := segmentSamplesForSR(sr, 1000)
	sv := scriptedSV{scoreFor: func(a, b []float32) float32 {
		if sameSeries(a, b) {
			return 0.9
		}
		return 0.1
	}}

	run := func() []string {
		cfg := DefaultConfig(sr)
		g := NewGallery()
		d := New(sv, cfg, g, testLogger())
		var got []string
		for _, s := range [][]float32{segment(1, n), segment(2, n), segment(1, n)} {
			label, err := d.Assign(context.Background(), s)
			if err != nil {
				t.Fatalf("assign failed: %v", err)
			}
			got = append(got, label)
		}
		return got
	}

	a := run()
	b := run()
	if len(a) != len(b) {
		t.Fatalf("length mismatch")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("non-deterministic at %d: %v vs %v", i, a, b)
		}
	}
}

// Determinism must also hold when multiple gallery entries score an exact
// tie: the result must not depend on Go's randomized map iteration order,
// only on gallery insertion order.
func TestDiarizer_DeterminismOnTiedScores(t *testing.T) {
	sr := 16000
	n := segmentSamplesForSR(sr, 1000)
	const tie float32 = 0.35 // between 0.7*tau and tau: lands in the ambiguous branch
	sv := scriptedSV{scoreFor: func(a, b []float32) float32 { return tie }}

	run := func() string {
		cfg := DefaultConfig(sr)
		g := NewGallery()
		// Seed three speakers directly, in a fixed insertion order, so every
		// run starts from an identical gallery regardless of map iteration.
		g.insert(segment(1, n))
		g.insert(segment(2, n))
		g.insert(segment(3, n))

		d := New(sv, cfg, g, testLogger())
		label, err := d.Assign(context.Background(), segment(4, n))
		if err != nil {
			t.Fatalf("assign failed: %v", err)
		}
		return label
	}

	first := run()
	for i := 0; i < 20; i++ {
		if got := run(); got != first {
			t.Fatalf("tie-break non-deterministic: run %d got %q, first run got %q", i, got, first)
		}
	}
}
