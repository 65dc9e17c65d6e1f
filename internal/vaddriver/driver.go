// Package vaddriver turns a raw VAD capability (boundary transitions on an
// opaque millisecond clock) into resolved speech segments against a
// fixed-capacity sample ring, applying cleanup and silence-reset backpressure
// so the ring never has to grow.
package vaddriver

import (
	"context"
	"log/slog"

	"speechd/internal/audio"
	"speechd/internal/capability"
)

const unset = -1

// Config holds the tunables governing ring backpressure and segment
// resolution. Zero-value fields are not valid; use DefaultConfig as a base.
type Config struct {
	SampleRate int

	// CleanupThreshold is the ring fill fraction (0..1) above which the
	// cleanup gate drops a fraction of the oldest samples.
	CleanupThreshold float64
	// CleanupRatio is the fraction of capacity dropped once the cleanup
	// gate trips.
	CleanupRatio float64

	// SilenceResetSeconds is how long the ring can go without a committed
	// segment before a silence reset discards everything but the most
	// recent KeepAudioSeconds.
	SilenceResetSeconds float64
	KeepAudioSeconds    float64

	// OverlapMS is the trailing overlap, in milliseconds, retained in the
	// ring after a segment is resolved and dropped.
	OverlapMS float64
}

// DefaultConfig matches the tunables the pipeline ships with.
func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate:          sampleRate,
		CleanupThreshold:    0.8,
		CleanupRatio:        0.3,
		SilenceResetSeconds: 30,
		KeepAudioSeconds:    5,
		OverlapMS:           100,
	}
}

// Segment is a resolved speech region, ready to hand off to ASR/Diarizer.
type Segment struct {
	Samples []float32
	BegMS   int64
	EndMS   int64
}

// Driver owns one session's VADRing and boundary cursor. It is not safe for
// concurrent use; the SessionLoop is its sole caller.
type Driver struct {
	cfg Config
	vad capability.VAD

	ring  *audio.VADRing
	cache capability.VADCache

	lastBeg int64
	lastEnd int64

	offsetMS              float64
	totalProcessedSamples int64
	lastActivitySamples   int64

	log *slog.Logger
}

// New creates a Driver with a ring sized to capacitySamples.
func New(cfg Config, vad capability.VAD, capacitySamples int, log *slog.Logger) *Driver {
	return &Driver{
		cfg:     cfg,
		vad:     vad,
		ring:    audio.NewVADRing(capacitySamples),
		cache:   vad.NewCache(),
		lastBeg: unset,
		lastEnd: unset,
		log:     log,
	}
}

// Step appends one chunk, applies backpressure, advances the cursor with the
// VAD's reported transitions, and resolves zero or one completed segment.
// A VAD capability error is logged and swallowed: the cursor is left as it
// was before the call, and the driver remains usable on the next chunk.
func (d *Driver) Step(ctx context.Context, chunk []float32) (*Segment, bool) {
	d.ring.Append(chunk)
	d.totalProcessedSamples += int64(len(chunk))

	d.cleanupGate()

	transitions, err := d.vad.Step(ctx, chunk, d.cache)
	if err != nil {
		d.log.Warn("vad_step_failed", "error", err)
		return nil, false
	}
	for _, t := range transitions {
		if t.BegMS != unset {
			d.lastBeg = t.BegMS
		}
		if t.EndMS != unset {
			d.lastEnd = t.EndMS
		}
	}

	d.silenceReset()

	if d.lastBeg == unset || d.lastEnd == unset {
		return nil, false
	}
	return d.resolveSegment()
}

func (d *Driver) cleanupGate() {
	capacity := d.ring.Capacity()
	if float64(d.ring.Len()) <= float64(capacity)*d.cfg.CleanupThreshold {
		return
	}
	dropN := int(float64(capacity) * d.cfg.CleanupRatio)
	dropped := d.ring.PopFront(dropN)
	if len(dropped) == 0 {
		return
	}
	d.offsetMS += float64(len(dropped)) * 1000 / float64(d.cfg.SampleRate)
	d.log.Debug("vad_ring_cleanup", "dropped_samples", len(dropped), "offset_ms", d.offsetMS)
}

func (d *Driver) silenceReset() {
	idleSamples := d.totalProcessedSamples - d.lastActivitySamples
	idleSeconds := float64(idleSamples) / float64(d.cfg.SampleRate)
	if idleSeconds <= d.cfg.SilenceResetSeconds {
		return
	}
	keep := int(d.cfg.KeepAudioSeconds * float64(d.cfg.SampleRate))
	dropN := d.ring.Len() - keep
	if dropN > 0 {
		dropped := d.ring.PopFront(dropN)
		d.offsetMS += float64(len(dropped)) * 1000 / float64(d.cfg.SampleRate)
	}
	d.lastActivitySamples = d.totalProcessedSamples
	d.log.Debug("vad_silence_reset", "idle_seconds", idleSeconds, "offset_ms", d.offsetMS)
}

func (d *Driver) resolveSegment() (*Segment, bool) {
	sr := float64(d.cfg.SampleRate)
	beg := int((float64(d.lastBeg) - d.offsetMS) * sr / 1000)
	end := int((float64(d.lastEnd) - d.offsetMS) * sr / 1000)

	if beg < 0 || end > d.ring.Len() || end <= beg {
		d.log.Debug("vad_segment_window_invalid", "beg", beg, "end", end, "ring_len", d.ring.Len())
		d.lastBeg, d.lastEnd = unset, unset
		return nil, false
	}

	samples := d.ring.Get(beg, end-beg)
	d.lastActivitySamples = d.totalProcessedSamples

	segment := &Segment{
		Samples: samples,
		BegMS:   d.lastBeg,
		EndMS:   d.lastEnd,
	}

	overlapSamples := int(d.cfg.OverlapMS / 1000 * sr)
	dropN := end - overlapSamples
	if dropN > 0 {
		dropped := d.ring.PopFront(dropN)
		d.offsetMS += float64(len(dropped)) * 1000 / sr
	}

	d.lastBeg, d.lastEnd = unset, unset
	return segment, true
}

// Close returns any pooled resources the driver's VAD cache holds. Call once
// when the owning session ends.
func (d *Driver) Close() { d.vad.ReleaseCache(d.cache) }

// RingLen reports the current resident sample count, exposed for tests and
// stats endpoints.
func (d *Driver) RingLen() int { return d.ring.Len() }

// OffsetMS reports the accumulated time-base drift correction.
func (d *Driver) OffsetMS() float64 { return d.offsetMS }
