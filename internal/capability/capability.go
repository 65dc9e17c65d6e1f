// Package capability defines the three model contracts the streaming
// pipeline depends on without caring how they are implemented: voice
// activity detection, speech recognition, and speaker verification.
// Concrete adapters live in sherpaadapter; deterministic test doubles live
// in mock.
package capability

import "context"

// VADSegment reports one boundary transition on the VAD's own monotonic
// input clock, in milliseconds. A value of -1 on either field means "no
// boundary on this side this step".
type VADSegment struct {
	BegMS int64
	EndMS int64
}

// VADCache is an opaque, per-session mutable value owned by the caller and
// passed by reference on every VAD.Step call. It is never shared between
// sessions.
type VADCache interface{}

// VAD detects speech/silence transitions in a stream of fixed-size chunks.
type VAD interface {
	// NewCache allocates a fresh cache for one session.
	NewCache() VADCache
	// Step feeds one chunk of samples and returns any boundary transitions
	// observed. A capability error on one chunk must not corrupt cache state
	// for subsequent calls.
	Step(ctx context.Context, chunk []float32, cache VADCache) ([]VADSegment, error)
	// ReleaseCache returns any pooled resources a cache holds. Called once
	// when the owning session ends; safe to call on a cache that holds none.
	ReleaseCache(cache VADCache)
}

// ASRCandidate is one recognition hypothesis for a segment.
type ASRCandidate struct {
	Text string
	// Extra carries adapter-specific diagnostic fields (e.g. language,
	// average log-probability) round-tripped into the outbound event's
	// diagnostic "msg" field but never parsed back by this repo.
	Extra map[string]any
}

// ASRCache is an opaque, per-session mutable value for the ASR capability.
type ASRCache interface{}

// ASR maps a speech segment to candidate recognized text.
type ASR interface {
	NewCache() ASRCache
	Recognize(ctx context.Context, audio []float32, lang string, cache ASRCache, useITN bool) ([]ASRCandidate, error)
}

// SVResult is the outcome of one speaker-verification comparison.
type SVResult struct {
	Score float32
}

// SV compares two audio segments and reports a similarity score. The scale
// is an open metric; the Diarizer interprets it against a configured
// threshold.
type SV interface {
	Score(ctx context.Context, a, b []float32) (SVResult, error)
}
