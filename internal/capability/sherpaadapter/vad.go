// Package sherpaadapter wires the sherpa-onnx-go model runtime into the
// capability.VAD/ASR/SV contracts the streaming pipeline depends on.
package sherpaadapter

import (
	"context"
	"fmt"

	"speechd/internal/capability"
	"speechd/internal/pool"
)

// VAD adapts a pooled Silero voice-activity detector to capability.VAD. Each
// session borrows one pooled instance for its entire lifetime (matching how
// the original session manager lazily assigned one VAD instance per
// connection) rather than borrowing per chunk, since the detector carries
// its own internal ring and segment queue across AcceptWaveform calls.
type VAD struct {
	pool       pool.VADPoolInterface
	sampleRate int
}

// NewVAD wraps an already-initialized VAD pool.
func NewVAD(p pool.VADPoolInterface, sampleRate int) *VAD {
	return &VAD{pool: p, sampleRate: sampleRate}
}

type vadCache struct {
	instance pool.VADInstanceInterface
}

// NewCache borrows one instance from the pool for the session's lifetime.
// If the pool is exhausted, Step reports the borrow failure on first use
// rather than blocking the caller here.
func (v *VAD) NewCache() capability.VADCache {
	instance, err := v.pool.Get()
	if err != nil {
		return &vadCache{}
	}
	return &vadCache{instance: instance}
}

// Step feeds one chunk into the borrowed detector and translates any speech
// segments it resolves into capability.VADSegment boundary pairs on the
// detector's own monotonic sample clock, expressed in milliseconds.
func (v *VAD) Step(_ context.Context, chunk []float32, cache capability.VADCache) ([]capability.VADSegment, error) {
	c, ok := cache.(*vadCache)
	if !ok || c.instance == nil {
		return nil, fmt.Errorf("sherpaadapter: no VAD instance bound to session")
	}
	silero, ok := c.instance.(*pool.SileroVADInstance)
	if !ok {
		return nil, fmt.Errorf("sherpaadapter: unsupported VAD instance type %T", c.instance)
	}

	silero.VAD.AcceptWaveform(chunk)

	var out []capability.VADSegment
	sr := float64(v.sampleRate)
	for !silero.VAD.IsEmpty() {
		seg := silero.VAD.Front()
		silero.VAD.Pop()
		if seg == nil || len(seg.Samples) == 0 {
			continue
		}
		begMS := int64(float64(seg.Start) * 1000 / sr)
		endMS := int64(float64(seg.Start+len(seg.Samples)) * 1000 / sr)
		out = append(out, capability.VADSegment{BegMS: begMS, EndMS: endMS})
	}
	return out, nil
}

// ReleaseCache returns the borrowed instance to the pool.
func (v *VAD) ReleaseCache(cache capability.VADCache) {
	c, ok := cache.(*vadCache)
	if !ok || c.instance == nil {
		return
	}
	v.pool.Put(c.instance)
}
