// Package mock provides deterministic VAD/ASR/SV test doubles satisfying
// internal/capability's interfaces, used by package tests that exercise the
// pipeline end to end without a real model runtime.
package mock

import (
	"context"
	"errors"

	"speechd/internal/capability"
)

// VAD reports a scripted list of transitions per Step call, indexed by call
// order. Calls past the end of the script report no transitions. If Err is
// set, the call at index ErrOnCall (0-indexed) returns it instead.
type VAD struct {
	Script    [][]capability.VADSegment
	ErrOnCall int
	Err       error

	calls int
}

func (v *VAD) NewCache() capability.VADCache { return nil }

func (v *VAD) ReleaseCache(_ capability.VADCache) {}

func (v *VAD) Step(_ context.Context, _ []float32, _ capability.VADCache) ([]capability.VADSegment, error) {
	defer func() { v.calls++ }()
	if v.Err != nil && v.calls == v.ErrOnCall {
		return nil, v.Err
	}
	if v.calls < len(v.Script) {
		return v.Script[v.calls], nil
	}
	return nil, nil
}

// ASR returns a scripted text per call, indexed by call order. If FailOn is
// set, that call index returns Err instead.
type ASR struct {
	Texts   []string
	FailOn  int
	Err     error
	HasFail bool

	calls int
}

func (a *ASR) NewCache() capability.ASRCache { return nil }

func (a *ASR) Recognize(_ context.Context, _ []float32, _ string, _ capability.ASRCache, _ bool) ([]capability.ASRCandidate, error) {
	idx := a.calls
	a.calls++
	if a.HasFail && idx == a.FailOn {
		if a.Err == nil {
			return nil, errors.New("mock asr failure")
		}
		return nil, a.Err
	}
	if idx >= len(a.Texts) {
		return nil, nil
	}
	return []capability.ASRCandidate{{Text: a.Texts[idx]}}, nil
}

// SV compares two segments via a caller-supplied scoring function, letting
// tests express "same speaker" without needing real embeddings.
type SV struct {
	ScoreFunc func(a, b []float32) float32
}

func (s *SV) Score(_ context.Context, a, b []float32) (capability.SVResult, error) {
	return capability.SVResult{Score: s.ScoreFunc(a, b)}, nil
}
