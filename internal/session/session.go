// Package session owns the per-connection streaming pipeline: it wires
// together the audio buffers, VAD driver, diarizer, ASR dispatch, text
// normalization, and line-break classification into one serial task per
// WebSocket connection.
package session

import (
	"context"
	"log/slog"
	"time"

	"speechd/internal/audio"
	"speechd/internal/capability"
	"speechd/internal/diarize"
	"speechd/internal/pool"
	"speechd/internal/segment"
	"speechd/internal/textnorm"
	"speechd/internal/vaddriver"
)

// Config holds the per-session tunables resolved from the service config
// plus the connection's own query parameters (sv, lang).
type Config struct {
	SampleRate           int
	ChunkSizeMS          int
	ThreadPoolMaxWorkers int
	VADBufferSeconds     int

	EnableSV bool
	Lang     string
	UseITN   bool

	VAD     vaddriver.Config
	Diarize diarize.Config
	Segment segment.Config
}

// WireEvent is the outbound JSON shape for one committed segment, matching
// the streaming contract exactly.
type WireEvent struct {
	Code        int    `json:"code"`
	Msg         any    `json:"msg,omitempty"`
	Data        string `json:"data"`
	SpeakerID   any    `json:"speaker_id"`
	IsNewLine   bool   `json:"is_new_line"`
	SegmentType string `json:"segment_type"`
	Timestamp   float64 `json:"timestamp"`
}

// Loop owns one connection's pipeline state. It is not safe for concurrent
// use; the caller (the WebSocket read loop) is its sole driver.
type Loop struct {
	id  string
	cfg Config
	log *slog.Logger

	byteAcc *audio.ByteAccumulator
	frames  *audio.FrameBuffer
	driver  *vaddriver.Driver

	gallery  *diarize.Gallery
	diarizer *diarize.Diarizer

	asr      capability.ASR
	asrCache capability.ASRCache

	eventer *segment.Eventer
	limiter *pool.CapabilityLimiter

	chunkSize int
	send      chan<- WireEvent
}

// New assembles a Loop for one connection. sv is nil when the connection's
// sv query parameter disabled diarization; speaker_id is then always
// diarize.UnknownSpeaker.
func New(id string, cfg Config, vad capability.VAD, asr capability.ASR, sv capability.SV, limiter *pool.CapabilityLimiter, log *slog.Logger, send chan<- WireEvent) *Loop {
	chunkSize := cfg.ChunkSizeMS * cfg.SampleRate / 1000
	capacitySamples := cfg.VADBufferSeconds * cfg.SampleRate

	l := &Loop{
		id:        id,
		cfg:       cfg,
		log:       log,
		byteAcc:   audio.NewByteAccumulator(),
		frames:    audio.NewFrameBuffer(),
		driver:    vaddriver.New(cfg.VAD, vad, capacitySamples, log),
		asr:       asr,
		asrCache:  asr.NewCache(),
		eventer:   segment.New(cfg.Segment),
		limiter:   limiter,
		chunkSize: chunkSize,
		send:      send,
	}
	if cfg.EnableSV && sv != nil {
		l.gallery = diarize.NewGallery()
		l.diarizer = diarize.New(sv, cfg.Diarize, l.gallery, log)
	}
	return l
}

// PushAudio feeds one inbound binary message's bytes through the pipeline.
// Capability and state-violation errors are contained here and never
// returned; only a cancelled context aborts processing early.
func (l *Loop) PushAudio(ctx context.Context, data []byte) {
	samples := l.byteAcc.Push(data)
	l.frames.Append(samples)

	for l.frames.Len() >= l.chunkSize {
		chunk, ok := l.frames.PopFront(l.chunkSize)
		if !ok {
			break
		}
		if ctx.Err() != nil {
			return
		}
		l.stepChunk(ctx, chunk)
	}
}

func (l *Loop) stepChunk(ctx context.Context, chunk []float32) {
	if err := l.limiter.Acquire(ctx); err != nil {
		return
	}
	seg, ok := l.driver.Step(ctx, chunk)
	l.limiter.Release()
	if !ok {
		return
	}
	l.processSegment(ctx, seg)
}

// processSegment dispatches ASR and diarization for one resolved segment in
// parallel, normalizes the recognized text, and emits the resulting event
// unless the text carries no recognizable content (a silent VAD hit).
func (l *Loop) processSegment(ctx context.Context, seg *vaddriver.Segment) {
	type asrResult struct {
		candidates []capability.ASRCandidate
		err        error
	}
	asrDone := make(chan asrResult, 1)
	go func() {
		if err := l.limiter.Acquire(ctx); err != nil {
			asrDone <- asrResult{err: err}
			return
		}
		defer l.limiter.Release()
		candidates, err := l.asr.Recognize(ctx, seg.Samples, l.cfg.Lang, l.asrCache, l.cfg.UseITN)
		asrDone <- asrResult{candidates: candidates, err: err}
	}()

	var speakerID any = diarize.UnknownSpeaker
	if l.diarizer != nil {
		label, err := l.runDiarization(ctx, seg.Samples)
		if err != nil {
			l.log.Debug("diarize_skipped_context_cancelled", "session_id", l.id)
		} else {
			speakerID = label
		}
	}

	res := <-asrDone
	if res.err != nil {
		l.log.Warn("asr_recognize_failed", "session_id", l.id, "error", res.err)
		return
	}
	if len(res.candidates) == 0 {
		l.log.Debug("asr_returned_no_candidates", "session_id", l.id)
		return
	}

	rawText := res.candidates[0].Text
	normalized := textnorm.Normalize(rawText)
	if !textnorm.ContainsChineseEnglishNumber(normalized) {
		l.log.Debug("segment_suppressed_no_content", "session_id", l.id)
		return
	}

	ev := l.eventer.Classify(normalized, speakerIDString(speakerID), seg.BegMS, seg.EndMS, res.candidates)
	l.emit(ev, speakerID)
}

func (l *Loop) runDiarization(ctx context.Context, samples []float32) (string, error) {
	if err := l.limiter.Acquire(ctx); err != nil {
		return "", err
	}
	defer l.limiter.Release()
	return l.diarizer.Assign(ctx, samples)
}

func speakerIDString(v any) string {
	s, _ := v.(string)
	return s
}

func (l *Loop) emit(ev segment.Event, speakerID any) {
	l.send <- WireEvent{
		Code:        0,
		Msg:         ev.Msg,
		Data:        ev.Text,
		SpeakerID:   speakerID,
		IsNewLine:   ev.IsNewLine,
		SegmentType: string(ev.SegmentType),
		Timestamp:   float64(time.Now().UnixNano()) / 1e9,
	}
}

// EmitFatalError sends a single error event ahead of connection teardown.
func (l *Loop) EmitFatalError(code int, msg string) {
	l.send <- WireEvent{
		Code:      code,
		Msg:       msg,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}
}

// RingLen exposes the VADDriver's resident sample count for stats/tests.
func (l *Loop) RingLen() int { return l.driver.RingLen() }

// Close releases pooled resources (the borrowed VAD instance) back to their
// pools. Call once when the connection closes.
func (l *Loop) Close() { l.driver.Close() }
