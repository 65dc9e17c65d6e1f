package session

import (
	"context"
	"encoding/binary"
	"log/slog"
	"os"
	"testing"
	"time"

	"speechd/internal/capability"
	"speechd/internal/capability/mock"
	"speechd/internal/diarize"
	"speechd/internal/pool"
	"speechd/internal/segment"
	"speechd/internal/vaddriver"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func defaultConfig(sr int) Config {
	return Config{
		SampleRate:           sr,
		ChunkSizeMS:          300,
		ThreadPoolMaxWorkers: 4,
		VADBufferSeconds:     15,
		EnableSV:             false,
		Lang:                 "auto",
		UseITN:               true,
		VAD:                  vaddriver.DefaultConfig(sr),
		Diarize:              diarize.DefaultConfig(sr),
		Segment:              segment.DefaultConfig(),
	}
}

// pcmSilence builds n samples worth of zero-valued little-endian int16 PCM.
func pcmSilence(n int) []byte {
	return make([]byte, n*2)
}

// S1: silent input produces no events and the ring never exceeds capacity.
func TestLoop_SilentInputProducesNoEvents(t *testing.T) {
	sr := 16000
	cfg := defaultConfig(sr)
	vad := &mock.VAD{}
	asr := &mock.ASR{}
	limiter := pool.NewCapabilityLimiter(4)
	out := make(chan WireEvent, 16)

	loop := New("s1", cfg, vad, asr, nil, limiter, testLogger(), out)

	ctx := context.Background()
	silence := pcmSilence(sr * 10)
	chunkBytes := 3200 // 1600 samples * 2 bytes, arbitrary transport chunking
	for i := 0; i < len(silence); i += chunkBytes {
		end := i + chunkBytes
		if end > len(silence) {
			end = len(silence)
		}
		loop.PushAudio(ctx, silence[i:end])
	}

	select {
	case ev := <-out:
		t.Fatalf("expected no events on silent input, got %+v", ev)
	default:
	}
	if loop.RingLen() > cfg.VADBufferSeconds*sr {
		t.Fatalf("ring exceeded capacity: %d", loop.RingLen())
	}
}

func int16LEBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// S2-shaped: a single utterance round-trips through normalization and the
// line-break classifier with sv disabled (speaker_id is diarize.UnknownSpeaker).
func TestLoop_SingleUtteranceEmitsNormalizedEvent(t *testing.T) {
	sr := 16000
	cfg := defaultConfig(sr)
	cfg.EnableSV = false

	// chunkSize = 300ms*16000/1000 = 4800 samples per chunk.
	vad := &mock.VAD{
		Script: [][]capability.VADSegment{
			{}, {}, {}, {{BegMS: 100, EndMS: -1}},
			{{BegMS: -1, EndMS: 1200}},
		},
	}
	asr := &mock.ASR{Texts: []string{"<|zh|><|HAPPY|>你好"}}
	limiter := pool.NewCapabilityLimiter(4)
	out := make(chan WireEvent, 16)

	loop := New("s2", cfg, vad, asr, nil, limiter, testLogger(), out)

	ctx := context.Background()
	chunkSamples := cfg.ChunkSizeMS * sr / 1000
	for i := 0; i < 20; i++ {
		data := int16LEBytes(make([]int16, chunkSamples))
		loop.PushAudio(ctx, data)
	}

	select {
	case ev := <-out:
		if ev.Data != "你好😊" {
			t.Fatalf("unexpected normalized text: %q", ev.Data)
		}
		if ev.SpeakerID != diarize.UnknownSpeaker {
			t.Fatalf("expected default speaker_id %q with sv disabled, got %v", diarize.UnknownSpeaker, ev.SpeakerID)
		}
		if ev.SegmentType != string(segment.TypeNewSpeaker) || !ev.IsNewLine {
			t.Fatalf("expected new_speaker first event, got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected one event, got none")
	}
}

// S5-shaped: an ASR failure on one segment suppresses only that segment's
// event; the session keeps running for the next one.
func TestLoop_ASRFailureSuppressesOnlyThatSegment(t *testing.T) {
	sr := 16000
	cfg := defaultConfig(sr)

	// Each chunk is 300ms (4800 samples @ 16kHz). The first transition
	// reports at call index 1 (two chunks, 9600 samples resident) with a
	// window needing 8000 samples — comfortably resolvable. After it
	// resolves, offset_ms advances by the dropped prefix; the second
	// transition's times are chosen against that advanced offset so its
	// window also resolves once enough chunks have landed.
	vad := &mock.VAD{
		Script: [][]capability.VADSegment{
			{},
			{{BegMS: 0, EndMS: 500}},
			{},
			{},
			{},
			{{BegMS: 600, EndMS: 1100}},
		},
	}
	asr := &mock.ASR{
		Texts:   []string{"<|zh|>A", "<|zh|>B"},
		HasFail: true,
		FailOn:  0,
	}
	limiter := pool.NewCapabilityLimiter(4)
	out := make(chan WireEvent, 16)
	loop := New("s5", cfg, vad, asr, nil, limiter, testLogger(), out)

	ctx := context.Background()
	chunkSamples := cfg.ChunkSizeMS * sr / 1000
	for i := 0; i < 8; i++ {
		data := int16LEBytes(make([]int16, chunkSamples))
		loop.PushAudio(ctx, data)
	}

	select {
	case ev := <-out:
		if ev.Data != "B" {
			t.Fatalf("expected only the second segment's event, got %q", ev.Data)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected one surviving event")
	}
	select {
	case ev := <-out:
		t.Fatalf("expected no second event, got %+v", ev)
	default:
	}
}
