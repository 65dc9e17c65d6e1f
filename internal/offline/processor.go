// Package offline is the recording catalog and reprocessing pipeline: a
// recording moves through uploaded -> processing -> summarized -> done (or
// failed), replaying the same VAD/ASR/diarization capabilities the live
// WebSocket pipeline uses against an uploaded WAV file instead of a live
// socket, then handing the finished transcript to the summarizer
// collaborator.
package offline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-audio/wav"

	"speechd/config"
	"speechd/internal/capability"
	"speechd/internal/pool"
	"speechd/internal/session"
	"speechd/internal/store"
	"speechd/internal/summarize"
	"speechd/internal/ws"
)

// Processor drives the batch-replay pipeline for uploaded recordings.
type Processor struct {
	cfg        *config.Config
	vad        capability.VAD
	asr        capability.ASR
	sv         capability.SV
	limiter    *pool.CapabilityLimiter
	db         *store.DB
	summarizer *summarize.Client
	log        *slog.Logger
}

// New builds a Processor from the service's already-constructed
// capabilities. summarizer may be nil, in which case recordings stop at
// "processing" with their transcript recorded but no summary.
func New(cfg *config.Config, vad capability.VAD, asr capability.ASR, sv capability.SV, db *store.DB, summarizer *summarize.Client, log *slog.Logger) *Processor {
	return &Processor{
		cfg:        cfg,
		vad:        vad,
		asr:        asr,
		sv:         sv,
		limiter:    pool.NewCapabilityLimiter(cfg.Pipeline.ThreadPoolMaxWorkers),
		db:         db,
		summarizer: summarizer,
		log:        log,
	}
}

// Submit registers a new recording and starts its reprocessing in the
// background. It returns immediately with the catalog id; callers poll
// Get for progress.
func (p *Processor) Submit(id, audioPath string) error {
	if err := p.db.CreateRecording(id, audioPath); err != nil {
		return fmt.Errorf("offline: submit %q: %w", id, err)
	}
	go p.run(id, audioPath)
	return nil
}

func (p *Processor) run(id, audioPath string) {
	ctx := context.Background()

	if err := p.db.SetStatus(id, store.StatusProcessing); err != nil {
		p.log.Error("offline_status_update_failed", "recording_id", id, "error", err)
		return
	}

	transcript, err := p.replay(ctx, audioPath)
	if err != nil {
		p.log.Error("offline_replay_failed", "recording_id", id, "error", err)
		_ = p.db.SetFailed(id, err)
		return
	}
	if err := p.db.SetTranscript(id, transcript); err != nil {
		p.log.Error("offline_transcript_save_failed", "recording_id", id, "error", err)
		return
	}

	if p.summarizer == nil {
		p.log.Info("offline_recording_processed_no_summarizer", "recording_id", id)
		return
	}

	result, err := p.summarizer.Summarize(ctx, transcript)
	if err != nil {
		p.log.Error("offline_summarize_failed", "recording_id", id, "error", err)
		_ = p.db.SetFailed(id, err)
		return
	}
	if err := p.db.SetSummary(id, result.Summary, result.Keywords); err != nil {
		p.log.Error("offline_summary_save_failed", "recording_id", id, "error", err)
		return
	}
	if err := p.db.SetStatus(id, store.StatusDone); err != nil {
		p.log.Error("offline_status_update_failed", "recording_id", id, "error", err)
	}
}

// replay decodes the WAV file and drives it through a fresh session.Loop
// chunk by chunk, exactly as a live connection would, collecting every
// committed segment's text into one transcript.
func (p *Processor) replay(ctx context.Context, audioPath string) (string, error) {
	samples, sampleRate, err := decodeWAV(audioPath)
	if err != nil {
		return "", fmt.Errorf("decode wav: %w", err)
	}

	cfg := ws.SessionConfigFromService(p.cfg, p.sv != nil, p.cfg.Recognition.Language)
	cfg.SampleRate = sampleRate
	cfg.VAD.SampleRate = sampleRate
	cfg.Diarize.SampleRate = sampleRate

	send := make(chan session.WireEvent, 64)
	var lines []string
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for ev := range send {
			if ev.Data != "" {
				lines = append(lines, ev.Data)
			}
		}
	}()

	loop := session.New("offline-"+audioPath, cfg, p.vad, p.asr, p.sv, p.limiter, p.log, send)
	defer loop.Close()

	chunkBytes := cfg.ChunkSizeMS * sampleRate / 1000 * 2 // int16 LE bytes per sample
	pcm := float32sToInt16LE(samples)
	for off := 0; off < len(pcm); off += chunkBytes {
		end := off + chunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if ctx.Err() != nil {
			break
		}
		loop.PushAudio(ctx, pcm[off:end])
	}

	close(send)
	<-collected

	return strings.Join(lines, "\n"), nil
}

func decodeWAV(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid WAV file: %s", path)
	}
	buffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode pcm: %w", err)
	}

	samples := make([]float32, len(buffer.Data))
	for i, s := range buffer.Data {
		samples[i] = float32(s) / 32768.0
	}

	numChannels := int(decoder.NumChans)
	if numChannels == 2 {
		mono := make([]float32, len(samples)/2)
		for i := range mono {
			mono[i] = (samples[i*2] + samples[i*2+1]) / 2.0
		}
		samples = mono
	}

	return samples, int(decoder.SampleRate), nil
}

func float32sToInt16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		scaled := s * 32768.0
		switch {
		case scaled > 32767:
			scaled = 32767
		case scaled < -32768:
			scaled = -32768
		}
		v := int16(scaled)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
