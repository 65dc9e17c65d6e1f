// Package diarize assigns a speaker label to each resolved segment using a
// per-session voiceprint gallery and a two-band hysteresis decision rule,
// backed by a pluggable speaker-verification capability.
package diarize

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"speechd/internal/capability"
)

// UnknownSpeaker is returned when the audio quality gate rejects a segment
// and no speaker is yet active for the session.
const UnknownSpeaker = "发言人"

// Config holds the tunables governing the quality gate and the decision
// rule's threshold bands.
type Config struct {
	SampleRate int

	MinAudioMS float64
	MaxAudioMS float64
	MinEnergy  float64
	MinVariance float64

	// Threshold is the base similarity threshold (tau).
	Threshold float32
}

// DefaultConfig matches the pipeline's shipped tunables.
func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate:  sampleRate,
		MinAudioMS:  800,
		MaxAudioMS:  5000,
		MinEnergy:   0.005,
		MinVariance: 0.0005,
		Threshold:   0.42,
	}
}

// HistoryEntry records one committed (or continuity-confirmed) decision.
type HistoryEntry struct {
	Label      string
	Confidence float32
	At         time.Time
}

// Gallery is a per-session map of speaker label to one reference audio
// segment, plus the monotonic counter used to mint new labels. It is never
// shared between sessions.
type Gallery struct {
	refs    map[string][]float32
	order   []string
	counter int
}

// NewGallery creates an empty gallery.
func NewGallery() *Gallery {
	return &Gallery{refs: make(map[string][]float32)}
}

// Len reports the number of enrolled speakers.
func (g *Gallery) Len() int { return len(g.refs) }

// Counter reports the monotonic speaker counter.
func (g *Gallery) Counter() int { return g.counter }

func (g *Gallery) insert(samples []float32) string {
	g.counter++
	label := fmt.Sprintf("%s%d", UnknownSpeaker, g.counter)
	g.refs[label] = samples
	g.order = append(g.order, label)
	return label
}

// Diarizer holds the shared SV capability and the per-session gallery and
// cursor state (current speaker, decision history).
type Diarizer struct {
	sv  capability.SV
	cfg Config
	log *slog.Logger

	gallery        *Gallery
	history        []HistoryEntry
	currentSpeaker string
}

// New creates a Diarizer bound to one session's gallery.
func New(sv capability.SV, cfg Config, gallery *Gallery, log *slog.Logger) *Diarizer {
	return &Diarizer{sv: sv, cfg: cfg, gallery: gallery, log: log}
}

// CurrentSpeaker reports the speaker the diarizer last committed to.
func (d *Diarizer) CurrentSpeaker() string { return d.currentSpeaker }

// Assign runs the audio quality gate and, if it passes, the diarization
// decision rule against the session gallery, returning the chosen label.
func (d *Diarizer) Assign(ctx context.Context, samples []float32) (string, error) {
	if !d.qualityOK(samples) {
		if d.currentSpeaker != "" {
			d.log.Debug("diarize_quality_gate_rejected_using_current", "speaker", d.currentSpeaker)
			return d.currentSpeaker, nil
		}
		d.log.Debug("diarize_quality_gate_rejected_no_current_speaker")
		return UnknownSpeaker, nil
	}

	if d.gallery.Len() == 0 {
		label := d.gallery.insert(samples)
		d.currentSpeaker = label
		d.record(label, 1.0)
		d.log.Info("diarize_first_speaker", "speaker", label)
		return label, nil
	}

	labels, scores, err := d.scoreAll(ctx, samples)
	if err != nil {
		return "", err
	}
	if len(scores) == 0 {
		if d.currentSpeaker != "" {
			return d.currentSpeaker, nil
		}
		return UnknownSpeaker, nil
	}

	best, bestScore := argmax(labels, scores)
	tau := d.cfg.Threshold
	dynamicTau := tau
	if cur, ok := scores[d.currentSpeaker]; ok && cur > 0.8*tau {
		dynamicTau = 1.1 * tau
	}

	if d.currentSpeaker != "" && best == d.currentSpeaker && bestScore >= 0.6*tau {
		d.log.Info("diarize_continuity", "speaker", d.currentSpeaker, "score", bestScore)
		d.record(d.currentSpeaker, clampConfidence(bestScore, 1.0))
		return d.currentSpeaker, nil
	}

	if bestScore >= dynamicTau {
		d.currentSpeaker = best
		d.log.Info("diarize_matched_existing", "speaker", best, "score", bestScore)
		d.record(best, clampConfidence(bestScore, 1.0))
		return best, nil
	}

	if allBelow(scores, 0.7*tau) {
		label := d.gallery.insert(samples)
		d.currentSpeaker = label
		d.log.Info("diarize_new_speaker", "speaker", label, "best_score", bestScore)
		d.record(label, 0.8)
		return label, nil
	}

	d.currentSpeaker = best
	d.log.Debug("diarize_ambiguous_best_match", "speaker", best, "score", bestScore)
	d.record(best, min(0.7, bestScore))
	return best, nil
}

func (d *Diarizer) record(label string, confidence float32) {
	d.history = append(d.history, HistoryEntry{Label: label, Confidence: confidence, At: time.Now()})
}

// scoreAll fans the segment out against every gallery entry concurrently.
// A single entry's SV failure is logged and excluded from the result map;
// it never aborts the other in-flight comparisons. Labels are returned in
// gallery insertion order so callers can break score ties deterministically
// instead of depending on map iteration order.
func (d *Diarizer) scoreAll(ctx context.Context, samples []float32) ([]string, map[string]float32, error) {
	labels := append([]string(nil), d.gallery.order...)

	results := make([]float32, len(labels))
	ok := make([]bool, len(labels))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, label := range labels {
		i, label := i, label
		ref := d.gallery.refs[label]
		eg.Go(func() error {
			res, err := d.sv.Score(egCtx, samples, ref)
			if err != nil {
				d.log.Warn("diarize_sv_score_failed", "speaker", label, "error", err)
				return nil
			}
			results[i] = res.Score
			ok[i] = true
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	scores := make(map[string]float32, len(labels))
	for i, label := range labels {
		if ok[i] {
			scores[label] = results[i]
		}
	}
	return labels, scores, nil
}

func (d *Diarizer) qualityOK(samples []float32) bool {
	if len(samples) == 0 {
		return false
	}
	durationMS := float64(len(samples)) * 1000 / float64(d.cfg.SampleRate)
	if durationMS < d.cfg.MinAudioMS || durationMS > d.cfg.MaxAudioMS {
		return false
	}
	if meanAbs(samples) < d.cfg.MinEnergy {
		return false
	}
	if variance(samples) < d.cfg.MinVariance {
		return false
	}
	return true
}

// argmax returns the highest-scoring label, iterating labels in the given
// order and keeping the earliest on a tie so the result is deterministic
// regardless of map iteration order.
func argmax(labels []string, scores map[string]float32) (string, float32) {
	var best string
	var bestScore float32 = -1
	for _, label := range labels {
		score, ok := scores[label]
		if ok && score > bestScore {
			best, bestScore = label, score
		}
	}
	return best, bestScore
}

func allBelow(scores map[string]float32, ceiling float32) bool {
	for _, score := range scores {
		if score >= ceiling {
			return false
		}
	}
	return true
}

func clampConfidence(score, ceiling float32) float32 {
	if score > ceiling {
		return ceiling
	}
	if score < 0 {
		return 0
	}
	return score
}

func meanAbs(samples []float32) float64 {
	var sum float64
	for _, s := range samples {
		sum += math.Abs(float64(s))
	}
	return sum / float64(len(samples))
}

func variance(samples []float32) float64 {
	mean := 0.0
	for _, s := range samples {
		mean += float64(s)
	}
	mean /= float64(len(samples))

	var sumSq float64
	for _, s := range samples {
		d := float64(s) - mean
		sumSq += d * d
	}
	return sumSq / float64(len(samples))
}
