package sherpaadapter

import (
	"context"
	"fmt"
	"math"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"speechd/internal/capability"
)

// SV adapts a sherpa speaker-embedding extractor to capability.SV, computing
// one embedding per side and comparing them with cosine similarity. The
// extractor is safe to share across the worker pool: each call opens its own
// stream and the embedding computation is read-only with respect to the
// extractor's model weights.
type SV struct {
	extractor  *sherpa.SpeakerEmbeddingExtractor
	sampleRate int
}

func NewSV(extractor *sherpa.SpeakerEmbeddingExtractor, sampleRate int) *SV {
	return &SV{extractor: extractor, sampleRate: sampleRate}
}

func (s *SV) Score(_ context.Context, a, b []float32) (capability.SVResult, error) {
	ea, err := s.embed(a)
	if err != nil {
		return capability.SVResult{}, fmt.Errorf("sherpaadapter: embedding segment a: %w", err)
	}
	eb, err := s.embed(b)
	if err != nil {
		return capability.SVResult{}, fmt.Errorf("sherpaadapter: embedding segment b: %w", err)
	}
	return capability.SVResult{Score: cosineSimilarity(ea, eb)}, nil
}

// Embed computes the raw embedding vector for one audio segment, for
// collaborators (the speaker gallery) that persist embeddings directly
// instead of going through Score's pairwise comparison.
func (s *SV) Embed(samples []float32) ([]float32, error) {
	return s.embed(samples)
}

// SampleRate reports the sample rate this extractor expects its input at.
func (s *SV) SampleRate() int { return s.sampleRate }

func (s *SV) embed(samples []float32) ([]float32, error) {
	stream := sherpa.NewSpeakerEmbeddingStream(s.extractor)
	defer sherpa.DeleteSpeakerEmbeddingStream(stream)

	stream.AcceptWaveform(s.sampleRate, samples)
	stream.InputFinished()

	if !s.extractor.IsReady(stream) {
		return nil, fmt.Errorf("embedding extractor not ready for this segment")
	}
	return s.extractor.Compute(stream), nil
}

// CosineSimilarity compares two already-computed embeddings, for
// collaborators that keep a gallery of persisted vectors and only need to
// score a fresh embedding against them.
func CosineSimilarity(a, b []float32) float32 {
	return cosineSimilarity(a, b)
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
