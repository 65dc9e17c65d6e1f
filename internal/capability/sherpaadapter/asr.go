package sherpaadapter

import (
	"context"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"speechd/internal/capability"
)

// ASR adapts a shared sherpa OfflineRecognizer (SenseVoice) to
// capability.ASR. The recognizer is safe to decode from multiple goroutines
// concurrently since all per-utterance state lives on the OfflineStream
// created for each call; language and inverse-text-normalization are baked
// into the recognizer at construction time (see bootstrap), so the per-call
// lang/useITN hints are accepted for interface symmetry but not threaded
// through — SenseVoice's own "auto" language mode already detects per
// segment.
type ASR struct {
	recognizer *sherpa.OfflineRecognizer
	sampleRate int
}

func NewASR(recognizer *sherpa.OfflineRecognizer, sampleRate int) *ASR {
	return &ASR{recognizer: recognizer, sampleRate: sampleRate}
}

func (a *ASR) NewCache() capability.ASRCache { return nil }

func (a *ASR) Recognize(ctx context.Context, audio []float32, _ string, _ capability.ASRCache, _ bool) ([]capability.ASRCandidate, error) {
	stream := sherpa.NewOfflineStream(a.recognizer)
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(a.sampleRate, audio)
	a.recognizer.Decode(stream)
	result := stream.GetResult()
	if result == nil {
		return nil, nil
	}
	return []capability.ASRCandidate{{Text: result.Text}}, nil
}
