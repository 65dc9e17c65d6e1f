package speaker

import (
	"path/filepath"
	"testing"

	"speechd/internal/store"
)

// stubEmbedder returns the audio samples themselves as the embedding, so
// tests can control similarity directly through the input vectors.
type stubEmbedder struct{}

func (stubEmbedder) Embed(samples []float32) ([]float32, error) { return samples, nil }
func (stubEmbedder) SampleRate() int                             { return 16000 }

func newTestManager(t *testing.T, threshold float32) *Manager {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m, err := NewManager(db, stubEmbedder{}, threshold)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestRegisterAndIdentify(t *testing.T) {
	m := newTestManager(t, 0.9)

	if err := m.RegisterSpeaker("spk-1", "Alice", []float32{1, 0, 0}, 16000); err != nil {
		t.Fatalf("RegisterSpeaker: %v", err)
	}

	result, err := m.IdentifySpeaker([]float32{1, 0, 0}, 16000)
	if err != nil {
		t.Fatalf("IdentifySpeaker: %v", err)
	}
	if !result.Matched || result.SpeakerID != "spk-1" {
		t.Fatalf("IdentifySpeaker = %+v, want a match on spk-1", result)
	}
}

func TestIdentifyBelowThreshold(t *testing.T) {
	m := newTestManager(t, 0.99)

	m.RegisterSpeaker("spk-1", "Alice", []float32{1, 0, 0}, 16000)

	result, err := m.IdentifySpeaker([]float32{0, 1, 0}, 16000)
	if err != nil {
		t.Fatalf("IdentifySpeaker: %v", err)
	}
	if result.Matched {
		t.Fatalf("IdentifySpeaker matched an orthogonal vector: %+v", result)
	}
}

func TestIdentifyEmptyGallery(t *testing.T) {
	m := newTestManager(t, 0.9)

	result, err := m.IdentifySpeaker([]float32{1, 0, 0}, 16000)
	if err != nil {
		t.Fatalf("IdentifySpeaker: %v", err)
	}
	if result.Matched {
		t.Fatalf("IdentifySpeaker matched against an empty gallery: %+v", result)
	}
}

func TestVerifySpeaker(t *testing.T) {
	m := newTestManager(t, 0.9)
	m.RegisterSpeaker("spk-1", "Alice", []float32{1, 0, 0}, 16000)

	ok, err := m.VerifySpeaker("spk-1", []float32{1, 0, 0}, 16000)
	if err != nil {
		t.Fatalf("VerifySpeaker: %v", err)
	}
	if !ok.Verified {
		t.Fatalf("VerifySpeaker = %+v, want verified", ok)
	}

	if _, err := m.VerifySpeaker("missing", []float32{1, 0, 0}, 16000); err == nil {
		t.Fatal("VerifySpeaker(missing speaker) succeeded, want error")
	}
}

func TestDeleteSpeaker(t *testing.T) {
	m := newTestManager(t, 0.9)
	m.RegisterSpeaker("spk-1", "Alice", []float32{1, 0, 0}, 16000)

	if err := m.DeleteSpeaker("spk-1"); err != nil {
		t.Fatalf("DeleteSpeaker: %v", err)
	}
	if len(m.GetAllSpeakers()) != 0 {
		t.Fatalf("GetAllSpeakers after delete = %v, want empty", m.GetAllSpeakers())
	}
}

func TestReloadFromPersistedGallery(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer db.Close()

	db.UpsertSpeaker(store.Speaker{ID: "spk-1", Name: "Alice", Embedding: []float32{1, 0, 0}, SampleRate: 16000})

	m, err := NewManager(db, stubEmbedder{}, 0.9)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	speakers := m.GetAllSpeakers()
	if len(speakers) != 1 || speakers[0].SpeakerID != "spk-1" {
		t.Fatalf("GetAllSpeakers after reload = %v", speakers)
	}
}
