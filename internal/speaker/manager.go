// Package speaker is the enrolled-voiceprint gallery: registering a
// speaker's reference audio, identifying an unknown segment against the
// whole gallery, and verifying a segment against one claimed identity.
// It sits on top of internal/store for persistence and a
// sherpaadapter.SV-shaped embedding extractor for the comparisons.
package speaker

import (
	"fmt"
	"sort"
	"sync"

	"speechd/internal/capability/sherpaadapter"
	"speechd/internal/store"
)

// Embedder computes a fixed-length embedding for one audio segment.
// Satisfied by *sherpaadapter.SV.
type Embedder interface {
	Embed(samples []float32) ([]float32, error)
	SampleRate() int
}

// Manager owns the enrolled-speaker gallery backed by sqlite and the
// embedding extractor used to register and compare voiceprints.
type Manager struct {
	db        *store.DB
	embedder  Embedder
	threshold float32

	mu    sync.RWMutex
	cache map[string]store.Speaker // speaker_id -> row, refreshed on writes
}

// NewManager loads the persisted gallery into memory and returns a ready
// Manager. threshold is the minimum cosine similarity counted as a match.
func NewManager(db *store.DB, embedder Embedder, threshold float32) (*Manager, error) {
	m := &Manager{db: db, embedder: embedder, threshold: threshold, cache: make(map[string]store.Speaker)}
	if err := m.reload(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) reload() error {
	speakers, err := m.db.ListSpeakers()
	if err != nil {
		return fmt.Errorf("speaker: load gallery: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]store.Speaker, len(speakers))
	for _, s := range speakers {
		m.cache[s.ID] = s
	}
	return nil
}

// RegisterSpeaker enrolls a speaker's reference audio, overwriting any
// previous enrollment under the same id.
func (m *Manager) RegisterSpeaker(id, name string, audio []float32, sampleRate int) error {
	embedding, err := m.embedder.Embed(audio)
	if err != nil {
		return fmt.Errorf("speaker: compute embedding: %w", err)
	}

	s := store.Speaker{ID: id, Name: name, Embedding: embedding, SampleRate: sampleRate}
	if err := m.db.UpsertSpeaker(s); err != nil {
		return fmt.Errorf("speaker: persist %q: %w", id, err)
	}

	m.mu.Lock()
	m.cache[id] = s
	m.mu.Unlock()
	return nil
}

// IdentifyResult is the outcome of comparing one audio segment against the
// whole gallery.
type IdentifyResult struct {
	SpeakerID   string  `json:"speaker_id,omitempty"`
	SpeakerName string  `json:"speaker_name,omitempty"`
	Score       float32 `json:"score"`
	Matched     bool    `json:"matched"`
}

// IdentifySpeaker compares audio against every enrolled speaker and returns
// the best match, if any clears the configured threshold.
func (m *Manager) IdentifySpeaker(audio []float32, sampleRate int) (IdentifyResult, error) {
	embedding, err := m.embedder.Embed(audio)
	if err != nil {
		return IdentifyResult{}, fmt.Errorf("speaker: compute embedding: %w", err)
	}

	m.mu.RLock()
	speakers := make([]store.Speaker, 0, len(m.cache))
	for _, s := range m.cache {
		speakers = append(speakers, s)
	}
	m.mu.RUnlock()

	var best store.Speaker
	var bestScore float32 = -1
	for _, s := range speakers {
		score := sherpaadapter.CosineSimilarity(embedding, s.Embedding)
		if score > bestScore {
			bestScore, best = score, s
		}
	}

	if bestScore < 0 {
		return IdentifyResult{Matched: false}, nil
	}
	if bestScore < m.threshold {
		return IdentifyResult{Score: bestScore, Matched: false}, nil
	}
	return IdentifyResult{SpeakerID: best.ID, SpeakerName: best.Name, Score: bestScore, Matched: true}, nil
}

// VerifyResult is the outcome of comparing audio against one claimed
// identity.
type VerifyResult struct {
	SpeakerID string  `json:"speaker_id"`
	Score     float32 `json:"score"`
	Verified  bool    `json:"verified"`
}

// VerifySpeaker compares audio against the single speaker named by id.
func (m *Manager) VerifySpeaker(id string, audio []float32, sampleRate int) (VerifyResult, error) {
	m.mu.RLock()
	s, ok := m.cache[id]
	m.mu.RUnlock()
	if !ok {
		return VerifyResult{}, fmt.Errorf("speaker %q: %w", id, store.ErrSpeakerNotFound)
	}

	embedding, err := m.embedder.Embed(audio)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("speaker: compute embedding: %w", err)
	}

	score := sherpaadapter.CosineSimilarity(embedding, s.Embedding)
	return VerifyResult{SpeakerID: id, Score: score, Verified: score >= m.threshold}, nil
}

// SpeakerInfo is the gallery listing's public shape; it omits the raw
// embedding vector.
type SpeakerInfo struct {
	SpeakerID   string `json:"speaker_id"`
	SpeakerName string `json:"speaker_name"`
}

// GetAllSpeakers lists every enrolled speaker, sorted by id.
func (m *Manager) GetAllSpeakers() []SpeakerInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]SpeakerInfo, 0, len(m.cache))
	for _, s := range m.cache {
		out = append(out, SpeakerInfo{SpeakerID: s.ID, SpeakerName: s.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SpeakerID < out[j].SpeakerID })
	return out
}

// DeleteSpeaker removes a speaker from the gallery.
func (m *Manager) DeleteSpeaker(id string) error {
	if err := m.db.DeleteSpeaker(id); err != nil {
		return fmt.Errorf("speaker: delete %q: %w", id, err)
	}
	m.mu.Lock()
	delete(m.cache, id)
	m.mu.Unlock()
	return nil
}

// GetStats reports gallery size for the service's /stats endpoint.
func (m *Manager) GetStats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]any{
		"enrolled_speakers": len(m.cache),
		"threshold":         m.threshold,
	}
}
