package store

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrSpeakerNotFound is returned by GetSpeaker/DeleteSpeaker when no row
// matches the given speaker_id.
var ErrSpeakerNotFound = errors.New("speaker not found")

// Speaker is one enrolled cross-session voiceprint.
type Speaker struct {
	ID         string
	Name       string
	Embedding  []float32
	SampleRate int
	CreatedAt  time.Time
}

// UpsertSpeaker registers or re-registers a speaker's embedding.
func (db *DB) UpsertSpeaker(s Speaker) error {
	_, err := db.Exec(
		`INSERT INTO speakers (speaker_id, speaker_name, embedding, sample_rate, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(speaker_id) DO UPDATE SET
		   speaker_name = excluded.speaker_name,
		   embedding    = excluded.embedding,
		   sample_rate  = excluded.sample_rate`,
		s.ID, s.Name, encodeEmbedding(s.Embedding), s.SampleRate, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: upsert speaker %q: %w", s.ID, err)
	}
	return nil
}

// GetSpeaker fetches one speaker by ID.
func (db *DB) GetSpeaker(id string) (Speaker, error) {
	row := db.QueryRow(
		`SELECT speaker_id, speaker_name, embedding, sample_rate, created_at FROM speakers WHERE speaker_id = ?`,
		id,
	)
	return scanSpeaker(row)
}

// ListSpeakers returns every enrolled speaker.
func (db *DB) ListSpeakers() ([]Speaker, error) {
	rows, err := db.Query(`SELECT speaker_id, speaker_name, embedding, sample_rate, created_at FROM speakers ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("store: list speakers: %w", err)
	}
	defer rows.Close()

	var out []Speaker
	for rows.Next() {
		s, err := scanSpeakerRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteSpeaker removes one enrolled speaker. Returns ErrSpeakerNotFound if
// no row matched.
func (db *DB) DeleteSpeaker(id string) error {
	res, err := db.Exec(`DELETE FROM speakers WHERE speaker_id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete speaker %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete speaker %q: %w", id, err)
	}
	if n == 0 {
		return ErrSpeakerNotFound
	}
	return nil
}

// CountSpeakers reports the number of enrolled speakers.
func (db *DB) CountSpeakers() (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM speakers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count speakers: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSpeaker(row *sql.Row) (Speaker, error) {
	s, err := scanSpeakerScanner(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Speaker{}, ErrSpeakerNotFound
	}
	return s, err
}

func scanSpeakerRows(rows *sql.Rows) (Speaker, error) {
	return scanSpeakerScanner(rows)
}

func scanSpeakerScanner(sc scanner) (Speaker, error) {
	var (
		s         Speaker
		embedding []byte
		createdAt int64
	)
	if err := sc.Scan(&s.ID, &s.Name, &embedding, &s.SampleRate, &createdAt); err != nil {
		return Speaker{}, err
	}
	s.Embedding = decodeEmbedding(embedding)
	s.CreatedAt = time.Unix(createdAt, 0)
	return s, nil
}

func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
