package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrRecordingNotFound is returned when no recording row matches the given id.
var ErrRecordingNotFound = errors.New("recording not found")

// RecordingStatus is one state in a recording's offline-reprocessing
// lifecycle: uploaded -> processing -> summarized -> done (or failed).
type RecordingStatus string

const (
	StatusUploaded   RecordingStatus = "uploaded"
	StatusProcessing RecordingStatus = "processing"
	StatusSummarized RecordingStatus = "summarized"
	StatusDone       RecordingStatus = "done"
	StatusFailed     RecordingStatus = "failed"
)

// Recording is one catalog entry for an uploaded audio file moving through
// the offline reprocessing pipeline.
type Recording struct {
	ID         string          `json:"id"`
	Status     RecordingStatus `json:"status"`
	AudioPath  string          `json:"audio_path"`
	Transcript string          `json:"transcript,omitempty"`
	Summary    string          `json:"summary,omitempty"`
	Keywords   []string        `json:"keywords,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// CreateRecording inserts a new catalog entry in the "uploaded" state.
func (db *DB) CreateRecording(id, audioPath string) error {
	now := time.Now().Unix()
	_, err := db.Exec(
		`INSERT INTO recordings (id, status, audio_path, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, StatusUploaded, audioPath, now, now,
	)
	if err != nil {
		return fmt.Errorf("store: create recording %q: %w", id, err)
	}
	return nil
}

// SetStatus transitions a recording to a new status.
func (db *DB) SetStatus(id string, status RecordingStatus) error {
	return db.update(id, `UPDATE recordings SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().Unix(), id)
}

// SetFailed records a terminal failure with its cause.
func (db *DB) SetFailed(id string, cause error) error {
	return db.update(id, `UPDATE recordings SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		StatusFailed, cause.Error(), time.Now().Unix(), id)
}

// SetTranscript records the batch-replayed transcript; the recording's status
// is left unchanged.
func (db *DB) SetTranscript(id, transcript string) error {
	return db.update(id, `UPDATE recordings SET transcript = ?, updated_at = ? WHERE id = ?`,
		transcript, time.Now().Unix(), id)
}

// SetSummary records the summarizer's output and advances the recording to
// "summarized".
func (db *DB) SetSummary(id, summary string, keywords []string) error {
	return db.update(id, `UPDATE recordings SET summary = ?, keywords = ?, status = ?, updated_at = ? WHERE id = ?`,
		summary, strings.Join(keywords, ","), StatusSummarized, time.Now().Unix(), id)
}

func (db *DB) update(id string, query string, args ...any) error {
	res, err := db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("store: update recording %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update recording %q: %w", id, err)
	}
	if n == 0 {
		return ErrRecordingNotFound
	}
	return nil
}

// GetRecording fetches one recording by ID.
func (db *DB) GetRecording(id string) (Recording, error) {
	row := db.QueryRow(
		`SELECT id, status, audio_path, transcript, summary, keywords, error, created_at, updated_at
		 FROM recordings WHERE id = ?`, id,
	)
	r, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Recording{}, ErrRecordingNotFound
	}
	return r, err
}

// ListRecordings returns every catalog entry, most recent first.
func (db *DB) ListRecordings() ([]Recording, error) {
	rows, err := db.Query(
		`SELECT id, status, audio_path, transcript, summary, keywords, error, created_at, updated_at
		 FROM recordings ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list recordings: %w", err)
	}
	defer rows.Close()

	var out []Recording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRecording(sc scanner) (Recording, error) {
	var (
		r         Recording
		keywords  string
		createdAt int64
		updatedAt int64
	)
	if err := sc.Scan(&r.ID, &r.Status, &r.AudioPath, &r.Transcript, &r.Summary, &keywords, &r.Error, &createdAt, &updatedAt); err != nil {
		return Recording{}, err
	}
	if keywords != "" {
		r.Keywords = strings.Split(keywords, ",")
	}
	r.CreatedAt = time.Unix(createdAt, 0)
	r.UpdatedAt = time.Unix(updatedAt, 0)
	return r, nil
}
