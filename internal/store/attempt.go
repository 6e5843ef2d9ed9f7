package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Attempt is a finished screening run.
type Attempt struct {
	ID         string          `json:"id"`
	Flow       string          `json:"flow"`
	Outcome    string          `json:"outcome"`
	ResultText string          `json:"result_text,omitempty"`
	Response   json.RawMessage `json:"response,omitempty"`
	Error      string          `json:"error,omitempty"`
	Frames     int             `json:"frames"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Frame is one stored still of an attempt.
type Frame struct {
	Sequence    int    `json:"sequence"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Data        []byte `json:"-"`
}

// AttemptRepository provides CRUD operations for attempts.
type AttemptRepository struct {
	db *sql.DB
}

// Attempts returns the attempt repository for this store.
func (s *Store) Attempts() *AttemptRepository {
	return &AttemptRepository{db: s.db}
}

const attemptColumns = `id, flow, outcome, result_text, response, error, frames, started_at, finished_at, created_at`

// Create inserts an attempt and its frames in a single transaction.
func (r *AttemptRepository) Create(a *Attempt, frames []Frame) error {
	a.CreatedAt = time.Now()
	a.Frames = len(frames)

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO attempts (`+attemptColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Flow, a.Outcome, a.ResultText, string(a.Response), a.Error, a.Frames,
		a.StartedAt, a.FinishedAt, a.CreatedAt,
	)
	if err != nil {
		return err
	}

	if len(frames) > 0 {
		stmt, err := tx.Prepare(
			`INSERT INTO attempt_frames (attempt_id, sequence, filename, content_type, width, height, data)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, f := range frames {
			if _, err := stmt.Exec(a.ID, i, f.Filename, f.ContentType, f.Width, f.Height, f.Data); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row scanner) (*Attempt, error) {
	a := &Attempt{}
	var response string
	err := row.Scan(&a.ID, &a.Flow, &a.Outcome, &a.ResultText, &response, &a.Error, &a.Frames,
		&a.StartedAt, &a.FinishedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if response != "" {
		a.Response = json.RawMessage(response)
	}
	return a, nil
}

// GetByID retrieves an attempt by its ID.
func (r *AttemptRepository) GetByID(id string) (*Attempt, error) {
	a, err := scanAttempt(r.db.QueryRow(
		`SELECT `+attemptColumns+` FROM attempts WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// List returns the most recent attempts first. An empty flow lists every
// flow; limit <= 0 means no limit.
func (r *AttemptRepository) List(flow string, limit int) ([]*Attempt, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE (? = '' OR flow = ?)
		 ORDER BY finished_at DESC LIMIT ?`,
		flow, flow, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return attempts, nil
}

// Latest returns the most recent attempt of flow.
func (r *AttemptRepository) Latest(flow string) (*Attempt, error) {
	attempts, err := r.List(flow, 1)
	if err != nil {
		return nil, err
	}
	if len(attempts) == 0 {
		return nil, ErrNotFound
	}
	return attempts[0], nil
}

// Frame returns one stored still of an attempt.
func (r *AttemptRepository) Frame(attemptID string, sequence int) (*Frame, error) {
	f := &Frame{}
	err := r.db.QueryRow(
		`SELECT sequence, filename, content_type, width, height, data
		 FROM attempt_frames WHERE attempt_id = ? AND sequence = ?`,
		attemptID, sequence,
	).Scan(&f.Sequence, &f.Filename, &f.ContentType, &f.Width, &f.Height, &f.Data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Delete removes an attempt and its frames.
func (r *AttemptRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM attempts WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Prune keeps the newest keep attempts and deletes the rest.
func (r *AttemptRepository) Prune(keep int) (int64, error) {
	result, err := r.db.Exec(
		`DELETE FROM attempts WHERE id NOT IN (
			SELECT id FROM attempts ORDER BY finished_at DESC LIMIT ?
		)`, keep,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
