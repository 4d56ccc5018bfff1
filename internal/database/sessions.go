package database

import (
	"database/sql"
	"errors"
	"fmt"
)

// Capture session history

// RecordSession stores a finished session. Recording the same ID again
// replaces the earlier row.
func (db *DB) RecordSession(s *CaptureSession) error {
	if s.ID == "" {
		return fmt.Errorf("session id cannot be empty")
	}

	return db.ExecTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT OR REPLACE INTO capture_sessions (
				id, started_at, finished_at, region, direction, display_index,
				frame_count, width, height, reason, output_path
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, s.ID, s.StartedAt, s.FinishedAt, s.Region, s.Direction, s.DisplayIndex,
			s.FrameCount, s.Width, s.Height, s.Reason, s.OutputPath)

		if err != nil {
			return fmt.Errorf("failed to insert capture session: %w", err)
		}
		return nil
	})
}

// GetSession returns the session with the given ID
func (db *DB) GetSession(id string) (*CaptureSession, error) {
	s := &CaptureSession{}
	err := db.conn.QueryRow(`
		SELECT
			id, started_at, finished_at, region, direction, display_index,
			frame_count, width, height, reason, output_path
		FROM capture_sessions
		WHERE id = ?
	`, id).Scan(
		&s.ID, &s.StartedAt, &s.FinishedAt, &s.Region, &s.Direction, &s.DisplayIndex,
		&s.FrameCount, &s.Width, &s.Height, &s.Reason, &s.OutputPath,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	return s, nil
}

// ListSessions returns the most recent sessions, newest first
func (db *DB) ListSessions(limit int) ([]*CaptureSession, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.conn.Query(`
		SELECT
			id, started_at, finished_at, region, direction, display_index,
			frame_count, width, height, reason, output_path
		FROM capture_sessions
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []*CaptureSession{}
	for rows.Next() {
		s := &CaptureSession{}
		err := rows.Scan(
			&s.ID, &s.StartedAt, &s.FinishedAt, &s.Region, &s.Direction, &s.DisplayIndex,
			&s.FrameCount, &s.Width, &s.Height, &s.Reason, &s.OutputPath,
		)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// DeleteSession removes a session and its recorded errors
func (db *DB) DeleteSession(id string) error {
	return db.ExecTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM session_errors WHERE session_id = ?`, id); err != nil {
			return err
		}

		result, err := tx.Exec(`DELETE FROM capture_sessions WHERE id = ?`, id)
		if err != nil {
			return err
		}

		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil
	})
}
