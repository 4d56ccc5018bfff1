package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Error logging operations

// LogSessionError records a capture or processing failure
func (db *DB) LogSessionError(sessionID, errorType, message string, fatal bool) (int64, error) {
	var errorID int64
	err := db.ExecTx(func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			INSERT INTO session_errors (
				session_id, error_type, error_message, is_fatal, occurred_at
			) VALUES (?, ?, ?, ?, ?)
		`, sessionID, errorType, message, fatal, time.Now())

		if err != nil {
			return fmt.Errorf("failed to insert session error: %w", err)
		}

		errorID, err = result.LastInsertId()
		return err
	})

	if err != nil {
		return 0, err
	}

	return errorID, nil
}

// GetSessionErrors returns the errors recorded for a session, oldest first
func (db *DB) GetSessionErrors(sessionID string) ([]*SessionError, error) {
	rows, err := db.conn.Query(`
		SELECT id, session_id, error_type, error_message, is_fatal, occurred_at
		FROM session_errors
		WHERE session_id = ?
		ORDER BY id ASC
	`, sessionID)

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	errs := []*SessionError{}
	for rows.Next() {
		e := &SessionError{}
		if err := rows.Scan(&e.ID, &e.SessionID, &e.ErrorType, &e.ErrorMessage, &e.IsFatal, &e.OccurredAt); err != nil {
			return nil, err
		}
		errs = append(errs, e)
	}

	return errs, rows.Err()
}
