package store

import (
	"errors"
	"fmt"
)

// ErrAlreadyClaimed is returned when a (task, user) claim already exists.
var ErrAlreadyClaimed = errors.New("task already claimed by this user")

// ErrUnknownTask is returned when the referenced task id does not exist.
var ErrUnknownTask = errors.New("unknown task")

// HasClaimed reports whether the user has already claimed the task. Callers
// use this to fail fast before any evidence gathering; RecordClaim still
// re-checks atomically at write time.
func (s *Store) HasClaimed(taskID, telegramID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(1) FROM claims WHERE task_id = ? AND telegram_id = ?`,
		taskID, telegramID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has claimed: %w", err)
	}
	return n > 0, nil
}

// RecordClaim records a successful claim exactly once per (task, user)
// pair. The conditional insert is atomic: of two concurrent attempts for
// the same pair, exactly one succeeds and the other gets ErrAlreadyClaimed.
func (s *Store) RecordClaim(taskID, telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("record claim: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(1) FROM tasks WHERE task_id = ?`, taskID).Scan(&exists); err != nil {
		return fmt.Errorf("record claim: %w", err)
	}
	if exists == 0 {
		return ErrUnknownTask
	}

	res, err := tx.Exec(
		`INSERT OR IGNORE INTO claims (task_id, telegram_id) VALUES (?, ?)`,
		taskID, telegramID)
	if err != nil {
		return fmt.Errorf("record claim: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record claim: %w", err)
	}
	if affected == 0 {
		return ErrAlreadyClaimed
	}

	return tx.Commit()
}

// ClaimantCount returns how many users have claimed the task.
func (s *Store) ClaimantCount(taskID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM claims WHERE task_id = ?`, taskID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("claimant count: %w", err)
	}
	return n, nil
}
