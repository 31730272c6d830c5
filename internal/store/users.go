package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// User maps a Telegram identity to an X handle.
type User struct {
	TelegramID   int64
	XHandle      string
	RegisteredAt time.Time
}

// RegisterUser stores or overwrites the X handle for a Telegram user.
// A leading "@" is stripped. Duplicate handles across distinct users are
// allowed; registration is keyed by Telegram id only.
func (s *Store) RegisterUser(telegramID int64, handle string) (User, error) {
	handle = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
	if handle == "" {
		return User{}, fmt.Errorf("empty handle")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO users (telegram_id, x_handle) VALUES (?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET x_handle = excluded.x_handle`,
		telegramID, handle)
	if err != nil {
		return User{}, fmt.Errorf("register user: %w", err)
	}
	return User{TelegramID: telegramID, XHandle: handle}, nil
}

// LookupUser returns the registered user, or ok=false when the Telegram id
// has never registered a handle.
func (s *Store) LookupUser(telegramID int64) (User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u User
	err := s.db.QueryRow(
		`SELECT telegram_id, x_handle, registered_at FROM users WHERE telegram_id = ?`,
		telegramID).Scan(&u.TelegramID, &u.XHandle, &u.RegisteredAt)
	if err == sql.ErrNoRows {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, fmt.Errorf("lookup user: %w", err)
	}
	return u, true, nil
}

// ListUserIDs returns every registered Telegram id, for broadcast fan-out.
func (s *Store) ListUserIDs() ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT telegram_id FROM users ORDER BY telegram_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
