package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/qadeerTruesofts/TelegramBot-For-X/internal/config"
)

// Task is an admin-defined unit of reward tied to a target post.
// Tasks are immutable once created.
type Task struct {
	ID        int64
	PostURL   string
	Reward    float64
	CreatedAt time.Time
}

// CreateTask assigns the next task id and inserts the task. The id is
// computed inside the insert transaction so concurrent creations serialize
// instead of racing on a read-then-write max+1. Tasks are immutable, so
// the post URL is validated here for every caller, not just the bot.
func (s *Store) CreateTask(postURL string, reward float64) (Task, error) {
	if err := config.ValidatePostURL(postURL); err != nil {
		return Task{}, err
	}
	if reward <= 0 {
		return Task{}, fmt.Errorf("reward must be positive, got %v", reward)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}
	defer tx.Rollback()

	var id int64
	if err := tx.QueryRow(`SELECT COALESCE(MAX(task_id), 0) + 1 FROM tasks`).Scan(&id); err != nil {
		return Task{}, fmt.Errorf("next task id: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO tasks (task_id, post_url, reward) VALUES (?, ?, ?)`,
		id, postURL, reward); err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Task{}, fmt.Errorf("commit task: %w", err)
	}

	return Task{ID: id, PostURL: postURL, Reward: reward}, nil
}

// GetTask returns the task, or ok=false when the id is unknown.
func (s *Store) GetTask(id int64) (Task, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t Task
	err := s.db.QueryRow(
		`SELECT task_id, post_url, reward, created_at FROM tasks WHERE task_id = ?`,
		id).Scan(&t.ID, &t.PostURL, &t.Reward, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return Task{}, false, nil
	}
	if err != nil {
		return Task{}, false, fmt.Errorf("get task: %w", err)
	}
	return t, true, nil
}

// ListTasks returns all tasks in creation order.
func (s *Store) ListTasks() ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT task_id, post_url, reward, created_at FROM tasks ORDER BY task_id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.PostURL, &t.Reward, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
