package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Fact is one remembered key/value about the user.
type Fact struct {
	ID        int64
	Category  string
	Key       string
	Value     string
	Source    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Memory stores durable user facts. Facts are never physically deleted;
// forgetting flips is_active so history survives.
type Memory struct {
	db *sql.DB
}

// Save upserts a fact by key. If an active fact with the same key exists
// its value is updated in place, otherwise a new row is inserted.
func (m *Memory) Save(category, key, value, source string) error {
	if category == "" {
		category = "fact"
	}
	if source == "" {
		source = "explicit"
	}
	ts := now()

	res, err := m.db.Exec(`
		UPDATE user_memory SET value = ?, category = ?, updated_at = ?
		WHERE key = ? AND is_active = 1`,
		value, category, ts, key)
	if err != nil {
		return fmt.Errorf("update memory %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update memory %q: %w", key, err)
	}
	if n > 0 {
		return nil
	}

	_, err = m.db.Exec(`
		INSERT INTO user_memory (category, key, value, source, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)`,
		category, key, value, source, ts, ts)
	if err != nil {
		return fmt.Errorf("insert memory %q: %w", key, err)
	}
	return nil
}

// Forget soft-deletes the active fact with the given key. Returns false
// when no active fact matches.
func (m *Memory) Forget(key string) (bool, error) {
	res, err := m.db.Exec(`
		UPDATE user_memory SET is_active = 0, updated_at = ?
		WHERE key = ? AND is_active = 1`,
		now(), key)
	if err != nil {
		return false, fmt.Errorf("forget memory %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("forget memory %q: %w", key, err)
	}
	return n > 0, nil
}

// Get returns the active fact for a key, or nil when none exists.
func (m *Memory) Get(key string) (*Fact, error) {
	row := m.db.QueryRow(`
		SELECT id, category, key, value, source, created_at, updated_at
		FROM user_memory
		WHERE key = ? AND is_active = 1`, key)

	f, err := scanFact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memory %q: %w", key, err)
	}
	return f, nil
}

// ListActive returns all active facts ordered by key.
func (m *Memory) ListActive() ([]*Fact, error) {
	rows, err := m.db.Query(`
		SELECT id, category, key, value, source, created_at, updated_at
		FROM user_memory
		WHERE is_active = 1
		ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("list memory: %w", err)
	}
	defer rows.Close()

	var facts []*Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

func scanFact(row interface{ Scan(...any) error }) (*Fact, error) {
	var f Fact
	var createdAt, updatedAt string
	err := row.Scan(&f.ID, &f.Category, &f.Key, &f.Value, &f.Source, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	f.CreatedAt = parseTime(createdAt)
	f.UpdatedAt = parseTime(updatedAt)
	return &f, nil
}
