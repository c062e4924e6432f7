package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite. One row per group member, with
// an explicit position column so upload order survives round trips.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS groups (
			group_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			stored_name TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (group_id, position)
		)
	`)
	return err
}

// SaveGroup replaces the group's membership in one transaction, so a reader
// never observes a half-written group.
func (s *SQLiteStore) SaveGroup(ctx context.Context, groupID string, storedNames []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM groups WHERE group_id = ?`, groupID); err != nil {
		return err
	}

	now := time.Now()
	for i, name := range storedNames {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO groups (group_id, position, stored_name, created_at)
			VALUES (?, ?, ?, ?)
		`, groupID, i, name, now)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stored_name FROM groups WHERE group_id = ? ORDER BY position
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrNotFound
	}
	return names, nil
}

func (s *SQLiteStore) DeleteGroup(ctx context.Context, groupID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE group_id = ?`, groupID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GroupIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT group_id FROM groups`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
