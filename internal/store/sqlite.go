package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB

	mu        sync.Mutex
	lastStamp time.Time
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err = s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY,
        password TEXT NOT NULL,
        name TEXT NOT NULL,
        picture TEXT NOT NULL DEFAULT '',
        token TEXT NOT NULL DEFAULT '',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS rooms (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        password TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        room_id TEXT NOT NULL,
        author_id TEXT NOT NULL DEFAULT '',
        author_token TEXT NOT NULL DEFAULT '',
        author_name TEXT NOT NULL,
        author_picture TEXT NOT NULL DEFAULT '',
        body TEXT NOT NULL,
        created_at DATETIME NOT NULL,
        FOREIGN KEY (room_id) REFERENCES rooms (id)
    );

    CREATE INDEX IF NOT EXISTS idx_messages_room_created
        ON messages (room_id, created_at);
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, password, name, picture, token, created_at FROM users WHERE id = ?", userID).
		Scan(&u.ID, &u.Password, &u.Name, &u.Picture, &u.Token, &u.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *User) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, password, name, picture, token) VALUES (?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING",
		u.ID, u.Password, u.Name, u.Picture, u.Token)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *SQLiteStore) SetUserToken(ctx context.Context, userID, token string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET token = ? WHERE id = ?", token, userID)
	if err != nil {
		return fmt.Errorf("failed to update user token: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearUserToken invalidates any session referencing the stored token. It is
// idempotent: clearing an absent user is not an error, so logout always wins.
func (s *SQLiteStore) ClearUserToken(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE users SET token = '' WHERE id = ?", userID)
	if err != nil {
		return fmt.Errorf("failed to clear user token: %w", err)
	}
	return nil
}

// UpdateUserProfile merges the non-nil patch fields into the user row.
func (s *SQLiteStore) UpdateUserProfile(ctx context.Context, userID string, name, picture *string) (*User, error) {
	if name != nil {
		if _, err := s.db.ExecContext(ctx, "UPDATE users SET name = ? WHERE id = ?", *name, userID); err != nil {
			return nil, fmt.Errorf("failed to update user name: %w", err)
		}
	}
	if picture != nil {
		if _, err := s.db.ExecContext(ctx, "UPDATE users SET picture = ? WHERE id = ?", *picture, userID); err != nil {
			return nil, fmt.Errorf("failed to update user picture: %w", err)
		}
	}
	return s.GetUser(ctx, userID)
}

// Room methods

func (s *SQLiteStore) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	var r Room
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, password, created_at FROM rooms WHERE id = ?", roomID).
		Scan(&r.ID, &r.Name, &r.Password, &r.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query room: %w", err)
	}
	return &r, nil
}

// CreateRoom inserts the room only if the identifier is free. A conditional
// insert, not check-then-write, so two concurrent creators cannot both win.
func (s *SQLiteStore) CreateRoom(ctx context.Context, r *Room) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO rooms (id, name, password) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING",
		r.ID, r.Name, r.Password)
	if err != nil {
		return fmt.Errorf("failed to insert room: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// Message methods

// AppendMessage writes the message with a store-assigned timestamp. Stamps are
// strictly monotonic across the store, so ordering by created_at is stable and
// consistent with arrival order here.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message) error {
	msg.ID = uuid.NewString()
	msg.CreatedAt = s.nextStamp()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, room_id, author_id, author_token, author_name, author_picture, body, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.RoomID, msg.Author.UserID, msg.Author.Token, msg.Author.Name, msg.Author.Picture,
		msg.Body, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) nextStamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if !now.After(s.lastStamp) {
		now = s.lastStamp.Add(time.Microsecond)
	}
	s.lastStamp = now
	return now
}

func (s *SQLiteStore) MessagesByRoom(ctx context.Context, roomID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, author_id, author_token, author_name, author_picture, body, created_at
         FROM messages WHERE room_id = ? ORDER BY created_at ASC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.Author.UserID, &msg.Author.Token,
			&msg.Author.Name, &msg.Author.Picture, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
