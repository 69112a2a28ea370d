package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/watertreat/rtu/errcode"
)

// User is an operator account permitted to acknowledge alarms and change
// configuration through the CLI/API surface (§6).
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// CreateUser inserts a new operator account.
func (s *Store) CreateUser(ctx context.Context, u User) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, role, created_at) VALUES (?, ?, ?, ?)`,
		u.Username, u.PasswordHash, u.Role, time.Now().Unix())
	if err != nil {
		return 0, &errcode.E{C: errcode.AlreadyExists, Op: "store.CreateUser", Msg: "username already in use: " + u.Username, Err: err}
	}
	return res.LastInsertId()
}

// GetUserByUsername loads a user account by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	var createdAt int64
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role, created_at FROM users WHERE username = ?`, username)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, &errcode.E{C: errcode.NotFound, Op: "store.GetUserByUsername"}
		}
		return u, &errcode.E{C: errcode.IoError, Op: "store.GetUserByUsername", Err: err}
	}
	u.CreatedAt = time.Unix(createdAt, 0)
	return u, nil
}
