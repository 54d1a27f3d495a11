package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const queryTimeout = 5 * time.Second

// store is the persistence boundary. Lookups return nil, nil when nothing
// matches.
type store interface {
	insertUser(ctx context.Context, u *user) error
	getUserByEmail(ctx context.Context, email string) (*user, error)
	getUserByID(ctx context.Context, id int64) (*user, error)
	getUsersByRole(ctx context.Context, role string) ([]*user, error)

	insertTodo(ctx context.Context, t *todo) error
	getTodos(ctx context.Context, f todoFilter) ([]*todo, error)
	updateTodo(ctx context.Context, f todoFilter, p todoPatch) (*todo, error)
	deleteTodo(ctx context.Context, f todoFilter) (bool, error)
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            BIGSERIAL PRIMARY KEY,
	created_at    TIMESTAMPTZ NOT NULL,
	username      TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash BYTEA NOT NULL,
	role          TEXT NOT NULL DEFAULT 'user'
);
CREATE TABLE IF NOT EXISTS todos (
	id         BIGSERIAL PRIMARY KEY,
	user_id    BIGINT NOT NULL REFERENCES users (id),
	text       TEXT NOT NULL,
	completed  BOOLEAN NOT NULL DEFAULT FALSE,
	priority   TEXT NOT NULL DEFAULT 'medium',
	due_time   TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS todos_user_id_created_at_idx ON todos (user_id, created_at DESC);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at    DATETIME NOT NULL,
	username      TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash BLOB NOT NULL,
	role          TEXT NOT NULL DEFAULT 'user'
);
CREATE TABLE IF NOT EXISTS todos (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL REFERENCES users (id),
	text       TEXT NOT NULL,
	completed  BOOLEAN NOT NULL DEFAULT FALSE,
	priority   TEXT NOT NULL DEFAULT 'medium',
	due_time   DATETIME,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS todos_user_id_created_at_idx ON todos (user_id, created_at DESC);
`

func openDB(cfg config) (*sql.DB, error) {
	var schema string
	switch cfg.db.driver {
	case "postgres":
		schema = postgresSchema
	case "sqlite3":
		schema = sqliteSchema
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.db.driver)
	}

	db, err := sql.Open(cfg.db.driver, cfg.db.dsn)
	if err != nil {
		return nil, err
	}

	if cfg.db.driver == "sqlite3" {
		// sqlite allows a single writer and every ":memory:" connection is
		// its own database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.db.maxOpenConnections)
		db.SetMaxIdleConns(cfg.db.maxIdleConnections)
		db.SetConnMaxIdleTime(cfg.db.maxIdleTime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	_, err = db.ExecContext(ctx, schema)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}

type sqlStore struct {
	db *sql.DB
}

func newSQLStore(db *sql.DB) *sqlStore {
	return &sqlStore{db: db}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

const userColumns = `id, created_at, username, email, password_hash, role`

func scanUser(row interface{ Scan(...any) error }) (*user, error) {
	var u user
	err := row.Scan(&u.ID, &u.CreatedAt, &u.Username, &u.Email, &u.PasswordHash, &u.Role)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *sqlStore) getUser(ctx context.Context, query string, arg any) (*user, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	u, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, nil
		default:
			return nil, err
		}
	}
	return u, nil
}

func (s *sqlStore) getUserByEmail(ctx context.Context, email string) (*user, error) {
	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE email = $1`
	return s.getUser(ctx, query, email)
}

func (s *sqlStore) getUserByID(ctx context.Context, id int64) (*user, error) {
	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE id = $1`
	return s.getUser(ctx, query, id)
}

func (s *sqlStore) getUsersByRole(ctx context.Context, role string) ([]*user, error) {
	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE role = $1
			  ORDER BY id`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, query, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []*user{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *sqlStore) insertUser(ctx context.Context, u *user) error {
	query := `INSERT INTO users (created_at, username, email, password_hash, role)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING id`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	u.CreatedAt = time.Now().UTC()
	row := s.db.QueryRowContext(ctx, query, u.CreatedAt, u.Username, u.Email, u.PasswordHash, u.Role)
	err := row.Scan(&u.ID)
	if isUniqueViolation(err) {
		return errDuplicateIdentity
	}
	return err
}

func (s *sqlStore) insertTodo(ctx context.Context, t *todo) error {
	query := `INSERT INTO todos (user_id, text, completed, priority, due_time, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING id`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	t.CreatedAt = time.Now().UTC()
	row := s.db.QueryRowContext(ctx, query, t.UserID, t.Text, t.Completed, t.Priority, nullTime(t.DueTime), t.CreatedAt)
	return row.Scan(&t.ID)
}

// where renders f as a WHERE clause whose placeholders continue after the
// n arguments already bound.
func (f todoFilter) where(prefix string, n int) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.ID != 0 {
		args = append(args, f.ID)
		conds = append(conds, fmt.Sprintf("%sid = $%d", prefix, n+len(args)))
	}
	if f.OwnerID != 0 {
		args = append(args, f.OwnerID)
		conds = append(conds, fmt.Sprintf("%suser_id = $%d", prefix, n+len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *sqlStore) getTodos(ctx context.Context, f todoFilter) ([]*todo, error) {
	where, args := f.where("t.", 0)
	query := `SELECT t.id, t.user_id, t.text, t.completed, t.priority, t.due_time, t.created_at, u.username, u.email
			  FROM todos t
			  JOIN users u ON u.id = t.user_id` + where + `
			  ORDER BY t.created_at DESC, t.id DESC`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	todos := []*todo{}
	for rows.Next() {
		var (
			t   todo
			o   owner
			due sql.NullTime
		)
		err := rows.Scan(&t.ID, &t.UserID, &t.Text, &t.Completed, &t.Priority, &due, &t.CreatedAt, &o.Username, &o.Email)
		if err != nil {
			return nil, err
		}
		if due.Valid {
			t.DueTime = &due.Time
		}
		t.User = &o
		todos = append(todos, &t)
	}
	return todos, rows.Err()
}

func (s *sqlStore) updateTodo(ctx context.Context, f todoFilter, p todoPatch) (*todo, error) {
	if f.ID == 0 {
		return nil, nil
	}
	if p.empty() {
		todos, err := s.getTodos(ctx, f)
		if err != nil || len(todos) == 0 {
			return nil, err
		}
		todos[0].User = nil
		return todos[0], nil
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if p.Text != nil {
		set("text", *p.Text)
	}
	if p.Completed != nil {
		set("completed", *p.Completed)
	}
	if p.Priority != nil {
		set("priority", *p.Priority)
	}
	if p.SetDueTime {
		set("due_time", nullTime(p.DueTime))
	}
	where, whereArgs := f.where("", len(args))
	args = append(args, whereArgs...)

	query := `UPDATE todos SET ` + strings.Join(sets, ", ") + where

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil || n == 0 {
		return nil, err
	}

	// Read back through getTodos so both drivers decode times the same way.
	todos, err := s.getTodos(ctx, todoFilter{ID: f.ID})
	if err != nil || len(todos) == 0 {
		return nil, err
	}
	todos[0].User = nil
	return todos[0], nil
}

func (s *sqlStore) deleteTodo(ctx context.Context, f todoFilter) (bool, error) {
	if f.ID == 0 {
		return false, nil
	}
	where, args := f.where("", 0)
	query := `DELETE FROM todos` + where

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
