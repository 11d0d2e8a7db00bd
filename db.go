package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DB interface for database operations. Lookups return nil, nil when the
// record does not exist.
type DB interface {
	Init(ctx context.Context) error
	// User operations
	CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	FindUserByUsernameOrEmail(ctx context.Context, username, email string) (*User, error)
	// Todo operations, always scoped to the owning user
	ListTodos(ctx context.Context, userID string, f TodoFilter) ([]*Todo, error)
	CreateTodo(ctx context.Context, t *Todo) error
	GetTodo(ctx context.Context, userID, id string) (*Todo, error)
	UpdateTodo(ctx context.Context, userID, id string, p TodoPatch) (*Todo, error)
	DeleteTodo(ctx context.Context, userID, id string) (bool, error)
}

// DuplicateError reports a unique constraint hit on a user field.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string { return e.Field + " already exists" }

func isDuplicate(err error) (*DuplicateError, bool) {
	var d *DuplicateError
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}

func newID() string { return uuid.NewString() }

// Memory DB
type MemDB struct {
	mu    sync.RWMutex
	users map[string]*User
	todos map[string]*Todo
	order []string
	now   func() time.Time
}

func NewMemoryDB() *MemDB {
	return &MemDB{users: map[string]*User{}, todos: map[string]*Todo{}, now: time.Now}
}

func (m *MemDB) Init(ctx context.Context) error { return nil }

func (m *MemDB) CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return nil, &DuplicateError{Field: "email"}
		}
		if u.Username == username {
			return nil, &DuplicateError{Field: "username"}
		}
	}
	u := &User{ID: newID(), Username: username, Email: email, Password: passwordHash, CreatedAt: m.now().UTC()}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *MemDB) GetUserByID(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemDB) FindUserByUsernameOrEmail(ctx context.Context, username, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username || u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// DeleteUser is only used to simulate accounts removed after token issuance.
func (m *MemDB) DeleteUser(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
}

func (m *MemDB) ListTodos(ctx context.Context, userID string, f TodoFilter) ([]*Todo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*Todo{}
	for i := len(m.order) - 1; i >= 0; i-- {
		t, ok := m.todos[m.order[i]]
		if !ok || t.UserID != userID || !f.match(t) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemDB) CreateTodo(ctx context.Context, t *Todo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	t.ID = newID()
	t.CreatedAt = now
	t.UpdatedAt = now
	cp := *t
	m.todos[t.ID] = &cp
	m.order = append(m.order, t.ID)
	return nil
}

func (m *MemDB) GetTodo(ctx context.Context, userID, id string) (*Todo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.todos[id]
	if !ok || t.UserID != userID {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *MemDB) UpdateTodo(ctx context.Context, userID, id string, p TodoPatch) (*Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.todos[id]
	if !ok || t.UserID != userID {
		return nil, nil
	}
	t.apply(p, m.now().UTC())
	cp := *t
	return &cp, nil
}

func (m *MemDB) DeleteTodo(ctx context.Context, userID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.todos[id]
	if !ok || t.UserID != userID {
		return false, nil
	}
	delete(m.todos, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// SQLite DB
type SQLiteDB struct {
	db   *sql.DB
	path string
}

func NewSQLiteDB(ctx context.Context, path string) (*SQLiteDB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection keeps writes serialized and the pragma applied
	d.SetMaxOpenConns(1)
	s := &SQLiteDB{db: d, path: path}
	if err := s.Init(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDB) Init(ctx context.Context) error {
	queries := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS users (id TEXT PRIMARY KEY, username TEXT NOT NULL UNIQUE, email TEXT NOT NULL UNIQUE, password TEXT NOT NULL, created_at INTEGER NOT NULL);`,
		`CREATE TABLE IF NOT EXISTS todos (id TEXT PRIMARY KEY, user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE, title TEXT NOT NULL, description TEXT NOT NULL DEFAULT '', category TEXT NOT NULL DEFAULT 'Other', due_date INTEGER, is_completed INTEGER NOT NULL DEFAULT 0, created_at INTEGER NOT NULL, updated_at INTEGER NOT NULL);`,
		`CREATE INDEX IF NOT EXISTS idx_todos_user_created ON todos(user_id, created_at DESC);`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("sqlite init: %w", err)
		}
	}
	return nil
}

func sqliteDuplicate(err error) error {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return err
	}
	switch {
	case strings.Contains(msg, "users.email"):
		return &DuplicateError{Field: "email"}
	case strings.Contains(msg, "users.username"):
		return &DuplicateError{Field: "username"}
	}
	return err
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func (s *SQLiteDB) CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error) {
	u := &User{ID: newID(), Username: username, Email: email, Password: passwordHash, CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}
	_, err := s.db.ExecContext(ctx, `INSERT INTO users(id,username,email,password,created_at) VALUES(?,?,?,?,?)`,
		u.ID, u.Username, u.Email, u.Password, millis(u.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("create user: %w", sqliteDuplicate(err))
	}
	return u, nil
}

func (s *SQLiteDB) scanUser(row *sql.Row) (*User, error) {
	var u User
	var created int64
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	u.CreatedAt = fromMillis(created)
	return &u, nil
}

func (s *SQLiteDB) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `SELECT id,username,email,password,created_at FROM users WHERE id = ?`, id))
}

func (s *SQLiteDB) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `SELECT id,username,email,password,created_at FROM users WHERE username = ?`, username))
}

func (s *SQLiteDB) FindUserByUsernameOrEmail(ctx context.Context, username, email string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `SELECT id,username,email,password,created_at FROM users WHERE username = ? OR email = ? LIMIT 1`, username, email))
}

const sqliteTodoColumns = `id,user_id,title,description,category,due_date,is_completed,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTodo(r rowScanner) (*Todo, error) {
	var t Todo
	var due sql.NullInt64
	var done int
	var created, updated int64
	if err := r.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Category, &due, &done, &created, &updated); err != nil {
		return nil, err
	}
	if due.Valid {
		d := fromMillis(due.Int64)
		t.DueDate = &d
	}
	t.IsCompleted = done != 0
	t.CreatedAt = fromMillis(created)
	t.UpdatedAt = fromMillis(updated)
	return &t, nil
}

func (s *SQLiteDB) ListTodos(ctx context.Context, userID string, f TodoFilter) ([]*Todo, error) {
	q := `SELECT ` + sqliteTodoColumns + ` FROM todos WHERE user_id = ?`
	args := []any{userID}
	if f.Category != "" {
		q += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.Completed != nil {
		q += ` AND is_completed = ?`
		args = append(args, boolInt(*f.Completed))
	}
	if f.DueFrom != nil {
		q += ` AND due_date >= ? AND due_date < ?`
		args = append(args, millis(*f.DueFrom), millis(*f.DueTo))
	}
	q += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()
	out := []*Todo{}
	for rows.Next() {
		t, err := scanSQLiteTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("list todos: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteDB) CreateTodo(ctx context.Context, t *Todo) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	t.ID = newID()
	t.CreatedAt = now
	t.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `INSERT INTO todos(`+sqliteTodoColumns+`) VALUES(?,?,?,?,?,?,?,?,?)`,
		t.ID, t.UserID, t.Title, t.Description, t.Category, nullMillis(t.DueDate), boolInt(t.IsCompleted), millis(now), millis(now))
	if err != nil {
		return fmt.Errorf("create todo: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetTodo(ctx context.Context, userID, id string) (*Todo, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteTodoColumns+` FROM todos WHERE id = ? AND user_id = ?`, id, userID)
	t, err := scanSQLiteTodo(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get todo: %w", err)
	}
	return t, nil
}

func (s *SQLiteDB) UpdateTodo(ctx context.Context, userID, id string, p TodoPatch) (*Todo, error) {
	t, err := s.GetTodo(ctx, userID, id)
	if err != nil || t == nil {
		return nil, err
	}
	t.apply(p, time.Now().UTC().Truncate(time.Millisecond))
	_, err = s.db.ExecContext(ctx, `UPDATE todos SET title = ?, description = ?, category = ?, due_date = ?, is_completed = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		t.Title, t.Description, t.Category, nullMillis(t.DueDate), boolInt(t.IsCompleted), millis(t.UpdatedAt), id, userID)
	if err != nil {
		return nil, fmt.Errorf("update todo: %w", err)
	}
	return t, nil
}

func (s *SQLiteDB) DeleteTodo(ctx context.Context, userID, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM todos WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete todo: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// lifecycle helpers
func (m *MemDB) close() error { return nil }
func (m *MemDB) ping() bool   { return true }

func (s *SQLiteDB) close() error { return s.db.Close() }
func (s *SQLiteDB) ping() bool   { return s.db.Ping() == nil }
