package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

type PostgresDB struct {
	db  *sql.DB
	dsn string
}

func NewPostgresDB(ctx context.Context, dsn string) (*PostgresDB, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresDB{db: d, dsn: dsn}
	if err := p.Init(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresDB) Init(ctx context.Context) error {
	// rely on migrations to create tables; just verify connectivity
	return p.db.PingContext(ctx)
}

func pqDuplicate(err error) error {
	var pe *pq.Error
	if !errors.As(err, &pe) || pe.Code != pqUniqueViolation {
		return err
	}
	switch {
	case strings.Contains(pe.Constraint, "email"):
		return &DuplicateError{Field: "email"}
	case strings.Contains(pe.Constraint, "username"):
		return &DuplicateError{Field: "username"}
	}
	return err
}

// validUUID guards uuid columns; a malformed id can never match a row.
func validUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (p *PostgresDB) CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error) {
	u := User{Username: username, Email: email, Password: passwordHash}
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO users(username,email,password) VALUES($1,$2,$3) RETURNING id, created_at`,
		username, email, passwordHash).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", pqDuplicate(err))
	}
	return &u, nil
}

func (p *PostgresDB) scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (p *PostgresDB) GetUserByID(ctx context.Context, id string) (*User, error) {
	if !validUUID(id) {
		return nil, nil
	}
	return p.scanUser(p.db.QueryRowContext(ctx, `SELECT id,username,email,password,created_at FROM users WHERE id = $1`, id))
}

func (p *PostgresDB) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return p.scanUser(p.db.QueryRowContext(ctx, `SELECT id,username,email,password,created_at FROM users WHERE username = $1`, username))
}

func (p *PostgresDB) FindUserByUsernameOrEmail(ctx context.Context, username, email string) (*User, error) {
	return p.scanUser(p.db.QueryRowContext(ctx, `SELECT id,username,email,password,created_at FROM users WHERE username = $1 OR email = $2 LIMIT 1`, username, email))
}

const pgTodoColumns = `id,user_id,title,description,category,due_date,is_completed,created_at,updated_at`

func scanPostgresTodo(r rowScanner) (*Todo, error) {
	var t Todo
	var due sql.NullTime
	if err := r.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Category, &due, &t.IsCompleted, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if due.Valid {
		d := due.Time.UTC()
		t.DueDate = &d
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func (p *PostgresDB) ListTodos(ctx context.Context, userID string, f TodoFilter) ([]*Todo, error) {
	if !validUUID(userID) {
		return []*Todo{}, nil
	}
	q := `SELECT ` + pgTodoColumns + ` FROM todos WHERE user_id = $1`
	args := []any{userID}
	if f.Category != "" {
		args = append(args, f.Category)
		q += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	if f.Completed != nil {
		args = append(args, *f.Completed)
		q += fmt.Sprintf(` AND is_completed = $%d`, len(args))
	}
	if f.DueFrom != nil {
		args = append(args, *f.DueFrom, *f.DueTo)
		q += fmt.Sprintf(` AND due_date >= $%d AND due_date < $%d`, len(args)-1, len(args))
	}
	q += ` ORDER BY created_at DESC`

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()
	out := []*Todo{}
	for rows.Next() {
		t, err := scanPostgresTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("list todos: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *PostgresDB) CreateTodo(ctx context.Context, t *Todo) error {
	var due sql.NullTime
	if t.DueDate != nil {
		due = sql.NullTime{Time: *t.DueDate, Valid: true}
	}
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO todos(user_id,title,description,category,due_date,is_completed) VALUES($1,$2,$3,$4,$5,$6) RETURNING id, created_at, updated_at`,
		t.UserID, t.Title, t.Description, t.Category, due, t.IsCompleted).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create todo: %w", err)
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return nil
}

func (p *PostgresDB) GetTodo(ctx context.Context, userID, id string) (*Todo, error) {
	if !validUUID(id) || !validUUID(userID) {
		return nil, nil
	}
	row := p.db.QueryRowContext(ctx, `SELECT `+pgTodoColumns+` FROM todos WHERE id = $1 AND user_id = $2`, id, userID)
	t, err := scanPostgresTodo(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get todo: %w", err)
	}
	return t, nil
}

func (p *PostgresDB) UpdateTodo(ctx context.Context, userID, id string, patch TodoPatch) (*Todo, error) {
	if !validUUID(id) || !validUUID(userID) {
		return nil, nil
	}
	var due sql.NullTime
	if patch.DueDate != nil && !patch.ClearDueDate {
		due = sql.NullTime{Time: *patch.DueDate, Valid: true}
	}
	row := p.db.QueryRowContext(ctx, `UPDATE todos SET
		title = COALESCE($3, title),
		description = COALESCE($4, description),
		category = COALESCE($5, category),
		due_date = CASE WHEN $8 THEN NULL ELSE COALESCE($6, due_date) END,
		is_completed = COALESCE($7, is_completed),
		updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING `+pgTodoColumns,
		id, userID, nullString(patch.Title), nullString(patch.Description), nullString(patch.Category), due, nullBool(patch.IsCompleted), patch.ClearDueDate)
	t, err := scanPostgresTodo(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("update todo: %w", err)
	}
	return t, nil
}

func (p *PostgresDB) DeleteTodo(ctx context.Context, userID, id string) (bool, error) {
	if !validUUID(id) || !validUUID(userID) {
		return false, nil
	}
	res, err := p.db.ExecContext(ctx, `DELETE FROM todos WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete todo: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func (p *PostgresDB) close() error { return p.db.Close() }
func (p *PostgresDB) ping() bool   { return p.db.Ping() == nil }
