package client

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

type Todo struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	DueDate     *time.Time `json:"due_date"`
	IsCompleted bool       `json:"is_completed"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type NewTodo struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// TodoUpdate only sends the fields that are set.
type TodoUpdate struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Category    *string    `json:"category,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	IsCompleted *bool      `json:"is_completed,omitempty"`
}

type TodoFilter struct {
	Category  string
	Completed *bool
	DueDate   *time.Time
}

func (f TodoFilter) values() url.Values {
	v := url.Values{}
	if f.Category != "" {
		v.Set("category", f.Category)
	}
	if f.Completed != nil {
		v.Set("completed", strconv.FormatBool(*f.Completed))
	}
	if f.DueDate != nil {
		v.Set("due_date", f.DueDate.Format("2006-01-02"))
	}
	return v
}

type TodoList struct {
	Data []Todo `json:"data"`
	Meta struct {
		Total int `json:"total"`
	} `json:"meta"`
}

func (c *Client) ListTodos(ctx context.Context, f TodoFilter) (*TodoList, error) {
	list, err := Send[TodoList](ctx, c, ListTodosEndpoint(f))
	if err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) GetTodo(ctx context.Context, id string) (*Todo, error) {
	t, err := Send[Todo](ctx, c, GetTodoEndpoint(id))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) CreateTodo(ctx context.Context, in NewTodo) (*Todo, error) {
	t, err := Send[Todo](ctx, c, CreateTodoEndpoint(in))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) UpdateTodo(ctx context.Context, id string, in TodoUpdate) (*Todo, error) {
	t, err := Send[Todo](ctx, c, UpdateTodoEndpoint(id, in))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) DeleteTodo(ctx context.Context, id string) error {
	_, err := Send[messageBody](ctx, c, DeleteTodoEndpoint(id))
	return err
}
