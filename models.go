package main

import (
	"strings"
	"time"
)

// User is the stored credential record.
type User struct {
	ID        string
	Username  string
	Email     string
	Password  string
	CreatedAt time.Time
}

type Todo struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Category    string
	DueDate     *time.Time
	IsCompleted bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TodoFilter narrows ListTodos. Nil fields are not applied.
type TodoFilter struct {
	Category  string
	Completed *bool
	DueFrom   *time.Time
	DueTo     *time.Time
}

// TodoPatch carries the fields of a partial update. ClearDueDate removes
// the due date and wins over DueDate.
type TodoPatch struct {
	Title        *string
	Description  *string
	Category     *string
	DueDate      *time.Time
	ClearDueDate bool
	IsCompleted  *bool
}

const defaultCategory = "Other"

var todoCategories = []string{"Work", "Personal", "Shopping", "Health", "Education", "Finance", "Other"}

func validCategory(c string) bool {
	for _, v := range todoCategories {
		if v == c {
			return true
		}
	}
	return false
}

func categoryMessage() string {
	return "Category must be one of: " + strings.Join(todoCategories, ", ")
}

func (t *Todo) apply(p TodoPatch, now time.Time) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.ClearDueDate {
		t.DueDate = nil
	} else if p.DueDate != nil {
		d := *p.DueDate
		t.DueDate = &d
	}
	if p.IsCompleted != nil {
		t.IsCompleted = *p.IsCompleted
	}
	t.UpdatedAt = now
}

func (f TodoFilter) match(t *Todo) bool {
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.Completed != nil && t.IsCompleted != *f.Completed {
		return false
	}
	if f.DueFrom != nil {
		if t.DueDate == nil || t.DueDate.Before(*f.DueFrom) || !t.DueDate.Before(*f.DueTo) {
			return false
		}
	}
	return true
}
