package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const msgTodoNotFound = "Todo not found"

type todoResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	DueDate     *time.Time `json:"due_date"`
	IsCompleted bool       `json:"is_completed"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type todoListResponse struct {
	Data []todoResponse `json:"data"`
	Meta struct {
		Total int `json:"total"`
	} `json:"meta"`
}

// todoRequest serves both create and update; nil means the field was not sent.
type todoRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Category    *string  `json:"category"`
	DueDate     nullable `json:"due_date"`
	IsCompleted *bool    `json:"is_completed"`
}

// nullable tells a field that was left out from one sent as null.
type nullable struct {
	Set   bool
	Value *string
}

func (n *nullable) UnmarshalJSON(b []byte) error {
	n.Set = true
	if string(b) == "null" {
		n.Value = nil
		return nil
	}
	return json.Unmarshal(b, &n.Value)
}

func newTodoResponse(t *Todo) todoResponse {
	return todoResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Category:    t.Category,
		DueDate:     t.DueDate,
		IsCompleted: t.IsCompleted,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// parseDate accepts a calendar day or a full RFC 3339 timestamp.
func parseDate(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// patch validates the request. On create a title is mandatory.
func (in todoRequest) patch(create bool) (TodoPatch, validation) {
	v := validation{}
	var p TodoPatch

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			v.add("title", "Title is required")
		}
		p.Title = &title
	} else if create {
		v.add("title", "Title is required")
	}
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		p.Description = &d
	}
	if in.Category != nil {
		if !validCategory(*in.Category) {
			v.add("category", categoryMessage())
		}
		p.Category = in.Category
	}
	switch {
	case !in.DueDate.Set:
	case in.DueDate.Value == nil || *in.DueDate.Value == "":
		// null or empty clears; on create there is nothing to clear
		p.ClearDueDate = !create
	default:
		d, ok := parseDate(*in.DueDate.Value)
		if !ok {
			v.add("due_date", "Due date must be a valid date")
		}
		p.DueDate = &d
	}
	p.IsCompleted = in.IsCompleted
	return p, v
}

func (a *App) HandleListTodos(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	q := r.URL.Query()

	var f TodoFilter
	f.Category = q.Get("category")
	if q.Has("completed") {
		done := q.Get("completed") == "true"
		f.Completed = &done
	}
	if s := q.Get("due_date"); s != "" {
		from, ok := parseDate(s)
		if !ok {
			writeValidationError(w, map[string][]string{"due_date": {"Due date must be a valid date"}})
			return
		}
		to := from.Add(24 * time.Hour)
		f.DueFrom, f.DueTo = &from, &to
	}

	todos, err := a.DB.ListTodos(r.Context(), user.ID, f)
	if err != nil {
		a.Log.Error("list todos", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	var out todoListResponse
	out.Data = make([]todoResponse, 0, len(todos))
	for _, t := range todos {
		out.Data = append(out.Data, newTodoResponse(t))
	}
	out.Meta.Total = len(out.Data)
	writeJSON(w, http.StatusOK, out)
}

func (a *App) HandleCreateTodo(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	var in todoRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	p, v := in.patch(true)
	if !v.ok() {
		writeValidationError(w, v)
		return
	}

	t := &Todo{UserID: user.ID, Category: defaultCategory}
	t.apply(p, time.Time{})
	if err := a.DB.CreateTodo(r.Context(), t); err != nil {
		a.Log.Error("create todo", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, newTodoResponse(t))
}

func (a *App) HandleGetTodo(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	t, err := a.DB.GetTodo(r.Context(), user.ID, mux.Vars(r)["id"])
	if err != nil {
		a.Log.Error("get todo", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, msgTodoNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newTodoResponse(t))
}

func (a *App) HandleUpdateTodo(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	var in todoRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	p, v := in.patch(false)
	if !v.ok() {
		writeValidationError(w, v)
		return
	}
	t, err := a.DB.UpdateTodo(r.Context(), user.ID, mux.Vars(r)["id"], p)
	if err != nil {
		a.Log.Error("update todo", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, msgTodoNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newTodoResponse(t))
}

func (a *App) HandleDeleteTodo(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	ok, err := a.DB.DeleteTodo(r.Context(), user.ID, mux.Vars(r)["id"])
	if err != nil {
		a.Log.Error("delete todo", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, msgTodoNotFound)
		return
	}
	writeMessage(w, http.StatusOK, "Todo deleted successfully")
}
