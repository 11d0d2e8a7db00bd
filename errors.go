package main

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// APIError is the body of every non-2xx response.
type APIError struct {
	Status  int                 `json:"status"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write json", zap.Error(err))
	}
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, APIError{Status: status, Message: message})
}

// writeValidationError writes a 400 with per-field messages.
func writeValidationError(w http.ResponseWriter, fields map[string][]string) {
	writeJSON(w, http.StatusBadRequest, APIError{
		Status:  http.StatusBadRequest,
		Message: "Validation failed",
		Errors:  fields,
	})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Message: message})
}

// validation collects field errors in the order they are found.
type validation map[string][]string

func (v validation) add(field, msg string) {
	v[field] = append(v[field], msg)
}

func (v validation) ok() bool { return len(v) == 0 }
