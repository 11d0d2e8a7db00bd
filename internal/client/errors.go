package client

import (
	"fmt"
	"net/http"
)

type ErrorKind int

const (
	KindUnauthorized ErrorKind = iota + 1
	KindNetwork
	KindBadRequest
	KindNotFound
	KindServer
	KindDecoding
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindNetwork:
		return "network"
	case KindBadRequest:
		return "bad request"
	case KindNotFound:
		return "not found"
	case KindServer:
		return "server"
	case KindDecoding:
		return "decoding"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// APIError is returned by every Client call. Status is zero when the server
// was never reached.
type APIError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Fields  map[string][]string
	Err     error
}

// Sentinels for errors.Is; only the kind is compared.
var (
	ErrUnauthorized = &APIError{Kind: KindUnauthorized}
	ErrNetwork      = &APIError{Kind: KindNetwork}
	ErrBadRequest   = &APIError{Kind: KindBadRequest}
	ErrNotFound     = &APIError{Kind: KindNotFound}
	ErrServer       = &APIError{Kind: KindServer}
	ErrDecoding     = &APIError{Kind: KindDecoding}
)

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, msg)
	}
	if msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *APIError) Unwrap() error { return e.Err }

func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Kind == e.Kind
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 500:
		return KindServer
	default:
		return KindBadRequest
	}
}
