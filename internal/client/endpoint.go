package client

import (
	"net/http"
	"net/url"
	"strconv"
)

// EndpointKind enumerates every request the API understands.
type EndpointKind int

const (
	EndpointRegister EndpointKind = iota + 1
	EndpointLogin
	EndpointRefresh
	EndpointLogout
	EndpointMe
	EndpointListTodos
	EndpointGetTodo
	EndpointCreateTodo
	EndpointUpdateTodo
	EndpointDeleteTodo
)

var endpointNames = map[EndpointKind]string{
	EndpointRegister:   "register",
	EndpointLogin:      "login",
	EndpointRefresh:    "refresh",
	EndpointLogout:     "logout",
	EndpointMe:         "me",
	EndpointListTodos:  "list-todos",
	EndpointGetTodo:    "get-todo",
	EndpointCreateTodo: "create-todo",
	EndpointUpdateTodo: "update-todo",
	EndpointDeleteTodo: "delete-todo",
}

func (k EndpointKind) String() string {
	if n, ok := endpointNames[k]; ok {
		return n
	}
	return "endpoint(" + strconv.Itoa(int(k)) + ")"
}

// Endpoint describes one request. Build it with the constructors below.
type Endpoint struct {
	Kind         EndpointKind
	Method       string
	Path         string
	Query        url.Values
	Body         interface{}
	RequiresAuth bool
}

func RegisterEndpoint(username, email, password string) Endpoint {
	return Endpoint{
		Kind:   EndpointRegister,
		Method: http.MethodPost,
		Path:   "/auth/register",
		Body:   registerBody{Username: username, Email: email, Password: password},
	}
}

func LoginEndpoint(username, password string) Endpoint {
	return Endpoint{
		Kind:   EndpointLogin,
		Method: http.MethodPost,
		Path:   "/auth/login",
		Body:   loginBody{Username: username, Password: password},
	}
}

func RefreshEndpoint(refreshToken string) Endpoint {
	return Endpoint{
		Kind:   EndpointRefresh,
		Method: http.MethodPost,
		Path:   "/auth/refresh",
		Body:   refreshBody{RefreshToken: refreshToken},
	}
}

// LogoutEndpoint sends the refresh token along so a server with revocation
// enabled can retire it too.
func LogoutEndpoint(refreshToken string) Endpoint {
	return Endpoint{
		Kind:         EndpointLogout,
		Method:       http.MethodDelete,
		Path:         "/auth/logout",
		Body:         refreshBody{RefreshToken: refreshToken},
		RequiresAuth: true,
	}
}

func MeEndpoint() Endpoint {
	return Endpoint{Kind: EndpointMe, Method: http.MethodGet, Path: "/auth/me", RequiresAuth: true}
}

func ListTodosEndpoint(f TodoFilter) Endpoint {
	return Endpoint{
		Kind:         EndpointListTodos,
		Method:       http.MethodGet,
		Path:         "/todos",
		Query:        f.values(),
		RequiresAuth: true,
	}
}

func GetTodoEndpoint(id string) Endpoint {
	return Endpoint{Kind: EndpointGetTodo, Method: http.MethodGet, Path: "/todos/" + id, RequiresAuth: true}
}

func CreateTodoEndpoint(in NewTodo) Endpoint {
	return Endpoint{Kind: EndpointCreateTodo, Method: http.MethodPost, Path: "/todos", Body: in, RequiresAuth: true}
}

func UpdateTodoEndpoint(id string, in TodoUpdate) Endpoint {
	return Endpoint{Kind: EndpointUpdateTodo, Method: http.MethodPut, Path: "/todos/" + id, Body: in, RequiresAuth: true}
}

func DeleteTodoEndpoint(id string) Endpoint {
	return Endpoint{Kind: EndpointDeleteTodo, Method: http.MethodDelete, Path: "/todos/" + id, RequiresAuth: true}
}
