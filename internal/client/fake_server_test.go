package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

// fakeAPI mimics the auth contract of the server with opaque tokens so the
// tests control exactly which tokens are accepted.
type fakeAPI struct {
	mu            sync.Mutex
	seq           int
	access        map[string]bool
	refresh       map[string]bool
	expiresIn     int
	refreshDelay  atomic.Int64 // nanoseconds
	refreshStatus atomic.Int32

	refreshCalls atomic.Int32
	listCalls    atomic.Int32
	logoutCalls  atomic.Int32
	lastBearer   atomic.Value
	loggedOut    atomic.Value // refresh token sent with logout

	srv *httptest.Server
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{access: map[string]bool{}, refresh: map[string]bool{}, expiresIn: 3600}
	r := mux.NewRouter()
	r.HandleFunc("/auth/login", f.login).Methods("POST")
	r.HandleFunc("/auth/register", f.login).Methods("POST")
	r.HandleFunc("/auth/refresh", f.refreshHandler).Methods("POST")
	r.HandleFunc("/auth/logout", f.guard(f.logout)).Methods("DELETE")
	r.HandleFunc("/auth/me", f.guard(f.me)).Methods("GET")
	r.HandleFunc("/todos", f.guard(f.list)).Methods("GET")
	r.HandleFunc("/todos", f.guard(f.create)).Methods("POST")
	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func writeBody(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeBody(w, status, map[string]interface{}{"status": status, "message": msg, "errors": nil})
}

func (f *fakeAPI) issue() AuthResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	a, r := fmt.Sprintf("access-%d", f.seq), fmt.Sprintf("refresh-%d", f.seq)
	f.access[a] = true
	f.refresh[r] = true
	return AuthResponse{AccessToken: a, RefreshToken: r, ExpiresIn: f.expiresIn, User: User{ID: "u1", Username: "alice"}}
}

// rejectAccess makes the server refuse every access token issued so far.
func (f *fakeAPI) rejectAccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access = map[string]bool{}
}

func (f *fakeAPI) login(w http.ResponseWriter, r *http.Request) {
	var in loginBody
	_ = json.NewDecoder(r.Body).Decode(&in)
	if in.Password == "wrong" {
		writeErr(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if in.Username == "" {
		writeBody(w, http.StatusBadRequest, map[string]interface{}{
			"status": 400, "message": "Validation failed",
			"errors": map[string][]string{"username": {"Username is required"}},
		})
		return
	}
	writeBody(w, http.StatusOK, f.issue())
}

func (f *fakeAPI) refreshHandler(w http.ResponseWriter, r *http.Request) {
	f.refreshCalls.Add(1)
	if d := time.Duration(f.refreshDelay.Load()); d > 0 {
		time.Sleep(d)
	}
	if st := int(f.refreshStatus.Load()); st != 0 {
		writeErr(w, st, "refresh unavailable")
		return
	}
	var in refreshBody
	_ = json.NewDecoder(r.Body).Decode(&in)
	f.mu.Lock()
	ok := f.refresh[in.RefreshToken]
	delete(f.refresh, in.RefreshToken)
	f.mu.Unlock()
	if !ok {
		writeErr(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	writeBody(w, http.StatusOK, f.issue())
}

func (f *fakeAPI) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		f.lastBearer.Store(tok)
		f.mu.Lock()
		ok := f.access[tok]
		f.mu.Unlock()
		if r.URL.Path == "/todos" && r.Method == http.MethodGet {
			f.listCalls.Add(1)
		}
		if !ok {
			writeErr(w, http.StatusUnauthorized, "Your token has expired. Please log in again")
			return
		}
		next(w, r)
	}
}

func (f *fakeAPI) logout(w http.ResponseWriter, r *http.Request) {
	f.logoutCalls.Add(1)
	var in refreshBody
	_ = json.NewDecoder(r.Body).Decode(&in)
	f.loggedOut.Store(in.RefreshToken)
	writeBody(w, http.StatusOK, map[string]string{"message": "Successfully logged out"})
}

func (f *fakeAPI) me(w http.ResponseWriter, r *http.Request) {
	writeBody(w, http.StatusOK, map[string]interface{}{"user": User{ID: "u1", Username: "alice"}})
}

func (f *fakeAPI) list(w http.ResponseWriter, r *http.Request) {
	writeBody(w, http.StatusOK, map[string]interface{}{
		"data": []Todo{{ID: "t1", Title: "Buy milk", Category: r.URL.Query().Get("category")}},
		"meta": map[string]int{"total": 1},
	})
}

func (f *fakeAPI) create(w http.ResponseWriter, r *http.Request) {
	var in NewTodo
	_ = json.NewDecoder(r.Body).Decode(&in)
	writeBody(w, http.StatusCreated, Todo{ID: "t2", Title: in.Title, Category: in.Category})
}
