package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfg "github.com/example/todoapp/internal/config"
	"github.com/example/todoapp/internal/logger"
	"github.com/example/todoapp/internal/token"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type App struct {
	DB          DB
	Tokens      *token.Manager
	Revoker     Revoker
	Log         *zap.Logger
	CORSOrigins []string

	rateLimiter *RateLimiter
	now         func() time.Time
}

// Router wires every route and the global middleware chain.
func (a *App) Router() http.Handler {
	if a.now == nil {
		a.now = time.Now
	}
	if a.Revoker == nil {
		a.Revoker = noopRevoker{}
	}
	if a.Log == nil {
		a.Log = zap.NewNop()
	}

	r := mux.NewRouter()

	// Apply global middleware
	r.Use(a.Recover)
	r.Use(SecurityHeaders)
	r.Use(a.Logging)
	r.Use(a.CORS)

	r.NotFoundHandler = a.Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found")
	}))
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusOK, "Todo App API is running")
	}).Methods("GET")

	// Health check endpoints (no auth required)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")
	r.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if p, ok := a.DB.(interface{ ping() bool }); ok && !p.ping() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
	}).Methods("GET")

	auth := r.PathPrefix("/auth").Subrouter()
	auth.Use(a.RateLimit)
	auth.HandleFunc("/register", a.HandleRegister).Methods("POST")
	auth.HandleFunc("/login", a.HandleLogin).Methods("POST")
	auth.HandleFunc("/refresh", a.HandleRefresh).Methods("POST")
	auth.Handle("/logout", a.Protect(http.HandlerFunc(a.HandleLogout))).Methods("DELETE")
	auth.Handle("/me", a.Protect(http.HandlerFunc(a.HandleMe))).Methods("GET")

	todos := r.PathPrefix("/todos").Subrouter()
	todos.Use(a.Protect)
	todos.HandleFunc("", a.HandleListTodos).Methods("GET")
	todos.HandleFunc("", a.HandleCreateTodo).Methods("POST")
	todos.HandleFunc("/{id}", a.HandleGetTodo).Methods("GET")
	todos.HandleFunc("/{id}", a.HandleUpdateTodo).Methods("PUT")
	todos.HandleFunc("/{id}", a.HandleDeleteTodo).Methods("DELETE")

	// preflight requests are answered by the CORS middleware
	r.PathPrefix("/").Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

func openDB(ctx context.Context, log *zap.Logger, c *cfg.Config) (DB, error) {
	switch c.DBAdapter {
	case "sqlite":
		return NewSQLiteDB(ctx, c.SQLiteFile)
	case "postgres":
		// Apply migrations before connecting
		if err := ApplyMigrations(log, c.MigrationsDir, c.PostgresDSN); err != nil {
			return nil, err
		}
		p, err := NewPostgresDB(ctx, c.PostgresDSN)
		if err != nil {
			return nil, err
		}
		log.Info("connected to PostgreSQL database")
		return p, nil
	default:
		log.Warn("using in-memory database (not recommended for production)")
		return NewMemoryDB(), nil
	}
}

func main() {
	c, err := cfg.New()
	if err != nil {
		// logger config depends on this, so fall back to a default logger
		zap.NewExample().Fatal("config", zap.Error(err))
	}
	log, err := logger.New(c.Env, c.LogLevel)
	if err != nil {
		zap.NewExample().Fatal("logger", zap.Error(err))
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	ctx := context.Background()

	db, err := openDB(ctx, log, c)
	if err != nil {
		log.Fatal("database init", zap.String("adapter", c.DBAdapter), zap.Error(err))
	}

	tokens, err := token.NewManager(token.Options{
		AccessSecret:  []byte(c.JwtSecret),
		RefreshSecret: []byte(c.JwtRefreshSecret),
		AccessTTL:     c.JwtExpiresIn,
		RefreshTTL:    c.JwtRefreshExpiresIn,
		Issuer:        "todoapp",
	})
	if err != nil {
		log.Fatal("token manager", zap.Error(err))
	}

	revoker, err := NewRevoker(ctx, c.RevocationBackend, c.Redis.Addr, c.Redis.Password, c.Redis.DB)
	if err != nil {
		log.Fatal("revocation backend", zap.String("backend", c.RevocationBackend), zap.Error(err))
	}

	app := &App{
		DB:          db,
		Tokens:      tokens,
		Revoker:     revoker,
		Log:         log,
		CORSOrigins: c.CORSAllowedOrigins,
		rateLimiter: NewRateLimiter(c.RateLimitPerMinute),
	}

	srv := &http.Server{Handler: app.Router(), Addr: ":" + c.Port, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second}

	go func() {
		log.Info("starting server", zap.String("port", c.Port), zap.String("db", c.DBAdapter), zap.String("revocation", c.RevocationBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
	if closer, ok := app.DB.(interface{ close() error }); ok {
		_ = closer.close()
	}
	if closer, ok := revoker.(interface{ close() error }); ok {
		_ = closer.close()
	}
	log.Info("server exited properly")
}
