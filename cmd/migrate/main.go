package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"

	"github.com/example/todoapp/internal/config"
	"github.com/example/todoapp/internal/logger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, version, force")
		steps   = flag.Int("steps", 0, "Number of migration steps (for up/down)")
		version = flag.Uint("version", 0, "Target version (for force command)")
		dir     = flag.String("dir", "", "Migrations directory (defaults to MIGRATIONS_DIR)")
	)
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		zap.NewExample().Fatal("logger", zap.Error(err))
	}
	defer log.Sync()

	if cfg.DBAdapter != "postgres" {
		log.Fatal("migrations only run against PostgreSQL", zap.String("adapter", cfg.DBAdapter))
	}
	migrationsDir := cfg.MigrationsDir
	if *dir != "" {
		migrationsDir = *dir
	}

	m, closeDB, err := open(migrationsDir, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("open migrator", zap.Error(err))
	}
	defer closeDB()

	switch *command {
	case "up", "down":
		if err := run(m, *command == "up", *steps); err != nil {
			log.Fatal("migration failed", zap.String("command", *command), zap.Error(err))
		}
		v, _, _ := m.Version()
		log.Info("migration complete", zap.String("command", *command), zap.Uint("version", v))
	case "version":
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info("no migrations applied")
			return
		}
		if err != nil {
			log.Fatal("read version", zap.Error(err))
		}
		if dirty {
			log.Fatal("database is in a dirty state", zap.Uint("version", v))
		}
		log.Info("current migration version", zap.Uint("version", v))
	case "force":
		if *version == 0 {
			log.Fatal("version required for force command (use -version flag)")
		}
		if err := m.Force(int(*version)); err != nil {
			log.Fatal("force version", zap.Uint("version", *version), zap.Error(err))
		}
		log.Info("forced database version", zap.Uint("version", *version))
	default:
		log.Fatal("unknown command (supported: up, down, version, force)", zap.String("command", *command))
	}
}

func open(migrationsDir, dsn string) (*migrate.Migrate, func(), error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("database ping failed: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("creating migrate driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsDir, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("creating migrate instance: %w", err)
	}
	return m, func() { db.Close() }, nil
}

func run(m *migrate.Migrate, up bool, steps int) error {
	var err error
	switch {
	case steps > 0 && up:
		err = m.Steps(steps)
	case steps > 0:
		err = m.Steps(-steps)
	case up:
		err = m.Up()
	default:
		err = m.Down()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
