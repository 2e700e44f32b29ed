package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/example/userauth/internal/config"
	"github.com/example/userauth/internal/logging"
	"github.com/example/userauth/migrations"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, version, force")
		steps   = flag.Int("steps", 0, "Number of migration steps (for up/down)")
		version = flag.Uint("version", 0, "Target version (for force command)")
		dir     = flag.String("dir", "", "Migrations directory (default: embedded, or MIGRATIONS_DIR)")
	)
	flag.Parse()

	if err := run(*command, *steps, *version, *dir); err != nil {
		slog.Error("migrate", logging.Err(err))
		os.Exit(1)
	}
}

func run(command string, steps int, version uint, dir string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log, err := logging.New(os.Stderr, cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}

	if cfg.DBAdapter != config.AdapterPostgres {
		return fmt.Errorf("migrations only work with PostgreSQL, current adapter: %s", cfg.DBAdapter)
	}
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	mg, err := migrations.Open(cfg.Postgres.DSN, dir, log)
	if err != nil {
		return err
	}
	defer mg.Close()

	switch command {
	case "up":
		if steps > 0 {
			err = mg.Steps(steps)
		} else {
			err = mg.Up()
		}
		if err != nil {
			return err
		}
		fmt.Println("✓ Migrations applied successfully")
	case "down":
		if steps > 0 {
			err = mg.Steps(-steps)
		} else {
			err = mg.Down()
		}
		if err != nil {
			return err
		}
		fmt.Println("✓ Migrations rolled back successfully")
	case "version":
		v, dirty, err := mg.Version()
		if err != nil {
			return err
		}
		if dirty {
			return fmt.Errorf("database is in a dirty state (version %d)", v)
		}
		fmt.Printf("Current migration version: %d\n", v)
	case "force":
		if version == 0 {
			return errors.New("version required for force command (use -version flag)")
		}
		if err := mg.Force(int(version)); err != nil {
			return err
		}
		fmt.Printf("✓ Forced database to version %d\n", version)
	default:
		return fmt.Errorf("unknown command: %s (supported: up, down, version, force)", command)
	}
	return nil
}
