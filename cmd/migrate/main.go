package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found")
	}

	if err := run(os.Args[1:]); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		return errors.New("DB_URL environment variable is required")
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	exePath, _ := os.Executable()

	migrationsPath, err := findMigrationsDir(migrationCandidates(cwd, exePath))
	if err != nil {
		return err
	}

	m, err := migrate.New("file://"+migrationsPath, dbURL)
	if err != nil {
		return err
	}
	defer m.Close()

	cmd := "up"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	case "version":
		version, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			return err
		}
		slog.Info("schema version", "version", version, "dirty", dirty)
		return nil
	case "force":
		if len(args) < 2 {
			return errors.New("force needs a version")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		if err := m.Force(version); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown command %q, expected up, down, version or force", cmd)
	}

	slog.Info("migration successful", "command", cmd, "path", migrationsPath)
	return nil
}

// migrationCandidates lists where a migrations directory may live, walking up
// from the working directory and then around the binary.
func migrationCandidates(cwd, exePath string) []string {
	candidates := []string{}
	current := cwd
	for i := 0; i < 6; i++ {
		candidates = append(candidates, filepath.Join(current, "migrations"))
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	if exePath != "" {
		exeDir := filepath.Dir(exePath)
		candidates = append(candidates,
			filepath.Join(exeDir, "migrations"),
			filepath.Join(exeDir, "..", "migrations"),
			filepath.Join(exeDir, "..", "..", "migrations"),
		)
	}
	return candidates
}

func findMigrationsDir(candidates []string) (string, error) {
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && info.IsDir() {
			return filepath.Abs(candidate)
		}
	}
	return "", errors.New("migrations directory not found")
}
