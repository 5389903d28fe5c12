package session

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/kkismd/gridworker/pkg/configuration"
	"github.com/kkismd/gridworker/pkg/logger"
)

// Store persists user accounts and saved programs in SQLite.
type Store struct {
	db *sql.DB
}

var (
	// ErrUserExists is returned when registering an already taken username.
	ErrUserExists = errors.New("username already exists")
	// ErrInvalidCredentials is returned for unknown users and wrong passwords
	// alike, so callers cannot probe for usernames.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrProgramNotFound is returned when loading a program that was never
	// saved.
	ErrProgramNotFound = errors.New("program not found")
)

// OpenStore opens (or creates) the database and ensures the schema exists.
func OpenStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info(logger.AreaDatabase, "store opened at %s", dbPath)
	return s, nil
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			last_login INTEGER DEFAULT 0,
			is_active INTEGER DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS programs (
			username TEXT NOT NULL,
			name TEXT NOT NULL,
			source TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (username, name)
		)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// CreateUser registers a new account with a bcrypt-hashed password.
func (s *Store) CreateUser(username, password string) error {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check username: %w", err)
	}
	if count > 0 {
		return ErrUserExists
	}

	cost := configuration.GetInt("Authentication", "password_hash_cost", bcrypt.DefaultCost)
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO users (username, password, created_at)
		VALUES (?, ?, ?)
	`, username, string(hashed), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	logger.Info(logger.AreaDatabase, "created user %s", username)
	return nil
}

// Authenticate verifies a username and password pair and records the login
// time on success.
func (s *Store) Authenticate(username, password string) error {
	var hashed string
	var active int
	err := s.db.QueryRow(`
		SELECT password, is_active FROM users WHERE username = ?
	`, username).Scan(&hashed, &active)
	if err == sql.ErrNoRows {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if active == 0 {
		return ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) != nil {
		return ErrInvalidCredentials
	}

	_, _ = s.db.Exec("UPDATE users SET last_login = ? WHERE username = ?",
		time.Now().Unix(), username)
	return nil
}

// SaveProgram stores a named program for a user, replacing any previous
// version.
func (s *Store) SaveProgram(username, name, source string) error {
	_, err := s.db.Exec(`
		INSERT INTO programs (username, name, source, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (username, name) DO UPDATE SET
			source = excluded.source,
			updated_at = excluded.updated_at
	`, username, name, source, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save program: %w", err)
	}
	return nil
}

// LoadProgram fetches the source of a saved program.
func (s *Store) LoadProgram(username, name string) (string, error) {
	var source string
	err := s.db.QueryRow(`
		SELECT source FROM programs WHERE username = ? AND name = ?
	`, username, name).Scan(&source)
	if err == sql.ErrNoRows {
		return "", ErrProgramNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load program: %w", err)
	}
	return source, nil
}

// ListPrograms returns the names of a user's saved programs, newest first.
func (s *Store) ListPrograms(username string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT name FROM programs WHERE username = ? ORDER BY updated_at DESC
	`, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteProgram removes a saved program. Deleting a nonexistent program is
// not an error.
func (s *Store) DeleteProgram(username, name string) error {
	_, err := s.db.Exec(`
		DELETE FROM programs WHERE username = ? AND name = ?
	`, username, name)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
