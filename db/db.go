package db

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a row the caller asked for does not exist.
var ErrNotFound = errors.New("not found")

// StorageLayout is the format timestamps are persisted in. Values are
// normalized by the time service before they reach this package.
const StorageLayout = "2006-01-02 15:04:05"

// DB is a wrapper around sql.DB
type DB struct {
	*sql.DB
	zone *time.Location
}

// New creates a new database connection. All stored timestamps are
// interpreted in zone; pass the time service's target zone.
func New(dbPath string, zone *time.Location) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// sqlite allows a single writer; one pooled connection avoids
	// SQLITE_BUSY under concurrent handlers and keeps :memory: databases
	// on one connection in tests.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		return nil, err
	}

	if zone == nil {
		zone = time.UTC
	}

	return &DB{DB: db, zone: zone}, nil
}

// Initialize sets up the database tables
func (db *DB) Initialize() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL,
			email TEXT UNIQUE,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS listening_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			song_id TEXT NOT NULL,
			title TEXT NOT NULL,
			artist TEXT NOT NULL,
			session_id TEXT NOT NULL,
			sequence_number INTEGER NOT NULL,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP,
			duration INTEGER DEFAULT 0,
			listened_duration INTEGER DEFAULT 0,
			completion_rate REAL,
			listen_type TEXT,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS artist_stats (
			artist TEXT PRIMARY KEY,
			total_plays INTEGER DEFAULT 0,
			total_time INTEGER DEFAULT 0,
			first_played TIMESTAMP,
			last_played TIMESTAMP,
			updated_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS daily_stats (
			date TEXT PRIMARY KEY,
			total_songs INTEGER DEFAULT 0,
			total_time INTEGER DEFAULT 0,
			updated_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS user_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			song_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			sequence_number INTEGER NOT NULL,
			played_at TIMESTAMP NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS downloads (
			song_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			artist TEXT NOT NULL,
			album TEXT,
			path TEXT NOT NULL,
			downloaded_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS user_downloads (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			song_id TEXT NOT NULL,
			downloaded_at TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS active_sessions (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			created_at TIMESTAMP,
			expires_at TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS pending_otps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL,
			otp TEXT NOT NULL,
			purpose TEXT NOT NULL,
			created_at TIMESTAMP,
			expires_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_user_started
			ON listening_history(user_id, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_user_history_played
			ON user_history(user_id, played_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateUser adds a new user to the database
func (db *DB) CreateUser(username string, email *string, now time.Time) (int64, error) {
	result, err := db.Exec(`
	INSERT INTO users (username, email, created_at, updated_at)
	VALUES (?, ?, ?, ?)`,
		username, email, db.formatTime(now), db.formatTime(now))
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetUserIDByEmail retrieves a user id by email, or ErrNotFound.
func (db *DB) GetUserIDByEmail(email string) (int64, error) {
	var id int64
	err := db.QueryRow(`SELECT id FROM users WHERE email = ?`, email).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (db *DB) formatTime(t time.Time) string {
	return t.In(db.zone).Format(StorageLayout)
}

func (db *DB) parseTime(s string) time.Time {
	t, err := time.ParseInLocation(StorageLayout, s, db.zone)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (db *DB) parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := db.parseTime(s.String)
	if t.IsZero() {
		return nil
	}
	return &t
}
