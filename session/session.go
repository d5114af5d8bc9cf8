package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/raagfm/raag/db"
)

const sessionLifetime = 7 * 24 * time.Hour

// Session is an authenticated browser/API session, backed by the
// active_sessions table.
type Session struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Manager issues and validates sessions, with an in-memory cache in front
// of the database.
type Manager struct {
	db       *db.DB
	sessions map[string]*Session
	logger   *log.Logger
	mu       sync.RWMutex
}

// NewManager creates a session manager over the active_sessions table.
func NewManager(database *db.DB, logger *log.Logger) *Manager {
	return &Manager{
		db:       database,
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Create mints a new session for a user.
func (m *Manager) Create(userID int64) (*Session, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	sessionID := base64.URLEncoding.EncodeToString(b)

	now := time.Now().UTC()
	session := &Session{
		ID:        sessionID,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(sessionLifetime),
	}

	_, err := m.db.Exec(`
	INSERT INTO active_sessions (id, user_id, created_at, expires_at)
	VALUES (?, ?, ?, ?)`,
		sessionID, userID, now.Format(db.StorageLayout), session.ExpiresAt.Format(db.StorageLayout))
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[sessionID] = session
	m.mu.Unlock()

	return session, nil
}

// Get retrieves a session by id, consulting memory first, then the store.
// Expired sessions are deleted on sight.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.RLock()
	session, exists := m.sessions[sessionID]
	m.mu.RUnlock()

	if exists {
		if time.Now().UTC().After(session.ExpiresAt) {
			m.Delete(sessionID)
			return nil, false
		}
		return session, true
	}

	session = &Session{ID: sessionID}
	var createdAt, expiresAt string
	err := m.db.QueryRow(`
	SELECT user_id, created_at, expires_at
	FROM active_sessions WHERE id = ?`, sessionID).Scan(
		&session.UserID, &createdAt, &expiresAt)
	if err != nil {
		return nil, false
	}

	session.CreatedAt, _ = time.Parse(db.StorageLayout, createdAt)
	session.ExpiresAt, _ = time.Parse(db.StorageLayout, expiresAt)

	if time.Now().UTC().After(session.ExpiresAt) {
		m.Delete(sessionID)
		return nil, false
	}

	m.mu.Lock()
	m.sessions[sessionID] = session
	m.mu.Unlock()

	return session, true
}

// Delete removes a session from memory and the store.
func (m *Manager) Delete(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if _, err := m.db.Exec("DELETE FROM active_sessions WHERE id = ?", sessionID); err != nil {
		if m.logger != nil {
			m.logger.Error("deleting session", "err", err)
		}
	}
}

// PurgeExpired drops sessions past their expiry from the store.
func (m *Manager) PurgeExpired() error {
	now := time.Now().UTC().Format(db.StorageLayout)
	_, err := m.db.Exec("DELETE FROM active_sessions WHERE expires_at <= ?", now)

	m.mu.Lock()
	for id, s := range m.sessions {
		if time.Now().UTC().After(s.ExpiresAt) {
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	return err
}

// SetCookie sets the session cookie on a response.
func (m *Manager) SetCookie(w http.ResponseWriter, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   false,
		Expires:  session.ExpiresAt,
	})
}

// ClearCookie clears the session cookie.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   false,
		MaxAge:   -1,
	})
}

// HandleLogout deletes the current session and clears the cookie.
func (m *Manager) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie("session"); err == nil {
		m.Delete(cookie.Value)
	}
	m.ClearCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// authFailure is the typed result an unauthenticated request gets.
type authFailure struct {
	Error string `json:"error"`
}

// WithAuth wraps a handler with a session check against the store. Failures
// come back as a typed JSON 401, never a redirect: the API surface is JSON
// all the way down.
func WithAuth(handler http.HandlerFunc, m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("session")
		if err != nil {
			unauthorized(w, "session cookie required")
			return
		}

		session, exists := m.Get(cookie.Value)
		if !exists {
			unauthorized(w, "invalid or expired session")
			return
		}

		handler(w, r.WithContext(WithUserID(r.Context(), session.UserID)))
	}
}

// WithPossibleAuth attaches the user id when a valid session is present but
// lets the request through either way.
func WithPossibleAuth(handler http.HandlerFunc, m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie("session"); err == nil {
			if session, exists := m.Get(cookie.Value); exists {
				r = r.WithContext(WithUserID(r.Context(), session.UserID))
			}
		}
		handler(w, r)
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(authFailure{Error: msg})
}

type contextKey int

const userIDKey contextKey = iota

func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func GetUserID(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDKey).(int64)
	return userID, ok
}
