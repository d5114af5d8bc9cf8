// Package tracker owns play sessions and listen events. It resolves or mints
// the session for each play, hands out gap-free sequence numbers, and
// finalizes completion accounting when playback ends.
package tracker

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/raagfm/raag/db"
	"github.com/raagfm/raag/models"
)

// Consecutive plays inside this window share one session.
const sessionWindow = time.Hour

// ErrPersistence wraps database failures. The tracker never retries; the
// caller owns retry and alerting policy.
var ErrPersistence = errors.New("persistence error")

// Clock is the slice of the time service the tracker needs.
type Clock interface {
	Now() time.Time
}

// Service tracks listening sessions. Session resolution and insert are
// serialized per user so concurrent plays can't both read the same max
// sequence.
type Service struct {
	db     *db.DB
	clock  Clock
	logger *log.Logger

	mu        sync.Mutex
	userLocks map[int64]*sync.Mutex
}

// New creates a session tracker.
func New(database *db.DB, clock Clock, logger *log.Logger) *Service {
	return &Service{
		db:        database,
		clock:     clock,
		logger:    logger,
		userLocks: make(map[int64]*sync.Mutex),
	}
}

func (s *Service) userLock(userID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.userLocks[userID] = l
	}
	return l
}

// StartListen records the beginning of a play and returns the listen id.
// The user's most recent session with activity inside the last hour is
// continued; otherwise a new session is minted.
func (s *Service) StartListen(userID int64, songID, title, artist string) (int64, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	now := s.clock.Now()

	sessionID, lastSeq, err := s.db.LatestSession(userID, now.Add(-sessionWindow))
	switch {
	case errors.Is(err, db.ErrNotFound):
		sessionID = fmt.Sprintf("session_%d", now.Unix())
		lastSeq = 0
	case err != nil:
		return 0, fmt.Errorf("%w: resolving session: %v", ErrPersistence, err)
	}

	ev := &models.ListenEvent{
		SongID:         strings.TrimSpace(songID),
		Title:          strings.TrimSpace(title),
		Artist:         strings.TrimSpace(artist),
		SessionID:      sessionID,
		SequenceNumber: lastSeq + 1,
		StartedAt:      now,
	}

	listenID, err := s.db.InsertListen(ev, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: inserting listen: %v", ErrPersistence, err)
	}

	if s.logger != nil {
		s.logger.Debug("listen started",
			"user", userID, "song", ev.SongID, "session", sessionID, "seq", ev.SequenceNumber)
	}
	return listenID, nil
}

// EndListen finalizes a play. Completion rate is listened/duration in
// percent (0 when duration is 0); the event update and both stats upserts
// commit in a single transaction.
func (s *Service) EndListen(listenID int64, duration, listenedDuration string) error {
	dur := coerceSeconds(duration)
	listened := coerceSeconds(listenedDuration)

	var rate float64
	if dur > 0 {
		rate = float64(listened) / float64(dur) * 100
	}
	if rate < 0 {
		rate = 0
	}
	if rate > 100 {
		rate = 100
	}

	ev := &models.ListenEvent{
		Duration:         dur,
		ListenedDuration: listened,
		CompletionRate:   rate,
		ListenType:       models.ClassifyListen(rate),
	}

	if err := s.db.FinalizeListen(listenID, ev, s.clock.Now()); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: finalizing listen %d: %v", ErrPersistence, listenID, err)
	}

	if s.logger != nil {
		s.logger.Debug("listen ended",
			"listen", listenID, "rate", rate, "type", ev.ListenType)
	}
	return nil
}

// coerceSeconds parses numeric input permissively: ints, floats, blank and
// garbage all land on a non-negative integer, defaulting to 0.
func coerceSeconds(v string) int64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0
	}
	return int64(f)
}
