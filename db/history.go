package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/raagfm/raag/models"
)

// LatestSession returns the most recent session id and its highest sequence
// number for plays by the user since the given instant. ErrNotFound means
// there is no activity inside the window and a new session should be minted.
func (db *DB) LatestSession(userID int64, since time.Time) (string, int64, error) {
	var sessionID string
	var maxSeq int64

	err := db.QueryRow(`
	SELECT session_id, MAX(sequence_number)
	FROM listening_history
	WHERE user_id = ? AND started_at >= ?
	GROUP BY session_id
	ORDER BY MAX(started_at) DESC
	LIMIT 1`, userID, db.formatTime(since)).Scan(&sessionID, &maxSeq)

	if err == sql.ErrNoRows {
		return "", 0, ErrNotFound
	}
	if err != nil {
		return "", 0, err
	}
	return sessionID, maxSeq, nil
}

// InsertListen records the start of a play. The listening_history row and the
// per-user user_history row are written in one transaction.
func (db *DB) InsertListen(ev *models.ListenEvent, userID int64) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	startedAt := db.formatTime(ev.StartedAt)

	res, err := tx.Exec(`
	INSERT INTO listening_history
		(user_id, song_id, title, artist, session_id, sequence_number, started_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, ev.SongID, ev.Title, ev.Artist, ev.SessionID, ev.SequenceNumber, startedAt)
	if err != nil {
		return 0, err
	}

	listenID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(`
	INSERT INTO user_history (user_id, song_id, session_id, sequence_number, played_at)
	VALUES (?, ?, ?, ?, ?)`,
		userID, ev.SongID, ev.SessionID, ev.SequenceNumber, startedAt)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return listenID, nil
}

// FinalizeListen completes a listen event and applies the artist and daily
// aggregates. All three writes commit in the same transaction or none do.
func (db *DB) FinalizeListen(listenID int64, ev *models.ListenEvent, endedAt time.Time) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var artist string
	err = tx.QueryRow(`SELECT artist FROM listening_history WHERE id = ?`, listenID).Scan(&artist)
	if err == sql.ErrNoRows {
		return fmt.Errorf("listen %d: %w", listenID, ErrNotFound)
	}
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
	UPDATE listening_history
	SET ended_at = ?,
		duration = ?,
		listened_duration = ?,
		completion_rate = ?,
		listen_type = ?
	WHERE id = ?`,
		db.formatTime(endedAt), ev.Duration, ev.ListenedDuration,
		ev.CompletionRate, string(ev.ListenType), listenID)
	if err != nil {
		return err
	}

	if err := db.upsertArtistStats(tx, artist, ev.ListenedDuration, endedAt); err != nil {
		return err
	}
	if err := db.upsertDailyStats(tx, ev.ListenedDuration, endedAt); err != nil {
		return err
	}

	return tx.Commit()
}

// GetListen retrieves a single listen event by id.
func (db *DB) GetListen(listenID int64) (*models.ListenEvent, error) {
	ev := &models.ListenEvent{}
	var startedAt string
	var endedAt sql.NullString
	var rate sql.NullFloat64
	var listenType sql.NullString

	err := db.QueryRow(`
	SELECT id, song_id, title, artist, session_id, sequence_number,
		started_at, ended_at, duration, listened_duration, completion_rate, listen_type
	FROM listening_history
	WHERE id = ?`, listenID).Scan(
		&ev.ID, &ev.SongID, &ev.Title, &ev.Artist, &ev.SessionID, &ev.SequenceNumber,
		&startedAt, &endedAt, &ev.Duration, &ev.ListenedDuration, &rate, &listenType)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	ev.StartedAt = db.parseTime(startedAt)
	ev.EndedAt = db.parseNullTime(endedAt)
	if rate.Valid {
		ev.CompletionRate = rate.Float64
	}
	if listenType.Valid {
		ev.ListenType = models.ListenType(listenType.String)
	}
	return ev, nil
}

// RecentPlays returns the latest plays for a user, newest first.
func (db *DB) RecentPlays(userID int64, limit int) ([]*models.ListenEvent, error) {
	rows, err := db.Query(`
	SELECT id, song_id, title, artist, session_id, sequence_number,
		started_at, ended_at, duration, listened_duration, completion_rate, listen_type
	FROM listening_history
	WHERE user_id = ?
	ORDER BY started_at DESC, id DESC
	LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return db.scanListens(rows)
}

// RecentActivity returns the latest finalized listens across all users.
func (db *DB) RecentActivity(limit int) ([]*models.ListenEvent, error) {
	rows, err := db.Query(`
	SELECT id, song_id, title, artist, session_id, sequence_number,
		started_at, ended_at, duration, listened_duration, completion_rate, listen_type
	FROM listening_history
	WHERE ended_at IS NOT NULL
	ORDER BY started_at DESC, id DESC
	LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return db.scanListens(rows)
}

func (db *DB) scanListens(rows *sql.Rows) ([]*models.ListenEvent, error) {
	var events []*models.ListenEvent

	for rows.Next() {
		ev := &models.ListenEvent{}
		var startedAt string
		var endedAt sql.NullString
		var rate sql.NullFloat64
		var listenType sql.NullString

		err := rows.Scan(
			&ev.ID, &ev.SongID, &ev.Title, &ev.Artist, &ev.SessionID, &ev.SequenceNumber,
			&startedAt, &endedAt, &ev.Duration, &ev.ListenedDuration, &rate, &listenType)
		if err != nil {
			return nil, err
		}

		ev.StartedAt = db.parseTime(startedAt)
		ev.EndedAt = db.parseNullTime(endedAt)
		if rate.Valid {
			ev.CompletionRate = rate.Float64
		}
		if listenType.Valid {
			ev.ListenType = models.ListenType(listenType.String)
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}
