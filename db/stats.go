package db

import (
	"database/sql"
	"time"

	"github.com/raagfm/raag/models"
)

// upsertArtistStats additively applies one finalized listen to the artist
// aggregate. Runs inside the finalize transaction.
func (db *DB) upsertArtistStats(tx *sql.Tx, artist string, listenedDuration int64, now time.Time) error {
	ts := db.formatTime(now)
	_, err := tx.Exec(`
	INSERT INTO artist_stats (artist, total_plays, total_time, first_played, last_played, updated_at)
	VALUES (?, 1, ?, ?, ?, ?)
	ON CONFLICT(artist) DO UPDATE SET
		total_plays = total_plays + 1,
		total_time = total_time + ?,
		last_played = ?,
		updated_at = ?`,
		artist, listenedDuration, ts, ts, ts,
		listenedDuration, ts, ts)
	return err
}

// upsertDailyStats additively applies one finalized listen to the calendar
// day aggregate. Runs inside the finalize transaction.
func (db *DB) upsertDailyStats(tx *sql.Tx, listenedDuration int64, now time.Time) error {
	date := now.In(db.zone).Format("2006-01-02")
	ts := db.formatTime(now)
	_, err := tx.Exec(`
	INSERT INTO daily_stats (date, total_songs, total_time, updated_at)
	VALUES (?, 1, ?, ?)
	ON CONFLICT(date) DO UPDATE SET
		total_songs = total_songs + 1,
		total_time = total_time + ?,
		updated_at = ?`,
		date, listenedDuration, ts,
		listenedDuration, ts)
	return err
}

// RecentDailyStats returns up to n daily aggregates, newest day first.
func (db *DB) RecentDailyStats(n int) ([]*models.DailyStats, error) {
	rows, err := db.Query(`
	SELECT date, total_songs, total_time
	FROM daily_stats
	ORDER BY date DESC
	LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.DailyStats
	for rows.Next() {
		d := &models.DailyStats{}
		if err := rows.Scan(&d.Date, &d.TotalSongs, &d.TotalTime); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// OverviewTotals scans the event table for the top-level numbers.
func (db *DB) OverviewTotals() (totalTime, totalSongs, uniqueArtists int64, err error) {
	err = db.QueryRow(`
	SELECT COALESCE(SUM(listened_duration), 0), COUNT(*), COUNT(DISTINCT artist)
	FROM listening_history`).Scan(&totalTime, &totalSongs, &uniqueArtists)
	return
}

// FirstListenDate returns the earliest date in daily_stats, or the zero
// string if nothing has been recorded yet.
func (db *DB) FirstListenDate() (string, error) {
	var date sql.NullString
	if err := db.QueryRow(`SELECT MIN(date) FROM daily_stats`).Scan(&date); err != nil {
		return "", err
	}
	if !date.Valid {
		return "", nil
	}
	return date.String, nil
}

// TopArtists returns the n artists with the most listening time.
func (db *DB) TopArtists(n int) ([]*models.ArtistStats, error) {
	rows, err := db.Query(`
	SELECT artist, total_plays, total_time, first_played, last_played
	FROM artist_stats
	ORDER BY total_time DESC
	LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artists []*models.ArtistStats
	for rows.Next() {
		a := &models.ArtistStats{}
		var first, last sql.NullString
		if err := rows.Scan(&a.Artist, &a.TotalPlays, &a.TotalTime, &first, &last); err != nil {
			return nil, err
		}
		if t := db.parseNullTime(first); t != nil {
			a.FirstPlayed = *t
		}
		if t := db.parseNullTime(last); t != nil {
			a.LastPlayed = *t
		}
		artists = append(artists, a)
	}
	return artists, rows.Err()
}

// ArtistStatsByName fetches a single artist aggregate, or ErrNotFound.
func (db *DB) ArtistStatsByName(artist string) (*models.ArtistStats, error) {
	a := &models.ArtistStats{}
	var first, last sql.NullString
	err := db.QueryRow(`
	SELECT artist, total_plays, total_time, first_played, last_played
	FROM artist_stats WHERE artist = ?`, artist).Scan(
		&a.Artist, &a.TotalPlays, &a.TotalTime, &first, &last)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if t := db.parseNullTime(first); t != nil {
		a.FirstPlayed = *t
	}
	if t := db.parseNullTime(last); t != nil {
		a.LastPlayed = *t
	}
	return a, nil
}

// CompletionCounts returns finalized listen counts keyed by listen type.
func (db *DB) CompletionCounts() (map[models.ListenType]int64, error) {
	rows, err := db.Query(`
	SELECT listen_type, COUNT(*)
	FROM listening_history
	WHERE listen_type IS NOT NULL
	GROUP BY listen_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.ListenType]int64)
	for rows.Next() {
		var lt string
		var n int64
		if err := rows.Scan(&lt, &n); err != nil {
			return nil, err
		}
		counts[models.ListenType(lt)] = n
	}
	return counts, rows.Err()
}

// AverageCompletion returns the mean completion rate over well-formed rows.
func (db *DB) AverageCompletion() (float64, error) {
	var avg sql.NullFloat64
	err := db.QueryRow(`
	SELECT AVG(completion_rate)
	FROM listening_history
	WHERE completion_rate IS NOT NULL
	AND completion_rate BETWEEN 0 AND 100`).Scan(&avg)
	if err != nil {
		return 0, err
	}
	if !avg.Valid {
		return 0, nil
	}
	return avg.Float64, nil
}

// HourlyPlayCounts returns play counts keyed by hour-of-day ("00".."23").
// Absent hours are simply missing; the aggregator zero-fills.
func (db *DB) HourlyPlayCounts() (map[string]int64, error) {
	return db.bucketCounts(`
	SELECT strftime('%H', started_at) AS hour, COUNT(*)
	FROM listening_history
	WHERE started_at IS NOT NULL
	GROUP BY hour`)
}

// WeekdayPlayCounts returns play counts keyed by day-of-week ("0"=Sunday).
func (db *DB) WeekdayPlayCounts() (map[string]int64, error) {
	return db.bucketCounts(`
	SELECT strftime('%w', started_at) AS day, COUNT(*)
	FROM listening_history
	WHERE started_at IS NOT NULL
	GROUP BY day`)
}

func (db *DB) bucketCounts(query string) (map[string]int64, error) {
	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var bucket string
		var n int64
		if err := rows.Scan(&bucket, &n); err != nil {
			return nil, err
		}
		counts[bucket] = n
	}
	return counts, rows.Err()
}
