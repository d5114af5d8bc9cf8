package db

import (
	"database/sql"
	"time"
)

// Download is a catalog track resolved to a local audio file.
type Download struct {
	SongID       string    `json:"songId"`
	Title        string    `json:"title"`
	Artist       string    `json:"artist"`
	Album        string    `json:"album"`
	Path         string    `json:"path"`
	DownloadedAt time.Time `json:"downloadedAt"`
}

// RecordDownload stores (or refreshes) the local file produced for a track,
// and associates it with the requesting user.
func (db *DB) RecordDownload(d *Download, recordID string, userID int64, now time.Time) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ts := db.formatTime(now)

	_, err = tx.Exec(`
	INSERT INTO downloads (song_id, title, artist, album, path, downloaded_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(song_id) DO UPDATE SET
		title = excluded.title,
		artist = excluded.artist,
		album = excluded.album,
		path = excluded.path,
		downloaded_at = excluded.downloaded_at`,
		d.SongID, d.Title, d.Artist, d.Album, d.Path, ts)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
	INSERT INTO user_downloads (id, user_id, song_id, downloaded_at)
	VALUES (?, ?, ?, ?)`,
		recordID, userID, d.SongID, ts)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetDownload returns the local file record for a track, or ErrNotFound.
func (db *DB) GetDownload(songID string) (*Download, error) {
	d := &Download{}
	var album sql.NullString
	var at sql.NullString

	err := db.QueryRow(`
	SELECT song_id, title, artist, album, path, downloaded_at
	FROM downloads WHERE song_id = ?`, songID).Scan(
		&d.SongID, &d.Title, &d.Artist, &album, &d.Path, &at)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	d.Album = album.String
	if t := db.parseNullTime(at); t != nil {
		d.DownloadedAt = *t
	}
	return d, nil
}

// UserDownloads lists the tracks a user has downloaded, newest first.
func (db *DB) UserDownloads(userID int64, limit int) ([]*Download, error) {
	rows, err := db.Query(`
	SELECT d.song_id, d.title, d.artist, d.album, d.path, ud.downloaded_at
	FROM user_downloads ud
	JOIN downloads d ON d.song_id = ud.song_id
	WHERE ud.user_id = ?
	ORDER BY ud.downloaded_at DESC
	LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var downloads []*Download
	for rows.Next() {
		d := &Download{}
		var album, at sql.NullString
		if err := rows.Scan(&d.SongID, &d.Title, &d.Artist, &album, &d.Path, &at); err != nil {
			return nil, err
		}
		d.Album = album.String
		if t := db.parseNullTime(at); t != nil {
			d.DownloadedAt = *t
		}
		downloads = append(downloads, d)
	}
	return downloads, rows.Err()
}
