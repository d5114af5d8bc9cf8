package models

import "time"

// Listen classification thresholds, in percent of track duration.
const (
	FullListenThreshold = 85.0
	SkipThreshold       = 20.0
)

// ListenType classifies how much of a track was actually played.
type ListenType string

const (
	ListenFull    ListenType = "full"
	ListenPartial ListenType = "partial"
	ListenSkip    ListenType = "skip"
)

// ClassifyListen maps a completion rate to its listen type.
func ClassifyListen(completionRate float64) ListenType {
	switch {
	case completionRate >= FullListenThreshold:
		return ListenFull
	case completionRate <= SkipThreshold:
		return ListenSkip
	default:
		return ListenPartial
	}
}

// ListenEvent is one playback attempt of a track. It is inserted when
// playback starts (EndedAt nil) and finalized when playback ends.
type ListenEvent struct {
	ID               int64      `json:"id"`
	SongID           string     `json:"songId"`
	Title            string     `json:"title"`
	Artist           string     `json:"artist"`
	SessionID        string     `json:"sessionId"`
	SequenceNumber   int64      `json:"sequenceNumber"`
	StartedAt        time.Time  `json:"startedAt"`
	EndedAt          *time.Time `json:"endedAt,omitempty"`
	Duration         int64      `json:"duration"`
	ListenedDuration int64      `json:"listenedDuration"`
	CompletionRate   float64    `json:"completionRate"`
	ListenType       ListenType `json:"listenType"`
}

// ArtistStats is the incrementally maintained per-artist aggregate.
type ArtistStats struct {
	Artist      string    `json:"name"`
	TotalPlays  int64     `json:"plays"`
	TotalTime   int64     `json:"time"`
	FirstPlayed time.Time `json:"firstPlayed"`
	LastPlayed  time.Time `json:"lastPlayed"`
}

// DailyStats is the incrementally maintained per-calendar-day aggregate.
type DailyStats struct {
	Date       string `json:"date"` // YYYY-MM-DD in the service timezone
	TotalSongs int64  `json:"totalSongs"`
	TotalTime  int64  `json:"totalTime"`
}
