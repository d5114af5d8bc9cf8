// Package stats rolls listening history up into the numbers the dashboard
// shows: totals, top artists, completion distribution, and hourly/weekly
// listening patterns.
package stats

import (
	"fmt"
	"math"
	"time"

	"github.com/raagfm/raag/db"
	"github.com/raagfm/raag/models"
)

// Clock is the slice of the time service the aggregator needs.
type Clock interface {
	Now() time.Time
	Zone() *time.Location
}

// Overview is the top-level stats summary.
type Overview struct {
	TotalTime     int64   `json:"total_time"`
	TotalSongs    int64   `json:"total_songs"`
	UniqueArtists int64   `json:"unique_artists"`
	AverageDaily  float64 `json:"average_daily"`
}

// Completion is the listen-type distribution plus the mean completion rate.
type Completion struct {
	Distribution map[models.ListenType]int64 `json:"completion_distribution"`
	Average      float64                     `json:"average_completion"`
}

// Patterns holds play counts bucketed by hour of day and day of week.
// Every slot is present; quiet hours read as zero.
type Patterns struct {
	Hourly map[string]int64 `json:"hourly"`
	Daily  map[string]int64 `json:"daily"`
}

// Service computes aggregates. ArtistStats and DailyStats are maintained
// incrementally by the tracker; everything else scans the event table.
type Service struct {
	db    *db.DB
	clock Clock
}

// New creates a stats aggregator.
func New(database *db.DB, clock Clock) *Service {
	return &Service{db: database, clock: clock}
}

// Overview returns the top-level numbers. Average daily plays divides total
// plays by days since the first recorded listen (at least one).
func (s *Service) Overview() (*Overview, error) {
	totalTime, totalSongs, uniqueArtists, err := s.db.OverviewTotals()
	if err != nil {
		return nil, fmt.Errorf("overview totals: %w", err)
	}

	days := int64(1)
	first, err := s.db.FirstListenDate()
	if err != nil {
		return nil, fmt.Errorf("first listen date: %w", err)
	}
	if first != "" {
		if firstDay, perr := time.ParseInLocation("2006-01-02", first, s.clock.Zone()); perr == nil {
			if d := int64(s.clock.Now().Sub(firstDay).Hours() / 24); d > 1 {
				days = d
			}
		}
	}

	return &Overview{
		TotalTime:     totalTime,
		TotalSongs:    totalSongs,
		UniqueArtists: uniqueArtists,
		AverageDaily:  round2(float64(totalSongs) / float64(days)),
	}, nil
}

// TopArtists returns the n artists with the most listening time.
func (s *Service) TopArtists(n int) ([]*models.ArtistStats, error) {
	if n <= 0 {
		n = 10
	}
	artists, err := s.db.TopArtists(n)
	if err != nil {
		return nil, fmt.Errorf("top artists: %w", err)
	}
	return artists, nil
}

// DailyBreakdown returns per-calendar-day totals, newest day first.
func (s *Service) DailyBreakdown(n int) ([]*models.DailyStats, error) {
	if n <= 0 {
		n = 30
	}
	days, err := s.db.RecentDailyStats(n)
	if err != nil {
		return nil, fmt.Errorf("daily stats: %w", err)
	}
	return days, nil
}

// CompletionDistribution returns listen counts per type and the average
// completion rate. All three types are always present in the map.
func (s *Service) CompletionDistribution() (*Completion, error) {
	counts, err := s.db.CompletionCounts()
	if err != nil {
		return nil, fmt.Errorf("completion counts: %w", err)
	}

	dist := map[models.ListenType]int64{
		models.ListenFull:    0,
		models.ListenPartial: 0,
		models.ListenSkip:    0,
	}
	for lt, n := range counts {
		if _, known := dist[lt]; known {
			dist[lt] = n
		}
	}

	avg, err := s.db.AverageCompletion()
	if err != nil {
		return nil, fmt.Errorf("average completion: %w", err)
	}

	return &Completion{Distribution: dist, Average: round2(avg)}, nil
}

// ListeningPatterns returns hourly ("00".."23") and weekday ("0" Sunday
// through "6") play counts, zero-filled before observed counts overlay.
func (s *Service) ListeningPatterns() (*Patterns, error) {
	p := &Patterns{
		Hourly: make(map[string]int64, 24),
		Daily:  make(map[string]int64, 7),
	}
	for h := 0; h < 24; h++ {
		p.Hourly[fmt.Sprintf("%02d", h)] = 0
	}
	for d := 0; d < 7; d++ {
		p.Daily[fmt.Sprintf("%d", d)] = 0
	}

	hourly, err := s.db.HourlyPlayCounts()
	if err != nil {
		return nil, fmt.Errorf("hourly counts: %w", err)
	}
	for hour, n := range hourly {
		if _, known := p.Hourly[hour]; known {
			p.Hourly[hour] = n
		}
	}

	daily, err := s.db.WeekdayPlayCounts()
	if err != nil {
		return nil, fmt.Errorf("weekday counts: %w", err)
	}
	for day, n := range daily {
		if _, known := p.Daily[day]; known {
			p.Daily[day] = n
		}
	}

	return p, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
