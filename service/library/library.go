// Package library indexes audio files on local disk so they can be searched
// and played alongside catalog tracks. The index is rebuilt by a periodic
// background task owned by the process supervisor.
package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/raagfm/raag/models"
)

// DefaultRefreshInterval is how often the music directory is rescanned.
const DefaultRefreshInterval = 20 * time.Second

var audioExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".flac": true,
	".opus": true,
	".ogg":  true,
	".webm": true,
}

type entry struct {
	track models.Track
	path  string
}

// Service holds the in-memory index of local files. Reads and the periodic
// rebuild interleave behind one RWMutex.
type Service struct {
	musicDir string
	logger   *log.Logger

	mu      sync.RWMutex
	byID    map[string]entry
	ordered []string // ids in scan order
}

// New creates a library over musicDir. Call Refresh (or start Run) before
// the first query.
func New(musicDir string, logger *log.Logger) *Service {
	return &Service{
		musicDir: musicDir,
		logger:   logger,
		byID:     make(map[string]entry),
	}
}

// Refresh rescans the music directory and swaps the index. Files are
// indexed in name order so local ids stay stable across rescans as long as
// the directory contents don't change.
func (s *Service) Refresh() error {
	dirEntries, err := os.ReadDir(s.musicDir)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		if audioExtensions[strings.ToLower(filepath.Ext(de.Name()))] {
			names = append(names, de.Name())
		}
	}
	sort.Strings(names)

	byID := make(map[string]entry, len(names))
	ordered := make([]string, 0, len(names))
	for i, name := range names {
		id := fmt.Sprintf("local-%d", i+1)
		title, artist := parseFilename(name)
		byID[id] = entry{
			track: models.Track{
				ID:     id,
				Title:  title,
				Artist: artist,
			},
			path: filepath.Join(s.musicDir, name),
		}
		ordered = append(ordered, id)
	}

	s.mu.Lock()
	s.byID = byID
	s.ordered = ordered
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Debug("library refreshed", "tracks", len(ordered))
	}
	return nil
}

// Run refreshes the index on a fixed interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	if err := s.Refresh(); err != nil && s.logger != nil {
		s.logger.Warn("initial library scan failed", "err", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(); err != nil && s.logger != nil {
				s.logger.Warn("library refresh failed", "err", err)
			}
		}
	}
}

// GetTrack resolves a local id, with the file path it maps to.
func (s *Service) GetTrack(id string) (*models.Track, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, "", false
	}
	t := e.track
	return &t, e.path, true
}

// Search filters the index by a case-insensitive substring match on title
// or artist, deduplicating on the (title, artist) pair.
func (s *Service) Search(query string) []models.Track {
	q := strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[[2]string]struct{})
	var out []models.Track
	for _, id := range s.ordered {
		t := s.byID[id].track
		title := strings.ToLower(t.Title)
		artist := strings.ToLower(t.Artist)

		if q != "" && !strings.Contains(title, q) && !strings.Contains(artist, q) {
			continue
		}
		key := [2]string{title, artist}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Size returns the number of indexed files.
func (s *Service) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ordered)
}

// parseFilename splits "Artist - Title.ext" style names; anything else
// becomes the title with an unknown artist.
func parseFilename(name string) (title, artist string) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if parts := strings.SplitN(base, " - ", 2); len(parts) == 2 {
		artist = strings.TrimSpace(parts[0])
		title = strings.TrimSpace(parts[1])
		if artist != "" && title != "" {
			return title, artist
		}
	}
	return strings.TrimSpace(base), "Unknown Artist"
}
