package catalog

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/raagfm/raag/models"
)

// UnknownArtist is the default when no artist field resolves.
const UnknownArtist = "Unknown Artist"

// Matches counts embedded in free text, e.g. "2.4M monthly listeners" or
// "1,204,551 listeners".
var listenerCountExpr = regexp2.MustCompile(
	`(?i)([\d][\d,.]*[KMB]?)\s*(monthly listeners|listeners|subscribers|plays|views)`, 0)

// normalize converts a raw catalog item into a Candidate, applying the
// ordered fallback resolution for each field. Missing optional fields
// degrade to documented defaults; the only hard requirement is an id.
func normalize(t *apiTrack) (models.Candidate, bool) {
	id := resolveID(t)
	if id == "" {
		return models.Candidate{}, false
	}

	c := models.Candidate{
		Track: models.Track{
			ID:           id,
			Title:        resolveTitle(t),
			Artist:       resolveArtist(t),
			Album:        resolveAlbum(t),
			Duration:     resolveDuration(t),
			ThumbnailURL: resolveThumbnail(t),
			Listeners:    ResolveListeners(t),
		},
	}
	if t.IsAvailable != nil && !*t.IsAvailable {
		c.Unavailable = true
	}
	if t.IsPrivate != nil && *t.IsPrivate {
		c.Private = true
	}
	return c, true
}

func resolveID(t *apiTrack) string {
	if t.VideoID != "" {
		return t.VideoID
	}
	return t.ID
}

func resolveTitle(t *apiTrack) string {
	if title := strings.TrimSpace(t.Title); title != "" {
		return title
	}
	return strings.TrimSpace(t.Name)
}

// resolveArtist tries artists[0].name, then the flat artist field, then
// gives up with the default.
func resolveArtist(t *apiTrack) string {
	if len(t.Artists) > 0 {
		if name := strings.TrimSpace(t.Artists[0].Name); name != "" {
			return name
		}
	}
	if name := strings.TrimSpace(t.Artist); name != "" {
		return name
	}
	return UnknownArtist
}

func resolveAlbum(t *apiTrack) string {
	if len(t.Album) == 0 {
		return ""
	}
	var obj apiAlbum
	if err := json.Unmarshal(t.Album, &obj); err == nil && obj.Name != "" {
		return strings.TrimSpace(obj.Name)
	}
	var flat string
	if err := json.Unmarshal(t.Album, &flat); err == nil {
		return strings.TrimSpace(flat)
	}
	return ""
}

// resolveDuration accepts a numeric duration_seconds (number or quoted
// number) and falls back to parsing "h:mm:ss" / "m:ss". Unparseable input
// degrades to 0.
func resolveDuration(t *apiTrack) int64 {
	if t.DurationSeconds != "" {
		if n, err := t.DurationSeconds.Int64(); err == nil {
			return n
		}
		if f, err := t.DurationSeconds.Float64(); err == nil {
			return int64(f)
		}
	}
	return parseClockDuration(t.Duration)
}

func parseClockDuration(s string) int64 {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	var total int64
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total
}

func resolveThumbnail(t *apiTrack) string {
	best := ""
	bestArea := -1
	for _, th := range t.Thumbnails {
		area := th.Width * th.Height
		if th.URL != "" && area > bestArea {
			best = th.URL
			bestArea = area
		}
	}
	return best
}

// ResolveListeners resolves a popularity count through the ordered fallback
// chain: listeners, monthlyListeners, subscribers, then a count extracted
// from the free-text description, and finally "0".
func ResolveListeners(t *apiTrack) string {
	for _, v := range []string{t.Listeners, t.MonthlyListeners, t.Subscribers} {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	if m, err := listenerCountExpr.FindStringMatch(t.Description); err == nil && m != nil {
		return m.GroupByNumber(1).String()
	}
	return "0"
}
