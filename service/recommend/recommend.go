// Package recommend removes duplicate tracks, filters candidates on
// availability and duration, and assembles recommendation lists through a
// fallback chain. Catalog failures are absorbed here: callers always get a
// (possibly empty) list, never an error.
package recommend

import (
	"context"
	"math/rand"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/raagfm/raag/models"
)

// Candidate duration bounds. Anything shorter is a jingle, anything longer
// is a mix or a broadcast.
const (
	minDuration = 30
	maxDuration = 1800
)

// How many recommendations a list carries.
const targetCount = 5

// Fallback search categories used when a seed can't be resolved.
var fallbackCategories = []string{
	"top hits",
	"popular music",
	"trending songs",
	"new releases",
	"viral hits",
}

// Catalog is the slice of the catalog client the engine needs.
type Catalog interface {
	Search(ctx context.Context, query string, limit int) ([]models.Candidate, error)
	GetTrack(ctx context.Context, id string) (*models.Track, error)
	Trending(ctx context.Context) ([]models.Candidate, error)
	Charts(ctx context.Context) ([]models.Candidate, error)
}

// Engine builds recommendation lists. The random source is injected so tests
// can control shuffling and category choice.
type Engine struct {
	catalog Catalog
	rng     *rand.Rand
	logger  *log.Logger
}

// New creates an engine. rng must not be shared with other goroutines; the
// engine serializes its own use.
func New(catalog Catalog, rng *rand.Rand, logger *log.Logger) *Engine {
	return &Engine{catalog: catalog, rng: rng, logger: logger}
}

// Dedupe removes tracks whose lower-cased (title, artist) pair has already
// been seen, preserving first-seen order. It is idempotent.
func Dedupe(tracks []models.Track) []models.Track {
	seen := make(map[[2]string]struct{}, len(tracks))
	out := make([]models.Track, 0, len(tracks))
	for _, t := range tracks {
		key := [2]string{strings.ToLower(t.Title), strings.ToLower(t.Artist)}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// accept applies the candidate filter and, when the candidate passes,
// appends it and marks its id seen. Rejection reasons, in order: missing id,
// already seen, currently playing, unavailable or private, empty or
// placeholder title, unresolved artist, duration outside [30s, 30m].
func accept(c *models.Candidate, recs *[]models.Track, seen map[string]struct{}, currentID string) bool {
	if c.ID == "" {
		return false
	}
	if _, dup := seen[c.ID]; dup {
		return false
	}
	if currentID != "" && c.ID == currentID {
		return false
	}
	if c.Unavailable || c.Private {
		return false
	}

	title := strings.TrimSpace(c.Title)
	if title == "" || title == "Unknown" {
		return false
	}

	artist := strings.TrimSpace(c.Artist)
	if artist == "" || artist == "Unknown Artist" {
		return false
	}

	if c.Duration < minDuration || c.Duration > maxDuration {
		return false
	}

	*recs = append(*recs, c.Track)
	seen[c.ID] = struct{}{}
	return true
}

// BuildRecommendations returns up to five tracks related to the seed id.
// The seed's own metadata drives a search; shortfalls are topped up from a
// generic popular query; an unresolvable seed drops to the category
// fallback. The final list is shuffled so repeat requests don't feel
// canned.
func (e *Engine) BuildRecommendations(ctx context.Context, seed *models.Track, currentID string) []models.Track {
	if seed == nil {
		return e.Fallback(ctx, currentID)
	}

	recs := make([]models.Track, 0, targetCount)
	seen := make(map[string]struct{})
	if currentID == "" {
		currentID = seed.ID
	}

	candidates, err := e.catalog.Search(ctx, seed.Title+" "+seed.Artist, 15)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("seed search failed, using fallback", "seed", seed.ID, "err", err)
		}
		return e.Fallback(ctx, currentID)
	}

	for i := range candidates {
		if accept(&candidates[i], &recs, seen, currentID) && len(recs) >= targetCount {
			break
		}
	}

	if len(recs) < targetCount {
		popular, err := e.catalog.Search(ctx, "popular music", 10)
		if err == nil {
			for i := range popular {
				if accept(&popular[i], &recs, seen, currentID) && len(recs) >= targetCount {
					break
				}
			}
		}
	}

	e.shuffle(recs)
	return truncate(recs)
}

// Fallback assembles recommendations with no seed: two randomly chosen
// categories contribute up to three random picks each, then trending and
// charts fill any remaining shortfall.
func (e *Engine) Fallback(ctx context.Context, currentID string) []models.Track {
	recs := make([]models.Track, 0, targetCount)
	seen := make(map[string]struct{})

	for _, category := range e.pickCategories(2) {
		results, err := e.catalog.Search(ctx, category, 10)
		if err != nil {
			if e.logger != nil {
				e.logger.Warn("fallback category search failed", "category", category, "err", err)
			}
			continue
		}

		for _, i := range e.rng.Perm(len(results))[:min(3, len(results))] {
			if accept(&results[i], &recs, seen, currentID) && len(recs) >= targetCount {
				break
			}
		}
		if len(recs) >= targetCount {
			break
		}
	}

	if len(recs) < targetCount {
		if trending, err := e.catalog.Trending(ctx); err == nil {
			for i := range trending {
				if accept(&trending[i], &recs, seen, currentID) && len(recs) >= targetCount {
					break
				}
			}
		}
	}
	if len(recs) < targetCount {
		if charts, err := e.catalog.Charts(ctx); err == nil {
			for i := range charts {
				if accept(&charts[i], &recs, seen, currentID) && len(recs) >= targetCount {
					break
				}
			}
		}
	}

	e.shuffle(recs)
	return truncate(recs)
}

func (e *Engine) pickCategories(n int) []string {
	perm := e.rng.Perm(len(fallbackCategories))
	if n > len(perm) {
		n = len(perm)
	}
	picked := make([]string, 0, n)
	for _, i := range perm[:n] {
		picked = append(picked, fallbackCategories[i])
	}
	return picked
}

func (e *Engine) shuffle(tracks []models.Track) {
	e.rng.Shuffle(len(tracks), func(i, j int) {
		tracks[i], tracks[j] = tracks[j], tracks[i]
	})
}

func truncate(tracks []models.Track) []models.Track {
	if len(tracks) > targetCount {
		return tracks[:targetCount]
	}
	return tracks
}
