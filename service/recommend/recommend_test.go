package recommend

import (
	"context"
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/raagfm/raag/models"
	"github.com/raagfm/raag/service/catalog"
)

type fakeCatalog struct {
	searches map[string][]models.Candidate
	trending []models.Candidate
	charts   []models.Candidate
	fail     bool
}

func (f *fakeCatalog) Search(ctx context.Context, query string, limit int) ([]models.Candidate, error) {
	if f.fail {
		return nil, catalog.ErrUnavailable
	}
	return f.searches[query], nil
}

func (f *fakeCatalog) GetTrack(ctx context.Context, id string) (*models.Track, error) {
	return nil, catalog.ErrTrackNotFound
}

func (f *fakeCatalog) Trending(ctx context.Context) ([]models.Candidate, error) {
	if f.fail {
		return nil, catalog.ErrUnavailable
	}
	return f.trending, nil
}

func (f *fakeCatalog) Charts(ctx context.Context) ([]models.Candidate, error) {
	if f.fail {
		return nil, catalog.ErrUnavailable
	}
	return f.charts, nil
}

func candidate(id, title, artist string, duration int64) models.Candidate {
	return models.Candidate{Track: models.Track{
		ID: id, Title: title, Artist: artist, Duration: duration,
	}}
}

func candidates(prefix string, n int) []models.Candidate {
	out := make([]models.Candidate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, candidate(
			fmt.Sprintf("%s-%d", prefix, i),
			fmt.Sprintf("Song %s %d", prefix, i),
			fmt.Sprintf("Artist %s", prefix),
			200,
		))
	}
	return out
}

func TestDedupe(t *testing.T) {
	tracks := []models.Track{
		{ID: "1", Title: "Albela Sajan", Artist: "Ustad Sultan Khan"},
		{ID: "2", Title: "albela sajan", Artist: "USTAD SULTAN KHAN"}, // case-insensitive dup
		{ID: "3", Title: "Albela Sajan", Artist: "Shankar Mahadevan"}, // same title, other artist
		{ID: "4", Title: "Piya Basanti", Artist: "Ustad Sultan Khan"},
	}

	got := Dedupe(tracks)
	if len(got) != 3 {
		t.Fatalf("got %d tracks, want 3", len(got))
	}
	if got[0].ID != "1" || got[1].ID != "3" || got[2].ID != "4" {
		t.Errorf("first-seen order not preserved: %+v", got)
	}
}

func TestDedupeIdempotent(t *testing.T) {
	tracks := []models.Track{
		{Title: "A", Artist: "X"},
		{Title: "a", Artist: "x"},
		{Title: "B", Artist: "Y"},
	}
	once := Dedupe(tracks)
	twice := Dedupe(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("dedupe not idempotent: %+v vs %+v", once, twice)
	}
}

func TestDedupeEmpty(t *testing.T) {
	if got := Dedupe(nil); len(got) != 0 {
		t.Errorf("Dedupe(nil) = %v", got)
	}
}

func TestAcceptRejections(t *testing.T) {
	seen := map[string]struct{}{"dup": {}}

	tests := []struct {
		name string
		c    models.Candidate
	}{
		{name: "no id", c: candidate("", "Song", "Artist", 200)},
		{name: "already seen", c: candidate("dup", "Song", "Artist", 200)},
		{name: "currently playing", c: candidate("current", "Song", "Artist", 200)},
		{name: "unavailable", c: func() models.Candidate {
			c := candidate("x1", "Song", "Artist", 200)
			c.Unavailable = true
			return c
		}()},
		{name: "private", c: func() models.Candidate {
			c := candidate("x2", "Song", "Artist", 200)
			c.Private = true
			return c
		}()},
		{name: "empty title", c: candidate("x3", "   ", "Artist", 200)},
		{name: "placeholder title", c: candidate("x4", "Unknown", "Artist", 200)},
		{name: "unknown artist", c: candidate("x5", "Song", "Unknown Artist", 200)},
		{name: "too short", c: candidate("x6", "Song", "Artist", 29)},
		{name: "too long", c: candidate("x7", "Song", "Artist", 1801)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var recs []models.Track
			if accept(&tt.c, &recs, seen, "current") {
				t.Errorf("accept(%+v) = true, want rejection", tt.c)
			}
		})
	}

	// Boundary durations are accepted.
	var recs []models.Track
	ok30 := candidate("b1", "Song", "Artist", 30)
	ok1800 := candidate("b2", "Song", "Artist", 1800)
	if !accept(&ok30, &recs, seen, "current") || !accept(&ok1800, &recs, seen, "current") {
		t.Error("boundary durations 30 and 1800 should be accepted")
	}
}

func TestBuildRecommendationsFromSeed(t *testing.T) {
	seed := &models.Track{ID: "seed", Title: "Mast Qalandar", Artist: "Abida Parveen"}
	fc := &fakeCatalog{searches: map[string][]models.Candidate{
		"Mast Qalandar Abida Parveen": candidates("seedq", 8),
	}}
	e := New(fc, rand.New(rand.NewSource(1)), nil)

	got := e.BuildRecommendations(context.Background(), seed, "")
	if len(got) != 5 {
		t.Fatalf("got %d recommendations, want 5", len(got))
	}
	assertNoDuplicatesOrCurrent(t, got, "seed")
}

func TestBuildRecommendationsTopsUpFromPopular(t *testing.T) {
	seed := &models.Track{ID: "seed", Title: "Rare Raga", Artist: "Obscure Artist"}
	fc := &fakeCatalog{searches: map[string][]models.Candidate{
		"Rare Raga Obscure Artist": candidates("narrow", 2),
		"popular music":            candidates("pop", 10),
	}}
	e := New(fc, rand.New(rand.NewSource(2)), nil)

	got := e.BuildRecommendations(context.Background(), seed, "")
	if len(got) != 5 {
		t.Fatalf("got %d recommendations, want 5", len(got))
	}
	assertNoDuplicatesOrCurrent(t, got, "seed")
}

func TestBuildRecommendationsFallbackOnCatalogFailure(t *testing.T) {
	seed := &models.Track{ID: "seed", Title: "Anything", Artist: "Anyone"}
	fc := &fakeCatalog{fail: true}
	e := New(fc, rand.New(rand.NewSource(3)), nil)

	got := e.BuildRecommendations(context.Background(), seed, "")
	if len(got) != 0 {
		t.Errorf("dead catalog should yield empty list, got %d", len(got))
	}
}

func TestFallbackUsesCategoriesThenTrendingAndCharts(t *testing.T) {
	searches := make(map[string][]models.Candidate)
	for _, cat := range []string{"top hits", "popular music", "trending songs", "new releases", "viral hits"} {
		searches[cat] = candidates("cat-"+cat, 1) // 1 pick per category: not enough
	}
	fc := &fakeCatalog{
		searches: searches,
		trending: candidates("trend", 2),
		charts:   candidates("chart", 5),
	}
	e := New(fc, rand.New(rand.NewSource(4)), nil)

	got := e.Fallback(context.Background(), "")
	if len(got) != 5 {
		t.Fatalf("got %d recommendations, want 5", len(got))
	}
	assertNoDuplicatesOrCurrent(t, got, "")
}

func TestNilSeedFallsBack(t *testing.T) {
	fc := &fakeCatalog{searches: map[string][]models.Candidate{
		"top hits":       candidates("th", 6),
		"popular music":  candidates("pm", 6),
		"trending songs": candidates("ts", 6),
		"new releases":   candidates("nr", 6),
		"viral hits":     candidates("vh", 6),
	}}
	e := New(fc, rand.New(rand.NewSource(5)), nil)

	got := e.BuildRecommendations(context.Background(), nil, "")
	if len(got) == 0 || len(got) > 5 {
		t.Errorf("got %d recommendations, want 1..5", len(got))
	}
}

func TestCurrentTrackNeverRecommended(t *testing.T) {
	pool := candidates("p", 10)
	pool[3].ID = "now-playing"
	fc := &fakeCatalog{searches: map[string][]models.Candidate{
		"Song Artist": pool,
	}}
	seed := &models.Track{ID: "now-playing", Title: "Song", Artist: "Artist"}
	e := New(fc, rand.New(rand.NewSource(6)), nil)

	got := e.BuildRecommendations(context.Background(), seed, "now-playing")
	assertNoDuplicatesOrCurrent(t, got, "now-playing")
}

func assertNoDuplicatesOrCurrent(t *testing.T, tracks []models.Track, currentID string) {
	t.Helper()
	if len(tracks) > 5 {
		t.Errorf("more than 5 recommendations: %d", len(tracks))
	}
	seen := make(map[string]struct{})
	for _, tr := range tracks {
		if tr.ID == currentID && currentID != "" {
			t.Errorf("current track %q recommended", currentID)
		}
		if _, dup := seen[tr.ID]; dup {
			t.Errorf("duplicate id %q in recommendations", tr.ID)
		}
		seen[tr.ID] = struct{}{}
	}
}
