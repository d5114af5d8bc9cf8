package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestResolveArtistFallbackOrder(t *testing.T) {
	tests := []struct {
		name  string
		track apiTrack
		want  string
	}{
		{
			name:  "nested artists preferred",
			track: apiTrack{Artists: []apiArtist{{Name: "Kishori Amonkar"}}, Artist: "flat"},
			want:  "Kishori Amonkar",
		},
		{
			name:  "flat artist when nested empty",
			track: apiTrack{Artists: []apiArtist{{Name: "  "}}, Artist: "Nusrat"},
			want:  "Nusrat",
		},
		{
			name:  "default when nothing resolves",
			track: apiTrack{},
			want:  UnknownArtist,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveArtist(&tt.track); got != tt.want {
				t.Errorf("resolveArtist = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveDuration(t *testing.T) {
	tests := []struct {
		name  string
		track apiTrack
		want  int64
	}{
		{name: "numeric seconds", track: apiTrack{DurationSeconds: "245"}, want: 245},
		{name: "float seconds", track: apiTrack{DurationSeconds: "245.7"}, want: 245},
		{name: "clock m:ss", track: apiTrack{Duration: "4:05"}, want: 245},
		{name: "clock h:mm:ss", track: apiTrack{Duration: "1:02:03"}, want: 3723},
		{name: "garbage degrades to zero", track: apiTrack{Duration: "soon"}, want: 0},
		{name: "absent degrades to zero", track: apiTrack{}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveDuration(&tt.track); got != tt.want {
				t.Errorf("resolveDuration = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResolveAlbumShapes(t *testing.T) {
	obj := apiTrack{Album: json.RawMessage(`{"name": "Raag Bhairavi"}`)}
	if got := resolveAlbum(&obj); got != "Raag Bhairavi" {
		t.Errorf("object album = %q", got)
	}

	flat := apiTrack{Album: json.RawMessage(`"Shakti"`)}
	if got := resolveAlbum(&flat); got != "Shakti" {
		t.Errorf("string album = %q", got)
	}

	if got := resolveAlbum(&apiTrack{}); got != "" {
		t.Errorf("absent album = %q, want empty", got)
	}
}

func TestResolveListenersFallbackChain(t *testing.T) {
	tests := []struct {
		name  string
		track apiTrack
		want  string
	}{
		{name: "direct field", track: apiTrack{Listeners: "120400"}, want: "120400"},
		{name: "renamed field", track: apiTrack{MonthlyListeners: "98k"}, want: "98k"},
		{name: "subscribers", track: apiTrack{Subscribers: "1.2M"}, want: "1.2M"},
		{
			name:  "extracted from free text",
			track: apiTrack{Description: "An icon with 2.4M monthly listeners worldwide."},
			want:  "2.4M",
		},
		{name: "default", track: apiTrack{Description: "no numbers here"}, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveListeners(&tt.track); got != tt.want {
				t.Errorf("ResolveListeners = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSearchNormalizesAndCaches(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results": [
			{"videoId": "abc123", "title": "Yaad Piya Ki", "artists": [{"name": "Bade Ghulam Ali Khan"}], "duration_seconds": 412, "listeners": "120400"},
			{"title": "no id, dropped"},
			{"id": "def456", "name": "Mast Qalandar", "artist": "Abida Parveen", "duration": "9:31", "description": "A qawwali legend with 1.8M monthly listeners."}
		]}`))
	}))
	defer server.Close()

	svc := New(server.URL, time.Hour, nil)

	got, err := svc.Search(context.Background(), "khayal", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2 (id-less entries dropped)", len(got))
	}
	if got[0].ID != "abc123" || got[0].Artist != "Bade Ghulam Ali Khan" || got[0].Duration != 412 {
		t.Errorf("first candidate = %+v", got[0])
	}
	if got[0].Listeners != "120400" {
		t.Errorf("first candidate listeners = %q, want %q", got[0].Listeners, "120400")
	}
	if got[1].ID != "def456" || got[1].Title != "Mast Qalandar" || got[1].Duration != 571 {
		t.Errorf("second candidate = %+v", got[1])
	}
	if got[1].Listeners != "1.8M" {
		t.Errorf("second candidate listeners = %q, want extraction from description", got[1].Listeners)
	}

	// Second identical search must come from cache.
	if _, err := svc.Search(context.Background(), "khayal", 10); err != nil {
		t.Fatalf("cached Search: %v", err)
	}
	if calls != 1 {
		t.Errorf("server hit %d times, want 1", calls)
	}
}

func TestSearchUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	server.Close() // immediately: transport-level failure

	svc := New(server.URL, time.Hour, nil)
	_, err := svc.Search(context.Background(), "anything", 5)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestGetTrackNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	svc := New(server.URL, time.Hour, nil)
	_, err := svc.GetTrack(context.Background(), "nope")
	if !errors.Is(err, ErrTrackNotFound) {
		t.Errorf("err = %v, want ErrTrackNotFound", err)
	}
}
