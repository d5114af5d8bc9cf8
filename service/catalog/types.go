package catalog

import "encoding/json"

// The remote catalog is loose with its response shapes: fields get renamed
// between endpoints, numbers arrive as strings, albums are sometimes objects
// and sometimes bare names. These types accept everything and normalization
// happens in fields.go, never at the call site.

type searchResponse struct {
	Results []apiTrack `json:"results"`
	Items   []apiTrack `json:"items"` // charts endpoint spells it this way
}

type apiTrack struct {
	VideoID string `json:"videoId"`
	ID      string `json:"id"` // some endpoints use a plain id

	Title string `json:"title"`
	Name  string `json:"name"` // trending spells title this way

	Artists []apiArtist     `json:"artists"`
	Artist  string          `json:"artist"`
	Album   json.RawMessage `json:"album"` // {"name": ...} or a bare string

	DurationSeconds json.Number `json:"duration_seconds"`
	Duration        string      `json:"duration"` // "m:ss" on older endpoints

	Thumbnails []apiThumbnail `json:"thumbnails"`

	IsAvailable *bool `json:"isAvailable,omitempty"`
	IsPrivate   *bool `json:"isPrivate,omitempty"`

	// Popularity, under whichever name this endpoint felt like.
	Listeners        string `json:"listeners"`
	MonthlyListeners string `json:"monthlyListeners"`
	Subscribers      string `json:"subscribers"`
	Description      string `json:"description"`
}

type apiArtist struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type apiAlbum struct {
	Name string `json:"name"`
}

type apiThumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}
