package models

import "strings"

// Track is the canonical record a catalog or library lookup resolves to.
// Once resolved it is treated as immutable; a stale cache entry is replaced
// by re-fetching, never mutated in place.
type Track struct {
	ID           string `json:"id"` // catalog-assigned, or "local-<n>" for library files
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	Album        string `json:"album"`
	Duration     int64  `json:"duration"` // seconds
	ThumbnailURL string `json:"thumbnail"`

	// Listeners is the catalog's popularity figure, kept as the loosely
	// formatted string the catalog reports ("120400", "2.4M"). Empty for
	// local library tracks.
	Listeners string `json:"listeners,omitempty"`
}

// IsLocal reports whether the track came from the local library rather than
// the remote catalog.
func (t *Track) IsLocal() bool {
	return strings.HasPrefix(t.ID, "local-")
}

// Candidate wraps a Track with the availability flags the catalog exposes.
// Candidates are transient: they exist only while recommendations are being
// assembled and are never persisted.
type Candidate struct {
	Track
	Unavailable bool `json:"-"`
	Private     bool `json:"-"`
}
