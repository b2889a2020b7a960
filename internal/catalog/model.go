// Package catalog stores and searches the song library.
package catalog

import "time"

// Song is one track in the catalog. Rows are append-only; the importer
// skips duplicates on (title, artist).
type Song struct {
	ID          int64     `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Artist      string    `json:"artist" db:"artist"`
	AlbumArtURL string    `json:"album_art_url" db:"album_art_url"`
	SongURL     string    `json:"song_url" db:"song_url"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
