package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides access to the songs table.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a catalog repository backed by the given pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Search returns songs whose title or artist contains the query,
// case-insensitively, shortest titles first. A limit <= 0 defaults to 20.
func (r *Repository) Search(ctx context.Context, query string, limit int) ([]*Song, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, title, artist, album_art_url, song_url, created_at
		FROM songs
		WHERE title ILIKE '%' || $1 || '%' OR artist ILIKE '%' || $1 || '%'
		ORDER BY length(title), title
		LIMIT $2`,
		query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search songs: %w", err)
	}
	defer rows.Close()

	var songs []*Song
	for rows.Next() {
		s := &Song{}
		if err := rows.Scan(&s.ID, &s.Title, &s.Artist, &s.AlbumArtURL, &s.SongURL, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan song: %w", err)
		}
		songs = append(songs, s)
	}
	return songs, rows.Err()
}

// Upsert inserts a song, silently skipping rows that already exist with the
// same title and artist. Returns true when a row was inserted.
func (r *Repository) Upsert(ctx context.Context, s *Song) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO songs (title, artist, album_art_url, song_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (title, artist) DO NOTHING`,
		s.Title, s.Artist, s.AlbumArtURL, s.SongURL,
	)
	if err != nil {
		return false, fmt.Errorf("insert song: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
