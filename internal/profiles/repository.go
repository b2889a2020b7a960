package profiles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a profile lookup finds no matching record.
var ErrNotFound = errors.New("profile not found")

// ErrDuplicateUsername is returned when an insert violates the username
// uniqueness constraint. The constraint is what actually closes the
// check-then-act race on concurrent signups with the same username.
var ErrDuplicateUsername = errors.New("username already taken")

// Repository provides profile CRUD against PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new profile row. The caller supplies the ID (the provider
// account id); CreatedAt is set here.
func (r *Repository) Create(ctx context.Context, p *Profile) error {
	p.CreatedAt = time.Now().UTC()

	q := `
		INSERT INTO users (id, username, bio, avatar_url, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Exec(ctx, q, p.ID, p.Username, p.Bio, p.AvatarURL, p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// GetByID retrieves a profile by its provider account id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return r.scanOne(ctx, `SELECT id, username, bio, avatar_url, created_at FROM users WHERE id = $1`, id)
}

// GetByUsername retrieves a profile by username.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*Profile, error) {
	return r.scanOne(ctx, `SELECT id, username, bio, avatar_url, created_at FROM users WHERE username = $1`, username)
}

// UsernameExists reports whether any profile holds the given username.
func (r *Repository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return exists, nil
}

// UpdateProfile updates the bio and avatar URL for a profile and returns the
// updated row. Username and ID never change.
func (r *Repository) UpdateProfile(ctx context.Context, id uuid.UUID, bio, avatarURL string) (*Profile, error) {
	return r.scanOne(ctx, `
		UPDATE users SET bio = $2, avatar_url = $3
		WHERE id = $1
		RETURNING id, username, bio, avatar_url, created_at`,
		id, bio, avatarURL,
	)
}

// SearchByUsername returns profiles whose username contains q, shortest
// match first.
func (r *Repository) SearchByUsername(ctx context.Context, q string, limit int) ([]Profile, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, username, bio, avatar_url, created_at
		FROM users
		WHERE username ILIKE '%' || $1 || '%'
		ORDER BY length(username), username
		LIMIT $2`, q, limit)
	if err != nil {
		return nil, fmt.Errorf("search profiles: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.Username, &p.Bio, &p.AvatarURL, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// scanOne executes a single-row query and scans the result into a Profile.
func (r *Repository) scanOne(ctx context.Context, q string, args ...any) (*Profile, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	var p Profile
	if err := rows.Scan(&p.ID, &p.Username, &p.Bio, &p.AvatarURL, &p.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	return &p, rows.Err()
}
