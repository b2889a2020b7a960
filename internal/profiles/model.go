// Package profiles is the local profile store: one row per linked account,
// keyed by the identity provider's account id.
package profiles

import (
	"time"

	"github.com/google/uuid"
)

// Profile is a SoundPuff user profile. ID equals the identity provider's
// subject id for the linked account and never changes after creation.
type Profile struct {
	ID        uuid.UUID `json:"id"         db:"id"`
	Username  string    `json:"username"   db:"username"`
	Bio       string    `json:"bio"        db:"bio"`
	AvatarURL string    `json:"avatar_url" db:"avatar_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
