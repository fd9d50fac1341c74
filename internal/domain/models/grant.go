package models

import "time"

// Access levels carried by a grant.
const (
	AccessView   = "view"
	AccessAuthor = "author"
)

// AnonymousUserID is the grant principal meaning "everyone, including
// unauthenticated requests". Granting it view access makes a tree public.
const AnonymousUserID = "anonymous"

// Grant records that a user has view or author access to the tree under
// a root item. Grants are stored only on roots; descendants inherit.
type Grant struct {
	RootID    string    `json:"root_id" db:"root_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Access    string    `json:"access" db:"access"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ValidAccess reports whether access names a known grant level.
func ValidAccess(access string) bool {
	return access == AccessView || access == AccessAuthor
}
