package models

import (
	"strings"
	"time"
)

// Item kinds. Folders contain other items; files, images, and media wrap
// a stored file whose lifetime is tied to the wrapper.
const (
	KindFolder = "folder"
	KindFile   = "file"
	KindImage  = "image"
	KindMedia  = "media"
)

// Item is a node in the virtual folder tree.
//
// ParentID is nil for root items. RootID always points at the top
// ancestor and equals ID for roots; share grants are stored only against
// roots and apply to every descendant.
//
// Size is the byte size of the stored file for file-like kinds. For
// folders it is the sum of the sizes of the immediate children,
// maintained transactionally on every create, delete, move, and copy.
type Item struct {
	ID          string    `json:"id" db:"id"`
	OwnerID     string    `json:"owner_id" db:"owner_id"`
	ParentID    *string   `json:"parent_id" db:"parent_id"`
	RootID      string    `json:"root_id" db:"root_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	Kind        string    `json:"kind" db:"kind"`
	MimeType    string    `json:"mime_type,omitempty" db:"mime_type"`
	Size        int64     `json:"size" db:"size"`
	FileID      *string   `json:"file_id,omitempty" db:"file_id"`
	Hidden      bool      `json:"-" db:"hidden"`
	Disabled    bool      `json:"disabled,omitempty" db:"disabled"`
	Path        string    `json:"path,omitempty"` // Computed display path, not stored
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// IsFolder reports whether the item can contain children.
func (i *Item) IsFolder() bool {
	return i.Kind == KindFolder
}

// IsRoot reports whether the item is the top of its tree.
func (i *Item) IsRoot() bool {
	return i.ParentID == nil
}

// HasStoredFile reports whether the item wraps stored file content.
func (i *Item) HasStoredFile() bool {
	return i.FileID != nil && *i.FileID != ""
}

// KindFromMime maps a MIME type onto an item kind.
func KindFromMime(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case strings.HasPrefix(mime, "audio/"), strings.HasPrefix(mime, "video/"):
		return KindMedia
	default:
		return KindFile
	}
}

// ValidKind reports whether kind names a known item kind.
func ValidKind(kind string) bool {
	switch kind {
	case KindFolder, KindFile, KindImage, KindMedia:
		return true
	}
	return false
}
