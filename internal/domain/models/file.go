package models

import "time"

// Storage schemes for stored file content.
const (
	SchemeFilesystem = "filesystem"
	SchemeS3         = "s3"
)

// StoredFile records the bytes behind a file-like item. The wrapper item
// owns the stored file exclusively: deleting the item force-deletes this
// record and the content blob behind Key.
type StoredFile struct {
	ID        string    `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Key       string    `json:"-" db:"storage_key"`
	Filename  string    `json:"filename" db:"filename"`
	MimeType  string    `json:"mime_type" db:"mime_type"`
	Size      int64     `json:"size" db:"size"`
	Scheme    string    `json:"scheme" db:"scheme"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
