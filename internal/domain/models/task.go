package models

import "time"

// Task operations understood by the queue worker.
const (
	TaskOpDelete = "delete"
)

// Task is one unit of deferred work. Delete tasks are enqueued
// redundantly before a synchronous recursive delete begins so that an
// interrupted delete is finished on a later worker pass; the payload is
// the list of item IDs still to delete.
type Task struct {
	ID        string    `json:"id" db:"id"`
	Operation string    `json:"operation" db:"operation"`
	ItemIDs   []string  `json:"ids" db:"item_ids"`
	Attempts  int       `json:"attempts" db:"attempts"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
