package store

import (
	"errors"
	"fmt"
)

var (
	ErrIDConflict       = errors.New("item id already exists")
	ErrNotFound         = errors.New("item not found")
	ErrInvalidSortField = errors.New("invalid sort field")
	ErrSnapshotCorrupt  = errors.New("snapshot corrupt")
)

// DuplicateError reports that the duplicate-key tuple is already live, either
// in the in-memory collection or in the mirror. ExistingID identifies the
// surviving record: the in-memory id when the local index caught it, the
// mirror row id when the mirror did.
type DuplicateError struct {
	ExistingID int64
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate item, already exists with id %d", e.ExistingID)
}
