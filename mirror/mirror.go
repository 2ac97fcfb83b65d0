package mirror

import (
	"context"
	"time"
)

type InsertStatus int

const (
	Inserted InsertStatus = iota
	DuplicateDetected
)

// InsertResult is the outcome of an insert-or-detect-duplicate call.
// MirrorID is the new row id on Inserted, the surviving row id on
// DuplicateDetected.
type InsertResult struct {
	Status   InsertStatus
	MirrorID int64
}

type DeleteStatus int

const (
	Deleted DeleteStatus = iota
	NotFound
)

// Row is one mirrored item as the mirror stores it. MirrorID is the mirror's
// own identity column and is independent of the in-memory item id.
type Row struct {
	MirrorID  int64
	Code      string
	Unit      int
	Age       int
	CostCents int64
	CreatedAt time.Time
}

// Mirror is the secondary durable store. It enforces duplicate-key
// uniqueness with a constraint of its own, which makes it authoritative over
// the in-memory pre-check when concurrent writers race. Business outcomes
// come back as statuses; a non-nil error means connectivity or engine
// failure. Every call honors the deadline of its context.
type Mirror interface {
	InsertOrDetectDuplicate(ctx context.Context, code string, unit, age int, costCents int64) (InsertResult, error)
	DeleteByKey(ctx context.Context, code string, unit, age int, costCents int64) (DeleteStatus, error)
	DeleteAll(ctx context.Context) (int64, error)
	FetchAll(ctx context.Context) ([]Row, error)
	Ping(ctx context.Context) error
	Close() error
}
