package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"
)

// snapshotDocument is the on-disk layout of the canonical snapshot file: the
// full item collection at a point in time, plus an identity header.
type snapshotDocument struct {
	Uuid      string    `json:"uuid"`
	Timestamp time.Time `json:"timestamp"`
	Items     []*Item   `json:"items"`
}

// Snapshotter serializes the full collection to a canonical file. Every write
// goes to a temporary file first and replaces the canonical one with a
// rename, so a crash mid-write never leaves a truncated file behind.
type Snapshotter struct {
	filename string
}

func NewSnapshotter(filename string) *Snapshotter {
	return &Snapshotter{
		filename: filename,
	}
}

func (s *Snapshotter) Write(items []*Item) error {

	doc := &snapshotDocument{
		Uuid:      uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Items:     items,
	}

	tmp := s.filename + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("snapshot create: %w", err)
	}

	err = json.NewEncoder(f).Encode(doc)
	if err != nil {
		f.Close()
		return fmt.Errorf("snapshot encode: %w", err)
	}

	err = f.Sync()
	if err != nil {
		f.Close()
		return fmt.Errorf("snapshot sync: %w", err)
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("snapshot close: %w", err)
	}

	err = os.Rename(tmp, s.filename)
	if err != nil {
		return fmt.Errorf("snapshot rename: %w", err)
	}

	return nil
}

// Load reads and deserializes the canonical file. A missing file is not an
// error, it signals an empty initial collection. Malformed content fails
// with ErrSnapshotCorrupt.
func (s *Snapshotter) Load() ([]*Item, error) {

	data, err := os.ReadFile(s.filename)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot read: %w", err)
	}

	doc := &snapshotDocument{}
	err = json.Unmarshal(data, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotCorrupt, err.Error())
	}

	return doc.Items, nil
}

// Quarantine renames a corrupt canonical file aside so the next write starts
// from a clean slate while keeping the bytes around for inspection.
func (s *Snapshotter) Quarantine() error {
	return os.Rename(s.filename, s.filename+".corrupt")
}
