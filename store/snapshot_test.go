package store

import (
	"errors"
	"os"
	"path"
	"testing"

	. "github.com/fulldump/biff"
)

func TestSnapshotRoundTrip(t *testing.T) {

	s := NewSnapshotter(path.Join(t.TempDir(), "items_backup.json"))

	items := []*Item{
		{ID: 1, Code: "MOUSE001", Unit: 5, Age: 12, Cost: 29.99},
		{ID: 2, Code: "KEYB001", Unit: 2, Age: 3, Cost: 79.99},
	}

	AssertNil(s.Write(items))

	loaded, err := s.Load()
	AssertNil(err)
	AssertEqualJson(loaded, items)
}

func TestSnapshotMissingFileIsEmpty(t *testing.T) {

	s := NewSnapshotter(path.Join(t.TempDir(), "items_backup.json"))

	loaded, err := s.Load()
	AssertNil(err)
	AssertEqual(len(loaded), 0)
}

func TestSnapshotCorruptFile(t *testing.T) {

	filename := path.Join(t.TempDir(), "items_backup.json")
	AssertNil(os.WriteFile(filename, []byte("][garbage"), 0666))

	s := NewSnapshotter(filename)

	_, err := s.Load()
	AssertTrue(errors.Is(err, ErrSnapshotCorrupt))
}

func TestSnapshotReplacesAtomically(t *testing.T) {

	filename := path.Join(t.TempDir(), "items_backup.json")
	s := NewSnapshotter(filename)

	AssertNil(s.Write([]*Item{{ID: 1, Code: "A", Cost: 1.00}}))
	AssertNil(s.Write([]*Item{{ID: 2, Code: "B", Cost: 2.00}}))

	// no temporary file survives a successful write
	_, err := os.Stat(filename + ".tmp")
	AssertTrue(os.IsNotExist(err))

	loaded, err := s.Load()
	AssertNil(err)
	AssertEqual(len(loaded), 1)
	AssertEqual(loaded[0].ID, int64(2))
}
