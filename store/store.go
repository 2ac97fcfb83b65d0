package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/itemdb/itemdb/mirror"
)

const (
	StatusOpening   = "opening"
	StatusOperating = "operating"
	StatusClosing   = "closing"
)

type Config struct {
	Filename      string        // canonical snapshot file
	MirrorTimeout time.Duration // bound on every mirror call
}

// Store owns the in-memory item collection and keeps the snapshot file and
// the relational mirror synchronized with it. All mutations run under an
// exclusive lock that covers the duplicate check, the collection mutation,
// the snapshot write and the mirror call, so the canonical file always
// reflects a fully applied state and the rollback on a mirror-detected
// duplicate cannot interleave with other writers. The mirror call is bounded
// by MirrorTimeout, which bounds how long the lock can be held.
type Store struct {
	mutex sync.RWMutex

	items []*Item // insertion order, preserved for stable sorts
	byID  map[int64]*Item
	index *keyIndex // unique index over the duplicate-key tuple

	snapshotter    *Snapshotter
	lastSnapshotAt time.Time

	mirror  mirror.Mirror
	timeout time.Duration

	status string
	logger *slog.Logger
}

func NewStore(config *Config, m mirror.Mirror) *Store {
	return &Store{
		items:       []*Item{},
		byID:        map[int64]*Item{},
		index:       newKeyIndex(),
		snapshotter: NewSnapshotter(config.Filename),
		mirror:      m,
		timeout:     config.MirrorTimeout,
		status:      StatusOpening,
		logger:      slog.Default().With("component", "store"),
	}
}

func (s *Store) GetStatus() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.status
}

// Load rebuilds the in-memory collection from the canonical snapshot and
// reconciles it against the mirror. It runs once, before any request is
// served; the store stays in StatusOpening until it completes.
func (s *Store) Load() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	t0 := time.Now()

	items, err := s.snapshotter.Load()
	if errors.Is(err, ErrSnapshotCorrupt) {
		s.logger.Error("snapshot corrupt, starting with empty collection", "error", err)
		err := s.snapshotter.Quarantine()
		if err != nil {
			s.logger.Error("quarantine corrupt snapshot", "error", err)
		}
		items = nil
	} else if err != nil {
		s.status = StatusClosing
		return fmt.Errorf("load snapshot: %w", err)
	}

	for _, item := range items {
		err := s.attach(item)
		if err != nil {
			// a snapshot written by this store never contains conflicts,
			// a hand-edited file might
			s.logger.Warn("dropping conflicting snapshot row", "id", item.ID, "error", err)
		}
	}

	s.reconcile()

	s.status = StatusOperating
	s.logger.Info("store loaded", "items", len(s.items), "elapsed", time.Since(t0))

	return nil
}

// reconcile resolves divergence between the snapshot and the mirror after a
// restart. Tuples the mirror never saw (writes accepted while it was down)
// are pushed to it; rows only the mirror holds are adopted into the
// collection, since the mirror is the durable uniqueness authority and
// dropping its rows silently would lose data. Reconciliation never fails
// startup, an unreachable mirror only degrades it.
func (s *Store) reconcile() {

	rows, err := s.fetchMirror()
	if err != nil {
		s.logger.Warn("mirror unreachable, skipping reconciliation", "error", err)
		return
	}

	mirrorOnly := map[Key]mirror.Row{}
	for _, row := range rows {
		mirrorOnly[Key{Code: row.Code, Unit: row.Unit, Age: row.Age, CostCents: row.CostCents}] = row
	}

	for _, item := range s.items {
		key := item.Key()
		if _, exists := mirrorOnly[key]; exists {
			delete(mirrorOnly, key)
			continue
		}

		result, err := s.insertMirror(item)
		if err != nil {
			s.logger.Error("reconcile: mirror insert failed", "id", item.ID, "code", item.Code, "error", err)
			continue
		}
		if result.Status == mirror.DuplicateDetected {
			// another writer claimed the tuple after FetchAll, the mirror
			// already holds it
			s.logger.Warn("reconcile: tuple already in mirror", "id", item.ID, "code", item.Code, "mirror_id", result.MirrorID)
			continue
		}
		s.logger.Warn("reconcile: pushed snapshot row to mirror", "id", item.ID, "code", item.Code, "mirror_id", result.MirrorID)
	}

	dirty := false
	for _, row := range mirrorOnly {
		id := row.MirrorID
		if _, taken := s.byID[id]; taken {
			id = s.nextFreeID()
		}
		item := &Item{
			ID:   id,
			Code: row.Code,
			Unit: row.Unit,
			Age:  row.Age,
			Cost: float64(row.CostCents) / 100,
		}
		err := s.attach(item)
		if err != nil {
			s.logger.Error("reconcile: adopt mirror row", "mirror_id", row.MirrorID, "error", err)
			continue
		}
		dirty = true
		s.logger.Warn("reconcile: adopted mirror row missing from snapshot", "id", id, "code", row.Code, "mirror_id", row.MirrorID)
	}

	if dirty {
		s.writeSnapshot()
	}
}

// Add inserts the item unless its duplicate-key tuple or its id is already
// taken. The in-memory index fails fast before any durable state is touched;
// the mirror has the last word, and a duplicate it detects rolls the insert
// back from both the collection and the snapshot. The mirrored return reports
// whether the mirror took the row; false means the item lives in memory and
// snapshot only until startup reconciliation catches the mirror up.
func (s *Store) Add(item *Item) (inserted *Item, mirrored bool, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	err = s.attach(item)
	if err != nil {
		return nil, false, err
	}

	s.writeSnapshot()

	result, err := s.insertMirror(item)
	if err != nil {
		// degraded: durable to snapshot, pending to mirror; startup
		// reconciliation catches the mirror up
		s.logger.Error("mirror insert failed, item kept in memory", "id", item.ID, "code", item.Code, "at", time.Now().UTC(), "error", err)
		return item, false, nil
	}

	if result.Status == mirror.DuplicateDetected {
		s.detach(item)
		s.writeSnapshot()
		s.logger.Warn("mirror detected duplicate, rolled back", "id", item.ID, "code", item.Code, "mirror_id", result.MirrorID)
		return nil, false, &DuplicateError{ExistingID: result.MirrorID}
	}

	return item, true, nil
}

// Remove retires the item with the given id from the collection, the
// snapshot and the mirror. The in-memory view is authoritative for reads, a
// mirror failure degrades the removal instead of undoing it.
func (s *Store) Remove(id int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	item, found := s.byID[id]
	if !found {
		return ErrNotFound
	}

	s.detach(item)
	s.writeSnapshot()

	status, err := s.deleteMirror(item)
	if err != nil {
		s.logger.Error("mirror delete failed, item removed from memory", "id", id, "code", item.Code, "at", time.Now().UTC(), "error", err)
		return nil
	}
	if status == mirror.NotFound {
		s.logger.Warn("item missing from mirror", "id", id, "code", item.Code)
	}

	return nil
}

// Clear empties the collection, writes an empty snapshot and bulk-deletes
// the mirror table. It returns the number of items cleared.
func (s *Store) Clear() (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cleared := len(s.items)

	s.items = []*Item{}
	s.byID = map[int64]*Item{}
	s.index.Clear()

	s.writeSnapshot()

	ctx, cancel := s.mirrorContext()
	defer cancel()

	deleted, err := s.mirror.DeleteAll(ctx)
	if err != nil {
		s.logger.Error("mirror clear failed", "at", time.Now().UTC(), "error", err)
		return cleared, nil
	}

	s.logger.Info("collection cleared", "items", cleared, "mirror_rows", deleted)

	return cleared, nil
}

// ListSorted returns the full collection ascending by the selected field.
// The sort is stable with respect to insertion order for equal keys.
func (s *Store) ListSorted(field string) ([]*Item, error) {

	less, valid := sortFields[field]
	if !valid {
		return nil, fmt.Errorf("%w: '%s'", ErrInvalidSortField, field)
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	items := make([]*Item, len(s.items))
	copy(items, s.items)

	sort.SliceStable(items, func(i, j int) bool {
		return less(items[i], items[j])
	})

	return items, nil
}

type HealthStatus struct {
	Items           int       `json:"items"`
	MirrorReachable bool      `json:"mirror_reachable"`
	LastSnapshotAt  time.Time `json:"last_snapshot_at"`
}

// Health never fails: an unreachable mirror is reported, not raised. The
// ping runs outside the collection lock so a slow mirror cannot stall reads.
func (s *Store) Health() HealthStatus {

	ctx, cancel := s.mirrorContext()
	defer cancel()
	reachable := s.mirror.Ping(ctx) == nil

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return HealthStatus{
		Items:           len(s.items),
		MirrorReachable: reachable,
		LastSnapshotAt:  s.lastSnapshotAt,
	}
}

func (s *Store) Size() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.items)
}

// Stop writes a final snapshot and closes the mirror. Every mutation is
// already durable on return, so there is nothing else to drain.
func (s *Store) Stop() error {
	s.mutex.Lock()
	s.status = StatusClosing
	s.writeSnapshot()
	s.mutex.Unlock()

	return s.mirror.Close()
}

// attach inserts the item into the collection and the key index, checking
// the duplicate-key tuple before the id so a record that collides on both is
// reported as a duplicate. Callers must hold the exclusive lock.
func (s *Store) attach(item *Item) error {

	if existing, found := s.index.Get(item.Key()); found {
		return &DuplicateError{ExistingID: existing.ID}
	}
	if _, taken := s.byID[item.ID]; taken {
		return ErrIDConflict
	}

	err := s.index.Add(item)
	if err != nil {
		return err
	}

	s.items = append(s.items, item)
	s.byID[item.ID] = item

	return nil
}

// detach removes the item preserving insertion order of the rest. Callers
// must hold the exclusive lock.
func (s *Store) detach(item *Item) {

	s.index.Remove(item)
	delete(s.byID, item.ID)

	for i, candidate := range s.items {
		if candidate.ID == item.ID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
}

// writeSnapshot persists the current collection. A filesystem failure is
// non-fatal for the already-applied mutation but leaves durability
// compromised until the next successful write, so it is logged loudly and
// surfaces through Health as a stale LastSnapshotAt. Callers must hold the
// exclusive lock.
func (s *Store) writeSnapshot() {

	err := s.snapshotter.Write(s.items)
	if err != nil {
		s.logger.Error("SNAPSHOT WRITE FAILED, durability degraded until next successful write", "items", len(s.items), "at", time.Now().UTC(), "error", err)
		return
	}

	s.lastSnapshotAt = time.Now().UTC()
}

func (s *Store) nextFreeID() int64 {
	var max int64
	for id := range s.byID {
		if id > max {
			max = id
		}
	}
	return max + 1
}

func (s *Store) mirrorContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Store) insertMirror(item *Item) (mirror.InsertResult, error) {
	ctx, cancel := s.mirrorContext()
	defer cancel()
	return s.mirror.InsertOrDetectDuplicate(ctx, item.Code, item.Unit, item.Age, Cents(item.Cost))
}

func (s *Store) deleteMirror(item *Item) (mirror.DeleteStatus, error) {
	ctx, cancel := s.mirrorContext()
	defer cancel()
	return s.mirror.DeleteByKey(ctx, item.Code, item.Unit, item.Age, Cents(item.Cost))
}

func (s *Store) fetchMirror() ([]mirror.Row, error) {
	ctx, cancel := s.mirrorContext()
	defer cancel()
	return s.mirror.FetchAll(ctx)
}
