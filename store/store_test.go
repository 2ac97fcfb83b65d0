package store

import (
	"context"
	"errors"
	"os"
	"path"
	"sync"
	"testing"
	"time"

	. "github.com/fulldump/biff"

	"github.com/itemdb/itemdb/mirror"
)

// memMirror implements mirror.Mirror in memory so store behavior can be
// exercised without a database. Flip failing to simulate an outage.
type memMirror struct {
	mu      sync.Mutex
	rows    map[memKey]mirror.Row
	nextID  int64
	failing bool
}

type memKey struct {
	code      string
	unit      int
	age       int
	costCents int64
}

var errMirrorDown = errors.New("mirror down")

func newMemMirror() *memMirror {
	return &memMirror{
		rows: map[memKey]mirror.Row{},
	}
}

func (m *memMirror) InsertOrDetectDuplicate(ctx context.Context, code string, unit, age int, costCents int64) (mirror.InsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing {
		return mirror.InsertResult{}, errMirrorDown
	}

	key := memKey{code, unit, age, costCents}
	if existing, found := m.rows[key]; found {
		return mirror.InsertResult{Status: mirror.DuplicateDetected, MirrorID: existing.MirrorID}, nil
	}

	m.nextID++
	m.rows[key] = mirror.Row{
		MirrorID:  m.nextID,
		Code:      code,
		Unit:      unit,
		Age:       age,
		CostCents: costCents,
		CreatedAt: time.Now().UTC(),
	}

	return mirror.InsertResult{Status: mirror.Inserted, MirrorID: m.nextID}, nil
}

func (m *memMirror) DeleteByKey(ctx context.Context, code string, unit, age int, costCents int64) (mirror.DeleteStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing {
		return mirror.NotFound, errMirrorDown
	}

	key := memKey{code, unit, age, costCents}
	if _, found := m.rows[key]; !found {
		return mirror.NotFound, nil
	}
	delete(m.rows, key)

	return mirror.Deleted, nil
}

func (m *memMirror) DeleteAll(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing {
		return 0, errMirrorDown
	}

	deleted := int64(len(m.rows))
	m.rows = map[memKey]mirror.Row{}
	m.nextID = 0

	return deleted, nil
}

func (m *memMirror) FetchAll(ctx context.Context) ([]mirror.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing {
		return nil, errMirrorDown
	}

	rows := []mirror.Row{}
	for _, row := range m.rows {
		rows = append(rows, row)
	}

	return rows, nil
}

func (m *memMirror) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing {
		return errMirrorDown
	}
	return nil
}

func (m *memMirror) Close() error {
	return nil
}

func (m *memMirror) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memMirror) setFailing(failing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = failing
}

func testConfig(t *testing.T) *Config {
	return &Config{
		Filename:      path.Join(t.TempDir(), "items_backup.json"),
		MirrorTimeout: time.Second,
	}
}

func testStore(t *testing.T, m mirror.Mirror) *Store {
	s := NewStore(testConfig(t), m)
	AssertNil(s.Load())
	AssertEqual(s.GetStatus(), StatusOperating)
	return s
}

func anItem(id int64, code string, unit, age int, cost float64) *Item {
	return &Item{ID: id, Code: code, Unit: unit, Age: age, Cost: cost}
}

func TestAddAndListSortedByCost(t *testing.T) {

	s := testStore(t, newMemMirror())

	costs := []float64{999.99, 29.99, 79.99, 299.99, 149.99}
	for i, cost := range costs {
		_, _, err := s.Add(anItem(int64(i+1), "SKU"+string(rune('A'+i)), i, i, cost))
		AssertNil(err)
	}

	items, err := s.ListSorted("cost")
	AssertNil(err)

	obtained := []float64{}
	for _, item := range items {
		obtained = append(obtained, item.Cost)
	}
	AssertEqual(obtained, []float64{29.99, 79.99, 149.99, 299.99, 999.99})

	// ids travel with their records
	AssertEqual(items[0].ID, int64(2))
	AssertEqual(items[4].ID, int64(1))
}

func TestDuplicateRejectedIdempotently(t *testing.T) {

	s := testStore(t, newMemMirror())

	_, _, err := s.Add(anItem(1, "MOUSE001", 5, 12, 29.99))
	AssertNil(err)

	for i := 0; i < 3; i++ {
		_, _, err = s.Add(anItem(int64(10+i), "MOUSE001", 5, 12, 29.99))
		var duplicate *DuplicateError
		AssertTrue(errors.As(err, &duplicate))
		AssertEqual(duplicate.ExistingID, int64(1))
	}

	AssertEqual(s.Size(), 1)
}

func TestDuplicateCostMatchesWithinACent(t *testing.T) {

	s := testStore(t, newMemMirror())

	_, _, err := s.Add(anItem(1, "MOUSE001", 5, 12, 29.99))
	AssertNil(err)

	// same tuple, float noise in the cost
	_, _, err = s.Add(anItem(2, "MOUSE001", 5, 12, 29.990000001))
	var duplicate *DuplicateError
	AssertTrue(errors.As(err, &duplicate))
}

func TestIDConflict(t *testing.T) {

	s := testStore(t, newMemMirror())

	_, _, err := s.Add(anItem(1, "MOUSE001", 5, 12, 29.99))
	AssertNil(err)

	_, _, err = s.Add(anItem(1, "KEYB001", 2, 3, 79.99))
	AssertTrue(errors.Is(err, ErrIDConflict))

	AssertEqual(s.Size(), 1)
}

func TestRemove(t *testing.T) {

	m := newMemMirror()
	s := testStore(t, m)

	_, _, err := s.Add(anItem(2, "MOUSE001", 5, 12, 29.99))
	AssertNil(err)

	AssertTrue(errors.Is(s.Remove(99), ErrNotFound))

	AssertNil(s.Remove(2))
	AssertEqual(s.Size(), 0)
	AssertEqual(m.size(), 0)

	// removal fully retires the tuple, re-adding it is not a stale duplicate
	_, _, err = s.Add(anItem(2, "MOUSE001", 5, 12, 29.99))
	AssertNil(err)
	AssertEqual(s.Size(), 1)
	AssertEqual(m.size(), 1)
}

func TestClearEmptiesBothStores(t *testing.T) {

	m := newMemMirror()
	s := testStore(t, m)

	for i := int64(1); i <= 3; i++ {
		_, _, err := s.Add(anItem(i, "SKU", int(i), 0, float64(i)))
		AssertNil(err)
	}

	cleared, err := s.Clear()
	AssertNil(err)
	AssertEqual(cleared, 3)
	AssertEqual(s.Size(), 0)
	AssertEqual(m.size(), 0)

	items, err := s.ListSorted("id")
	AssertNil(err)
	AssertEqual(len(items), 0)
}

func TestInvalidSortField(t *testing.T) {

	s := testStore(t, newMemMirror())

	_, _, err := s.Add(anItem(1, "MOUSE001", 5, 12, 29.99))
	AssertNil(err)

	_, err = s.ListSorted("nonexistent")
	AssertTrue(errors.Is(err, ErrInvalidSortField))

	// the collection is untouched
	AssertEqual(s.Size(), 1)
}

func TestStableSortOnEqualKeys(t *testing.T) {

	s := testStore(t, newMemMirror())

	// all three share unit=5, insertion order must survive the sort
	_, _, err := s.Add(anItem(3, "C", 5, 1, 1.00))
	AssertNil(err)
	_, _, err = s.Add(anItem(1, "A", 5, 2, 2.00))
	AssertNil(err)
	_, _, err = s.Add(anItem(2, "B", 5, 3, 3.00))
	AssertNil(err)

	items, err := s.ListSorted("unit")
	AssertNil(err)

	ids := []int64{items[0].ID, items[1].ID, items[2].ID}
	AssertEqual(ids, []int64{3, 1, 2})
}

func TestCrashRecoveryRoundTrip(t *testing.T) {

	config := testConfig(t)
	m := newMemMirror()

	s := NewStore(config, m)
	AssertNil(s.Load())

	_, _, err := s.Add(anItem(1, "MOUSE001", 5, 12, 29.99))
	AssertNil(err)
	_, _, err = s.Add(anItem(2, "KEYB001", 2, 3, 79.99))
	AssertNil(err)
	AssertNil(s.Remove(1))

	// no Stop: simulate a crash and recover from the snapshot alone
	recovered := NewStore(config, m)
	AssertNil(recovered.Load())

	items, err := recovered.ListSorted("id")
	AssertNil(err)
	AssertEqual(len(items), 1)
	AssertEqual(items[0].ID, int64(2))
	AssertEqual(items[0].Code, "KEYB001")
}

func TestCorruptSnapshotFallsBackToEmpty(t *testing.T) {

	config := testConfig(t)
	AssertNil(os.WriteFile(config.Filename, []byte("{not json"), 0666))

	s := NewStore(config, newMemMirror())
	AssertNil(s.Load())
	AssertEqual(s.Size(), 0)

	// the corrupt bytes are kept aside for inspection
	_, err := os.Stat(config.Filename + ".corrupt")
	AssertNil(err)
}

func TestMirrorDuplicateRollsBack(t *testing.T) {

	config := testConfig(t)
	m := newMemMirror()

	s := NewStore(config, m)
	AssertNil(s.Load())

	// another process slips the tuple into the mirror behind the store's back
	result, err := m.InsertOrDetectDuplicate(context.Background(), "MOUSE001", 5, 12, 2999)
	AssertNil(err)
	AssertEqual(result.Status, mirror.Inserted)

	_, _, err = s.Add(anItem(7, "MOUSE001", 5, 12, 29.99))
	var duplicate *DuplicateError
	AssertTrue(errors.As(err, &duplicate))
	AssertEqual(duplicate.ExistingID, result.MirrorID)

	// rolled back from memory and from the snapshot
	AssertEqual(s.Size(), 0)
	reloaded := NewStore(config, newMemMirror())
	AssertNil(reloaded.Load())
	AssertEqual(reloaded.Size(), 0)
}

func TestDegradedAddWhenMirrorDown(t *testing.T) {

	config := testConfig(t)
	m := newMemMirror()

	s := NewStore(config, m)
	AssertNil(s.Load())

	m.setFailing(true)

	_, mirrored, err := s.Add(anItem(1, "MOUSE001", 5, 12, 29.99))
	AssertNil(err)
	AssertFalse(mirrored)
	AssertEqual(s.Size(), 1)
	AssertEqual(m.size(), 0)

	h := s.Health()
	AssertEqual(h.Items, 1)
	AssertEqual(h.MirrorReachable, false)

	// mirror heals, restart reconciliation pushes the pending row
	m.setFailing(false)
	recovered := NewStore(config, m)
	AssertNil(recovered.Load())
	AssertEqual(m.size(), 1)
	AssertEqual(recovered.Size(), 1)
}

func TestSnapshotWriteFailureKeepsItemInMemory(t *testing.T) {

	config := testConfig(t)
	m := newMemMirror()

	s := NewStore(config, m)
	AssertNil(s.Load())

	_, mirrored, err := s.Add(anItem(1, "MOUSE001", 5, 12, 29.99))
	AssertNil(err)
	AssertTrue(mirrored)

	before := s.Health().LastSnapshotAt
	AssertTrue(!before.IsZero())

	// a directory squatting on the temp path makes every write fail
	AssertNil(os.MkdirAll(config.Filename+".tmp", 0755))

	_, mirrored, err = s.Add(anItem(2, "KEYB001", 2, 3, 79.99))
	AssertNil(err)
	AssertTrue(mirrored)
	AssertEqual(s.Size(), 2)

	// durability is degraded, the last good snapshot timestamp stands
	AssertEqual(s.Health().LastSnapshotAt, before)

	// the snapshot on disk still holds only the first item
	reloaded := NewStore(config, newMemMirror())
	AssertNil(reloaded.Load())
	AssertEqual(reloaded.Size(), 1)
}

// raceMirror hides its rows from FetchAll, so the reconciliation push runs
// into tuples the mirror already holds.
type raceMirror struct {
	*memMirror
}

func (m *raceMirror) FetchAll(ctx context.Context) ([]mirror.Row, error) {
	return []mirror.Row{}, nil
}

func TestReconcilePushToleratesMirrorDuplicates(t *testing.T) {

	config := testConfig(t)
	m := newMemMirror()

	s := NewStore(config, m)
	AssertNil(s.Load())

	_, _, err := s.Add(anItem(1, "MOUSE001", 5, 12, 29.99))
	AssertNil(err)

	// restart against a mirror that reports nothing to adopt, the push
	// then collides with the row inserted before the restart
	recovered := NewStore(config, &raceMirror{m})
	AssertNil(recovered.Load())
	AssertEqual(recovered.GetStatus(), StatusOperating)
	AssertEqual(recovered.Size(), 1)
	AssertEqual(m.size(), 1)
}

func TestReconcileAdoptsMirrorRows(t *testing.T) {

	m := newMemMirror()
	_, err := m.InsertOrDetectDuplicate(context.Background(), "GHOST001", 1, 2, 999)
	AssertNil(err)

	s := testStore(t, m)

	items, err := s.ListSorted("id")
	AssertNil(err)
	AssertEqual(len(items), 1)
	AssertEqual(items[0].Code, "GHOST001")
	AssertEqual(items[0].Cost, 9.99)
}

func TestConcurrentAddsOfSameTuple(t *testing.T) {

	s := testStore(t, newMemMirror())

	n := 50
	accepted := make(chan int64, n)

	wg := &sync.WaitGroup{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			item, _, err := s.Add(anItem(id, "MOUSE001", 5, 12, 29.99))
			if err == nil {
				accepted <- item.ID
			}
		}(int64(i + 1))
	}
	wg.Wait()
	close(accepted)

	winners := []int64{}
	for id := range accepted {
		winners = append(winners, id)
	}
	AssertEqual(len(winners), 1)
	AssertEqual(s.Size(), 1)
}

func TestHealth(t *testing.T) {

	s := testStore(t, newMemMirror())

	_, _, err := s.Add(anItem(1, "MOUSE001", 5, 12, 29.99))
	AssertNil(err)

	h := s.Health()
	AssertEqual(h.Items, 1)
	AssertEqual(h.MirrorReachable, true)
	AssertTrue(!h.LastSnapshotAt.IsZero())
}
