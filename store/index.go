package store

import (
	"github.com/google/btree"
)

type keyEntry struct {
	key  Key
	item *Item
}

// keyIndex is a unique index over the duplicate-key tuple, backed by a btree
// so entries stay ordered by key and lookups do not depend on map iteration.
type keyIndex struct {
	btree *btree.BTreeG[keyEntry]
}

func newKeyIndex() *keyIndex {
	return &keyIndex{
		btree: btree.NewG(32, func(a, b keyEntry) bool {
			return a.key.Less(b.key)
		}),
	}
}

// Add indexes the item, failing with DuplicateError if its key is taken.
func (x *keyIndex) Add(item *Item) error {
	entry := keyEntry{key: item.Key(), item: item}
	if existing, found := x.btree.Get(entry); found {
		return &DuplicateError{ExistingID: existing.item.ID}
	}
	x.btree.ReplaceOrInsert(entry)
	return nil
}

func (x *keyIndex) Get(key Key) (*Item, bool) {
	entry, found := x.btree.Get(keyEntry{key: key})
	if !found {
		return nil, false
	}
	return entry.item, true
}

func (x *keyIndex) Remove(item *Item) {
	x.btree.Delete(keyEntry{key: item.Key()})
}

func (x *keyIndex) Clear() {
	x.btree.Clear(false)
}

func (x *keyIndex) Len() int {
	return x.btree.Len()
}
