package api

import (
	"github.com/itemdb/itemdb/store"
)

type SnapshotRequest struct {
	SortBy string `json:"sort_by"`
}

func getSnapshot(s *store.Store) any {
	return func(input SnapshotRequest) ([]*store.Item, error) {
		return s.ListSorted(input.SortBy)
	}
}
