package api

import (
	"time"

	"github.com/itemdb/itemdb/store"
)

func health(s *store.Store) any {
	return func() JSON {

		h := s.Health()

		mirror := "connected"
		if !h.MirrorReachable {
			mirror = "disconnected"
		}

		return JSON{
			"status":           "healthy",
			"mirror":           mirror,
			"items_in_memory":  h.Items,
			"last_snapshot_at": h.LastSnapshotAt,
			"timestamp":        time.Now().UTC(),
		}
	}
}
