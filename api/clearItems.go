package api

import (
	"fmt"

	"github.com/itemdb/itemdb/store"
)

func clearItems(s *store.Store) any {
	return func() (*ApiResponse, error) {

		cleared, err := s.Clear()
		if err != nil {
			return nil, err
		}

		return &ApiResponse{
			Status:  "success",
			Message: fmt.Sprintf("all items cleared (%d items removed)", cleared),
			Data: JSON{
				"items_cleared": cleared,
			},
		}, nil
	}
}
