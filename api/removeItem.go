package api

import (
	"fmt"

	"github.com/itemdb/itemdb/store"
)

type RemoveItemRequest struct {
	Id int64 `json:"id"`
}

func removeItem(s *store.Store) any {
	return func(input RemoveItemRequest) (*ApiResponse, error) {

		err := s.Remove(input.Id)
		if err != nil {
			return nil, err
		}

		return &ApiResponse{
			Status:  "success",
			Message: fmt.Sprintf("item %d removed", input.Id),
			Data: JSON{
				"remaining_items": s.Size(),
			},
		}, nil
	}
}
