package api

import (
	"net/http"

	"github.com/itemdb/itemdb/store"
)

type AddItemRequest struct {
	Id   int64   `json:"id"`
	Code string  `json:"code"`
	Unit int     `json:"unit"`
	Age  int     `json:"age"`
	Cost float64 `json:"cost"`
}

func addItem(s *store.Store) any {
	return func(w http.ResponseWriter, input AddItemRequest) (*ApiResponse, error) {

		if input.Code == "" {
			return nil, &RequestError{Message: "code is mandatory"}
		}
		if input.Unit < 0 {
			return nil, &RequestError{Message: "unit must be >= 0"}
		}
		if input.Age < 0 {
			return nil, &RequestError{Message: "age must be >= 0"}
		}
		if input.Cost < 0 {
			return nil, &RequestError{Message: "cost must be >= 0"}
		}

		item, mirrored, err := s.Add(&store.Item{
			ID:   input.Id,
			Code: input.Code,
			Unit: input.Unit,
			Age:  input.Age,
			Cost: input.Cost,
		})
		if err != nil {
			return nil, err
		}

		message := "item added"
		if !mirrored {
			message = "item added to memory only (database unavailable)"
		}

		w.WriteHeader(http.StatusCreated)

		return &ApiResponse{
			Status:  "success",
			Message: message,
			Data: JSON{
				"id":          item.ID,
				"total_items": s.Size(),
			},
		}, nil
	}
}
