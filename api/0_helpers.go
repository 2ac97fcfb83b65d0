package api

type JSON = map[string]any

// ApiResponse is the envelope of every mutating endpoint.
type ApiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    JSON   `json:"data,omitempty"`
}

// RequestError rejects malformed input with a 400 before it reaches the
// store.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}
