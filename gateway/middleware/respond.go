package middleware

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON error envelope returned by the gateway.
type ErrorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{
		Error:     message,
		Code:      code,
		RequestID: w.Header().Get(HeaderRequestID),
	})
}
