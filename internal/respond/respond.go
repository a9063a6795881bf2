// Package respond writes JSON responses in the shape every client of the
// host relies on.  Error bodies are always `{"error":"<status text>"}`, so a
// 401 is `{"error":"Unauthorized"}` and a 403 is `{"error":"Forbidden"}`.
package respond

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the wire shape of every host-generated error.
type ErrorBody struct {
	Error string `json:"error"`
}

// JSON encodes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes the canonical error body for status.  Details stay in the
// log; the caller only ever sees the status text.
func Error(w http.ResponseWriter, status int) {
	JSON(w, status, ErrorBody{Error: http.StatusText(status)})
}
