package util

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// DecodeJSONBody reads a single JSON document from the request body.
func DecodeJSONBody[T any](r *http.Request) (T, error) {
	defer r.Body.Close()

	var data T
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		var zero T
		return zero, fmt.Errorf("json decode error: %w", err)
	}
	return data, nil
}

func WriteJSONResponse[T any](w http.ResponseWriter, status int, data T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
