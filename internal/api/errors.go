package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"ppexec/internal/domain"
)

// Error is the body of every non-2xx response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// httpStatusFromError maps journal and request errors to status codes.
// Pipeline failures are reported separately as 422 with the run attached.
func httpStatusFromError(err error) int {
	var notFound *domain.NotFoundError
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.Is(err, errJournalDisabled):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

var errJournalDisabled = errors.New("run journal is disabled")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Error{Code: status, Message: msg})
}
