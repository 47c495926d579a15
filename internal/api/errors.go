package api

import (
	"encoding/json"
	"net/http"

	"github.com/packhost/repod/internal/apierr"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders err as the {error, message} envelope spec §7 requires;
// status is never serialized, only used to set the HTTP status line.
func writeError(w http.ResponseWriter, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		apiErr = apierr.Wrap(apierr.DatabaseError, "unexpected failure", err).WithStatus(http.StatusInternalServerError)
	}
	writeJSON(w, apiErr.Status, map[string]string{
		"error":   string(apiErr.Code),
		"message": apiErr.Message,
	})
}
