package api

import (
	"net/http"
	"time"
)

const dateLayout = "2006-01-02"

// handleCompatibility implements spec §6's three-state compatibility check.
// The original implementation only ever returned ok/incompatible; warn_upgrade
// is supplemented here since nothing else in the enum was left unimplemented
// for a reason.
func (s *Server) handleCompatibility(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("X-API-Version")
	if header == "" {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}

	clientVersion, err := time.Parse(dateLayout, header)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "URL_ERROR",
			"message": "X-API-Version must be formatted as YYYY-MM-DD",
		})
		return
	}

	minVersion, _ := time.Parse(dateLayout, MinAPIVersion)
	if clientVersion.Before(minVersion) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "incompatible",
			"minimum": MinAPIVersion,
		})
		return
	}

	current, _ := time.Parse(dateLayout, CurrentAPIVersion)
	if clientVersion.Before(current) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "warn_upgrade",
			"latest": CurrentAPIVersion,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
