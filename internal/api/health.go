package api

import "net/http"

// GetHealthStatus returns OK if the service is healthy.
func (h *handler) GetHealthStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, []byte(`{"status":"ok"}`))
}
