package api

import (
	"net/http"

	"github.com/pandeptwidyaop/multisite/internal/version"
)

// getVersion returns the build information of the running server.
func (h *Handler) getVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, version.GetVersion())
}
