package handlers

import (
	"net/http"

	"callinsight-backend/internal/middleware"
)

// Session handles GET /auth/session. The auth middleware has already resolved
// the caller, so this only echoes it back.
func Session(w http.ResponseWriter, r *http.Request) {
	caller := middleware.CallerFrom(r.Context())
	if caller == nil {
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "Authentication required", r))
		return
	}
	writeJSON(w, http.StatusOK, okResp(caller))
}
