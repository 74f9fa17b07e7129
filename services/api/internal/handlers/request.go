package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/example/comms-ninja/internal/platform/api"
	"github.com/example/comms-ninja/internal/platform/auth"
	"github.com/example/comms-ninja/internal/platform/httpserver"
)

const maxRequestBodyBytes = 1 << 20 // 1 MiB

// decodeJSON reads up to maxRequestBodyBytes from r.Body and decodes JSON into dst.
// On failure it writes a 400 response and returns false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, rid string, dst *T) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(dst); err != nil {
		api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
		return false
	}
	return true
}

// requireUser returns the authenticated user id and the request id, or
// writes 401 and returns ok=false.
func requireUser(w http.ResponseWriter, r *http.Request) (uid, rid string, ok bool) {
	rid = httpserver.RequestIDFromContext(r.Context())
	uid, ok = auth.UserIDFromContext(r.Context())
	if !ok || strings.TrimSpace(uid) == "" {
		api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
		return "", rid, false
	}
	return uid, rid, true
}
