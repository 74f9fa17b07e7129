package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/comms-ninja/internal/platform/analytics"
	"github.com/example/comms-ninja/internal/platform/api"
	"github.com/example/comms-ninja/internal/platform/metrics"
	"github.com/example/comms-ninja/internal/platform/signing"
	"github.com/example/comms-ninja/internal/watchgate"
	"github.com/example/comms-ninja/services/api/internal/sessions"
	"github.com/example/comms-ninja/services/api/internal/youtube"
)

type createSessionRequest struct {
	YouTubeURL string `json:"youtube_url"`
}

type readyRequest struct {
	DurationSeconds float64 `json:"duration_seconds"`
}

type heartbeatRequest struct {
	State           string  `json:"state"`
	PositionSeconds float64 `json:"position_seconds"`
}

type sessionResponse struct {
	SessionID string                  `json:"session_id"`
	VideoID   string                  `json:"video_id"`
	State     watchgate.PlaybackState `json:"state"`
	Status    watchgate.Status        `json:"status"`
}

type unlockResponse struct {
	SessionID    string           `json:"session_id"`
	Status       watchgate.Status `json:"status"`
	WatchReceipt string           `json:"watch_receipt"`
	ExpiresAt    time.Time        `json:"expires_at"`
}

func toSessionResponse(s *sessions.Session, st watchgate.Status) sessionResponse {
	return sessionResponse{SessionID: s.ID, VideoID: s.VideoID, State: s.State(), Status: st}
}

// writeSessionError maps registry errors; it returns false when err is nil.
func writeSessionError(w http.ResponseWriter, rid string, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, sessions.ErrNotFound):
		api.NotFound(w, "SESSION_NOT_FOUND", "Watch session not found", rid)
	default:
		api.Internal(w, rid)
	}
	return true
}

// CreateWatchSession handles POST /v1/watch/sessions
func CreateWatchSession(reg *sessions.Registry, ap *analytics.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, rid, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req createSessionRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		videoID, err := youtube.VideoID(req.YouTubeURL)
		if err != nil {
			api.BadRequest(w, "INVALID_URL", "A valid YouTube URL is required", rid, nil)
			return
		}

		s := reg.Create(uid, videoID)
		ap.Publish(analytics.SubjectWatchStarted, uid, map[string]any{
			"session_id": s.ID,
			"video_id":   videoID,
		})
		api.WriteJSON(w, http.StatusCreated, toSessionResponse(s, s.Status()))
	}
}

// WatchReady handles POST /v1/watch/sessions/{session_id}/ready
// An unusable duration is not an error: the gate stays in the loading phase.
func WatchReady(reg *sessions.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, rid, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req readyRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		id := chi.URLParam(r, "session_id")
		st, err := reg.Ready(uid, id, req.DurationSeconds)
		if errors.Is(err, watchgate.ErrDurationUnavailable) {
			err = nil
		}
		if writeSessionError(w, rid, err) {
			return
		}
		s, err := reg.Get(uid, id)
		if writeSessionError(w, rid, err) {
			return
		}
		api.WriteJSON(w, http.StatusOK, toSessionResponse(s, st))
	}
}

// WatchHeartbeat handles POST /v1/watch/sessions/{session_id}/heartbeat
func WatchHeartbeat(reg *sessions.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, rid, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req heartbeatRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		state, ok := watchgate.ParseState(req.State)
		if !ok {
			api.BadRequest(w, "INVALID_STATE", "Unknown playback state", rid, map[string]any{"state": req.State})
			return
		}
		id := chi.URLParam(r, "session_id")
		st, err := reg.Heartbeat(uid, id, state, req.PositionSeconds)
		if writeSessionError(w, rid, err) {
			return
		}
		s, err := reg.Get(uid, id)
		if writeSessionError(w, rid, err) {
			return
		}
		api.WriteJSON(w, http.StatusOK, toSessionResponse(s, st))
	}
}

// GetWatchSession handles GET /v1/watch/sessions/{session_id}
func GetWatchSession(reg *sessions.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, rid, ok := requireUser(w, r)
		if !ok {
			return
		}
		s, err := reg.Get(uid, chi.URLParam(r, "session_id"))
		if writeSessionError(w, rid, err) {
			return
		}
		api.WriteJSON(w, http.StatusOK, toSessionResponse(s, s.Status()))
	}
}

// UnlockWatchSession handles POST /v1/watch/sessions/{session_id}/unlock.
// On success it returns a receipt that POST /v1/analyses requires.
func UnlockWatchSession(reg *sessions.Registry, signer *signing.Signer, ttl time.Duration, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, rid, ok := requireUser(w, r)
		if !ok {
			return
		}
		s, st, err := reg.Unlock(uid, chi.URLParam(r, "session_id"))
		switch {
		case errors.Is(err, watchgate.ErrGateLocked):
			metrics.WatchUnlocks.WithLabelValues("locked").Inc()
			api.Conflict(w, "GATE_LOCKED", "Watch requirement not met", rid, map[string]any{
				"watched_seconds": st.WatchedSeconds,
				"threshold":       st.Threshold,
			})
			return
		case errors.Is(err, watchgate.ErrAlreadyRequested):
			metrics.WatchUnlocks.WithLabelValues("repeat").Inc()
			api.Conflict(w, "ALREADY_REQUESTED", "Analysis already requested for this session", rid, nil)
			return
		case writeSessionError(w, rid, err):
			return
		}

		token, receipt := signer.Issue(s.ID, uid, s.VideoID, ttl)
		metrics.WatchUnlocks.WithLabelValues("ok").Inc()
		log.Info("watch gate unlocked",
			zap.String("session_id", s.ID),
			zap.String("video_id", s.VideoID),
			zap.Int("watched_seconds", st.WatchedSeconds),
			zap.String("request_id", rid),
		)
		api.WriteJSON(w, http.StatusOK, unlockResponse{
			SessionID:    s.ID,
			Status:       st,
			WatchReceipt: token,
			ExpiresAt:    time.Unix(receipt.Exp, 0).UTC(),
		})
	}
}

// DeleteWatchSession handles DELETE /v1/watch/sessions/{session_id}
func DeleteWatchSession(reg *sessions.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, rid, ok := requireUser(w, r)
		if !ok {
			return
		}
		if writeSessionError(w, rid, reg.Delete(uid, strings.TrimSpace(chi.URLParam(r, "session_id")))) {
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
