package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/comms-ninja/internal/analysis"
	"github.com/example/comms-ninja/internal/platform/analytics"
	"github.com/example/comms-ninja/internal/platform/api"
	"github.com/example/comms-ninja/internal/platform/metrics"
	"github.com/example/comms-ninja/internal/platform/signing"
	"github.com/example/comms-ninja/services/api/internal/queue"
	"github.com/example/comms-ninja/services/api/internal/report"
	"github.com/example/comms-ninja/services/api/internal/store"
	"github.com/example/comms-ninja/services/api/internal/youtube"
)

// DemoModeURL in place of a YouTube URL yields a completed canned report.
const DemoModeURL = "DEMO_MODE"

const queueFailureMessage = "The analysis could not be queued. Please try again."

type createAnalysisRequest struct {
	YouTubeURL     string `json:"youtube_url"`
	VideoTitle     string `json:"video_title"`
	Company        string `json:"company"`
	Role           string `json:"role"`
	TargetPerson   string `json:"target_person"`
	TranscriptText string `json:"transcript_text"`
	WatchReceipt   string `json:"watch_receipt"`
}

type createAnalysisResponse struct {
	Status     analysis.Status `json:"status"`
	AnalysisID string          `json:"analysis_id"`
}

type statusRequest struct {
	Status        string          `json:"status"`
	ResultPayload json.RawMessage `json:"result_payload,omitempty"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
}

// analysisResponse is the status resource: the analysis.Job fields plus
// the metadata the dashboard shows.
type analysisResponse struct {
	ID            string          `json:"id"`
	Status        analysis.Status `json:"status"`
	ResultPayload json.RawMessage `json:"result_payload,omitempty"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
	Locked        bool            `json:"locked"`
	YouTubeURL    string          `json:"youtube_url"`
	VideoID       string          `json:"video_id"`
	VideoTitle    string          `json:"video_title"`
	Company       string          `json:"company,omitempty"`
	Role          string          `json:"role,omitempty"`
	TargetPerson  string          `json:"target_person,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type listItem struct {
	ID         string          `json:"id"`
	Status     analysis.Status `json:"status"`
	VideoID    string          `json:"video_id"`
	VideoTitle string          `json:"video_title"`
	CreatedAt  time.Time       `json:"created_at"`
}

type listResponse struct {
	Items []listItem `json:"items"`
}

func toAnalysisResponse(a store.Analysis, pro bool) analysisResponse {
	resp := analysisResponse{
		ID:            a.ID,
		Status:        a.Status,
		ResultPayload: a.ResultPayload,
		ErrorMessage:  a.ErrorMessage,
		YouTubeURL:    a.YouTubeURL,
		VideoID:       a.VideoID,
		VideoTitle:    a.VideoTitle,
		Company:       a.Company,
		Role:          a.Role,
		TargetPerson:  a.TargetPerson,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
	if !pro && len(a.ResultPayload) > 0 {
		resp.ResultPayload = report.Redact(a.ResultPayload)
		resp.Locked = true
	}
	return resp
}

// CreateAnalysis handles POST /v1/analyses.
// A real submission needs a watch receipt for the same user and video.
func CreateAnalysis(st store.AnalysisStore, signer *signing.Signer, pub *queue.Publisher, ap *analytics.Publisher, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, rid, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req createAnalysisRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}

		base := store.Analysis{
			UserID:       uid,
			VideoTitle:   strings.TrimSpace(req.VideoTitle),
			Company:      strings.TrimSpace(req.Company),
			Role:         strings.TrimSpace(req.Role),
			TargetPerson: strings.TrimSpace(req.TargetPerson),
		}

		if strings.TrimSpace(req.YouTubeURL) == DemoModeURL {
			base.YouTubeURL = youtube.WatchURL(report.DemoVideoID)
			base.VideoID = report.DemoVideoID
			base.Status = analysis.StatusCompleted
			base.ResultPayload = report.Demo()
			created, err := st.Create(r.Context(), base)
			if err != nil {
				log.Error("create demo analysis", zap.Error(err), zap.String("request_id", rid))
				api.Internal(w, rid)
				return
			}
			metrics.AnalysesRequested.WithLabelValues("demo").Inc()
			api.WriteJSON(w, http.StatusAccepted, createAnalysisResponse{Status: created.Status, AnalysisID: created.ID})
			return
		}

		videoID, receipt, err := admitSubmission(signer, req, uid)
		if err != nil {
			api.Render(w, err, rid)
			return
		}

		base.YouTubeURL = youtube.WatchURL(videoID)
		base.VideoID = videoID
		base.Status = analysis.StatusQueued
		base.WatchSessionID = receipt.SessionID
		created, err := st.Create(r.Context(), base)
		if errors.Is(err, store.ErrReceiptUsed) {
			api.Render(w, errReceiptUsed, rid)
			return
		}
		if err != nil {
			log.Error("create analysis", zap.Error(err), zap.String("request_id", rid))
			api.Internal(w, rid)
			return
		}

		err = pub.Requested(r.Context(), queue.RequestedEvent{
			EventID:        uuid.NewString(),
			AnalysisID:     created.ID,
			UserID:         uid,
			YouTubeURL:     created.YouTubeURL,
			VideoID:        videoID,
			VideoTitle:     created.VideoTitle,
			Company:        created.Company,
			Role:           created.Role,
			TargetPerson:   created.TargetPerson,
			TranscriptText: req.TranscriptText,
			RequestedAt:    created.CreatedAt,
		})
		if err != nil {
			log.Error("publish analysis request", zap.Error(err), zap.String("analysis_id", created.ID))
			msg := queueFailureMessage
			if _, uerr := st.UpdateStatus(r.Context(), created.ID, store.StatusUpdate{Status: analysis.StatusFailed, ErrorMessage: &msg}); uerr != nil {
				log.Error("mark analysis failed", zap.Error(uerr), zap.String("analysis_id", created.ID))
			}
			api.Unavailable(w, "QUEUE_UNAVAILABLE", queueFailureMessage, rid)
			return
		}

		metrics.AnalysesRequested.WithLabelValues("youtube").Inc()
		ap.Publish(analytics.SubjectAnalysisRequested, uid, map[string]any{
			"analysis_id": created.ID,
			"video_id":    videoID,
			"session_id":  receipt.SessionID,
		})
		api.WriteJSON(w, http.StatusAccepted, createAnalysisResponse{Status: created.Status, AnalysisID: created.ID})
	}
}

// admitSubmission checks the URL and that the watch receipt was issued to uid
// for the same video.
func admitSubmission(signer *signing.Signer, req createAnalysisRequest, uid string) (string, signing.Receipt, error) {
	videoID, err := youtube.VideoID(req.YouTubeURL)
	if err != nil {
		return "", signing.Receipt{}, errInvalidURL
	}
	if strings.TrimSpace(req.WatchReceipt) == "" {
		return "", signing.Receipt{}, errWatchRequired
	}
	receipt, err := signer.Verify(req.WatchReceipt)
	if err != nil || receipt.UserID != uid || receipt.VideoID != videoID {
		return "", signing.Receipt{}, errReceiptInvalid
	}
	return videoID, receipt, nil
}

var (
	errInvalidURL     = api.NewError(http.StatusBadRequest, "INVALID_URL", "A valid YouTube URL is required", nil)
	errWatchRequired  = api.NewError(http.StatusForbidden, "WATCH_REQUIRED", "Watch the video before requesting an analysis", nil)
	errReceiptInvalid = api.NewError(http.StatusForbidden, "RECEIPT_INVALID", "Watch receipt is invalid or expired", nil)
	errReceiptUsed    = api.NewError(http.StatusConflict, "RECEIPT_USED", "Watch receipt was already used; watch the video again", nil)
)

// GetAnalysis handles GET /v1/analyses/{analysis_id}. Other users'
// analyses are reported as not found.
func GetAnalysis(st store.AnalysisStore, ent store.Entitlements, ap *analytics.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, rid, ok := requireUser(w, r)
		if !ok {
			return
		}
		a, err := st.Get(r.Context(), strings.TrimSpace(chi.URLParam(r, "analysis_id")))
		if errors.Is(err, store.ErrNotFound) || (err == nil && a.UserID != uid) {
			api.NotFound(w, "ANALYSIS_NOT_FOUND", "Analysis not found", rid)
			return
		}
		if err != nil {
			api.Internal(w, rid)
			return
		}

		pro := store.IsPro(r.Context(), ent, uid)
		if a.Status == analysis.StatusCompleted {
			ap.Publish(analytics.SubjectAnalysisViewed, uid, map[string]any{
				"analysis_id": a.ID,
				"pro":         pro,
			})
		}
		w.Header().Set("Cache-Control", "no-store")
		api.WriteJSON(w, http.StatusOK, toAnalysisResponse(a, pro))
	}
}

// ListAnalyses handles GET /v1/analyses
func ListAnalyses(st store.AnalysisStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, rid, ok := requireUser(w, r)
		if !ok {
			return
		}
		limit := store.DefaultListLimit
		if l := r.URL.Query().Get("limit"); l != "" {
			n, err := strconv.Atoi(l)
			if err != nil || n <= 0 {
				api.BadRequest(w, "INVALID_LIMIT", "limit must be a positive integer", rid, nil)
				return
			}
			limit = min(n, store.MaxListLimit)
		}

		list, err := st.ListByUser(r.Context(), uid, limit)
		if err != nil {
			api.Internal(w, rid)
			return
		}
		items := make([]listItem, 0, len(list))
		for _, a := range list {
			items = append(items, listItem{ID: a.ID, Status: a.Status, VideoID: a.VideoID, VideoTitle: a.VideoTitle, CreatedAt: a.CreatedAt})
		}
		api.WriteJSON(w, http.StatusOK, listResponse{Items: items})
	}
}

// AdminSetStatus handles POST /v1/admin/analyses/{analysis_id}/status
func AdminSetStatus(st store.AnalysisStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, rid, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req statusRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		status, err := analysis.Parse(req.Status)
		if err != nil {
			api.BadRequest(w, "INVALID_STATUS", "Unknown status", rid, map[string]any{"status": req.Status})
			return
		}

		id := strings.TrimSpace(chi.URLParam(r, "analysis_id"))
		a, err := st.UpdateStatus(r.Context(), id, store.StatusUpdate{
			Status:        status,
			ResultPayload: req.ResultPayload,
			ErrorMessage:  req.ErrorMessage,
		})
		switch {
		case errors.Is(err, store.ErrNotFound):
			api.NotFound(w, "ANALYSIS_NOT_FOUND", "Analysis not found", rid)
			return
		case errors.Is(err, analysis.ErrTerminal):
			api.Conflict(w, "ANALYSIS_TERMINAL", "Analysis already finished", rid, map[string]any{"status": a.Status})
			return
		case err != nil:
			api.Internal(w, rid)
			return
		}
		log.Info("analysis status overridden",
			zap.String("analysis_id", id),
			zap.String("status", string(status)),
			zap.String("admin_id", uid),
		)
		api.WriteJSON(w, http.StatusOK, toAnalysisResponse(a, true))
	}
}
