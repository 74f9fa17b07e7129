package handlers

import (
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/comms-ninja/internal/platform/analytics"
	"github.com/example/comms-ninja/internal/platform/auth"
	"github.com/example/comms-ninja/internal/platform/signing"
	"github.com/example/comms-ninja/services/api/internal/queue"
	"github.com/example/comms-ninja/services/api/internal/sessions"
	"github.com/example/comms-ninja/services/api/internal/store"
)

// Deps are the collaborators of the /v1 routes.
type Deps struct {
	Log          *zap.Logger
	Verifier     auth.JWTVerifier
	Sessions     *sessions.Registry
	Analyses     store.AnalysisStore
	Entitlements store.Entitlements
	Receipts     *signing.Signer
	ReceiptTTL   time.Duration
	Queue        *queue.Publisher
	Analytics    *analytics.Publisher
}

// Mount registers every authenticated /v1 route on r.
func Mount(r chi.Router, d Deps) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(d.Verifier))

		r.Route("/v1/watch/sessions", func(r chi.Router) {
			r.Post("/", CreateWatchSession(d.Sessions, d.Analytics))
			r.Get("/{session_id}", GetWatchSession(d.Sessions))
			r.Delete("/{session_id}", DeleteWatchSession(d.Sessions))
			r.Post("/{session_id}/ready", WatchReady(d.Sessions))
			r.Post("/{session_id}/heartbeat", WatchHeartbeat(d.Sessions))
			r.Post("/{session_id}/unlock", UnlockWatchSession(d.Sessions, d.Receipts, d.ReceiptTTL, d.Log))
		})

		r.Post("/v1/analyses", CreateAnalysis(d.Analyses, d.Receipts, d.Queue, d.Analytics, d.Log))
		r.Get("/v1/analyses", ListAnalyses(d.Analyses))
		r.Get("/v1/analyses/{analysis_id}", GetAnalysis(d.Analyses, d.Entitlements, d.Analytics))

		r.With(auth.RequireAdmin).Post("/v1/admin/analyses/{analysis_id}/status", AdminSetStatus(d.Analyses, d.Log))
	})
}
