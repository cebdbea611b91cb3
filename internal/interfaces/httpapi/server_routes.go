package httpapi

import "net/http"

func registerSystemRoutes(mux *http.ServeMux, handler *Handler, metrics http.Handler) {
	mux.HandleFunc("GET /healthz", handler.Healthz)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
}

// Public routes back the live overlay and viewer pages.
func registerPublicRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /v1/public/matches/{matchID}/score", handler.GetScore)
	mux.HandleFunc("GET /v1/public/matches/{matchID}/auto-live", handler.PollAutoLive)
}

func registerAdminRoutes(mux *http.ServeMux, handler *Handler, adminToken string) {
	admin := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, RequireAdminToken(adminToken, fn))
	}

	admin("GET /v1/teams", handler.ListTeams)

	admin("POST /v1/matches", handler.CreateMatch)
	admin("GET /v1/matches/{matchID}", handler.GetMatch)
	admin("PATCH /v1/matches/{matchID}", handler.UpdateMatch)
	admin("POST /v1/matches/{matchID}/cancel", handler.CancelMatch)
	admin("POST /v1/matches/{matchID}/end", handler.EndMatch)
	admin("POST /v1/matches/{matchID}/auto-live", handler.PollAutoLive)
	admin("GET /v1/matches/{matchID}/stream-connection", handler.GetStreamConnection)
	admin("POST /v1/matches/{matchID}/score", handler.ApplyScoreAction)

	admin("GET /v1/stream-pool/status", handler.GetStreamPoolStatus)
	admin("POST /v1/stream-pool/provision", handler.ProvisionStreams)
	admin("POST /v1/stream-pool/cleanup", handler.CleanupStreamPool)
}
