package main

import (
	"net/http"

	"github.com/justinas/alice"

	"github.com/raagfm/raag/session"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", app.home)

	// login flow
	mux.HandleFunc("/login/request-otp", app.handleRequestOTP)
	mux.HandleFunc("/login/verify", app.handleVerifyOTP)
	mux.HandleFunc("/logout", app.sessionManager.HandleLogout)

	// public API
	mux.HandleFunc("/api/v1/search", session.WithPossibleAuth(app.apiSearch, app.sessionManager))
	mux.HandleFunc("/api/v1/recommendations", session.WithPossibleAuth(app.apiRecommendations, app.sessionManager))
	mux.HandleFunc("/api/v1/activity", app.apiActivity)
	mux.HandleFunc("/api/v1/image", app.apiImage)

	// authenticated API
	mux.HandleFunc("/api/v1/play/start", session.WithAuth(app.apiPlayStart, app.sessionManager))
	mux.HandleFunc("/api/v1/play/end", session.WithAuth(app.apiPlayEnd, app.sessionManager))
	mux.HandleFunc("/api/v1/history", session.WithAuth(app.apiHistory, app.sessionManager))
	mux.HandleFunc("/api/v1/download", session.WithAuth(app.apiDownload, app.sessionManager))
	mux.HandleFunc("/api/v1/downloads", session.WithAuth(app.apiDownloads, app.sessionManager))

	// listening statistics
	mux.HandleFunc("/api/v1/stats/overview", app.apiStatsOverview)
	mux.HandleFunc("/api/v1/stats/artists", app.apiStatsArtists)
	mux.HandleFunc("/api/v1/stats/completion", app.apiStatsCompletion)
	mux.HandleFunc("/api/v1/stats/daily", app.apiStatsDaily)
	mux.HandleFunc("/api/v1/stats/patterns", app.apiStatsPatterns)

	standard := alice.New(app.recoverPanic, app.logRequest)
	return standard.Then(mux)
}
