package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/raagfm/raag/db"
	"github.com/raagfm/raag/models"
	"github.com/raagfm/raag/service/catalog"
	"github.com/raagfm/raag/service/recommend"
	"github.com/raagfm/raag/session"
)

// jsonResponse returns a JSON response
func jsonResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func jsonError(w http.ResponseWriter, statusCode int, msg string) {
	jsonResponse(w, statusCode, map[string]string{"error": msg})
}

func limitParam(r *http.Request, fallback int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func (app *application) home(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		jsonError(w, http.StatusNotFound, "not found")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{
		"service": "raag",
		"status":  "ok",
		"time":    app.clock.Format(app.clock.Now(), false),
	})
}

// apiSearch merges local library matches with catalog results. Local tracks
// come first so an already-downloaded copy always wins over a remote one.
func (app *application) apiSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		jsonError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	results := app.library.Search(query)

	remote, err := app.catalog.Search(r.Context(), query, 15)
	if err != nil {
		// a dead catalog should not take local search down with it
		app.logger.Warn("catalog search failed", "query", query, "err", err)
	}
	for i := range remote {
		results = append(results, remote[i].Track)
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"results": recommend.Dedupe(results),
	})
}

func (app *application) apiPlayStart(w http.ResponseWriter, r *http.Request) {
	userID, ok := session.GetUserID(r.Context())
	if !ok {
		jsonError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Artist string `json:"artist"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ID) == "" || strings.TrimSpace(req.Title) == "" {
		jsonError(w, http.StatusBadRequest, "id and title are required")
		return
	}

	listenID, err := app.tracker.StartListen(userID, req.ID, req.Title, req.Artist)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, map[string]int64{"listen_id": listenID})
}

func (app *application) apiPlayEnd(w http.ResponseWriter, r *http.Request) {
	if _, ok := session.GetUserID(r.Context()); !ok {
		jsonError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		ListenID         int64  `json:"listen_id"`
		Duration         string `json:"duration"`
		ListenedDuration string `json:"listened_duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := app.tracker.EndListen(req.ListenID, req.Duration, req.ListenedDuration); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			jsonError(w, http.StatusNotFound, "unknown listen id")
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	listen, err := app.database.GetListen(req.ListenID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, listen)
}

func (app *application) apiHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := session.GetUserID(r.Context())
	if !ok {
		jsonError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	plays, err := app.database.RecentPlays(userID, limitParam(r, 50))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"history": app.withPlayedLabels(plays)})
}

func (app *application) apiActivity(w http.ResponseWriter, r *http.Request) {
	plays, err := app.database.RecentActivity(limitParam(r, 20))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"activity": app.withPlayedLabels(plays)})
}

type playEntry struct {
	*models.ListenEvent
	Played string `json:"played"` // "just now", "2 hours ago", ...
}

func (app *application) withPlayedLabels(plays []*models.ListenEvent) []playEntry {
	out := make([]playEntry, 0, len(plays))
	for _, p := range plays {
		out = append(out, playEntry{
			ListenEvent: p,
			Played:      app.clock.Format(p.StartedAt, true),
		})
	}
	return out
}

func (app *application) apiRecommendations(w http.ResponseWriter, r *http.Request) {
	var seed *models.Track
	currentID := strings.TrimSpace(r.URL.Query().Get("current"))
	seedID := strings.TrimSpace(r.URL.Query().Get("seed"))
	if seedID == "" {
		seedID = currentID
	}

	if seedID != "" {
		probe := models.Track{ID: seedID}
		if track, _, ok := app.library.GetTrack(seedID); ok {
			seed = track
		} else if probe.IsLocal() {
			// a local id the library no longer knows: nothing to look up
		} else if track, err := app.catalog.GetTrack(r.Context(), seedID); err == nil {
			seed = track
		} else if !errors.Is(err, catalog.ErrTrackNotFound) {
			app.logger.Warn("seed lookup failed", "id", seedID, "err", err)
		}
	}

	recs := app.recommender.BuildRecommendations(r.Context(), seed, currentID)
	jsonResponse(w, http.StatusOK, map[string]any{"recommendations": recs})
}

func (app *application) apiStatsOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := app.stats.Overview()
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, overview)
}

func (app *application) apiStatsArtists(w http.ResponseWriter, r *http.Request) {
	artists, err := app.stats.TopArtists(limitParam(r, 10))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"artists": artists})
}

func (app *application) apiStatsCompletion(w http.ResponseWriter, r *http.Request) {
	completion, err := app.stats.CompletionDistribution()
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, completion)
}

func (app *application) apiStatsDaily(w http.ResponseWriter, r *http.Request) {
	days, err := app.stats.DailyBreakdown(limitParam(r, 30))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"daily": days})
}

func (app *application) apiStatsPatterns(w http.ResponseWriter, r *http.Request) {
	patterns, err := app.stats.ListeningPatterns()
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, patterns)
}

func (app *application) apiDownload(w http.ResponseWriter, r *http.Request) {
	userID, ok := session.GetUserID(r.Context())
	if !ok {
		jsonError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.ID) == "" {
		jsonError(w, http.StatusBadRequest, "id is required")
		return
	}
	track := models.Track{ID: req.ID}
	if track.IsLocal() {
		jsonError(w, http.StatusBadRequest, "local tracks are already on disk")
		return
	}

	download, err := app.fetcher.Fetch(r.Context(), req.ID, userID)
	if err != nil {
		jsonError(w, http.StatusBadGateway, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, download)
}

func (app *application) apiDownloads(w http.ResponseWriter, r *http.Request) {
	userID, ok := session.GetUserID(r.Context())
	if !ok {
		jsonError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	downloads, err := app.database.UserDownloads(userID, limitParam(r, 50))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"downloads": downloads})
}

func (app *application) apiImage(w http.ResponseWriter, r *http.Request) {
	imageURL := r.URL.Query().Get("url")
	if imageURL == "" {
		jsonError(w, http.StatusBadRequest, "missing query parameter url")
		return
	}

	data, contentType, err := app.catalog.FetchImage(r.Context(), imageURL)
	if err != nil {
		jsonError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

func (app *application) handleRequestOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		jsonError(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	if _, err := app.otp.Issue(email, "login"); err != nil {
		jsonError(w, http.StatusInternalServerError, "could not send login code")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (app *application) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	username, _, found := strings.Cut(email, "@")
	if !found || username == "" {
		jsonError(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	ok, err := app.otp.Verify(email, strings.TrimSpace(req.Code), "login")
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		jsonError(w, http.StatusUnauthorized, "invalid or expired code")
		return
	}

	userID, err := app.database.GetUserIDByEmail(email)
	if errors.Is(err, db.ErrNotFound) {
		userID, err = app.database.CreateUser(username, &email, app.clock.Now())
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sess, err := app.sessionManager.Create(userID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	app.sessionManager.SetCookie(w, sess)
	jsonResponse(w, http.StatusOK, map[string]int64{"user_id": userID})
}
