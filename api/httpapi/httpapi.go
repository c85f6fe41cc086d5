package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	wsadapter "teaquest/adapters/websocket"
	"teaquest/core"
	"teaquest/engine"
	"teaquest/leaderboard"
	"teaquest/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
}

// userIDHeader selects the acting player. The demo client is a single-player
// app, so a missing header falls back to the seeded account.
const userIDHeader = "X-User-ID"

const defaultUserID = core.UserID(1)

// NewMux builds an http.Handler exposing the game REST API and WebSocket stream.
// Routes:
//   - GET    {prefix}/user
//   - PATCH  {prefix}/user/stats
//   - GET    {prefix}/tea-cards
//   - GET    {prefix}/user-cards
//   - POST   {prefix}/user-cards
//   - GET    {prefix}/quests
//   - PATCH  {prefix}/quests/{id}
//   - POST   {prefix}/start-daily-quest
//   - POST   {prefix}/complete-quest/{id}
//   - GET    {prefix}/achievements
//   - PATCH  {prefix}/achievement/{id}/progress
//   - POST   {prefix}/complete-achievement/{id}
//   - GET    {prefix}/weekly-events
//   - GET    {prefix}/leaderboard?n=10
//   - GET    {prefix}/healthz
//   - WS     {prefix}/ws
func NewMux(svc *engine.GameService, hub *realtime.Hub, opts Options) http.Handler {
	mux := http.NewServeMux()
	p := opts.PathPrefix

	mux.HandleFunc("GET "+withPrefix(p, "/healthz"), func(w http.ResponseWriter, r *http.Request) {
		healthCheck(w, r, svc)
	})

	if hub != nil {
		mux.Handle(withPrefix(p, "/ws"), wsadapter.Handler(hub))
	}

	mux.HandleFunc("GET "+withPrefix(p, "/user"), func(w http.ResponseWriter, r *http.Request) {
		user, ok := requestUser(w, r)
		if !ok {
			return
		}
		u, err := svc.GetUser(r.Context(), user)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, u)
	})

	mux.HandleFunc("PATCH "+withPrefix(p, "/user/stats"), func(w http.ResponseWriter, r *http.Request) {
		user, ok := requestUser(w, r)
		if !ok {
			return
		}
		var patch core.UserPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body", nil)
			return
		}
		u, err := svc.PatchUserStats(r.Context(), user, patch)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, u)
	})

	mux.HandleFunc("GET "+withPrefix(p, "/tea-cards"), func(w http.ResponseWriter, r *http.Request) {
		cards, err := svc.ListTeaCards(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, cards)
	})

	mux.HandleFunc("GET "+withPrefix(p, "/user-cards"), func(w http.ResponseWriter, r *http.Request) {
		user, ok := requestUser(w, r)
		if !ok {
			return
		}
		cards, err := svc.ListUserCards(r.Context(), user)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, cards)
	})

	mux.HandleFunc("POST "+withPrefix(p, "/user-cards"), func(w http.ResponseWriter, r *http.Request) {
		user, ok := requestUser(w, r)
		if !ok {
			return
		}
		var body struct {
			CardID core.CardID `json:"card_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.CardID == 0 {
			writeError(w, http.StatusBadRequest, "invalid_body", "card_id is required", nil)
			return
		}
		uc, err := svc.GrantCard(r.Context(), user, body.CardID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, uc)
	})

	mux.HandleFunc("GET "+withPrefix(p, "/quests"), func(w http.ResponseWriter, r *http.Request) {
		user, ok := requestUser(w, r)
		if !ok {
			return
		}
		quests, err := svc.ListQuests(r.Context(), user)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, quests)
	})

	mux.HandleFunc("PATCH "+withPrefix(p, "/quests/{id}"), func(w http.ResponseWriter, r *http.Request) {
		handleProgress(w, r, svc, core.KindQuest)
	})

	mux.HandleFunc("POST "+withPrefix(p, "/start-daily-quest"), func(w http.ResponseWriter, r *http.Request) {
		user, ok := requestUser(w, r)
		if !ok {
			return
		}
		q, err := svc.StartDailyQuest(r.Context(), user)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, q)
	})

	mux.HandleFunc("POST "+withPrefix(p, "/complete-quest/{id}"), func(w http.ResponseWriter, r *http.Request) {
		handleComplete(w, r, svc, core.KindQuest)
	})

	mux.HandleFunc("GET "+withPrefix(p, "/achievements"), func(w http.ResponseWriter, r *http.Request) {
		user, ok := requestUser(w, r)
		if !ok {
			return
		}
		achievements, err := svc.ListAchievements(r.Context(), user)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, achievements)
	})

	mux.HandleFunc("PATCH "+withPrefix(p, "/achievement/{id}/progress"), func(w http.ResponseWriter, r *http.Request) {
		handleProgress(w, r, svc, core.KindAchievement)
	})

	mux.HandleFunc("POST "+withPrefix(p, "/complete-achievement/{id}"), func(w http.ResponseWriter, r *http.Request) {
		handleComplete(w, r, svc, core.KindAchievement)
	})

	mux.HandleFunc("GET "+withPrefix(p, "/weekly-events"), func(w http.ResponseWriter, r *http.Request) {
		events, err := svc.ListWeeklyEvents(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, events)
	})

	mux.HandleFunc("GET "+withPrefix(p, "/leaderboard"), func(w http.ResponseWriter, r *http.Request) {
		n := 10
		if raw := r.URL.Query().Get("n"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				writeError(w, http.StatusBadRequest, "invalid_n", "n must be a positive integer", nil)
				return
			}
			n = parsed
		}
		entries := svc.TopPlayers(n)
		if entries == nil {
			entries = []leaderboard.Entry{}
		}
		writeJSON(w, entries)
	})

	var handler http.Handler = mux
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	if len(opts.APIKeys) > 0 {
		handler = withAPIKeyAuth(handler, opts.APIKeys)
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, opts.RateLimitRPM, opts.RateLimitBurst)
	}
	return handler
}

// handleComplete claims a goal's reward. When the reward references a tea
// card, the card is granted as part of the same request and echoed back.
// The completed goal is keyed by its kind, matching what the client reads.
func handleComplete(w http.ResponseWriter, r *http.Request, svc *engine.GameService, kind core.GoalKind) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}
	id, ok := pathGoalID(w, r)
	if !ok {
		return
	}
	var res engine.CompletionResult
	var err error
	if kind == core.KindQuest {
		res, err = svc.CompleteQuest(r.Context(), user, id)
	} else {
		res, err = svc.CompleteAchievement(r.Context(), user, id)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := map[string]any{
		"user":       res.User,
		string(kind): res.Goal,
		"leveledUp":  res.LeveledUp,
		"rewards":    res.Rewards,
	}
	if res.Rewards.CardID != nil {
		uc, err := svc.GrantCard(r.Context(), user, *res.Rewards.CardID)
		if err != nil {
			// The reward itself committed; flag the missing card instead of
			// pretending it was never owed.
			slog.Error("reward card grant failed",
				"user", user, "kind", kind, "goal", id, "card", *res.Rewards.CardID, "error", err)
			resp["cardError"] = err.Error()
		} else {
			resp["card"] = uc
		}
	}
	writeJSON(w, resp)
}

func handleProgress(w http.ResponseWriter, r *http.Request, svc *engine.GameService, kind core.GoalKind) {
	id, ok := pathGoalID(w, r)
	if !ok {
		return
	}
	var body struct {
		Progress *int64 `json:"progress"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Progress == nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "progress is required", nil)
		return
	}
	if *body.Progress < 0 {
		writeError(w, http.StatusBadRequest, "invalid_progress", "progress must be non-negative", nil)
		return
	}
	res, err := svc.SetProgress(r.Context(), kind, id, *body.Progress)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		string(kind):    res.Goal,
		"autoCompleted": res.AutoCompleted,
	})
}

// Helpers

// healthCheck verifies the service is working properly
func healthCheck(w http.ResponseWriter, r *http.Request, svc *engine.GameService) {
	// Verify storage works with a lightweight probe; a missing probe user is
	// still a healthy storage round-trip.
	_, err := svc.GetUser(r.Context(), core.UserID(-1))
	if err != nil && !errors.Is(err, core.ErrUserNotFound) {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]any{
			"status": "unhealthy",
			"checks": map[string]any{"storage": "failed"},
		})
		return
	}
	writeJSON(w, map[string]any{
		"status": "healthy",
		"checks": map[string]any{"storage": "ok"},
	})
}

func requestUser(w http.ResponseWriter, r *http.Request) (core.UserID, bool) {
	raw := r.Header.Get(userIDHeader)
	if raw == "" {
		return defaultUserID, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid_user", "X-User-ID must be a positive integer", nil)
		return 0, false
	}
	return core.UserID(id), true
}

func pathGoalID(w http.ResponseWriter, r *http.Request) (core.GoalID, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a positive integer", nil)
		return 0, false
	}
	return core.GoalID(id), true
}

func withPrefix(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix[:len(prefix)-1] + path
	}
	return prefix + path
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{Code: code, Message: msg, Details: details})
}

// writeDomainError maps engine/storage errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error(), nil)
	case errors.Is(err, core.ErrGoalNotFound):
		writeError(w, http.StatusNotFound, "goal_not_found", err.Error(), nil)
	case errors.Is(err, core.ErrCardNotFound):
		writeError(w, http.StatusNotFound, "card_not_found", err.Error(), nil)
	case errors.Is(err, core.ErrAlreadyCompleted):
		writeError(w, http.StatusConflict, "already_completed", err.Error(), nil)
	case errors.Is(err, core.ErrProgressUnmet):
		writeError(w, http.StatusConflict, "progress_unmet", err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
	}
}

// withCORS wraps a handler with a minimal CORS policy.
func withCORS(next http.Handler, origin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-API-Key,X-User-ID")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withAPIKeyAuth enforces a shared API key list.
func withAPIKeyAuth(next http.Handler, apiKeys []string) http.Handler {
	allowed := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		k = strings.TrimSpace(k)
		if k != "" {
			allowed[k] = struct{}{}
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractAPIKey(r)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing API key", nil)
			return
		}
		if _, ok := allowed[key]; !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit applies a simple token-bucket limiter per client key.
func withRateLimit(next http.Handler, rpm int, burst int) http.Handler {
	limiter := newRateLimiter(rpm, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !limiter.allow(key) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return ""
}

// clientKey uses API key if present, otherwise remote IP.
func clientKey(r *http.Request) string {
	if key := extractAPIKey(r); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rateLimiter struct {
	rpm   float64
	burst float64
	mu    sync.Mutex
	b     map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(rpm, burst int) *rateLimiter {
	return &rateLimiter{
		rpm:   float64(rpm),
		burst: float64(burst),
		b:     make(map[string]*bucket),
	}
}

func (l *rateLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.b[key]
	if !ok {
		l.b[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}

	elapsed := now.Sub(b.last).Minutes()
	b.tokens += elapsed * l.rpm
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	if b.tokens < 1 {
		b.last = now
		return false
	}
	b.tokens--
	b.last = now
	return true
}
