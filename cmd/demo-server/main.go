package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	mem "teaquest/adapters/memory"
	ws "teaquest/adapters/websocket"
	"teaquest/core"
	"teaquest/engine"
	"teaquest/realtime"
)

// A stripped-down server for local experiments: seeded in-memory storage,
// no config, no middleware. Use cmd/teaquest-server for anything real.
func main() {
	// Use readable text logging for development/demo
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(textHandler))

	store := mem.NewSeeded()
	bus := engine.NewEventBus(engine.DispatchAsync)
	svc := engine.NewGameService(store, bus, core.CompletionPolicy{})
	hub := realtime.NewHub()

	// Forward game events to WebSocket clients
	for _, t := range []core.EventType{
		core.EventQuestCompleted,
		core.EventAchievementUnlocked,
		core.EventProgressUpdated,
		core.EventLevelUp,
		core.EventCardGranted,
	} {
		bus.Subscribe(t, func(ctx context.Context, e core.Event) { hub.Broadcast(ctx, e) })
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", ws.Handler(hub))

	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		u, err := svc.GetUser(r.Context(), mem.DefaultUserID)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, u)
	})

	mux.HandleFunc("GET /quests", func(w http.ResponseWriter, r *http.Request) {
		quests, err := svc.ListQuests(r.Context(), mem.DefaultUserID)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, quests)
	})

	mux.HandleFunc("POST /complete-quest/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "bad quest id", 400)
			return
		}
		res, err := svc.CompleteQuest(r.Context(), mem.DefaultUserID, core.GoalID(id))
		writeJSON(w, map[string]any{"result": res, "err": errString(err)})
	})

	mux.HandleFunc("PATCH /quests/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "bad quest id", 400)
			return
		}
		progress, _ := strconv.ParseInt(r.URL.Query().Get("progress"), 10, 64)
		res, err := svc.SetProgress(r.Context(), core.KindQuest, core.GoalID(id), progress)
		writeJSON(w, map[string]any{"result": res, "err": errString(err)})
	})

	slog.Info("starting demo server on :8080")

	if err := http.ListenAndServe(":8080", mux); err != nil {
		slog.Error("demo server crashed", "error", err)
		os.Exit(1)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func errString(err error) any {
	if err == nil {
		return nil
	}
	return err.Error()
}
