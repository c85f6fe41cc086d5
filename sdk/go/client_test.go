package sdk

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	mem "teaquest/adapters/memory"
	"teaquest/api/httpapi"
	"teaquest/core"
	"teaquest/engine"
	"teaquest/game"
	"teaquest/leaderboard"
	"teaquest/realtime"
)

// newTestServer runs the real API stack against seeded in-memory storage.
func newTestServer() *httptest.Server {
	hub := realtime.NewHub()
	board := leaderboard.NewSkipList()
	svc := game.New(
		game.WithStorage(mem.NewSeeded()),
		game.WithDispatchMode(engine.DispatchSync),
		game.WithRealtime(hub),
		game.WithLeaderboard(board),
	)
	handler := httpapi.NewMux(svc, hub, httpapi.Options{PathPrefix: "/api"})
	return httptest.NewServer(handler)
}

func TestClient_UserAndCompletionFlow(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx := context.Background()

	u, err := client.GetUser(ctx)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Username != "player" || u.Experience != 8450 {
		t.Fatalf("unexpected user: %+v", u)
	}

	res, err := client.CompleteQuest(ctx, 1)
	if err != nil {
		t.Fatalf("complete quest: %v", err)
	}
	if res.User.Experience != 8950 || res.Rewards.XP != 500 {
		t.Fatalf("unexpected completion: %+v", res)
	}
	if res.Card == nil || res.Card.CardID != 3 {
		t.Fatalf("reward card missing: %+v", res.Card)
	}

	// Replay surfaces the server's conflict envelope.
	_, err = client.CompleteQuest(ctx, 1)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 409 || apiErr.Code != "already_completed" {
		t.Fatalf("expected 409 already_completed, got %v", err)
	}

	entries, err := client.Leaderboard(ctx, 5)
	if err != nil || len(entries) != 1 || entries[0].Experience != 8950 {
		t.Fatalf("leaderboard: %+v err=%v", entries, err)
	}
}

func TestClient_ProgressAndCatalogue(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	res, err := client.SetAchievementProgress(ctx, 2, 1)
	if err != nil {
		t.Fatalf("set progress: %v", err)
	}
	if !res.AutoCompleted {
		t.Fatalf("expected auto completion: %+v", res)
	}

	cards, err := client.ListTeaCards(ctx)
	if err != nil || len(cards) != 6 {
		t.Fatalf("tea cards: %d err=%v", len(cards), err)
	}

	quests, err := client.ListQuests(ctx)
	if err != nil || len(quests) != 2 {
		t.Fatalf("quests: %d err=%v", len(quests), err)
	}

	events, err := client.ListWeeklyEvents(ctx)
	if err != nil || len(events) != 8 {
		t.Fatalf("weekly events: %d err=%v", len(events), err)
	}

	q, err := client.StartDailyQuest(ctx)
	if err != nil || q.Category != "daily" {
		t.Fatalf("start daily quest: %+v err=%v", q, err)
	}

	health, err := client.Health(ctx)
	if err != nil || health.Status != "healthy" {
		t.Fatalf("health: %+v err=%v", health, err)
	}
}

func TestClient_SubscribeEvents(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := client.SubscribeEvents(ctx, core.EventQuestCompleted)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// give the ws subscriber time to register
	time.Sleep(20 * time.Millisecond)

	if _, err := client.CompleteQuest(ctx, 1); err != nil {
		t.Fatalf("complete quest: %v", err)
	}

	select {
	case evt := <-events:
		if evt.Type != core.EventQuestCompleted {
			t.Fatalf("unexpected event type: %s", evt.Type)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}
