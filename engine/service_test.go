package engine

import (
	"context"
	"errors"
	"testing"

	mem "teaquest/adapters/memory"
	"teaquest/core"
	"teaquest/leaderboard"
)

var _ Storage = (*mem.Store)(nil)

func newTestService() *GameService {
	store := mem.NewSeeded()
	bus := NewEventBus(DispatchSync)
	return NewGameService(store, bus, core.CompletionPolicy{})
}

func TestCompleteQuestPublishesEvents(t *testing.T) {
	svc := newTestService()

	completed := 0
	levelUps := 0
	svc.Subscribe(core.EventQuestCompleted, func(ctx context.Context, e core.Event) { completed++ })
	svc.Subscribe(core.EventLevelUp, func(ctx context.Context, e core.Event) { levelUps++ })

	res, err := svc.CompleteQuest(context.Background(), mem.DefaultUserID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.User.Experience != 8950 || res.User.Coins != 1447 {
		t.Fatalf("unexpected totals %+v", res.User)
	}
	if res.LeveledUp {
		t.Fatal("should not level up")
	}
	if res.Rewards.XP != 500 || res.Rewards.Coins != 200 || res.Rewards.CardID == nil {
		t.Fatalf("reward echo wrong: %+v", res.Rewards)
	}
	if completed != 1 {
		t.Fatalf("want 1 completion event, got %d", completed)
	}
	if levelUps != 0 {
		t.Fatalf("want 0 level-up events, got %d", levelUps)
	}
}

func TestCompleteQuestLevelUpBoundary(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	// 8450 + 600 crosses 9000.
	g, err := svc.storage.CreateGoal(ctx, core.Goal{
		UserID:      mem.DefaultUserID,
		Kind:        core.KindQuest,
		Title:       "Oolong Tasting",
		Requirement: 1,
		Reward:      core.Reward{XP: 600},
	})
	if err != nil {
		t.Fatal(err)
	}

	levelUps := 0
	svc.Subscribe(core.EventLevelUp, func(ctx context.Context, e core.Event) { levelUps++ })

	res, err := svc.CompleteQuest(ctx, mem.DefaultUserID, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.User.Experience != 9050 || res.User.Level != 10 || !res.LeveledUp {
		t.Fatalf("expected level 10 at 9050 xp, got %+v", res)
	}
	if levelUps != 1 {
		t.Fatalf("want 1 level-up event, got %d", levelUps)
	}
}

func TestCompleteAchievementStampsUnlock(t *testing.T) {
	svc := newTestService()

	res, err := svc.CompleteAchievement(context.Background(), mem.DefaultUserID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Goal.Completed || res.Goal.CompletedAt == nil {
		t.Fatalf("achievement missing completion stamp: %+v", res.Goal)
	}
}

func TestCompleteQuestNotFound(t *testing.T) {
	svc := newTestService()

	_, err := svc.CompleteQuest(context.Background(), mem.DefaultUserID, 999)
	if !errors.Is(err, core.ErrGoalNotFound) {
		t.Fatalf("expected ErrGoalNotFound, got %v", err)
	}
	_, err = svc.CompleteQuest(context.Background(), core.UserID(999), 1)
	if !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSetProgressDoesNotGrantRewards(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	before, err := svc.GetUser(ctx, mem.DefaultUserID)
	if err != nil {
		t.Fatal(err)
	}
	res, err := svc.SetProgress(ctx, core.KindAchievement, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !res.AutoCompleted {
		t.Fatal("expected auto-completion at threshold")
	}
	after, err := svc.GetUser(ctx, mem.DefaultUserID)
	if err != nil {
		t.Fatal(err)
	}
	if after.Experience != before.Experience || after.Coins != before.Coins {
		t.Fatal("progress path must not grant rewards")
	}
}

func TestPatchUserStatsValidation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.PatchUserStats(ctx, mem.DefaultUserID, core.UserPatch{}); err == nil {
		t.Fatal("empty patch must be rejected")
	}
	bad := int64(-5)
	if _, err := svc.PatchUserStats(ctx, mem.DefaultUserID, core.UserPatch{Coins: &bad}); err == nil {
		t.Fatal("negative coins must be rejected")
	}
	coins := int64(5000)
	u, err := svc.PatchUserStats(ctx, mem.DefaultUserID, core.UserPatch{Coins: &coins})
	if err != nil || u.Coins != 5000 {
		t.Fatalf("got %+v %v", u, err)
	}
}

func TestLeaderboardTracksExperience(t *testing.T) {
	svc := newTestService()
	board := leaderboard.NewSkipList()
	svc.AttachLeaderboard(board)

	if _, err := svc.CompleteQuest(context.Background(), mem.DefaultUserID, 1); err != nil {
		t.Fatal(err)
	}
	top := svc.TopPlayers(1)
	if len(top) != 1 || top[0].User != mem.DefaultUserID || top[0].Experience != 8950 {
		t.Fatalf("unexpected board %#v", top)
	}
}

func TestStartDailyQuest(t *testing.T) {
	svc := newTestService()

	q, err := svc.StartDailyQuest(context.Background(), mem.DefaultUserID)
	if err != nil {
		t.Fatal(err)
	}
	if q.Category != "daily" || q.Requirement != 3 || q.Reward.XP != 500 {
		t.Fatalf("unexpected quest %+v", q)
	}
	if q.Progress != 0 || q.Completed {
		t.Fatalf("new quest must start fresh: %+v", q)
	}
}

func TestGrantCardPublishesEvent(t *testing.T) {
	svc := newTestService()

	granted := 0
	svc.Subscribe(core.EventCardGranted, func(ctx context.Context, e core.Event) { granted++ })
	if _, err := svc.GrantCard(context.Background(), mem.DefaultUserID, 4); err != nil {
		t.Fatal(err)
	}
	if granted != 1 {
		t.Fatalf("want 1 card event, got %d", granted)
	}
}
