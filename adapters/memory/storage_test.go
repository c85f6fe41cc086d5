package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"teaquest/core"
)

func TestApplyRewardUpdatesBothRows(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	user, quest, leveledUp, err := s.ApplyReward(ctx, DefaultUserID, core.KindQuest, 1, core.CompletionPolicy{})
	if err != nil {
		t.Fatal(err)
	}
	if user.Experience != 8950 || user.Coins != 1447 || user.Level != 9 {
		t.Fatalf("unexpected user state %+v", user)
	}
	if leveledUp {
		t.Fatal("500 xp from 8450 should not level up")
	}
	if !quest.Completed || quest.CompletedAt == nil {
		t.Fatalf("quest not marked completed: %+v", quest)
	}
}

func TestApplyRewardRejectsRecompletion(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if _, _, _, err := s.ApplyReward(ctx, DefaultUserID, core.KindQuest, 1, core.CompletionPolicy{}); err != nil {
		t.Fatal(err)
	}
	_, _, _, err := s.ApplyReward(ctx, DefaultUserID, core.KindQuest, 1, core.CompletionPolicy{})
	if !errors.Is(err, core.ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}

	// Recompletion allowed when policy says so.
	if _, _, _, err := s.ApplyReward(ctx, DefaultUserID, core.KindQuest, 1, core.CompletionPolicy{AllowRecompletion: true}); err != nil {
		t.Fatal(err)
	}
}

func TestApplyRewardRequireProgress(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	// Quest 1 sits at 2/3 progress.
	_, _, _, err := s.ApplyReward(ctx, DefaultUserID, core.KindQuest, 1, core.CompletionPolicy{RequireProgress: true})
	if !errors.Is(err, core.ErrProgressUnmet) {
		t.Fatalf("expected ErrProgressUnmet, got %v", err)
	}
	if _, _, err := s.SetProgress(ctx, core.KindQuest, 1, 3); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := s.ApplyReward(ctx, DefaultUserID, core.KindQuest, 1, core.CompletionPolicy{RequireProgress: true, AllowRecompletion: true}); err != nil {
		t.Fatal(err)
	}
}

func TestApplyRewardMissingUserLeavesGoalUntouched(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	_, _, _, err := s.ApplyReward(ctx, core.UserID(999), core.KindQuest, 1, core.CompletionPolicy{})
	if !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	g, err := s.GetGoal(ctx, core.KindQuest, 1)
	if err != nil {
		t.Fatal(err)
	}
	if g.Completed {
		t.Fatal("goal must stay incomplete after failed apply")
	}
}

func TestSetProgressAutoCompletesOnce(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	g, auto, err := s.SetProgress(ctx, core.KindAchievement, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !auto || !g.Completed {
		t.Fatalf("expected auto-completion, got %+v auto=%v", g, auto)
	}

	// Crossing again must not re-trigger.
	_, auto, err = s.SetProgress(ctx, core.KindAchievement, 2, 5)
	if err != nil {
		t.Fatal(err)
	}
	if auto {
		t.Fatal("auto-completion must fire exactly once")
	}

	// Completed is monotonic even when progress drops below requirement.
	g, auto, err = s.SetProgress(ctx, core.KindAchievement, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if auto || !g.Completed {
		t.Fatalf("completion must never revert: %+v", g)
	}
}

func TestConcurrentCompletionsSumRewards(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	// Reset the demo user to zero and give them two fresh 100-xp quests.
	zero := int64(0)
	one := int64(1)
	if _, err := s.PatchUser(ctx, DefaultUserID, core.UserPatch{Level: &one, Experience: &zero, Coins: &zero}); err != nil {
		t.Fatal(err)
	}
	var ids []core.GoalID
	for i := 0; i < 2; i++ {
		g, err := s.CreateGoal(ctx, core.Goal{
			UserID:      DefaultUserID,
			Kind:        core.KindQuest,
			Title:       "Sip Something New",
			Requirement: 1,
			Reward:      core.Reward{XP: 100},
		})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, g.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id core.GoalID) {
			defer wg.Done()
			if _, _, _, err := s.ApplyReward(ctx, DefaultUserID, core.KindQuest, id, core.CompletionPolicy{}); err != nil {
				t.Error(err)
			}
		}(id)
	}
	wg.Wait()

	u, err := s.GetUser(ctx, DefaultUserID)
	if err != nil {
		t.Fatal(err)
	}
	if u.Experience != 200 {
		t.Fatalf("rewards must accumulate, got experience %d", u.Experience)
	}
}

func TestGrantCardIncrementsQuantity(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	uc, err := s.GrantCard(ctx, DefaultUserID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if uc.Quantity != 2 {
		t.Fatalf("repeat grant should increment quantity, got %d", uc.Quantity)
	}
	if _, err := s.GrantCard(ctx, DefaultUserID, 999); !errors.Is(err, core.ErrCardNotFound) {
		t.Fatalf("expected ErrCardNotFound, got %v", err)
	}
}

func TestSeededCatalogue(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	cards, err := s.ListTeaCards(ctx)
	if err != nil || len(cards) != 6 {
		t.Fatalf("got %d cards, err %v", len(cards), err)
	}
	events, err := s.ListWeeklyEvents(ctx)
	if err != nil || len(events) != 8 {
		t.Fatalf("got %d events, err %v", len(events), err)
	}
	quests, err := s.ListGoals(ctx, DefaultUserID, core.KindQuest)
	if err != nil || len(quests) != 2 {
		t.Fatalf("got %d quests, err %v", len(quests), err)
	}
}
