package engine

import (
	"context"
	"errors"

	"teaquest/core"
	"teaquest/leaderboard"
)

// CompletionResult is returned from CompleteQuest/CompleteAchievement. On
// the wire the goal is keyed by its kind ("quest" or "achievement"); the
// HTTP layer owns that shape.
type CompletionResult struct {
	User      core.User   `json:"user"`
	Goal      core.Goal   `json:"goal"`
	LeveledUp bool        `json:"leveledUp"`
	Rewards   core.Reward `json:"rewards"`
}

// ProgressResult is returned from SetProgress.
type ProgressResult struct {
	Goal          core.Goal `json:"goal"`
	AutoCompleted bool      `json:"autoCompleted"`
}

// GameService wires storage, event bus, and completion policy into a
// cohesive API.
type GameService struct {
	storage Storage
	bus     *EventBus
	policy  core.CompletionPolicy
	board   leaderboard.Board
}

func NewGameService(storage Storage, bus *EventBus, policy core.CompletionPolicy) *GameService {
	if storage == nil || bus == nil {
		panic("NewGameService requires non-nil storage and bus")
	}
	return &GameService{storage: storage, bus: bus, policy: policy}
}

// AttachLeaderboard keeps the board updated with each user's total
// experience after every reward application and stats patch.
func (g *GameService) AttachLeaderboard(b leaderboard.Board) { g.board = b }

// Subscribe convenience method.
func (g *GameService) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return g.bus.Subscribe(typ, handler)
}

func (g *GameService) Publish(ctx context.Context, ev core.Event) {
	g.bus.Publish(ctx, ev)
}

// CompleteQuest applies the quest's reward to the user and marks it
// completed.
func (g *GameService) CompleteQuest(ctx context.Context, user core.UserID, quest core.GoalID) (CompletionResult, error) {
	return g.completeGoal(ctx, user, core.KindQuest, quest)
}

// CompleteAchievement applies the achievement's reward to the user and
// stamps the unlock time.
func (g *GameService) CompleteAchievement(ctx context.Context, user core.UserID, achievement core.GoalID) (CompletionResult, error) {
	return g.completeGoal(ctx, user, core.KindAchievement, achievement)
}

func (g *GameService) completeGoal(ctx context.Context, user core.UserID, kind core.GoalKind, id core.GoalID) (CompletionResult, error) {
	updated, goal, leveledUp, err := g.storage.ApplyReward(ctx, user, kind, id, g.policy)
	if err != nil {
		return CompletionResult{}, err
	}
	g.bus.Publish(ctx, core.NewGoalCompleted(user, goal))
	if leveledUp {
		g.bus.Publish(ctx, core.NewLevelUp(user, updated.Level))
	}
	if g.board != nil {
		g.board.SetExperience(user, updated.Experience)
	}
	return CompletionResult{User: updated, Goal: goal, LeveledUp: leveledUp, Rewards: goal.Reward}, nil
}

// SetProgress records progress against a goal and auto-completes it exactly
// once when the threshold is first crossed. This path does not grant
// rewards; claiming them stays with the completion endpoints.
func (g *GameService) SetProgress(ctx context.Context, kind core.GoalKind, id core.GoalID, progress int64) (ProgressResult, error) {
	goal, autoCompleted, err := g.storage.SetProgress(ctx, kind, id, progress)
	if err != nil {
		return ProgressResult{}, err
	}
	g.bus.Publish(ctx, core.NewProgressUpdated(goal.UserID, goal))
	if autoCompleted {
		g.bus.Publish(ctx, core.NewGoalCompleted(goal.UserID, goal))
	}
	return ProgressResult{Goal: goal, AutoCompleted: autoCompleted}, nil
}

// PatchUserStats applies a partial update to the user's numeric fields.
func (g *GameService) PatchUserStats(ctx context.Context, user core.UserID, patch core.UserPatch) (core.User, error) {
	if patch.Empty() {
		return core.User{}, errors.New("empty stats patch")
	}
	if (patch.Level != nil && *patch.Level < 1) ||
		(patch.Experience != nil && *patch.Experience < 0) ||
		(patch.Coins != nil && *patch.Coins < 0) {
		return core.User{}, errors.New("stats values out of range")
	}
	updated, err := g.storage.PatchUser(ctx, user, patch)
	if err != nil {
		return core.User{}, err
	}
	if g.board != nil {
		g.board.SetExperience(user, updated.Experience)
	}
	return updated, nil
}

// StartDailyQuest creates the stock daily quest for the user.
func (g *GameService) StartDailyQuest(ctx context.Context, user core.UserID) (core.Goal, error) {
	card := core.CardID(3)
	return g.storage.CreateGoal(ctx, core.Goal{
		UserID:      user,
		Kind:        core.KindQuest,
		Title:       "Daily Discovery",
		Description: "Find and collect 3 different green tea varieties to unlock a rare tea card.",
		Category:    "daily",
		Requirement: 3,
		Reward:      core.Reward{XP: 500, Coins: 200, CardID: &card},
	})
}

// GrantCard adds a collectible to the user's collection, incrementing the
// quantity on repeat grants.
func (g *GameService) GrantCard(ctx context.Context, user core.UserID, card core.CardID) (core.UserCard, error) {
	uc, err := g.storage.GrantCard(ctx, user, card)
	if err != nil {
		return core.UserCard{}, err
	}
	g.bus.Publish(ctx, core.NewCardGranted(user, card))
	return uc, nil
}

func (g *GameService) GetUser(ctx context.Context, user core.UserID) (core.User, error) {
	return g.storage.GetUser(ctx, user)
}

func (g *GameService) ListQuests(ctx context.Context, user core.UserID) ([]core.Goal, error) {
	return g.storage.ListGoals(ctx, user, core.KindQuest)
}

func (g *GameService) ListAchievements(ctx context.Context, user core.UserID) ([]core.Goal, error) {
	return g.storage.ListGoals(ctx, user, core.KindAchievement)
}

func (g *GameService) ListTeaCards(ctx context.Context) ([]core.TeaCard, error) {
	return g.storage.ListTeaCards(ctx)
}

func (g *GameService) ListUserCards(ctx context.Context, user core.UserID) ([]core.UserCard, error) {
	return g.storage.ListUserCards(ctx, user)
}

func (g *GameService) ListWeeklyEvents(ctx context.Context) ([]core.WeeklyEvent, error) {
	return g.storage.ListWeeklyEvents(ctx)
}

// TopPlayers returns the highest-experience players when a leaderboard is
// attached.
func (g *GameService) TopPlayers(n int) []leaderboard.Entry {
	if g.board == nil {
		return nil
	}
	return g.board.Top(n)
}

func (g *GameService) Close() { g.bus.Close() }
