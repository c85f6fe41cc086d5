package engine

import (
	"context"

	"teaquest/core"
)

// Storage abstracts persistence for the tea-collecting domain. ApplyReward
// and SetProgress are atomic: the user write and the goal write commit
// together or not at all, and concurrent calls for the same user must not
// lose updates.
type Storage interface {
	GetUser(ctx context.Context, id core.UserID) (core.User, error)
	PatchUser(ctx context.Context, id core.UserID, patch core.UserPatch) (core.User, error)

	GetGoal(ctx context.Context, kind core.GoalKind, id core.GoalID) (core.Goal, error)
	ListGoals(ctx context.Context, user core.UserID, kind core.GoalKind) ([]core.Goal, error)
	CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error)

	// ApplyReward folds the goal's reward into the user, recomputes the
	// level, and marks the goal completed. Returns the updated rows and
	// whether the level increased.
	ApplyReward(ctx context.Context, user core.UserID, kind core.GoalKind, goal core.GoalID, policy core.CompletionPolicy) (core.User, core.Goal, bool, error)

	// SetProgress writes the progress counter and flips Completed exactly
	// once when the threshold is first crossed. Completed never reverts.
	SetProgress(ctx context.Context, kind core.GoalKind, goal core.GoalID, progress int64) (core.Goal, bool, error)

	ListTeaCards(ctx context.Context) ([]core.TeaCard, error)
	GetTeaCard(ctx context.Context, id core.CardID) (core.TeaCard, error)
	ListUserCards(ctx context.Context, user core.UserID) ([]core.UserCard, error)
	GrantCard(ctx context.Context, user core.UserID, card core.CardID) (core.UserCard, error)

	ListWeeklyEvents(ctx context.Context) ([]core.WeeklyEvent, error)
}
