package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"teaquest/core"
)

type goalKey struct {
	kind core.GoalKind
	id   core.GoalID
}

// Store is a concurrent in-memory Storage implementation. A single mutex
// guards all tables so that the user write and the goal write of a reward
// application commit as one unit.
type Store struct {
	mu        sync.RWMutex
	users     map[core.UserID]core.User
	goals     map[goalKey]core.Goal
	cards     map[core.CardID]core.TeaCard
	userCards map[int64]core.UserCard
	events    map[int64]core.WeeklyEvent
	nextID    int64
}

func New() *Store {
	return &Store{
		users:     map[core.UserID]core.User{},
		goals:     map[goalKey]core.Goal{},
		cards:     map[core.CardID]core.TeaCard{},
		userCards: map[int64]core.UserCard{},
		events:    map[int64]core.WeeklyEvent{},
		nextID:    100, // seed data occupies the low ids
	}
}

func (s *Store) GetUser(_ context.Context, id core.UserID) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) PatchUser(_ context.Context, id core.UserID, patch core.UserPatch) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrUserNotFound
	}
	if patch.Level != nil {
		u.Level = *patch.Level
	}
	if patch.Experience != nil {
		u.Experience = *patch.Experience
	}
	if patch.Coins != nil {
		u.Coins = *patch.Coins
	}
	s.users[id] = u
	return u, nil
}

func (s *Store) GetGoal(_ context.Context, kind core.GoalKind, id core.GoalID) (core.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals[goalKey{kind, id}]
	if !ok {
		return core.Goal{}, core.ErrGoalNotFound
	}
	return g, nil
}

func (s *Store) ListGoals(_ context.Context, user core.UserID, kind core.GoalKind) ([]core.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Goal, 0)
	for k, g := range s.goals {
		if k.kind == kind && g.UserID == user {
			out = append(out, g)
		}
	}
	// stable ordering is nice for UI/tests
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateGoal(_ context.Context, g core.Goal) (core.Goal, error) {
	if err := core.ValidateGoalTitle(g.Title); err != nil {
		return core.Goal{}, err
	}
	if err := core.ValidateReward(g.Reward); err != nil {
		return core.Goal{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[g.UserID]; !ok {
		return core.Goal{}, core.ErrUserNotFound
	}
	s.nextID++
	g.ID = core.GoalID(s.nextID)
	g.Progress = 0
	g.Completed = false
	g.CompletedAt = nil
	g.CreatedAt = time.Now().UTC()
	s.goals[goalKey{g.Kind, g.ID}] = g
	return g, nil
}

func (s *Store) ApplyReward(_ context.Context, user core.UserID, kind core.GoalKind, goal core.GoalID, opts core.CompletionPolicy) (core.User, core.Goal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[user]
	if !ok {
		return core.User{}, core.Goal{}, false, core.ErrUserNotFound
	}
	g, ok := s.goals[goalKey{kind, goal}]
	if !ok || g.UserID != user {
		return core.User{}, core.Goal{}, false, core.ErrGoalNotFound
	}
	if g.Completed && !opts.AllowRecompletion {
		return core.User{}, core.Goal{}, false, core.ErrAlreadyCompleted
	}
	if opts.RequireProgress && !g.Satisfiable() {
		return core.User{}, core.Goal{}, false, core.ErrProgressUnmet
	}
	updated, leveledUp, err := core.ApplyReward(u, g.Reward)
	if err != nil {
		return core.User{}, core.Goal{}, false, err
	}
	now := time.Now().UTC()
	g.Completed = true
	g.CompletedAt = &now
	s.users[user] = updated
	s.goals[goalKey{kind, goal}] = g
	return updated, g, leveledUp, nil
}

func (s *Store) SetProgress(_ context.Context, kind core.GoalKind, goal core.GoalID, progress int64) (core.Goal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[goalKey{kind, goal}]
	if !ok {
		return core.Goal{}, false, core.ErrGoalNotFound
	}
	g.Progress = progress
	autoCompleted := false
	if progress >= g.Requirement && !g.Completed {
		now := time.Now().UTC()
		g.Completed = true
		g.CompletedAt = &now
		autoCompleted = true
	}
	s.goals[goalKey{kind, goal}] = g
	return g, autoCompleted, nil
}

func (s *Store) ListTeaCards(_ context.Context) ([]core.TeaCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.TeaCard, 0, len(s.cards))
	for _, c := range s.cards {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetTeaCard(_ context.Context, id core.CardID) (core.TeaCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cards[id]
	if !ok {
		return core.TeaCard{}, core.ErrCardNotFound
	}
	return c, nil
}

func (s *Store) ListUserCards(_ context.Context, user core.UserID) ([]core.UserCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.UserCard, 0)
	for _, uc := range s.userCards {
		if uc.UserID == user {
			out = append(out, uc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GrantCard(_ context.Context, user core.UserID, card core.CardID) (core.UserCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user]; !ok {
		return core.UserCard{}, core.ErrUserNotFound
	}
	if _, ok := s.cards[card]; !ok {
		return core.UserCard{}, core.ErrCardNotFound
	}
	for id, uc := range s.userCards {
		if uc.UserID == user && uc.CardID == card {
			uc.Quantity++
			s.userCards[id] = uc
			return uc, nil
		}
	}
	s.nextID++
	uc := core.UserCard{
		ID:         s.nextID,
		UserID:     user,
		CardID:     card,
		Quantity:   1,
		ObtainedAt: time.Now().UTC(),
	}
	s.userCards[uc.ID] = uc
	return uc, nil
}

func (s *Store) ListWeeklyEvents(_ context.Context) ([]core.WeeklyEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.WeeklyEvent, 0, len(s.events))
	for _, e := range s.events {
		if e.Active {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
