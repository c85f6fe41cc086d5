package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"teaquest/core"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Store implements the engine.Storage interface using Redis as the backend.
// Data structure:
// - user:{id}                  -> JSON user record
// - goal:{kind}:{id}           -> JSON goal record
// - user:{id}:goals:{kind}     -> set of goal ids
// - card:{id}                  -> JSON tea card
// - cards:index                -> set of card ids
// - user:{id}:cards            -> hash card_id -> JSON user card
// - weekly_events              -> JSON array of events
// - seq:id                     -> id counter
//
// Multi-key updates (reward application, progress, card grants) run inside
// WATCH/MULTI transactions and retry on contention, so the user write and
// the goal write commit as one unit.
type Store struct {
	client *redis.Client
}

const txRetries = 8

// New creates a new Redis-backed storage with the provided configuration
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func userKey(id core.UserID) string { return fmt.Sprintf("user:%d", id) }
func goalKey(k core.GoalKind, id core.GoalID) string {
	return fmt.Sprintf("goal:%s:%d", k, id)
}
func userGoalsKey(u core.UserID, k core.GoalKind) string {
	return fmt.Sprintf("user:%d:goals:%s", u, k)
}
func cardKey(id core.CardID) string     { return fmt.Sprintf("card:%d", id) }
func userCardsKey(u core.UserID) string { return fmt.Sprintf("user:%d:cards", u) }

const (
	cardsIndexKey   = "cards:index"
	weeklyEventsKey = "weekly_events"
	seqKey          = "seq:id"
)

func getJSON(ctx context.Context, c redis.Cmdable, key string, dst any) error {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func setJSON(ctx context.Context, c redis.Cmdable, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, 0).Err()
}

// watch runs txf under WATCH on the given keys, retrying on contention.
func (s *Store) watch(ctx context.Context, txf func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < txRetries; i++ {
		err := s.client.Watch(ctx, txf, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return errors.New("redis transaction contention, retries exhausted")
}

// PutUser writes a user record directly. Used for seeding.
func (s *Store) PutUser(ctx context.Context, u core.User) error {
	return setJSON(ctx, s.client, userKey(u.ID), u)
}

// PutGoal writes a goal record directly and indexes it. Used for seeding.
func (s *Store) PutGoal(ctx context.Context, g core.Goal) error {
	if err := setJSON(ctx, s.client, goalKey(g.Kind, g.ID), g); err != nil {
		return err
	}
	return s.client.SAdd(ctx, userGoalsKey(g.UserID, g.Kind), int64(g.ID)).Err()
}

// PutTeaCard writes a catalogue card directly and indexes it. Used for seeding.
func (s *Store) PutTeaCard(ctx context.Context, c core.TeaCard) error {
	if err := setJSON(ctx, s.client, cardKey(c.ID), c); err != nil {
		return err
	}
	return s.client.SAdd(ctx, cardsIndexKey, int64(c.ID)).Err()
}

// PutWeeklyEvents replaces the weekly event schedule. Used for seeding.
func (s *Store) PutWeeklyEvents(ctx context.Context, events []core.WeeklyEvent) error {
	return setJSON(ctx, s.client, weeklyEventsKey, events)
}

func (s *Store) GetUser(ctx context.Context, id core.UserID) (core.User, error) {
	var u core.User
	if err := getJSON(ctx, s.client, userKey(id), &u); err != nil {
		if errors.Is(err, redis.Nil) {
			return core.User{}, core.ErrUserNotFound
		}
		return core.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (s *Store) PatchUser(ctx context.Context, id core.UserID, patch core.UserPatch) (core.User, error) {
	var out core.User
	key := userKey(id)
	txf := func(tx *redis.Tx) error {
		var u core.User
		if err := getJSON(ctx, tx, key, &u); err != nil {
			if errors.Is(err, redis.Nil) {
				return core.ErrUserNotFound
			}
			return err
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
		out = u
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			data, err := json.Marshal(u)
			if err != nil {
				return err
			}
			return pipe.Set(ctx, key, data, 0).Err()
		})
		return err
	}
	if err := s.watch(ctx, txf, key); err != nil {
		return core.User{}, err
	}
	return out, nil
}

func (s *Store) GetGoal(ctx context.Context, kind core.GoalKind, id core.GoalID) (core.Goal, error) {
	var g core.Goal
	if err := getJSON(ctx, s.client, goalKey(kind, id), &g); err != nil {
		if errors.Is(err, redis.Nil) {
			return core.Goal{}, core.ErrGoalNotFound
		}
		return core.Goal{}, fmt.Errorf("failed to get goal: %w", err)
	}
	return g, nil
}

func (s *Store) ListGoals(ctx context.Context, user core.UserID, kind core.GoalKind) ([]core.Goal, error) {
	ids, err := s.client.SMembers(ctx, userGoalsKey(user, kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list goal ids: %w", err)
	}
	out := make([]core.Goal, 0, len(ids))
	for _, raw := range ids {
		var g core.Goal
		if err := getJSON(ctx, s.client, fmt.Sprintf("goal:%s:%s", kind, raw), &g); err != nil {
			if errors.Is(err, redis.Nil) {
				continue // index entry for a deleted goal
			}
			return nil, fmt.Errorf("failed to read goal: %w", err)
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	if err := core.ValidateGoalTitle(g.Title); err != nil {
		return core.Goal{}, err
	}
	if err := core.ValidateReward(g.Reward); err != nil {
		return core.Goal{}, err
	}
	exists, err := s.client.Exists(ctx, userKey(g.UserID)).Result()
	if err != nil {
		return core.Goal{}, fmt.Errorf("failed to check user: %w", err)
	}
	if exists == 0 {
		return core.Goal{}, core.ErrUserNotFound
	}
	id, err := s.client.IncrBy(ctx, seqKey, 1).Result()
	if err != nil {
		return core.Goal{}, fmt.Errorf("failed to allocate id: %w", err)
	}
	g.ID = core.GoalID(id + 100) // seed data occupies the low ids
	g.Progress = 0
	g.Completed = false
	g.CompletedAt = nil
	g.CreatedAt = time.Now().UTC()
	if err := s.PutGoal(ctx, g); err != nil {
		return core.Goal{}, fmt.Errorf("failed to store goal: %w", err)
	}
	return g, nil
}

func (s *Store) ApplyReward(ctx context.Context, user core.UserID, kind core.GoalKind, goal core.GoalID, policy core.CompletionPolicy) (core.User, core.Goal, bool, error) {
	ukey := userKey(user)
	gkey := goalKey(kind, goal)
	var outU core.User
	var outG core.Goal
	var leveledUp bool

	txf := func(tx *redis.Tx) error {
		var u core.User
		if err := getJSON(ctx, tx, ukey, &u); err != nil {
			if errors.Is(err, redis.Nil) {
				return core.ErrUserNotFound
			}
			return err
		}
		var g core.Goal
		if err := getJSON(ctx, tx, gkey, &g); err != nil {
			if errors.Is(err, redis.Nil) {
				return core.ErrGoalNotFound
			}
			return err
		}
		if g.UserID != user {
			return core.ErrGoalNotFound
		}
		if g.Completed && !policy.AllowRecompletion {
			return core.ErrAlreadyCompleted
		}
		if policy.RequireProgress && !g.Satisfiable() {
			return core.ErrProgressUnmet
		}
		updated, lvl, err := core.ApplyReward(u, g.Reward)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		g.Completed = true
		g.CompletedAt = &now

		udata, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		gdata, err := json.Marshal(g)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, ukey, udata, 0)
			pipe.Set(ctx, gkey, gdata, 0)
			return nil
		})
		if err != nil {
			return err
		}
		outU, outG, leveledUp = updated, g, lvl
		return nil
	}
	if err := s.watch(ctx, txf, ukey, gkey); err != nil {
		return core.User{}, core.Goal{}, false, err
	}
	return outU, outG, leveledUp, nil
}

func (s *Store) SetProgress(ctx context.Context, kind core.GoalKind, goal core.GoalID, progress int64) (core.Goal, bool, error) {
	gkey := goalKey(kind, goal)
	var out core.Goal
	var autoCompleted bool

	txf := func(tx *redis.Tx) error {
		var g core.Goal
		if err := getJSON(ctx, tx, gkey, &g); err != nil {
			if errors.Is(err, redis.Nil) {
				return core.ErrGoalNotFound
			}
			return err
		}
		g.Progress = progress
		autoCompleted = false
		if progress >= g.Requirement && !g.Completed {
			now := time.Now().UTC()
			g.Completed = true
			g.CompletedAt = &now
			autoCompleted = true
		}
		data, err := json.Marshal(g)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return pipe.Set(ctx, gkey, data, 0).Err()
		})
		if err != nil {
			return err
		}
		out = g
		return nil
	}
	if err := s.watch(ctx, txf, gkey); err != nil {
		return core.Goal{}, false, err
	}
	return out, autoCompleted, nil
}

func (s *Store) ListTeaCards(ctx context.Context) ([]core.TeaCard, error) {
	ids, err := s.client.SMembers(ctx, cardsIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list card ids: %w", err)
	}
	out := make([]core.TeaCard, 0, len(ids))
	for _, raw := range ids {
		var c core.TeaCard
		if err := getJSON(ctx, s.client, "card:"+raw, &c); err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("failed to read card: %w", err)
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetTeaCard(ctx context.Context, id core.CardID) (core.TeaCard, error) {
	var c core.TeaCard
	if err := getJSON(ctx, s.client, cardKey(id), &c); err != nil {
		if errors.Is(err, redis.Nil) {
			return core.TeaCard{}, core.ErrCardNotFound
		}
		return core.TeaCard{}, fmt.Errorf("failed to get card: %w", err)
	}
	return c, nil
}

func (s *Store) ListUserCards(ctx context.Context, user core.UserID) ([]core.UserCard, error) {
	fields, err := s.client.HGetAll(ctx, userCardsKey(user)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list user cards: %w", err)
	}
	out := make([]core.UserCard, 0, len(fields))
	for _, raw := range fields {
		var uc core.UserCard
		if err := json.Unmarshal([]byte(raw), &uc); err != nil {
			return nil, fmt.Errorf("failed to decode user card: %w", err)
		}
		out = append(out, uc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CardID < out[j].CardID })
	return out, nil
}

func (s *Store) GrantCard(ctx context.Context, user core.UserID, card core.CardID) (core.UserCard, error) {
	hkey := userCardsKey(user)
	field := fmt.Sprintf("%d", card)
	var out core.UserCard

	txf := func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, userKey(user)).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return core.ErrUserNotFound
		}
		exists, err = tx.Exists(ctx, cardKey(card)).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return core.ErrCardNotFound
		}

		raw, err := tx.HGet(ctx, hkey, field).Result()
		switch {
		case err == nil:
			if err := json.Unmarshal([]byte(raw), &out); err != nil {
				return err
			}
			out.Quantity++
		case errors.Is(err, redis.Nil):
			id, err := tx.IncrBy(ctx, seqKey, 1).Result()
			if err != nil {
				return err
			}
			out = core.UserCard{
				ID:         id + 100,
				UserID:     user,
				CardID:     card,
				Quantity:   1,
				ObtainedAt: time.Now().UTC(),
			}
		default:
			return err
		}

		data, err := json.Marshal(out)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return pipe.HSet(ctx, hkey, field, data).Err()
		})
		return err
	}
	if err := s.watch(ctx, txf, hkey); err != nil {
		return core.UserCard{}, err
	}
	return out, nil
}

func (s *Store) ListWeeklyEvents(ctx context.Context) ([]core.WeeklyEvent, error) {
	var events []core.WeeklyEvent
	if err := getJSON(ctx, s.client, weeklyEventsKey, &events); err != nil {
		if errors.Is(err, redis.Nil) {
			return []core.WeeklyEvent{}, nil
		}
		return nil, fmt.Errorf("failed to list weekly events: %w", err)
	}
	out := make([]core.WeeklyEvent, 0, len(events))
	for _, e := range events {
		if e.Active {
			out = append(out, e)
		}
	}
	return out, nil
}
