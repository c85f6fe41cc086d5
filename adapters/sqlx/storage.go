package sqlx

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"teaquest/core"
)

// Driver selects the SQL dialect.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Config holds SQL connection configuration.
type Config struct {
	Driver          Driver        `json:"driver"`
	DSN             string        `json:"dsn"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// DefaultConfig returns sensible defaults for the given driver.
func DefaultConfig(driver Driver) Config {
	return Config{
		Driver:          driver,
		DSN:             "",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// Store implements engine.Storage on a relational database. Reward
// application and progress updates run inside transactions so the user row
// and the goal row commit together.
type Store struct {
	db     *sqlx.DB
	driver Driver
}

// New opens a connection pool from config and pings it.
func New(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("sql storage requires a DSN")
	}
	db, err := sqlx.Open(string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Store{db: db, driver: cfg.Driver}, nil
}

// NewWithDB wraps an existing connection (useful for testing).
func NewWithDB(db *sqlx.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver}
}

// Close closes the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func goalTable(kind core.GoalKind) (string, error) {
	switch kind {
	case core.KindQuest:
		return "quests", nil
	case core.KindAchievement:
		return "achievements", nil
	default:
		return "", fmt.Errorf("unknown goal kind %q", kind)
	}
}

type userRow struct {
	ID         int64     `db:"id"`
	Username   string    `db:"username"`
	Level      int64     `db:"level"`
	Experience int64     `db:"experience"`
	Coins      int64     `db:"coins"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r userRow) toCore() core.User {
	return core.User{
		ID:         core.UserID(r.ID),
		Username:   r.Username,
		Level:      r.Level,
		Experience: r.Experience,
		Coins:      r.Coins,
		CreatedAt:  r.CreatedAt,
	}
}

type goalRow struct {
	ID           int64          `db:"id"`
	UserID       int64          `db:"user_id"`
	Title        string         `db:"title"`
	Description  string         `db:"description"`
	Category     string         `db:"category"`
	Requirement  int64          `db:"requirement"`
	Progress     int64          `db:"progress"`
	Completed    bool           `db:"completed"`
	CompletedAt  sql.NullTime   `db:"completed_at"`
	RewardXP     int64          `db:"reward_xp"`
	RewardCoins  int64          `db:"reward_coins"`
	RewardCardID sql.NullInt64  `db:"reward_card_id"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (r goalRow) toCore(kind core.GoalKind) core.Goal {
	g := core.Goal{
		ID:          core.GoalID(r.ID),
		UserID:      core.UserID(r.UserID),
		Kind:        kind,
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Requirement: r.Requirement,
		Progress:    r.Progress,
		Completed:   r.Completed,
		Reward:      core.Reward{XP: r.RewardXP, Coins: r.RewardCoins},
		CreatedAt:   r.CreatedAt,
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		g.CompletedAt = &t
	}
	if r.RewardCardID.Valid {
		c := core.CardID(r.RewardCardID.Int64)
		g.Reward.CardID = &c
	}
	return g
}

type cardRow struct {
	ID          int64     `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Rarity      string    `db:"rarity"`
	Category    string    `db:"category"`
	Power       int64     `db:"power"`
	Strength    int64     `db:"strength"`
	Freshness   int64     `db:"freshness"`
	Aroma       int64     `db:"aroma"`
	BrewingTime int64     `db:"brewing_time"`
	BrewingTemp int64     `db:"brewing_temp"`
	Abilities   []byte    `db:"abilities"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r cardRow) toCore() core.TeaCard {
	c := core.TeaCard{
		ID:          core.CardID(r.ID),
		Name:        r.Name,
		Description: r.Description,
		Rarity:      r.Rarity,
		Category:    r.Category,
		Power:       r.Power,
		Strength:    r.Strength,
		Freshness:   r.Freshness,
		Aroma:       r.Aroma,
		BrewingTime: r.BrewingTime,
		BrewingTemp: r.BrewingTemp,
		Abilities:   []string{},
		CreatedAt:   r.CreatedAt,
	}
	if len(r.Abilities) > 0 {
		_ = json.Unmarshal(r.Abilities, &c.Abilities)
	}
	return c
}

func (s *Store) GetUser(ctx context.Context, id core.UserID) (core.User, error) {
	var row userRow
	q := s.db.Rebind(`SELECT id, username, level, experience, coins, created_at FROM users WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, q, int64(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.User{}, core.ErrUserNotFound
		}
		return core.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return row.toCore(), nil
}

func (s *Store) PatchUser(ctx context.Context, id core.UserID, patch core.UserPatch) (core.User, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return core.User{}, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row userRow
	q := tx.Rebind(`SELECT id, username, level, experience, coins, created_at FROM users WHERE id = ? FOR UPDATE`)
	if err := tx.GetContext(ctx, &row, q, int64(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.User{}, core.ErrUserNotFound
		}
		return core.User{}, fmt.Errorf("failed to read user: %w", err)
	}
	if patch.Level != nil {
		row.Level = *patch.Level
	}
	if patch.Experience != nil {
		row.Experience = *patch.Experience
	}
	if patch.Coins != nil {
		row.Coins = *patch.Coins
	}
	uq := tx.Rebind(`UPDATE users SET level = ?, experience = ?, coins = ? WHERE id = ?`)
	if _, err := tx.ExecContext(ctx, uq, row.Level, row.Experience, row.Coins, int64(id)); err != nil {
		return core.User{}, fmt.Errorf("failed to update user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.User{}, fmt.Errorf("failed to commit: %w", err)
	}
	return row.toCore(), nil
}

func (s *Store) GetGoal(ctx context.Context, kind core.GoalKind, id core.GoalID) (core.Goal, error) {
	table, err := goalTable(kind)
	if err != nil {
		return core.Goal{}, err
	}
	var row goalRow
	q := s.db.Rebind(`SELECT id, user_id, title, description, category, requirement, progress, completed, completed_at, reward_xp, reward_coins, reward_card_id, created_at FROM ` + table + ` WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, q, int64(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Goal{}, core.ErrGoalNotFound
		}
		return core.Goal{}, fmt.Errorf("failed to get goal: %w", err)
	}
	return row.toCore(kind), nil
}

func (s *Store) ListGoals(ctx context.Context, user core.UserID, kind core.GoalKind) ([]core.Goal, error) {
	table, err := goalTable(kind)
	if err != nil {
		return nil, err
	}
	var rows []goalRow
	q := s.db.Rebind(`SELECT id, user_id, title, description, category, requirement, progress, completed, completed_at, reward_xp, reward_coins, reward_card_id, created_at FROM ` + table + ` WHERE user_id = ? ORDER BY id`)
	if err := s.db.SelectContext(ctx, &rows, q, int64(user)); err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	out := make([]core.Goal, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore(kind))
	}
	return out, nil
}

func (s *Store) CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	if err := core.ValidateGoalTitle(g.Title); err != nil {
		return core.Goal{}, err
	}
	if err := core.ValidateReward(g.Reward); err != nil {
		return core.Goal{}, err
	}
	table, err := goalTable(g.Kind)
	if err != nil {
		return core.Goal{}, err
	}
	var cardID sql.NullInt64
	if g.Reward.CardID != nil {
		cardID = sql.NullInt64{Int64: int64(*g.Reward.CardID), Valid: true}
	}
	now := time.Now().UTC()
	if s.driver == DriverPostgres {
		q := s.db.Rebind(`INSERT INTO ` + table + ` (user_id, title, description, category, requirement, progress, completed, reward_xp, reward_coins, reward_card_id, created_at) VALUES (?, ?, ?, ?, ?, 0, FALSE, ?, ?, ?, ?) RETURNING id`)
		var id int64
		if err := s.db.GetContext(ctx, &id, q, int64(g.UserID), g.Title, g.Description, g.Category, g.Requirement, g.Reward.XP, g.Reward.Coins, cardID, now); err != nil {
			return core.Goal{}, fmt.Errorf("failed to create goal: %w", err)
		}
		g.ID = core.GoalID(id)
	} else {
		q := s.db.Rebind(`INSERT INTO ` + table + ` (user_id, title, description, category, requirement, progress, completed, reward_xp, reward_coins, reward_card_id, created_at) VALUES (?, ?, ?, ?, ?, 0, FALSE, ?, ?, ?, ?)`)
		res, err := s.db.ExecContext(ctx, q, int64(g.UserID), g.Title, g.Description, g.Category, g.Requirement, g.Reward.XP, g.Reward.Coins, cardID, now)
		if err != nil {
			return core.Goal{}, fmt.Errorf("failed to create goal: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return core.Goal{}, fmt.Errorf("failed to read goal id: %w", err)
		}
		g.ID = core.GoalID(id)
	}
	g.Progress = 0
	g.Completed = false
	g.CompletedAt = nil
	g.CreatedAt = now
	return g, nil
}

func (s *Store) ApplyReward(ctx context.Context, user core.UserID, kind core.GoalKind, goal core.GoalID, policy core.CompletionPolicy) (core.User, core.Goal, bool, error) {
	table, err := goalTable(kind)
	if err != nil {
		return core.User{}, core.Goal{}, false, err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return core.User{}, core.Goal{}, false, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var urow userRow
	uq := tx.Rebind(`SELECT id, username, level, experience, coins, created_at FROM users WHERE id = ? FOR UPDATE`)
	if err := tx.GetContext(ctx, &urow, uq, int64(user)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.User{}, core.Goal{}, false, core.ErrUserNotFound
		}
		return core.User{}, core.Goal{}, false, fmt.Errorf("failed to read user: %w", err)
	}

	var grow goalRow
	gq := tx.Rebind(`SELECT id, user_id, title, description, category, requirement, progress, completed, completed_at, reward_xp, reward_coins, reward_card_id, created_at FROM ` + table + ` WHERE id = ? AND user_id = ? FOR UPDATE`)
	if err := tx.GetContext(ctx, &grow, gq, int64(goal), int64(user)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.User{}, core.Goal{}, false, core.ErrGoalNotFound
		}
		return core.User{}, core.Goal{}, false, fmt.Errorf("failed to read goal: %w", err)
	}

	g := grow.toCore(kind)
	if g.Completed && !policy.AllowRecompletion {
		return core.User{}, core.Goal{}, false, core.ErrAlreadyCompleted
	}
	if policy.RequireProgress && !g.Satisfiable() {
		return core.User{}, core.Goal{}, false, core.ErrProgressUnmet
	}

	updated, leveledUp, err := core.ApplyReward(urow.toCore(), g.Reward)
	if err != nil {
		return core.User{}, core.Goal{}, false, err
	}
	now := time.Now().UTC()

	upd := tx.Rebind(`UPDATE users SET level = ?, experience = ?, coins = ? WHERE id = ?`)
	if _, err := tx.ExecContext(ctx, upd, updated.Level, updated.Experience, updated.Coins, int64(user)); err != nil {
		return core.User{}, core.Goal{}, false, fmt.Errorf("failed to update user: %w", err)
	}
	gupd := tx.Rebind(`UPDATE ` + table + ` SET completed = TRUE, completed_at = ? WHERE id = ?`)
	if _, err := tx.ExecContext(ctx, gupd, now, int64(goal)); err != nil {
		return core.User{}, core.Goal{}, false, fmt.Errorf("failed to complete goal: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.User{}, core.Goal{}, false, fmt.Errorf("failed to commit: %w", err)
	}

	g.Completed = true
	g.CompletedAt = &now
	return updated, g, leveledUp, nil
}

func (s *Store) SetProgress(ctx context.Context, kind core.GoalKind, goal core.GoalID, progress int64) (core.Goal, bool, error) {
	table, err := goalTable(kind)
	if err != nil {
		return core.Goal{}, false, err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return core.Goal{}, false, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row goalRow
	q := tx.Rebind(`SELECT id, user_id, title, description, category, requirement, progress, completed, completed_at, reward_xp, reward_coins, reward_card_id, created_at FROM ` + table + ` WHERE id = ? FOR UPDATE`)
	if err := tx.GetContext(ctx, &row, q, int64(goal)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Goal{}, false, core.ErrGoalNotFound
		}
		return core.Goal{}, false, fmt.Errorf("failed to read goal: %w", err)
	}

	g := row.toCore(kind)
	g.Progress = progress
	autoCompleted := false
	now := time.Now().UTC()
	if progress >= g.Requirement && !g.Completed {
		g.Completed = true
		g.CompletedAt = &now
		autoCompleted = true
	}

	var completedAt any
	if g.CompletedAt != nil {
		completedAt = *g.CompletedAt
	}
	uq := tx.Rebind(`UPDATE ` + table + ` SET progress = ?, completed = ?, completed_at = ? WHERE id = ?`)
	if _, err := tx.ExecContext(ctx, uq, g.Progress, g.Completed, completedAt, int64(goal)); err != nil {
		return core.Goal{}, false, fmt.Errorf("failed to update progress: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Goal{}, false, fmt.Errorf("failed to commit: %w", err)
	}
	return g, autoCompleted, nil
}

func (s *Store) ListTeaCards(ctx context.Context) ([]core.TeaCard, error) {
	var rows []cardRow
	q := `SELECT id, name, description, rarity, category, power, strength, freshness, aroma, brewing_time, brewing_temp, abilities, created_at FROM tea_cards ORDER BY id`
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("failed to list tea cards: %w", err)
	}
	out := make([]core.TeaCard, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

func (s *Store) GetTeaCard(ctx context.Context, id core.CardID) (core.TeaCard, error) {
	var row cardRow
	q := s.db.Rebind(`SELECT id, name, description, rarity, category, power, strength, freshness, aroma, brewing_time, brewing_temp, abilities, created_at FROM tea_cards WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, q, int64(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.TeaCard{}, core.ErrCardNotFound
		}
		return core.TeaCard{}, fmt.Errorf("failed to get tea card: %w", err)
	}
	return row.toCore(), nil
}

func (s *Store) ListUserCards(ctx context.Context, user core.UserID) ([]core.UserCard, error) {
	type ucRow struct {
		ID         int64     `db:"id"`
		UserID     int64     `db:"user_id"`
		CardID     int64     `db:"card_id"`
		Quantity   int64     `db:"quantity"`
		ObtainedAt time.Time `db:"obtained_at"`
	}
	var rows []ucRow
	q := s.db.Rebind(`SELECT id, user_id, card_id, quantity, obtained_at FROM user_cards WHERE user_id = ? ORDER BY id`)
	if err := s.db.SelectContext(ctx, &rows, q, int64(user)); err != nil {
		return nil, fmt.Errorf("failed to list user cards: %w", err)
	}
	out := make([]core.UserCard, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.UserCard{
			ID:         r.ID,
			UserID:     core.UserID(r.UserID),
			CardID:     core.CardID(r.CardID),
			Quantity:   r.Quantity,
			ObtainedAt: r.ObtainedAt,
		})
	}
	return out, nil
}

func (s *Store) GrantCard(ctx context.Context, user core.UserID, card core.CardID) (core.UserCard, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return core.UserCard{}, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	eq := tx.Rebind(`SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`)
	if err := tx.GetContext(ctx, &exists, eq, int64(user)); err != nil {
		return core.UserCard{}, fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return core.UserCard{}, core.ErrUserNotFound
	}
	cq := tx.Rebind(`SELECT EXISTS(SELECT 1 FROM tea_cards WHERE id = ?)`)
	if err := tx.GetContext(ctx, &exists, cq, int64(card)); err != nil {
		return core.UserCard{}, fmt.Errorf("failed to check card: %w", err)
	}
	if !exists {
		return core.UserCard{}, core.ErrCardNotFound
	}

	var uc core.UserCard
	var row struct {
		ID       int64 `db:"id"`
		Quantity int64 `db:"quantity"`
	}
	sq := tx.Rebind(`SELECT id, quantity FROM user_cards WHERE user_id = ? AND card_id = ? FOR UPDATE`)
	err = tx.GetContext(ctx, &row, sq, int64(user), int64(card))
	switch {
	case err == nil:
		upd := tx.Rebind(`UPDATE user_cards SET quantity = quantity + 1 WHERE id = ?`)
		if _, err := tx.ExecContext(ctx, upd, row.ID); err != nil {
			return core.UserCard{}, fmt.Errorf("failed to increment card: %w", err)
		}
		uc = core.UserCard{ID: row.ID, UserID: user, CardID: card, Quantity: row.Quantity + 1}
	case errors.Is(err, sql.ErrNoRows):
		now := time.Now().UTC()
		if s.driver == DriverPostgres {
			iq := tx.Rebind(`INSERT INTO user_cards (user_id, card_id, quantity, obtained_at) VALUES (?, ?, 1, ?) RETURNING id`)
			var id int64
			if err := tx.GetContext(ctx, &id, iq, int64(user), int64(card), now); err != nil {
				return core.UserCard{}, fmt.Errorf("failed to insert card: %w", err)
			}
			uc = core.UserCard{ID: id, UserID: user, CardID: card, Quantity: 1, ObtainedAt: now}
		} else {
			iq := tx.Rebind(`INSERT INTO user_cards (user_id, card_id, quantity, obtained_at) VALUES (?, ?, 1, ?)`)
			res, err := tx.ExecContext(ctx, iq, int64(user), int64(card), now)
			if err != nil {
				return core.UserCard{}, fmt.Errorf("failed to insert card: %w", err)
			}
			id, _ := res.LastInsertId()
			uc = core.UserCard{ID: id, UserID: user, CardID: card, Quantity: 1, ObtainedAt: now}
		}
	default:
		return core.UserCard{}, fmt.Errorf("failed to read user card: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.UserCard{}, fmt.Errorf("failed to commit: %w", err)
	}
	return uc, nil
}

func (s *Store) ListWeeklyEvents(ctx context.Context) ([]core.WeeklyEvent, error) {
	type evRow struct {
		ID          int64  `db:"id"`
		Title       string `db:"title"`
		Description string `db:"description"`
		EventType   string `db:"event_type"`
		DayOfWeek   string `db:"day_of_week"`
		StartTime   string `db:"start_time"`
		EndTime     string `db:"end_time"`
		Cost        int64  `db:"cost"`
		Active      bool   `db:"active"`
	}
	var rows []evRow
	q := `SELECT id, title, description, event_type, day_of_week, start_time, end_time, cost, active FROM weekly_events WHERE active ORDER BY id`
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("failed to list weekly events: %w", err)
	}
	out := make([]core.WeeklyEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.WeeklyEvent{
			ID:          r.ID,
			Title:       r.Title,
			Description: r.Description,
			EventType:   r.EventType,
			DayOfWeek:   r.DayOfWeek,
			StartTime:   r.StartTime,
			EndTime:     r.EndTime,
			Cost:        r.Cost,
			Active:      r.Active,
		})
	}
	return out, nil
}
