package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

// UserID identifies a player row in the users table.
type UserID int64

// GoalID identifies a quest or achievement row.
type GoalID int64

// CardID identifies a tea card in the reference catalogue.
type CardID int64

// GoalKind distinguishes the two goal tables. Quests and achievements share
// the progress/requirement/reward shape and differ only in where they live.
type GoalKind string

const (
	KindQuest       GoalKind = "quest"
	KindAchievement GoalKind = "achievement"
)

// ExperiencePerLevel is the flat XP cost of each level.
const ExperiencePerLevel = 1000

// User is the player's numeric account state.
type User struct {
	ID         UserID    `json:"id"`
	Username   string    `json:"username"`
	Level      int64     `json:"level"`
	Experience int64     `json:"experience"`
	Coins      int64     `json:"coins"`
	CreatedAt  time.Time `json:"created_at"`
}

// Reward is the payload granted when a goal completes. CardID, when set,
// references a collectible for the caller to grant; completion itself only
// echoes it back.
type Reward struct {
	XP     int64   `json:"xp"`
	Coins  int64   `json:"coins"`
	CardID *CardID `json:"cardId,omitempty"`
}

// Goal is a quest or achievement instance owned by a user.
// Completed is monotonic: once true it never reverts.
type Goal struct {
	ID          GoalID     `json:"id"`
	UserID      UserID     `json:"user_id"`
	Kind        GoalKind   `json:"kind"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"` // daily/weekly/special for quests; collection/quests/events/levels for achievements
	Requirement int64      `json:"requirement"`
	Progress    int64      `json:"progress"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Reward      Reward     `json:"reward"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Satisfiable reports whether progress has reached the requirement.
func (g Goal) Satisfiable() bool { return g.Progress >= g.Requirement }

// TeaCard is flat reference data describing a collectible tea.
type TeaCard struct {
	ID          CardID    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Rarity      string    `json:"rarity"`   // common, uncommon, rare, epic, legendary
	Category    string    `json:"category"` // green, black, oolong, white, herbal
	Power       int64     `json:"power"`
	Strength    int64     `json:"strength"`
	Freshness   int64     `json:"freshness"`
	Aroma       int64     `json:"aroma"`
	BrewingTime int64     `json:"brewing_time"`
	BrewingTemp int64     `json:"brewing_temp"`
	Abilities   []string  `json:"abilities"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserCard links a user to a collected tea card with a quantity.
type UserCard struct {
	ID         int64     `json:"id"`
	UserID     UserID    `json:"user_id"`
	CardID     CardID    `json:"card_id"`
	Quantity   int64     `json:"quantity"`
	ObtainedAt time.Time `json:"obtained_at"`
}

// WeeklyEvent is display-only schedule data with no lifecycle logic.
type WeeklyEvent struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	EventType   string `json:"event_type"` // free, registration, paid
	DayOfWeek   string `json:"day_of_week"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Cost        int64  `json:"cost"`
	Active      bool   `json:"active"`
}

// UserPatch is a partial update of the user's numeric stats. Nil fields are
// left untouched.
type UserPatch struct {
	Level      *int64 `json:"level,omitempty"`
	Experience *int64 `json:"experience,omitempty"`
	Coins      *int64 `json:"coins,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.Level == nil && p.Experience == nil && p.Coins == nil
}

// CompletionPolicy decides how goal completion treats the two ambiguous
// behaviors of the completion path: whether progress must have reached the
// requirement, and whether a completed goal can be claimed again. Storage
// adapters enforce it inside the same atomic section that performs the
// writes.
type CompletionPolicy struct {
	// RequireProgress rejects completion while progress < requirement.
	RequireProgress bool
	// AllowRecompletion permits re-applying the reward of an already
	// completed goal. Off by default to close the replay hazard.
	AllowRecompletion bool
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, errors.New("integer overflow in AddSafe")
	}
	return base + delta, nil
}

// LevelFor computes the level implied by a total experience value:
// level = floor(experience / 1000) + 1, never below 1.
func LevelFor(experience int64) int64 {
	if experience <= 0 {
		return 1
	}
	return experience/ExperiencePerLevel + 1
}

// ApplyReward returns the user with the reward folded in and the level
// recomputed from total experience. The boolean reports whether the level
// increased. Missing fields default to zero experience/coins and level 1
// before the deltas apply.
func ApplyReward(u User, r Reward) (User, bool, error) {
	if err := ValidateReward(r); err != nil {
		return User{}, false, err
	}
	currentLevel := u.Level
	if currentLevel < 1 {
		currentLevel = 1
	}
	if u.Experience < 0 {
		u.Experience = 0
	}
	if u.Coins < 0 {
		u.Coins = 0
	}
	newXP, err := AddSafe(u.Experience, r.XP)
	if err != nil {
		return User{}, false, err
	}
	newCoins, err := AddSafe(u.Coins, r.Coins)
	if err != nil {
		return User{}, false, err
	}
	u.Experience = newXP
	u.Coins = newCoins
	u.Level = LevelFor(newXP)
	return u, u.Level > currentLevel, nil
}

// ValidateReward checks the invariants a stored reward must hold.
func ValidateReward(r Reward) error {
	if r.XP < 0 {
		return errors.New("reward xp must be non-negative")
	}
	if r.Coins < 0 {
		return errors.New("reward coins must be non-negative")
	}
	return nil
}

// ValidateGoalTitle ensures a non-empty, reasonably sized title.
func ValidateGoalTitle(title string) error {
	s := strings.TrimSpace(title)
	if s == "" {
		return errors.New("empty goal title")
	}
	if len(s) > 255 {
		return errors.New("goal title too long")
	}
	return nil
}
