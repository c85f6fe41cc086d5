package core

import "time"

// EventType enumerates domain events.
type EventType string

const (
	EventQuestCompleted      EventType = "quest_completed"
	EventAchievementUnlocked EventType = "achievement_unlocked"
	EventProgressUpdated     EventType = "progress_updated"
	EventLevelUp             EventType = "level_up"
	EventCardGranted         EventType = "card_granted"
)

// Event represents an immutable domain event.
type Event struct {
	Type     EventType      `json:"type"`
	Time     time.Time      `json:"time"`
	UserID   UserID         `json:"user_id"`
	GoalID   GoalID         `json:"goal_id,omitempty"`
	Kind     GoalKind       `json:"kind,omitempty"`
	Reward   Reward         `json:"reward,omitempty"`
	Progress int64          `json:"progress,omitempty"`
	Level    int64          `json:"level,omitempty"`
	CardID   CardID         `json:"card_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func NewGoalCompleted(user UserID, g Goal) Event {
	typ := EventQuestCompleted
	if g.Kind == KindAchievement {
		typ = EventAchievementUnlocked
	}
	return Event{Type: typ, Time: time.Now().UTC(), UserID: user, GoalID: g.ID, Kind: g.Kind, Reward: g.Reward}
}

func NewProgressUpdated(user UserID, g Goal) Event {
	return Event{Type: EventProgressUpdated, Time: time.Now().UTC(), UserID: user, GoalID: g.ID, Kind: g.Kind, Progress: g.Progress}
}

func NewLevelUp(user UserID, level int64) Event {
	return Event{Type: EventLevelUp, Time: time.Now().UTC(), UserID: user, Level: level}
}

func NewCardGranted(user UserID, card CardID) Event {
	return Event{Type: EventCardGranted, Time: time.Now().UTC(), UserID: user, CardID: card}
}
