package analytics

import (
	"testing"
	"time"

	"teaquest/core"
)

func TestDAUCountsUniqueUsers(t *testing.T) {
	d := NewDAU()
	now := time.Now().UTC()
	d.OnEvent(core.Event{Type: core.EventQuestCompleted, Time: now, UserID: 1})
	d.OnEvent(core.Event{Type: core.EventLevelUp, Time: now, UserID: 1})
	d.OnEvent(core.Event{Type: core.EventQuestCompleted, Time: now, UserID: 2})

	if got := d.Count(Day(now)); got != 2 {
		t.Fatalf("want 2 active users, got %d", got)
	}
}

func TestProgressionMetrics(t *testing.T) {
	pm := NewProgressionMetrics()
	now := time.Now().UTC()
	day := Day(now)

	pm.OnEvent(core.Event{Type: core.EventQuestCompleted, Time: now, UserID: 1, Reward: core.Reward{XP: 500, Coins: 200}})
	pm.OnEvent(core.Event{Type: core.EventAchievementUnlocked, Time: now, UserID: 1, Reward: core.Reward{XP: 750, Coins: 300}})
	pm.OnEvent(core.Event{Type: core.EventLevelUp, Time: now, UserID: 1, Level: 10})
	pm.OnEvent(core.Event{Type: core.EventCardGranted, Time: now, UserID: 1, CardID: 3})

	if pm.QuestsCompleted(day) != 1 || pm.AchievementsUnlocked(day) != 1 {
		t.Fatal("completion counters wrong")
	}
	if pm.LevelUps(day) != 1 || pm.LevelReachedCount(10) != 1 {
		t.Fatal("level counters wrong")
	}
	if pm.CardsGranted(day) != 1 {
		t.Fatal("card counter wrong")
	}
	xp, coins := pm.RewardTotals()
	if xp != 1250 || coins != 500 {
		t.Fatalf("reward totals wrong: %d xp %d coins", xp, coins)
	}
}

func TestBridgeFansOut(t *testing.T) {
	a := NewDAU()
	b := NewProgressionMetrics()
	bridge := NewBridge(a, b)

	now := time.Now().UTC()
	bridge.OnEvent(core.Event{Type: core.EventQuestCompleted, Time: now, UserID: 7})

	if a.Count(Day(now)) != 1 {
		t.Fatal("DAU hook missed event")
	}
	if b.QuestsCompleted(Day(now)) != 1 {
		t.Fatal("metrics hook missed event")
	}
}
