package analytics

import (
	"sync"
	"time"

	"teaquest/core"
)

// Hook receives game events for KPI aggregation.
type Hook interface {
	OnEvent(e core.Event)
}

// DAU tracks daily active players.
type DAU struct {
	mu   sync.Mutex
	days map[string]map[core.UserID]struct{}
}

func NewDAU() *DAU { return &DAU{days: map[string]map[core.UserID]struct{}{}} }

func (d *DAU) OnEvent(e core.Event) {
	day := e.Time.UTC().Format("2006-01-02")
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.days[day]
	if m == nil {
		m = map[core.UserID]struct{}{}
		d.days[day] = m
	}
	m[e.UserID] = struct{}{}
}

func (d *DAU) Count(day string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.days[day])
}

// ProgressionMetrics aggregates completion and reward counters by day.
type ProgressionMetrics struct {
	mu sync.RWMutex

	questsCompletedByDay      map[string]int64
	achievementsUnlockedByDay map[string]int64
	levelUpsByDay             map[string]int64
	cardsGrantedByDay         map[string]int64

	xpGranted    int64
	coinsGranted int64

	levelDistribution map[int64]int // level reached -> count
}

func NewProgressionMetrics() *ProgressionMetrics {
	return &ProgressionMetrics{
		questsCompletedByDay:      make(map[string]int64),
		achievementsUnlockedByDay: make(map[string]int64),
		levelUpsByDay:             make(map[string]int64),
		cardsGrantedByDay:         make(map[string]int64),
		levelDistribution:         make(map[int64]int),
	}
}

func (pm *ProgressionMetrics) OnEvent(e core.Event) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	day := e.Time.UTC().Format("2006-01-02")
	switch e.Type {
	case core.EventQuestCompleted:
		pm.questsCompletedByDay[day]++
		pm.xpGranted += e.Reward.XP
		pm.coinsGranted += e.Reward.Coins
	case core.EventAchievementUnlocked:
		pm.achievementsUnlockedByDay[day]++
		pm.xpGranted += e.Reward.XP
		pm.coinsGranted += e.Reward.Coins
	case core.EventLevelUp:
		pm.levelUpsByDay[day]++
		pm.levelDistribution[e.Level]++
	case core.EventCardGranted:
		pm.cardsGrantedByDay[day]++
	}
}

func (pm *ProgressionMetrics) QuestsCompleted(day string) int64 {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.questsCompletedByDay[day]
}

func (pm *ProgressionMetrics) AchievementsUnlocked(day string) int64 {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.achievementsUnlockedByDay[day]
}

func (pm *ProgressionMetrics) LevelUps(day string) int64 {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.levelUpsByDay[day]
}

func (pm *ProgressionMetrics) CardsGranted(day string) int64 {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.cardsGrantedByDay[day]
}

// RewardTotals returns the lifetime XP and coins granted through completions.
func (pm *ProgressionMetrics) RewardTotals() (xp int64, coins int64) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.xpGranted, pm.coinsGranted
}

// LevelReachedCount returns how many times the given level was reached.
func (pm *ProgressionMetrics) LevelReachedCount(level int64) int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.levelDistribution[level]
}

// Day formats a timestamp as the day key used by the counters.
func Day(t time.Time) string { return t.UTC().Format("2006-01-02") }
