package memory

import (
	"time"

	"teaquest/core"
)

// DefaultUserID is the demo player every seeded table references.
const DefaultUserID core.UserID = 1

// Fixtures bundles the demo catalogue rows used to preload a store.
type Fixtures struct {
	User         core.User
	TeaCards     []core.TeaCard
	UserCards    []core.UserCard
	Quests       []core.Goal
	Achievements []core.Goal
	WeeklyEvents []core.WeeklyEvent
}

// DemoFixtures returns the demo dataset: one player, six tea cards, two
// quests, two achievements, and the weekly event schedule.
func DemoFixtures() Fixtures {
	now := time.Now().UTC()

	user := core.User{
		ID:         DefaultUserID,
		Username:   "player",
		Level:      9,
		Experience: 8450,
		Coins:      1247,
		CreatedAt:  now,
	}

	cards := []core.TeaCard{
		{ID: 1, Name: "Dragon Well Supreme", Description: "A legendary green tea with unmatched clarity and focus enhancement.", Rarity: "legendary", Category: "green", Power: 25, Strength: 8, Freshness: 9, Aroma: 9, BrewingTime: 3, BrewingTemp: 80},
		{ID: 2, Name: "Ceremonial Matcha", Description: "Traditional ceremonial matcha that brings inner peace and tranquility.", Rarity: "epic", Category: "green", Power: 20, Strength: 6, Freshness: 10, Aroma: 8, BrewingTime: 2, BrewingTemp: 75},
		{ID: 3, Name: "Earl Grey Supreme", Description: "A premium Earl Grey blend with bergamot that energizes the spirit.", Rarity: "rare", Category: "black", Power: 15, Strength: 7, Freshness: 6, Aroma: 9, BrewingTime: 4, BrewingTemp: 95},
		{ID: 4, Name: "Golden Chamomile", Description: "Soothing chamomile flowers that promote restful sleep and relaxation.", Rarity: "uncommon", Category: "herbal", Power: 10, Strength: 3, Freshness: 7, Aroma: 8, BrewingTime: 5, BrewingTemp: 100},
		{ID: 5, Name: "Garden Green", Description: "A simple yet refreshing green tea that supports overall health.", Rarity: "common", Category: "green", Power: 5, Strength: 4, Freshness: 6, Aroma: 5, BrewingTime: 3, BrewingTemp: 80},
		{ID: 6, Name: "Morning Blend", Description: "A robust morning tea blend perfect for starting the day.", Rarity: "common", Category: "black", Power: 5, Strength: 7, Freshness: 5, Aroma: 6, BrewingTime: 4, BrewingTemp: 95},
	}
	for i := range cards {
		cards[i].Abilities = []string{}
		cards[i].CreatedAt = now
	}

	var userCards []core.UserCard
	for i, cardID := range []core.CardID{1, 2, 3, 4, 5, 6} {
		qty := int64(1)
		if cardID == 5 {
			qty = 2
		}
		userCards = append(userCards, core.UserCard{ID: int64(i + 1), UserID: DefaultUserID, CardID: cardID, Quantity: qty, ObtainedAt: now})
	}

	rare := core.CardID(3)
	epic := core.CardID(2)
	quests := []core.Goal{
		{ID: 1, UserID: DefaultUserID, Kind: core.KindQuest, Title: "Daily Discovery", Description: "Find and collect 3 different green tea varieties to unlock a rare tea card.", Category: "daily", Requirement: 3, Progress: 2, Reward: core.Reward{XP: 500, Coins: 200, CardID: &rare}, CreatedAt: now},
		{ID: 2, UserID: DefaultUserID, Kind: core.KindQuest, Title: "Master Collector", Description: "Collect 25 different tea cards from various regions around the world.", Category: "weekly", Requirement: 25, Progress: 18, Reward: core.Reward{XP: 2000, Coins: 1000, CardID: &epic}, CreatedAt: now},
	}
	achievements := []core.Goal{
		{ID: 1, UserID: DefaultUserID, Kind: core.KindAchievement, Title: "Tea Master", Description: "Collect 100 different teas.", Category: "collection", Requirement: 100, Progress: 6, Reward: core.Reward{XP: 1000, Coins: 500}, CreatedAt: now},
		{ID: 2, UserID: DefaultUserID, Kind: core.KindAchievement, Title: "First Legendary", Description: "Obtain your first legendary tea.", Category: "collection", Requirement: 1, Progress: 0, Reward: core.Reward{XP: 750, Coins: 300}, CreatedAt: now},
	}

	events := []core.WeeklyEvent{
		{ID: 1, Title: "Green Tea Discovery", Description: "New Player Friendly", EventType: "free", DayOfWeek: "monday", StartTime: "18:00", EndTime: "20:00", Cost: 0, Active: true},
		{ID: 2, Title: "Oolong Mastery", Description: "Quest Registration", EventType: "registration", DayOfWeek: "tuesday", StartTime: "17:00", EndTime: "19:00", Cost: 0, Active: true},
		{ID: 3, Title: "Rare Tea Hunt", Description: "Quest Registration", EventType: "paid", DayOfWeek: "wednesday", StartTime: "11:00", EndTime: "13:00", Cost: 300, Active: true},
		{ID: 4, Title: "Tea Ceremony Training", Description: "Free", EventType: "free", DayOfWeek: "wednesday", StartTime: "18:00", EndTime: "19:00", Cost: 0, Active: true},
		{ID: 5, Title: "Black Tea Adventure", Description: "Free", EventType: "free", DayOfWeek: "thursday", StartTime: "19:00", EndTime: "21:00", Cost: 0, Active: true},
		{ID: 6, Title: "Legendary Tea Quest", Description: "Epic Rewards", EventType: "paid", DayOfWeek: "friday", StartTime: "20:00", EndTime: "22:00", Cost: 500, Active: true},
		{ID: 7, Title: "Tea Tournament", Description: "Quest Registration", EventType: "registration", DayOfWeek: "saturday", StartTime: "12:00", EndTime: "14:00", Cost: 300, Active: true},
		{ID: 8, Title: "Grand Championship", Description: "Quest Registration", EventType: "registration", DayOfWeek: "sunday", StartTime: "14:00", EndTime: "16:00", Cost: 300, Active: true},
	}

	return Fixtures{
		User:         user,
		TeaCards:     cards,
		UserCards:    userCards,
		Quests:       quests,
		Achievements: achievements,
		WeeklyEvents: events,
	}
}

// NewSeeded returns a store preloaded with the demo catalogue.
func NewSeeded() *Store {
	s := New()
	fx := DemoFixtures()

	s.users[fx.User.ID] = fx.User
	for _, c := range fx.TeaCards {
		s.cards[c.ID] = c
	}
	for _, uc := range fx.UserCards {
		s.userCards[uc.ID] = uc
	}
	for _, g := range append(fx.Quests, fx.Achievements...) {
		s.goals[goalKey{g.Kind, g.ID}] = g
	}
	for _, e := range fx.WeeklyEvents {
		s.events[e.ID] = e
	}

	return s
}
