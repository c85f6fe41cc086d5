package leaderboard

import "teaquest/core"

// Entry is one ranked row: a player and their total experience.
type Entry struct {
	User       core.UserID `json:"user"`
	Experience int64       `json:"experience"`
}

// Board ranks players by total experience, highest first.
type Board interface {
	// SetExperience inserts the player or moves them to their new total.
	SetExperience(user core.UserID, experience int64)
	Remove(user core.UserID)
	// Top returns up to n entries in rank order.
	Top(n int) []Entry
	// Experience looks up a player's current entry.
	Experience(user core.UserID) (Entry, bool)
}
