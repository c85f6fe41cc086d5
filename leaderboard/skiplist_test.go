package leaderboard

import (
	"testing"

	"teaquest/core"
)

func TestSkipListRanking(t *testing.T) {
	s := NewSkipList()
	s.SetExperience(core.UserID(1), 1000)
	s.SetExperience(core.UserID(2), 2000)
	s.SetExperience(core.UserID(3), 1500)
	top := s.Top(3)
	if len(top) != 3 || top[0].User != core.UserID(2) || top[1].User != core.UserID(3) || top[2].User != core.UserID(1) {
		t.Fatalf("unexpected order: %#v", top)
	}
	s.SetExperience(core.UserID(1), 2500)
	top = s.Top(1)
	if top[0].User != core.UserID(1) || top[0].Experience != 2500 {
		t.Fatalf("top should be user 1 at 2500, got %#v", top)
	}
	if s.Len() != 3 {
		t.Fatalf("rerank must not duplicate, len=%d", s.Len())
	}
}

func TestSkipListTiesRankLowerUserFirst(t *testing.T) {
	s := NewSkipList()
	s.SetExperience(core.UserID(7), 900)
	s.SetExperience(core.UserID(2), 900)
	top := s.Top(2)
	if top[0].User != core.UserID(2) || top[1].User != core.UserID(7) {
		t.Fatalf("tie order wrong: %#v", top)
	}
}

func TestSkipListRemoveAndLookup(t *testing.T) {
	s := NewSkipList()
	s.SetExperience(core.UserID(1), 100)
	if e, ok := s.Experience(core.UserID(1)); !ok || e.Experience != 100 {
		t.Fatalf("lookup returned %#v %v", e, ok)
	}
	s.Remove(core.UserID(1))
	if _, ok := s.Experience(core.UserID(1)); ok {
		t.Fatal("expected user removed")
	}
	if top := s.Top(1); len(top) != 0 {
		t.Fatalf("board should be empty, got %#v", top)
	}
}
