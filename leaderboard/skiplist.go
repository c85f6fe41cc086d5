package leaderboard

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"

	"teaquest/core"
)

// SkipList ranks players by (experience desc, user asc) with O(log n)
// updates. An index map gives O(1) point lookups; reranking a player is a
// remove followed by a fresh insert.

const (
	maxHeight = 16
	promoteP  = 0.25
)

type slNode struct {
	entry Entry
	next  []*slNode
}

type SkipList struct {
	mu     sync.RWMutex
	head   *slNode
	height int
	index  map[core.UserID]*slNode
	rng    *rand.Rand
}

func NewSkipList() *SkipList {
	// Seed PCG from crypto/rand so node heights differ across processes.
	var seed [16]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		seed = [16]byte{}
	}
	return &SkipList{
		head:   &slNode{next: make([]*slNode, maxHeight)},
		height: 1,
		index:  map[core.UserID]*slNode{},
		rng: rand.New(rand.NewPCG(
			binary.BigEndian.Uint64(seed[:8]),
			binary.BigEndian.Uint64(seed[8:]),
		)),
	}
}

// ranksBefore reports whether a outranks b: more experience first, ties
// broken by the lower user id.
func ranksBefore(a, b Entry) bool {
	if a.Experience != b.Experience {
		return a.Experience > b.Experience
	}
	return a.User < b.User
}

// seek returns, per lane, the last node ranked strictly before e.
func (s *SkipList) seek(e Entry) [maxHeight]*slNode {
	var path [maxHeight]*slNode
	cur := s.head
	for lane := s.height - 1; lane >= 0; lane-- {
		for cur.next[lane] != nil && ranksBefore(cur.next[lane].entry, e) {
			cur = cur.next[lane]
		}
		path[lane] = cur
	}
	return path
}

// SetExperience inserts the player or moves them to their new total.
func (s *SkipList) SetExperience(user core.UserID, experience int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.index[user]; ok {
		s.unlink(old)
	}
	e := Entry{User: user, Experience: experience}
	path := s.seek(e)

	h := 1
	for h < maxHeight && s.rng.Float64() < promoteP {
		h++
	}
	if h > s.height {
		for lane := s.height; lane < h; lane++ {
			path[lane] = s.head
		}
		s.height = h
	}

	n := &slNode{entry: e, next: make([]*slNode, h)}
	for lane := 0; lane < h; lane++ {
		n.next[lane] = path[lane].next[lane]
		path[lane].next[lane] = n
	}
	s.index[user] = n
}

func (s *SkipList) unlink(n *slNode) {
	path := s.seek(n.entry)
	target := path[0].next[0]
	if target == nil || target.entry.User != n.entry.User {
		return
	}
	for lane := 0; lane < s.height; lane++ {
		if path[lane].next[lane] == target {
			path[lane].next[lane] = target.next[lane]
		}
	}
	delete(s.index, n.entry.User)
	for s.height > 1 && s.head.next[s.height-1] == nil {
		s.height--
	}
}

func (s *SkipList) Remove(user core.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.index[user]; ok {
		s.unlink(n)
	}
}

// Top returns up to n entries in rank order.
func (s *SkipList) Top(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	out := make([]Entry, 0, n)
	for cur := s.head.next[0]; cur != nil && len(out) < n; cur = cur.next[0] {
		out = append(out, cur.entry)
	}
	return out
}

// Experience looks up a player's current entry.
func (s *SkipList) Experience(user core.UserID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.index[user]; ok {
		return n.entry, true
	}
	return Entry{}, false
}

// Len reports how many players are ranked.
func (s *SkipList) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

var _ Board = (*SkipList)(nil)
