// Package scoring holds the client's view of scores: the leaderboard
// snapshot, the roster with its optimistic overlay and the local streak.
package scoring

import "livequiz/internal/domain"

// Board is an immutable leaderboard snapshot. Each update replaces it whole.
type Board struct {
	entries []domain.LeaderboardEntry
	index   map[string]int
}

// NewBoard ranks entries 1..N in the order given; the sender delivers them sorted.
func NewBoard(entries []domain.LeaderboardEntry) Board {
	b := Board{
		entries: make([]domain.LeaderboardEntry, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		e.Rank = i + 1
		b.entries[i] = e
		b.index[e.Key()] = i
	}
	return b
}

// Replace returns the board for a new snapshot. Nothing of the previous one survives.
func (b Board) Replace(entries []domain.LeaderboardEntry) Board {
	return NewBoard(entries)
}

// Entries returns a copy of the ranked rows.
func (b Board) Entries() []domain.LeaderboardEntry {
	out := make([]domain.LeaderboardEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len is the number of ranked participants.
func (b Board) Len() int { return len(b.entries) }

// Entry looks up a participant by key (user id, or name for guests).
func (b Board) Entry(key string) (domain.LeaderboardEntry, bool) {
	i, ok := b.index[key]
	if !ok {
		return domain.LeaderboardEntry{}, false
	}
	return b.entries[i], true
}

// Rank returns the 1-based rank, or 0 when the participant is not ranked.
func (b Board) Rank(key string) int {
	e, ok := b.Entry(key)
	if !ok {
		return 0
	}
	return e.Rank
}

// Top returns at most n leading rows.
func (b Board) Top(n int) []domain.LeaderboardEntry {
	if n > len(b.entries) || n < 0 {
		n = len(b.entries)
	}
	out := make([]domain.LeaderboardEntry, n)
	copy(out, b.entries[:n])
	return out
}
