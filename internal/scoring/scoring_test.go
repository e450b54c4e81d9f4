package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"livequiz/internal/domain"
)

func entries(names ...string) []domain.LeaderboardEntry {
	out := make([]domain.LeaderboardEntry, 0, len(names))
	for i, n := range names {
		out = append(out, domain.LeaderboardEntry{UserID: n, Username: n, Score: (len(names) - i) * 100})
	}
	return out
}

func TestBoardRanksInPayloadOrder(t *testing.T) {
	b := NewBoard(entries("c", "a", "d", "b"))
	require.Equal(t, 4, b.Len())
	for i, e := range b.Entries() {
		assert.Equal(t, i+1, e.Rank)
	}
	assert.Equal(t, 1, b.Rank("c"))
	assert.Equal(t, 4, b.Rank("b"))
	assert.Equal(t, 0, b.Rank("zz"))
}

func TestBoardReplaceDiscardsPreviousSnapshot(t *testing.T) {
	b := NewBoard(entries("a", "b", "c"))
	b = b.Replace(entries("b"))
	assert.Equal(t, 1, b.Len())
	_, ok := b.Entry("a")
	assert.False(t, ok)
	assert.Equal(t, 1, b.Rank("b"))

	b = b.Replace(nil)
	assert.Equal(t, 0, b.Len())
}

func TestBoardEntriesIsACopy(t *testing.T) {
	b := NewBoard(entries("a", "b"))
	rows := b.Entries()
	rows[0].Score = -1
	e, _ := b.Entry("a")
	assert.NotEqual(t, -1, e.Score)
	assert.Len(t, b.Top(1), 1)
	assert.Len(t, b.Top(10), 2)
}

func TestNextStreak(t *testing.T) {
	one, two := 1, 2
	assert.Equal(t, 3, NextStreak(2, &one, 1))
	assert.Equal(t, 0, NextStreak(2, &two, 1))
	assert.Equal(t, 0, NextStreak(5, nil, 1))
	assert.Equal(t, 1, NextStreak(0, &one, 1))
}

func TestEstimate(t *testing.T) {
	reported := 850
	assert.Equal(t, 850, Estimate(&reported, 1000, true, 1))
	assert.Equal(t, 1700, Estimate(&reported, 1000, true, 2))
	assert.Equal(t, 1000, Estimate(nil, 1000, true, 0))
	assert.Equal(t, 0, Estimate(&reported, 1000, false, 2))
}

func TestRosterKickOverlay(t *testing.T) {
	r := NewRoster([]domain.Participant{{UserID: "a", Username: "A"}, {UserID: "b", Username: "B"}})

	r = r.MarkKicked("b")
	require.Len(t, r.View(), 1)
	assert.Len(t, r.Authoritative(), 2, "optimistic kick never touches the base")
	assert.True(t, r.Pending("b"))

	reverted := r.RevertKick("b")
	assert.Len(t, reverted.View(), 2)
	assert.False(t, reverted.Pending("b"))

	confirmed := r.Remove("b", "B")
	assert.Len(t, confirmed.View(), 1)
	assert.False(t, confirmed.Pending("b"), "confirmed removal clears the overlay entry")
}

func TestRosterResetReconcilesOverlay(t *testing.T) {
	r := NewRoster([]domain.Participant{{UserID: "a"}, {UserID: "b"}, {UserID: "c"}})
	r = r.MarkKicked("b").MarkKicked("c")

	r = r.Reset([]domain.Participant{{UserID: "a"}, {UserID: "c"}})
	assert.False(t, r.Pending("b"))
	assert.True(t, r.Pending("c"))
	assert.Len(t, r.View(), 1)
}

func TestRosterJoinReplacesByKeyAndIsImmutable(t *testing.T) {
	before := NewRoster([]domain.Participant{{UserID: "a", Username: "A"}})
	after := before.Join(domain.Participant{UserID: "a", Username: "A2"}).Join(domain.Participant{Username: "guest"})

	assert.Len(t, before.View(), 1)
	assert.Equal(t, "A", before.View()[0].Username)
	require.Len(t, after.View(), 2)
	assert.Equal(t, "A2", after.View()[0].Username)

	p, ok := after.Get("name:guest")
	require.True(t, ok)
	assert.Equal(t, "guest", p.Username)
	assert.Len(t, after.Remove("", "guest").View(), 1)
}

func TestRosterApplyBoardAndReady(t *testing.T) {
	r := NewRoster([]domain.Participant{{UserID: "a", Score: 5}, {UserID: "b"}})
	r = r.ApplyBoard(NewBoard([]domain.LeaderboardEntry{{UserID: "b", Score: 300, CorrectAnswers: 3}}))
	r = r.SetReady("a", true)

	a, _ := r.Get("a")
	b, _ := r.Get("b")
	assert.Equal(t, 5, a.Score)
	assert.True(t, a.Ready)
	assert.Equal(t, 300, b.Score)
	assert.Equal(t, 3, b.CorrectAnswers)
}
