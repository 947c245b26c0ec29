package leaderboard

import (
	"testing"
	"time"

	"github.com/quizengine/session-engine/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestSortEntriesScoreDescending(t *testing.T) {
	now := time.Now()
	entries := []model.LeaderboardEntry{
		{UserID: "low", Score: 100, JoinedAt: now},
		{UserID: "high", Score: 500, JoinedAt: now},
		{UserID: "mid", Score: 300, JoinedAt: now},
	}

	sortEntries(entries)

	assert.Equal(t, []string{"high", "mid", "low"}, userIDs(entries))
}

func TestSortEntriesTieBreaksOnAnsweredCount(t *testing.T) {
	now := time.Now()
	entries := []model.LeaderboardEntry{
		{UserID: "fewer-answers", Score: 200, AnsweredCount: 1, JoinedAt: now},
		{UserID: "more-answers", Score: 200, AnsweredCount: 3, JoinedAt: now},
	}

	sortEntries(entries)

	assert.Equal(t, []string{"more-answers", "fewer-answers"}, userIDs(entries))
}

func TestSortEntriesTieBreaksOnJoinedAt(t *testing.T) {
	earlier := time.Now()
	later := earlier.Add(time.Minute)
	entries := []model.LeaderboardEntry{
		{UserID: "joined-later", Score: 200, AnsweredCount: 2, JoinedAt: later},
		{UserID: "joined-earlier", Score: 200, AnsweredCount: 2, JoinedAt: earlier},
	}

	sortEntries(entries)

	assert.Equal(t, []string{"joined-earlier", "joined-later"}, userIDs(entries))
}

func userIDs(entries []model.LeaderboardEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.UserID
	}
	return out
}
