// Package leaderboard implements the Leaderboard Manager: the live ranked
// view over an active session's participants, and the final view derived
// once a session completes.
package leaderboard

import (
	"context"
	"sort"

	"github.com/quizengine/session-engine/internal/game"
	"github.com/quizengine/session-engine/internal/model"
	"github.com/quizengine/session-engine/internal/quizrepo"
	"github.com/quizengine/session-engine/internal/sessionmgr"
	"github.com/quizengine/session-engine/internal/store"
)

// Manager is the Leaderboard Manager.
type Manager struct {
	store    *store.Store
	sessions *sessionmgr.Manager
	games    *game.Controller
	results  *quizrepo.Repository
}

// New constructs a Leaderboard Manager.
func New(st *store.Store, sessions *sessionmgr.Manager, games *game.Controller, results *quizrepo.Repository) *Manager {
	return &Manager{store: st, sessions: sessions, games: games, results: results}
}

// Live returns the current leaderboard for an active (or waiting) session,
// sorted by score desc, ties broken by answered_count desc then
// joined_at asc.
func (m *Manager) Live(ctx context.Context, code string) ([]model.LeaderboardEntry, error) {
	sess, err := m.sessions.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	total, err := m.games.GetTotalQuestions(ctx, sess)
	if err != nil {
		return nil, err
	}

	entries := make([]model.LeaderboardEntry, 0, len(sess.Participants))
	for _, p := range sess.Participants {
		idx, _, idxErr := m.store.ParticipantIndexGet(ctx, code, p.UserID)
		if idxErr != nil {
			return nil, idxErr
		}
		entries = append(entries, model.LeaderboardEntry{
			UserID:         p.UserID,
			Username:       p.Username,
			Score:          p.Score,
			QuestionIndex:  idx,
			AnsweredCount:  len(p.Answers),
			TotalQuestions: total,
			Connected:      p.Connected,
			JoinedAt:       p.JoinedAt,
		})
	}

	sortEntries(entries)
	return entries, nil
}

// Final returns the persisted final leaderboard for a completed session.
// If no persisted result exists yet (e.g. called in the same request that
// just triggered completion, before persistence lands) it falls back to
// deriving the ranking from current session state.
func (m *Manager) Final(ctx context.Context, code string) ([]model.LeaderboardEntry, error) {
	if persisted, err := m.results.GetFinalResult(ctx, code); err == nil {
		entries := make([]model.LeaderboardEntry, 0, len(persisted.Results))
		for _, r := range persisted.Results {
			entries = append(entries, model.LeaderboardEntry{
				UserID:        r.UserID,
				Username:      r.Username,
				Score:         r.Score,
				AnsweredCount: r.AnsweredCount,
			})
		}
		return entries, nil
	}
	return m.Live(ctx, code)
}

func sortEntries(entries []model.LeaderboardEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].AnsweredCount != entries[j].AnsweredCount {
			return entries[i].AnsweredCount > entries[j].AnsweredCount
		}
		return entries[i].JoinedAt.Before(entries[j].JoinedAt)
	})
}
