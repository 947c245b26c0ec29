package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/quizengine/session-engine/internal/game"
	"github.com/quizengine/session-engine/internal/model"
	"github.com/quizengine/session-engine/internal/sessionmgr"
	"github.com/quizengine/session-engine/internal/store"
	"github.com/rs/zerolog/log"
)

// handleJoin implements the join handler described in the component
// design: distinct flows for the host, a fresh participant, and a
// reconnecting participant, across every session status.
func (g *Gateway) handleJoin(ctx context.Context, c *wsConn, raw json.RawMessage) {
	var payload JoinPayload
	_ = json.Unmarshal(raw, &payload)

	sess, err := g.sessions.Get(ctx, c.code)
	if errors.Is(err, sessionmgr.ErrSessionNotFound) {
		c.writeOutbound(newFrame(OutError, ErrorPayload{Message: "session not found or expired"}))
		return
	}
	if err != nil {
		g.logAndReplyError(c, err, "failed to load session")
		return
	}

	if c.isHost {
		_ = g.store.SetString(ctx, store.UserActiveSession(c.userID), c.code, userActiveSessionTTL)
		if sess.Status == model.StatusActive {
			g.broadcastParticipants(c.code, OutHostReconnected, map[string]string{"host_id": c.userID})
		}
		g.sendTo(c.code, c.userID, OutSessionState, SessionStatePayload{
			Code:                 sess.Code,
			Status:               string(sess.Status),
			IsHost:               true,
			TotalQuestions:       sess.TotalQuestions,
			PerQuestionTimeLimit: sess.PerQuestionTimeLimit,
		})
		return
	}

	if sess.Status == model.StatusCompleted {
		results, _, rerr := g.finalResultsFor(ctx, sess)
		if rerr != nil {
			g.logAndReplyError(c, rerr, "failed to load final results")
			return
		}
		g.sendTo(c.code, c.userID, OutQuizCompleted, QuizCompletedPayload{Results: results})
		return
	}

	if _, err := g.sessions.Admit(ctx, c.code, c.userID, payload.Username); err != nil {
		g.logAndReplyError(c, err, "failed to join session")
		return
	}

	g.broadcastParticipants(c.code, OutSessionUpdate, SessionUpdatePayload{
		UserID:           c.userID,
		Username:         payload.Username,
		ParticipantCount: g.registry.Count(c.code),
	})

	if sess.Status == model.StatusActive {
		index, ok, ierr := g.store.ParticipantIndexGet(ctx, c.code, c.userID)
		if ierr != nil {
			g.logAndReplyError(c, ierr, "failed to load progress")
			return
		}
		if !ok {
			index = 0
			_ = g.store.ParticipantIndexSet(ctx, c.code, c.userID, 0, activeSessionTTL)
		}
		g.sendQuestionOrCompletion(ctx, c, sess, index)
		return
	}

	g.sendTo(c.code, c.userID, OutSessionState, SessionStatePayload{
		Code:                 sess.Code,
		Status:               string(sess.Status),
		IsHost:               false,
		TotalQuestions:       sess.TotalQuestions,
		PerQuestionTimeLimit: sess.PerQuestionTimeLimit,
	})
}

// handleStartQuiz implements the host-only start_quiz handler.
func (g *Gateway) handleStartQuiz(ctx context.Context, c *wsConn, raw json.RawMessage) {
	if !c.isHost {
		c.writeOutbound(newFrame(OutError, ErrorPayload{Message: "only host can start the quiz"}))
		return
	}
	var payload StartQuizPayload
	_ = json.Unmarshal(raw, &payload)

	sess, err := g.sessions.Get(ctx, c.code)
	if err != nil {
		g.logAndReplyError(c, err, "failed to load session")
		return
	}
	perQuestionSeconds := payload.PerQuestionTimeLimit
	if perQuestionSeconds <= 0 {
		perQuestionSeconds = sess.PerQuestionTimeLimit
	}

	started, err := g.sessions.Start(ctx, c.code, c.userID, perQuestionSeconds, payload.AutoAdvance)
	if err != nil {
		g.logAndReplyError(c, err, "failed to start quiz")
		return
	}

	for userID := range started.Participants {
		if err := g.store.ParticipantIndexSet(ctx, c.code, userID, 0, activeSessionTTL); err != nil {
			log.Warn().Err(err).Str("code", c.code).Str("user_id", userID).Msg("failed to initialize participant index")
		}
	}

	g.broadcast(c.code, OutQuizStarted, map[string]interface{}{
		"total_questions":         started.TotalQuestions,
		"per_question_time_limit": started.PerQuestionTimeLimit,
	})

	g.broadcastQuestion(ctx, started, 0)

	if started.AutoAdvance {
		g.scheduleAutoAdvance(started.Code, 0, time.Duration(started.PerQuestionTimeLimit)*time.Second)
	}
}

// handleSubmitAnswer implements the participants-only submit_answer
// handler, bounded by the per-session answer semaphore.
func (g *Gateway) handleSubmitAnswer(ctx context.Context, c *wsConn, raw json.RawMessage) {
	if c.isHost {
		c.writeOutbound(newFrame(OutError, ErrorPayload{Message: "host cannot participate"}))
		return
	}
	var payload SubmitAnswerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.writeOutbound(newFrame(OutError, ErrorPayload{Message: "malformed submit_answer payload"}))
		return
	}

	var answer interface{}
	if len(payload.Answer) > 0 {
		_ = json.Unmarshal(payload.Answer, &answer)
	}

	g.sems.Acquire(c.code)
	defer g.sems.Release(c.code)

	outcome, err := g.games.SubmitAnswer(ctx, game.SubmitAnswerInput{
		Code:            c.code,
		UserID:          c.userID,
		Answer:          answer,
		ClientTimestamp: payload.ClientTimestamp,
		IsTimeout:       payload.Timeout,
	})
	if err != nil {
		g.replyGameError(c, err)
		return
	}

	c.writeOutbound(newFrame(OutAnswerResult, outcome))

	if entries, lerr := g.boards.Live(ctx, c.code); lerr == nil {
		g.broadcast(c.code, OutLeaderboardUpdate, LeaderboardPayload{Leaderboard: leaderboardRows(entries)})
	}

	g.maybeCompleteSession(ctx, c.code)
}

// handleRequestNextQuestion implements the self-paced request_next_question
// handler, including the first-completion dedupe and completion scan.
func (g *Gateway) handleRequestNextQuestion(ctx context.Context, c *wsConn) {
	if c.isHost {
		c.writeOutbound(newFrame(OutError, ErrorPayload{Message: "host cannot participate"}))
		return
	}
	sess, err := g.sessions.Get(ctx, c.code)
	if err != nil {
		g.logAndReplyError(c, err, "failed to load session")
		return
	}
	index, ok, err := g.store.ParticipantIndexGet(ctx, c.code, c.userID)
	if err != nil {
		g.logAndReplyError(c, err, "failed to load progress")
		return
	}
	if !ok {
		index = 0
	}
	g.sendQuestionOrCompletion(ctx, c, sess, index)
}

// handleNextQuestion implements the host-only, host-paced manual advance.
func (g *Gateway) handleNextQuestion(ctx context.Context, c *wsConn) {
	if !c.isHost {
		c.writeOutbound(newFrame(OutError, ErrorPayload{Message: "only host can advance the quiz"}))
		return
	}
	sess, err := g.sessions.Get(ctx, c.code)
	if err != nil {
		g.logAndReplyError(c, err, "failed to load session")
		return
	}
	g.timers.Cancel(c.code, sess.CurrentQuestionIndex)

	nextIndex := sess.CurrentQuestionIndex + 1
	if nextIndex >= sess.TotalQuestions {
		g.completeSession(ctx, c.code)
		return
	}
	if err := g.sessions.SetCurrentQuestionIndex(ctx, c.code, nextIndex); err != nil {
		g.logAndReplyError(c, err, "failed to advance question")
		return
	}
	sess.CurrentQuestionIndex = nextIndex
	g.broadcastQuestion(ctx, sess, nextIndex)
	if sess.AutoAdvance {
		g.scheduleAutoAdvance(sess.Code, nextIndex, time.Duration(sess.PerQuestionTimeLimit)*time.Second)
	}
}

// handleEndQuiz implements the host-only end_quiz handler.
func (g *Gateway) handleEndQuiz(ctx context.Context, c *wsConn) {
	if !c.isHost {
		c.writeOutbound(newFrame(OutError, ErrorPayload{Message: "only host can end the quiz"}))
		return
	}
	sess, err := g.sessions.End(ctx, c.code, c.userID)
	if err != nil {
		g.logAndReplyError(c, err, "failed to end quiz")
		return
	}
	g.timers.CancelSession(c.code)
	g.finishAndBroadcast(ctx, sess)
}

// completeSession is the system-triggered (not host-gated) path to ending
// a quiz: reaching the last question via auto-advance or host-paced
// manual advance.
func (g *Gateway) completeSession(ctx context.Context, code string) {
	g.timers.CancelSession(code)
	sess, err := g.sessions.MarkCompleted(ctx, code)
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("failed to mark session completed")
		return
	}
	g.finishAndBroadcast(ctx, sess)
}

// finishAndBroadcast persists the final result and broadcasts quiz_ended
// for a session that has just transitioned to completed.
func (g *Gateway) finishAndBroadcast(ctx context.Context, sess *model.Session) {
	results, _, err := g.finalResultsFor(ctx, sess)
	if err != nil {
		log.Error().Err(err).Str("code", sess.Code).Msg("failed to compute final results")
		return
	}
	if err := g.quizzes.SaveFinalResult(ctx, &model.FinalResult{
		SessionCode: sess.Code,
		QuizID:      sess.QuizID,
		CompletedAt: time.Now(),
		Results:     finalResultEntries(sess, results),
	}); err != nil {
		log.Error().Err(err).Str("code", sess.Code).Msg("failed to persist final result")
	}
	g.broadcast(sess.Code, OutQuizEnded, QuizEndedPayload{Results: results})
}

// finalResultEntries reconstructs the document-store row shape from the
// wire-level rows, filling rank by position (results are already ranked).
func finalResultEntries(sess *model.Session, rows []LeaderboardRow) []model.FinalResultEntry {
	entries := make([]model.FinalResultEntry, 0, len(rows))
	for i, r := range rows {
		var answers []model.AnswerRecord
		if p, ok := sess.Participants[r.UserID]; ok {
			answers = p.Answers
		}
		entries = append(entries, model.FinalResultEntry{
			Rank:          i + 1,
			UserID:        r.UserID,
			Username:      r.Username,
			Score:         r.Score,
			AnsweredCount: r.AnsweredCount,
			Answers:       answers,
		})
	}
	return entries
}

// handleRequestLeaderboard replies with the current leaderboard snapshot.
func (g *Gateway) handleRequestLeaderboard(ctx context.Context, c *wsConn) {
	entries, err := g.boards.Live(ctx, c.code)
	if err != nil {
		g.logAndReplyError(c, err, "failed to load leaderboard")
		return
	}
	c.writeOutbound(newFrame(OutLeaderboardResp, LeaderboardPayload{Leaderboard: leaderboardRows(entries)}))
}

// sendQuestionOrCompletion sends either the question at index, or a
// quiz_completed frame (with first-completion dedupe and a completion
// scan) if the player has exhausted the quiz.
func (g *Gateway) sendQuestionOrCompletion(ctx context.Context, c *wsConn, sess *model.Session, index int) {
	total, err := g.games.GetTotalQuestions(ctx, sess)
	if err != nil {
		g.logAndReplyError(c, err, "failed to load quiz")
		return
	}
	if index < total {
		payload, err := g.games.GetQuestion(ctx, sess, index)
		if err != nil {
			g.logAndReplyError(c, err, "failed to load question")
			return
		}
		g.sendTo(c.code, c.userID, OutQuestion, payload)
		return
	}

	accepted, err := g.store.RateLimitSet(ctx, store.CompletedFlag(c.code, c.userID), time.Hour)
	if err != nil {
		g.logAndReplyError(c, err, "failed to dedupe completion")
		return
	}
	if accepted {
		g.maybeCompleteSession(ctx, c.code)
	}

	results, _, err := g.finalResultsFor(ctx, sess)
	if err != nil {
		g.logAndReplyError(c, err, "failed to load final results")
		return
	}
	myScore := 0
	if p, ok := sess.Participants[c.userID]; ok {
		myScore = p.Score
	}
	g.sendTo(c.code, c.userID, OutQuizCompleted, QuizCompletedPayload{FinalScore: myScore, Results: results})
}

// maybeCompleteSession runs the global completion scan and, if it is the
// call that transitions the session, broadcasts quiz_ended and persists
// the final results exactly once.
func (g *Gateway) maybeCompleteSession(ctx context.Context, code string) {
	transitioned, results, err := g.games.CheckCompletion(ctx, code)
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("completion check failed")
		return
	}
	if !transitioned {
		return
	}
	g.timers.CancelSession(code)

	sess, err := g.sessions.Get(ctx, code)
	if err == nil {
		if perr := g.quizzes.SaveFinalResult(ctx, &model.FinalResult{
			SessionCode: code,
			QuizID:      sess.QuizID,
			CompletedAt: time.Now(),
			Results:     results,
		}); perr != nil {
			log.Error().Err(perr).Str("code", code).Msg("failed to persist final result")
		}
	}

	g.broadcast(code, OutQuizEnded, QuizEndedPayload{Results: finalResultRows(results)})
}

// finalResultsFor returns the ranked results for a (possibly not yet
// persisted) completed session, as rows ready for the wire.
func (g *Gateway) finalResultsFor(ctx context.Context, sess *model.Session) ([]LeaderboardRow, bool, error) {
	entries, err := g.boards.Final(ctx, sess.Code)
	if err != nil {
		return nil, false, err
	}
	return leaderboardRows(entries), sess.Status == model.StatusCompleted, nil
}

// broadcastQuestion loads and broadcasts the question at index to the
// whole session.
func (g *Gateway) broadcastQuestion(ctx context.Context, sess *model.Session, index int) {
	payload, err := g.games.GetQuestion(ctx, sess, index)
	if err != nil {
		log.Error().Err(err).Str("code", sess.Code).Int("index", index).Msg("failed to load question for broadcast")
		return
	}
	g.broadcast(sess.Code, OutQuestion, payload)
}

// scheduleAutoAdvance starts the host-paced fallback timer for (code,
// index): sleep(time_limit+2), then re-check current state before acting.
func (g *Gateway) scheduleAutoAdvance(code string, index int, timeLimit time.Duration) {
	delay := timeLimit + autoAdvanceGrace
	g.timers.Schedule(g.bgContext, code, index, delay, func(ctx context.Context) {
		sess, err := g.sessions.Get(ctx, code)
		if err != nil {
			return
		}
		if sess.Status != model.StatusActive || sess.CurrentQuestionIndex != index {
			return
		}

		nextIndex := index + 1
		if nextIndex >= sess.TotalQuestions {
			g.completeSession(ctx, code)
			return
		}
		if err := g.sessions.SetCurrentQuestionIndex(ctx, code, nextIndex); err != nil {
			log.Error().Err(err).Str("code", code).Msg("auto-advance failed to set index")
			return
		}
		sess.CurrentQuestionIndex = nextIndex
		g.broadcastQuestion(ctx, sess, nextIndex)
		g.scheduleAutoAdvance(code, nextIndex, timeLimit)
	})
}

func (g *Gateway) logAndReplyError(c *wsConn, err error, context string) {
	log.Error().Err(err).Str("code", c.code).Str("user_id", c.userID).Msg(context)
	c.writeOutbound(newFrame(OutError, ErrorPayload{Message: "internal error"}))
}

// replyGameError maps Game Controller errors to the wire-level error
// taxonomy without leaking internal detail.
func (g *Gateway) replyGameError(c *wsConn, err error) {
	msg := "internal error"
	switch {
	case errors.Is(err, game.ErrHostCannotAnswer):
		msg = "host cannot participate"
	case errors.Is(err, game.ErrRateLimited):
		msg = "please wait before submitting again"
	case errors.Is(err, game.ErrServerBusy):
		msg = "server busy, please try again"
	case errors.Is(err, game.ErrAlreadyAnswered):
		msg = "already answered"
	case errors.Is(err, game.ErrQuizFinished):
		msg = "no more questions"
	case errors.Is(err, game.ErrSessionCompleted):
		msg = "quiz has already ended"
	case errors.Is(err, sessionmgr.ErrSessionNotFound):
		msg = "session not found or expired"
	default:
		log.Error().Err(err).Str("code", c.code).Str("user_id", c.userID).Msg("submit_answer failed")
	}
	c.writeOutbound(newFrame(OutError, ErrorPayload{Message: msg}))
}
