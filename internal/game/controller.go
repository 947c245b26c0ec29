package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/quizengine/session-engine/internal/model"
	"github.com/quizengine/session-engine/internal/quizrepo"
	"github.com/quizengine/session-engine/internal/sessionmgr"
	"github.com/quizengine/session-engine/internal/store"
	"github.com/rs/zerolog/log"
)

var (
	ErrHostCannotAnswer  = errors.New("game: host cannot participate")
	ErrRateLimited       = errors.New("game: please wait before submitting again")
	ErrServerBusy        = errors.New("game: server busy, please try again")
	ErrQuizFinished      = errors.New("game: no more questions")
	ErrAlreadyAnswered   = errors.New("game: already answered")
	ErrEmptyQuestion     = errors.New("game: question text is empty")
	ErrSessionCompleted  = errors.New("game: quiz has already ended")
)

const (
	answerLockTTL         = 5 * time.Second
	answerMaxAttempts     = 20
	answerBackoffMin      = 50 * time.Millisecond
	answerBackoffMax      = 450 * time.Millisecond
	answerRateLimitTTL    = 1 * time.Second

	participantsLockTTL      = 3 * time.Second
	participantsMaxAttempts  = 50
	participantsBackoffMin   = 20 * time.Millisecond
	participantsBackoffMax   = 1000 * time.Millisecond

	completionCheckTTL = 30 * time.Second
	completedFlagTTL   = time.Hour
)

// QuestionPayload is the normalized, client-safe view of one question:
// no correct-answer metadata is included unless a variant's wire protocol
// explicitly needs it for client-side rendering (none currently do).
type QuestionPayload struct {
	Question      QuestionView `json:"question"`
	Index         int          `json:"index"`
	Total         int          `json:"total"`
	TimeRemaining int          `json:"time_remaining"`
	TimeLimit     int          `json:"time_limit"`
}

// QuestionView is the question as shown to a client.
type QuestionView struct {
	ID        string   `json:"id"`
	Text      string   `json:"question"`
	Type      string   `json:"type"`
	Options   []string `json:"options,omitempty"`
	TimeLimit int      `json:"timeLimit,omitempty"`
}

// AnswerOutcome is the full answer_result payload.
type AnswerOutcome struct {
	IsCorrect     bool        `json:"is_correct"`
	Points        int         `json:"points"`
	TimeBonus     int         `json:"time_bonus"`
	Multiplier    float64     `json:"multiplier"`
	CorrectAnswer interface{} `json:"correct_answer"`
	UserAnswer    interface{} `json:"user_answer"`
	NewTotalScore int         `json:"new_total_score"`
	QuestionType  string      `json:"question_type"`
	QuestionIndex int         `json:"question_index"`
	PartialCredit *float64    `json:"partial_credit,omitempty"`
	IsPartial     *bool       `json:"is_partial,omitempty"`
}

// Controller is the Game Controller.
type Controller struct {
	store    *store.Store
	sessions *sessionmgr.Manager
	quizzes  *quizrepo.Repository
}

// New constructs a Game Controller.
func New(st *store.Store, sessions *sessionmgr.Manager, quizzes *quizrepo.Repository) *Controller {
	return &Controller{store: st, sessions: sessions, quizzes: quizzes}
}

// loadQuiz returns the quiz for a session, preferring the fast-store
// cache and falling back to the document store on a miss.
func (c *Controller) loadQuiz(ctx context.Context, sess *model.Session) (*model.Quiz, error) {
	if blob, ok, err := c.store.QuizCacheGet(ctx, sess.Code); err != nil {
		return nil, err
	} else if ok {
		var quiz model.Quiz
		if err := json.Unmarshal([]byte(blob), &quiz); err == nil {
			return &quiz, nil
		}
		log.Warn().Str("code", sess.Code).Msg("quiz cache blob corrupt, reloading from document store")
	}

	quiz, err := c.quizzes.GetQuiz(ctx, sess.QuizID)
	if err != nil {
		return nil, err
	}
	if blob, err := json.Marshal(quiz); err == nil {
		if err := c.store.QuizCacheSet(ctx, sess.Code, string(blob)); err != nil {
			log.Warn().Err(err).Str("code", sess.Code).Msg("failed to cache quiz")
		}
	}
	return quiz, nil
}

// GetTotalQuestions returns the number of questions in a session's quiz.
func (c *Controller) GetTotalQuestions(ctx context.Context, sess *model.Session) (int, error) {
	quiz, err := c.loadQuiz(ctx, sess)
	if err != nil {
		return 0, err
	}
	return quiz.TotalQuestions(), nil
}

// GetQuestion returns the normalized payload for the question at index,
// using the session's per_question_time_limit rather than any
// question-embedded override (the host's choice at start wins).
func (c *Controller) GetQuestion(ctx context.Context, sess *model.Session, index int) (*QuestionPayload, error) {
	quiz, err := c.loadQuiz(ctx, sess)
	if err != nil {
		return nil, err
	}
	q, ok := quiz.QuestionAt(index)
	if !ok {
		return nil, ErrQuizFinished
	}
	if q.Text == "" {
		return nil, ErrEmptyQuestion
	}

	limit := sess.PerQuestionTimeLimit
	var startedAgo int
	if sess.QuizStartTime != nil {
		startedAgo = int(time.Since(*sess.QuizStartTime).Seconds())
	}
	remaining := limit - startedAgo
	if remaining < 0 {
		remaining = 0
	}

	return &QuestionPayload{
		Question: QuestionView{
			ID:        q.ID,
			Text:      q.Text,
			Type:      string(q.Type),
			Options:   q.Options,
			TimeLimit: q.TimeLimit,
		},
		Index:         index,
		Total:         quiz.TotalQuestions(),
		TimeRemaining: remaining,
		TimeLimit:     limit,
	}, nil
}

// SubmitAnswerInput bundles the caller-provided answer submission fields.
type SubmitAnswerInput struct {
	Code            string
	UserID          string
	Answer          interface{}
	ClientTimestamp float64
	IsTimeout       bool
}

// SubmitAnswer implements the full answer-submission critical path
// described in the component design: host guard, rate limit, per-user
// answer lock, variant grading, speed-weighted scoring, session-wide
// participants-lock read-modify-write, and index advancement.
func (c *Controller) SubmitAnswer(ctx context.Context, in SubmitAnswerInput) (*AnswerOutcome, error) {
	sess, err := c.sessions.Get(ctx, in.Code)
	if err != nil {
		return nil, err
	}
	if sess.Status == model.StatusCompleted {
		return nil, ErrSessionCompleted
	}
	if in.UserID == sess.HostID {
		return nil, ErrHostCannotAnswer
	}

	accepted, err := c.store.RateLimitSet(ctx, store.RateLimitAnswer(in.Code, in.UserID), answerRateLimitTTL)
	if err != nil {
		return nil, err
	}
	if !accepted {
		return nil, ErrRateLimited
	}

	var outcome *AnswerOutcome
	lockErr := c.store.WithLock(ctx, store.LockAnswer(in.Code, in.UserID), answerLockTTL,
		answerMaxAttempts, answerBackoffMin, answerBackoffMax, func() error {
			outcome, err = c.gradeAndScore(ctx, sess, in)
			return err
		})
	if errors.Is(lockErr, store.ErrLockExhausted) {
		return nil, ErrServerBusy
	}
	if lockErr != nil {
		return nil, lockErr
	}
	return outcome, nil
}

// gradeAndScore runs under the per-user answer lock: steps 4-9 of the
// answer-submission flow.
func (c *Controller) gradeAndScore(ctx context.Context, sess *model.Session, in SubmitAnswerInput) (*AnswerOutcome, error) {
	index, ok, err := c.store.ParticipantIndexGet(ctx, in.Code, in.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		index = 0
	}

	quiz, err := c.loadQuiz(ctx, sess)
	if err != nil {
		return nil, err
	}
	if index >= quiz.TotalQuestions() {
		return nil, ErrQuizFinished
	}
	q, _ := quiz.QuestionAt(index)

	grade, err := Grade(q, in.Answer, in.IsTimeout)
	if err != nil {
		return nil, err
	}

	isMulti := q.Type == model.QuestionMultiMCQ
	scored := Score(grade, isMulti, in.ClientTimestamp, float64(sess.PerQuestionTimeLimit))

	record := model.AnswerRecord{
		QuestionIndex: index,
		Answer:        in.Answer,
		Timestamp:     in.ClientTimestamp,
		IsCorrect:     grade.IsCorrect,
		PointsEarned:  scored.Points,
	}

	var newTotal int
	var duplicate bool
	lockErr := c.store.WithLock(ctx, store.LockParticipants(in.Code), participantsLockTTL,
		participantsMaxAttempts, participantsBackoffMin, participantsBackoffMax, func() error {
			fresh, err := c.sessions.Get(ctx, in.Code)
			if err != nil {
				return err
			}
			p, exists := fresh.Participants[in.UserID]
			if !exists {
				return fmt.Errorf("game: participant %s not found in session %s", in.UserID, in.Code)
			}
			for _, a := range p.Answers {
				if a.QuestionIndex == index {
					duplicate = true
					newTotal = p.Score
					return nil
				}
			}
			p.Answers = append(p.Answers, record)
			p.Score += scored.Points
			newTotal = p.Score
			return c.persistParticipants(ctx, fresh)
		})
	if errors.Is(lockErr, store.ErrLockExhausted) {
		return nil, ErrServerBusy
	}
	if lockErr != nil {
		return nil, lockErr
	}
	if duplicate {
		return nil, ErrAlreadyAnswered
	}

	newIndex := index + 1
	if err := c.store.ParticipantIndexSet(ctx, in.Code, in.UserID, newIndex, sessionTTLFallback); err != nil {
		return nil, err
	}

	outcome := &AnswerOutcome{
		IsCorrect:     grade.IsCorrect,
		Points:        scored.Points,
		TimeBonus:     scored.TimeBonus,
		Multiplier:    scored.Multiplier,
		CorrectAnswer: correctAnswerValue(q),
		UserAnswer:    in.Answer,
		NewTotalScore: newTotal,
		QuestionType:  string(q.Type),
		QuestionIndex: index,
	}
	if isMulti {
		partial := grade.Partial
		isPartial := !grade.IsCorrect && partial > 0
		outcome.PartialCredit = &partial
		outcome.IsPartial = &isPartial
	}

	return outcome, nil
}

// sessionTTLFallback bounds how long a per-player progress key survives
// without a session TTL in hand at this call site; it is refreshed on
// every write and is intentionally generous since the session hash's own
// TTL is the authority on session lifetime.
const sessionTTLFallback = 24 * time.Hour

func correctAnswerValue(q model.Question) interface{} {
	switch q.Type {
	case model.QuestionSingleMCQ, model.QuestionTrueFalse:
		return q.CorrectIndex
	case model.QuestionMultiMCQ:
		return q.CorrectIndices
	case model.QuestionDragAndDrop:
		return q.CorrectMatches
	default:
		return nil
	}
}

func (c *Controller) persistParticipants(ctx context.Context, sess *model.Session) error {
	blob, err := json.Marshal(sess.Participants)
	if err != nil {
		return fmt.Errorf("game: marshal participants: %w", err)
	}
	return c.store.SessionHSet(ctx, sess.Code, "participants", string(blob), sessionTTLFallback)
}

// CheckCompletion scans every participant's progress index under the
// non-blocking completion-check lock; if all participants have reached
// the end of the quiz, it transitions the session to completed and
// returns the final results for the caller to broadcast and persist.
// transitioned is true only when this call is the one that flipped the
// session to completed — callers should broadcast/persist exactly when
// transitioned is true. It is skipped entirely (transitioned=false, no
// error) when the lock is already held by a concurrent scan, or when the
// session was already completed.
func (c *Controller) CheckCompletion(ctx context.Context, code string) (transitioned bool, results []model.FinalResultEntry, err error) {
	owner := fmt.Sprintf("completion-%d", time.Now().UnixNano())
	_, err = c.store.TryLock(ctx, store.LockCompletionCheck(code), owner, completionCheckTTL, func() error {
		sess, getErr := c.sessions.Get(ctx, code)
		if getErr != nil {
			return getErr
		}
		if sess.Status == model.StatusCompleted {
			return nil
		}

		total, totalErr := c.GetTotalQuestions(ctx, sess)
		if totalErr != nil {
			return totalErr
		}

		for userID := range sess.Participants {
			idx, _, idxErr := c.store.ParticipantIndexGet(ctx, code, userID)
			if idxErr != nil {
				return idxErr
			}
			if idx < total {
				return nil
			}
		}

		completedSess, completeErr := c.sessions.MarkCompleted(ctx, code)
		if completeErr != nil {
			return completeErr
		}
		results = finalResults(completedSess)
		transitioned = true
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return transitioned, results, nil
}

// finalResults ranks participants by score desc, answered_count desc,
// joined_at asc, matching the fixed leaderboard tie-break.
func finalResults(sess *model.Session) []model.FinalResultEntry {
	entries := make([]model.FinalResultEntry, 0, len(sess.Participants))
	for _, p := range sess.Participants {
		entries = append(entries, model.FinalResultEntry{
			UserID:        p.UserID,
			Username:      p.Username,
			Score:         p.Score,
			AnsweredCount: len(p.Answers),
			Answers:       p.Answers,
		})
	}

	byJoinedAt := make(map[string]time.Time, len(sess.Participants))
	for _, p := range sess.Participants {
		byJoinedAt[p.UserID] = p.JoinedAt
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].AnsweredCount != entries[j].AnsweredCount {
			return entries[i].AnsweredCount > entries[j].AnsweredCount
		}
		return byJoinedAt[entries[i].UserID].Before(byJoinedAt[entries[j].UserID])
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
