// Package sessionmgr implements the Session Manager: session lifecycle
// (create, admit, start, end), participant roster maintenance, and host
// identity checks. It mutates the session-level hash fields in the fast
// store; the one other writer is the Game Controller, which writes answer
// records and scores into the participants field.
package sessionmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/quizengine/session-engine/internal/model"
	"github.com/quizengine/session-engine/internal/quizrepo"
	"github.com/quizengine/session-engine/internal/store"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrSessionNotFound covers both a never-created code and an expired one.
	ErrSessionNotFound = errors.New("sessionmgr: session not found")
	ErrQuizNotFound     = errors.New("sessionmgr: quiz not found")
	ErrHostCannotJoin   = errors.New("sessionmgr: host cannot participate")
	ErrLockBusy         = errors.New("sessionmgr: server busy, please try again")
	ErrNotHost          = errors.New("sessionmgr: only host can perform this action")
	ErrAlreadyActive    = errors.New("sessionmgr: session already active")
	ErrNoParticipants   = errors.New("sessionmgr: session has no participants")
	ErrNoQuestions      = errors.New("sessionmgr: quiz has no questions")
	ErrCodeSpaceExhausted = errors.New("sessionmgr: could not allocate a unique session code")
)

const (
	admissionLockTTL       = 5 * time.Second
	admissionMaxAttempts   = 20
	admissionBackoffMin    = 50 * time.Millisecond
	admissionBackoffMax    = 450 * time.Millisecond
	codeGenerationAttempts = 10
)

// Manager is the Session Manager.
type Manager struct {
	store    *store.Store
	quizzes  *quizrepo.Repository
	ttl      time.Duration
}

// New constructs a Session Manager bound to the fast store and the
// document store's quiz repository.
func New(st *store.Store, quizzes *quizrepo.Repository, ttl time.Duration) *Manager {
	return &Manager{store: st, quizzes: quizzes, ttl: ttl}
}

// Create allocates a unique session code and persists a new waiting
// session for the given quiz and host. Fails if the quiz does not exist.
// Returns the session alongside a one-time plaintext reclaim secret; only
// its bcrypt hash is persisted, so the caller must hand the secret to the
// host immediately — it cannot be recovered later.
func (m *Manager) Create(ctx context.Context, quizID, hostID string, perQuestionSeconds int) (*model.Session, string, error) {
	quiz, err := m.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		if errors.Is(err, quizrepo.ErrQuizNotFound) {
			return nil, "", ErrQuizNotFound
		}
		return nil, "", err
	}

	var code string
	for attempt := 0; attempt < codeGenerationAttempts; attempt++ {
		candidate, genErr := generateCode()
		if genErr != nil {
			return nil, "", fmt.Errorf("sessionmgr: generate code: %w", genErr)
		}
		exists, existsErr := m.store.SessionExists(ctx, candidate)
		if existsErr != nil {
			return nil, "", existsErr
		}
		if !exists {
			code = candidate
			break
		}
	}
	if code == "" {
		return nil, "", ErrCodeSpaceExhausted
	}

	// The reclaim secret is a full UUID rather than a 6-char session code:
	// it is never typed by hand, only copy-pasted by the host's own client,
	// so it can afford to be long enough that guessing it is infeasible.
	reclaimSecret := uuid.NewString()
	reclaimHash, err := bcrypt.GenerateFromPassword([]byte(reclaimSecret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("sessionmgr: hash reclaim secret: %w", err)
	}

	now := time.Now()
	sess := &model.Session{
		Code:                 code,
		QuizID:               quizID,
		QuizTitle:            quiz.Title,
		HostID:               hostID,
		Status:               model.StatusWaiting,
		TotalQuestions:       quiz.TotalQuestions(),
		PerQuestionTimeLimit: perQuestionSeconds,
		CreatedAt:            now,
		ExpiresAt:            now.Add(m.ttl),
		Participants:         map[string]*model.Participant{},
		HostReclaimHash:      string(reclaimHash),
	}

	if err := m.persist(ctx, sess); err != nil {
		return nil, "", err
	}

	log.Info().Str("code", code).Str("quiz_id", quizID).Str("host_id", hostID).Msg("session created")
	return sess, reclaimSecret, nil
}

// ValidateHost reports whether userID or reclaimSecret authorizes host
// access to the session: host_id equality remains the authority, the
// reclaim secret is an additive fallback for recovering host privileges
// after a full client restart.
func (m *Manager) ValidateHost(ctx context.Context, code, userID, reclaimSecret string) (bool, error) {
	sess, err := m.Get(ctx, code)
	if err != nil {
		return false, err
	}
	if sess.HostID == userID {
		return true, nil
	}
	if reclaimSecret == "" || sess.HostReclaimHash == "" {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(sess.HostReclaimHash), []byte(reclaimSecret)) == nil, nil
}

// Get loads a session by code, surfacing ErrSessionNotFound when it is
// missing or has expired.
func (m *Manager) Get(ctx context.Context, code string) (*model.Session, error) {
	fields, err := m.store.SessionHGetAll(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeSession(code, fields)
}

// IsHost reports whether userID is the host of the session identified by
// code.
func (m *Manager) IsHost(ctx context.Context, code, userID string) (bool, error) {
	sess, err := m.Get(ctx, code)
	if err != nil {
		return false, err
	}
	return sess.HostID == userID, nil
}

// Admit adds or reactivates a participant under the session-scoped
// admission lock, preserving score and answers on reconnect (I4: the host
// is never admitted as a participant).
func (m *Manager) Admit(ctx context.Context, code, userID, username string) (*model.Participant, error) {
	sess, err := m.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if userID == sess.HostID {
		return nil, ErrHostCannotJoin
	}

	var admitted *model.Participant
	lockErr := m.store.WithLock(ctx, store.LockSessionParticipants(code), admissionLockTTL,
		admissionMaxAttempts, admissionBackoffMin, admissionBackoffMax, func() error {
			sess, err = m.Get(ctx, code)
			if err != nil {
				return err
			}

			p, exists := sess.Participants[userID]
			if !exists {
				p = &model.Participant{
					UserID:   userID,
					Username: username,
					JoinedAt: time.Now(),
				}
				sess.Participants[userID] = p
			}
			p.Connected = true
			if username != "" {
				p.Username = username
			}
			admitted = p

			return m.saveParticipants(ctx, sess)
		})
	if errors.Is(lockErr, store.ErrLockExhausted) {
		return nil, ErrLockBusy
	}
	if lockErr != nil {
		return nil, lockErr
	}
	return admitted, nil
}

// MarkDisconnected flips a participant's connected flag without removing
// their record.
func (m *Manager) MarkDisconnected(ctx context.Context, code, userID string) error {
	lockErr := m.store.WithLock(ctx, store.LockSessionParticipants(code), admissionLockTTL,
		admissionMaxAttempts, admissionBackoffMin, admissionBackoffMax, func() error {
			sess, err := m.Get(ctx, code)
			if err != nil {
				return err
			}
			p, exists := sess.Participants[userID]
			if !exists {
				return nil
			}
			p.Connected = false
			return m.saveParticipants(ctx, sess)
		})
	if errors.Is(lockErr, store.ErrLockExhausted) {
		return ErrLockBusy
	}
	return lockErr
}

// Start transitions a waiting session to active. Host-only; requires at
// least one participant and a non-empty quiz.
func (m *Manager) Start(ctx context.Context, code, userID string, perQuestionSeconds int, autoAdvance bool) (*model.Session, error) {
	sess, err := m.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if sess.HostID != userID {
		return nil, ErrNotHost
	}
	if sess.Status != model.StatusWaiting {
		return nil, ErrAlreadyActive
	}
	if len(sess.Participants) == 0 {
		return nil, ErrNoParticipants
	}
	if sess.TotalQuestions == 0 {
		return nil, ErrNoQuestions
	}

	now := time.Now()
	sess.Status = model.StatusActive
	sess.QuizStartTime = &now
	sess.PerQuestionTimeLimit = perQuestionSeconds
	sess.AutoAdvance = autoAdvance
	sess.CurrentQuestionIndex = 0

	if err := m.persist(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// End transitions a session to completed. Idempotent: ending an
// already-completed session is a no-op (I5, round-trip law).
func (m *Manager) End(ctx context.Context, code, userID string) (*model.Session, error) {
	sess, err := m.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if sess.HostID != userID {
		return nil, ErrNotHost
	}
	if sess.Status == model.StatusCompleted {
		return sess, nil
	}
	sess.Status = model.StatusCompleted
	if err := m.persist(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// MarkCompleted transitions a session to completed regardless of caller
// identity; used internally by the Game Controller's completion scan,
// which is not host-gated (any player's submission can trigger it).
func (m *Manager) MarkCompleted(ctx context.Context, code string) (*model.Session, error) {
	sess, err := m.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if sess.Status == model.StatusCompleted {
		return sess, nil
	}
	sess.Status = model.StatusCompleted
	if err := m.persist(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// SetCurrentQuestionIndex updates the host-paced current index (unused in
// self-paced mode, retained for the host-paced fallback).
func (m *Manager) SetCurrentQuestionIndex(ctx context.Context, code string, index int) error {
	return m.store.SessionHSet(ctx, code, "current_question_index", strconv.Itoa(index), m.ttl)
}

// Expire force-removes a session's hash immediately, for operational use
// (the quizctl CLI) rather than any client-facing flow.
func (m *Manager) Expire(ctx context.Context, code string) error {
	return m.store.Delete(ctx, store.SessionKey(code))
}

// ListCodes returns every live session code, for operational inspection.
func (m *Manager) ListCodes(ctx context.Context) ([]string, error) {
	return m.store.ListSessionCodes(ctx)
}

// saveParticipants persists only the participants blob, leaving the rest
// of the session hash untouched.
func (m *Manager) saveParticipants(ctx context.Context, sess *model.Session) error {
	blob, err := json.Marshal(sess.Participants)
	if err != nil {
		return fmt.Errorf("sessionmgr: marshal participants: %w", err)
	}
	return m.store.SessionHSet(ctx, sess.Code, "participants", string(blob), m.ttl)
}

// persist writes the full session hash.
func (m *Manager) persist(ctx context.Context, sess *model.Session) error {
	fields, err := encodeSession(sess)
	if err != nil {
		return err
	}
	return m.store.SessionHSetMany(ctx, sess.Code, fields, m.ttl)
}
