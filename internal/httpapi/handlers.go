package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quizengine/session-engine/internal/authn"
	"github.com/quizengine/session-engine/internal/model"
	"github.com/quizengine/session-engine/internal/sessionmgr"
	"github.com/quizengine/session-engine/internal/store"
	"github.com/quizengine/session-engine/pkg/response"
)

type createSessionRequest struct {
	QuizID               string `json:"quiz_id" binding:"required"`
	PerQuestionTimeLimit int    `json:"per_question_time_limit"`
}

type createSessionResponse struct {
	Code          string `json:"code"`
	QuizTitle     string `json:"quiz_title"`
	ReclaimSecret string `json:"reclaim_secret"`
}

// CreateSession handles POST /api/multiplayer/create-session.
func (a *API) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.WithError(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	perQuestionSeconds := req.PerQuestionTimeLimit
	if perQuestionSeconds <= 0 {
		perQuestionSeconds = 20
	}

	hostID := authn.UserID(c)
	sess, reclaimSecret, err := a.sessions.Create(c.Request.Context(), req.QuizID, hostID, perQuestionSeconds)
	if errors.Is(err, sessionmgr.ErrQuizNotFound) {
		response.WithError(c, http.StatusNotFound, "quiz not found", err.Error())
		return
	}
	if err != nil {
		response.WithError(c, http.StatusInternalServerError, "failed to create session", err.Error())
		return
	}

	response.WithSessionSuccess(c, http.StatusCreated, "session created", sess.Code, createSessionResponse{
		Code:          sess.Code,
		QuizTitle:     sess.QuizTitle,
		ReclaimSecret: reclaimSecret,
	})
}

// GetSession handles GET /api/multiplayer/session/{code}.
func (a *API) GetSession(c *gin.Context) {
	sess, err := a.getSessionOr404(c)
	if err != nil {
		return
	}
	response.WithSessionSuccess(c, http.StatusOK, "session fetched", sess.Code, sessionView(sess, authn.UserID(c)))
}

// GetParticipants handles GET /api/multiplayer/session/{code}/participants.
func (a *API) GetParticipants(c *gin.Context) {
	sess, err := a.getSessionOr404(c)
	if err != nil {
		return
	}
	entries, err := a.boards.Live(c.Request.Context(), sess.Code)
	if err != nil {
		response.WithError(c, http.StatusInternalServerError, "failed to load participants", err.Error())
		return
	}
	response.WithSuccess(c, http.StatusOK, "participants fetched", entries)
}

type joinSessionRequest struct {
	Username string `json:"username"`
}

// JoinSession handles POST /api/multiplayer/session/{code}/join, the REST
// fallback for clients not yet connected to the push channel.
func (a *API) JoinSession(c *gin.Context) {
	code := c.Param("code")
	userID := authn.UserID(c)
	var req joinSessionRequest
	_ = c.ShouldBindJSON(&req)

	p, err := a.sessions.Admit(c.Request.Context(), code, userID, req.Username)
	if err != nil {
		a.replySessionError(c, err)
		return
	}
	response.WithSessionSuccess(c, http.StatusOK, "joined session", code, p)
}

type startSessionRequest struct {
	PerQuestionTimeLimit int  `json:"per_question_time_limit"`
	AutoAdvance          bool `json:"auto_advance"`
}

// StartSession handles POST /api/multiplayer/session/{code}/start.
func (a *API) StartSession(c *gin.Context) {
	code := c.Param("code")
	userID := authn.UserID(c)
	var req startSessionRequest
	_ = c.ShouldBindJSON(&req)

	perQuestionSeconds := req.PerQuestionTimeLimit
	if perQuestionSeconds <= 0 {
		sess, err := a.sessions.Get(c.Request.Context(), code)
		if err != nil {
			a.replySessionError(c, err)
			return
		}
		perQuestionSeconds = sess.PerQuestionTimeLimit
	}

	sess, err := a.sessions.Start(c.Request.Context(), code, userID, perQuestionSeconds, req.AutoAdvance)
	if err != nil {
		a.replySessionError(c, err)
		return
	}
	response.WithSessionSuccess(c, http.StatusOK, "quiz started", code, sessionView(sess, userID))
}

// EndSession handles POST /api/multiplayer/session/{code}/end.
func (a *API) EndSession(c *gin.Context) {
	code := c.Param("code")
	userID := authn.UserID(c)

	sess, err := a.sessions.End(c.Request.Context(), code, userID)
	if err != nil {
		a.replySessionError(c, err)
		return
	}
	results, err := a.boards.Final(c.Request.Context(), code)
	if err != nil {
		response.WithError(c, http.StatusInternalServerError, "failed to load final results", err.Error())
		return
	}
	response.WithSessionSuccess(c, http.StatusOK, "quiz ended", code, gin.H{
		"session": sessionView(sess, userID),
		"results": results,
	})
}

type validateHostRequest struct {
	ReclaimSecret string `json:"reclaim_secret"`
}

// ValidateHost handles POST /api/multiplayer/session/{code}/validate: the
// host-reclaim check described in the data model expansion.
func (a *API) ValidateHost(c *gin.Context) {
	code := c.Param("code")
	userID := authn.UserID(c)
	var req validateHostRequest
	_ = c.ShouldBindJSON(&req)

	ok, err := a.sessions.ValidateHost(c.Request.Context(), code, userID, req.ReclaimSecret)
	if err != nil {
		a.replySessionError(c, err)
		return
	}
	response.WithSessionSuccess(c, http.StatusOK, "host validated", code, gin.H{"is_host": ok})
}

// GetActiveSession handles GET /api/multiplayer/user/{user_id}/active-session:
// reads the user_active_session:<user> bookkeeping key, then re-validates
// that the referenced session still exists before returning it.
func (a *API) GetActiveSession(c *gin.Context) {
	userID := c.Param("user_id")
	code, ok, err := a.store.GetString(c.Request.Context(), store.UserActiveSession(userID))
	if err != nil {
		response.WithError(c, http.StatusInternalServerError, "failed to load active session", err.Error())
		return
	}
	if !ok {
		response.WithSuccess(c, http.StatusOK, "no active session", gin.H{"active": false})
		return
	}

	sess, err := a.sessions.Get(c.Request.Context(), code)
	if errors.Is(err, sessionmgr.ErrSessionNotFound) {
		_ = a.store.Delete(c.Request.Context(), store.UserActiveSession(userID))
		response.WithSuccess(c, http.StatusOK, "no active session", gin.H{"active": false})
		return
	}
	if err != nil {
		response.WithError(c, http.StatusInternalServerError, "failed to load active session", err.Error())
		return
	}
	response.WithSessionSuccess(c, http.StatusOK, "active session fetched", code, gin.H{
		"active":  true,
		"session": sessionView(sess, userID),
	})
}

// ClearActiveSession handles DELETE /api/multiplayer/user/{user_id}/active-session.
func (a *API) ClearActiveSession(c *gin.Context) {
	userID := c.Param("user_id")
	if err := a.store.Delete(c.Request.Context(), store.UserActiveSession(userID)); err != nil {
		response.WithError(c, http.StatusInternalServerError, "failed to clear active session", err.Error())
		return
	}
	response.WithSuccess(c, http.StatusOK, "active session cleared", nil)
}

func (a *API) getSessionOr404(c *gin.Context) (*model.Session, error) {
	sess, err := a.sessions.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		a.replySessionError(c, err)
		return nil, err
	}
	return sess, nil
}

// replySessionError maps Session Manager sentinel errors to HTTP status
// codes without leaking internal detail.
func (a *API) replySessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sessionmgr.ErrSessionNotFound):
		response.WithError(c, http.StatusNotFound, "session not found", err.Error())
	case errors.Is(err, sessionmgr.ErrHostCannotJoin):
		response.WithError(c, http.StatusForbidden, "host cannot join as participant", err.Error())
	case errors.Is(err, sessionmgr.ErrNotHost):
		response.WithError(c, http.StatusForbidden, "only the host can perform this action", err.Error())
	case errors.Is(err, sessionmgr.ErrAlreadyActive):
		response.WithError(c, http.StatusConflict, "session already active", err.Error())
	case errors.Is(err, sessionmgr.ErrNoParticipants):
		response.WithError(c, http.StatusConflict, "session has no participants", err.Error())
	case errors.Is(err, sessionmgr.ErrNoQuestions):
		response.WithError(c, http.StatusConflict, "quiz has no questions", err.Error())
	case errors.Is(err, sessionmgr.ErrLockBusy):
		response.WithError(c, http.StatusServiceUnavailable, "server busy, please try again", err.Error())
	default:
		response.WithError(c, http.StatusInternalServerError, "internal error", err.Error())
	}
}

type sessionResponse struct {
	Code                 string `json:"code"`
	QuizTitle            string `json:"quiz_title"`
	Status               string `json:"status"`
	IsHost               bool   `json:"is_host"`
	TotalQuestions       int    `json:"total_questions"`
	PerQuestionTimeLimit int    `json:"per_question_time_limit"`
	CurrentQuestionIndex int    `json:"current_question_index"`
	ParticipantCount     int    `json:"participant_count"`
}

func sessionView(sess *model.Session, userID string) sessionResponse {
	return sessionResponse{
		Code:                 sess.Code,
		QuizTitle:            sess.QuizTitle,
		Status:               string(sess.Status),
		IsHost:               sess.HostID == userID,
		TotalQuestions:       sess.TotalQuestions,
		PerQuestionTimeLimit: sess.PerQuestionTimeLimit,
		CurrentQuestionIndex: sess.CurrentQuestionIndex,
		ParticipantCount:     len(sess.Participants),
	}
}
