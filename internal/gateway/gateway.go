// Package gateway implements the Session Gateway: the bidirectional push
// channel endpoint that admits connections, authenticates session
// membership, dispatches inbound message types to handlers, emits
// outbound events, and owns the per-question auto-advance timers.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/quizengine/session-engine/internal/game"
	"github.com/quizengine/session-engine/internal/leaderboard"
	"github.com/quizengine/session-engine/internal/model"
	"github.com/quizengine/session-engine/internal/quizrepo"
	"github.com/quizengine/session-engine/internal/registry"
	"github.com/quizengine/session-engine/internal/sessionmgr"
	"github.com/quizengine/session-engine/internal/store"
	"github.com/rs/zerolog/log"
)

var (
	sessionCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)
	userIDPattern      = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
)

const (
	closeInvalidSessionCode = 4001
	closeInvalidUserID      = 4002

	autoAdvanceGrace     = 2 * time.Second
	activeSessionTTL     = time.Hour
	userActiveSessionTTL = time.Hour
)

// Gateway is the Session Gateway.
type Gateway struct {
	sessions  *sessionmgr.Manager
	games     *game.Controller
	boards    *leaderboard.Manager
	registry  *registry.Registry
	quizzes   *quizrepo.Repository
	store     *store.Store
	timers    *timerManager
	sems      *semaphorePool
	upgrader  websocket.Upgrader
	bgContext context.Context
}

// New constructs a Session Gateway bound to the other five components.
func New(ctx context.Context, sessions *sessionmgr.Manager, games *game.Controller, boards *leaderboard.Manager, reg *registry.Registry, quizzes *quizrepo.Repository, st *store.Store, allowedOrigins []string) *Gateway {
	return &Gateway{
		sessions: sessions,
		games:    games,
		boards:   boards,
		registry: reg,
		quizzes:  quizzes,
		store:    st,
		timers:   newTimerManager(),
		sems:     newSemaphorePool(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     makeOriginCheck(allowedOrigins),
		},
		bgContext: ctx,
	}
}

func makeOriginCheck(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimSpace(o)] = true
	}
	return func(r *http.Request) bool {
		return set[r.Header.Get("Origin")]
	}
}

// ServeWS is the Gin handler for GET /api/ws/:session_code.
func (g *Gateway) ServeWS(c *gin.Context) {
	code := strings.ToUpper(strings.TrimSpace(c.Param("session_code")))
	userID := strings.TrimSpace(c.Query("user_id"))

	if !sessionCodePattern.MatchString(code) {
		g.closeWithCode(c, closeInvalidSessionCode, "invalid session code")
		return
	}
	if !userIDPattern.MatchString(userID) {
		g.closeWithCode(c, closeInvalidUserID, "invalid user id")
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	ctx := context.Background()
	isHost, err := g.sessions.IsHost(ctx, code, userID)
	if err != nil && !errors.Is(err, sessionmgr.ErrSessionNotFound) {
		log.Error().Err(err).Str("code", code).Msg("failed to resolve host role at admission")
	}

	regConn := &registry.Connection{
		Code:   code,
		UserID: userID,
		IsHost: isHost,
		Send:   make(chan []byte, 32),
	}
	g.registry.Attach(regConn)

	ws := &wsConn{conn: conn, reg: regConn, gw: g, code: code, userID: userID, isHost: isHost}

	go ws.writePump()
	ws.readPump()
}

func (g *Gateway) closeWithCode(c *gin.Context, code int, reason string) {
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// dispatch routes one parsed inbound frame to its handler.
func (g *Gateway) dispatch(c *wsConn, frame Frame) {
	ctx := context.Background()
	switch InboundType(frame.Type) {
	case InJoin:
		g.handleJoin(ctx, c, frame.Payload)
	case InStartQuiz:
		g.handleStartQuiz(ctx, c, frame.Payload)
	case InSubmitAnswer:
		g.handleSubmitAnswer(ctx, c, frame.Payload)
	case InRequestNextQuestion:
		g.handleRequestNextQuestion(ctx, c)
	case InNextQuestion:
		g.handleNextQuestion(ctx, c)
	case InEndQuiz:
		g.handleEndQuiz(ctx, c)
	case InRequestLeaderboard:
		g.handleRequestLeaderboard(ctx, c)
	case InPing:
		c.writeOutbound(newFrame(OutPong, map[string]int64{"time": time.Now().Unix()}))
	default:
		log.Info().Str("type", frame.Type).Str("code", c.code).Str("user_id", c.userID).Msg("unknown inbound frame type, dropped")
	}
}

// handleDisconnect detaches the connection and, if it was the host of an
// active session, advises participants without ending the session.
func (g *Gateway) handleDisconnect(c *wsConn) {
	g.registry.Detach(c.reg)

	ctx := context.Background()
	sess, err := g.sessions.Get(ctx, c.code)
	if err != nil {
		return
	}
	if err := g.sessions.MarkDisconnected(ctx, c.code, c.userID); err != nil {
		log.Warn().Err(err).Str("code", c.code).Str("user_id", c.userID).Msg("failed to mark participant disconnected")
	}
	if c.isHost && sess.Status == model.StatusActive {
		g.broadcastParticipants(c.code, OutHostDisconnected, map[string]string{"host_id": c.userID})
	}
}

// broadcast marshals payload once and fans it out to an entire session.
func (g *Gateway) broadcast(code string, t OutboundType, payload interface{}) {
	data, err := json.Marshal(newFrame(t, payload))
	if err != nil {
		log.Error().Err(err).Str("type", string(t)).Msg("failed to marshal broadcast frame")
		return
	}
	g.registry.Broadcast(code, data)
}

func (g *Gateway) broadcastParticipants(code string, t OutboundType, payload interface{}) {
	data, err := json.Marshal(newFrame(t, payload))
	if err != nil {
		log.Error().Err(err).Str("type", string(t)).Msg("failed to marshal broadcast frame")
		return
	}
	g.registry.BroadcastParticipants(code, data)
}

func (g *Gateway) sendTo(code, userID string, t OutboundType, payload interface{}) {
	data, err := json.Marshal(newFrame(t, payload))
	if err != nil {
		log.Error().Err(err).Str("type", string(t)).Msg("failed to marshal unicast frame")
		return
	}
	g.registry.SendOne(code, userID, data)
}

func leaderboardRows(entries []model.LeaderboardEntry) []LeaderboardRow {
	rows := make([]LeaderboardRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, LeaderboardRow{
			UserID:         e.UserID,
			Username:       e.Username,
			Score:          e.Score,
			QuestionIndex:  e.QuestionIndex,
			AnsweredCount:  e.AnsweredCount,
			TotalQuestions: e.TotalQuestions,
			Connected:      e.Connected,
		})
	}
	return rows
}

func finalResultRows(entries []model.FinalResultEntry) []LeaderboardRow {
	rows := make([]LeaderboardRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, LeaderboardRow{
			UserID:        e.UserID,
			Username:      e.Username,
			Score:         e.Score,
			AnsweredCount: e.AnsweredCount,
		})
	}
	return rows
}
