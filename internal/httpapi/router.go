// Package httpapi implements the REST auxiliaries: the small set of
// request/response endpoints around the push channel (create a session,
// inspect it, join/start/end by REST as a fallback to the WS verbs, and
// the reverse-lookup used by a client recovering which session it was
// last in).
package httpapi

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/quizengine/session-engine/internal/authn"
	"github.com/quizengine/session-engine/internal/game"
	"github.com/quizengine/session-engine/internal/gateway"
	"github.com/quizengine/session-engine/internal/leaderboard"
	"github.com/quizengine/session-engine/internal/sessionmgr"
	"github.com/quizengine/session-engine/internal/store"
)

// API bundles the components the REST handlers call into.
type API struct {
	sessions *sessionmgr.Manager
	games    *game.Controller
	boards   *leaderboard.Manager
	store    *store.Store
	verifier *authn.Verifier
}

// New constructs the REST auxiliaries' handler set.
func New(sessions *sessionmgr.Manager, games *game.Controller, boards *leaderboard.Manager, st *store.Store, verifier *authn.Verifier) *API {
	return &API{sessions: sessions, games: games, boards: boards, store: st, verifier: verifier}
}

// Mount wires the REST auxiliaries and the WS upgrade endpoint onto a Gin
// engine, behind the configured CORS policy and bearer-token auth.
func Mount(r *gin.Engine, api *API, gw *gateway.Gateway, allowedOrigins []string) {
	corsConfig := cors.DefaultConfig()
	if len(allowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = allowedOrigins
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	r.Use(cors.New(corsConfig))

	r.GET("/api/ws/:session_code", gw.ServeWS)

	mp := r.Group("/api/multiplayer", authn.RequireAuth(api.verifier))
	mp.POST("/create-session", api.CreateSession)
	mp.GET("/session/:code", api.GetSession)
	mp.GET("/session/:code/participants", api.GetParticipants)
	mp.POST("/session/:code/join", api.JoinSession)
	mp.POST("/session/:code/start", api.StartSession)
	mp.POST("/session/:code/end", api.EndSession)
	mp.POST("/session/:code/validate", api.ValidateHost)
	mp.GET("/user/:user_id/active-session", api.GetActiveSession)
	mp.DELETE("/user/:user_id/active-session", api.ClearActiveSession)
}
