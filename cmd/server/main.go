// Command server runs the quiz session engine: the push-channel gateway
// and its REST auxiliaries, backed by Redis (fast store) and PostgreSQL
// (document store).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/quizengine/session-engine/internal/authn"
	"github.com/quizengine/session-engine/internal/config"
	"github.com/quizengine/session-engine/internal/game"
	"github.com/quizengine/session-engine/internal/gateway"
	"github.com/quizengine/session-engine/internal/httpapi"
	"github.com/quizengine/session-engine/internal/leaderboard"
	"github.com/quizengine/session-engine/internal/logging"
	"github.com/quizengine/session-engine/internal/quizrepo"
	"github.com/quizengine/session-engine/internal/registry"
	"github.com/quizengine/session-engine/internal/sessionmgr"
	"github.com/quizengine/session-engine/internal/store"
	"github.com/rs/zerolog/log"
)

func main() {
	logging.Init(os.Getenv("APP_ENV") != "production")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := quizrepo.Open(cfg.Postgres.GetConnectionString())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open postgres connection")
	}
	defer db.Close()
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping postgres")
	}
	log.Info().Msg("connected to postgres")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to ping redis")
	}
	log.Info().Msg("connected to redis")

	fastStore := store.New(rdb)
	quizzes := quizrepo.NewRepository(db)
	sessions := sessionmgr.New(fastStore, quizzes, cfg.Session.TTL())
	games := game.New(fastStore, sessions, quizzes)
	boards := leaderboard.New(fastStore, sessions, games, quizzes)
	conns := registry.New()
	verifier := authn.NewVerifier(cfg.JWT)

	gw := gateway.New(ctx, sessions, games, boards, conns, quizzes, fastStore, cfg.CORS.AllowedOrigins)
	api := httpapi.New(sessions, games, boards, fastStore, verifier)

	router := gin.Default()
	httpapi.Mount(router, api, gw, cfg.CORS.AllowedOrigins)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited")
}
