package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"
	"github.com/quizengine/session-engine/internal/config"
	"github.com/quizengine/session-engine/internal/quizrepo"
	"github.com/quizengine/session-engine/internal/sessionmgr"
	"github.com/quizengine/session-engine/internal/store"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and manage live sessions",
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsInspectCmd)
	sessionsCmd.AddCommand(sessionsExpireCmd)
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live session codes",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, sessions, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		codes, err := sessions.ListCodes(cmd.Context())
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		sort.Strings(codes)
		for _, code := range codes {
			fmt.Println(code)
		}
		if len(codes) == 0 {
			fmt.Println("no live sessions")
		}
		return nil
	},
}

var sessionsInspectCmd = &cobra.Command{
	Use:   "inspect <code>",
	Short: "Show full detail for one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, sessions, err := connect(ctx)
		if err != nil {
			return err
		}
		sess, err := sessions.Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("load session %s: %w", args[0], err)
		}
		fmt.Printf("code:                    %s\n", sess.Code)
		fmt.Printf("quiz_id:                 %s\n", sess.QuizID)
		fmt.Printf("quiz_title:              %s\n", sess.QuizTitle)
		fmt.Printf("host_id:                 %s\n", sess.HostID)
		fmt.Printf("status:                  %s\n", sess.Status)
		fmt.Printf("current_question_index:  %d\n", sess.CurrentQuestionIndex)
		fmt.Printf("total_questions:         %d\n", sess.TotalQuestions)
		fmt.Printf("per_question_time_limit: %d\n", sess.PerQuestionTimeLimit)
		fmt.Printf("participants:            %d\n", len(sess.Participants))
		for _, p := range sess.Participants {
			fmt.Printf("  - %-20s score=%-6d answers=%-3d connected=%v\n", p.Username, p.Score, len(p.Answers), p.Connected)
		}
		return nil
	},
}

var sessionsExpireCmd = &cobra.Command{
	Use:   "expire <code>",
	Short: "Force-remove a session immediately",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, sessions, err := connect(ctx)
		if err != nil {
			return err
		}
		if err := sessions.Expire(ctx, args[0]); err != nil {
			return fmt.Errorf("expire session %s: %w", args[0], err)
		}
		fmt.Printf("session %s expired\n", args[0])
		return nil
	},
}

// connect wires just enough of the stack (fast store, document store,
// Session Manager) for read/inspect operations, reusing the same config
// loader as the server process.
func connect(ctx context.Context) (*store.Store, *sessionmgr.Manager, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	db, err := quizrepo.Open(cfg.Postgres.GetConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}

	fastStore := store.New(rdb)
	quizzes := quizrepo.NewRepository(db)
	sessions := sessionmgr.New(fastStore, quizzes, cfg.Session.TTL())
	return fastStore, sessions, nil
}
