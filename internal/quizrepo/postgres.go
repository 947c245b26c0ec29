// Package quizrepo is the document store: durable PostgreSQL-backed
// storage for read-only quiz content and the final results persisted once
// a session completes. Quiz authoring itself is out of scope; this
// package only reads quizzes and writes completed-session results.
package quizrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/quizengine/session-engine/internal/model"
)

// ErrQuizNotFound is returned when a referenced quiz id does not exist.
var ErrQuizNotFound = errors.New("quizrepo: quiz not found")

// DB wraps a *sql.DB with the transaction helper the rest of the package
// uses for its one write path (persisting final results).
type DB struct {
	conn *sql.DB
}

// Open opens a PostgreSQL connection pool using the given DSN.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("quizrepo: open: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Ping verifies connectivity at startup.
func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Transaction runs fn inside a transaction, rolling back on error or panic
// and committing otherwise.
func (d *DB) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("quizrepo: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}

// Repository is the document store's read/write surface consumed by the
// Game Controller (quiz lookup) and by session completion (result
// persistence).
type Repository struct {
	db *DB
}

// NewRepository wraps an open DB.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// questionRow mirrors the normalized row shape used to reconstruct a
// model.Question from storage, independent of variant.
type questionRow struct {
	ID             string
	Text           string
	Type           string
	Options        []string
	TimeLimit      int
	CorrectIndex   int
	CorrectIndices []int
	CorrectMatches map[string]string
}

// GetQuiz loads a quiz and its ordered questions by id.
func (r *Repository) GetQuiz(ctx context.Context, quizID string) (*model.Quiz, error) {
	var title string
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT title FROM quizzes WHERE id = $1`, quizID,
	).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQuizNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("quizrepo: get quiz %s: %w", quizID, err)
	}

	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT id, question_text, question_type, options, time_limit,
		        correct_index, correct_indices, correct_matches
		   FROM questions
		  WHERE quiz_id = $1
		  ORDER BY position ASC`, quizID)
	if err != nil {
		return nil, fmt.Errorf("quizrepo: list questions %s: %w", quizID, err)
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var (
			row               questionRow
			optionsJSON       []byte
			correctIdxNull    sql.NullInt64
			correctIdxsJSON   []byte
			correctMatchJSON  []byte
		)
		if err := rows.Scan(&row.ID, &row.Text, &row.Type, &optionsJSON, &row.TimeLimit,
			&correctIdxNull, &correctIdxsJSON, &correctMatchJSON); err != nil {
			return nil, fmt.Errorf("quizrepo: scan question: %w", err)
		}
		if len(optionsJSON) > 0 {
			_ = json.Unmarshal(optionsJSON, &row.Options)
		}
		if correctIdxNull.Valid {
			row.CorrectIndex = int(correctIdxNull.Int64)
		}
		if len(correctIdxsJSON) > 0 {
			_ = json.Unmarshal(correctIdxsJSON, &row.CorrectIndices)
		}
		if len(correctMatchJSON) > 0 {
			_ = json.Unmarshal(correctMatchJSON, &row.CorrectMatches)
		}

		questions = append(questions, model.Question{
			ID:             row.ID,
			Text:           row.Text,
			Type:           model.QuestionType(row.Type),
			Options:        row.Options,
			TimeLimit:      row.TimeLimit,
			CorrectIndex:   row.CorrectIndex,
			CorrectIndices: row.CorrectIndices,
			CorrectMatches: row.CorrectMatches,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("quizrepo: iterate questions %s: %w", quizID, err)
	}

	return &model.Quiz{ID: quizID, Title: title, Questions: questions}, nil
}

// QuizExists reports whether a quiz id exists, used by Session Manager's
// Create to fail fast against a bogus quiz reference.
func (r *Repository) QuizExists(ctx context.Context, quizID string) (bool, error) {
	var exists bool
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM quizzes WHERE id = $1)`, quizID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("quizrepo: quiz exists %s: %w", quizID, err)
	}
	return exists, nil
}

// SaveFinalResult persists the ranked final result once, idempotently by
// session code: a second call for the same code replaces the row rather
// than duplicating it.
func (r *Repository) SaveFinalResult(ctx context.Context, result *model.FinalResult) error {
	payload, err := json.Marshal(result.Results)
	if err != nil {
		return fmt.Errorf("quizrepo: marshal final result %s: %w", result.SessionCode, err)
	}

	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO session_results (session_code, quiz_id, completed_at, results)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (session_code) DO UPDATE
			SET quiz_id = EXCLUDED.quiz_id,
			    completed_at = EXCLUDED.completed_at,
			    results = EXCLUDED.results
		`, result.SessionCode, result.QuizID, result.CompletedAt, payload)
		if err != nil {
			return fmt.Errorf("quizrepo: save final result %s: %w", result.SessionCode, err)
		}
		return nil
	})
}

// GetFinalResult reads back a persisted final result, used by the
// `final` leaderboard query once a session is already completed.
func (r *Repository) GetFinalResult(ctx context.Context, sessionCode string) (*model.FinalResult, error) {
	var (
		quizID      string
		completedAt sql.NullTime
		payload     []byte
	)
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT quiz_id, completed_at, results FROM session_results WHERE session_code = $1`,
		sessionCode,
	).Scan(&quizID, &completedAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQuizNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("quizrepo: get final result %s: %w", sessionCode, err)
	}

	var entries []model.FinalResultEntry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, fmt.Errorf("quizrepo: unmarshal final result %s: %w", sessionCode, err)
	}

	res := &model.FinalResult{
		SessionCode: sessionCode,
		QuizID:      quizID,
		Results:     entries,
	}
	if completedAt.Valid {
		res.CompletedAt = completedAt.Time
	}
	return res, nil
}
