// Package model defines the domain entities shared across the session
// engine: sessions, participants, quizzes, and the final results produced
// once a session completes.
package model

import "time"

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Session is a single live instance of a quiz being played by a group of
// participants. It is identified by a short, human-shareable Code rather
// than an opaque id, since the code is what gets typed into a join screen.
type Session struct {
	Code                 string          `json:"code"`
	QuizID               string          `json:"quiz_id"`
	QuizTitle            string          `json:"quiz_title"`
	HostID               string          `json:"host_id"`
	Status               Status          `json:"status"`
	CurrentQuestionIndex int             `json:"current_question_index"`
	TotalQuestions       int             `json:"total_questions"`
	PerQuestionTimeLimit int             `json:"per_question_time_limit"`
	AutoAdvance          bool            `json:"auto_advance"`
	CreatedAt            time.Time       `json:"created_at"`
	ExpiresAt            time.Time       `json:"expires_at"`
	QuizStartTime        *time.Time      `json:"quiz_start_time,omitempty"`
	Participants         map[string]*Participant `json:"participants"`

	// HostReclaimHash is the bcrypt hash of a one-time secret handed to the
	// host at creation time, letting them recover host privileges after a
	// full client restart (not just a reconnect). Never serialized back to
	// any client.
	HostReclaimHash string `json:"-"`
}

// AnswerRecord is one entry in a participant's answer trace.
type AnswerRecord struct {
	QuestionIndex int       `json:"question_index"`
	Answer        interface{} `json:"answer"`
	Timestamp     float64   `json:"timestamp"`
	IsCorrect     bool      `json:"is_correct"`
	PointsEarned  int       `json:"points_earned"`
}

// Participant is a non-host player that has joined a Session. The host is
// never represented here (I4).
type Participant struct {
	UserID    string          `json:"user_id"`
	Username  string          `json:"username"`
	JoinedAt  time.Time       `json:"joined_at"`
	Connected bool            `json:"connected"`
	Score     int             `json:"score"`
	Answers   []AnswerRecord  `json:"answers"`
}

// FinalResultEntry is one row of a persisted, ranked final result.
type FinalResultEntry struct {
	Rank          int            `json:"rank"`
	UserID        string         `json:"user_id"`
	Username      string         `json:"username"`
	Score         int            `json:"score"`
	AnsweredCount int            `json:"answered_count"`
	Answers       []AnswerRecord `json:"answers"`
}

// FinalResult is the document persisted once a session completes.
type FinalResult struct {
	SessionCode string              `json:"session_code"`
	QuizID      string              `json:"quiz_id"`
	CompletedAt time.Time           `json:"completed_at"`
	Results     []FinalResultEntry  `json:"results"`
}

// LeaderboardEntry is the row shape used for both live and final
// leaderboard snapshots.
type LeaderboardEntry struct {
	UserID         string    `json:"user_id"`
	Username       string    `json:"username"`
	Score          int       `json:"score"`
	QuestionIndex  int       `json:"question_index"`
	AnsweredCount  int       `json:"answered_count"`
	TotalQuestions int       `json:"total_questions"`
	Connected      bool      `json:"connected"`
	JoinedAt       time.Time `json:"-"`
}
