package gateway

import "encoding/json"

// InboundType is the closed set of message types a client may send.
// Anything else is the enumerated "unknown" variant: logged and dropped,
// per the redesign away from open-ended string dispatch.
type InboundType string

const (
	InJoin                 InboundType = "join"
	InStartQuiz            InboundType = "start_quiz"
	InSubmitAnswer         InboundType = "submit_answer"
	InNextQuestion         InboundType = "next_question"
	InRequestNextQuestion  InboundType = "request_next_question"
	InEndQuiz              InboundType = "end_quiz"
	InRequestLeaderboard   InboundType = "request_leaderboard"
	InPing                 InboundType = "ping"
	InUnknown              InboundType = "unknown"
)

// OutboundType is the closed set of message types the gateway emits.
type OutboundType string

const (
	OutSessionState       OutboundType = "session_state"
	OutSessionUpdate      OutboundType = "session_update"
	OutQuizStarted        OutboundType = "quiz_started"
	OutQuestion           OutboundType = "question"
	OutAnswerResult       OutboundType = "answer_result"
	OutLeaderboardUpdate  OutboundType = "leaderboard_update"
	OutLeaderboardResp    OutboundType = "leaderboard_response"
	OutQuizCompleted      OutboundType = "quiz_completed"
	OutQuizEnded          OutboundType = "quiz_ended"
	OutHostDisconnected   OutboundType = "host_disconnected"
	OutHostReconnected    OutboundType = "host_reconnected"
	OutError              OutboundType = "error"
	OutPong               OutboundType = "pong"
)

// Frame is the wire envelope for both directions: {"type": T, "payload": P}.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// OutFrame is the same envelope shape used to marshal outbound messages,
// kept distinct from Frame so the payload side can be a concrete value
// rather than raw bytes.
type OutFrame struct {
	Type    OutboundType `json:"type"`
	Payload interface{}  `json:"payload"`
}

func newFrame(t OutboundType, payload interface{}) OutFrame {
	return OutFrame{Type: t, Payload: payload}
}

// JoinPayload is the inbound join message body.
type JoinPayload struct {
	Username string `json:"username"`
}

// SubmitAnswerPayload is the inbound submit_answer message body.
type SubmitAnswerPayload struct {
	Answer          json.RawMessage `json:"answer"`
	ClientTimestamp float64         `json:"client_timestamp"`
	Timeout         bool            `json:"timeout"`
}

// StartQuizPayload is the inbound start_quiz message body.
type StartQuizPayload struct {
	PerQuestionTimeLimit int  `json:"per_question_time_limit"`
	AutoAdvance          bool `json:"auto_advance"`
}

// ErrorPayload is the outbound error message body.
type ErrorPayload struct {
	Message string `json:"message"`
}

// SessionStatePayload is the outbound session_state message body sent to
// a client immediately after join.
type SessionStatePayload struct {
	Code                 string `json:"code"`
	Status               string `json:"status"`
	IsHost               bool   `json:"is_host"`
	TotalQuestions       int    `json:"total_questions"`
	PerQuestionTimeLimit int    `json:"per_question_time_limit"`
	QuestionIndex        int    `json:"question_index,omitempty"`
}

// SessionUpdatePayload is broadcast whenever the roster changes.
type SessionUpdatePayload struct {
	UserID        string `json:"user_id"`
	Username      string `json:"username"`
	ParticipantCount int `json:"participant_count"`
}

// LeaderboardPayload wraps a leaderboard snapshot for both
// leaderboard_update and leaderboard_response.
type LeaderboardPayload struct {
	Leaderboard []LeaderboardRow `json:"leaderboard"`
}

// LeaderboardRow is one ranked entry as shown to clients.
type LeaderboardRow struct {
	UserID         string `json:"user_id"`
	Username       string `json:"username"`
	Score          int    `json:"score"`
	QuestionIndex  int    `json:"question_index"`
	AnsweredCount  int    `json:"answered_count"`
	TotalQuestions int    `json:"total_questions"`
	Connected      bool   `json:"connected"`
}

// QuizCompletedPayload is sent to a player who has finished all questions.
type QuizCompletedPayload struct {
	FinalScore int              `json:"final_score"`
	Results    []LeaderboardRow `json:"results"`
}

// QuizEndedPayload is broadcast to everyone when the quiz ends, whether
// the host ended it or the session completed on its own.
type QuizEndedPayload struct {
	Results []LeaderboardRow `json:"results"`
}
