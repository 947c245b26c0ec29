package sessionmgr

import (
	"testing"
	"time"

	"github.com/quizengine/session-engine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeSessionRoundTrip(t *testing.T) {
	start := time.Now().UTC().Truncate(time.Millisecond)
	sess := &model.Session{
		Code:                 "ABC123",
		QuizID:               "quiz-1",
		QuizTitle:            "General Knowledge",
		HostID:               "host-1",
		Status:               model.StatusActive,
		CurrentQuestionIndex: 2,
		TotalQuestions:       5,
		PerQuestionTimeLimit: 30,
		AutoAdvance:          true,
		CreatedAt:            start,
		ExpiresAt:            start.Add(time.Hour),
		QuizStartTime:        &start,
		HostReclaimHash:      "$2a$10$fakehash",
		Participants: map[string]*model.Participant{
			"player-1": {
				UserID:    "player-1",
				Username:  "Ada",
				JoinedAt:  start,
				Connected: true,
				Score:     1500,
				Answers: []model.AnswerRecord{
					{QuestionIndex: 0, Answer: float64(2), Timestamp: 3.5, IsCorrect: true, PointsEarned: 1500},
				},
			},
		},
	}

	fields, err := encodeSession(sess)
	require.NoError(t, err)

	got, err := decodeSession(sess.Code, fields)
	require.NoError(t, err)

	assert.Equal(t, sess.Code, got.Code)
	assert.Equal(t, sess.QuizID, got.QuizID)
	assert.Equal(t, sess.QuizTitle, got.QuizTitle)
	assert.Equal(t, sess.HostID, got.HostID)
	assert.Equal(t, sess.Status, got.Status)
	assert.Equal(t, sess.CurrentQuestionIndex, got.CurrentQuestionIndex)
	assert.Equal(t, sess.TotalQuestions, got.TotalQuestions)
	assert.Equal(t, sess.PerQuestionTimeLimit, got.PerQuestionTimeLimit)
	assert.Equal(t, sess.AutoAdvance, got.AutoAdvance)
	assert.True(t, sess.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, sess.ExpiresAt.Equal(got.ExpiresAt))
	require.NotNil(t, got.QuizStartTime)
	assert.True(t, sess.QuizStartTime.Equal(*got.QuizStartTime))
	assert.Equal(t, sess.HostReclaimHash, got.HostReclaimHash)
	require.Contains(t, got.Participants, "player-1")
	assert.Equal(t, sess.Participants["player-1"].Score, got.Participants["player-1"].Score)
	assert.Len(t, got.Participants["player-1"].Answers, 1)
}

func TestDecodeSessionWithoutQuizStartTime(t *testing.T) {
	fields := map[string]string{
		"quiz_id":                 "quiz-1",
		"status":                  string(model.StatusWaiting),
		"current_question_index":  "0",
		"total_questions":         "5",
		"per_question_time_limit": "30",
		"auto_advance":            "false",
		"participants":            "{}",
	}

	got, err := decodeSession("XYZ999", fields)
	require.NoError(t, err)
	assert.Nil(t, got.QuizStartTime)
	assert.Empty(t, got.Participants)
}
