package game

import (
	"testing"
	"time"

	"github.com/quizengine/session-engine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalResultsRanksByScoreThenAnsweredCountThenJoinedAt(t *testing.T) {
	now := time.Now()
	sess := &model.Session{
		Participants: map[string]*model.Participant{
			"trailing": {UserID: "trailing", Score: 100, JoinedAt: now},
			"leader":   {UserID: "leader", Score: 500, JoinedAt: now},
			"tied-more-answers": {
				UserID: "tied-more-answers", Score: 300, JoinedAt: now,
				Answers: []model.AnswerRecord{{}, {}, {}},
			},
			"tied-fewer-answers": {
				UserID: "tied-fewer-answers", Score: 300, JoinedAt: now,
				Answers: []model.AnswerRecord{{}},
			},
		},
	}

	entries := finalResults(sess)
	require.Len(t, entries, 4)

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
	}
	assert.Equal(t, []string{"leader", "tied-more-answers", "tied-fewer-answers", "trailing"}, ids)

	for i, e := range entries {
		assert.Equal(t, i+1, e.Rank)
	}
}

func TestCorrectAnswerValueByVariant(t *testing.T) {
	assert.Equal(t, 2, correctAnswerValue(model.Question{Type: model.QuestionSingleMCQ, CorrectIndex: 2}))
	assert.Equal(t, 1, correctAnswerValue(model.Question{Type: model.QuestionTrueFalse, CorrectIndex: 1}))
	assert.Equal(t, []int{0, 2}, correctAnswerValue(model.Question{Type: model.QuestionMultiMCQ, CorrectIndices: []int{0, 2}}))
	assert.Equal(t, map[string]string{"a": "b"}, correctAnswerValue(model.Question{Type: model.QuestionDragAndDrop, CorrectMatches: map[string]string{"a": "b"}}))
	assert.Nil(t, correctAnswerValue(model.Question{Type: "unknown"}))
}
