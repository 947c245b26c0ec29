package game

import (
	"testing"

	"github.com/quizengine/session-engine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGradeSingleMCQ(t *testing.T) {
	q := model.Question{Type: model.QuestionSingleMCQ, CorrectIndex: 2}

	tests := []struct {
		name   string
		answer interface{}
		want   bool
	}{
		{"correct int", 2, true},
		{"correct float64 (json-decoded)", float64(2), true},
		{"wrong index", 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Grade(q, tt.answer, false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.IsCorrect)
			assert.Zero(t, got.Partial)
		})
	}
}

func TestGradeTrueFalse(t *testing.T) {
	q := model.Question{Type: model.QuestionTrueFalse, CorrectIndex: 0}

	got, err := Grade(q, 0, false)
	require.NoError(t, err)
	assert.True(t, got.IsCorrect)

	got, err = Grade(q, 1, false)
	require.NoError(t, err)
	assert.False(t, got.IsCorrect)
}

func TestGradeTimeout(t *testing.T) {
	q := model.Question{Type: model.QuestionSingleMCQ, CorrectIndex: 0}
	got, err := Grade(q, 0, true)
	require.NoError(t, err)
	assert.False(t, got.IsCorrect)
	assert.Zero(t, got.Partial)
}

func TestGradeMultiMCQ(t *testing.T) {
	q := model.Question{Type: model.QuestionMultiMCQ, CorrectIndices: []int{0, 1, 2}}

	tests := []struct {
		name        string
		submitted   interface{}
		wantCorrect bool
		wantPartial float64
	}{
		{"exact match", []interface{}{float64(0), float64(1), float64(2)}, true, 1},
		{"exact match, []int", []int{0, 1, 2}, true, 1},
		{"partial, one missing", []interface{}{float64(0), float64(1)}, false, 2.0 / 3.0},
		{"partial, one extra cancels one correct", []interface{}{float64(0), float64(1), float64(2), float64(3)}, false, 2.0 / 3.0},
		{"all wrong clamps to zero", []interface{}{float64(3), float64(4)}, false, 0},
		{"empty submission", []interface{}{}, false, 0},
		{"no correct answers, empty submission matches", []interface{}{}, true, 0},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			question := q
			if i == len(tests)-1 {
				question.CorrectIndices = []int{}
			}
			got, err := Grade(question, tt.submitted, false)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCorrect, got.IsCorrect)
			assert.InDelta(t, tt.wantPartial, got.Partial, 1e-9)
		})
	}
}

func TestGradeDragAndDrop(t *testing.T) {
	q := model.Question{
		Type: model.QuestionDragAndDrop,
		CorrectMatches: map[string]string{
			"apple":  "fruit",
			"carrot": "vegetable",
		},
	}

	got, err := Grade(q, map[string]interface{}{"apple": "fruit", "carrot": "vegetable"}, false)
	require.NoError(t, err)
	assert.True(t, got.IsCorrect)

	got, err = Grade(q, map[string]interface{}{"apple": "vegetable", "carrot": "vegetable"}, false)
	require.NoError(t, err)
	assert.False(t, got.IsCorrect)

	got, err = Grade(q, map[string]string{"apple": "fruit", "carrot": "vegetable"}, false)
	require.NoError(t, err)
	assert.True(t, got.IsCorrect)
}

func TestGradeRejectsMalformedAnswers(t *testing.T) {
	_, err := Grade(model.Question{Type: model.QuestionSingleMCQ}, "not a number", false)
	assert.Error(t, err)

	_, err = Grade(model.Question{Type: model.QuestionMultiMCQ}, "not a list", false)
	assert.Error(t, err)

	_, err = Grade(model.Question{Type: model.QuestionDragAndDrop}, 42, false)
	assert.Error(t, err)

	_, err = Grade(model.Question{Type: "unknown"}, 0, false)
	assert.Error(t, err)
}
