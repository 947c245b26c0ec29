package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpeedMultiplier(t *testing.T) {
	tests := []struct {
		name    string
		elapsed float64
		limit   float64
		want    float64
	}{
		{"instant answer gets max multiplier", 0, 10, 2.0},
		{"half the limit", 5, 10, 1.5},
		{"exactly at the limit", 10, 10, 1.0},
		{"past the limit clamps to 1.0", 15, 10, 1.0},
		{"negative elapsed clamps to 0", -5, 10, 2.0},
		{"zero limit short-circuits to 1.0", 3, 0, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, speedMultiplier(tt.elapsed, tt.limit), 1e-9)
		})
	}
}

func TestScoreSingleMCQ(t *testing.T) {
	t.Run("instant correct answer gets full double", func(t *testing.T) {
		got := Score(GradeResult{IsCorrect: true}, false, 0, 10)
		assert.Equal(t, 2000, got.Points)
		assert.Equal(t, 1000, got.TimeBonus)
		assert.InDelta(t, 2.0, got.Multiplier, 1e-9)
	})

	t.Run("answer at the limit gets base points only", func(t *testing.T) {
		got := Score(GradeResult{IsCorrect: true}, false, 10, 10)
		assert.Equal(t, 1000, got.Points)
		assert.Equal(t, 0, got.TimeBonus)
		assert.InDelta(t, 1.0, got.Multiplier, 1e-9)
	})

	t.Run("answer past the limit still clamps to base points", func(t *testing.T) {
		got := Score(GradeResult{IsCorrect: true}, false, 25, 10)
		assert.Equal(t, 1000, got.Points)
	})

	t.Run("incorrect answer always scores zero", func(t *testing.T) {
		got := Score(GradeResult{IsCorrect: false}, false, 0, 10)
		assert.Equal(t, 0, got.Points)
		assert.Equal(t, 0, got.TimeBonus)
		// Multiplier is still reported even though it contributes no points.
		assert.InDelta(t, 2.0, got.Multiplier, 1e-9)
	})
}

func TestScoreMultiMCQPartialCredit(t *testing.T) {
	t.Run("full credit at half time scales like a correct single answer", func(t *testing.T) {
		got := Score(GradeResult{IsCorrect: true, Partial: 1}, true, 5, 10)
		assert.Equal(t, 1500, got.Points)
	})

	t.Run("two-thirds partial credit scales the base before the bonus", func(t *testing.T) {
		got := Score(GradeResult{IsCorrect: false, Partial: 2.0 / 3.0}, true, 0, 10)
		// base = 1000 * 2/3 = 666.67 -> rounds to 667; bonus at max multiplier doubles it.
		assert.Equal(t, 1334, got.Points)
		assert.True(t, got.Points > 0)
	})

	t.Run("zero partial credit scores zero regardless of speed", func(t *testing.T) {
		got := Score(GradeResult{IsCorrect: false, Partial: 0}, true, 0, 10)
		assert.Equal(t, 0, got.Points)
	})
}
