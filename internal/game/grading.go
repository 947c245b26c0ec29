// Package game implements the Game Controller: question retrieval, answer
// grading and scoring, per-player index advancement, and global completion
// detection.
package game

import (
	"fmt"
	"sort"

	"github.com/quizengine/session-engine/internal/model"
)

// GradeResult is the outcome of grading one submitted answer against a
// question, before the speed-weighted scoring step is applied.
type GradeResult struct {
	IsCorrect bool
	Partial   float64 // 0 unless Type == multiMcq
}

// Grade dispatches to the variant-specific grading rule. answer's concrete
// type depends on question.Type: int for singleMcq/trueFalse, []int (or
// []interface{} of numbers) for multiMcq, map[string]string for
// dragAndDrop. isTimeout short-circuits grading to an incorrect, zero-point
// submission regardless of variant (a null answer is only accepted when
// the payload carries the timeout flag).
func Grade(q model.Question, answer interface{}, isTimeout bool) (GradeResult, error) {
	if isTimeout {
		return GradeResult{IsCorrect: false}, nil
	}

	switch q.Type {
	case model.QuestionSingleMCQ, model.QuestionTrueFalse:
		idx, err := toInt(answer)
		if err != nil {
			return GradeResult{}, fmt.Errorf("game: %s answer must be an index: %w", q.Type, err)
		}
		return GradeResult{IsCorrect: idx == q.CorrectIndex}, nil

	case model.QuestionMultiMCQ:
		submitted, err := toIntSet(answer)
		if err != nil {
			return GradeResult{}, fmt.Errorf("game: multiMcq answer must be a set of indices: %w", err)
		}
		return gradeMultiMCQ(q.CorrectIndices, submitted), nil

	case model.QuestionDragAndDrop:
		submitted, err := toStringMap(answer)
		if err != nil {
			return GradeResult{}, fmt.Errorf("game: dragAndDrop answer must be a mapping: %w", err)
		}
		return GradeResult{IsCorrect: mapsEqual(submitted, q.CorrectMatches)}, nil

	default:
		return GradeResult{}, fmt.Errorf("game: unknown question type %q", q.Type)
	}
}

// gradeMultiMCQ implements partial = max(0, min(1, (|C∩U| - |U\C|) / |C|))
// and is_correct = (U == C), per the fixed spec.
func gradeMultiMCQ(correct, submitted []int) GradeResult {
	correctSet := toSet(correct)
	submittedSet := toSet(submitted)

	if len(correctSet) == 0 {
		return GradeResult{IsCorrect: len(submittedSet) == 0}
	}

	intersection := 0
	for v := range submittedSet {
		if correctSet[v] {
			intersection++
		}
	}
	extra := len(submittedSet) - intersection

	partial := float64(intersection-extra) / float64(len(correctSet))
	if partial < 0 {
		partial = 0
	}
	if partial > 1 {
		partial = 1
	}

	return GradeResult{
		IsCorrect: setsEqual(correctSet, submittedSet),
		Partial:   partial,
	}
}

func toSet(vals []int) map[int]bool {
	s := make(map[int]bool, len(vals))
	for _, v := range vals {
		s[v] = true
	}
	return s
}

func setsEqual(a, b map[int]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for v := range a {
		if !b[v] {
			return false
		}
	}
	return true
}

func mapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected numeric index, got %T", v)
	}
}

func toIntSet(v interface{}) ([]int, error) {
	raw, ok := v.([]interface{})
	if !ok {
		if ints, ok := v.([]int); ok {
			return ints, nil
		}
		return nil, fmt.Errorf("expected an array of indices, got %T", v)
	}
	out := make([]int, 0, len(raw))
	for _, item := range raw {
		n, err := toInt(item)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

func toStringMap(v interface{}) (map[string]string, error) {
	switch m := v.(type) {
	case map[string]string:
		return m, nil
	case map[string]interface{}:
		out := make(map[string]string, len(m))
		for k, val := range m {
			s, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("expected string target for key %q, got %T", k, val)
			}
			out[k] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a mapping, got %T", v)
	}
}
